package store

import (
	"sync"

	util "nombroludo/internal/util"
)

const subscriberBuffer = 16

type subscriber struct {
	id         int
	collection string
	match      Predicate
	ch         chan Event
}

// MemoryStore keeps every collection in process memory. It satisfies the
// atomic-update contract by running mutators under the store lock, and
// fans change events out to subscribers.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Cloneable
	subscribers map[int]*subscriber
	nextSubID   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Cloneable),
		subscribers: make(map[int]*subscriber),
	}
}

func (s *MemoryStore) Get(collection, id string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Put(collection, id string, doc Cloneable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]Cloneable)
		s.collections[collection] = col
	}
	col[id] = doc.Clone().(Cloneable)
	s.notifyLocked(Event{Type: EventPut, Collection: collection, ID: id, Doc: doc.Clone()})
	return nil
}

func (s *MemoryStore) Update(collection, id string, mutate func(doc any) (Cloneable, error)) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	updated, err := mutate(doc.Clone())
	if err != nil {
		return nil, err
	}
	s.collections[collection][id] = updated.Clone().(Cloneable)
	snapshot := updated.Clone()
	s.notifyLocked(Event{Type: EventUpdate, Collection: collection, ID: id, Doc: updated.Clone()})
	return snapshot, nil
}

func (s *MemoryStore) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	// Deletes carry the final snapshot so predicates keyed on document
	// fields still see the event.
	s.notifyLocked(Event{Type: EventDelete, Collection: collection, ID: id, Doc: doc.Clone()})
	return nil
}

func (s *MemoryStore) Query(collection string, match Predicate) ([]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []any
	for id, doc := range s.collections[collection] {
		if match == nil || match(id, doc) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Subscribe(collection string, match Predicate) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &subscriber{
		id:         s.nextSubID,
		collection: collection,
		match:      match,
		ch:         make(chan Event, subscriberBuffer),
	}
	s.nextSubID++
	s.subscribers[sub.id] = sub

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[sub.id]; ok {
			delete(s.subscribers, sub.id)
			close(sub.ch)
		}
	}
	return sub.ch, cancel
}

func (s *MemoryStore) notifyLocked(ev Event) {
	for _, sub := range s.subscribers {
		if sub.collection != ev.Collection {
			continue
		}
		if sub.match != nil && !sub.match(ev.ID, ev.Doc) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			util.LogWarn("Dropping %s event for slow subscriber on %s/%s", ev.Type, ev.Collection, ev.ID)
		}
	}
}
