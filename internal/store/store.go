package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document id has no entry in a collection.
var ErrNotFound = errors.New("document not found")

// SyncError wraps a failure of the synchronization layer itself (as
// opposed to a domain precondition failure). Callers decide retry policy.
type SyncError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s %s/%s: %v", e.Op, e.Collection, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Cloneable is implemented by every document kept in a Store. Clone must
// return a deep copy so snapshots handed to callers and subscribers never
// alias live state.
type Cloneable interface {
	Clone() any
}

// EventType labels a change notification.
type EventType string

const (
	EventPut    EventType = "put"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change emitted to subscribers. Doc is a snapshot taken at
// the moment of the change; for deletes it is the final state the
// document had.
type Event struct {
	Type       EventType
	Collection string
	ID         string
	Doc        any
}

// Predicate filters documents for Query and Subscribe.
type Predicate func(id string, doc any) bool

// Store is the boundary the match engine persists and observes state
// through. Update must be atomic: the mutator runs against a consistent
// snapshot and its result replaces the document with no interleaved
// writes, which is what keeps racing guess submissions from both being
// accepted.
type Store interface {
	Get(collection, id string) (any, error)
	Put(collection, id string, doc Cloneable) error
	Update(collection, id string, mutate func(doc any) (Cloneable, error)) (any, error)
	Delete(collection, id string) error
	Query(collection string, match Predicate) ([]any, error)
	Subscribe(collection string, match Predicate) (<-chan Event, func())
}
