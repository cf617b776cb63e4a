package main

import (
	"errors"
	"sync"
	"testing"
	"time"

	store "nombroludo/internal/store"
)

type counterDoc struct {
	Name  string
	Count int
	Tags  []string
}

func (d *counterDoc) Clone() any {
	out := *d
	out.Tags = append([]string{}, d.Tags...)
	return &out
}

func TestGetReturnsIsolatedSnapshot(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.Put("docs", "a", &counterDoc{Name: "a", Tags: []string{"x"}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	doc, err := s.Get("docs", "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	snapshot := doc.(*counterDoc)
	snapshot.Count = 99
	snapshot.Tags[0] = "mutated"

	again, _ := s.Get("docs", "a")
	fresh := again.(*counterDoc)
	if fresh.Count != 0 || fresh.Tags[0] != "x" {
		t.Error("mutating a snapshot must not change stored state")
	}
}

func TestGetMissing(t *testing.T) {
	s := store.NewMemoryStore()
	if _, err := s.Get("docs", "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestUpdateMutatesAtomically(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.Put("docs", "a", &counterDoc{Name: "a"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update("docs", "a", func(doc any) (store.Cloneable, error) {
				d := doc.(*counterDoc)
				d.Count++
				return d, nil
			})
			if err != nil {
				t.Errorf("Update failed: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, _ := s.Get("docs", "a")
	if got := doc.(*counterDoc).Count; got != workers {
		t.Errorf("count = %d, want %d: concurrent updates must not be lost", got, workers)
	}
}

func TestUpdateMutatorErrorLeavesDocUntouched(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.Put("docs", "a", &counterDoc{Name: "a", Count: 7}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update("docs", "a", func(doc any) (store.Cloneable, error) {
		d := doc.(*counterDoc)
		d.Count = 0
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update = %v, want mutator error", err)
	}
	doc, _ := s.Get("docs", "a")
	if doc.(*counterDoc).Count != 7 {
		t.Error("aborted update must leave the document unchanged")
	}

	if _, err := s.Update("docs", "missing", func(doc any) (store.Cloneable, error) {
		return doc.(*counterDoc), nil
	}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	s := store.NewMemoryStore()
	if err := s.Put("docs", "a", &counterDoc{Name: "a"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Delete("docs", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete("docs", "a"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestQueryFiltersByPredicate(t *testing.T) {
	s := store.NewMemoryStore()
	for _, name := range []string{"a", "b", "c"} {
		if err := s.Put("docs", name, &counterDoc{Name: name}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	docs, err := s.Query("docs", func(_ string, doc any) bool {
		return doc.(*counterDoc).Name != "b"
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("query returned %d docs, want 2", len(docs))
	}

	all, err := s.Query("docs", nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("nil predicate returned %d docs, want 3", len(all))
	}
}

func TestSubscribeReceivesChanges(t *testing.T) {
	s := store.NewMemoryStore()
	events, cancel := s.Subscribe("docs", func(id string, _ any) bool { return id == "a" })
	defer cancel()

	if err := s.Put("docs", "other", &counterDoc{Name: "other"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("docs", "a", &counterDoc{Name: "a"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Update("docs", "a", func(doc any) (store.Cloneable, error) {
		d := doc.(*counterDoc)
		d.Count++
		return d, nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := s.Delete("docs", "a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	want := []store.EventType{store.EventPut, store.EventUpdate, store.EventDelete}
	for _, wantType := range want {
		select {
		case ev := <-events:
			if ev.Type != wantType {
				t.Errorf("event type = %q, want %q", ev.Type, wantType)
			}
			if ev.ID != "a" {
				t.Errorf("event id = %q, want %q (predicate must filter)", ev.ID, "a")
			}
			if ev.Doc == nil {
				t.Error("event must carry a document snapshot")
			}
		case <-time.After(time.Second):
			t.Fatalf("no %q event received", wantType)
		}
	}
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	s := store.NewMemoryStore()
	events, cancel := s.Subscribe("docs", nil)
	cancel()
	cancel() // second cancel is a no-op

	if _, ok := <-events; ok {
		t.Error("cancelled subscription channel should be closed")
	}
	if err := s.Put("docs", "a", &counterDoc{Name: "a"}); err != nil {
		t.Fatalf("Put after cancel failed: %v", err)
	}
}
