package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/santiago-gil/tools-tracker/internal/adapter/storage"
	"github.com/santiago-gil/tools-tracker/internal/core/domain"
)

const testCollection = "tools_v2"

func seedDoc(t *testing.T, store *storage.MemoryStore, doc map[string]any) string {
	t.Helper()
	id, err := store.Add(context.Background(), testCollection, doc)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return id
}

func TestVerify_Match(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Hotjar", VersionField: 3})

	res, err := vc.Verify(context.Background(), id, 3)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.OK || res.CurrentVersion != 3 {
		t.Errorf("Verify = %+v, want OK with version 3", res)
	}
}

func TestVerify_Mismatch(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Hotjar", VersionField: 5})

	res, err := vc.Verify(context.Background(), id, 4)
	if err != nil {
		t.Fatalf("Verify returned error on mismatch: %v", err)
	}
	if res.OK {
		t.Error("expected mismatch")
	}
	if res.CurrentVersion != 5 {
		t.Errorf("CurrentVersion = %d, want 5", res.CurrentVersion)
	}
}

func TestVerify_MissingVersionFieldBackfills(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Legacy Tool"})

	res, err := vc.Verify(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.OK || res.CurrentVersion != 0 {
		t.Errorf("Verify = %+v, want OK with version 0", res)
	}

	// The document now carries an explicit 0.
	doc, err := store.Get(context.Background(), testCollection, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v, ok := doc[VersionField]; !ok || v != float64(0) {
		t.Errorf("expected backfilled version 0, got %v (present=%v)", v, ok)
	}
}

func TestVerify_NotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	_, err := vc.Verify(context.Background(), "missing", 0)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestVerify_MalformedVersionField(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Corrupt", VersionField: "three"})

	if _, err := vc.Verify(context.Background(), id, 0); err == nil {
		t.Error("expected error for malformed version field")
	}
}

func TestIncrement(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Hotjar", VersionField: 0})

	ctx := context.Background()
	for want := int64(1); want <= 3; want++ {
		got, err := vc.Increment(ctx, id)
		if err != nil {
			t.Fatalf("Increment failed: %v", err)
		}
		if got != want {
			t.Errorf("Increment = %d, want %d", got, want)
		}
	}
}

func TestIncrement_MissingFieldStartsAtZero(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Legacy Tool"})

	got, err := vc.Increment(context.Background(), id)
	if err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	if got != 1 {
		t.Errorf("Increment = %d, want 1", got)
	}
}

func TestIncrement_NotFound(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	if _, err := vc.Increment(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrement_Concurrent(t *testing.T) {
	store := storage.NewMemoryStore()
	vc := NewVersionController(store, testCollection, nil)

	id := seedDoc(t, store, map[string]any{"name": "Hotjar", VersionField: 0})

	const k = 50
	var wg sync.WaitGroup
	seen := make(chan int64, k)

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := vc.Increment(context.Background(), id)
			if err != nil {
				t.Errorf("Increment failed: %v", err)
				return
			}
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	// Every increment observed a distinct starting value, so the returned
	// versions are exactly 1..k.
	got := make(map[int64]bool, k)
	for v := range seen {
		if got[v] {
			t.Errorf("version %d returned twice", v)
		}
		got[v] = true
	}
	if len(got) != k {
		t.Fatalf("expected %d distinct versions, got %d", k, len(got))
	}

	res, err := vc.Verify(context.Background(), id, k)
	if err != nil || !res.OK {
		t.Errorf("final version mismatch: res=%+v err=%v", res, err)
	}
}

// raceStore lands an increment between a plain read and whatever the
// caller does with it, reproducing a writer slipping in mid-verify.
type raceStore struct {
	*storage.MemoryStore
	vc    *VersionController
	docID string
	fired bool
}

func (s *raceStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	doc, err := s.MemoryStore.Get(ctx, collection, id)
	if err == nil && !s.fired && id == s.docID {
		s.fired = true
		if _, incErr := s.vc.Increment(ctx, id); incErr != nil {
			return nil, incErr
		}
	}
	return doc, err
}

func TestVerify_BackfillDoesNotRegressConcurrentIncrement(t *testing.T) {
	mem := storage.NewMemoryStore()
	id := seedDoc(t, mem, map[string]any{"name": "Hotjar"})

	store := &raceStore{MemoryStore: mem, docID: id}
	vc := NewVersionController(store, testCollection, nil)
	store.vc = vc

	// Verify reads the document without a version field; the increment
	// lands right after that read, before the backfill runs.
	res, err := vc.Verify(context.Background(), id, 0)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !res.OK {
		t.Errorf("Verify = %+v, want OK against its own read", res)
	}

	doc, err := mem.Get(context.Background(), testCollection, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc[VersionField] != float64(1) {
		t.Errorf("stored version = %v, want 1: backfill must not overwrite a newer version", doc[VersionField])
	}
}
