package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

func TestMemoryStore_AddGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Add(ctx, "tools_v2", map[string]any{"name": "Amplitude", "count": 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty id")
	}

	doc, err := store.Get(ctx, "tools_v2", id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc["name"] != "Amplitude" {
		t.Errorf("expected name Amplitude, got %v", doc["name"])
	}
	// numbers come back as float64 after the JSON round trip
	if doc["count"] != float64(3) {
		t.Errorf("expected count 3.0, got %v (%T)", doc["count"], doc["count"])
	}
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()

	doc, err := store.Get(context.Background(), "tools_v2", "no-such-id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil doc, got %v", doc)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Add(ctx, "tools_v2", map[string]any{"name": "Amplitude"})

	doc, _ := store.Get(ctx, "tools_v2", id)
	doc["name"] = "mutated"

	again, _ := store.Get(ctx, "tools_v2", id)
	if again["name"] != "Amplitude" {
		t.Errorf("stored document was mutated through a returned copy: %v", again["name"])
	}
}

func TestMemoryStore_UpdateMergesFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Add(ctx, "tools_v2", map[string]any{"name": "Amplitude", "category": "analytics"})

	if err := store.Update(ctx, "tools_v2", id, map[string]any{"category": "product-analytics"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc, _ := store.Get(ctx, "tools_v2", id)
	if doc["name"] != "Amplitude" {
		t.Errorf("untouched field lost: %v", doc["name"])
	}
	if doc["category"] != "product-analytics" {
		t.Errorf("expected merged category, got %v", doc["category"])
	}
}

func TestMemoryStore_UpdateMissing(t *testing.T) {
	store := NewMemoryStore()

	err := store.Update(context.Background(), "tools_v2", "no-such-id", map[string]any{"name": "x"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_DeleteMissingIsNoop(t *testing.T) {
	store := NewMemoryStore()

	if err := store.Delete(context.Background(), "tools_v2", "no-such-id"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMemoryStore_Query(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	store.Add(ctx, "tools_v2", map[string]any{"normalizedName": "amplitude", "rank": 1})
	store.Add(ctx, "tools_v2", map[string]any{"normalizedName": "mixpanel", "rank": 2})
	store.Add(ctx, "tools_v2", map[string]any{"normalizedName": "amplitude", "rank": 3})

	docs, err := store.Query(ctx, "tools_v2", "normalizedName", port.OpEqual, "amplitude")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(docs))
	}

	docs, err = store.Query(ctx, "tools_v2", "rank", port.OpGreaterEqual, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("expected 2 matches for rank >= 2, got %d", len(docs))
	}
}

func TestMemoryStore_TransactionReadModifyWrite(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Add(ctx, "tools_v2", map[string]any{"counter": 0})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
				doc, err := tx.Get(ctx, "tools_v2", id)
				if err != nil {
					return err
				}
				n := doc["counter"].(float64)
				return tx.Update(ctx, "tools_v2", id, map[string]any{"counter": n + 1})
			})
			if err != nil {
				t.Errorf("transaction failed: %v", err)
			}
		}()
	}
	wg.Wait()

	doc, _ := store.Get(ctx, "tools_v2", id)
	if doc["counter"] != float64(workers) {
		t.Errorf("expected counter %d, got %v", workers, doc["counter"])
	}
}

func TestMemoryStore_TransactionErrorPropagates(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Add(ctx, "tools_v2", map[string]any{"name": "Amplitude"})

	wantErr := errors.New("boom")
	err := store.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}

	doc, _ := store.Get(ctx, "tools_v2", id)
	if doc == nil {
		t.Error("document lost after failed transaction")
	}
}
