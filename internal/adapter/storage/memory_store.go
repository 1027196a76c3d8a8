package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

// MemoryStore is an in-process DocumentStore. Transactions hold the store
// lock for their whole body, which makes them serializable; documents are
// deep-copied across the boundary so callers never share state with the
// store.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(collection, id)
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]port.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []port.Document
	for id, doc := range s.collections[collection] {
		copied, err := copyDoc(doc)
		if err != nil {
			return nil, err
		}
		results = append(results, port.Document{ID: id, Data: copied})
	}
	return results, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection, field string, op port.Op, value any) ([]port.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results []port.Document
	for id, doc := range s.collections[collection] {
		match, err := matchValue(doc[field], op, value)
		if err != nil {
			return nil, err
		}
		if match {
			copied, err := copyDoc(doc)
			if err != nil {
				return nil, err
			}
			results = append(results, port.Document{ID: id, Data: copied})
		}
	}
	return results, nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied, err := copyDoc(doc)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]map[string]any)
	}
	s.collections[collection][id] = copied
	return id, nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(collection, id, fields)
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &memoryTxn{store: s})
}

func (s *MemoryStore) getLocked(collection, id string) (map[string]any, error) {
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return copyDoc(doc)
}

func (s *MemoryStore) updateLocked(collection, id string, fields map[string]any) error {
	doc, ok := s.collections[collection][id]
	if !ok {
		return fmt.Errorf("update %s/%s: %w", collection, id, domain.ErrNotFound)
	}

	copied, err := copyDoc(fields)
	if err != nil {
		return err
	}
	for k, v := range copied {
		doc[k] = v
	}
	return nil
}

// memoryTxn runs with the store lock already held.
type memoryTxn struct {
	store *MemoryStore
}

func (t *memoryTxn) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	return t.store.getLocked(collection, id)
}

func (t *memoryTxn) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return t.store.updateLocked(collection, id, fields)
}

// copyDoc round-trips through JSON, which both isolates the caller's map and
// normalizes values to JSON types the same way a real store would.
func copyDoc(doc map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	var copied map[string]any
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	return copied, nil
}

func matchValue(docVal any, op port.Op, value any) (bool, error) {
	if a, aok := toFloat(docVal); aok {
		b, bok := toFloat(value)
		if !bok {
			return false, nil
		}
		switch op {
		case port.OpEqual:
			return a == b, nil
		case port.OpGreaterEqual:
			return a >= b, nil
		case port.OpLessEqual:
			return a <= b, nil
		}
		return false, fmt.Errorf("unsupported query op %q", op)
	}

	if a, aok := docVal.(string); aok {
		b, bok := value.(string)
		if !bok {
			return false, nil
		}
		switch op {
		case port.OpEqual:
			return a == b, nil
		case port.OpGreaterEqual:
			return a >= b, nil
		case port.OpLessEqual:
			return a <= b, nil
		}
		return false, fmt.Errorf("unsupported query op %q", op)
	}

	if op != port.OpEqual {
		return false, fmt.Errorf("unsupported query op %q for type %T", op, docVal)
	}
	return reflect.DeepEqual(docVal, value), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
