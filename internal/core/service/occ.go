package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

// VersionField is the document field holding the optimistic version
// counter. The version controller is its only writer.
const VersionField = "_optimisticVersion"

// VerifyResult reports whether a document's stored version matched the
// caller's expectation. A mismatch is a normal outcome, not an error.
type VerifyResult struct {
	OK             bool
	CurrentVersion int64
}

// VersionController maintains the per-document monotonic version counter.
// Atomicity of Increment is delegated to the store's transaction primitive,
// so it stays correct across replicas without in-process locking.
type VersionController struct {
	store      port.DocumentStore
	collection string
	log        *zap.Logger
}

func NewVersionController(store port.DocumentStore, collection string, log *zap.Logger) *VersionController {
	if log == nil {
		log = zap.NewNop()
	}
	return &VersionController{store: store, collection: collection, log: log}
}

// Verify compares the stored version against expected. An absent version
// field counts as 0 and is opportunistically backfilled so later reads see
// an explicit value. Returns domain.ErrNotFound for a vanished document.
func (c *VersionController) Verify(ctx context.Context, id string, expected int64) (VerifyResult, error) {
	doc, err := c.store.Get(ctx, c.collection, id)
	if err != nil {
		return VerifyResult{}, &domain.StoreError{Op: "get", Err: err}
	}
	if doc == nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", id, domain.ErrNotFound)
	}

	v, err := readVersion(doc)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("verify %s: %w", id, err)
	}

	if !v.present {
		c.log.Info("document missing version field, initializing to 0", zap.String("id", id))
		if err := c.backfill(ctx, id); err != nil {
			c.log.Warn("version backfill failed", zap.String("id", id), zap.Error(err))
		}
	}

	current := v.current()
	if current != expected {
		c.log.Warn("optimistic lock conflict detected",
			zap.String("id", id),
			zap.Int64("expectedVersion", expected),
			zap.Int64("currentVersion", current))
		return VerifyResult{OK: false, CurrentVersion: current}, nil
	}
	return VerifyResult{OK: true, CurrentVersion: current}, nil
}

// backfill materializes an explicit 0 for a document lacking the version
// field. It runs inside a transaction and re-checks absence there: a
// concurrent Increment may have written a real version since Verify's read,
// and an unconditional write would regress the counter.
func (c *VersionController) backfill(ctx context.Context, id string) error {
	return c.store.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
		doc, err := tx.Get(ctx, c.collection, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}

		v, err := readVersion(doc)
		if err != nil {
			return err
		}
		if v.present {
			return nil
		}
		return tx.Update(ctx, c.collection, id, map[string]any{VersionField: int64(0)})
	})
}

// Increment bumps the version inside a single store transaction and returns
// the new value. Two concurrent increments can never observe the same
// starting value.
func (c *VersionController) Increment(ctx context.Context, id string) (int64, error) {
	var newVersion int64

	err := c.store.RunTransaction(ctx, func(ctx context.Context, tx port.Txn) error {
		doc, err := tx.Get(ctx, c.collection, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("increment %s: %w", id, domain.ErrNotFound)
		}

		v, err := readVersion(doc)
		if err != nil {
			return fmt.Errorf("increment %s: %w", id, err)
		}

		newVersion = v.current() + 1
		return tx.Update(ctx, c.collection, id, map[string]any{VersionField: newVersion})
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, err
		}
		return 0, &domain.StoreError{Op: "increment", Err: err}
	}

	c.log.Debug("version incremented", zap.String("id", id), zap.Int64("newVersion", newVersion))
	return newVersion, nil
}

// storedVersion distinguishes an absent field from an explicit value; the
// collapse to 0 happens only at the comparison boundary.
type storedVersion struct {
	n       int64
	present bool
}

func (v storedVersion) current() int64 {
	if !v.present {
		return 0
	}
	return v.n
}

func readVersion(doc map[string]any) (storedVersion, error) {
	raw, ok := doc[VersionField]
	if !ok || raw == nil {
		return storedVersion{}, nil
	}

	var n int64
	switch val := raw.(type) {
	case int64:
		n = val
	case int:
		n = int64(val)
	case float64:
		n = int64(val)
	case json.Number:
		parsed, err := val.Int64()
		if err != nil {
			return storedVersion{}, fmt.Errorf("malformed version field %q: %w", val, err)
		}
		n = parsed
	default:
		return storedVersion{}, fmt.Errorf("malformed version field of type %T", raw)
	}

	if n < 0 {
		return storedVersion{}, fmt.Errorf("negative version %d", n)
	}
	return storedVersion{n: n, present: true}, nil
}
