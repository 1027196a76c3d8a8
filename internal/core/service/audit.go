package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

// StoreAuditRecorder appends immutable audit records to their own store
// collection. Records are never mutated or deleted by this subsystem.
type StoreAuditRecorder struct {
	store      port.DocumentStore
	collection string
	log        *zap.Logger
}

func NewStoreAuditRecorder(store port.DocumentStore, collection string, log *zap.Logger) *StoreAuditRecorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreAuditRecorder{store: store, collection: collection, log: log}
}

func (r *StoreAuditRecorder) Record(ctx context.Context, rec domain.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = domain.Now()
	}

	doc, err := auditDoc(rec)
	if err != nil {
		return err
	}
	if _, err := r.store.Add(ctx, r.collection, doc); err != nil {
		return &domain.StoreError{Op: "add audit record", Err: err}
	}

	r.log.Info("audit event logged",
		zap.String("auditId", rec.ID),
		zap.String("userId", rec.UserID),
		zap.String("action", string(rec.Action)),
		zap.String("resource", rec.Resource),
		zap.String("resourceId", rec.ResourceID),
		zap.Int("changesCount", len(rec.Changes)))
	return nil
}

// ListByResource returns the most recent audit records for one resource,
// newest first.
func (r *StoreAuditRecorder) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]domain.AuditRecord, error) {
	docs, err := r.store.Query(ctx, r.collection, "resourceId", port.OpEqual, resourceID)
	if err != nil {
		return nil, &domain.StoreError{Op: "query audit records", Err: err}
	}

	var records []domain.AuditRecord
	for _, d := range docs {
		rec, err := auditFromDoc(d.Data)
		if err != nil {
			r.log.Warn("skipping malformed audit record", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		if rec.Resource == resource {
			records = append(records, rec)
		}
	}
	return sortAndLimit(records, limit), nil
}

// ListByActor returns the most recent audit records written by one user,
// newest first.
func (r *StoreAuditRecorder) ListByActor(ctx context.Context, userID string, limit int) ([]domain.AuditRecord, error) {
	docs, err := r.store.Query(ctx, r.collection, "userId", port.OpEqual, userID)
	if err != nil {
		return nil, &domain.StoreError{Op: "query audit records", Err: err}
	}

	var records []domain.AuditRecord
	for _, d := range docs {
		rec, err := auditFromDoc(d.Data)
		if err != nil {
			r.log.Warn("skipping malformed audit record", zap.String("id", d.ID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return sortAndLimit(records, limit), nil
}

func sortAndLimit(records []domain.AuditRecord, limit int) []domain.AuditRecord {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp > records[j].Timestamp
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records
}

func auditDoc(rec domain.AuditRecord) (map[string]any, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode audit record: %w", err)
	}
	return doc, nil
}

func auditFromDoc(doc map[string]any) (domain.AuditRecord, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return domain.AuditRecord{}, fmt.Errorf("encode audit document: %w", err)
	}
	var rec domain.AuditRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.AuditRecord{}, fmt.Errorf("decode audit document: %w", err)
	}
	return rec, nil
}
