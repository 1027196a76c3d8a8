package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/santiago-gil/tools-tracker/internal/cache"
	"github.com/santiago-gil/tools-tracker/internal/core/domain"
	"github.com/santiago-gil/tools-tracker/internal/core/slug"
	"github.com/santiago-gil/tools-tracker/internal/port"
)

// AllToolsKey is the cache key for the full catalog.
const AllToolsKey = "all-tools"

const auditResourceTool = "tool"

type CreateToolInput struct {
	Name     string
	Category string
	Versions []domain.ToolVersion
}

// UpdateToolInput is a partial patch; nil fields are left unchanged.
type UpdateToolInput struct {
	Name     *string
	Category *string
	Versions []domain.ToolVersion
}

type UpdateResult struct {
	Tool       domain.Tool
	NewVersion int64
}

// ToolService owns the write path for tools. Reads go through the cache;
// every mutation ends with a cache invalidation and, for updates, a fresh
// read-back.
type ToolService struct {
	store      port.DocumentStore
	cache      *cache.Cache[[]domain.Tool]
	versions   *VersionController
	audit      port.AuditRecorder
	collection string
	log        *zap.Logger
}

func NewToolService(
	store port.DocumentStore,
	toolCache *cache.Cache[[]domain.Tool],
	versions *VersionController,
	audit port.AuditRecorder,
	collection string,
	log *zap.Logger,
) *ToolService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ToolService{
		store:      store,
		cache:      toolCache,
		versions:   versions,
		audit:      audit,
		collection: collection,
		log:        log,
	}
}

// List returns all tools, served from the cache. forceRefresh bypasses the
// cached payload but still deduplicates concurrent fetches.
func (s *ToolService) List(ctx context.Context, forceRefresh bool) ([]domain.Tool, error) {
	return s.cache.Get(ctx, AllToolsKey, s.fetchAll, forceRefresh)
}

// GetByID always reads fresh from the store, bypassing the cache.
func (s *ToolService) GetByID(ctx context.Context, id string) (domain.Tool, error) {
	doc, err := s.store.Get(ctx, s.collection, id)
	if err != nil {
		return domain.Tool{}, &domain.StoreError{Op: "get", Err: err}
	}
	if doc == nil {
		return domain.Tool{}, fmt.Errorf("tool %s: %w", id, domain.ErrNotFound)
	}
	return domain.ToolFromDoc(id, doc)
}

// FindBySlug scans the cached catalog for a version carrying the slug.
// Best-effort: a missing match returns nils, not an error.
func (s *ToolService) FindBySlug(ctx context.Context, slugValue string) (*domain.Tool, *domain.ToolVersion, error) {
	if _, _, ok := slug.Parse(slugValue); !ok {
		return nil, nil, nil
	}

	tools, err := s.List(ctx, false)
	if err != nil {
		return nil, nil, err
	}

	for i := range tools {
		for j := range tools[i].Versions {
			if tools[i].Versions[j].Slug == slugValue {
				return &tools[i], &tools[i].Versions[j], nil
			}
		}
	}
	return nil, nil, nil
}

// Create validates uniqueness, derives slugs, writes the new document with
// version 0 and invalidates the catalog cache. The returned tool carries the
// store-assigned id.
//
// The uniqueness check and the write are not atomic against other concurrent
// creates; two creates racing on the same name can both pass the read before
// either write commits. The store offers no unique index, so the race is
// accepted and the second writer wins a duplicate.
func (s *ToolService) Create(ctx context.Context, input CreateToolInput, actor domain.UserInfo, meta *domain.RequestMeta) (domain.Tool, error) {
	normalized, err := s.checkNameUnique(ctx, input.Name, input.Category, "")
	if err != nil {
		return domain.Tool{}, err
	}
	if err := checkVersionsUnique(input.Versions); err != nil {
		return domain.Tool{}, err
	}

	versions, err := ensureSlugs(input.Name, input.Versions)
	if err != nil {
		return domain.Tool{}, err
	}

	now := domain.Now()
	tool := domain.Tool{
		Name:              input.Name,
		Category:          input.Category,
		NormalizedName:    normalized,
		Versions:          versions,
		OptimisticVersion: 0,
		CreatedAt:         now,
		UpdatedAt:         now,
		UpdatedBy:         &actor,
	}
	if err := tool.Validate(); err != nil {
		return domain.Tool{}, err
	}

	doc, err := tool.Doc()
	if err != nil {
		return domain.Tool{}, err
	}

	id, err := s.store.Add(ctx, s.collection, doc)
	if err != nil {
		return domain.Tool{}, &domain.StoreError{Op: "add", Err: err}
	}
	tool.ID = id

	s.recordAudit(ctx, actor, meta, domain.AuditCreate, id, []domain.FieldChange{
		{Field: "name", NewValue: tool.Name},
		{Field: "category", NewValue: tool.Category},
		{Field: "versions", NewValue: len(tool.Versions)},
	})
	s.cache.Invalidate(AllToolsKey)

	s.log.Info("tool created", zap.String("id", id), zap.String("name", tool.Name))
	return tool, nil
}

// Update applies a partial patch under optimistic concurrency control. When
// expectedVersion is non-nil a mismatch aborts the whole operation before
// any write. The patch write and the version increment are two store
// operations; the bump is a freshness signal, not the correctness-critical
// write, so they are not jointly atomic.
func (s *ToolService) Update(ctx context.Context, id string, patch UpdateToolInput, expectedVersion *int64, actor domain.UserInfo, meta *domain.RequestMeta) (UpdateResult, error) {
	if expectedVersion != nil {
		res, err := s.versions.Verify(ctx, id, *expectedVersion)
		if err != nil {
			return UpdateResult{}, err
		}
		if !res.OK {
			return UpdateResult{}, &domain.OptimisticConflictError{
				ID:              id,
				ExpectedVersion: *expectedVersion,
				CurrentVersion:  res.CurrentVersion,
			}
		}
	}

	current, err := s.GetByID(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}

	newName := current.Name
	if patch.Name != nil {
		newName = *patch.Name
	}
	newCategory := current.Category
	if patch.Category != nil {
		newCategory = *patch.Category
	}

	fields := map[string]any{
		"updatedAt": domain.Now(),
		"updatedBy": actor,
	}

	nameChanged := newName != current.Name
	if nameChanged || newCategory != current.Category {
		normalized, err := s.checkNameUnique(ctx, newName, newCategory, id)
		if err != nil {
			return UpdateResult{}, err
		}
		fields["name"] = newName
		fields["category"] = newCategory
		fields["normalizedName"] = normalized
	}

	versions := current.Versions
	if patch.Versions != nil {
		if err := checkVersionsUnique(patch.Versions); err != nil {
			return UpdateResult{}, err
		}
		versions = patch.Versions
	}

	// Derive slugs for versions lacking one. This covers new versions and
	// legacy documents that predate the slug scheme.
	withSlugs, err := ensureSlugs(newName, versions)
	if err != nil {
		return UpdateResult{}, err
	}
	if patch.Versions != nil || slugsAdded(versions, withSlugs) {
		fields["versions"] = withSlugs
	}

	if err := s.store.Update(ctx, s.collection, id, fields); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return UpdateResult{}, err
		}
		return UpdateResult{}, &domain.StoreError{Op: "update", Err: err}
	}

	newVersion, err := s.versions.Increment(ctx, id)
	if err != nil {
		// The patch is already committed; surface the failed bump instead
		// of pretending the version advanced.
		return UpdateResult{}, err
	}

	s.recordAudit(ctx, actor, meta, domain.AuditUpdate, id, diffChanges(current, patch))
	s.cache.Invalidate(AllToolsKey)

	// Read back fresh so the caller sees exactly what the store holds now.
	fresh, err := s.GetByID(ctx, id)
	if err != nil {
		return UpdateResult{}, err
	}
	fresh.OptimisticVersion = newVersion

	s.log.Info("tool updated", zap.String("id", id), zap.Int64("newVersion", newVersion))
	return UpdateResult{Tool: fresh, NewVersion: newVersion}, nil
}

// Delete removes the tool unconditionally. Deletes carry no optimistic
// version guard; that asymmetry is deliberate.
func (s *ToolService) Delete(ctx context.Context, id string, actor domain.UserInfo, meta *domain.RequestMeta) error {
	if err := s.store.Delete(ctx, s.collection, id); err != nil {
		return &domain.StoreError{Op: "delete", Err: err}
	}

	s.recordAudit(ctx, actor, meta, domain.AuditDelete, id, nil)
	s.cache.Invalidate(AllToolsKey)

	s.log.Info("tool deleted", zap.String("id", id))
	return nil
}

func (s *ToolService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

func (s *ToolService) fetchAll(ctx context.Context) ([]domain.Tool, error) {
	docs, err := s.store.List(ctx, s.collection)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}

	tools := make([]domain.Tool, 0, len(docs))
	for _, d := range docs {
		tool, err := domain.ToolFromDoc(d.ID, d.Data)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}

	sort.Slice(tools, func(i, j int) bool {
		return strings.ToLower(tools[i].Name) < strings.ToLower(tools[j].Name)
	})

	s.log.Info("fetched tools collection", zap.Int("count", len(tools)))
	return tools, nil
}

// checkNameUnique queries for the normalized name and rejects a match in the
// same category, excluding excludeID so updates do not collide with
// themselves. Returns the normalized name on success.
func (s *ToolService) checkNameUnique(ctx context.Context, name, category, excludeID string) (string, error) {
	normalized, err := slug.Normalize(name)
	if err != nil {
		return "", err
	}

	docs, err := s.store.Query(ctx, s.collection, "normalizedName", port.OpEqual, normalized)
	if err != nil {
		return "", &domain.StoreError{Op: "query", Err: err}
	}

	for _, d := range docs {
		if d.ID == excludeID {
			continue
		}
		if cat, _ := d.Data["category"].(string); cat == category {
			existingName, _ := d.Data["name"].(string)
			return "", &domain.DuplicateNameError{
				Name:          existingName,
				Category:      category,
				ConflictingID: d.ID,
			}
		}
	}
	return normalized, nil
}

func checkVersionsUnique(versions []domain.ToolVersion) error {
	seen := make(map[string]struct{}, len(versions))
	for _, v := range versions {
		key := strings.ToLower(strings.TrimSpace(v.VersionName))
		if _, dup := seen[key]; dup {
			return &domain.DuplicateVersionError{VersionName: v.VersionName}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// ensureSlugs fills in slugs for versions lacking one. Existing slugs are
// kept as-is so renames do not silently break stored links.
func ensureSlugs(toolName string, versions []domain.ToolVersion) ([]domain.ToolVersion, error) {
	out := make([]domain.ToolVersion, len(versions))
	copy(out, versions)

	for i := range out {
		if out[i].Slug != "" {
			continue
		}
		s, err := slug.Build(toolName, out[i].VersionName)
		if err != nil {
			return nil, err
		}
		out[i].Slug = s
	}
	return out, nil
}

func slugsAdded(before, after []domain.ToolVersion) bool {
	for i := range after {
		if before[i].Slug == "" && after[i].Slug != "" {
			return true
		}
	}
	return false
}

func diffChanges(current domain.Tool, patch UpdateToolInput) []domain.FieldChange {
	var changes []domain.FieldChange
	if patch.Name != nil {
		changes = append(changes, domain.FieldChange{Field: "name", OldValue: current.Name, NewValue: *patch.Name})
	}
	if patch.Category != nil {
		changes = append(changes, domain.FieldChange{Field: "category", OldValue: current.Category, NewValue: *patch.Category})
	}
	if patch.Versions != nil {
		changes = append(changes, domain.FieldChange{Field: "versions", OldValue: len(current.Versions), NewValue: len(patch.Versions)})
	}
	return changes
}

func (s *ToolService) recordAudit(ctx context.Context, actor domain.UserInfo, meta *domain.RequestMeta, action domain.AuditAction, id string, changes []domain.FieldChange) {
	if s.audit == nil {
		return
	}

	email := actor.Email
	if email == "" {
		email = "unknown"
	}
	rec := domain.AuditRecord{
		UserID:     actor.UID,
		UserEmail:  email,
		Action:     action,
		Resource:   auditResourceTool,
		ResourceID: id,
		Changes:    changes,
		Metadata:   meta,
	}

	// Audit is best-effort: a committed mutation must never look failed
	// because the audit write did.
	if err := s.audit.Record(ctx, rec); err != nil {
		s.log.Warn("failed to log audit event",
			zap.String("resourceId", id),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}
