package domain

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

// DuplicateNameError reports a case-insensitive name collision within a
// category.
type DuplicateNameError struct {
	Name          string
	Category      string
	ConflictingID string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("tool %q already exists in category %q (id %s)", e.Name, e.Category, e.ConflictingID)
}

// DuplicateVersionError reports a case-insensitive version-name collision
// within a single tool's versions list.
type DuplicateVersionError struct {
	VersionName string
}

func (e *DuplicateVersionError) Error() string {
	return fmt.Sprintf("duplicate version name %q", e.VersionName)
}

// OptimisticConflictError is the losing side of a version race. It carries
// the server's current version so the caller can refresh and retry.
type OptimisticConflictError struct {
	ID              string
	ExpectedVersion int64
	CurrentVersion  int64
}

func (e *OptimisticConflictError) Error() string {
	return fmt.Sprintf("optimistic lock conflict on %s: expected version %d, current %d",
		e.ID, e.ExpectedVersion, e.CurrentVersion)
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmptyNormalizationError means an input contained no alphanumeric
// characters after normalization.
type EmptyNormalizationError struct {
	Input string
}

func (e *EmptyNormalizationError) Error() string {
	return fmt.Sprintf("%q contains no alphanumeric characters after normalization", e.Input)
}

// StoreError wraps an underlying store or transport failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
