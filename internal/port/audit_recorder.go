package port

import (
	"context"

	"github.com/santiago-gil/tools-tracker/internal/core/domain"
)

type AuditRecorder interface {
	// Record appends an immutable change record; callers treat failures as
	// best-effort
	Record(ctx context.Context, rec domain.AuditRecord) error
}
