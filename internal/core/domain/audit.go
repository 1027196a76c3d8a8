package domain

type AuditAction string

const (
	AuditCreate AuditAction = "CREATE"
	AuditUpdate AuditAction = "UPDATE"
	AuditDelete AuditAction = "DELETE"
)

type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue,omitempty"`
	NewValue any    `json:"newValue,omitempty"`
}

// RequestMeta carries request attribution forwarded by the HTTP layer.
type RequestMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// AuditRecord is an immutable, append-only change record. This subsystem
// only ever creates them.
type AuditRecord struct {
	ID         string        `json:"id"`
	Timestamp  string        `json:"timestamp"`
	UserID     string        `json:"userId"`
	UserEmail  string        `json:"userEmail"`
	Action     AuditAction   `json:"action"`
	Resource   string        `json:"resource"`
	ResourceID string        `json:"resourceId"`
	Changes    []FieldChange `json:"changes,omitempty"`
	Metadata   *RequestMeta  `json:"metadata,omitempty"`
}
