package domain

import "time"

// Status is the outcome discriminator used in API results and audit entries.
type Status string

const (
	StatusSuccess Status = "success"
	StatusDanger  Status = "danger"
	StatusWarning Status = "warning"
	StatusInfo    Status = "info"
)

// Stager is a persisted payload definition that the generator turns into
// an Artifact.
type Stager struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Format    string         `json:"format"`
	Compiled  bool           `json:"compiled"`
	Template  string         `json:"template"`
	Options   map[string]any `json:"options,omitempty"`
	Operation *string        `json:"operation,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Operation groups chains and stagers. At most one operation is current.
type Operation struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Current   bool      `json:"current" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// LogEntry is one audit record describing a completed mutation or execution.
type LogEntry struct {
	ID          string    `json:"id" db:"id"`
	Status      Status    `json:"status" db:"status"`
	Endpoint    string    `json:"endpoint" db:"endpoint"`
	Description string    `json:"description" db:"description"`
	Actor       string    `json:"actor" db:"actor"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
