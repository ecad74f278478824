// Package direct provides an audit logger that writes entries straight to
// storage.
package direct

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/phoenix-bypass/internal/core/domain"
	"github.com/tjfontaine/phoenix-bypass/internal/core/ports"
)

// Logger implements ports.AuditLogger by writing directly to storage and
// mirroring each entry to slog. This is the default implementation for
// single-instance deployments.
type Logger struct {
	store  ports.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewLogger creates a new direct audit logger.
func NewLogger(store ports.AuditStore, logger *slog.Logger) (*Logger, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, logger: logger, now: time.Now}, nil
}

// Log appends an entry. Storage failures are logged and swallowed so that an
// already committed mutation is never reported as failed.
func (l *Logger) Log(ctx context.Context, status domain.Status, endpoint, description, actor string) {
	entry := &domain.LogEntry{
		Status:      status,
		Endpoint:    endpoint,
		Description: description,
		Actor:       actor,
		CreatedAt:   l.now().UTC(),
	}

	l.logger.Info("audit",
		slog.String("status", string(status)),
		slog.String("endpoint", endpoint),
		slog.String("actor", actor),
		slog.String("description", description))

	if err := l.store.AppendLogEntry(ctx, entry); err != nil {
		l.logger.Error("failed to persist audit entry",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()))
	}
}

// Ensure Logger implements the interface.
var _ ports.AuditLogger = (*Logger)(nil)
