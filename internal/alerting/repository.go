// Package alerting implements the status-change alert pipeline: diffing
// live status against snapshots, filtering per subscriber preference,
// rate-limiting delivery, and composing the outbound email.
package alerting

import (
	"context"
	"time"

	"github.com/stackalert/stackalert/internal/domain"
)

// Repository defines data access for the alert pipeline.
type Repository interface {
	// Snapshots
	GetAllSnapshots(ctx context.Context) (map[string]*domain.Snapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error

	// Subscribers (read-only projection owned by account management)
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)

	// Pending events
	EnqueuePending(ctx context.Context, pending *domain.PendingEvent) error
	DrainPendingFor(ctx context.Context, userID, serviceSlug string) ([]domain.PendingEvent, error)
	CountPending(ctx context.Context) (int, error)

	// Alert log
	CountUserServiceSendsSince(ctx context.Context, userID, serviceSlug string, since time.Time) (int, error)
	CountUserSendsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// ConfirmSend records a successful delivery and deletes the drained
	// pending rows in one transaction, so a crash cannot leave the log
	// advanced while the backlog survives (or vice versa).
	ConfirmSend(ctx context.Context, entry *domain.AlertLogEntry, pendingIDs []string) error
}
