// Package postgres provides the PostgreSQL implementation of the alerting
// repository.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stackalert/stackalert/internal/domain"
)

// Repository implements alerting.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetAllSnapshots bulk-loads every snapshot row, keyed by service slug.
func (r *Repository) GetAllSnapshots(ctx context.Context) (map[string]*domain.Snapshot, error) {
	query := `
		SELECT service_slug, status, incidents, snapshot_at
		FROM status_snapshots
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]*domain.Snapshot)
	for rows.Next() {
		var snap domain.Snapshot
		var incidents []byte
		if err := rows.Scan(&snap.ServiceSlug, &snap.Status, &incidents, &snap.SnapshotAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		// NULL incidents means the list was never captured; keep the slice
		// nil so the detector skips incident diffing for one cycle.
		if incidents != nil {
			if err := json.Unmarshal(incidents, &snap.Incidents); err != nil {
				return nil, fmt.Errorf("unmarshal incidents for %s: %w", snap.ServiceSlug, err)
			}
			if snap.Incidents == nil {
				snap.Incidents = []domain.IncidentRecord{}
			}
		}
		snapshots[snap.ServiceSlug] = &snap
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}

	return snapshots, nil
}

// UpsertSnapshot overwrites the snapshot for one service wholesale.
func (r *Repository) UpsertSnapshot(ctx context.Context, snapshot *domain.Snapshot) error {
	var incidents []byte
	if snapshot.Incidents != nil {
		data, err := json.Marshal(snapshot.Incidents)
		if err != nil {
			return fmt.Errorf("marshal incidents: %w", err)
		}
		incidents = data
	}

	query := `
		INSERT INTO status_snapshots (service_slug, status, incidents, snapshot_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (service_slug) DO UPDATE
		SET status = EXCLUDED.status,
		    incidents = EXCLUDED.incidents,
		    snapshot_at = EXCLUDED.snapshot_at
	`
	if _, err := r.db.Exec(ctx, query, snapshot.ServiceSlug, snapshot.Status, incidents, snapshot.SnapshotAt); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// ListSubscribers loads the read-only subscriber projection: preferences
// joined with each user's active services.
func (r *Repository) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	query := `
		SELECT p.user_id, p.email_enabled, p.email_address, p.severity_threshold,
		       COALESCE(array_agg(s.service_slug) FILTER (WHERE s.service_slug IS NOT NULL), '{}')
		FROM notification_preferences p
		LEFT JOIN user_services s ON s.user_id = p.user_id AND s.is_active
		GROUP BY p.user_id, p.email_enabled, p.email_address, p.severity_threshold
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer rows.Close()

	subscribers := make([]domain.Subscriber, 0)
	for rows.Next() {
		var sub domain.Subscriber
		if err := rows.Scan(&sub.UserID, &sub.EmailEnabled, &sub.EmailAddress, &sub.SeverityThreshold, &sub.ActiveServices); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		subscribers = append(subscribers, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}

	return subscribers, nil
}

// EnqueuePending appends one deferred event. Never merged or deduplicated:
// the full backlog is preserved for the recap.
func (r *Repository) EnqueuePending(ctx context.Context, pending *domain.PendingEvent) error {
	event, err := json.Marshal(pending.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	query := `
		INSERT INTO pending_events (id, user_id, service_slug, event, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.Exec(ctx, query, pending.ID, pending.UserID, pending.ServiceSlug, event, pending.CreatedAt); err != nil {
		return fmt.Errorf("enqueue pending event: %w", err)
	}
	return nil
}

// DrainPendingFor reads all pending events for a (user, service) pair in
// insertion order. Rows are deleted by ConfirmSend only after the send is
// confirmed.
func (r *Repository) DrainPendingFor(ctx context.Context, userID, serviceSlug string) ([]domain.PendingEvent, error) {
	query := `
		SELECT id, user_id, service_slug, event, created_at
		FROM pending_events
		WHERE user_id = $1 AND service_slug = $2
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, userID, serviceSlug)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	pending := make([]domain.PendingEvent, 0)
	for rows.Next() {
		var pe domain.PendingEvent
		var event []byte
		if err := rows.Scan(&pe.ID, &pe.UserID, &pe.ServiceSlug, &event, &pe.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		if err := json.Unmarshal(event, &pe.Event); err != nil {
			return nil, fmt.Errorf("unmarshal pending event %s: %w", pe.ID, err)
		}
		pending = append(pending, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}

	return pending, nil
}

// CountPending returns the total pending event backlog across all users,
// for the queue depth gauge.
func (r *Repository) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM pending_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending events: %w", err)
	}
	return count, nil
}

// CountUserServiceSendsSince counts logged sends for one (user, service)
// pair within the sliding window.
func (r *Repository) CountUserServiceSendsSince(ctx context.Context, userID, serviceSlug string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM email_alert_log
		WHERE user_id = $1 AND service_slug = $2 AND sent_at > $3
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, serviceSlug, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count service sends: %w", err)
	}
	return count, nil
}

// CountUserSendsSince counts all logged sends for one user within the
// sliding window.
func (r *Repository) CountUserSendsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM email_alert_log
		WHERE user_id = $1 AND sent_at > $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("count user sends: %w", err)
	}
	return count, nil
}

// ConfirmSend inserts the alert log row and deletes the flushed pending
// rows in a single transaction.
func (r *Repository) ConfirmSend(ctx context.Context, entry *domain.AlertLogEntry, pendingIDs []string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insert := `
		INSERT INTO email_alert_log (user_id, service_slug, old_status, new_status, event_type, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insert,
		entry.UserID,
		entry.ServiceSlug,
		nullIfEmpty(string(entry.OldStatus)),
		nullIfEmpty(string(entry.NewStatus)),
		entry.EventType,
		entry.SentAt,
	); err != nil {
		return fmt.Errorf("insert alert log: %w", err)
	}

	if len(pendingIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM pending_events WHERE id = ANY($1)`, pendingIDs); err != nil {
			return fmt.Errorf("delete pending events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
