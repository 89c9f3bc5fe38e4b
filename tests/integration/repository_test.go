//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alertingpostgres "github.com/stackalert/stackalert/internal/alerting/postgres"
	"github.com/stackalert/stackalert/internal/domain"
)

func TestRepository_SnapshotRoundtrip(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	resolvedAt := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	snap := &domain.Snapshot{
		ServiceSlug: "github",
		Status:      domain.StatusPartialOutage,
		Incidents: []domain.IncidentRecord{
			{ID: "inc-1", Status: domain.IncidentInvestigating, Impact: domain.ImpactMajor, UpdateCount: 2},
			{ID: "inc-2", Status: domain.IncidentResolved, Impact: domain.ImpactMinor, UpdateCount: 5, ResolvedAt: &resolvedAt},
		},
		SnapshotAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.UpsertSnapshot(ctx, snap))

	snapshots, err := repo.GetAllSnapshots(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshots, "github")

	got := snapshots["github"]
	assert.Equal(t, domain.StatusPartialOutage, got.Status)
	require.Len(t, got.Incidents, 2)

	byID := got.IncidentByID()
	assert.Equal(t, domain.IncidentInvestigating, byID["inc-1"].Status)
	assert.Equal(t, 2, byID["inc-1"].UpdateCount)
	require.NotNil(t, byID["inc-2"].ResolvedAt)
	assert.True(t, byID["inc-2"].ResolvedAt.Equal(resolvedAt))

	// Overwrite wholesale.
	snap.Status = domain.StatusOperational
	snap.Incidents = []domain.IncidentRecord{}
	require.NoError(t, repo.UpsertSnapshot(ctx, snap))

	snapshots, err = repo.GetAllSnapshots(ctx)
	require.NoError(t, err)
	got = snapshots["github"]
	assert.Equal(t, domain.StatusOperational, got.Status)
	require.NotNil(t, got.Incidents, "captured empty list must not come back as nil")
	assert.Empty(t, got.Incidents)
}

func TestRepository_SnapshotNilIncidents(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	snap := &domain.Snapshot{
		ServiceSlug: "slack",
		Status:      domain.StatusOperational,
		Incidents:   nil,
		SnapshotAt:  time.Now().UTC(),
	}
	require.NoError(t, repo.UpsertSnapshot(ctx, snap))

	snapshots, err := repo.GetAllSnapshots(ctx)
	require.NoError(t, err)
	require.Contains(t, snapshots, "slack")
	assert.Nil(t, snapshots["slack"].Incidents, "never-captured incident list survives as NULL")
}

func TestRepository_PendingLifecycle(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	base := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	enqueue := func(userID, slug string, eventType domain.EventType, at time.Time) string {
		id := uuid.NewString()
		require.NoError(t, repo.EnqueuePending(ctx, &domain.PendingEvent{
			ID:          id,
			UserID:      userID,
			ServiceSlug: slug,
			Event: domain.DetectedEvent{
				Type:        eventType,
				ServiceSlug: slug,
				ServiceName: "GitHub",
				OldStatus:   domain.StatusOperational,
				NewStatus:   domain.StatusDegraded,
			},
			CreatedAt: at,
		}))
		return id
	}

	id1 := enqueue("u1", "github", domain.EventDegraded, base)
	id2 := enqueue("u1", "github", domain.EventRecovery, base.Add(5*time.Minute))
	enqueue("u1", "slack", domain.EventDegraded, base)
	enqueue("u2", "github", domain.EventDegraded, base)

	total, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	pending, err := repo.DrainPendingFor(ctx, "u1", "github")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	// Insertion order by created_at, and the JSONB event roundtrips.
	assert.Equal(t, id1, pending[0].ID)
	assert.Equal(t, id2, pending[1].ID)
	assert.Equal(t, domain.EventDegraded, pending[0].Event.Type)
	assert.Equal(t, domain.StatusDegraded, pending[0].Event.NewStatus)

	// Drain does not delete; only ConfirmSend does.
	again, err := repo.DrainPendingFor(ctx, "u1", "github")
	require.NoError(t, err)
	assert.Len(t, again, 2)

	entry := &domain.AlertLogEntry{
		UserID:      "u1",
		ServiceSlug: "github",
		OldStatus:   domain.StatusDegraded,
		NewStatus:   domain.StatusOperational,
		EventType:   domain.EventRecovery,
		SentAt:      base.Add(10 * time.Minute),
	}
	require.NoError(t, repo.ConfirmSend(ctx, entry, []string{id1, id2}))

	empty, err := repo.DrainPendingFor(ctx, "u1", "github")
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Other pairs are untouched.
	other, err := repo.DrainPendingFor(ctx, "u1", "slack")
	require.NoError(t, err)
	assert.Len(t, other, 1)
	other, err = repo.DrainPendingFor(ctx, "u2", "github")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	total, err = repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestRepository_SendWindowCounts(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	logSend := func(userID, slug string, sentAt time.Time) {
		require.NoError(t, repo.ConfirmSend(ctx, &domain.AlertLogEntry{
			UserID:      userID,
			ServiceSlug: slug,
			EventType:   domain.EventMajorOutage,
			SentAt:      sentAt,
		}, nil))
	}

	logSend("u1", "github", now.Add(-10*time.Minute))
	logSend("u1", "github", now.Add(-45*time.Minute))
	logSend("u1", "slack", now.Add(-5*time.Minute))
	logSend("u1", "aws", now.Add(-2*time.Hour))
	logSend("u2", "github", now.Add(-1*time.Minute))

	pairCount, err := repo.CountUserServiceSendsSince(ctx, "u1", "github", now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, pairCount)

	userCount, err := repo.CountUserSendsSince(ctx, "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, userCount)

	// Boundary: sent_at strictly after since.
	exact, err := repo.CountUserServiceSendsSince(ctx, "u1", "github", now.Add(-10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, exact)
}

func TestRepository_ListSubscribers(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	_, err := testDB.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, email_address, severity_threshold) VALUES
			('u1', TRUE,  'u1@example.com', 'all'),
			('u2', FALSE, 'u2@example.com', 'major_only'),
			('u3', TRUE,  'u3@example.com', 'outages_only')
	`)
	require.NoError(t, err)

	_, err = testDB.Exec(ctx, `
		INSERT INTO user_services (user_id, service_slug, is_active) VALUES
			('u1', 'github', TRUE),
			('u1', 'slack',  TRUE),
			('u1', 'aws',    FALSE),
			('u2', 'github', TRUE)
	`)
	require.NoError(t, err)

	subscribers, err := repo.ListSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, subscribers, 3)

	byID := make(map[string]domain.Subscriber, len(subscribers))
	for _, sub := range subscribers {
		byID[sub.UserID] = sub
	}

	u1 := byID["u1"]
	assert.True(t, u1.EmailEnabled)
	assert.Equal(t, "u1@example.com", u1.EmailAddress)
	assert.Equal(t, "all", u1.SeverityThreshold)
	assert.ElementsMatch(t, []string{"github", "slack"}, u1.ActiveServices, "inactive services are excluded")

	u2 := byID["u2"]
	assert.False(t, u2.EmailEnabled)
	assert.Equal(t, []string{"github"}, u2.ActiveServices)

	u3 := byID["u3"]
	assert.Empty(t, u3.ActiveServices, "subscriber with no services still listed")
}

func TestRepository_ConfirmSendTransactional(t *testing.T) {
	truncateAll(t)
	ctx := context.Background()
	repo := alertingpostgres.NewRepository(testDB)

	id := uuid.NewString()
	require.NoError(t, repo.EnqueuePending(ctx, &domain.PendingEvent{
		ID:          id,
		UserID:      "u1",
		ServiceSlug: "github",
		Event:       domain.DetectedEvent{Type: domain.EventDegraded, ServiceSlug: "github"},
		CreatedAt:   time.Now().UTC(),
	}))

	// A malformed pending id makes the delete fail after the log insert;
	// the whole transaction must roll back.
	err := repo.ConfirmSend(ctx, &domain.AlertLogEntry{
		UserID:      "u1",
		ServiceSlug: "github",
		EventType:   domain.EventDegraded,
		SentAt:      time.Now().UTC(),
	}, []string{"not-a-uuid"})
	require.Error(t, err)

	count, err := repo.CountUserSendsSince(ctx, "u1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, count, "log insert rolled back with the failed delete")

	pending, err := repo.DrainPendingFor(ctx, "u1", "github")
	require.NoError(t, err)
	assert.Len(t, pending, 1, "pending row survives the rollback")
}
