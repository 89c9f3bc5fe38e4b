package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/stackalert/stackalert/internal/domain"
)

// mockRepository is an in-memory Repository for pipeline unit tests.
type mockRepository struct {
	mu sync.Mutex

	snapshots   map[string]*domain.Snapshot
	subscribers []domain.Subscriber
	pending     []domain.PendingEvent
	log         []domain.AlertLogEntry

	snapshotsErr   error
	subscribersErr error
	enqueueErr     error
	drainErr       error
	confirmErr     error

	upserted []*domain.Snapshot
}

func newMockRepository() *mockRepository {
	return &mockRepository{snapshots: make(map[string]*domain.Snapshot)}
}

func (m *mockRepository) GetAllSnapshots(_ context.Context) (map[string]*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotsErr != nil {
		return nil, m.snapshotsErr
	}
	out := make(map[string]*domain.Snapshot, len(m.snapshots))
	for k, v := range m.snapshots {
		out[k] = v
	}
	return out, nil
}

func (m *mockRepository) UpsertSnapshot(_ context.Context, snapshot *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.ServiceSlug] = snapshot
	m.upserted = append(m.upserted, snapshot)
	return nil
}

func (m *mockRepository) ListSubscribers(_ context.Context) ([]domain.Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribersErr != nil {
		return nil, m.subscribersErr
	}
	return m.subscribers, nil
}

func (m *mockRepository) EnqueuePending(_ context.Context, pending *domain.PendingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.pending = append(m.pending, *pending)
	return nil
}

func (m *mockRepository) DrainPendingFor(_ context.Context, userID, serviceSlug string) ([]domain.PendingEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.drainErr != nil {
		return nil, m.drainErr
	}
	var out []domain.PendingEvent
	for _, pe := range m.pending {
		if pe.UserID == userID && pe.ServiceSlug == serviceSlug {
			out = append(out, pe)
		}
	}
	return out, nil
}

func (m *mockRepository) CountPending(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending), nil
}

func (m *mockRepository) CountUserServiceSendsSince(_ context.Context, userID, serviceSlug string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.log {
		if entry.UserID == userID && entry.ServiceSlug == serviceSlug && entry.SentAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) CountUserSendsSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.log {
		if entry.UserID == userID && entry.SentAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (m *mockRepository) ConfirmSend(_ context.Context, entry *domain.AlertLogEntry, pendingIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confirmErr != nil {
		return m.confirmErr
	}
	m.log = append(m.log, *entry)

	drop := make(map[string]bool, len(pendingIDs))
	for _, id := range pendingIDs {
		drop[id] = true
	}
	kept := m.pending[:0]
	for _, pe := range m.pending {
		if !drop[pe.ID] {
			kept = append(kept, pe)
		}
	}
	m.pending = kept
	return nil
}

func (m *mockRepository) pendingFor(userID, serviceSlug string) []domain.PendingEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingEvent
	for _, pe := range m.pending {
		if pe.UserID == userID && pe.ServiceSlug == serviceSlug {
			out = append(out, pe)
		}
	}
	return out
}

// mockSender records sends and optionally fails.
type mockSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  error
	delay time.Duration
}

type sentMessage struct {
	To  string
	Msg *Message
}

func (s *mockSender) Send(_ context.Context, to string, msg *Message) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.sent = append(s.sent, sentMessage{To: to, Msg: msg})
	return nil
}

func (s *mockSender) sentTo() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}
