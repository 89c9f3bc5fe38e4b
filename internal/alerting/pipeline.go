package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackalert/stackalert/internal/detect"
	"github.com/stackalert/stackalert/internal/domain"
	"github.com/stackalert/stackalert/internal/statuspage"
)

// resolvedRetention is how long a resolved incident id stays in the
// snapshot before being pruned. Within this window a stale upstream
// re-listing of the id cannot re-fire events for it.
const resolvedRetention = 24 * time.Hour

// Sender delivers a composed message to one recipient.
type Sender interface {
	Send(ctx context.Context, to string, msg *Message) error
}

// Pipeline is the per-cycle orchestrator: fetch, detect, filter, throttle,
// compose, send, log. It is the only component with side effects.
type Pipeline struct {
	client   *statuspage.Client
	repo     Repository
	composer *Composer
	sender   Sender
	limiter  *RateLimiter
	now      func() time.Time
}

// NewPipeline creates the alert pipeline.
func NewPipeline(client *statuspage.Client, repo Repository, composer *Composer, sender Sender) *Pipeline {
	return &Pipeline{
		client:   client,
		repo:     repo,
		composer: composer,
		sender:   sender,
		limiter:  NewRateLimiter(repo),
		now:      time.Now,
	}
}

// RunSummary reports the outcome of one full pass.
type RunSummary struct {
	Checked        int            `json:"checked"`
	Events         int            `json:"events"`
	EmailsSent     int            `json:"emailsSent"`
	PendingFlushed int            `json:"pendingFlushed"`
	Errors         int            `json:"errors"`
	DetectedEvents []EventSummary `json:"detectedEvents"`
}

// EventSummary is the compact per-event entry in the trigger response.
type EventSummary struct {
	Slug     string           `json:"slug"`
	Type     domain.EventType `json:"type"`
	From     string           `json:"from,omitempty"`
	To       string           `json:"to,omitempty"`
	Incident string           `json:"incident,omitempty"`
}

// Run executes one pass over all configured services. Subscriber and
// snapshot data are bulk-preloaded so per-service processing issues no
// N+1 queries; services are then processed concurrently since each owns
// its snapshot row.
func (p *Pipeline) Run(ctx context.Context, services []statuspage.Service) (*RunSummary, error) {
	start := p.now()

	snapshots, err := p.repo.GetAllSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	subscribers, err := p.repo.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	live := p.client.FetchAll(ctx, services)

	summary := &RunSummary{Checked: len(services)}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, svc := range services {
		wg.Add(1)
		go func(svc statuspage.Service) {
			defer wg.Done()

			result, err := p.ProcessServiceEvents(ctx, live[svc.Slug], snapshots[svc.Slug], subscribers)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Error("service processing failed", "service", svc.Slug, "error", err)
				summary.Errors++
			}
			if result != nil {
				summary.Events += len(result.Events)
				summary.EmailsSent += result.EmailsSent
				summary.PendingFlushed += result.PendingFlushed
				summary.Errors += result.Errors
				for _, ev := range result.Events {
					summary.DetectedEvents = append(summary.DetectedEvents, EventSummary{
						Slug:     ev.ServiceSlug,
						Type:     ev.Type,
						From:     string(ev.OldStatus),
						To:       string(ev.NewStatus),
						Incident: ev.IncidentID,
					})
				}
			}
		}(svc)
	}
	wg.Wait()

	recordPass(p.now().Sub(start))

	slog.Info("poll pass complete",
		"checked", summary.Checked,
		"events", summary.Events,
		"emails_sent", summary.EmailsSent,
		"pending_flushed", summary.PendingFlushed,
		"errors", summary.Errors,
		"duration", p.now().Sub(start),
	)

	return summary, nil
}

// ServiceResult is the outcome of processing one service in one cycle.
// Errors counts subscriber-level failures (rate-limit lookup, enqueue,
// send, ledger write) that did not stop the rest of the service's
// subscribers from being processed.
type ServiceResult struct {
	Events         []domain.DetectedEvent
	EmailsSent     int
	PendingFlushed int
	Errors         int
}

// ProcessServiceEvents runs the detect-filter-throttle-send sequence for
// one service and always writes the fresh snapshot afterwards, so the
// baseline stays current even when nothing alert-worthy happened.
func (p *Pipeline) ProcessServiceEvents(ctx context.Context, live *domain.LiveServiceStatus, prev *domain.Snapshot, subscribers []domain.Subscriber) (*ServiceResult, error) {
	if live == nil {
		return nil, fmt.Errorf("no live data")
	}

	events := detect.Detect(live, prev)
	result := &ServiceResult{Events: events}

	for _, ev := range events {
		recordEventDetected(ev.Type)
	}

	if len(events) > 0 {
		// Subscribers within one service are processed sequentially so the
		// rate limiter check and the log insert cannot race into a
		// double-send.
		for _, event := range events {
			for i := range subscribers {
				sub := &subscribers[i]
				sent, flushed, err := p.notifySubscriber(ctx, sub, event, live)
				// A delivered email counts even when the ledger write
				// afterwards failed.
				if sent {
					result.EmailsSent++
					result.PendingFlushed += flushed
				}
				if err != nil {
					slog.Error("subscriber notification failed",
						"service", live.Slug,
						"user_id", sub.UserID,
						"event_type", event.Type,
						"error", err,
					)
					result.Errors++
				}
			}
		}
	}

	snapshot := p.buildSnapshot(live, prev)
	if err := p.repo.UpsertSnapshot(ctx, snapshot); err != nil {
		return result, fmt.Errorf("upsert snapshot: %w", err)
	}

	return result, nil
}

// notifySubscriber applies the per-subscriber gates for one event and
// either sends immediately or queues the event for the next recap.
func (p *Pipeline) notifySubscriber(ctx context.Context, sub *domain.Subscriber, event domain.DetectedEvent, live *domain.LiveServiceStatus) (sent bool, flushed int, err error) {
	if !sub.MonitorsService(event.ServiceSlug) {
		return false, 0, nil
	}
	if !sub.EmailEnabled || sub.EmailAddress == "" {
		return false, 0, nil
	}
	if !ParseThreshold(sub.SeverityThreshold).Allows(event.Type) {
		return false, 0, nil
	}

	allowed, err := p.limiter.CanSend(ctx, sub.UserID, event.ServiceSlug)
	if err != nil {
		return false, 0, fmt.Errorf("rate limit check: %w", err)
	}

	if !allowed {
		pending := &domain.PendingEvent{
			ID:          uuid.NewString(),
			UserID:      sub.UserID,
			ServiceSlug: event.ServiceSlug,
			Event:       event,
			CreatedAt:   p.now(),
		}
		if err := p.repo.EnqueuePending(ctx, pending); err != nil {
			return false, 0, fmt.Errorf("enqueue pending: %w", err)
		}
		recordRateLimited()
		return false, 0, nil
	}

	recap, err := p.repo.DrainPendingFor(ctx, sub.UserID, event.ServiceSlug)
	if err != nil {
		return false, 0, fmt.Errorf("drain pending: %w", err)
	}

	msg, err := p.composer.Compose(ComposeInput{
		Event: event,
		Live:  live,
		Recap: recap,
		Now:   p.now(),
	})
	if err != nil {
		return false, 0, fmt.Errorf("compose: %w", err)
	}

	start := p.now()
	if err := p.sender.Send(ctx, sub.EmailAddress, msg); err != nil {
		// The log row is not inserted and pending rows stay put, so the
		// same event is retried or recapped next cycle.
		recordEmailSent("failed")
		return false, 0, fmt.Errorf("send email: %w", err)
	}
	observeSendDuration(p.now().Sub(start))

	pendingIDs := make([]string, len(recap))
	for i, pe := range recap {
		pendingIDs[i] = pe.ID
	}

	entry := &domain.AlertLogEntry{
		UserID:      sub.UserID,
		ServiceSlug: event.ServiceSlug,
		OldStatus:   event.OldStatus,
		NewStatus:   event.NewStatus,
		EventType:   event.Type,
		SentAt:      p.now(),
	}
	if err := p.repo.ConfirmSend(ctx, entry, pendingIDs); err != nil {
		// The email went out but the ledger write failed. At-least-once:
		// the pending backlog survives and may be recapped again.
		return true, 0, fmt.Errorf("confirm send: %w", err)
	}

	recordEmailSent("success")
	return true, len(recap), nil
}

// buildSnapshot folds the live observation into a fresh snapshot,
// carrying forward recently resolved incident records so a resolved
// incident cannot re-fire, and pruning them after the retention window.
func (p *Pipeline) buildSnapshot(live *domain.LiveServiceStatus, prev *domain.Snapshot) *domain.Snapshot {
	now := p.now()
	records := make([]domain.IncidentRecord, 0, len(live.Incidents))
	seen := make(map[string]bool, len(live.Incidents))

	for _, inc := range live.Incidents {
		rec := domain.IncidentRecord{
			ID:          inc.ID,
			Status:      inc.Status,
			Impact:      inc.Impact,
			UpdateCount: inc.UpdateCount,
			ResolvedAt:  inc.ResolvedAt,
		}
		if inc.Status.IsResolved() && rec.ResolvedAt == nil {
			resolvedAt := now
			rec.ResolvedAt = &resolvedAt
		}
		records = append(records, rec)
		seen[inc.ID] = true
	}

	// Carry forward resolved incidents that upstream no longer lists, for
	// the retention window.
	if prev != nil {
		for _, rec := range prev.Incidents {
			if seen[rec.ID] || !rec.Status.IsResolved() {
				continue
			}
			if rec.ResolvedAt != nil && now.Sub(*rec.ResolvedAt) < resolvedRetention {
				records = append(records, rec)
			}
		}
	}

	return &domain.Snapshot{
		ServiceSlug: live.Slug,
		Status:      live.Status,
		Incidents:   records,
		SnapshotAt:  now,
	}
}
