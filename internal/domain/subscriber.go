package domain

import "time"

// Subscriber is the read-only view of one user's notification preference
// plus the set of services they actively monitor. Account and plan data are
// owned elsewhere; the pipeline only consumes this projection.
type Subscriber struct {
	UserID            string
	EmailEnabled      bool
	EmailAddress      string
	SeverityThreshold string
	// ActiveServices holds the slugs this user monitors and that their plan
	// keeps active. Frozen or over-limit services are already excluded.
	ActiveServices []string
}

// MonitorsService reports whether the subscriber's active stack includes
// the given service.
func (s *Subscriber) MonitorsService(slug string) bool {
	for _, active := range s.ActiveServices {
		if active == slug {
			return true
		}
	}
	return false
}

// PendingEvent is an event that was detected but suppressed by the rate
// limiter, held for the "while you were away" recap of the next
// successful send to the same (user, service) pair.
type PendingEvent struct {
	ID          string
	UserID      string
	ServiceSlug string
	Event       DetectedEvent
	CreatedAt   time.Time
}

// AlertLogEntry is one row of the append-only send ledger. It doubles as
// the audit trail and the rate limiter's source of truth.
type AlertLogEntry struct {
	UserID      string
	ServiceSlug string
	OldStatus   ServiceStatus
	NewStatus   ServiceStatus
	EventType   EventType
	SentAt      time.Time
}
