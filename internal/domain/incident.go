package domain

import "time"

// IncidentStatus represents the lifecycle status of an upstream incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentIdentified    IncidentStatus = "identified"
	IncidentMonitoring    IncidentStatus = "monitoring"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentPostmortem    IncidentStatus = "postmortem"
)

// IsResolved reports whether the status is terminal.
func (s IncidentStatus) IsResolved() bool {
	return s == IncidentResolved || s == IncidentPostmortem
}

// Impact represents the severity rank of an incident.
type Impact string

// Impact levels, ordered NONE < MINOR < MAJOR < CRITICAL.
const (
	ImpactNone     Impact = "none"
	ImpactMinor    Impact = "minor"
	ImpactMajor    Impact = "major"
	ImpactCritical Impact = "critical"
)

// Rank returns the ordering rank of an impact. Unknown impacts rank below
// none so they never escalate anything.
func (i Impact) Rank() int {
	switch i {
	case ImpactNone:
		return 0
	case ImpactMinor:
		return 1
	case ImpactMajor:
		return 2
	case ImpactCritical:
		return 3
	}
	return -1
}

// ToServiceStatus maps an incident impact to the headline status it implies.
func (i Impact) ToServiceStatus() ServiceStatus {
	switch i {
	case ImpactCritical:
		return StatusMajorOutage
	case ImpactMajor:
		return StatusPartialOutage
	case ImpactMinor:
		return StatusDegraded
	}
	return StatusOperational
}

// IncidentSummary is one upstream incident as observed in a single poll.
// Identity across polls is the upstream-assigned ID.
type IncidentSummary struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Status      IncidentStatus `json:"status"`
	Impact      Impact         `json:"impact"`
	UpdateCount int            `json:"update_count"`
	LatestBody  string         `json:"latest_body,omitempty"`
	Shortlink   string         `json:"shortlink,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// IsTrulyActive reports whether the incident should affect the headline
// status: unresolved, not in monitoring, and with a real impact.
func (i IncidentSummary) IsTrulyActive() bool {
	return !i.Status.IsResolved() && i.Status != IncidentMonitoring && i.Impact != ImpactNone
}

// LiveServiceStatus is the normalized view of one service's status page for
// a single poll. It is ephemeral and never persisted verbatim.
type LiveServiceStatus struct {
	Slug       string            `json:"slug"`
	Name       string            `json:"name"`
	Status     ServiceStatus     `json:"status"`
	Incidents  []IncidentSummary `json:"incidents"`
	Components []Component       `json:"components"`
	FetchedAt  time.Time         `json:"fetched_at"`
}
