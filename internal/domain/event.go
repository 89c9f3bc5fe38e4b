package domain

// EventType classifies a detected state transition.
type EventType string

// Event types.
const (
	EventDegraded             EventType = "degraded"
	EventPartialOutage        EventType = "partial_outage"
	EventMajorOutage          EventType = "major_outage"
	EventMaintenance          EventType = "maintenance"
	EventRecovery             EventType = "recovery"
	EventMaintenanceCompleted EventType = "maintenance_completed"
	EventNewIncident          EventType = "new_incident"
	EventIncidentUpdate       EventType = "incident_update"
	EventIncidentResolved     EventType = "incident_resolved"
	EventIncidentEscalated    EventType = "incident_escalated"
	EventIncidentDeEscalated  EventType = "incident_de_escalated"
)

// AllEventTypes lists every event type. Kept in sync with the constants
// above; the priority table test fails if a type is missing a rank.
var AllEventTypes = []EventType{
	EventDegraded,
	EventPartialOutage,
	EventMajorOutage,
	EventMaintenance,
	EventRecovery,
	EventMaintenanceCompleted,
	EventNewIncident,
	EventIncidentUpdate,
	EventIncidentResolved,
	EventIncidentEscalated,
	EventIncidentDeEscalated,
}

// priorityOrder ranks event types for display and send ordering.
// Lower index = higher priority.
var priorityOrder = []EventType{
	EventMajorOutage,
	EventPartialOutage,
	EventIncidentEscalated,
	EventNewIncident,
	EventDegraded,
	EventIncidentUpdate,
	EventIncidentDeEscalated,
	EventMaintenance,
	EventIncidentResolved,
	EventRecovery,
	EventMaintenanceCompleted,
}

var eventPriority = func() map[EventType]int {
	m := make(map[EventType]int, len(priorityOrder))
	for i, t := range priorityOrder {
		m[t] = i
	}
	return m
}()

// Priority returns the ordering rank of the event type. Types without an
// assigned rank sort last; the domain test suite asserts every declared
// type has one.
func (t EventType) Priority() int {
	if p, ok := eventPriority[t]; ok {
		return p
	}
	return len(priorityOrder)
}

// IsValid checks if the event type is one of the declared types.
func (t EventType) IsValid() bool {
	_, ok := eventPriority[t]
	return ok
}

// DetectedEvent is a single typed state transition produced by the detector.
// Status-level events carry OldStatus/NewStatus; incident-level events carry
// the Incident* fields.
type DetectedEvent struct {
	Type           EventType      `json:"type"`
	ServiceSlug    string         `json:"service_slug"`
	ServiceName    string         `json:"service_name"`
	OldStatus      ServiceStatus  `json:"old_status,omitempty"`
	NewStatus      ServiceStatus  `json:"new_status,omitempty"`
	IncidentID     string         `json:"incident_id,omitempty"`
	IncidentTitle  string         `json:"incident_title,omitempty"`
	IncidentStatus IncidentStatus `json:"incident_status,omitempty"`
	IncidentImpact Impact         `json:"incident_impact,omitempty"`
	OldImpact      Impact         `json:"old_impact,omitempty"`
}

// IsStatusLevel reports whether the event describes a headline status
// transition rather than an incident lifecycle change.
func (e DetectedEvent) IsStatusLevel() bool {
	switch e.Type {
	case EventDegraded, EventPartialOutage, EventMajorOutage,
		EventMaintenance, EventRecovery, EventMaintenanceCompleted:
		return true
	}
	return false
}
