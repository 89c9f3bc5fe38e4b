// Package detect turns a live status observation and the previous snapshot
// into an ordered list of typed events. It is pure: no clock, no I/O.
package detect

import (
	"sort"

	"github.com/stackalert/stackalert/internal/domain"
)

// Detect diffs the current live data against the previous snapshot and
// returns the resulting events sorted by priority. A nil prev (or a prev
// whose incident list was never captured) yields status-level events only,
// so the first observation of a service never manufactures incident history.
func Detect(live *domain.LiveServiceStatus, prev *domain.Snapshot) []domain.DetectedEvent {
	if live == nil {
		return nil
	}

	var events []domain.DetectedEvent

	if ev, ok := statusEvent(live, prev); ok {
		events = append(events, ev)
	}

	events = append(events, incidentEvents(live, prev)...)

	SortByPriority(events)
	return events
}

// statusEvent compares headline statuses. A service with no snapshot is
// assumed to have been operational.
func statusEvent(live *domain.LiveServiceStatus, prev *domain.Snapshot) (domain.DetectedEvent, bool) {
	oldStatus := domain.StatusOperational
	if prev != nil {
		oldStatus = prev.Status
	}

	if oldStatus == live.Status {
		return domain.DetectedEvent{}, false
	}

	eventType, ok := statusEventType(oldStatus, live.Status)
	if !ok {
		return domain.DetectedEvent{}, false
	}

	return domain.DetectedEvent{
		Type:        eventType,
		ServiceSlug: live.Slug,
		ServiceName: live.Name,
		OldStatus:   oldStatus,
		NewStatus:   live.Status,
	}, true
}

func statusEventType(oldStatus, newStatus domain.ServiceStatus) (domain.EventType, bool) {
	if newStatus == domain.StatusOperational {
		if oldStatus == domain.StatusMaintenance {
			return domain.EventMaintenanceCompleted, true
		}
		return domain.EventRecovery, true
	}

	switch newStatus {
	case domain.StatusDegraded:
		return domain.EventDegraded, true
	case domain.StatusPartialOutage:
		return domain.EventPartialOutage, true
	case domain.StatusMajorOutage:
		return domain.EventMajorOutage, true
	case domain.StatusMaintenance:
		return domain.EventMaintenance, true
	}

	// Unmapped statuses (including anything malformed from upstream)
	// produce no event.
	return "", false
}

// incidentEvents diffs the live incident list against the snapshot records.
// Each incident yields at most one event per cycle, checked in the order:
// new, resolved, escalated, de-escalated, updated.
func incidentEvents(live *domain.LiveServiceStatus, prev *domain.Snapshot) []domain.DetectedEvent {
	if prev == nil || prev.Incidents == nil {
		return nil
	}

	previous := prev.IncidentByID()

	var events []domain.DetectedEvent
	for _, inc := range live.Incidents {
		base := domain.DetectedEvent{
			ServiceSlug:    live.Slug,
			ServiceName:    live.Name,
			IncidentID:     inc.ID,
			IncidentTitle:  inc.Title,
			IncidentStatus: inc.Status,
			IncidentImpact: inc.Impact,
		}

		prevRec, seen := previous[inc.ID]
		if !seen {
			base.Type = domain.EventNewIncident
			events = append(events, base)
			continue
		}

		// Resolution is terminal: once the snapshot records the incident
		// as resolved, nothing further fires for that id.
		if prevRec.Status.IsResolved() {
			continue
		}

		if inc.Status.IsResolved() {
			base.Type = domain.EventIncidentResolved
			events = append(events, base)
			continue
		}

		if inc.Impact.Rank() > prevRec.Impact.Rank() {
			base.Type = domain.EventIncidentEscalated
			base.OldImpact = prevRec.Impact
			events = append(events, base)
			continue
		}

		if inc.Impact.Rank() < prevRec.Impact.Rank() {
			base.Type = domain.EventIncidentDeEscalated
			base.OldImpact = prevRec.Impact
			events = append(events, base)
			continue
		}

		if inc.UpdateCount > prevRec.UpdateCount {
			base.Type = domain.EventIncidentUpdate
			events = append(events, base)
		}
	}

	return events
}

// SortByPriority orders events by the fixed priority table. The sort is
// stable so equal-priority events keep their detection order.
func SortByPriority(events []domain.DetectedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Type.Priority() < events[j].Type.Priority()
	})
}
