package domain

import "time"

// IncidentRecord is the persisted shape of one incident inside a snapshot.
type IncidentRecord struct {
	ID          string         `json:"id"`
	Status      IncidentStatus `json:"status"`
	Impact      Impact         `json:"impact"`
	UpdateCount int            `json:"update_count"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}

// Snapshot is the last-observed state for one service, used as the diff
// baseline. A nil Incidents slice means the incident list was never
// captured, which disables incident-level diffing for one cycle.
type Snapshot struct {
	ServiceSlug string           `json:"service_slug"`
	Status      ServiceStatus    `json:"status"`
	Incidents   []IncidentRecord `json:"incidents"`
	SnapshotAt  time.Time        `json:"snapshot_at"`
}

// IncidentByID builds a lookup map over the snapshot's incident records.
func (s *Snapshot) IncidentByID() map[string]IncidentRecord {
	if s == nil || s.Incidents == nil {
		return nil
	}
	m := make(map[string]IncidentRecord, len(s.Incidents))
	for _, rec := range s.Incidents {
		m[rec.ID] = rec
	}
	return m
}
