package alerting

import (
	"strings"

	"github.com/stackalert/stackalert/internal/domain"
)

// Threshold is a user's resolved notification preference: the set of event
// types they want to hear about. The persisted string encoding (a legacy
// preset name or a comma-separated list) is parsed exactly once at the
// boundary; everything downstream operates on the resolved set.
type Threshold struct {
	raw   string
	types map[domain.EventType]struct{}
}

// Legacy preset names.
const (
	PresetAll         = "all"
	PresetOutagesOnly = "outages_only"
	PresetMajorOnly   = "major_only"
)

// ParseThreshold resolves a threshold string into a Threshold. Unknown or
// malformed values yield an empty set (nothing matches) rather than an
// error, so a corrupt preference row cannot block the pass.
func ParseThreshold(s string) Threshold {
	t := Threshold{raw: s, types: make(map[domain.EventType]struct{})}

	switch s {
	case PresetAll:
		for _, et := range domain.AllEventTypes {
			t.types[et] = struct{}{}
		}
	case PresetOutagesOnly:
		// Outage, incident and recovery types; no maintenance, no plain
		// incident updates.
		for _, et := range domain.AllEventTypes {
			switch et {
			case domain.EventMaintenance, domain.EventMaintenanceCompleted, domain.EventIncidentUpdate:
				continue
			}
			t.types[et] = struct{}{}
		}
	case PresetMajorOnly:
		for _, et := range []domain.EventType{
			domain.EventMajorOutage,
			domain.EventRecovery,
			domain.EventIncidentEscalated,
			domain.EventIncidentResolved,
		} {
			t.types[et] = struct{}{}
		}
	default:
		for _, name := range strings.Split(s, ",") {
			et := domain.EventType(strings.TrimSpace(name))
			if et.IsValid() {
				t.types[et] = struct{}{}
			}
		}
	}

	return t
}

// Allows reports whether the threshold includes the event type.
func (t Threshold) Allows(et domain.EventType) bool {
	_, ok := t.types[et]
	return ok
}

// Len returns the number of allowed event types.
func (t Threshold) Len() int {
	return len(t.types)
}

// String returns the original persisted encoding.
func (t Threshold) String() string {
	return t.raw
}
