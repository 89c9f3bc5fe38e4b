package statuspage

import (
	"time"

	"github.com/stackalert/stackalert/internal/domain"
)

// summaryResponse matches the JSON document served by statuspage-style
// status APIs (the /api/v2/summary.json shape).
type summaryResponse struct {
	Status struct {
		Indicator string `json:"indicator"`
	} `json:"status"`
	Components []componentPayload `json:"components"`
	Incidents  []incidentPayload  `json:"incidents"`
}

type componentPayload struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Group  bool   `json:"group"`
}

type incidentPayload struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	Impact          string          `json:"impact"`
	Shortlink       string          `json:"shortlink"`
	StartedAt       *time.Time      `json:"started_at"`
	ResolvedAt      *time.Time      `json:"resolved_at"`
	IncidentUpdates []updatePayload `json:"incident_updates"`
}

type updatePayload struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Body      string     `json:"body"`
	CreatedAt *time.Time `json:"created_at"`
}

// normalizeIndicator maps the vendor page-level indicator to a headline
// status. Unknown indicators are treated as operational so a malformed
// upstream payload cannot fabricate an outage.
func normalizeIndicator(indicator string) domain.ServiceStatus {
	switch indicator {
	case "none":
		return domain.StatusOperational
	case "minor":
		return domain.StatusDegraded
	case "major":
		return domain.StatusPartialOutage
	case "critical":
		return domain.StatusMajorOutage
	case "maintenance":
		return domain.StatusMaintenance
	}
	return domain.StatusOperational
}

// normalizeComponentStatus maps vendor component statuses.
func normalizeComponentStatus(status string) domain.ServiceStatus {
	switch status {
	case "operational":
		return domain.StatusOperational
	case "degraded_performance":
		return domain.StatusDegraded
	case "partial_outage":
		return domain.StatusPartialOutage
	case "major_outage":
		return domain.StatusMajorOutage
	case "under_maintenance":
		return domain.StatusMaintenance
	}
	return domain.StatusUnknown
}

func normalizeIncidentStatus(status string) domain.IncidentStatus {
	switch status {
	case "investigating":
		return domain.IncidentInvestigating
	case "identified":
		return domain.IncidentIdentified
	case "monitoring":
		return domain.IncidentMonitoring
	case "resolved":
		return domain.IncidentResolved
	case "postmortem":
		return domain.IncidentPostmortem
	}
	return domain.IncidentInvestigating
}

func normalizeImpact(impact string) domain.Impact {
	switch impact {
	case "none":
		return domain.ImpactNone
	case "minor":
		return domain.ImpactMinor
	case "major":
		return domain.ImpactMajor
	case "critical":
		return domain.ImpactCritical
	}
	return domain.ImpactNone
}

// normalize converts a raw summary document into the internal live view.
func normalize(svc Service, raw *summaryResponse, fetchedAt time.Time) *domain.LiveServiceStatus {
	live := &domain.LiveServiceStatus{
		Slug:      svc.Slug,
		Name:      svc.Name,
		Status:    normalizeIndicator(raw.Status.Indicator),
		FetchedAt: fetchedAt,
	}

	for _, c := range raw.Components {
		// Grouped parent components duplicate their children.
		if c.Group {
			continue
		}
		live.Components = append(live.Components, domain.Component{
			Name:   c.Name,
			Status: normalizeComponentStatus(c.Status),
		})
	}

	for _, inc := range raw.Incidents {
		summary := domain.IncidentSummary{
			ID:          inc.ID,
			Title:       inc.Name,
			Status:      normalizeIncidentStatus(inc.Status),
			Impact:      normalizeImpact(inc.Impact),
			UpdateCount: len(inc.IncidentUpdates),
			Shortlink:   inc.Shortlink,
			StartedAt:   inc.StartedAt,
			ResolvedAt:  inc.ResolvedAt,
		}
		if len(inc.IncidentUpdates) > 0 {
			// Updates arrive newest first.
			summary.LatestBody = inc.IncidentUpdates[0].Body
		}
		live.Incidents = append(live.Incidents, summary)
	}

	live.Status = deriveStatus(live.Status, live.Incidents)
	return live
}

// deriveStatus recomputes the headline status from the truly-active
// incidents. The worst active impact overrides a merely operational page
// indicator; incidents in monitoring or with no impact never escalate it.
func deriveStatus(indicated domain.ServiceStatus, incidents []domain.IncidentSummary) domain.ServiceStatus {
	worst := domain.ImpactNone
	for _, inc := range incidents {
		if !inc.IsTrulyActive() {
			continue
		}
		if inc.Impact.Rank() > worst.Rank() {
			worst = inc.Impact
		}
	}

	if worst == domain.ImpactNone {
		return indicated
	}

	// Deliberately never downgrades: when the page indicator is already
	// worse than what the active incidents imply, the indicator stands.
	// Vendors sometimes raise the indicator before filing the incident,
	// and masking that would hide the outage for a cycle.
	derived := worst.ToServiceStatus()
	if statusRank(derived) > statusRank(indicated) {
		return derived
	}
	return indicated
}

func statusRank(s domain.ServiceStatus) int {
	switch s {
	case domain.StatusMajorOutage:
		return 3
	case domain.StatusPartialOutage:
		return 2
	case domain.StatusDegraded:
		return 1
	}
	return 0
}
