// Package domain contains the core types shared across the monitoring pipeline.
package domain

// ServiceStatus represents the headline operational status of a service.
type ServiceStatus string

// Service statuses.
const (
	StatusOperational   ServiceStatus = "operational"
	StatusDegraded      ServiceStatus = "degraded"
	StatusPartialOutage ServiceStatus = "partial_outage"
	StatusMajorOutage   ServiceStatus = "major_outage"
	StatusMaintenance   ServiceStatus = "maintenance"

	// StatusUnknown is used for components whose vendor status does not map
	// to any known value. It never appears as a headline status.
	StatusUnknown ServiceStatus = "unknown"
)

// IsValid checks if the status is a valid headline status.
func (s ServiceStatus) IsValid() bool {
	switch s {
	case StatusOperational, StatusDegraded, StatusPartialOutage,
		StatusMajorOutage, StatusMaintenance:
		return true
	}
	return false
}

// Component represents a single component on an upstream status page.
type Component struct {
	Name   string        `json:"name"`
	Status ServiceStatus `json:"status"`
}
