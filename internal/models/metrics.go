package models

import "time"

// SystemMetrics is the lightweight snapshot exposed on the dashboard
// endpoint, aggregated outside Prometheus for cheap JSON serving.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	AssignmentTransitions    uint64    `json:"assignment_transitions"`
	Handoffs                 uint64    `json:"handoffs"`
	TicketsOpened            uint64    `json:"tickets_opened"`
	TicketsResolved          uint64    `json:"tickets_resolved"`
	TicketsBreached          uint64    `json:"tickets_breached"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
