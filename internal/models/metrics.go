package models

import "time"

// SystemMetrics is the aggregated runtime snapshot served to the
// dashboard alongside visitor and card stats.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	SMSSent                  uint64    `json:"sms_sent"`
	SMSFailed                uint64    `json:"sms_failed"`
	CheckIns                 uint64    `json:"check_ins"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
