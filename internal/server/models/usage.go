package models

import "time"

// UsageRecord is one append-only row per authorized request. Records are
// purged after a retention window; they are never updated.
type UsageRecord struct {
	ID            int64
	CredentialID  string
	Endpoint      string
	Method        string
	StatusCode    int
	LatencyMS     int64
	IP            string
	UserAgent     string
	RequestBytes  int64
	ResponseBytes int64
	CreatedAt     time.Time
}

// UsageWindowStats aggregates a credential's traffic over a trailing window
// for suspicious-activity scoring.
type UsageWindowStats struct {
	DistinctIPs    int
	DistinctAgents int
	Requests       int
	ErrorRate      float64
}
