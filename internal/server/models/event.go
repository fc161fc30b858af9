package models

import "time"

// SecurityEvent kinds recorded by the authorization gate.
const (
	EventSuspiciousActivity   = "suspicious_activity"
	EventPermissionDenied     = "permission_denied"
	EventIPViolation          = "ip_violation"
	EventBlockedAccessAttempt = "blocked_access_attempt"
)

// SecurityEvent is an append-only audit entry keyed by credential id. The
// core never mutates or deletes these rows.
type SecurityEvent struct {
	ID           string
	CredentialID string
	Kind         string
	// Metadata is free-form structured context, stored as JSON.
	Metadata  map[string]any
	CreatedAt time.Time
}
