// Package models defines server-side data models persisted in the database.
package models

import "time"

// Credential tiers. The tier decides the active-key ceiling and which
// object-storage target signed uploads go to.
const (
	TierStandard = "standard"
	TierElevated = "elevated"
	TierGuest    = "guest"
)

// Credential describes one issued API key. The raw secret is never stored;
// only its slow hash and a short non-secret prefix used to narrow lookups.
type Credential struct {
	// ID is the stable identity of the key. Rotation keeps it.
	ID string
	// Name is the owner-chosen display name.
	Name string
	// OwnerID references the owning principal.
	OwnerID string
	// Tier is one of TierStandard, TierElevated, TierGuest.
	Tier string

	// KeyHash is the encoded argon2id hash of the secret.
	KeyHash string
	// KeyPrefix is the scheme tag plus the first characters of the secret
	// body. It is a database index, not a security boundary.
	KeyPrefix string

	// Permissions grants actions; see Permissions.Allows.
	Permissions Permissions
	// RateLimit is the per-minute request budget.
	RateLimit int

	// AllowedIPs restricts callers when non-empty. Entries are exact IPs or
	// CIDR ranges. Empty means all IPs are permitted.
	AllowedIPs []string

	ExpiresAt *time.Time
	IsActive  bool

	IsBlocked    bool
	BlockedUntil *time.Time

	LastUsedAt *time.Time
	LastUsedIP string
	UsageCount int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the credential has an expiry in the past relative
// to now.
func (c *Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// BlockedAt reports whether the credential is blocked at the given instant.
// A nil BlockedUntil with IsBlocked set means a manual, open-ended block.
func (c *Credential) BlockedAt(now time.Time) bool {
	if !c.IsBlocked {
		return false
	}
	if c.BlockedUntil == nil {
		return true
	}
	return now.Before(*c.BlockedUntil)
}
