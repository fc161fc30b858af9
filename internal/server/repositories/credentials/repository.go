// Package credentials persists API key credentials and their metadata.
package credentials

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/server/models"
)

// Repository is the credential store contract. Implementations must never
// persist raw secrets, only their hashes.
type Repository interface {
	Create(ctx context.Context, c *models.Credential) error
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	// FindActiveByPrefix returns active, non-expired candidates sharing the
	// given prefix. The prefix index keeps the candidate set O(few).
	FindActiveByPrefix(ctx context.Context, prefix string, now time.Time) ([]*models.Credential, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Credential, error)
	CountActiveByOwner(ctx context.Context, ownerID string) (int, error)
	// ReplaceSecret swaps hash/prefix on rotation and resets usage counters
	// and last-used metadata. Identity and permissions are untouched.
	ReplaceSecret(ctx context.Context, id, keyHash, keyPrefix string) error
	// Deactivate soft-deletes the credential. History is retained.
	Deactivate(ctx context.Context, id string) error
	Block(ctx context.Context, id string, until time.Time) error
	Unblock(ctx context.Context, id string) error
	// UpdateSettings edits permissions, rate limit and the IP allow-list.
	UpdateSettings(ctx context.Context, id string, perms models.Permissions, rateLimit int, allowedIPs []string) error
	// TouchUsage bumps last-used timestamp/IP and the usage counter.
	TouchUsage(ctx context.Context, id, ip string, at time.Time) error
}
