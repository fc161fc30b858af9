// Package keys implements API key management: generation, hashing, creation
// ceilings, rotation, revocation, and secret-to-credential lookup.
package keys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	// SchemeTag prefixes every issued secret so keys are recognizable in
	// configs and logs without revealing anything.
	SchemeTag = "ffk_"
	// prefixBodyLen is how many characters of the secret body form the
	// lookup prefix. A DB index hint, not a security boundary.
	prefixBodyLen = 8
	// secretBytes of entropy per secret (hex-encoded to twice as many chars).
	secretBytes = 32

	touchTimeout = 5 * time.Second
)

// Config bounds how many active keys a principal may hold per tier.
type Config struct {
	MaxActiveKeysStandard int
	MaxActiveKeysElevated int
}

// CreateOptions are the owner-supplied settings for a new key.
type CreateOptions struct {
	Name        string
	Permissions *models.Permissions
	RateLimit   int
	ExpiresAt   *time.Time
	AllowedIPs  []string
}

// CreatedKey carries the plaintext secret exactly once, at creation or
// rotation time. It is never retrievable again.
type CreatedKey struct {
	Credential *models.Credential
	Secret     string
}

// Manager owns the credential lifecycle.
type Manager struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	clock  clockx.Clock
	logger logging.Logger
	cfg    Config
}

// NewManager constructs a Manager with injected store, clock, and logger.
func NewManager(db *sql.DB, rm repomanager.RepositoryManager, clock clockx.Clock, logger logging.Logger, cfg Config) *Manager {
	return &Manager{db: db, rm: rm, clock: clock, logger: logger, cfg: cfg}
}

// Generate produces a new random secret and its lookup prefix.
func Generate() (secret, prefix string, err error) {
	body, err := common.MakeRandHexString(secretBytes)
	if err != nil {
		return "", "", fmt.Errorf("secret generation: %w", err)
	}
	secret = SchemeTag + body
	return secret, secret[:len(SchemeTag)+prefixBodyLen], nil
}

// PrefixOf extracts the lookup prefix from a presented secret. The second
// return is false when the secret is malformed.
func PrefixOf(secret string) (string, bool) {
	if !strings.HasPrefix(secret, SchemeTag) || len(secret) < len(SchemeTag)+prefixBodyLen {
		return "", false
	}
	return secret[:len(SchemeTag)+prefixBodyLen], true
}

func (m *Manager) ceiling(tier string) int {
	if tier == models.TierElevated {
		return m.cfg.MaxActiveKeysElevated
	}
	return m.cfg.MaxActiveKeysStandard
}

// Create issues a new credential for the owner, subject to the per-tier
// active-key ceiling. The plaintext secret is returned once.
func (m *Manager) Create(ctx context.Context, ownerID, tier string, opts CreateOptions) (*CreatedKey, error) {
	repo := m.rm.Credentials(m.db)

	n, err := repo.CountActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("counting active keys: %w", err)
	}
	if n >= m.ceiling(tier) {
		return nil, common.ErrLimitExceeded
	}

	secret, prefix, err := Generate()
	if err != nil {
		return nil, err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}

	perms := models.DefaultPermissions()
	if opts.Permissions != nil {
		perms = *opts.Permissions
	}
	rateLimit := opts.RateLimit
	if rateLimit <= 0 {
		rateLimit = 60
	}

	now := m.clock.Now()
	cred := &models.Credential{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		OwnerID:     ownerID,
		Tier:        tier,
		KeyHash:     hash,
		KeyPrefix:   prefix,
		Permissions: perms,
		RateLimit:   rateLimit,
		AllowedIPs:  opts.AllowedIPs,
		ExpiresAt:   opts.ExpiresAt,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, cred); err != nil {
		return nil, fmt.Errorf("creating credential: %w", err)
	}

	return &CreatedKey{Credential: cred, Secret: secret}, nil
}

// Rotate replaces the secret of an owned credential, keeping its identity,
// permissions, and limits while resetting usage counters and last-used
// metadata. The new plaintext secret is returned once.
func (m *Manager) Rotate(ctx context.Context, id, ownerID string) (*CreatedKey, error) {
	repo := m.rm.Credentials(m.db)

	cred, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cred.OwnerID != ownerID {
		return nil, common.ErrorUnauthorized
	}

	secret, prefix, err := Generate()
	if err != nil {
		return nil, err
	}
	hash, err := HashSecret(secret)
	if err != nil {
		return nil, err
	}

	if err := repo.ReplaceSecret(ctx, id, hash, prefix); err != nil {
		return nil, fmt.Errorf("rotating credential: %w", err)
	}

	cred.KeyHash = hash
	cred.KeyPrefix = prefix
	cred.UsageCount = 0
	cred.LastUsedAt = nil
	cred.LastUsedIP = ""
	return &CreatedKey{Credential: cred, Secret: secret}, nil
}

// Revoke deactivates an owned credential. Usage history is retained.
func (m *Manager) Revoke(ctx context.Context, id, ownerID string) error {
	repo := m.rm.Credentials(m.db)

	cred, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred.OwnerID != ownerID {
		return common.ErrorUnauthorized
	}
	return repo.Deactivate(ctx, id)
}

// ListByOwner returns the owner's credentials, hashes included only for
// internal use; callers must not expose KeyHash.
func (m *Manager) ListByOwner(ctx context.Context, ownerID string) ([]*models.Credential, error) {
	return m.rm.Credentials(m.db).ListByOwner(ctx, ownerID)
}

// UpdateSettings edits permissions, rate limit, and the IP allow-list of an
// owned credential.
func (m *Manager) UpdateSettings(ctx context.Context, id, ownerID string, perms models.Permissions, rateLimit int, allowedIPs []string) error {
	repo := m.rm.Credentials(m.db)

	cred, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if cred.OwnerID != ownerID {
		return common.ErrorUnauthorized
	}
	return repo.UpdateSettings(ctx, id, perms, rateLimit, allowedIPs)
}

// Lookup resolves a presented secret to its credential. Candidates are
// narrowed by prefix and verified against their hashes; the first match wins.
// On a match, last-used metadata and the usage counter are bumped off the
// caller's response path. ErrInvalidKey covers no-match, expired, inactive,
// and malformed secrets alike.
func (m *Manager) Lookup(ctx context.Context, secret, callerIP string) (*models.Credential, error) {
	prefix, ok := PrefixOf(secret)
	if !ok {
		return nil, common.ErrInvalidKey
	}

	repo := m.rm.Credentials(m.db)
	candidates, err := repo.FindActiveByPrefix(ctx, prefix, m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("candidate lookup: %w", err)
	}

	for _, cand := range candidates {
		if VerifySecret(secret, cand.KeyHash) {
			m.touchAsync(cand.ID, callerIP)
			return cand, nil
		}
	}
	return nil, common.ErrInvalidKey
}

// touchAsync bumps last-used/usage counters without blocking the caller.
func (m *Manager) touchAsync(id, ip string) {
	now := m.clock.Now()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := m.rm.Credentials(m.db).TouchUsage(ctx, id, ip, now); err != nil {
			m.logger.Warn(ctx, "usage touch failed", "credential_id", id, "error", err)
		}
	}()
}
