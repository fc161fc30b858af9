// Package gate implements the authorization decision engine: credential
// lookup, block checks, IP allow-list checks, permission resolution, and
// suspicious-activity scoring.
package gate

import (
	"context"
	"database/sql"
	"net"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/cache"
	"github.com/fileforge/fileforge/internal/server/keys"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Config carries the tunable gate parameters. The defaults mirror long-used
// production values but are configuration, not law.
type Config struct {
	BlockStatusTTL     time.Duration
	ScoreTTL           time.Duration
	ScoreWindow        time.Duration
	BlockCooldown      time.Duration
	MaxDistinctIPs     int
	MaxDistinctAgents  int
	MaxRequests        int
	MaxErrorRate       float64
	SuspicionThreshold int
}

// DefaultConfig returns the standard gate tuning.
func DefaultConfig() Config {
	return Config{
		BlockStatusTTL:     time.Minute,
		ScoreTTL:           5 * time.Minute,
		ScoreWindow:        time.Hour,
		BlockCooldown:      30 * time.Minute,
		MaxDistinctIPs:     10,
		MaxDistinctAgents:  5,
		MaxRequests:        500,
		MaxErrorRate:       0.5,
		SuspicionThreshold: 5,
	}
}

// UsageSink receives post-response usage records.
type UsageSink interface {
	Record(rec *models.UsageRecord)
}

// Gate is the authorization decision engine. Per-credential state lives
// under per-credential cache keys, so concurrent requests for different
// credentials never contend.
type Gate struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	keys   *keys.Manager
	cache  cache.Cache
	sink   UsageSink
	clock  clockx.Clock
	logger logging.Logger
	cfg    Config
}

// New constructs a Gate with injected collaborators.
func New(db *sql.DB, rm repomanager.RepositoryManager, km *keys.Manager, c cache.Cache, sink UsageSink, clock clockx.Clock, logger logging.Logger, cfg Config) *Gate {
	return &Gate{db: db, rm: rm, keys: km, cache: c, sink: sink, clock: clock, logger: logger, cfg: cfg}
}

// Decision is a successful authorization outcome. The surrounding request
// pipeline calls RecordUsage after the response is sent.
type Decision struct {
	Credential *models.Credential
	gate       *Gate
}

// RecordUsage appends the request's usage record out-of-band.
func (d *Decision) RecordUsage(endpoint, method string, status int, latency time.Duration, ip, userAgent string, requestBytes, responseBytes int64) {
	d.gate.sink.Record(&models.UsageRecord{
		CredentialID:  d.Credential.ID,
		Endpoint:      endpoint,
		Method:        method,
		StatusCode:    status,
		LatencyMS:     latency.Milliseconds(),
		IP:            ip,
		UserAgent:     userAgent,
		RequestBytes:  requestBytes,
		ResponseBytes: responseBytes,
		CreatedAt:     d.gate.clock.Now(),
	})
}

// Authorize runs the decision chain for one request. Rejections are recorded
// in the security-event trail under their precise kind; callers only see the
// sentinel errors of the common package.
func (g *Gate) Authorize(ctx context.Context, secret, callerIP string, action models.Action) (*Decision, error) {
	cred, err := g.keys.Lookup(ctx, secret, callerIP)
	if err != nil {
		return nil, err
	}

	if g.isBlocked(ctx, cred) {
		g.recordEvent(ctx, cred.ID, models.EventBlockedAccessAttempt, map[string]any{
			"ip": callerIP, "action": string(action),
		})
		return nil, common.ErrBlocked
	}

	if !ipAllowed(cred.AllowedIPs, callerIP) {
		g.recordEvent(ctx, cred.ID, models.EventIPViolation, map[string]any{
			"ip": callerIP, "allowed": cred.AllowedIPs,
		})
		return nil, common.ErrIPNotAllowed
	}

	if !cred.Permissions.Allows(action) {
		g.recordEvent(ctx, cred.ID, models.EventPermissionDenied, map[string]any{
			"ip": callerIP, "action": string(action),
		})
		return nil, common.ErrPermissionDenied
	}

	score := g.suspicionScore(ctx, cred)
	if score >= g.cfg.SuspicionThreshold {
		g.block(ctx, cred, score, callerIP)
		return nil, common.ErrBlocked
	}

	return &Decision{Credential: cred, gate: g}, nil
}

// block applies the suspicion cool-down and records the event.
func (g *Gate) block(ctx context.Context, cred *models.Credential, score int, callerIP string) {
	until := g.clock.Now().Add(g.cfg.BlockCooldown)
	if err := g.rm.Credentials(g.db).Block(ctx, cred.ID, until); err != nil {
		g.logger.Error(ctx, "failed to persist block", "credential_id", cred.ID, "error", err)
	}
	if err := g.cache.Set(ctx, blockKey(cred.ID), until.Format(time.RFC3339Nano), g.cfg.BlockStatusTTL); err != nil {
		g.logger.Warn(ctx, "failed to cache block status", "credential_id", cred.ID, "error", err)
	}
	g.recordEvent(ctx, cred.ID, models.EventSuspiciousActivity, map[string]any{
		"score": score, "cooldown": g.cfg.BlockCooldown.String(), "ip": callerIP,
	})
	g.logger.Warn(ctx, "credential blocked for suspicious activity",
		"credential_id", cred.ID, "score", score, "until", until)
}

func blockKey(id string) string { return "blocked:" + id }

const blockValuePermanent = "permanent"

// isBlocked consults the short-TTL cache first and falls back to the
// persisted block fields, repopulating the cache. The cached value is the
// block deadline itself, so a cached entry never extends a block past its
// expiry.
func (g *Gate) isBlocked(ctx context.Context, cred *models.Credential) bool {
	now := g.clock.Now()

	if v, err := g.cache.Get(ctx, blockKey(cred.ID)); err == nil {
		return blockedByValue(v, now)
	}

	v := ""
	if cred.IsBlocked {
		if cred.BlockedUntil == nil {
			v = blockValuePermanent
		} else {
			v = cred.BlockedUntil.Format(time.RFC3339Nano)
		}
	}
	if err := g.cache.Set(ctx, blockKey(cred.ID), v, g.cfg.BlockStatusTTL); err != nil {
		g.logger.Warn(ctx, "failed to cache block status", "credential_id", cred.ID, "error", err)
	}
	return blockedByValue(v, now)
}

func blockedByValue(v string, now time.Time) bool {
	switch v {
	case "":
		return false
	case blockValuePermanent:
		return true
	}
	until, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return false
	}
	return now.Before(until)
}

// ipAllowed matches the caller against the allow-list: exact entries by
// equality, CIDR entries by containment. An empty list permits all IPs.
func ipAllowed(allowed []string, callerIP string) bool {
	if len(allowed) == 0 {
		return true
	}
	ip := net.ParseIP(callerIP)
	for _, entry := range allowed {
		if strings.Contains(entry, "/") {
			_, cidr, err := net.ParseCIDR(entry)
			if err != nil || ip == nil {
				continue
			}
			if cidr.Contains(ip) {
				return true
			}
			continue
		}
		if entry == callerIP {
			return true
		}
	}
	return false
}

// recordEvent appends to the audit trail best-effort.
func (g *Gate) recordEvent(ctx context.Context, credentialID, kind string, metadata map[string]any) {
	ev := &models.SecurityEvent{
		ID:           uuid.NewString(),
		CredentialID: credentialID,
		Kind:         kind,
		Metadata:     metadata,
		CreatedAt:    g.clock.Now(),
	}
	if err := g.rm.Events(g.db).Append(ctx, ev); err != nil {
		g.logger.Error(ctx, "failed to record security event",
			"credential_id", credentialID, "kind", kind, "error", err)
	}
}
