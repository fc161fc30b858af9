package gate

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/dbx"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/cache"
	"github.com/fileforge/fileforge/internal/server/keys"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/repositories/credentials"
	"github.com/fileforge/fileforge/internal/server/repositories/events"
	"github.com/fileforge/fileforge/internal/server/repositories/files"
	"github.com/fileforge/fileforge/internal/server/repositories/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCredRepo struct {
	credentials.Repository

	mu   sync.Mutex
	byID map[string]*models.Credential
}

func newFakeCredRepo() *fakeCredRepo {
	return &fakeCredRepo{byID: make(map[string]*models.Credential)}
}

func (f *fakeCredRepo) Create(_ context.Context, c *models.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.byID[c.ID] = &cp
	return nil
}

func (f *fakeCredRepo) GetByID(_ context.Context, id string) (*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCredRepo) FindActiveByPrefix(_ context.Context, prefix string, now time.Time) ([]*models.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Credential
	for _, c := range f.byID {
		if c.KeyPrefix == prefix && c.IsActive && !c.Expired(now) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeCredRepo) CountActiveByOwner(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.byID {
		if c.OwnerID == ownerID && c.IsActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeCredRepo) Block(_ context.Context, id string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	c.IsBlocked = true
	u := until
	c.BlockedUntil = &u
	return nil
}

func (f *fakeCredRepo) TouchUsage(_ context.Context, _, _ string, _ time.Time) error { return nil }

func (f *fakeCredRepo) mutate(id string, fn func(*models.Credential)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.byID[id])
}

type fakeUsageRepo struct {
	usage.Repository

	mu    sync.Mutex
	stats models.UsageWindowStats
	calls int
}

func (f *fakeUsageRepo) WindowStats(_ context.Context, _ string, _ time.Time) (*models.UsageWindowStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s := f.stats
	return &s, nil
}

func (f *fakeUsageRepo) setStats(s models.UsageWindowStats) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats = s
}

type fakeEventsRepo struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (f *fakeEventsRepo) Append(_ context.Context, ev *models.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEventsRepo) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Kind)
	}
	return out
}

type fakeRM struct {
	creds  credentials.Repository
	usage  usage.Repository
	events events.Repository
}

func (m *fakeRM) Credentials(dbx.DBTX) credentials.Repository { return m.creds }
func (m *fakeRM) Usage(dbx.DBTX) usage.Repository             { return m.usage }
func (m *fakeRM) Events(dbx.DBTX) events.Repository           { return m.events }
func (m *fakeRM) Files(dbx.DBTX) files.Repository             { return nil }

type fakeSink struct {
	mu   sync.Mutex
	recs []*models.UsageRecord
}

func (f *fakeSink) Record(rec *models.UsageRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

type gateEnv struct {
	creds  *fakeCredRepo
	usage  *fakeUsageRepo
	events *fakeEventsRepo
	sink   *fakeSink
	cache  *cache.Memory
	clock  *clockx.Fake
	km     *keys.Manager
	gate   *Gate
}

func newGateEnv(t *testing.T, cfg Config) *gateEnv {
	t.Helper()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := clockx.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	creds := newFakeCredRepo()
	usageRepo := &fakeUsageRepo{}
	eventsRepo := &fakeEventsRepo{}
	rm := &fakeRM{creds: creds, usage: usageRepo, events: eventsRepo}

	km := keys.NewManager(nil, rm, clock, logger, keys.Config{MaxActiveKeysStandard: 5, MaxActiveKeysElevated: 20})
	sink := &fakeSink{}
	c := cache.NewMemory(clock)

	return &gateEnv{
		creds:  creds,
		usage:  usageRepo,
		events: eventsRepo,
		sink:   sink,
		cache:  c,
		clock:  clock,
		km:     km,
		gate:   New(nil, rm, km, c, sink, clock, logger, cfg),
	}
}

func (e *gateEnv) issueKey(t *testing.T, opts keys.CreateOptions) *keys.CreatedKey {
	t.Helper()
	created, err := e.km.Create(context.Background(), "owner-1", models.TierStandard, opts)
	require.NoError(t, err)
	return created
}

func TestGate_Authorize_HappyPath(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})

	d, err := env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionUpload)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, created.Credential.ID, d.Credential.ID)

	d.RecordUsage("/api/v1/uploads/sign", "POST", 200, 12*time.Millisecond, "10.0.0.1", "curl/8", 128, 256)
	require.Len(t, env.sink.recs, 1)
	rec := env.sink.recs[0]
	assert.Equal(t, created.Credential.ID, rec.CredentialID)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, int64(12), rec.LatencyMS)
}

func TestGate_Authorize_InvalidKey(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())

	_, err := env.gate.Authorize(context.Background(), "ffk_0000000000000000", "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrInvalidKey)
}

func TestGate_Authorize_BlockExpiry(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})
	ctx := context.Background()

	until := env.clock.Now().Add(30 * time.Minute)
	env.creds.mutate(created.Credential.ID, func(c *models.Credential) {
		c.IsBlocked = true
		u := until
		c.BlockedUntil = &u
	})

	_, err := env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked)
	assert.Contains(t, env.events.kinds(), models.EventBlockedAccessAttempt)

	// One instant before the deadline the block still holds.
	env.clock.Set(until.Add(-time.Nanosecond))
	_, err = env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked)

	// At the deadline access resumes, even with the stale cache entry: the
	// cached value is the deadline itself, not a boolean.
	env.clock.Set(until)
	_, err = env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.NoError(t, err)
}

func TestGate_Authorize_OpenEndedBlock(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})

	env.creds.mutate(created.Credential.ID, func(c *models.Credential) {
		c.IsBlocked = true
		c.BlockedUntil = nil
	})

	_, err := env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked)

	env.clock.Advance(365 * 24 * time.Hour)
	_, err = env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked, "manual blocks never expire on their own")
}

func TestGate_Authorize_IPAllowList(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{
		AllowedIPs: []string{"203.0.113.7", "10.1.0.0/16"},
	})
	ctx := context.Background()

	_, err := env.gate.Authorize(ctx, created.Secret, "203.0.113.7", models.ActionRead)
	assert.NoError(t, err, "exact entry matches")

	_, err = env.gate.Authorize(ctx, created.Secret, "10.1.200.14", models.ActionRead)
	assert.NoError(t, err, "CIDR entry contains caller")

	_, err = env.gate.Authorize(ctx, created.Secret, "10.2.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrIPNotAllowed)
	assert.Contains(t, env.events.kinds(), models.EventIPViolation)
}

func TestGate_Authorize_PermissionDenied(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	// Default grants allow read/upload but not delete.
	created := env.issueKey(t, keys.CreateOptions{})
	ctx := context.Background()

	_, err := env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionDelete)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.Contains(t, env.events.kinds(), models.EventPermissionDenied)

	_, err = env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionAdmin)
	assert.ErrorIs(t, err, common.ErrPermissionDenied)
}

func TestGate_Authorize_SuspicionBlocks(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})
	ctx := context.Background()

	// 11 distinct IPs (+3) and 501 requests (+3) crosses the threshold of 5.
	env.usage.setStats(models.UsageWindowStats{DistinctIPs: 11, DistinctAgents: 2, Requests: 501})

	_, err := env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked)
	assert.Contains(t, env.events.kinds(), models.EventSuspiciousActivity)

	blocked, err := env.creds.GetByID(ctx, created.Credential.ID)
	require.NoError(t, err)
	assert.True(t, blocked.IsBlocked)
	require.NotNil(t, blocked.BlockedUntil)
	assert.Equal(t, env.clock.Now().Add(DefaultConfig().BlockCooldown), *blocked.BlockedUntil)

	// The cool-down holds on the next request, then lapses.
	_, err = env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.ErrorIs(t, err, common.ErrBlocked)

	env.usage.setStats(models.UsageWindowStats{DistinctIPs: 1, Requests: 10})
	env.clock.Advance(DefaultConfig().BlockCooldown + time.Minute)
	_, err = env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	assert.NoError(t, err)
}

func TestGate_Authorize_SingleSignalBlocksAtLowThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SuspicionThreshold = 3

	t.Run("11 distinct ips blocks", func(t *testing.T) {
		env := newGateEnv(t, cfg)
		created := env.issueKey(t, keys.CreateOptions{})

		env.usage.setStats(models.UsageWindowStats{DistinctIPs: 11})

		_, err := env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionRead)
		assert.ErrorIs(t, err, common.ErrBlocked)
		assert.Contains(t, env.events.kinds(), models.EventSuspiciousActivity)
	})

	t.Run("10 distinct ips does not", func(t *testing.T) {
		env := newGateEnv(t, cfg)
		created := env.issueKey(t, keys.CreateOptions{})

		env.usage.setStats(models.UsageWindowStats{DistinctIPs: 10})

		_, err := env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionRead)
		assert.NoError(t, err)
	})
}

func TestGate_Authorize_AtThresholdBoundariesAllowed(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})

	// Exactly at the per-signal limits nothing scores.
	env.usage.setStats(models.UsageWindowStats{
		DistinctIPs:    10,
		DistinctAgents: 5,
		Requests:       500,
		ErrorRate:      0.5,
	})

	_, err := env.gate.Authorize(context.Background(), created.Secret, "10.0.0.1", models.ActionRead)
	assert.NoError(t, err)
}

func TestGate_SuspicionScore_Memoized(t *testing.T) {
	env := newGateEnv(t, DefaultConfig())
	created := env.issueKey(t, keys.CreateOptions{})
	ctx := context.Background()

	env.usage.setStats(models.UsageWindowStats{DistinctIPs: 1, Requests: 5})

	for i := 0; i < 3; i++ {
		_, err := env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, env.usage.calls, "window aggregation runs once per score TTL")

	env.clock.Advance(DefaultConfig().ScoreTTL + time.Second)
	_, err := env.gate.Authorize(ctx, created.Secret, "10.0.0.1", models.ActionRead)
	require.NoError(t, err)
	assert.Equal(t, 2, env.usage.calls)
}

func TestScoreStats(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name  string
		stats models.UsageWindowStats
		want  int
	}{
		{"quiet", models.UsageWindowStats{DistinctIPs: 2, DistinctAgents: 1, Requests: 40}, 0},
		{"many ips", models.UsageWindowStats{DistinctIPs: 11}, 3},
		{"many agents", models.UsageWindowStats{DistinctAgents: 6}, 2},
		{"request flood", models.UsageWindowStats{Requests: 501}, 3},
		{"high error rate", models.UsageWindowStats{ErrorRate: 0.51}, 2},
		{"everything", models.UsageWindowStats{DistinctIPs: 11, DistinctAgents: 6, Requests: 501, ErrorRate: 0.9}, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, scoreStats(&tt.stats, cfg))
		})
	}
}

func TestBlockedByValue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, blockedByValue("", now))
	assert.True(t, blockedByValue(blockValuePermanent, now))
	assert.True(t, blockedByValue(now.Add(time.Second).Format(time.RFC3339Nano), now))
	assert.False(t, blockedByValue(now.Format(time.RFC3339Nano), now), "block ends exactly at its deadline")
	assert.False(t, blockedByValue("garbage", now))
}

func TestIPAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		caller  string
		want    bool
	}{
		{"empty list permits all", nil, "1.2.3.4", true},
		{"exact match", []string{"1.2.3.4"}, "1.2.3.4", true},
		{"exact mismatch", []string{"1.2.3.4"}, "1.2.3.5", false},
		{"cidr contains", []string{"10.0.0.0/8"}, "10.200.1.1", true},
		{"cidr excludes", []string{"10.0.0.0/8"}, "11.0.0.1", false},
		{"bad cidr skipped", []string{"10.0.0.0/99", "1.2.3.4"}, "1.2.3.4", true},
		{"unparseable caller", []string{"10.0.0.0/8"}, "not-an-ip", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ipAllowed(tt.allowed, tt.caller))
		})
	}
}
