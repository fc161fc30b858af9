// Package uploads brokers direct-to-object-storage uploads: it issues
// time-boxed signed upload authorizations and finalizes completed uploads,
// invoking media optimization along the way.
package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/media"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/objstore"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// Config carries upload-lifecycle tunables.
type Config struct {
	// SignValidity bounds how long a signed upload authorization stays
	// usable.
	SignValidity time.Duration
	// GuestRetention is how long anonymous uploads live before the sweep
	// reclaims them.
	GuestRetention time.Duration
}

// DefaultConfig returns the standard upload tuning.
func DefaultConfig() Config {
	return Config{
		SignValidity:   15 * time.Minute,
		GuestRetention: 14 * 24 * time.Hour,
	}
}

// FileInfo is the caller-declared description of a pending upload.
type FileInfo struct {
	FileName    string
	ContentType string
	Size        int64
	// PreserveName keeps the original file name in the object key, with a
	// collision-avoidance suffix. Default keys are fully randomized.
	PreserveName bool
}

// Session is a pending upload authorization. Sessions are ephemeral: they
// are never persisted, and an unfulfilled one simply expires.
type Session struct {
	ObjectKey   string
	URL         string
	ContentType string
	Size        int64
	Tier        string
	ExpiresAt   time.Time
}

// FinalizeOptions describe a completed upload at finalization time.
type FinalizeOptions struct {
	// OwnerID is the owning principal; empty marks a guest upload.
	OwnerID  string
	IsPublic bool
	Tags     []string

	Optimize           bool
	GenerateThumbnails bool
	PreserveMetadata   bool
	// AlreadyOptimized skips server-side processing when the client did it.
	AlreadyOptimized bool
}

// Coordinator owns the upload state machine: Requested -> Signed ->
// (uploaded externally) -> Finalized, or Signed -> Abandoned by expiry.
type Coordinator struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	main   objstore.Provider
	guest  objstore.Provider
	proc   *media.Processor
	pool   *media.Pool
	clock  clockx.Clock
	logger logging.Logger
	cfg    Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCoordinator constructs a Coordinator. The main provider serves
// registered principals; the guest provider serves anonymous uploads.
func NewCoordinator(db *sql.DB, rm repomanager.RepositoryManager, main, guest objstore.Provider, proc *media.Processor, pool *media.Pool, clock clockx.Clock, logger logging.Logger, cfg Config) *Coordinator {
	return &Coordinator{
		db: db, rm: rm, main: main, guest: guest,
		proc: proc, pool: pool, clock: clock, logger: logger, cfg: cfg,
		sessions: make(map[string]*Session),
	}
}

func (c *Coordinator) providerFor(tier string) objstore.Provider {
	if tier == models.TierGuest {
		return c.guest
	}
	return c.main
}

// IssueUploadAuthorization validates the declared file info, derives an
// object key, and returns a signed, time-boxed upload authorization for the
// tier-appropriate provider.
func (c *Coordinator) IssueUploadAuthorization(ctx context.Context, info FileInfo, tier string) (*Session, error) {
	if info.ContentType == "" || info.Size <= 0 {
		return nil, common.ErrInvalidFileInfo
	}

	key := c.objectKey(info)
	provider := c.providerFor(tier)

	url, err := provider.SignPut(ctx, key, info.ContentType, c.cfg.SignValidity)
	if err != nil {
		return nil, fmt.Errorf("signing upload: %w", err)
	}

	s := &Session{
		ObjectKey:   key,
		URL:         url,
		ContentType: info.ContentType,
		Size:        info.Size,
		Tier:        tier,
		ExpiresAt:   c.clock.Now().Add(c.cfg.SignValidity),
	}

	c.mu.Lock()
	c.pruneSessionsLocked()
	c.sessions[key] = s
	c.mu.Unlock()

	return s, nil
}

// objectKey derives the storage key: randomized by default, or the sanitized
// original name with a short random suffix when preservation was requested.
func (c *Coordinator) objectKey(info FileInfo) string {
	d := c.clock.Now()
	dir := fmt.Sprintf("uploads/%d/%02d/%02d", d.Year(), d.Month(), d.Day())
	if !info.PreserveName || info.FileName == "" {
		return fmt.Sprintf("%s/%s", dir, uuid.NewString())
	}
	ext := path.Ext(info.FileName)
	base := sanitizeName(strings.TrimSuffix(path.Base(info.FileName), ext))
	return fmt.Sprintf("%s/%s_%s%s", dir, base, uuid.NewString()[:8], ext)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "file"
	}
	return b.String()
}

func (c *Coordinator) pruneSessionsLocked() {
	now := c.clock.Now()
	for k, s := range c.sessions {
		if now.After(s.ExpiresAt) {
			delete(c.sessions, k)
		}
	}
}

func (c *Coordinator) session(key string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[key]
	return s, ok
}

func (c *Coordinator) dropSession(key string) {
	c.mu.Lock()
	delete(c.sessions, key)
	c.mu.Unlock()
}

// ThumbKey names the derived variant of an object at the given size.
func ThumbKey(objectKey string, size int) string {
	return fmt.Sprintf("%s_thumb_%d", objectKey, size)
}

// FinalizeUpload materializes a StoredFile once the caller reports the
// direct upload succeeded. It is idempotent on the object key: re-finalizing
// returns the existing record. Image processing is best-effort; the original
// bytes always win over a failed optimization.
func (c *Coordinator) FinalizeUpload(ctx context.Context, objectKey string, opts FinalizeOptions) (*models.StoredFile, error) {
	filesRepo := c.rm.Files(c.db)

	if existing, err := filesRepo.GetByObjectKey(ctx, objectKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	s, ok := c.session(objectKey)
	if !ok || c.clock.Now().After(s.ExpiresAt) {
		return nil, common.ErrExpiredSession
	}

	provider := c.providerFor(s.Tier)
	exists, err := provider.Exists(ctx, objectKey)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.ErrObjectNotFound
	}

	size := s.Size
	var thumbKeys []string
	if !opts.AlreadyOptimized && media.SupportedFormat(s.ContentType) && (opts.Optimize || opts.GenerateThumbnails) {
		processedSize, keys, err := c.process(ctx, provider, objectKey, s.ContentType, opts)
		if err != nil {
			// Optimization never fails an upload; the original object stays.
			c.logger.Warn(ctx, "media processing skipped", "object_key", objectKey, "error", err)
		} else {
			if processedSize > 0 {
				size = processedSize
			}
			thumbKeys = keys
		}
	}

	now := c.clock.Now()
	f := &models.StoredFile{
		ID:            uuid.NewString(),
		ObjectKey:     objectKey,
		OwnerID:       opts.OwnerID,
		Size:          size,
		ContentType:   s.ContentType,
		IsPublic:      opts.IsPublic,
		Tags:          opts.Tags,
		ThumbnailKeys: thumbKeys,
		CreatedAt:     now,
	}
	if f.IsGuest() {
		expiry := now.Add(c.cfg.GuestRetention)
		f.ExpiresAt = &expiry
	}

	if err := filesRepo.Create(ctx, f); err != nil {
		// A concurrent finalize may have won; idempotency still holds.
		if existing, getErr := filesRepo.GetByObjectKey(ctx, objectKey); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("persisting stored file: %w", err)
	}

	c.dropSession(objectKey)
	return f, nil
}

// process downloads the object, re-encodes it, derives thumbnails, and
// writes everything back. Runs inside the bounded pool.
func (c *Coordinator) process(ctx context.Context, provider objstore.Provider, objectKey, contentType string, opts FinalizeOptions) (int64, []string, error) {
	var size int64
	var thumbKeys []string

	err := c.pool.Do(func() error {
		data, err := provider.Get(ctx, objectKey)
		if err != nil {
			return err
		}

		if opts.Optimize {
			optimized, err := c.proc.Optimize(data, contentType, media.OptimizeOptions{
				PreserveMetadata: opts.PreserveMetadata,
			})
			if err != nil {
				return err
			}
			if err := provider.Put(ctx, objectKey, optimized, contentType); err != nil {
				return err
			}
			data = optimized
		}
		size = int64(len(data))

		if opts.GenerateThumbnails {
			thumbs, err := c.proc.DeriveThumbnails(data, contentType, media.ThumbnailSizes)
			if err != nil {
				return err
			}
			for _, ts := range media.ThumbnailSizes {
				variant, ok := thumbs[ts]
				if !ok {
					continue
				}
				key := ThumbKey(objectKey, ts)
				if err := provider.Put(ctx, key, variant, contentType); err != nil {
					return err
				}
				thumbKeys = append(thumbKeys, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	return size, thumbKeys, nil
}

// DeleteFile removes the primary object and, best-effort, every derived
// thumbnail variant, then marks the record deleted. Thumbnail failures are
// logged but never fail the primary deletion.
func (c *Coordinator) DeleteFile(ctx context.Context, objectKey, tier string) error {
	filesRepo := c.rm.Files(c.db)

	f, err := filesRepo.GetByObjectKey(ctx, objectKey)
	if err != nil {
		return err
	}

	provider := c.providerFor(tier)
	if err := provider.Delete(ctx, objectKey); err != nil && !errors.Is(err, common.ErrObjectNotFound) {
		return err
	}

	for _, tk := range f.ThumbnailKeys {
		if err := provider.Delete(ctx, tk); err != nil && !errors.Is(err, common.ErrObjectNotFound) {
			c.logger.Warn(ctx, "thumbnail cleanup failed", "object_key", tk, "error", err)
		}
	}

	return filesRepo.MarkDeleted(ctx, f.ID, c.clock.Now())
}
