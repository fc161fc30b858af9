// Package lifecycle reclaims storage from expired guest uploads and hosts
// the recurring-task scheduler. The sweep is an idempotent, restart-safe
// batch job: a crash mid-sweep just means the next sweep re-discovers the
// same still-expired, still-undeleted records.
package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/objstore"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
)

// ErrSweepInProgress is returned when a sweep overlaps a running one.
// Overlapping invocations are skipped, not queued.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Summary reports one sweep's outcome.
type Summary struct {
	Deleted int
	Failed  int
}

// Sweeper finds expired guest uploads, deletes their objects from the guest
// provider, and marks the records reclaimed.
type Sweeper struct {
	db        *sql.DB
	rm        repomanager.RepositoryManager
	provider  objstore.Provider
	clock     clockx.Clock
	logger    logging.Logger
	batchSize int

	running atomic.Bool
}

// NewSweeper constructs a Sweeper over the guest-tier provider.
func NewSweeper(db *sql.DB, rm repomanager.RepositoryManager, provider objstore.Provider, clock clockx.Clock, logger logging.Logger, batchSize int) *Sweeper {
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Sweeper{db: db, rm: rm, provider: provider, clock: clock, logger: logger, batchSize: batchSize}
}

// SweepExpiredGuests runs one sweep as a singleton. For each expired record
// it deletes the primary object and every thumbnail variant (a missing
// object counts as deleted), then marks the record. Any other failure leaves
// the record unmarked for the next sweep; there is no partial-success
// marking.
func (s *Sweeper) SweepExpiredGuests(ctx context.Context) (*Summary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	filesRepo := s.rm.Files(s.db)
	now := s.clock.Now()

	expired, err := filesRepo.SelectExpiredGuests(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, f := range expired {
		if err := s.reclaim(ctx, f); err != nil {
			summary.Failed++
			s.logger.Warn(ctx, "reclaim failed, will retry next sweep",
				"object_key", f.ObjectKey, "error", err)
			continue
		}
		summary.Deleted++
	}

	s.logger.Info(ctx, "guest upload sweep finished",
		"deleted", summary.Deleted, "failed", summary.Failed)
	return summary, nil
}

func (s *Sweeper) reclaim(ctx context.Context, f *models.StoredFile) error {
	if err := s.provider.Delete(ctx, f.ObjectKey); err != nil && !errors.Is(err, common.ErrObjectNotFound) {
		return err
	}
	for _, tk := range f.ThumbnailKeys {
		if err := s.provider.Delete(ctx, tk); err != nil && !errors.Is(err, common.ErrObjectNotFound) {
			return err
		}
	}
	return s.rm.Files(s.db).MarkDeleted(ctx, f.ID, s.clock.Now())
}
