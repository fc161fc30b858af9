// Package usagelog appends per-request usage records out-of-band from the
// response path and owns the retention purge for old records.
package usagelog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
)

const writeTimeout = 5 * time.Second

// Recorder buffers usage records and writes them from a background goroutine.
// Record never blocks the caller; write errors are logged, never surfaced.
type Recorder struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	logger logging.Logger

	ch   chan *models.UsageRecord
	wg   sync.WaitGroup
	once sync.Once
}

// NewRecorder constructs a Recorder with the given buffer size.
func NewRecorder(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger, bufferSize int) *Recorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Recorder{
		db:     db,
		rm:     rm,
		logger: logger,
		ch:     make(chan *models.UsageRecord, bufferSize),
	}
}

// Start launches the background writer. It drains the buffer until Close.
func (r *Recorder) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for rec := range r.ch {
			r.write(rec)
		}
	}()
}

func (r *Recorder) write(rec *models.UsageRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.rm.Usage(r.db).Append(ctx, rec); err != nil {
		r.logger.Error(ctx, "usage record write failed", "credential_id", rec.CredentialID, "error", err)
	}
}

// Record enqueues a usage record. When the buffer is full the record is
// dropped with a warning; usage accounting is advisory and must never add
// latency to the authorization path.
func (r *Recorder) Record(rec *models.UsageRecord) {
	select {
	case r.ch <- rec:
	default:
		r.logger.Warn(context.Background(), "usage buffer full, dropping record",
			"credential_id", rec.CredentialID)
	}
}

// Close stops accepting records and waits for the buffer to drain.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	r.wg.Wait()
}

// PurgeOlderThan deletes records created before the cutoff. Idempotent and
// safe to run concurrently with inserts.
func (r *Recorder) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := r.rm.Usage(r.db).DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("usage purge: %w", err)
	}
	return n, nil
}
