// Package usage persists per-request usage records and computes the
// window aggregates consumed by suspicious-activity scoring.
package usage

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/server/models"
)

// Repository is the append-only usage record store.
type Repository interface {
	Append(ctx context.Context, rec *models.UsageRecord) error
	// WindowStats aggregates traffic for the credential since the given
	// instant: distinct IPs, distinct user agents, request count, error rate.
	WindowStats(ctx context.Context, credentialID string, since time.Time) (*models.UsageWindowStats, error)
	// DeleteOlderThan removes records past the retention window. Idempotent
	// and safe to run concurrently with inserts.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
