// Package files persists finalized upload records (StoredFile) and the
// expiry queries driving the guest-upload lifecycle sweep.
package files

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/server/models"
)

// Repository is the StoredFile store contract.
type Repository interface {
	Create(ctx context.Context, f *models.StoredFile) error
	GetByObjectKey(ctx context.Context, key string) (*models.StoredFile, error)
	UpdateMetadata(ctx context.Context, id string, isPublic bool, tags []string) error
	// MarkDeleted flips the logical deletion flags once the backing objects
	// are confirmed removed.
	MarkDeleted(ctx context.Context, id string, at time.Time) error
	// SelectExpiredGuests returns guest uploads whose expiry is in the past
	// and that are not yet marked deleted, oldest expiry first.
	SelectExpiredGuests(ctx context.Context, now time.Time, limit int) ([]*models.StoredFile, error)
}
