// Package events persists the append-only security audit trail.
package events

import (
	"context"

	"github.com/fileforge/fileforge/internal/server/models"
)

// Repository appends security events. The core never updates or deletes them.
type Repository interface {
	Append(ctx context.Context, ev *models.SecurityEvent) error
}
