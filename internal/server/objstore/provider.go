// Package objstore abstracts the object-storage backends uploads go to.
// Two provider instances are configured: a long-term bucket for registered
// principals and a time-limited bucket for guest uploads.
package objstore

import (
	"context"
	"time"
)

// Provider is the storage contract the upload coordinator and the lifecycle
// sweep depend on. Implementations must map a missing object to
// common.ErrObjectNotFound so callers can distinguish it from backend
// failures.
type Provider interface {
	// SignPut returns a signed URL permitting one direct PUT of the object
	// within the expiry window.
	SignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}
