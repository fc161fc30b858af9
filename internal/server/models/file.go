package models

import "time"

// StoredFile is a finalized upload. Guest uploads (OwnerID empty) carry a
// retention expiry and are reclaimed by the lifecycle sweep; registered
// uploads have no expiry.
type StoredFile struct {
	ID string
	// ObjectKey is the object-storage key of the primary object. Unique.
	ObjectKey string
	// OwnerID references the owning principal; empty marks a guest upload.
	OwnerID string

	Size        int64
	ContentType string
	IsPublic    bool
	Tags        []string

	// ThumbnailKeys lists derived thumbnail objects, if any.
	ThumbnailKeys []string

	// ExpiresAt is set only for guest uploads.
	ExpiresAt *time.Time
	IsDeleted bool
	DeletedAt *time.Time

	CreatedAt time.Time
}

// IsGuest reports whether the file was uploaded anonymously.
func (f *StoredFile) IsGuest() bool { return f.OwnerID == "" }
