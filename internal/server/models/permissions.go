package models

// Action is a permission-gated operation on the API.
type Action string

const (
	ActionRead   Action = "read"
	ActionUpload Action = "upload"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// ResourcePermissions is the nested per-resource grant shape.
type ResourcePermissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

// Permissions is stored as a JSON blob on the credential. New credentials use
// the nested Files shape; the flat booleans exist only for keys issued before
// the nested shape and are consulted as a fallback.
type Permissions struct {
	Admin bool                 `json:"admin"`
	Files *ResourcePermissions `json:"files,omitempty"`

	// Legacy flat shape. Deprecated for new credentials.
	CanRead   bool `json:"canRead,omitempty"`
	CanUpload bool `json:"canUpload,omitempty"`
	CanDelete bool `json:"canDelete,omitempty"`
}

// Allows resolves an action against the nested shape first and falls back to
// the legacy flat booleans. Admin grants everything.
func (p Permissions) Allows(action Action) bool {
	if p.Admin {
		return true
	}
	if action == ActionAdmin {
		return false
	}
	if p.Files != nil {
		switch action {
		case ActionRead:
			return p.Files.Read
		case ActionUpload:
			return p.Files.Write
		case ActionDelete:
			return p.Files.Delete
		}
		return false
	}
	switch action {
	case ActionRead:
		return p.CanRead
	case ActionUpload:
		return p.CanUpload
	case ActionDelete:
		return p.CanDelete
	}
	return false
}

// DefaultPermissions is the grant set for newly created keys: read and upload
// on files, no delete, no admin.
func DefaultPermissions() Permissions {
	return Permissions{
		Files: &ResourcePermissions{Read: true, Write: true},
	}
}
