// Package common defines shared constants and sentinel errors used across
// fileforge components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Authorization gate outcomes. Only the stable machine-readable code of
	// these is exposed to callers; the precise kind is kept for the
	// security-event trail.
	ErrInvalidKey       = errors.New("invalid api key")
	ErrBlocked          = errors.New("api key blocked")
	ErrIPNotAllowed     = errors.New("ip not allowed")
	ErrPermissionDenied = errors.New("permission denied")

	// Key management errors.
	ErrLimitExceeded = errors.New("api key limit exceeded")

	// Upload lifecycle errors.
	ErrInvalidFileInfo = errors.New("invalid file info")
	ErrObjectNotFound  = errors.New("object not found")
	ErrExpiredSession  = errors.New("upload session expired")
	ErrProvider        = errors.New("storage provider error")

	// Auth errors (invalid or malformed principal token).
	ErrInvalidToken = errors.New("invalid token")
)

// ErrorCode maps a gate or lifecycle error to its stable machine-readable
// code. Unknown errors map to "internal_error".
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrIPNotAllowed):
		return "ip_not_allowed"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, ErrInvalidFileInfo):
		return "invalid_file_info"
	case errors.Is(err, ErrObjectNotFound):
		return "object_not_found"
	case errors.Is(err, ErrExpiredSession):
		return "expired_session"
	case errors.Is(err, ErrProvider):
		return "provider_error"
	case errors.Is(err, ErrorUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrorNotFound):
		return "not_found"
	default:
		return "internal_error"
	}
}
