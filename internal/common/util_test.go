package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	s1, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.Len(t, s1, 32)

	s2, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "invalid_key", ErrorCode(ErrInvalidKey))
	assert.Equal(t, "blocked", ErrorCode(ErrBlocked))
	assert.Equal(t, "ip_not_allowed", ErrorCode(ErrIPNotAllowed))
	assert.Equal(t, "permission_denied", ErrorCode(ErrPermissionDenied))
	assert.Equal(t, "limit_exceeded", ErrorCode(ErrLimitExceeded))
	assert.Equal(t, "expired_session", ErrorCode(ErrExpiredSession))
	assert.Equal(t, "internal_error", ErrorCode(assert.AnError))
}
