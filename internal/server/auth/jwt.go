// Package auth verifies the dashboard-issued principal tokens guarding the
// key-management surface. Bearer API keys are handled by the gate, not here.
package auth

import (
	"time"

	"github.com/fileforge/fileforge/internal/common"
	"github.com/fileforge/fileforge/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the standard claims plus the principal id and tier.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"principal_id"`
	Tier        string `json:"tier"`
}

// GenerateToken mints an HS256 principal token. Used by tests and tooling;
// production tokens come from the dashboard.
func GenerateToken(principalID, tier string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		PrincipalID: principalID,
		Tier:        tier,
	})
	return token.SignedString(secretKey)
}

// ParseToken validates the token and returns the principal id and tier.
// Missing or unknown tiers default to standard.
func ParseToken(tokenString string, secretKey []byte) (principalID, tier string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", "", common.ErrInvalidToken
	}
	if !token.Valid || claims.PrincipalID == "" {
		return "", "", common.ErrInvalidToken
	}

	tier = claims.Tier
	if tier != models.TierElevated {
		tier = models.TierStandard
	}
	return claims.PrincipalID, tier, nil
}
