// Package auth extracts identity from the externally supplied bearer token.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// userIDClaim is the canonical claim carrying the user identifier.
const userIDClaim = "user_id"

// UserID extracts the user id from the bearer token's claims.
//
// The token is decoded, not verified; verification is the job of the
// services that accept it. The id becomes the top-level object-key prefix,
// so a token whose claims do not carry a UUID user id is unusable and each
// failure mode gets its own message.
func UserID(token string) (uuid.UUID, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return uuid.Nil, fmt.Errorf("malformed bearer token: %w", err)
	}

	raw, ok := claims[userIDClaim]
	if !ok {
		return uuid.Nil, fmt.Errorf("bearer token claims missing %q field", userIDClaim)
	}

	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("bearer token %q claim is not a string (got %T)", userIDClaim, raw)
	}

	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("bearer token %q claim %q is not a UUID: %w", userIDClaim, s, err)
	}

	return id, nil
}
