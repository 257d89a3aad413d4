package middleware

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/glamlab/stylist-gateway/internal/apperr"
	"github.com/glamlab/stylist-gateway/internal/initdata"
)

// SessionClaims carries the identity through a minted session token so the
// client does not resend the signed payload on every call. Provenance is part
// of the claims: a guest session can never be replayed as a verified one.
type SessionClaims struct {
	Key        string `json:"key"`
	Provenance string `json:"provenance"`
	jwt.RegisteredClaims
}

// NewSessionToken mints an HS256 session token for a resolved identity.
func NewSessionToken(identity *initdata.Identity, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("session secret not configured")
	}

	claims := &SessionClaims{
		Key:        identity.Key,
		Provenance: string(identity.Provenance),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "stylist-gateway",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseSessionToken validates a session token and rebuilds the identity.
func ParseSessionToken(tokenString string, secret []byte) (*initdata.Identity, error) {
	if len(secret) == 0 {
		return nil, apperr.Unauthorized("sessions not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Unauthorized("invalid session token")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || claims.Key == "" {
		return nil, apperr.Unauthorized("invalid session claims")
	}

	provenance := initdata.Provenance(claims.Provenance)
	if provenance != initdata.ProvenanceVerified {
		provenance = initdata.ProvenanceAnonymous
	}

	return &initdata.Identity{Key: claims.Key, Provenance: provenance}, nil
}

func missingCredentials() error {
	return apperr.Unauthorized("missing credentials")
}
