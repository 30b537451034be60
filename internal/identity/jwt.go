package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the token claims the identity provider issues. The subject is
// the user id; staff is the out-of-band support flag.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Staff bool   `json:"staff,omitempty"`
}

// Verifier validates bearer tokens from the identity provider and maps them
// to principals. Tokens are ES256-signed; the provider's public key is
// distributed out of band.
type Verifier struct {
	publicKey *ecdsa.PublicKey
}

// NewVerifier creates a verifier from the identity provider's PEM-encoded
// ES256 public key.
func NewVerifier(publicKeyPEM string) (*Verifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("identity public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity public key: %w", err)
	}

	return &Verifier{publicKey: publicKey}, nil
}

// FromToken validates a bearer token and returns the principal it carries.
func (v *Verifier) FromToken(tokenStr string) (*Principal, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodES256 {
			return nil, errors.New("invalid signing method")
		}
		return v.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("%w: %s", ErrUnauthenticated, "invalid claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrUnauthenticated)
	}

	return &Principal{
		UserID:  userID,
		Email:   claims.Email,
		IsStaff: claims.Staff,
	}, nil
}
