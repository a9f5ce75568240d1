package oauth

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDTokenSigner issues RS256-signed OpenID Connect ID tokens.
type IDTokenSigner struct {
	key    *rsa.PrivateKey
	issuer string
}

// NewIDTokenSigner creates a signer that stamps tokens with the given issuer.
func NewIDTokenSigner(key *rsa.PrivateKey, issuer string) *IDTokenSigner {
	return &IDTokenSigner{key: key, issuer: issuer}
}

// Sign produces an ID token for the given subject and audience, valid for ttl.
func (s *IDTokenSigner) Sign(accountID, clientID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   accountID,
		Audience:  jwt.ClaimStrings{clientID},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}

	return signed, nil
}

// PublicKey exposes the verification key, for JWKS publication.
func (s *IDTokenSigner) PublicKey() *rsa.PublicKey {
	return &s.key.PublicKey
}
