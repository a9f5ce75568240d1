// Package token generates the opaque identifiers handed to clients: session
// IDs, authorization codes, and access tokens.
package token

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Token lengths for the different identifier kinds.
const (
	SessionIDLength         = 48
	AuthorizationCodeLength = 48
	AccessTokenLength       = 128
)

// New returns a cryptographically random alphanumeric string of length n.
func New(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random index: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
