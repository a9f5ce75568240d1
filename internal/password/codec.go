// Package password implements the credential codec: passwords are hashed
// with Argon2id and the resulting PHC string is sealed under a server-side
// pepper key with AES-256-GCM before it reaches the database.
package password

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id cost parameters. Memory is ~38 MiB with a single pass; the
	// low iteration count is compensated by the memory cost.
	defaultMemoryKiB   uint32 = 38798
	defaultIterations  uint32 = 1
	defaultParallelism uint8  = 1
	defaultSaltLength  uint32 = 16
	defaultKeyLength   uint32 = 32

	algorithmID = "argon2id"

	pepperKeyLength = 32
)

var (
	// ErrInvalidPepper is returned when the pepper key is not a valid
	// AES-256 key.
	ErrInvalidPepper = errors.New("pepper key must be 32 bytes")

	errInvalidPHC = errors.New("invalid PHC format")
)

// Codec hashes and seals passwords. A Codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD

	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint32
	keyLength   uint32
}

// NewCodec builds a codec from the raw 32-byte pepper key.
func NewCodec(pepper []byte) (*Codec, error) {
	if len(pepper) != pepperKeyLength {
		return nil, ErrInvalidPepper
	}

	block, err := aes.NewCipher(pepper)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}

	return &Codec{
		aead:        aead,
		memory:      defaultMemoryKiB,
		iterations:  defaultIterations,
		parallelism: defaultParallelism,
		saltLength:  defaultSaltLength,
		keyLength:   defaultKeyLength,
	}, nil
}

// Seal hashes the password with Argon2id and encrypts the PHC string under
// the pepper key. It returns the hex-encoded ciphertext and the hex-encoded
// nonce, which are stored in separate columns.
func (c *Codec) Seal(password string) (ciphertext, nonce string, err error) {
	phc, err := c.hash(password)
	if err != nil {
		return "", "", err
	}

	// AES-GCM requires a unique nonce per encryption under the same key.
	rawNonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, rawNonce); err != nil {
		return "", "", fmt.Errorf("read nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, rawNonce, []byte(phc), nil)

	return hex.EncodeToString(sealed), hex.EncodeToString(rawNonce), nil
}

// Verify reports whether the candidate password matches the stored envelope.
// Any failure along the way, from malformed hex through decryption failure to
// a hash mismatch, yields false; storage corruption must be indistinguishable
// from a wrong password to the caller.
func (c *Codec) Verify(candidate, ciphertext, nonce string) bool {
	sealed, err := hex.DecodeString(ciphertext)
	if err != nil {
		return false
	}
	rawNonce, err := hex.DecodeString(nonce)
	if err != nil || len(rawNonce) != c.aead.NonceSize() {
		return false
	}

	phc, err := c.aead.Open(nil, rawNonce, sealed, nil)
	if err != nil {
		return false
	}

	parsed, err := parsePHC(string(phc))
	if err != nil {
		return false
	}

	computed := argon2.IDKey(
		[]byte(candidate),
		parsed.salt,
		parsed.iterations,
		parsed.memory,
		parsed.parallelism,
		uint32(len(parsed.hash)),
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1
}

// hash derives the Argon2id digest and renders it in PHC string format.
func (c *Codec) hash(password string) (string, error) {
	salt := make([]byte, c.saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, c.iterations, c.memory, c.parallelism, c.keyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		c.memory,
		c.iterations,
		c.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

type parsedPHC struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errInvalidPHC
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, errors.New("invalid argon2 version")
	}
	if version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var p parsedPHC
	for _, pair := range strings.Split(parts[3], ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, errInvalidPHC
		}
		v, err := strconv.ParseUint(kv[1], 10, 32)
		if err != nil {
			return nil, errInvalidPHC
		}
		switch kv[0] {
		case "m":
			p.memory = uint32(v)
		case "t":
			p.iterations = uint32(v)
		case "p":
			if v > 255 {
				return nil, errInvalidPHC
			}
			p.parallelism = uint8(v)
		default:
			return nil, errInvalidPHC
		}
	}
	if p.memory == 0 || p.iterations == 0 || p.parallelism == 0 {
		return nil, errInvalidPHC
	}

	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errors.New("invalid hash encoding")
	}
	if len(p.salt) == 0 || len(p.hash) == 0 {
		return nil, errInvalidPHC
	}

	return &p, nil
}
