package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/session"
)

// SessionCookieName is the cookie that carries the signed session identifier.
const SessionCookieName = "accounts_session"

// CookieCodec signs and verifies session cookies. The cookie value is the
// session ID followed by a dot and the base64url HMAC-SHA256 over the ID, so
// a tampered or forged ID is rejected before the session store is consulted.
type CookieCodec struct {
	key []byte
}

// NewCookieCodec creates a codec signing with the given key.
func NewCookieCodec(key []byte) *CookieCodec {
	return &CookieCodec{key: key}
}

// Encode returns the signed cookie value for a session ID.
func (c *CookieCodec) Encode(sessionID string) string {
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(sessionID))
	return sessionID + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Decode verifies a cookie value and returns the embedded session ID.
func (c *CookieCodec) Decode(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", false
	}
	mac := hmac.New(sha256.New, c.key)
	mac.Write([]byte(id))
	if subtle.ConstantTimeCompare(got, mac.Sum(nil)) != 1 {
		return "", false
	}
	return id, true
}

// SetSession writes the signed session cookie for a freshly created session.
func (c *CookieCodec) SetSession(w http.ResponseWriter, sess *domain.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    c.Encode(sess.ID),
		Path:     "/",
		MaxAge:   int(session.Lifetime / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie on the client.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
