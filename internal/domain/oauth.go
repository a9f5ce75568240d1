package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Scope is an OAuth2 scope a client may request.
type Scope string

const (
	ScopeEmail  Scope = "email"
	ScopeOpenID Scope = "openid"
)

// ParseScope converts a raw scope token into a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "email":
		return ScopeEmail, nil
	case "openid":
		return ScopeOpenID, nil
	default:
		return "", fmt.Errorf("unsupported scope %q", s)
	}
}

// ParseScopes parses a space-separated scope string. An empty string yields
// the default scope set {openid}.
func ParseScopes(raw string) ([]Scope, error) {
	if raw == "" {
		return []Scope{ScopeOpenID}, nil
	}

	seen := make(map[Scope]struct{})
	var scopes []Scope
	for _, tok := range strings.Split(raw, " ") {
		scope, err := ParseScope(tok)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		scopes = append(scopes, scope)
	}

	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes, nil
}

// JoinScopes renders a scope list back to the space-separated wire format.
func JoinScopes(scopes []Scope) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, " ")
}

// OauthClient is a registered OAuth2 client application.
type OauthClient struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"-"`
	ClientName   string    `json:"client_name"`
	RedirectURI  string    `json:"redirect_uri"`
	CreatedAt    time.Time `json:"created_at"`
	ModifiedAt   time.Time `json:"modified_at"`
}

// ClientScope is a scope registered for a client.
type ClientScope struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
}

// Consent records that an account granted a client access.
type Consent struct {
	ID          string    `json:"id"`
	ClientID    string    `json:"client_id"`
	AccountID   string    `json:"account_id"`
	ConsentedOn time.Time `json:"consented_on"`
}

// ConsentedScope links a consent to one of the client's registered scopes.
type ConsentedScope struct {
	ID            string    `json:"id"`
	ConsentID     string    `json:"consent_id"`
	ClientScopeID string    `json:"client_scope_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuthorizationCode is a single-use OAuth2 authorization code held in the
// ephemeral store.
type AuthorizationCode struct {
	Code      string    `json:"code"`
	ClientID  string    `json:"client_id"`
	AccountID string    `json:"account_id"`
	Scopes    []Scope   `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
}

// AccessToken is an issued OAuth2 access token held in the ephemeral store.
type AccessToken struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	AccountID string    `json:"account_id"`
	Scopes    []Scope   `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
