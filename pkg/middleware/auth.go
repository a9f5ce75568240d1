package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKeyType string

const (
	accountIDKey contextKeyType = "account_id"
	authorityKey contextKeyType = "authority"
	scopesKey    contextKeyType = "scopes"
)

// Claims represents the principal extracted by the auth middleware.
type Claims struct {
	AccountID string   `json:"account_id"`
	Email     string   `json:"email"`
	Authority string   `json:"authority"`
	Scopes    []string `json:"scopes,omitempty"`
}

// TokenValidator validates a bearer token and returns the claims bound to it.
// This lets the server inject its own validation logic (access token lookup,
// session resolution).
type TokenValidator func(ctx context.Context, token string) (*Claims, error)

// Auth middleware validates bearer tokens and injects the principal into context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeAuthError(w, "invalid authorization header format")
				return
			}

			claims, err := validate(r.Context(), parts[1])
			if err != nil {
				writeAuthError(w, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey, claims.AccountID)
			ctx = context.WithValue(ctx, authorityKey, claims.Authority)
			if len(claims.Scopes) > 0 {
				ctx = context.WithValue(ctx, scopesKey, claims.Scopes)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuthority middleware checks that the authenticated account has one of
// the required authority levels.
func RequireAuthority(authorities ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(authorities))
	for _, a := range authorities {
		allowed[a] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authority := AuthorityFromContext(r.Context())
			if _, ok := allowed[authority]; !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "FORBIDDEN",
					"message": "insufficient permissions",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountIDFromContext extracts the account ID from the request context.
func AccountIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(accountIDKey).(string); ok {
		return id
	}
	return ""
}

// AuthorityFromContext extracts the account authority from the request context.
func AuthorityFromContext(ctx context.Context) string {
	if authority, ok := ctx.Value(authorityKey).(string); ok {
		return authority
	}
	return ""
}

// ScopesFromContext extracts the granted scopes from the request context.
func ScopesFromContext(ctx context.Context) []string {
	if scopes, ok := ctx.Value(scopesKey).([]string); ok {
		return scopes
	}
	return nil
}

// WithAccount returns a context carrying the given account principal. It is
// used by the session cookie middleware, which authenticates the same way the
// bearer path does but from a different credential.
func WithAccount(ctx context.Context, accountID, authority string) context.Context {
	ctx = context.WithValue(ctx, accountIDKey, accountID)
	return context.WithValue(ctx, authorityKey, authority)
}

func writeAuthError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    "UNAUTHORIZED",
		"message": message,
	})
}
