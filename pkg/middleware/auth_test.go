package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticValidator(token string, claims *Claims) TokenValidator {
	return func(ctx context.Context, got string) (*Claims, error) {
		if got != token {
			return nil, errors.New("unknown token")
		}
		return claims, nil
	}
}

func TestAuth_ValidToken_InjectsPrincipal(t *testing.T) {
	var gotAccountID, gotAuthority string
	var gotScopes []string

	handler := Auth(staticValidator("tok-1", &Claims{
		AccountID: "acc-1",
		Authority: "admin",
		Scopes:    []string{"profile", "email"},
	}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccountID = AccountIDFromContext(r.Context())
		gotAuthority = AuthorityFromContext(r.Context())
		gotScopes = ScopesFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "acc-1", gotAccountID)
	assert.Equal(t, "admin", gotAuthority)
	assert.Equal(t, []string{"profile", "email"}, gotScopes)
}

func TestAuth_MissingHeader(t *testing.T) {
	handler := Auth(staticValidator("tok-1", &Claims{AccountID: "acc-1"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without credentials")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestAuth_MalformedHeader(t *testing.T) {
	handler := Auth(staticValidator("tok-1", &Claims{AccountID: "acc-1"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run without credentials")
		}))

	for _, header := range []string{"tok-1", "Basic dXNlcjpwYXNz"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
	}
}

func TestAuth_BearerIsCaseInsensitive(t *testing.T) {
	handler := Auth(staticValidator("tok-1", &Claims{AccountID: "acc-1"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer tok-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAuth_RejectedToken(t *testing.T) {
	handler := Auth(staticValidator("tok-1", &Claims{AccountID: "acc-1"}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run with a rejected token")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequireAuthority_Allowed(t *testing.T) {
	handler := RequireAuthority("admin", "superuser")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithAccount(req.Context(), "acc-1", "admin"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireAuthority_Forbidden(t *testing.T) {
	handler := RequireAuthority("admin")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run for a plain user")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithAccount(req.Context(), "acc-1", "user"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestContextAccessors_ZeroValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, AccountIDFromContext(ctx))
	assert.Empty(t, AuthorityFromContext(ctx))
	assert.Nil(t, ScopesFromContext(ctx))
}

func TestWithAccount_RoundTrip(t *testing.T) {
	ctx := WithAccount(context.Background(), "acc-9", "user")
	assert.Equal(t, "acc-9", AccountIDFromContext(ctx))
	assert.Equal(t, "user", AuthorityFromContext(ctx))
}
