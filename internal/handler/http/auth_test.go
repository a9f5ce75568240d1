package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/pkg/httputil"
)

func (env *testEnv) sealedDetails(t *testing.T, account *domain.Account, email, pass string) *domain.LoginDetails {
	t.Helper()
	ciphertext, nonce, err := env.codec.Seal(pass)
	require.NoError(t, err)
	activated := time.Now().UTC().Add(-time.Hour)
	return &domain.LoginDetails{
		AccountID:   account.ID,
		Email:       email,
		Password:    ciphertext,
		Nonce:       nonce,
		ActivatedAt: &activated,
	}
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, target string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	details := env.sealedDetails(t, account, "alva@example.com", "correct horse battery")

	env.logins.On("GetByEmail", mock.Anything, "alva@example.com").Return(details, nil)
	env.logins.On("ClearLoginFailures", mock.Anything, account.ID).Return(nil)

	req := postJSON(t, "/api/auth/login", LoginRequest{Email: "alva@example.com", Password: "correct horse battery"})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	id, ok := env.cookies.Decode(cookie.Value)
	require.True(t, ok)
	assert.True(t, env.redis.Exists("sessions:"+id))
	env.logins.AssertExpectations(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	details := env.sealedDetails(t, account, "alva@example.com", "correct horse battery")

	env.logins.On("GetByEmail", mock.Anything, "alva@example.com").Return(details, nil)
	env.logins.On("RecordLoginFailure", mock.Anything, account.ID, 1, mock.Anything).Return(nil)

	req := postJSON(t, "/api/auth/login", LoginRequest{Email: "alva@example.com", Password: "nope"})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestLogin_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	req := postJSON(t, "/api/auth/login", LoginRequest{Email: "not-an-email", Password: "x"})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestLogin_ReturnToRedirect(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	details := env.sealedDetails(t, account, "alva@example.com", "correct horse battery")

	env.logins.On("GetByEmail", mock.Anything, "alva@example.com").Return(details, nil)
	env.logins.On("ClearLoginFailures", mock.Anything, account.ID).Return(nil)

	req := postJSON(t, "/api/auth/login?return_to=%2Fapi%2Foauth%2Fauthorize%3Fclient_id%3Dabc", LoginRequest{
		Email:    "alva@example.com",
		Password: "correct horse battery",
	})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/oauth/authorize?client_id=abc", rec.Header().Get("Location"))
}

func TestLogin_ExternalReturnToIgnored(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	details := env.sealedDetails(t, account, "alva@example.com", "correct horse battery")

	env.logins.On("GetByEmail", mock.Anything, "alva@example.com").Return(details, nil)
	env.logins.On("ClearLoginFailures", mock.Anything, account.ID).Return(nil)

	req := postJSON(t, "/api/auth/login?return_to=https%3A%2F%2Fevil.example", LoginRequest{
		Email:    "alva@example.com",
		Password: "correct horse battery",
	})
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestLogout_Success(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	cookie := env.loginAs(t, account)

	id, ok := env.cookies.Decode(cookie.Value)
	require.True(t, ok)
	require.True(t, env.redis.Exists("sessions:"+id))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.redis.Exists("sessions:"+id))

	cleared := sessionCookie(t, rec)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogout_ClearsCookieWhenRevokeFails(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	cookie := env.loginAs(t, account)

	id, ok := env.cookies.Decode(cookie.Value)
	require.True(t, ok)
	sess, err := env.sessions.Resolve(context.Background(), id)
	require.NoError(t, err)

	// Redis dies between session resolution and revocation. The record ages
	// out by TTL; the browser must still lose the cookie now.
	env.redis.SetError("connection refused")

	h := NewAuthHandler(env.accountSvc, env.cookies, newTestLogger())
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req = req.WithContext(context.WithValue(req.Context(), sessionCtxKey{}, sess))
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(t, rec)
	assert.Less(t, cleared.MaxAge, 0)
}

func TestLogout_NoSession(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_TamperedCookie(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	cookie := env.loginAs(t, account)
	cookie.Value = "forged-session-id." + cookie.Value[len(cookie.Value)-10:]

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMe_Success(t *testing.T) {
	env := newTestEnv(t)
	account := userAccount()
	cookie := env.loginAs(t, account)
	details := env.sealedDetails(t, account, "alva@example.com", "pw")
	env.logins.On("GetByAccountID", mock.Anything, account.ID).Return(details, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data MeResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, account.ID, resp.Data.ID)
	assert.Equal(t, "alva@example.com", resp.Data.Email)
	assert.Equal(t, "user", resp.Data.Authority)
}

func TestMe_Unauthenticated(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_WrongContentType(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader([]byte("email=a")))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}
