package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/session"
	"github.com/ViddeM/accounts/pkg/httputil"
	"github.com/ViddeM/accounts/pkg/middleware"
)

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type sessionCtxKey struct{}

// SessionFromContext returns the session resolved by the SessionAuth
// middleware, or nil when the request carried no valid session.
func SessionFromContext(ctx context.Context) *domain.Session {
	sess, _ := ctx.Value(sessionCtxKey{}).(*domain.Session)
	return sess
}

// SessionAuth authenticates requests by their signed session cookie.
type SessionAuth struct {
	cookies  *CookieCodec
	sessions *session.Manager
	accounts repository.AccountRepository
	logger   *slog.Logger
}

// NewSessionAuth creates the session cookie authenticator.
func NewSessionAuth(
	cookies *CookieCodec,
	sessions *session.Manager,
	accounts repository.AccountRepository,
	logger *slog.Logger,
) *SessionAuth {
	return &SessionAuth{cookies: cookies, sessions: sessions, accounts: accounts, logger: logger}
}

// resolve extracts and verifies the session cookie, then loads the session and
// the owning account.
func (a *SessionAuth) resolve(r *http.Request) (*domain.Session, *domain.Account, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, nil, session.ErrNoSession
	}
	id, ok := a.cookies.Decode(cookie.Value)
	if !ok {
		return nil, nil, session.ErrNoSession
	}
	sess, err := a.sessions.Resolve(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	account, err := a.accounts.GetByID(r.Context(), sess.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return sess, account, nil
}

// clearStaleCookie drops the session cookie when the request carried one that
// no longer resolves, so clients do not keep replaying a dead session.
func (a *SessionAuth) clearStaleCookie(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(SessionCookieName); err == nil {
		a.cookies.Clear(w)
	}
}

// Middleware rejects requests without a valid session with 401.
func (a *SessionAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, account, err := a.resolve(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				a.logger.ErrorContext(r.Context(), "failed to resolve session",
					slog.String("error", err.Error()),
				)
			}
			a.clearStaleCookie(w, r)
			httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "not logged in"},
			})
			return
		}

		ctx := middleware.WithAccount(r.Context(), sess.AccountID, string(account.Authority))
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RedirectMiddleware sends requests without a valid session to the login page
// with a return_to parameter pointing back at the original URL. Used for the
// browser-facing authorization endpoint where a 401 would dead-end the flow.
func (a *SessionAuth) RedirectMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, account, err := a.resolve(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				a.logger.ErrorContext(r.Context(), "failed to resolve session",
					slog.String("error", err.Error()),
				)
			}
			a.clearStaleCookie(w, r)
			returnTo := r.URL.RequestURI()
			http.Redirect(w, r, "/login?"+url.Values{"return_to": {returnTo}}.Encode(), http.StatusFound)
			return
		}

		ctx := middleware.WithAccount(r.Context(), sess.AccountID, string(account.Authority))
		ctx = context.WithValue(ctx, sessionCtxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
