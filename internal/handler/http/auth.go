package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/httputil"
	"github.com/ViddeM/accounts/pkg/middleware"
	"github.com/ViddeM/accounts/pkg/validator"
)

// AuthHandler handles HTTP requests for login sessions.
type AuthHandler struct {
	service *service.AccountService
	cookies *CookieCodec
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AccountService, cookies *CookieCodec, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// LoginRequest is the JSON request body for logging in.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse reports the account a session was opened for.
type LoginResponse struct {
	AccountID string `json:"account_id"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	sess, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.SetSession(w, sess)

	// After an interrupted authorization flow the login page passes the
	// original URL along so the user lands back where they started.
	if returnTo := r.URL.Query().Get("return_to"); safeReturnTo(returnTo) {
		http.Redirect(w, r, returnTo, http.StatusFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: LoginResponse{AccountID: sess.AccountID},
	})
}

// Logout handles POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if sess == nil {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "not logged in"},
		})
		return
	}

	// A failed revoke leaves the record to age out via its TTL; the browser
	// must still lose the cookie either way.
	if err := h.service.Logout(r.Context(), sess); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to revoke session on logout",
			slog.String("account_id", sess.AccountID),
			slog.String("error", err.Error()),
		)
	}

	h.cookies.Clear(w)
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"status": "logged out"},
	})
}

// MeResponse is the profile returned for the logged-in account.
type MeResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Authority string `json:"authority"`
}

// Me handles GET /api/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := middleware.AccountIDFromContext(r.Context())
	if accountID == "" {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "not logged in"},
		})
		return
	}

	account, email, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: MeResponse{
			ID:        account.ID,
			FirstName: account.FirstName,
			LastName:  account.LastName,
			Email:     email,
			Authority: string(account.Authority),
		},
	})
}

// safeReturnTo accepts only site-local paths, so the login endpoint cannot be
// abused as an open redirect.
func safeReturnTo(target string) bool {
	return strings.HasPrefix(target, "/") && !strings.HasPrefix(target, "//")
}
