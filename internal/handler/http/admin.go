package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/httputil"
	"github.com/ViddeM/accounts/pkg/validator"
)

// AdminHandler handles the admin-only management endpoints.
type AdminHandler struct {
	accounts *service.AccountService
	clients  *service.ClientService
	logger   *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(accounts *service.AccountService, clients *service.ClientService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, clients: clients, logger: logger}
}

// --- Whitelist ---

// WhitelistRequest is the JSON request body for adding a whitelist entry.
type WhitelistRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ListWhitelist handles GET /api/admin/whitelist
func (h *AdminHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accounts.ListWhitelist(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: entries})
}

// AddWhitelist handles POST /api/admin/whitelist
func (h *AdminHandler) AddWhitelist(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req WhitelistRequest
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

	entry, err := h.accounts.AddToWhitelist(r.Context(), req.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: entry})
}

// RemoveWhitelist handles DELETE /api/admin/whitelist/{email}
func (h *AdminHandler) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.accounts.RemoveFromWhitelist(r.Context(), email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"email": email, "status": "removed"},
	})
}

// --- OAuth clients ---

// CreateClientRequest is the JSON request body for registering an OAuth client.
type CreateClientRequest struct {
	ClientName  string   `json:"client_name" validate:"required,min=1,max=100"`
	RedirectURI string   `json:"redirect_uri" validate:"required,url"`
	Scopes      []string `json:"scopes" validate:"omitempty,dive,oneof=email openid"`
}

// CreateClientResponse returns the registration together with the secret,
// which is only disclosed here.
type CreateClientResponse struct {
	Client       *domain.OauthClient `json:"client"`
	ClientSecret string              `json:"client_secret"`
}

// ListClients handles GET /api/admin/oauth-clients
func (h *AdminHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clients.ListClients(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: clients})
}

// CreateClient handles POST /api/admin/oauth-clients
func (h *AdminHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CreateClientRequest
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

	scopes := make([]domain.Scope, 0, len(req.Scopes))
	for _, raw := range req.Scopes {
		scope, err := domain.ParseScope(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "unknown scope: " + raw},
			})
			return
		}
		scopes = append(scopes, scope)
	}

	client, secret, err := h.clients.CreateClient(r.Context(), service.CreateClientInput{
		ClientName:  req.ClientName,
		RedirectURI: req.RedirectURI,
		Scopes:      scopes,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{
		Data: CreateClientResponse{Client: client, ClientSecret: secret},
	})
}

// DeleteClient handles DELETE /api/admin/oauth-clients/{id}
func (h *AdminHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.clients.DeleteClient(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"id": id, "status": "deleted"},
	})
}

// --- Accounts ---

// ListAccounts handles GET /api/admin/accounts
func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAccounts(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: accounts})
}
