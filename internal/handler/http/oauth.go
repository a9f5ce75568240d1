package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/httputil"
	"github.com/ViddeM/accounts/pkg/middleware"
	"github.com/ViddeM/accounts/pkg/validator"
)

// OAuthHandler handles the OAuth2 authorization-code flow endpoints.
type OAuthHandler struct {
	engine   *oauth.Engine
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewOAuthHandler creates a new OAuth2 HTTP handler.
func NewOAuthHandler(engine *oauth.Engine, accounts *service.AccountService, logger *slog.Logger) *OAuthHandler {
	return &OAuthHandler{engine: engine, accounts: accounts, logger: logger}
}

// ConsentPrompt is returned from the authorization endpoint when the account
// has not yet consented to the client. It carries everything the consent page
// needs to render and to post the decision back.
type ConsentPrompt struct {
	ConsentRequired bool     `json:"consent_required"`
	ClientName      string   `json:"client_name"`
	Scopes          []string `json:"scopes"`
	Scope           string   `json:"scope"`
	ClientID        string   `json:"client_id"`
	State           string   `json:"state"`
	ResponseType    string   `json:"response_type"`
	RedirectURI     string   `json:"redirect_uri"`
}

// Authorize handles GET /api/oauth/authorize
// The route is mounted behind the session redirect middleware, so an
// unauthenticated browser is bounced to the login page instead.
func (h *OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := oauth.AuthorizeRequest{
		ResponseType: q.Get("response_type"),
		ClientID:     q.Get("client_id"),
		RedirectURI:  q.Get("redirect_uri"),
		State:        q.Get("state"),
		Scope:        q.Get("scope"),
		AccountID:    middleware.AccountIDFromContext(r.Context()),
	}

	redirect, err := h.engine.Authorize(r.Context(), req)
	if err != nil {
		var consent *oauth.ConsentRequiredError
		if errors.As(err, &consent) {
			scopes := make([]string, len(consent.Scopes))
			for i, s := range consent.Scopes {
				scopes[i] = string(s)
			}
			httputil.WriteJSON(w, http.StatusOK, httputil.Response{
				Data: ConsentPrompt{
					ConsentRequired: true,
					ClientName:      consent.ClientName,
					Scopes:          scopes,
					Scope:           domain.JoinScopes(consent.Scopes),
					ClientID:        req.ClientID,
					State:           req.State,
					ResponseType:    req.ResponseType,
					RedirectURI:     req.RedirectURI,
				},
			})
			return
		}
		h.writeAuthorizeError(w, r, err)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *OAuthHandler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, oauth.ErrInvalidResponseType):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_RESPONSE_TYPE", Message: "unsupported response_type"},
		})
	case errors.Is(err, oauth.ErrInvalidScope):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "invalid scope"},
		})
	case errors.Is(err, oauth.ErrNoClient):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_CLIENT_ID", Message: "no client with that client_id"},
		})
	case errors.Is(err, oauth.ErrInvalidRedirectURI):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_REDIRECT_URI", Message: "redirect_uri does not match the registered client"},
		})
	case errors.Is(err, oauth.ErrScopeNotRegistered):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "client is not registered for a requested scope"},
		})
	default:
		httputil.WriteError(w, r, err, h.logger)
	}
}

// ConsentRequest is the JSON request body for answering a consent prompt.
// Except for Accept the fields echo the ConsentPrompt the page was rendered
// from.
type ConsentRequest struct {
	Accept       bool   `json:"accept"`
	Scope        string `json:"scope" validate:"required"`
	ClientID     string `json:"client_id" validate:"required"`
	State        string `json:"state"`
	ResponseType string `json:"response_type" validate:"required"`
	RedirectURI  string `json:"redirect_uri" validate:"required"`
}

// Consent handles POST /api/oauth/consent
func (h *OAuthHandler) Consent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req ConsentRequest
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

	if !req.Accept {
		// The user declined; hand them back to the client, but only to its
		// registered redirect URI.
		if err := h.engine.ValidateRedirect(r.Context(), req.ClientID, req.RedirectURI); err != nil {
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_REDIRECT_URI", Message: "redirect_uri does not match the registered client"},
			})
			return
		}
		http.Redirect(w, r, req.RedirectURI, http.StatusFound)
		return
	}

	scopes, err := domain.ParseScopes(req.Scope)
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "invalid scope"},
		})
		return
	}

	accountID := middleware.AccountIDFromContext(r.Context())
	if err := h.engine.Consent(r.Context(), accountID, req.ClientID, scopes); err != nil {
		switch {
		case errors.Is(err, oauth.ErrNoClient):
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_CLIENT_ID", Message: "no client with that client_id"},
			})
		case errors.Is(err, oauth.ErrScopeNotRegistered):
			httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "client is not registered for a requested scope"},
			})
		default:
			httputil.WriteError(w, r, err, h.logger)
		}
		return
	}

	// Consent is recorded; send the browser back through authorization to
	// pick up its code.
	authorizeURL := "/api/oauth/authorize?" + url.Values{
		"response_type": {req.ResponseType},
		"client_id":     {req.ClientID},
		"redirect_uri":  {req.RedirectURI},
		"state":         {req.State},
		"scope":         {req.Scope},
	}.Encode()
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// Token handles POST /api/oauth/token
// With form credentials it performs the authorization-code exchange. With an
// Authorization: Basic header carrying the resource owner's email and
// password it issues a token directly for the given client_id.
func (h *OAuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid form body: " + err.Error()},
		})
		return
	}

	if email, pass, ok := r.BasicAuth(); ok {
		h.tokenBasicAuth(w, r, email, pass)
		return
	}

	resp, err := h.engine.Exchange(r.Context(), oauth.TokenRequest{
		GrantType:    r.Form.Get("grant_type"),
		ClientID:     r.Form.Get("client_id"),
		ClientSecret: r.Form.Get("client_secret"),
		RedirectURI:  r.Form.Get("redirect_uri"),
		Code:         r.Form.Get("code"),
	})
	if err != nil {
		h.writeTokenError(w, r, err)
		return
	}

	writeToken(w, resp)
}

// tokenBasicAuth issues an access token straight from the resource owner's
// credentials, skipping the code dance. Used by first-party clients.
func (h *OAuthHandler) tokenBasicAuth(w http.ResponseWriter, r *http.Request, email, pass string) {
	clientID := r.Form.Get("client_id")
	if clientID == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "client_id is required"},
		})
		return
	}

	scopes, err := domain.ParseScopes(r.Form.Get("scope"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_SCOPE", Message: "invalid scope"},
		})
		return
	}

	details, err := h.accounts.Authenticate(r.Context(), email, pass)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp, err := h.engine.IssueDirect(r.Context(), clientID, details.AccountID, scopes)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	writeToken(w, resp)
}

func (h *OAuthHandler) writeTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, oauth.ErrInvalidGrantType):
		httputil.WriteJSON(w, http.StatusUnprocessableEntity, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_GRANT_TYPE", Message: "unsupported grant_type"},
		})
	case errors.Is(err, oauth.ErrNoClient):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_CLIENT_ID", Message: "no client with that client_id"},
		})
	case errors.Is(err, oauth.ErrInvalidRedirectURI):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_REDIRECT_URI", Message: "redirect_uri does not match the registered client"},
		})
	case errors.Is(err, oauth.ErrInvalidClientSecret):
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_CLIENT_SECRET", Message: "invalid client secret"},
		})
	case errors.Is(err, oauth.ErrInvalidCode):
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_CODE", Message: "invalid authorization code"},
		})
	default:
		httputil.WriteError(w, r, err, h.logger)
	}
}

// writeToken writes a token response in the OAuth2 wire format, no envelope.
func writeToken(w http.ResponseWriter, resp *oauth.TokenResponse) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	httputil.WriteJSON(w, http.StatusOK, resp)
}
