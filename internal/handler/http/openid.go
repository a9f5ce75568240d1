package http

import (
	"encoding/base64"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/httputil"
)

// OpenIDHandler serves the OpenID Connect discovery and userinfo endpoints.
type OpenIDHandler struct {
	userinfo *service.UserInfoService
	signer   *oauth.IDTokenSigner
	baseURL  string
	logger   *slog.Logger
}

// NewOpenIDHandler creates a new OpenID HTTP handler. signer may be nil when
// ID token issuance is disabled.
func NewOpenIDHandler(userinfo *service.UserInfoService, signer *oauth.IDTokenSigner, baseURL string, logger *slog.Logger) *OpenIDHandler {
	return &OpenIDHandler{userinfo: userinfo, signer: signer, baseURL: strings.TrimRight(baseURL, "/"), logger: logger}
}

// UserInfo handles GET /api/openid/userinfo
// The response is the bare OIDC claim set, no envelope.
func (h *OpenIDHandler) UserInfo(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "missing bearer token"},
		})
		return
	}

	info, err := h.userinfo.Resolve(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// openIDConfiguration is the discovery document shape.
type openIDConfiguration struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JwksURI                          string   `json:"jwks_uri,omitempty"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	ResponseModesSupported           []string `json:"response_modes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

// Configuration handles GET /.well-known/openid-configuration
func (h *OpenIDHandler) Configuration(w http.ResponseWriter, r *http.Request) {
	cfg := openIDConfiguration{
		Issuer:                           h.baseURL,
		AuthorizationEndpoint:            h.baseURL + "/api/oauth/authorize",
		TokenEndpoint:                    h.baseURL + "/api/oauth/token",
		UserinfoEndpoint:                 h.baseURL + "/api/openid/userinfo",
		ScopesSupported:                  []string{"email", "openid"},
		ResponseTypesSupported:           []string{"code"},
		ResponseModesSupported:           []string{"query"},
		GrantTypesSupported:              []string{"authorization_code"},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256"},
		ClaimsSupported:                  []string{"iss", "sub", "aud", "iat", "exp", "email"},
	}
	if h.signer != nil {
		cfg.JwksURI = h.baseURL + "/api/openid/jwks"
	}
	httputil.WriteJSON(w, http.StatusOK, cfg)
}

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// JWKS handles GET /api/openid/jwks
func (h *OpenIDHandler) JWKS(w http.ResponseWriter, r *http.Request) {
	if h.signer == nil {
		httputil.WriteJSON(w, http.StatusOK, jwks{Keys: []jwk{}})
		return
	}

	pub := h.signer.PublicKey()
	httputil.WriteJSON(w, http.StatusOK, jwks{Keys: []jwk{{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
}
