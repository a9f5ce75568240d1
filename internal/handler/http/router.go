package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/pkg/health"
	"github.com/ViddeM/accounts/pkg/middleware"
)

// RouterConfig carries the collaborators the router wires together.
type RouterConfig struct {
	Accounts    *service.AccountService
	Clients     *service.ClientService
	UserInfo    *service.UserInfoService
	Engine      *oauth.Engine
	Signer      *oauth.IDTokenSigner
	SessionAuth *SessionAuth
	Cookies     *CookieCodec
	Health      *health.Handler
	BaseURL     string
	CORS        middleware.CORSConfig
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all accounts service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestLogging(cfg.Logger))
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(middleware.PrometheusMetrics("accounts"))
	r.Use(middleware.Tracing("accounts"))

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	authHandler := NewAuthHandler(cfg.Accounts, cfg.Cookies, cfg.Logger)
	accountHandler := NewAccountHandler(cfg.Accounts, cfg.Logger)
	oauthHandler := NewOAuthHandler(cfg.Engine, cfg.Accounts, cfg.Logger)
	openidHandler := NewOpenIDHandler(cfg.UserInfo, cfg.Signer, cfg.BaseURL, cfg.Logger)
	adminHandler := NewAdminHandler(cfg.Accounts, cfg.Clients, cfg.Logger)
	externalHandler := NewExternalHandler(cfg.UserInfo, cfg.Logger)

	// Public endpoints
	r.Route("/api/auth", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/login", authHandler.Login)
		r.With(cfg.SessionAuth.Middleware).Post("/logout", authHandler.Logout)
	})

	r.Route("/api/accounts", func(r chi.Router) {
		r.With(ContentTypeJSON).Post("/", accountHandler.Create)
		// Activation arrives via the emailed link, so it is a GET.
		r.Get("/activate", accountHandler.Activate)
		r.With(ContentTypeJSON).Post("/password-reset", accountHandler.RequestReset)
		r.With(ContentTypeJSON).Put("/password-reset", accountHandler.CompleteReset)
	})

	// Session-authenticated endpoints
	r.Route("/api/me", func(r chi.Router) {
		r.Use(cfg.SessionAuth.Middleware)
		r.Get("/", authHandler.Me)
	})

	// OAuth2 flow. The authorize endpoint bounces unauthenticated browsers
	// to the login page; the token endpoint authenticates by client secret
	// or resource-owner basic auth instead of a session.
	r.Route("/api/oauth", func(r chi.Router) {
		r.With(cfg.SessionAuth.RedirectMiddleware).Get("/authorize", oauthHandler.Authorize)
		r.With(cfg.SessionAuth.Middleware, ContentTypeJSON).Post("/consent", oauthHandler.Consent)
		r.Post("/token", oauthHandler.Token)
	})

	// OpenID Connect
	r.Get("/.well-known/openid-configuration", openidHandler.Configuration)
	r.Route("/api/openid", func(r chi.Router) {
		r.Get("/userinfo", openidHandler.UserInfo)
		r.Get("/jwks", openidHandler.JWKS)
	})

	// Profile endpoint for first-party resource servers, bearer-authenticated
	// by access token introspection.
	r.With(middleware.Auth(cfg.UserInfo.Validator())).Get("/api/external/user", externalHandler.User)

	// Admin endpoints
	r.Route("/api/admin", func(r chi.Router) {
		r.Use(cfg.SessionAuth.Middleware)
		r.Use(middleware.RequireAuthority("admin"))

		r.Get("/accounts", adminHandler.ListAccounts)

		r.Get("/whitelist", adminHandler.ListWhitelist)
		r.With(ContentTypeJSON).Post("/whitelist", adminHandler.AddWhitelist)
		r.Delete("/whitelist/{email}", adminHandler.RemoveWhitelist)

		r.Get("/oauth-clients", adminHandler.ListClients)
		r.With(ContentTypeJSON).Post("/oauth-clients", adminHandler.CreateClient)
		r.Delete("/oauth-clients/{id}", adminHandler.DeleteClient)
	})

	return r
}
