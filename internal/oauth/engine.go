package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/token"
	apperrors "github.com/ViddeM/accounts/pkg/errors"
)

const (
	// CodeTTL is how long an authorization code stays redeemable.
	CodeTTL = 5 * time.Minute

	// TokenTTL is the lifetime of an issued access token.
	TokenTTL = time.Hour

	codeKeyPrefix  = "authorization_codes:"
	tokenKeyPrefix = "access_tokens:"

	responseTypeCode       = "code"
	grantTypeAuthorization = "authorization_code"
)

var (
	ErrInvalidResponseType = errors.New("unsupported response_type")
	ErrInvalidGrantType    = errors.New("unsupported grant_type")
	ErrInvalidScope        = errors.New("invalid scope")
	ErrNoClient            = errors.New("no client with that client_id")
	ErrScopeNotRegistered  = errors.New("client is not registered for a requested scope")
	ErrInvalidRedirectURI  = errors.New("redirect_uri does not match client")
	ErrInvalidClientSecret = errors.New("invalid client secret")
	ErrInvalidCode         = errors.New("invalid authorization code")
	ErrInvalidToken        = errors.New("invalid access token")
)

// ConsentRequiredError signals that the account has not yet consented to the
// client receiving the requested scopes.
type ConsentRequiredError struct {
	ClientName string
	Scopes     []domain.Scope
}

func (e *ConsentRequiredError) Error() string {
	return fmt.Sprintf("consent required for client %q", e.ClientName)
}

// AuthorizeRequest carries the query parameters of an authorization request
// together with the authenticated account.
type AuthorizeRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	State        string
	Scope        string
	AccountID    string
}

// TokenRequest carries the parameters of an authorization-code exchange.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Code         string
}

// TokenResponse is the wire shape of a successful token issuance.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope"`
	IDToken     string `json:"id_token,omitempty"`
}

// Engine implements the OAuth2 authorization-code flow backed by postgres
// client registrations and redis-held codes and tokens.
type Engine struct {
	clients  repository.OauthClientRepository
	consents repository.ConsentRepository
	rdb      *redis.Client
	signer   *IDTokenSigner
	logger   *slog.Logger

	now func() time.Time
}

// NewEngine creates an OAuth2 engine.
func NewEngine(
	clients repository.OauthClientRepository,
	consents repository.ConsentRepository,
	rdb *redis.Client,
	signer *IDTokenSigner,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		clients:  clients,
		consents: consents,
		rdb:      rdb,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
	}
}

// Authorize validates an authorization request for a logged-in account and,
// when the account has already consented, mints a single-use authorization
// code and returns the redirect URL the user agent should be sent to.
func (e *Engine) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ResponseType != responseTypeCode {
		return "", ErrInvalidResponseType
	}

	scopes, err := domain.ParseScopes(req.Scope)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}

	client, err := e.lookupClient(ctx, req.ClientID)
	if err != nil {
		return "", err
	}

	if req.RedirectURI != client.RedirectURI {
		e.logger.ErrorContext(ctx, "redirect_uri does not match client registration",
			slog.String("client_id", req.ClientID),
			slog.String("redirect_uri", req.RedirectURI),
		)
		return "", ErrInvalidRedirectURI
	}

	if err := e.checkScopesRegistered(ctx, client, scopes); err != nil {
		return "", err
	}

	if err := e.checkConsent(ctx, client, req.AccountID, scopes); err != nil {
		return "", err
	}

	code, err := token.New(token.AuthorizationCodeLength)
	if err != nil {
		return "", fmt.Errorf("generate authorization code: %w", err)
	}

	record := domain.AuthorizationCode{
		Code:      code,
		ClientID:  req.ClientID,
		AccountID: req.AccountID,
		Scopes:    scopes,
		CreatedAt: e.now().UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("marshal authorization code: %w", err)
	}
	if err := e.rdb.Set(ctx, codeKeyPrefix+code, payload, CodeTTL).Err(); err != nil {
		return "", fmt.Errorf("store authorization code: %w", err)
	}

	e.logger.InfoContext(ctx, "authorization code issued",
		slog.String("client_id", req.ClientID),
		slog.String("account_id", req.AccountID),
		slog.String("scope", domain.JoinScopes(scopes)),
	)

	query := url.Values{
		"state": {req.State},
		"code":  {code},
	}
	return client.RedirectURI + "?" + query.Encode(), nil
}

// Consent records that the account grants the client the requested scopes.
func (e *Engine) Consent(ctx context.Context, accountID, clientID string, scopes []domain.Scope) error {
	client, err := e.lookupClient(ctx, clientID)
	if err != nil {
		return err
	}

	registered, err := e.clients.ListScopes(ctx, client.ID)
	if err != nil {
		return fmt.Errorf("list client scopes: %w", err)
	}

	byScope := make(map[domain.Scope]string, len(registered))
	for _, cs := range registered {
		byScope[cs.Scope] = cs.ID
	}

	scopeIDs := make([]string, 0, len(scopes))
	for _, s := range scopes {
		id, ok := byScope[s]
		if !ok {
			return ErrScopeNotRegistered
		}
		scopeIDs = append(scopeIDs, id)
	}

	if _, err := e.consents.Grant(ctx, client.ID, accountID, scopeIDs); err != nil {
		return fmt.Errorf("grant consent: %w", err)
	}

	e.logger.InfoContext(ctx, "consent granted",
		slog.String("client_id", clientID),
		slog.String("account_id", accountID),
		slog.String("scope", domain.JoinScopes(scopes)),
	)
	return nil
}

// Exchange redeems an authorization code for an access token. The code is
// deleted before the token is issued so a replayed exchange can never mint a
// second token.
func (e *Engine) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != grantTypeAuthorization {
		return nil, ErrInvalidGrantType
	}

	client, err := e.lookupClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	if req.RedirectURI != client.RedirectURI {
		e.logger.ErrorContext(ctx, "redirect_uri does not match client registration",
			slog.String("client_id", req.ClientID),
			slog.String("redirect_uri", req.RedirectURI),
		)
		return nil, ErrInvalidRedirectURI
	}

	if subtle.ConstantTimeCompare([]byte(req.ClientSecret), []byte(client.ClientSecret)) != 1 {
		e.logger.ErrorContext(ctx, "client_secret does not match client registration",
			slog.String("client_id", req.ClientID),
		)
		return nil, ErrInvalidClientSecret
	}

	key := codeKeyPrefix + req.Code
	payload, err := e.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidCode
	}
	if err != nil {
		return nil, fmt.Errorf("load authorization code: %w", err)
	}

	var record domain.AuthorizationCode
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal authorization code: %w", err)
	}

	if record.ClientID != req.ClientID {
		e.logger.ErrorContext(ctx, "authorization code was issued to a different client",
			slog.String("client_id", req.ClientID),
			slog.String("code_client_id", record.ClientID),
		)
		return nil, ErrNoClient
	}

	// The request has met every requirement. Burn the code first so it can
	// never be redeemed twice.
	if err := e.rdb.Del(ctx, key).Err(); err != nil {
		return nil, fmt.Errorf("delete authorization code: %w", err)
	}

	return e.issue(ctx, record.ClientID, record.AccountID, record.Scopes)
}

// IssueDirect mints an access token outside the authorization-code flow. The
// caller is responsible for having authenticated the resource owner.
func (e *Engine) IssueDirect(ctx context.Context, clientID, accountID string, scopes []domain.Scope) (*TokenResponse, error) {
	return e.issue(ctx, clientID, accountID, scopes)
}

// Introspect resolves an access token to its stored record. Records whose
// embedded expiry has passed are deleted and reported as invalid.
func (e *Engine) Introspect(ctx context.Context, accessToken string) (*domain.AccessToken, error) {
	key := tokenKeyPrefix + accessToken

	payload, err := e.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("load access token: %w", err)
	}

	var record domain.AccessToken
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal access token: %w", err)
	}

	if !e.now().Before(record.ExpiresAt) {
		if err := e.rdb.Del(ctx, key).Err(); err != nil {
			e.logger.WarnContext(ctx, "failed to delete expired access token", slog.Any("error", err))
		}
		return nil, ErrInvalidToken
	}

	return &record, nil
}

func (e *Engine) issue(ctx context.Context, clientID, accountID string, scopes []domain.Scope) (*TokenResponse, error) {
	accessToken, err := token.New(token.AccessTokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	now := e.now().UTC()
	record := domain.AccessToken{
		Token:     accessToken,
		ClientID:  clientID,
		AccountID: accountID,
		Scopes:    scopes,
		CreatedAt: now,
		ExpiresAt: now.Add(TokenTTL),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal access token: %w", err)
	}
	if err := e.rdb.Set(ctx, tokenKeyPrefix+accessToken, payload, TokenTTL).Err(); err != nil {
		return nil, fmt.Errorf("store access token: %w", err)
	}

	expiresIn := int64(record.ExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		e.logger.WarnContext(ctx, "computed negative expires_in, clamping to zero",
			slog.Time("expires_at", record.ExpiresAt),
		)
		expiresIn = 0
	}

	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Scope:       domain.JoinScopes(scopes),
	}

	if e.signer != nil && hasScope(scopes, domain.ScopeOpenID) {
		idToken, err := e.signer.Sign(accountID, clientID, now, TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign id token: %w", err)
		}
		resp.IDToken = idToken
	}

	e.logger.InfoContext(ctx, "access token issued",
		slog.String("client_id", clientID),
		slog.String("account_id", accountID),
		slog.String("scope", resp.Scope),
	)
	return resp, nil
}

// ValidateRedirect checks that redirectURI is the one registered for the
// client. Callers redirecting the browser to a client-supplied URI must pass
// it through here first.
func (e *Engine) ValidateRedirect(ctx context.Context, clientID, redirectURI string) error {
	client, err := e.lookupClient(ctx, clientID)
	if err != nil {
		return err
	}
	if redirectURI != client.RedirectURI {
		e.logger.WarnContext(ctx, "redirect_uri mismatch",
			slog.String("client_id", clientID),
			slog.String("redirect_uri", redirectURI),
		)
		return ErrInvalidRedirectURI
	}
	return nil
}

func (e *Engine) lookupClient(ctx context.Context, clientID string) (*domain.OauthClient, error) {
	client, err := e.clients.GetByClientID(ctx, clientID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, ErrNoClient
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth client: %w", err)
	}
	return client, nil
}

func (e *Engine) checkScopesRegistered(ctx context.Context, client *domain.OauthClient, scopes []domain.Scope) error {
	registered, err := e.clients.ListScopes(ctx, client.ID)
	if err != nil {
		return fmt.Errorf("list client scopes: %w", err)
	}

	have := make(map[domain.Scope]struct{}, len(registered))
	for _, cs := range registered {
		have[cs.Scope] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := have[s]; !ok {
			return ErrScopeNotRegistered
		}
	}
	return nil
}

func (e *Engine) checkConsent(ctx context.Context, client *domain.OauthClient, accountID string, scopes []domain.Scope) error {
	consent, err := e.consents.Get(ctx, client.ID, accountID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &ConsentRequiredError{ClientName: client.ClientName, Scopes: scopes}
	}
	if err != nil {
		return fmt.Errorf("get consent: %w", err)
	}

	consented, err := e.consents.ListScopes(ctx, consent.ID)
	if err != nil {
		return fmt.Errorf("list consented scopes: %w", err)
	}

	have := make(map[domain.Scope]struct{}, len(consented))
	for _, s := range consented {
		have[s] = struct{}{}
	}
	for _, s := range scopes {
		if _, ok := have[s]; !ok {
			return &ConsentRequiredError{ClientName: client.ClientName, Scopes: scopes}
		}
	}
	return nil
}

func hasScope(scopes []domain.Scope, want domain.Scope) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
