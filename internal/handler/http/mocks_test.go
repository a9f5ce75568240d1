package http

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/event"
	"github.com/ViddeM/accounts/internal/mailer"
	"github.com/ViddeM/accounts/internal/oauth"
	"github.com/ViddeM/accounts/internal/password"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/service"
	"github.com/ViddeM/accounts/internal/session"
	"github.com/ViddeM/accounts/pkg/health"
	pkgkafka "github.com/ViddeM/accounts/pkg/kafka"
	"github.com/ViddeM/accounts/pkg/middleware"
)

// --- Mock Repositories ---

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepo) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *mockAccountRepo) DeleteMany(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

type mockLoginDetailsRepo struct {
	mock.Mock
}

func (m *mockLoginDetailsRepo) Create(ctx context.Context, details *domain.LoginDetails) error {
	args := m.Called(ctx, details)
	return args.Error(0)
}

func (m *mockLoginDetailsRepo) GetByEmail(ctx context.Context, email string) (*domain.LoginDetails, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginDetails), args.Error(1)
}

func (m *mockLoginDetailsRepo) GetByAccountID(ctx context.Context, accountID string) (*domain.LoginDetails, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginDetails), args.Error(1)
}

func (m *mockLoginDetailsRepo) UpdatePassword(ctx context.Context, accountID, password, nonce string) error {
	args := m.Called(ctx, accountID, password, nonce)
	return args.Error(0)
}

func (m *mockLoginDetailsRepo) MarkActivated(ctx context.Context, accountID string, at time.Time) error {
	args := m.Called(ctx, accountID, at)
	return args.Error(0)
}

func (m *mockLoginDetailsRepo) RecordLoginFailure(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error {
	args := m.Called(ctx, accountID, count, lockedUntil)
	return args.Error(0)
}

func (m *mockLoginDetailsRepo) ClearLoginFailures(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockLoginDetailsRepo) DeleteMany(ctx context.Context, accountIDs []string) error {
	args := m.Called(ctx, accountIDs)
	return args.Error(0)
}

type mockActivationCodeRepo struct {
	mock.Mock
}

func (m *mockActivationCodeRepo) Create(ctx context.Context, loginDetailsID string) (*domain.ActivationCode, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActivationCode), args.Error(1)
}

func (m *mockActivationCodeRepo) GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActivationCode), args.Error(1)
}

func (m *mockActivationCodeRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockActivationCodeRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.ActivationCode, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.ActivationCode), args.Error(1)
}

type mockPasswordResetRepo struct {
	mock.Mock
}

func (m *mockPasswordResetRepo) Create(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepo) GetByCode(ctx context.Context, code string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepo) GetLatestByLoginDetails(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPasswordResetRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PasswordReset, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.PasswordReset), args.Error(1)
}

type mockWhitelistRepo struct {
	mock.Mock
}

func (m *mockWhitelistRepo) Add(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepo) Get(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepo) List(ctx context.Context) ([]domain.WhitelistEntry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepo) Remove(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

type mockOauthClientRepo struct {
	mock.Mock
}

func (m *mockOauthClientRepo) Create(ctx context.Context, client *domain.OauthClient) error {
	args := m.Called(ctx, client)
	return args.Error(0)
}

func (m *mockOauthClientRepo) GetByClientID(ctx context.Context, clientID string) (*domain.OauthClient, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OauthClient), args.Error(1)
}

func (m *mockOauthClientRepo) GetByID(ctx context.Context, id string) (*domain.OauthClient, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OauthClient), args.Error(1)
}

func (m *mockOauthClientRepo) List(ctx context.Context) ([]domain.OauthClient, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.OauthClient), args.Error(1)
}

func (m *mockOauthClientRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOauthClientRepo) AddScope(ctx context.Context, clientID string, scope domain.Scope) (*domain.ClientScope, error) {
	args := m.Called(ctx, clientID, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ClientScope), args.Error(1)
}

func (m *mockOauthClientRepo) ListScopes(ctx context.Context, clientID string) ([]domain.ClientScope, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).([]domain.ClientScope), args.Error(1)
}

type mockConsentRepo struct {
	mock.Mock
}

func (m *mockConsentRepo) Grant(ctx context.Context, clientID, accountID string, scopeIDs []string) (*domain.Consent, error) {
	args := m.Called(ctx, clientID, accountID, scopeIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Consent), args.Error(1)
}

func (m *mockConsentRepo) Get(ctx context.Context, clientID, accountID string) (*domain.Consent, error) {
	args := m.Called(ctx, clientID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Consent), args.Error(1)
}

func (m *mockConsentRepo) ListScopes(ctx context.Context, consentID string) ([]domain.Scope, error) {
	args := m.Called(ctx, consentID)
	return args.Get(0).([]domain.Scope), args.Error(1)
}

func (m *mockConsentRepo) Revoke(ctx context.Context, clientID, accountID string) error {
	args := m.Called(ctx, clientID, accountID)
	return args.Error(0)
}

// --- Test Helpers ---

var testPepper = []byte("0123456789abcdef0123456789abcdef")

var testCookieKey = []byte("test-cookie-signing-key")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// discardSender drops all mail.
type discardSender struct{}

func (discardSender) Name() string { return "discard" }

func (discardSender) Send(context.Context, mailer.Message) error { return nil }

// passthroughTxRunner runs the callback against the mocked repositories
// without a real transaction.
type passthroughTxRunner struct {
	tx repository.Tx
}

func (p passthroughTxRunner) InTx(_ context.Context, fn func(repository.Tx) error) error {
	return fn(p.tx)
}

// testEnv wires the full router against mocked repositories and a miniredis
// backed session store.
type testEnv struct {
	router     http.Handler
	cookies    *CookieCodec
	sessions   *session.Manager
	redis      *miniredis.Miniredis
	codec      *password.Codec
	engine     *oauth.Engine
	accountSvc *service.AccountService

	accounts    *mockAccountRepo
	logins      *mockLoginDetailsRepo
	activations *mockActivationCodeRepo
	resets      *mockPasswordResetRepo
	whitelist   *mockWhitelistRepo
	clients     *mockOauthClientRepo
	consents    *mockConsentRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := newTestLogger()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	codec, err := password.NewCodec(testPepper)
	require.NoError(t, err)

	env := &testEnv{
		redis:       mr,
		accounts:    new(mockAccountRepo),
		logins:      new(mockLoginDetailsRepo),
		activations: new(mockActivationCodeRepo),
		resets:      new(mockPasswordResetRepo),
		whitelist:   new(mockWhitelistRepo),
		clients:     new(mockOauthClientRepo),
		consents:    new(mockConsentRepo),
	}

	env.codec = codec
	env.sessions = session.NewManager(rdb, logger)
	env.cookies = NewCookieCodec(testCookieKey)

	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	producer := event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)

	txRunner := passthroughTxRunner{tx: repository.Tx{
		Accounts:        env.accounts,
		LoginDetails:    env.logins,
		ActivationCodes: env.activations,
		PasswordResets:  env.resets,
	}}
	accountSvc := service.NewAccountService(
		env.accounts,
		env.logins,
		env.activations,
		env.resets,
		env.whitelist,
		txRunner,
		codec,
		env.sessions,
		discardSender{},
		producer,
		"https://accounts.test",
		logger,
	)
	env.accountSvc = accountSvc
	clientSvc := service.NewClientService(env.clients, logger)
	engine := oauth.NewEngine(env.clients, env.consents, rdb, nil, logger)
	env.engine = engine
	userinfoSvc := service.NewUserInfoService(engine, env.accounts, env.logins, logger)
	sessionAuth := NewSessionAuth(env.cookies, env.sessions, env.accounts, logger)

	env.router = NewRouter(RouterConfig{
		Accounts:    accountSvc,
		Clients:     clientSvc,
		UserInfo:    userinfoSvc,
		Engine:      engine,
		Signer:      nil,
		SessionAuth: sessionAuth,
		Cookies:     env.cookies,
		Health:      health.NewHandler(),
		BaseURL:     "https://accounts.test",
		CORS:        middleware.DefaultCORSConfig(),
		Logger:      logger,
	})
	return env
}

// loginAs opens a real session for the account and returns the signed cookie
// to attach to requests. The account repo is primed so the session middleware
// can load the account's authority.
func (env *testEnv) loginAs(t *testing.T, account *domain.Account) *http.Cookie {
	t.Helper()
	sess, err := env.sessions.Create(context.Background(), account.ID)
	require.NoError(t, err)
	env.accounts.On("GetByID", mock.Anything, account.ID).Return(account, nil)
	return &http.Cookie{Name: SessionCookieName, Value: env.cookies.Encode(sess.ID)}
}

func userAccount() *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:         "11111111-2222-3333-4444-555555555555",
		FirstName:  "Alva",
		LastName:   "Berg",
		Authority:  domain.AuthorityUser,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

func adminAccount() *domain.Account {
	now := time.Now().UTC()
	return &domain.Account{
		ID:         "99999999-8888-7777-6666-555555555555",
		FirstName:  "Admin",
		LastName:   "Berg",
		Authority:  domain.AuthorityAdmin,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}
