package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/mock"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/event"
	"github.com/ViddeM/accounts/internal/mailer"
	"github.com/ViddeM/accounts/internal/password"
	"github.com/ViddeM/accounts/internal/repository"
	"github.com/ViddeM/accounts/internal/session"
	pkgkafka "github.com/ViddeM/accounts/pkg/kafka"
)

// --- Mock Account Repository ---

type mockAccountRepository struct {
	mock.Mock
}

func (m *mockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *mockAccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *mockAccountRepository) DeleteMany(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

// --- Mock Login Details Repository ---

type mockLoginDetailsRepository struct {
	mock.Mock
}

func (m *mockLoginDetailsRepository) Create(ctx context.Context, details *domain.LoginDetails) error {
	args := m.Called(ctx, details)
	return args.Error(0)
}

func (m *mockLoginDetailsRepository) GetByEmail(ctx context.Context, email string) (*domain.LoginDetails, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginDetails), args.Error(1)
}

func (m *mockLoginDetailsRepository) GetByAccountID(ctx context.Context, accountID string) (*domain.LoginDetails, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoginDetails), args.Error(1)
}

func (m *mockLoginDetailsRepository) UpdatePassword(ctx context.Context, accountID, password, nonce string) error {
	args := m.Called(ctx, accountID, password, nonce)
	return args.Error(0)
}

func (m *mockLoginDetailsRepository) MarkActivated(ctx context.Context, accountID string, at time.Time) error {
	args := m.Called(ctx, accountID, at)
	return args.Error(0)
}

func (m *mockLoginDetailsRepository) RecordLoginFailure(ctx context.Context, accountID string, count int, lockedUntil *time.Time) error {
	args := m.Called(ctx, accountID, count, lockedUntil)
	return args.Error(0)
}

func (m *mockLoginDetailsRepository) ClearLoginFailures(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockLoginDetailsRepository) DeleteMany(ctx context.Context, accountIDs []string) error {
	args := m.Called(ctx, accountIDs)
	return args.Error(0)
}

// --- Mock Activation Code Repository ---

type mockActivationCodeRepository struct {
	mock.Mock
}

func (m *mockActivationCodeRepository) Create(ctx context.Context, loginDetailsID string) (*domain.ActivationCode, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActivationCode), args.Error(1)
}

func (m *mockActivationCodeRepository) GetByCode(ctx context.Context, code string) (*domain.ActivationCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ActivationCode), args.Error(1)
}

func (m *mockActivationCodeRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockActivationCodeRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.ActivationCode, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.ActivationCode), args.Error(1)
}

// --- Mock Password Reset Repository ---

type mockPasswordResetRepository struct {
	mock.Mock
}

func (m *mockPasswordResetRepository) Create(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepository) GetByCode(ctx context.Context, code string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepository) GetLatestByLoginDetails(ctx context.Context, loginDetailsID string) (*domain.PasswordReset, error) {
	args := m.Called(ctx, loginDetailsID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PasswordReset), args.Error(1)
}

func (m *mockPasswordResetRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPasswordResetRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]domain.PasswordReset, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).([]domain.PasswordReset), args.Error(1)
}

// --- Mock Whitelist Repository ---

type mockWhitelistRepository struct {
	mock.Mock
}

func (m *mockWhitelistRepository) Add(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepository) Get(ctx context.Context, email string) (*domain.WhitelistEntry, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepository) List(ctx context.Context) ([]domain.WhitelistEntry, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.WhitelistEntry), args.Error(1)
}

func (m *mockWhitelistRepository) Remove(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// --- Test Helpers ---

var testPepper = []byte("0123456789abcdef0123456789abcdef")

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCodec(t *testing.T) *password.Codec {
	t.Helper()
	codec, err := password.NewCodec(testPepper)
	if err != nil {
		t.Fatalf("create codec: %v", err)
	}
	return codec
}

func newTestSessions(t *testing.T) (*session.Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return session.NewManager(rdb, newTestLogger()), mr
}

func newTestProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

type accountServiceMocks struct {
	accounts    *mockAccountRepository
	logins      *mockLoginDetailsRepository
	activations *mockActivationCodeRepository
	resets      *mockPasswordResetRepository
	whitelist   *mockWhitelistRepository
	tx          *fakeTxRunner
	redis       *miniredis.Miniredis
}

// fakeTxRunner hands the same mocks to the callback and counts commits and
// rollbacks, so tests can assert that multi-write operations stay atomic.
type fakeTxRunner struct {
	tx        repository.Tx
	commits   int
	rollbacks int
}

func (f *fakeTxRunner) InTx(_ context.Context, fn func(repository.Tx) error) error {
	if err := fn(f.tx); err != nil {
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

// capturingSender records sent messages for assertions.
type capturingSender struct {
	messages []mailer.Message
}

func (s *capturingSender) Name() string { return "capturing" }

func (s *capturingSender) Send(_ context.Context, msg mailer.Message) error {
	s.messages = append(s.messages, msg)
	return nil
}

// failingSender refuses every message.
type failingSender struct{}

func (failingSender) Name() string { return "failing" }

func (failingSender) Send(context.Context, mailer.Message) error {
	return errors.New("provider unreachable")
}

func newTestAccountService(t *testing.T) (*AccountService, *accountServiceMocks, *capturingSender) {
	t.Helper()

	mocks := &accountServiceMocks{
		accounts:    new(mockAccountRepository),
		logins:      new(mockLoginDetailsRepository),
		activations: new(mockActivationCodeRepository),
		resets:      new(mockPasswordResetRepository),
		whitelist:   new(mockWhitelistRepository),
	}
	mocks.tx = &fakeTxRunner{tx: repository.Tx{
		Accounts:        mocks.accounts,
		LoginDetails:    mocks.logins,
		ActivationCodes: mocks.activations,
		PasswordResets:  mocks.resets,
	}}
	sessions, mr := newTestSessions(t)
	mocks.redis = mr

	sender := &capturingSender{}
	svc := NewAccountService(
		mocks.accounts,
		mocks.logins,
		mocks.activations,
		mocks.resets,
		mocks.whitelist,
		mocks.tx,
		newTestCodec(t),
		sessions,
		sender,
		newTestProducer(),
		"https://accounts.test",
		newTestLogger(),
	)
	return svc, mocks, sender
}
