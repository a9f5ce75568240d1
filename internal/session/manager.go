// Package session manages logged-in browser sessions in Redis. Sessions are
// keyed by opaque IDs with a server-side TTL; a per-account index list allows
// revoking every session for an account at once.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ViddeM/accounts/internal/domain"
	"github.com/ViddeM/accounts/internal/token"
)

// Lifetime is how long a session stays valid after creation.
const Lifetime = 5 * 24 * time.Hour

const (
	sessionKeyPrefix = "sessions:"
	accountKeyPrefix = "account_sessions:"
)

// ErrNoSession is returned when a session ID does not resolve to a live session.
var ErrNoSession = errors.New("no such session")

// Manager creates, resolves, and revokes sessions.
type Manager struct {
	rdb    *redis.Client
	logger *slog.Logger

	now func() time.Time
}

// NewManager creates a session manager backed by the given Redis client.
func NewManager(rdb *redis.Client, logger *slog.Logger) *Manager {
	return &Manager{
		rdb:    rdb,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new session for the account and returns it. The session
// record expires server-side after Lifetime; the per-account index carries
// the same TTL, refreshed on every new session, so it ages out with its
// newest member.
func (m *Manager) Create(ctx context.Context, accountID string) (*domain.Session, error) {
	id, err := token.New(token.SessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	now := m.now()
	session := &domain.Session{
		ID:        id,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(Lifetime),
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	if err := m.rdb.Set(ctx, sessionKeyPrefix+id, payload, Lifetime).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	if err := m.rdb.LPush(ctx, accountKeyPrefix+accountID, id).Err(); err != nil {
		return nil, fmt.Errorf("index session: %w", err)
	}
	// Every session in the index expires no later than this newest one, so
	// refreshing the index TTL here lets the whole list age out instead of
	// accumulating ids of TTL-expired sessions.
	if err := m.rdb.Expire(ctx, accountKeyPrefix+accountID, Lifetime).Err(); err != nil {
		return nil, fmt.Errorf("expire session index: %w", err)
	}

	m.logger.InfoContext(ctx, "session created",
		slog.String("account_id", accountID),
	)

	return session, nil
}

// Resolve returns the live session for the given ID. A session whose record
// carries a past expiry (possible when the record was written with a longer
// TTL in an earlier deploy) is deleted on sight and treated as absent.
func (m *Manager) Resolve(ctx context.Context, id string) (*domain.Session, error) {
	payload, err := m.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	if session.ExpiredAt(m.now()) {
		if err := m.Revoke(ctx, &session); err != nil {
			m.logger.WarnContext(ctx, "failed to delete expired session",
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrNoSession
	}

	return &session, nil
}

// Revoke deletes a single session. Revoking an already-absent session is not
// an error.
func (m *Manager) Revoke(ctx context.Context, session *domain.Session) error {
	if err := m.rdb.Del(ctx, sessionKeyPrefix+session.ID).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if err := m.rdb.LRem(ctx, accountKeyPrefix+session.AccountID, 0, session.ID).Err(); err != nil {
		return fmt.Errorf("unindex session: %w", err)
	}

	return nil
}

// RevokeAll deletes every session belonging to the account, along with the
// index list itself.
func (m *Manager) RevokeAll(ctx context.Context, accountID string) error {
	ids, err := m.rdb.LRange(ctx, accountKeyPrefix+accountID, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list account sessions: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}
	keys = append(keys, accountKeyPrefix+accountID)

	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete account sessions: %w", err)
	}

	m.logger.InfoContext(ctx, "all sessions revoked",
		slog.String("account_id", accountID),
		slog.Int("count", len(ids)),
	)

	return nil
}

// Ping verifies Redis connectivity. It backs the readiness health check.
func (m *Manager) Ping(ctx context.Context) error {
	return m.rdb.Ping(ctx).Err()
}
