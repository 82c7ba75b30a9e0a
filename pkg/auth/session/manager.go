package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-core/pkg/config"
	redisclient "github.com/angelmondragon/storefront-core/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

var ErrSessionRequired = errors.New("storefront session id is required")

type sessionStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

type sessionKeyer interface {
	SessionTokenKey(sessionID string) string
}

// Manager keeps the commerce token that registration handed back for a storefront session,
// so later requests from the same browser stay authenticated without an Authorization header.
type Manager struct {
	store sessionStore
	keyer sessionKeyer
	ttl   time.Duration
}

// TokenLookup exposes the read-only surface needed by middleware.
type TokenLookup interface {
	Lookup(ctx context.Context, sessionID string) (string, bool, error)
}

// NewManager constructs a session token manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	ttl := cfg.StoredTokenTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("stored token ttl must be positive")
	}
	return &Manager{
		store: client,
		keyer: client,
		ttl:   ttl,
	}, nil
}

// Persist stores the token for the storefront session, replacing any previous one.
func (m *Manager) Persist(ctx context.Context, sessionID, token string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	return m.store.Set(ctx, m.keyer.SessionTokenKey(sessionID), token, m.ttl)
}

// Lookup returns the token persisted for the session, if any.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (string, bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", false, nil
	}
	token, err := m.store.Get(ctx, m.keyer.SessionTokenKey(sessionID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, token != "", nil
}

// Revoke deletes the token tied to the storefront session.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionRequired
	}
	return m.store.Del(ctx, m.keyer.SessionTokenKey(sessionID))
}
