package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/storefront-core/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// GuestStore is the durable key/value home of one visitor's guest cart.
type GuestStore interface {
	Load(ctx context.Context) (GuestCartSnapshot, error)
	Save(ctx context.Context, snapshot GuestCartSnapshot) error
	Clear(ctx context.Context) error
}

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type guestKeyer interface {
	GuestCartKey(sessionID string) string
}

// RedisGuestStore keeps the snapshot under one key per storefront session.
type RedisGuestStore struct {
	store kvStore
	key   string
	ttl   time.Duration
}

// NewRedisGuestStore binds a guest store to a storefront session.
func NewRedisGuestStore(store kvStore, keyer guestKeyer, sessionID string, ttl time.Duration) (*RedisGuestStore, error) {
	if store == nil || keyer == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id required")
	}
	return &RedisGuestStore{store: store, key: keyer.GuestCartKey(sessionID), ttl: ttl}, nil
}

// Load returns the snapshot, or an empty one when nothing was stored.
func (s *RedisGuestStore) Load(ctx context.Context) (GuestCartSnapshot, error) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return GuestCartSnapshot{}, nil
		}
		return GuestCartSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load guest cart")
	}
	var snapshot GuestCartSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return GuestCartSnapshot{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode guest cart")
	}
	return sanitize(snapshot), nil
}

// Save persists the snapshot. Lines with quantity <= 0 are never written.
func (s *RedisGuestStore) Save(ctx context.Context, snapshot GuestCartSnapshot) error {
	clean := sanitize(snapshot)
	if len(clean.Items) == 0 {
		return s.Clear(ctx)
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode guest cart")
	}
	if err := s.store.Set(ctx, s.key, string(payload), s.ttl); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save guest cart")
	}
	return nil
}

// Clear drops the snapshot.
func (s *RedisGuestStore) Clear(ctx context.Context) error {
	if err := s.store.Del(ctx, s.key); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear guest cart")
	}
	return nil
}

func sanitize(snapshot GuestCartSnapshot) GuestCartSnapshot {
	out := GuestCartSnapshot{Items: make([]GuestLine, 0, len(snapshot.Items))}
	seen := make(map[int]int, len(snapshot.Items))
	for _, line := range snapshot.Items {
		if line.SkuID <= 0 || line.Quantity <= 0 {
			continue
		}
		if idx, ok := seen[line.SkuID]; ok {
			out.Items[idx].Quantity += line.Quantity
			continue
		}
		seen[line.SkuID] = len(out.Items)
		out.Items = append(out.Items, line)
	}
	return out
}
