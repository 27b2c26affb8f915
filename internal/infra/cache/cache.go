package cache

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"codegen-app/internal/domain/apperr"

	"github.com/redis/go-redis/v9"
)

const stateTTL = 10 * time.Minute

// NewClient connects to redis. A failed ping is reported but the client is
// still returned so the service can start without redis.
func NewClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}

// StateStore holds one-shot OAuth state values, keyed by the random state
// and bound to the user who started the flow.
type StateStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewStateStore(rdb redis.Cmdable, prefix string) *StateStore {
	return &StateStore{rdb: rdb, prefix: prefix, ttl: stateTTL}
}

// Issue creates a fresh state for userID.
func (s *StateStore) Issue(ctx context.Context, userID string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(buf)
	if err := s.rdb.Set(ctx, s.prefix+state, userID, s.ttl).Err(); err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "Failed to start authorization", err)
	}
	return state, nil
}

// Consume returns the user bound to state and deletes it. A state can be
// consumed once; unknown or expired values are Unauthorized.
func (s *StateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", apperr.New(apperr.KindUnauthorized, "Invalid state")
	}
	userID, err := s.rdb.GetDel(ctx, s.prefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", apperr.New(apperr.KindUnauthorized, "Invalid state")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "Failed to read authorization state", err)
	}
	return userID, nil
}
