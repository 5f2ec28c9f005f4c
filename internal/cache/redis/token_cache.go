package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// defaultTokenTTL bounds staleness of cached registry entries. Tokens are
// immutable after registration, so the TTL mostly limits memory, not drift.
const defaultTokenTTL = 10 * time.Minute

// TokenCache implements domain.TokenCache using Redis strings with
// JSON-serialized Token data.
//
// Key schema:
//
//	token:{symbol} - JSON-encoded domain.Token
type TokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTokenCache creates a TokenCache backed by the given Client. A zero ttl
// falls back to the default.
func NewTokenCache(c *Client, ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenCache{rdb: c.Underlying(), ttl: ttl}
}

func tokenKey(symbol string) string { return "token:" + symbol }

// Get retrieves a cached token. A missing key is reported as ok=false, not an
// error.
func (tc *TokenCache) Get(ctx context.Context, symbol string) (domain.Token, bool, error) {
	data, err := tc.rdb.Get(ctx, tokenKey(symbol)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Token{}, false, nil
		}
		return domain.Token{}, false, fmt.Errorf("redis: get token %s: %w", symbol, err)
	}

	var token domain.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return domain.Token{}, false, fmt.Errorf("redis: unmarshal token %s: %w", symbol, err)
	}
	return token, true, nil
}

// Set stores a token with the configured TTL.
func (tc *TokenCache) Set(ctx context.Context, token domain.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("redis: marshal token %s: %w", token.Symbol, err)
	}
	if err := tc.rdb.Set(ctx, tokenKey(token.Symbol), data, tc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set token %s: %w", token.Symbol, err)
	}
	return nil
}
