package domain

import "context"

// TokenCache is a read-through cache over the token registry. Get returns
// ok=false on a miss; misses are not errors.
type TokenCache interface {
	Get(ctx context.Context, symbol string) (Token, bool, error)
	Set(ctx context.Context, token Token) error
}
