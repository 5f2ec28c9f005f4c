package ledger

import (
	"context"
	"sync"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// Registry is the in-memory domain.TokenStore. Symbols are unique; token IDs
// count up from 1 in registration order and are never reused.
type Registry struct {
	mu          sync.Mutex
	bySymbol    map[string]domain.Token
	order       []string
	lastTokenID uint64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[string]domain.Token)}
}

// Add implements domain.TokenStore.
func (r *Registry) Add(ctx context.Context, token domain.Token) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySymbol[token.Symbol]; exists {
		return 0, domain.ErrDuplicateSymbol
	}

	r.lastTokenID++
	token.ID = r.lastTokenID
	token.ETHPrice = 0

	r.bySymbol[token.Symbol] = token
	r.order = append(r.order, token.Symbol)

	return token.ID, nil
}

// Get implements domain.TokenStore.
func (r *Registry) Get(ctx context.Context, symbol string) (domain.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.bySymbol[symbol]
	if !ok {
		return domain.Token{}, domain.ErrUnknownToken
	}
	return token, nil
}

// Symbols implements domain.TokenStore, returning symbols in registration
// order.
func (r *Registry) Symbols(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.order...), nil
}
