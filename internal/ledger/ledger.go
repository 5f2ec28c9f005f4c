// Package ledger provides an in-memory implementation of the staking ledger.
// It backs the memory mode and the test suites; the postgres store provides
// the durable equivalent.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// Store keeps all ledger state in process memory behind a single mutex, so
// every operation is strictly serialized. WithinTx runs its callback against
// a deep copy of the state and installs the copy only when the callback
// succeeds, which gives all-or-nothing semantics even when an external asset
// transfer fails midway through.
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	positions      map[uint64]domain.Position
	ownerIndex     map[common.Address][]uint64
	stakedTotals   map[string]*big.Int
	reserve        *big.Int
	lastPositionID uint64
}

// New creates an empty Store with a zero reserve.
func New() *Store {
	return &Store{
		st: &state{
			positions:    make(map[uint64]domain.Position),
			ownerIndex:   make(map[common.Address][]uint64),
			stakedTotals: make(map[string]*big.Int),
			reserve:      new(big.Int),
		},
	}
}

func (s *state) clone() *state {
	cp := &state{
		positions:      make(map[uint64]domain.Position, len(s.positions)),
		ownerIndex:     make(map[common.Address][]uint64, len(s.ownerIndex)),
		stakedTotals:   make(map[string]*big.Int, len(s.stakedTotals)),
		reserve:        new(big.Int).Set(s.reserve),
		lastPositionID: s.lastPositionID,
	}
	for id, p := range s.positions {
		p.Principal = new(big.Int).Set(p.Principal)
		cp.positions[id] = p
	}
	for owner, ids := range s.ownerIndex {
		cp.ownerIndex[owner] = append([]uint64(nil), ids...)
	}
	for sym, total := range s.stakedTotals {
		cp.stakedTotals[sym] = new(big.Int).Set(total)
	}
	return cp
}

// tx implements domain.LedgerTx against a cloned state.
type tx struct {
	st *state
}

// WithinTx implements domain.LedgerStore. The callback operates on a copy of
// the ledger; the copy replaces the live state only when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(domain.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.st.clone()
	if err := fn(&tx{st: cp}); err != nil {
		return err
	}
	s.st = cp
	return nil
}

// OpenPosition implements domain.LedgerTx.
func (t *tx) OpenPosition(ctx context.Context, owner common.Address, token domain.Token, principal *big.Int, now time.Time) (uint64, error) {
	if principal == nil || principal.Sign() == 0 {
		return 0, domain.ErrZeroAmount
	}
	if principal.Sign() < 0 {
		return 0, fmt.Errorf("ledger: negative principal %s", principal)
	}

	id := t.st.lastPositionID + 1
	t.st.lastPositionID = id

	t.st.positions[id] = domain.Position{
		ID:          id,
		Owner:       owner,
		TokenName:   token.Name,
		TokenSymbol: token.Symbol,
		APYBps:      token.APYBps,
		Principal:   new(big.Int).Set(principal),
		CreatedAt:   now.UTC(),
		Open:        true,
	}
	t.st.ownerIndex[owner] = append(t.st.ownerIndex[owner], id)

	total, ok := t.st.stakedTotals[token.Symbol]
	if !ok {
		total = new(big.Int)
		t.st.stakedTotals[token.Symbol] = total
	}
	total.Add(total, principal)

	return id, nil
}

// ClosePosition implements domain.LedgerTx.
func (t *tx) ClosePosition(ctx context.Context, positionID uint64, closer common.Address) (domain.Position, error) {
	pos, ok := t.st.positions[positionID]
	if !ok {
		return domain.Position{}, domain.ErrUnknownPosition
	}
	if pos.Owner != closer {
		return domain.Position{}, domain.ErrNotOwner
	}
	if !pos.Open {
		return domain.Position{}, domain.ErrAlreadyClosed
	}

	snapshot := pos
	snapshot.Principal = new(big.Int).Set(pos.Principal)

	pos.Open = false
	t.st.positions[positionID] = pos

	if total, ok := t.st.stakedTotals[pos.TokenSymbol]; ok {
		total.Sub(total, pos.Principal)
	}

	return snapshot, nil
}

// SetCreatedAt implements domain.LedgerTx.
func (t *tx) SetCreatedAt(ctx context.Context, positionID uint64, createdAt time.Time) error {
	pos, ok := t.st.positions[positionID]
	if !ok {
		return domain.ErrUnknownPosition
	}
	pos.CreatedAt = createdAt.UTC()
	t.st.positions[positionID] = pos
	return nil
}

// DebitReserve implements domain.LedgerTx.
func (t *tx) DebitReserve(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if t.st.reserve.Cmp(amount) < 0 {
		return domain.ErrInsufficientReserve
	}
	t.st.reserve.Sub(t.st.reserve, amount)
	return nil
}

// CreditReserve implements domain.LedgerTx.
func (t *tx) CreditReserve(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	t.st.reserve.Add(t.st.reserve, amount)
	return nil
}

// GetPosition implements domain.LedgerStore.
func (s *Store) GetPosition(ctx context.Context, positionID uint64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.st.positions[positionID]
	if !ok {
		return domain.Position{}, domain.ErrUnknownPosition
	}
	pos.Principal = new(big.Int).Set(pos.Principal)
	return pos, nil
}

// PositionIDsForOwner implements domain.LedgerStore. The returned IDs are in
// creation order and include closed positions.
func (s *Store) PositionIDsForOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]uint64(nil), s.st.ownerIndex[owner]...), nil
}

// StakedTotal implements domain.LedgerStore.
func (s *Store) StakedTotal(ctx context.Context, symbol string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if total, ok := s.st.stakedTotals[symbol]; ok {
		return new(big.Int).Set(total), nil
	}
	return new(big.Int), nil
}

// Reserve implements domain.LedgerStore.
func (s *Store) Reserve(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return new(big.Int).Set(s.st.reserve), nil
}

// ListClosedBefore implements domain.LedgerStore.
func (s *Store) ListClosedBefore(ctx context.Context, t time.Time, opts domain.ListOpts) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Position
	for _, pos := range s.st.positions {
		if pos.Open || !pos.CreatedAt.Before(t) {
			continue
		}
		pos.Principal = new(big.Int).Set(pos.Principal)
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}
