package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TokenStore persists registered tokens. Token IDs are assigned by the store
// as a monotonically increasing 1-based counter that never rolls back.
type TokenStore interface {
	Add(ctx context.Context, token Token) (uint64, error)
	Get(ctx context.Context, symbol string) (Token, error)
	Symbols(ctx context.Context) ([]string, error)
}

// LedgerTx exposes the ledger's state-changing operations inside a single
// transaction. Every write made through a LedgerTx commits atomically when
// the WithinTx callback returns nil, and is discarded in full otherwise.
type LedgerTx interface {
	// OpenPosition records a new open position. Position IDs are 1-based and
	// strictly increasing. Returns ErrZeroAmount when principal is zero.
	OpenPosition(ctx context.Context, owner common.Address, token Token, principal *big.Int, now time.Time) (uint64, error)

	// ClosePosition marks a position closed and returns the record as it was
	// immediately before the transition, so the caller can compute the payout.
	// Returns ErrUnknownPosition, ErrNotOwner, or ErrAlreadyClosed.
	ClosePosition(ctx context.Context, positionID uint64, closer common.Address) (Position, error)

	// SetCreatedAt overwrites a position's creation timestamp. Operator tool
	// for simulating elapsed time. Returns ErrUnknownPosition when absent.
	SetCreatedAt(ctx context.Context, positionID uint64, createdAt time.Time) error

	// DebitReserve withdraws from the native interest reserve. Returns
	// ErrInsufficientReserve when the reserve cannot cover amount.
	DebitReserve(ctx context.Context, amount *big.Int) error

	// CreditReserve deposits into the native interest reserve.
	CreditReserve(ctx context.Context, amount *big.Int) error
}

// LedgerStore persists staking positions, the per-symbol staked totals, and
// the native interest reserve.
type LedgerStore interface {
	// WithinTx runs fn inside a transaction. External side effects performed
	// by fn (asset transfers) share fate with the ledger writes: an error
	// from fn aborts everything.
	WithinTx(ctx context.Context, fn func(LedgerTx) error) error

	GetPosition(ctx context.Context, positionID uint64) (Position, error)
	PositionIDsForOwner(ctx context.Context, owner common.Address) ([]uint64, error)

	// StakedTotal returns the sum of principal over open positions for symbol.
	StakedTotal(ctx context.Context, symbol string) (*big.Int, error)

	// Reserve returns the current native interest reserve balance.
	Reserve(ctx context.Context) (*big.Int, error)

	// ListClosedBefore returns closed positions created before t, oldest
	// first. Used by the archiver.
	ListClosedBefore(ctx context.Context, t time.Time, opts ListOpts) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
