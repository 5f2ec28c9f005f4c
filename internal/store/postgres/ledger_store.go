package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. WithinTx maps
// directly onto a serializable database transaction, so ledger writes and the
// external transfers performed inside the callback share fate.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// WithinTx implements domain.LedgerStore.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(domain.LedgerTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("postgres: begin ledger tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit ledger tx: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

// OpenPosition implements domain.LedgerTx.
func (t *ledgerTx) OpenPosition(ctx context.Context, owner common.Address, token domain.Token, principal *big.Int, now time.Time) (uint64, error) {
	if principal == nil || principal.Sign() == 0 {
		return 0, domain.ErrZeroAmount
	}
	if principal.Sign() < 0 {
		return 0, fmt.Errorf("postgres: negative principal %s", principal)
	}

	const insertPosition = `
		INSERT INTO positions (owner, token_name, token_symbol, apy_bps, principal, created_at, open)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, TRUE)
		RETURNING id`

	var id int64
	err := t.tx.QueryRow(ctx, insertPosition,
		owner.Hex(), token.Name, token.Symbol, int64(token.APYBps),
		principal.String(), now.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: open position: %w", err)
	}

	const bumpTotal = `
		INSERT INTO staked_totals (symbol, total) VALUES ($1, $2::numeric)
		ON CONFLICT (symbol) DO UPDATE SET total = staked_totals.total + EXCLUDED.total`
	if _, err := t.tx.Exec(ctx, bumpTotal, token.Symbol, principal.String()); err != nil {
		return 0, fmt.Errorf("postgres: bump staked total %s: %w", token.Symbol, err)
	}

	return uint64(id), nil
}

// ClosePosition implements domain.LedgerTx.
func (t *ledgerTx) ClosePosition(ctx context.Context, positionID uint64, closer common.Address) (domain.Position, error) {
	const selectForUpdate = `
		SELECT id, owner, token_name, token_symbol, apy_bps, principal::text, created_at, open
		FROM positions WHERE id = $1 FOR UPDATE`

	pos, err := scanPosition(t.tx.QueryRow(ctx, selectForUpdate, int64(positionID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrUnknownPosition
		}
		return domain.Position{}, fmt.Errorf("postgres: close position %d: %w", positionID, err)
	}
	if pos.Owner != closer {
		return domain.Position{}, domain.ErrNotOwner
	}
	if !pos.Open {
		return domain.Position{}, domain.ErrAlreadyClosed
	}

	const markClosed = `
		UPDATE positions SET open = FALSE, closed_at = NOW(), updated_at = NOW()
		WHERE id = $1`
	if _, err := t.tx.Exec(ctx, markClosed, int64(positionID)); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: mark position %d closed: %w", positionID, err)
	}

	const dropTotal = `
		UPDATE staked_totals SET total = total - $2::numeric WHERE symbol = $1`
	if _, err := t.tx.Exec(ctx, dropTotal, pos.TokenSymbol, pos.Principal.String()); err != nil {
		return domain.Position{}, fmt.Errorf("postgres: drop staked total %s: %w", pos.TokenSymbol, err)
	}

	return pos, nil
}

// SetCreatedAt implements domain.LedgerTx.
func (t *ledgerTx) SetCreatedAt(ctx context.Context, positionID uint64, createdAt time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE positions SET created_at = $2, updated_at = NOW() WHERE id = $1`,
		int64(positionID), createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("postgres: set created_at %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUnknownPosition
	}
	return nil
}

// DebitReserve implements domain.LedgerTx. The guarded UPDATE only matches
// when the balance covers the debit, so an insufficient reserve surfaces as
// zero affected rows.
func (t *ledgerTx) DebitReserve(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	const query = `
		UPDATE reserve SET balance = balance - $1::numeric
		WHERE singleton AND balance >= $1::numeric`
	tag, err := t.tx.Exec(ctx, query, amount.String())
	if err != nil {
		return fmt.Errorf("postgres: debit reserve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientReserve
	}
	return nil
}

// CreditReserve implements domain.LedgerTx.
func (t *ledgerTx) CreditReserve(ctx context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE reserve SET balance = balance + $1::numeric WHERE singleton`,
		amount.String(),
	)
	if err != nil {
		return fmt.Errorf("postgres: credit reserve: %w", err)
	}
	return nil
}

const positionSelectCols = `id, owner, token_name, token_symbol, apy_bps, principal::text, created_at, open`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p         domain.Position
		id, apy   int64
		owner     string
		principal string
	)
	if err := row.Scan(&id, &owner, &p.TokenName, &p.TokenSymbol, &apy, &principal, &p.CreatedAt, &p.Open); err != nil {
		return domain.Position{}, err
	}

	p.ID = uint64(id)
	p.Owner = common.HexToAddress(owner)
	p.APYBps = uint64(apy)

	value, ok := new(big.Int).SetString(principal, 10)
	if !ok {
		return domain.Position{}, fmt.Errorf("parse principal %q", principal)
	}
	p.Principal = value
	return p, nil
}

// GetPosition implements domain.LedgerStore.
func (s *LedgerStore) GetPosition(ctx context.Context, positionID uint64) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, int64(positionID))

	pos, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrUnknownPosition
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %d: %w", positionID, err)
	}
	return pos, nil
}

// PositionIDsForOwner implements domain.LedgerStore.
func (s *LedgerStore) PositionIDsForOwner(ctx context.Context, owner common.Address) ([]uint64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM positions WHERE owner = $1 ORDER BY id`, owner.Hex())
	if err != nil {
		return nil, fmt.Errorf("postgres: position ids for %s: %w", owner.Hex(), err)
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan position id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: position ids rows: %w", err)
	}
	return ids, nil
}

// StakedTotal implements domain.LedgerStore.
func (s *LedgerStore) StakedTotal(ctx context.Context, symbol string) (*big.Int, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT total::text FROM staked_totals WHERE symbol = $1`, symbol,
	).Scan(&total)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: staked total %s: %w", symbol, err)
	}

	value, ok := new(big.Int).SetString(total, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse staked total %q", total)
	}
	return value, nil
}

// Reserve implements domain.LedgerStore.
func (s *LedgerStore) Reserve(ctx context.Context) (*big.Int, error) {
	var balance string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM reserve WHERE singleton`,
	).Scan(&balance)
	if err != nil {
		return nil, fmt.Errorf("postgres: reserve: %w", err)
	}

	value, ok := new(big.Int).SetString(balance, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: parse reserve %q", balance)
	}
	return value, nil
}

// ListClosedBefore implements domain.LedgerStore.
func (s *LedgerStore) ListClosedBefore(ctx context.Context, t time.Time, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE NOT open AND created_at < $1 ORDER BY id`
	args := []any{t.UTC()}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan closed position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list closed positions rows: %w", err)
	}
	return positions, nil
}
