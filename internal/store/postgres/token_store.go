package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// TokenStore implements domain.TokenStore using PostgreSQL. Token IDs come
// from the table's sequence, which never rolls back, so IDs stay monotonic
// even when a registration aborts.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a new TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// uniqueViolation is the PostgreSQL error code for unique constraint breaches.
const uniqueViolation = "23505"

// Add inserts a new token and returns its assigned ID. The eth_price column
// relies on its zero default; there is no write path for it.
func (s *TokenStore) Add(ctx context.Context, t domain.Token) (uint64, error) {
	const query = `
		INSERT INTO tokens (name, symbol, address, usd_price, apy_bps)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		t.Name, t.Symbol, t.Address.Hex(), int64(t.USDPrice), int64(t.APYBps),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, domain.ErrDuplicateSymbol
		}
		return 0, fmt.Errorf("postgres: add token %s: %w", t.Symbol, err)
	}
	return uint64(id), nil
}

// Get retrieves a token by symbol.
func (s *TokenStore) Get(ctx context.Context, symbol string) (domain.Token, error) {
	const query = `
		SELECT id, name, symbol, address, usd_price, eth_price, apy_bps
		FROM tokens WHERE symbol = $1`

	var (
		t                           domain.Token
		id, usdPrice, ethPrice, apy int64
		address                     string
	)
	err := s.pool.QueryRow(ctx, query, symbol).Scan(
		&id, &t.Name, &t.Symbol, &address, &usdPrice, &ethPrice, &apy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Token{}, domain.ErrUnknownToken
		}
		return domain.Token{}, fmt.Errorf("postgres: get token %s: %w", symbol, err)
	}

	t.ID = uint64(id)
	t.Address = common.HexToAddress(address)
	t.USDPrice = uint64(usdPrice)
	t.ETHPrice = uint64(ethPrice)
	t.APYBps = uint64(apy)
	return t, nil
}

// Symbols returns all registered symbols in registration (ID) order.
func (s *TokenStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT symbol FROM tokens ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list token symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("postgres: scan token symbol: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list token symbols rows: %w", err)
	}
	return symbols, nil
}
