package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/stakeledger/stakeledger/internal/domain"
	"github.com/stakeledger/stakeledger/internal/ledger"
)

var (
	operator = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob      = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	linkAddr = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func ether(n int64) *big.Int {
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return wei.Mul(wei, big.NewInt(n))
}

// fakeAssets tracks per-token wallet and custody balances so tests can assert
// balance conservation across stake and close.
type fakeAssets struct {
	wallets     map[common.Address]map[common.Address]*big.Int // token -> holder
	custody     map[common.Address]*big.Int                    // token
	failPull    error
	failRelease error
}

func newFakeAssets() *fakeAssets {
	return &fakeAssets{
		wallets: make(map[common.Address]map[common.Address]*big.Int),
		custody: make(map[common.Address]*big.Int),
	}
}

func (f *fakeAssets) fund(token, holder common.Address, amount *big.Int) {
	if f.wallets[token] == nil {
		f.wallets[token] = make(map[common.Address]*big.Int)
	}
	f.wallets[token][holder] = new(big.Int).Set(amount)
}

func (f *fakeAssets) walletBalance(token, holder common.Address) *big.Int {
	if f.wallets[token] == nil || f.wallets[token][holder] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(f.wallets[token][holder])
}

func (f *fakeAssets) custodyBalance(token common.Address) *big.Int {
	if f.custody[token] == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(f.custody[token])
}

func (f *fakeAssets) Pull(ctx context.Context, token, from common.Address, amount *big.Int) error {
	if f.failPull != nil {
		return f.failPull
	}
	bal := f.walletBalance(token, from)
	if bal.Cmp(amount) < 0 {
		return errors.New("insufficient balance")
	}
	f.wallets[token][from] = bal.Sub(bal, amount)
	if f.custody[token] == nil {
		f.custody[token] = new(big.Int)
	}
	f.custody[token].Add(f.custody[token], amount)
	return nil
}

func (f *fakeAssets) Release(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if f.failRelease != nil {
		return f.failRelease
	}
	if f.custodyBalance(token).Cmp(amount) < 0 {
		return errors.New("insufficient custody balance")
	}
	f.custody[token].Sub(f.custody[token], amount)
	if f.wallets[token] == nil {
		f.wallets[token] = make(map[common.Address]*big.Int)
	}
	if f.wallets[token][to] == nil {
		f.wallets[token][to] = new(big.Int)
	}
	f.wallets[token][to].Add(f.wallets[token][to], amount)
	return nil
}

type fakePayer struct {
	paid    map[common.Address]*big.Int
	failErr error
}

func newFakePayer() *fakePayer {
	return &fakePayer{paid: make(map[common.Address]*big.Int)}
}

func (f *fakePayer) Pay(ctx context.Context, to common.Address, amount *big.Int) error {
	if f.failErr != nil {
		return f.failErr
	}
	if f.paid[to] == nil {
		f.paid[to] = new(big.Int)
	}
	f.paid[to].Add(f.paid[to], amount)
	return nil
}

type fixture struct {
	registry *RegistryService
	staking  *StakingService
	store    *ledger.Store
	assets   *fakeAssets
	payer    *fakePayer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	audit := ledger.NewAuditLog()
	store := ledger.New()
	assets := newFakeAssets()
	payer := newFakePayer()

	registry := NewRegistryService(ledger.NewRegistry(), nil, nil, audit, operator, logger)
	staking := NewStakingService(registry, store, assets, payer, nil, audit, operator, logger)

	return &fixture{
		registry: registry,
		staking:  staking,
		store:    store,
		assets:   assets,
		payer:    payer,
	}
}

func (fx *fixture) registerLink(t *testing.T, apyBps uint64) {
	t.Helper()
	_, err := fx.registry.AddToken(context.Background(), operator, "Chainlink", "LINK", linkAddr, 867, apyBps)
	require.NoError(t, err)
}

func TestAddToken_OperatorOnly(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.registry.AddToken(context.Background(), alice, "Chainlink", "LINK", linkAddr, 867, 1500)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	symbols, err := fx.registry.TokenSymbols(context.Background())
	require.NoError(t, err)
	require.Empty(t, symbols)
}

func TestStake_CreatesPositionAndMovesAsset(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(5000))

	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	pos, err := fx.staking.GetPosition(ctx, id)
	require.NoError(t, err)
	require.True(t, pos.Open)
	require.Equal(t, alice, pos.Owner)
	require.Equal(t, "Chainlink", pos.TokenName)
	require.Equal(t, uint64(1500), pos.APYBps)
	require.Zero(t, pos.Principal.Cmp(ether(100)))

	total, err := fx.staking.StakedTotal(ctx, "LINK")
	require.NoError(t, err)
	require.Zero(t, total.Cmp(ether(100)))

	require.Zero(t, fx.assets.walletBalance(linkAddr, alice).Cmp(ether(4900)))
	require.Zero(t, fx.assets.custodyBalance(linkAddr).Cmp(ether(100)))
}

func TestStake_UnknownToken(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.staking.Stake(context.Background(), alice, "AAVE", ether(1), time.Now())
	require.ErrorIs(t, err, domain.ErrUnknownToken)
}

func TestStake_ZeroAmount(t *testing.T) {
	fx := newFixture(t)
	fx.registerLink(t, 1500)

	_, err := fx.staking.Stake(context.Background(), alice, "LINK", big.NewInt(0), time.Now())
	require.ErrorIs(t, err, domain.ErrZeroAmount)
}

func TestStake_TransferFailureRollsBackLedger(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.registerLink(t, 1500)
	fx.assets.failPull = errors.New("allowance exceeded")

	_, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), time.Now())
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	// The position that was opened before the pull must be gone.
	_, err = fx.staking.GetPosition(ctx, 1)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)

	ids, err := fx.staking.PositionIDsFor(ctx, alice)
	require.NoError(t, err)
	require.Empty(t, ids)

	total, _ := fx.staking.StakedTotal(ctx, "LINK")
	require.Zero(t, total.Sign())
}

func TestClosePosition_Errors(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	_, err = fx.staking.ClosePosition(ctx, alice, 999, now)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)

	_, err = fx.staking.ClosePosition(ctx, bob, id, now)
	require.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = fx.staking.ClosePosition(ctx, alice, id, now)
	require.NoError(t, err)

	_, err = fx.staking.ClosePosition(ctx, alice, id, now)
	require.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestClosePosition_PaysPrincipalAndInterest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	require.NoError(t, fx.staking.FundReserve(ctx, operator, ether(100)))

	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	// One year later, 1500 bps on 100 tokens accrues exactly 15.
	closed, err := fx.staking.ClosePosition(ctx, alice, id, now.Add(365*24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(365), closed.Days)
	require.Zero(t, closed.Interest.Cmp(ether(15)))

	require.Zero(t, fx.assets.walletBalance(linkAddr, alice).Cmp(ether(100)))
	require.Zero(t, fx.assets.custodyBalance(linkAddr).Sign())
	require.Zero(t, fx.payer.paid[alice].Cmp(ether(15)))

	total, _ := fx.staking.StakedTotal(ctx, "LINK")
	require.Zero(t, total.Sign())

	reserve, err := fx.staking.Reserve(ctx)
	require.NoError(t, err)
	require.Zero(t, reserve.Cmp(ether(85)))
}

func TestClosePosition_InsufficientReserveRollsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	// Reserve covers less than one year of interest on 100 tokens.
	require.NoError(t, fx.staking.FundReserve(ctx, operator, ether(1)))

	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	_, err = fx.staking.ClosePosition(ctx, alice, id, now.Add(365*24*time.Hour))
	require.ErrorIs(t, err, domain.ErrInsufficientReserve)

	// The close must have been rolled back in full.
	pos, err := fx.staking.GetPosition(ctx, id)
	require.NoError(t, err)
	require.True(t, pos.Open)

	total, _ := fx.staking.StakedTotal(ctx, "LINK")
	require.Zero(t, total.Cmp(ether(100)))

	reserve, _ := fx.staking.Reserve(ctx)
	require.Zero(t, reserve.Cmp(ether(1)))

	require.Zero(t, fx.assets.walletBalance(linkAddr, alice).Sign())
	require.Zero(t, fx.assets.custodyBalance(linkAddr).Cmp(ether(100)))
}

func TestClosePosition_ReleaseFailureRollsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	require.NoError(t, fx.staking.FundReserve(ctx, operator, ether(100)))

	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	fx.assets.failRelease = errors.New("token paused")

	_, err = fx.staking.ClosePosition(ctx, alice, id, now.Add(365*24*time.Hour))
	require.ErrorIs(t, err, domain.ErrTransferFailed)

	pos, _ := fx.staking.GetPosition(ctx, id)
	require.True(t, pos.Open)

	// Reserve debit was part of the same transaction.
	reserve, _ := fx.staking.Reserve(ctx)
	require.Zero(t, reserve.Cmp(ether(100)))
}

func TestModifyCreatedDate_OperatorOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	err = fx.staking.ModifyCreatedDate(ctx, alice, id, now.Add(-24*time.Hour))
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	err = fx.staking.ModifyCreatedDate(ctx, operator, 999, now)
	require.ErrorIs(t, err, domain.ErrUnknownPosition)

	require.NoError(t, fx.staking.ModifyCreatedDate(ctx, operator, id, now.Add(-24*time.Hour)))
	pos, _ := fx.staking.GetPosition(ctx, id)
	require.True(t, pos.CreatedAt.Equal(now.Add(-24*time.Hour)))
}

func TestReadsAreIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	fx.registerLink(t, 1500)
	fx.assets.fund(linkAddr, alice, ether(100))
	_, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		token, err := fx.registry.GetToken(ctx, "LINK")
		require.NoError(t, err)
		require.Equal(t, uint64(1), token.ID)

		ids, err := fx.staking.PositionIDsFor(ctx, alice)
		require.NoError(t, err)
		require.Equal(t, []uint64{1}, ids)

		symbols, err := fx.registry.TokenSymbols(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"LINK"}, symbols)
	}
}

// End-to-end walk through the reference scenario: register LINK at 1500 bps,
// stake 100 tokens, backdate a year, close, and check every balance.
func TestStakeBackdateClose_EndToEnd(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	tokenID, err := fx.registry.AddToken(ctx, operator, "Chainlink", "LINK", linkAddr, 867, 1500)
	require.NoError(t, err)
	require.Equal(t, uint64(1), tokenID)

	fx.assets.fund(linkAddr, alice, ether(5000))
	require.NoError(t, fx.staking.FundReserve(ctx, operator, ether(100)))

	id, err := fx.staking.Stake(ctx, alice, "LINK", ether(100), now)
	require.NoError(t, err)

	require.NoError(t, fx.staking.ModifyCreatedDate(ctx, operator, id, now.Add(-365*24*time.Hour)))

	closed, err := fx.staking.ClosePosition(ctx, alice, id, now)
	require.NoError(t, err)
	require.Equal(t, int64(365), closed.Days)
	require.Zero(t, closed.Interest.Cmp(ether(15)))

	require.Zero(t, fx.assets.walletBalance(linkAddr, alice).Cmp(ether(5000)))
	require.Zero(t, fx.payer.paid[alice].Cmp(ether(15)))

	total, _ := fx.staking.StakedTotal(ctx, "LINK")
	require.Zero(t, total.Sign())

	pos, _ := fx.staking.GetPosition(ctx, id)
	require.False(t, pos.Open)
}
