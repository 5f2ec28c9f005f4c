package ledger

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	link = domain.Token{
		ID:     1,
		Name:   "Chainlink",
		Symbol: "LINK",
		APYBps: 1500,
	}
)

func openPosition(t *testing.T, s *Store, owner common.Address, token domain.Token, principal int64, now time.Time) uint64 {
	t.Helper()

	var id uint64
	err := s.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		var err error
		id, err = tx.OpenPosition(context.Background(), owner, token, big.NewInt(principal), now)
		return err
	})
	if err != nil {
		t.Fatalf("open position: %v", err)
	}
	return id
}

func TestOpenPosition_AssignsSequentialIDs(t *testing.T) {
	s := New()
	now := time.Unix(1_700_000_000, 0).UTC()

	for want := uint64(1); want <= 3; want++ {
		if id := openPosition(t, s, alice, link, 100, now); id != want {
			t.Fatalf("got position id %d, want %d", id, want)
		}
	}

	ids, err := s.PositionIDsForOwner(context.Background(), alice)
	if err != nil {
		t.Fatalf("position ids: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Fatalf("unexpected owner index: %v", ids)
	}
}

func TestOpenPosition_ZeroPrincipal(t *testing.T) {
	s := New()

	err := s.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		_, err := tx.OpenPosition(context.Background(), alice, link, big.NewInt(0), time.Now())
		return err
	})
	if !errors.Is(err, domain.ErrZeroAmount) {
		t.Fatalf("got %v, want ErrZeroAmount", err)
	}
}

func TestOpenPosition_SnapshotsToken(t *testing.T) {
	s := New()
	now := time.Unix(1_700_000_000, 0).UTC()
	id := openPosition(t, s, alice, link, 100, now)

	pos, err := s.GetPosition(context.Background(), id)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if pos.TokenName != "Chainlink" || pos.TokenSymbol != "LINK" || pos.APYBps != 1500 {
		t.Fatalf("unexpected snapshot: %+v", pos)
	}
	if !pos.Open {
		t.Fatal("new position not open")
	}
	if !pos.CreatedAt.Equal(now) {
		t.Fatalf("created at %v, want %v", pos.CreatedAt, now)
	}
}

func TestStakedTotals_TrackOpenPrincipal(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	openPosition(t, s, alice, link, 100, now)
	id := openPosition(t, s, bob, link, 50, now)

	total, err := s.StakedTotal(ctx, "LINK")
	if err != nil {
		t.Fatalf("staked total: %v", err)
	}
	if total.Int64() != 150 {
		t.Fatalf("got total %s, want 150", total)
	}

	err = s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		_, err := tx.ClosePosition(ctx, id, bob)
		return err
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	total, _ = s.StakedTotal(ctx, "LINK")
	if total.Int64() != 100 {
		t.Fatalf("got total %s after close, want 100", total)
	}
}

func TestClosePosition_Errors(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	id := openPosition(t, s, alice, link, 100, now)

	close := func(posID uint64, closer common.Address) error {
		return s.WithinTx(ctx, func(tx domain.LedgerTx) error {
			_, err := tx.ClosePosition(ctx, posID, closer)
			return err
		})
	}

	if err := close(999, alice); !errors.Is(err, domain.ErrUnknownPosition) {
		t.Fatalf("got %v, want ErrUnknownPosition", err)
	}
	if err := close(id, bob); !errors.Is(err, domain.ErrNotOwner) {
		t.Fatalf("got %v, want ErrNotOwner", err)
	}
	if err := close(id, alice); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := close(id, alice); !errors.Is(err, domain.ErrAlreadyClosed) {
		t.Fatalf("got %v, want ErrAlreadyClosed", err)
	}
}

func TestClosePosition_ReturnsPreCloseSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	id := openPosition(t, s, alice, link, 100, now)

	var snapshot domain.Position
	err := s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		snapshot, err = tx.ClosePosition(ctx, id, alice)
		return err
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if !snapshot.Open {
		t.Fatal("snapshot should reflect the pre-close state")
	}
	if snapshot.Principal.Int64() != 100 {
		t.Fatalf("snapshot principal %s, want 100", snapshot.Principal)
	}

	pos, _ := s.GetPosition(ctx, id)
	if pos.Open {
		t.Fatal("stored position still open")
	}
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	openPosition(t, s, alice, link, 100, now)

	boom := errors.New("transfer rejected")
	err := s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		if _, err := tx.OpenPosition(ctx, bob, link, big.NewInt(40), now); err != nil {
			return err
		}
		if _, err := tx.ClosePosition(ctx, 1, alice); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want the callback error", err)
	}

	// All writes from the failed transaction must be gone.
	pos, err := s.GetPosition(ctx, 1)
	if err != nil {
		t.Fatalf("get position: %v", err)
	}
	if !pos.Open {
		t.Fatal("close survived a rolled-back transaction")
	}
	if _, err := s.GetPosition(ctx, 2); !errors.Is(err, domain.ErrUnknownPosition) {
		t.Fatalf("open survived a rolled-back transaction: %v", err)
	}
	total, _ := s.StakedTotal(ctx, "LINK")
	if total.Int64() != 100 {
		t.Fatalf("staked total %s, want 100", total)
	}
	ids, _ := s.PositionIDsForOwner(ctx, bob)
	if len(ids) != 0 {
		t.Fatalf("owner index grew in rolled-back transaction: %v", ids)
	}
}

func TestReserve_DebitAndCredit(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.CreditReserve(ctx, big.NewInt(1000))
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}

	err = s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.DebitReserve(ctx, big.NewInt(1001))
	})
	if !errors.Is(err, domain.ErrInsufficientReserve) {
		t.Fatalf("got %v, want ErrInsufficientReserve", err)
	}

	// The failed debit must not have touched the balance.
	reserve, _ := s.Reserve(ctx)
	if reserve.Int64() != 1000 {
		t.Fatalf("reserve %s, want 1000", reserve)
	}

	err = s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.DebitReserve(ctx, big.NewInt(400))
	})
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	reserve, _ = s.Reserve(ctx)
	if reserve.Int64() != 600 {
		t.Fatalf("reserve %s, want 600", reserve)
	}
}

func TestSetCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()
	id := openPosition(t, s, alice, link, 100, now)

	backdated := now.Add(-365 * 24 * time.Hour)
	err := s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.SetCreatedAt(ctx, id, backdated)
	})
	if err != nil {
		t.Fatalf("set created at: %v", err)
	}

	pos, _ := s.GetPosition(ctx, id)
	if !pos.CreatedAt.Equal(backdated) {
		t.Fatalf("created at %v, want %v", pos.CreatedAt, backdated)
	}

	err = s.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.SetCreatedAt(ctx, 999, backdated)
	})
	if !errors.Is(err, domain.ErrUnknownPosition) {
		t.Fatalf("got %v, want ErrUnknownPosition", err)
	}
}

func TestListClosedBefore(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	older := openPosition(t, s, alice, link, 10, now.Add(-48*time.Hour))
	newer := openPosition(t, s, alice, link, 20, now)

	for _, id := range []uint64{older, newer} {
		err := s.WithinTx(ctx, func(tx domain.LedgerTx) error {
			_, err := tx.ClosePosition(ctx, id, alice)
			return err
		})
		if err != nil {
			t.Fatalf("close %d: %v", id, err)
		}
	}

	got, err := s.ListClosedBefore(ctx, now.Add(-time.Hour), domain.ListOpts{})
	if err != nil {
		t.Fatalf("list closed: %v", err)
	}
	if len(got) != 1 || got[0].ID != older {
		t.Fatalf("unexpected listing: %+v", got)
	}
}
