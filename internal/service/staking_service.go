package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stakeledger/stakeledger/internal/domain"
	"github.com/stakeledger/stakeledger/internal/interest"
)

// TokenLookup resolves a registered token by symbol. Implemented by
// RegistryService.
type TokenLookup interface {
	GetToken(ctx context.Context, symbol string) (domain.Token, error)
}

// ClosedPosition summarizes a successful close: the pre-close record plus the
// computed payout.
type ClosedPosition struct {
	Position domain.Position `json:"position"`
	Days     int64           `json:"days"`
	Interest *big.Int        `json:"interest"`
}

// StakingService orchestrates the staking lifecycle: it validates stake
// requests against the registry, moves assets through the transferor, and
// drives the position ledger. Every state-changing path runs inside a ledger
// transaction so that a failed transfer discards all ledger writes.
type StakingService struct {
	tokens   TokenLookup
	ledger   domain.LedgerStore
	assets   domain.AssetTransferor
	payer    domain.NativePayer
	bus      domain.SignalBus
	audit    domain.AuditStore
	operator common.Address
	logger   *slog.Logger
}

// NewStakingService creates a StakingService with all required dependencies.
func NewStakingService(
	tokens TokenLookup,
	ledger domain.LedgerStore,
	assets domain.AssetTransferor,
	payer domain.NativePayer,
	bus domain.SignalBus,
	audit domain.AuditStore,
	operator common.Address,
	logger *slog.Logger,
) *StakingService {
	return &StakingService{
		tokens:   tokens,
		ledger:   ledger,
		assets:   assets,
		payer:    payer,
		bus:      bus,
		audit:    audit,
		operator: operator,
		logger:   logger,
	}
}

// Stake deposits amount of the token registered under symbol. It pulls the
// asset from the caller's wallet into custody and opens a position whose APY
// is snapshotted from the registry. The ledger write and the pull share fate:
// a rejected transfer leaves no position behind.
func (s *StakingService) Stake(ctx context.Context, caller common.Address, symbol string, amount *big.Int, now time.Time) (uint64, error) {
	token, err := s.tokens.GetToken(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("staking_service: stake %q: %w", symbol, err)
	}
	if amount == nil || amount.Sign() == 0 {
		return 0, fmt.Errorf("staking_service: stake %q: %w", symbol, domain.ErrZeroAmount)
	}

	var positionID uint64
	err = s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		id, err := tx.OpenPosition(ctx, caller, token, amount, now)
		if err != nil {
			return err
		}
		positionID = id

		if err := s.assets.Pull(ctx, token.Address, caller, amount); err != nil {
			return fmt.Errorf("%w: pull %s %s from %s: %v",
				domain.ErrTransferFailed, amount, symbol, caller.Hex(), err)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("staking_service: stake %q: %w", symbol, err)
	}

	s.publishEvent(ctx, "positions", map[string]any{
		"event":       "position_opened",
		"event_id":    uuid.NewString(),
		"position_id": positionID,
		"owner":       caller.Hex(),
		"symbol":      symbol,
		"principal":   amount.String(),
		"apy_bps":     token.APYBps,
	})
	s.auditLog(ctx, "position_opened", map[string]any{
		"position_id": positionID,
		"owner":       caller.Hex(),
		"symbol":      symbol,
		"principal":   amount.String(),
		"apy_bps":     token.APYBps,
	})

	s.logger.InfoContext(ctx, "staking_service: position opened",
		slog.Uint64("position_id", positionID),
		slog.String("owner", caller.Hex()),
		slog.String("symbol", symbol),
		slog.String("principal", amount.String()),
	)

	return positionID, nil
}

// ClosePosition terminates a position owned by caller. Inside one ledger
// transaction it marks the position closed, debits the interest reserve,
// returns the principal via the asset transferor, and pays the accrued
// interest in the native currency. Any failure, including an insufficient
// reserve or a rejected transfer, rolls the entire close back.
func (s *StakingService) ClosePosition(ctx context.Context, caller common.Address, positionID uint64, now time.Time) (ClosedPosition, error) {
	var result ClosedPosition

	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		snapshot, err := tx.ClosePosition(ctx, positionID, caller)
		if err != nil {
			return err
		}

		days, err := interest.DaysElapsed(snapshot.CreatedAt, now)
		if err != nil {
			return err
		}
		accrued := interest.Calculate(snapshot.APYBps, snapshot.Principal, days)

		if accrued.Sign() > 0 {
			if err := tx.DebitReserve(ctx, accrued); err != nil {
				return err
			}
		}

		token, err := s.tokens.GetToken(ctx, snapshot.TokenSymbol)
		if err != nil {
			return err
		}

		if err := s.assets.Release(ctx, token.Address, caller, snapshot.Principal); err != nil {
			return fmt.Errorf("%w: release %s %s to %s: %v",
				domain.ErrTransferFailed, snapshot.Principal, snapshot.TokenSymbol, caller.Hex(), err)
		}
		if accrued.Sign() > 0 {
			if err := s.payer.Pay(ctx, caller, accrued); err != nil {
				return fmt.Errorf("%w: pay interest %s to %s: %v",
					domain.ErrTransferFailed, accrued, caller.Hex(), err)
			}
		}

		result = ClosedPosition{Position: snapshot, Days: days, Interest: accrued}
		return nil
	})
	if err != nil {
		return ClosedPosition{}, fmt.Errorf("staking_service: close position %d: %w", positionID, err)
	}

	s.publishEvent(ctx, "positions", map[string]any{
		"event":       "position_closed",
		"event_id":    uuid.NewString(),
		"position_id": positionID,
		"owner":       caller.Hex(),
		"symbol":      result.Position.TokenSymbol,
		"principal":   result.Position.Principal.String(),
		"interest":    result.Interest.String(),
		"days":        result.Days,
	})
	s.auditLog(ctx, "position_closed", map[string]any{
		"position_id": positionID,
		"owner":       caller.Hex(),
		"symbol":      result.Position.TokenSymbol,
		"principal":   result.Position.Principal.String(),
		"interest":    result.Interest.String(),
		"days":        result.Days,
	})

	s.logger.InfoContext(ctx, "staking_service: position closed",
		slog.Uint64("position_id", positionID),
		slog.String("owner", caller.Hex()),
		slog.Int64("days", result.Days),
		slog.String("interest", result.Interest.String()),
	)

	return result, nil
}

// GetPosition returns a position by ID. Position records are public; only
// closing is restricted to the owner.
func (s *StakingService) GetPosition(ctx context.Context, positionID uint64) (domain.Position, error) {
	pos, err := s.ledger.GetPosition(ctx, positionID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("staking_service: get position %d: %w", positionID, err)
	}
	return pos, nil
}

// PositionIDsFor returns every position ID ever created for owner, in
// creation order, including closed positions.
func (s *StakingService) PositionIDsFor(ctx context.Context, owner common.Address) ([]uint64, error) {
	ids, err := s.ledger.PositionIDsForOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("staking_service: position ids for %s: %w", owner.Hex(), err)
	}
	return ids, nil
}

// StakedTotal returns the cumulative open principal for symbol.
func (s *StakingService) StakedTotal(ctx context.Context, symbol string) (*big.Int, error) {
	total, err := s.ledger.StakedTotal(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("staking_service: staked total %q: %w", symbol, err)
	}
	return total, nil
}

// CalculateInterest is a read-only helper exposed for external verification.
func (s *StakingService) CalculateInterest(apyBps uint64, principal *big.Int, days int64) *big.Int {
	return interest.Calculate(apyBps, principal, days)
}

// InterestDays returns the whole days elapsed since the given time.
func (s *StakingService) InterestDays(since, now time.Time) (int64, error) {
	return interest.DaysElapsed(since, now)
}

// ModifyCreatedDate backdates a position's creation timestamp. Operator-only
// administrative tool for simulating elapsed time.
func (s *StakingService) ModifyCreatedDate(ctx context.Context, caller common.Address, positionID uint64, createdAt time.Time) error {
	if caller != s.operator {
		return fmt.Errorf("staking_service: modify created date %d: %w", positionID, domain.ErrUnauthorized)
	}

	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.SetCreatedAt(ctx, positionID, createdAt)
	})
	if err != nil {
		return fmt.Errorf("staking_service: modify created date %d: %w", positionID, err)
	}

	s.auditLog(ctx, "created_date_modified", map[string]any{
		"position_id": positionID,
		"created_at":  createdAt.UTC().Format(time.RFC3339),
	})
	return nil
}

// FundReserve credits the native interest reserve. Operator-only; mirrors the
// native deposit made when the original contract was deployed.
func (s *StakingService) FundReserve(ctx context.Context, caller common.Address, amount *big.Int) error {
	if caller != s.operator {
		return fmt.Errorf("staking_service: fund reserve: %w", domain.ErrUnauthorized)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("staking_service: fund reserve: %w", domain.ErrZeroAmount)
	}

	err := s.ledger.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.CreditReserve(ctx, amount)
	})
	if err != nil {
		return fmt.Errorf("staking_service: fund reserve: %w", err)
	}

	s.auditLog(ctx, "reserve_funded", map[string]any{"amount": amount.String()})
	return nil
}

// Reserve returns the current interest reserve balance.
func (s *StakingService) Reserve(ctx context.Context) (*big.Int, error) {
	reserve, err := s.ledger.Reserve(ctx)
	if err != nil {
		return nil, fmt.Errorf("staking_service: reserve: %w", err)
	}
	return reserve, nil
}

func (s *StakingService) publishEvent(ctx context.Context, channel string, detail map[string]any) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "staking_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (s *StakingService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "staking_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// IsOperator reports whether addr holds the operator capability.
func (s *StakingService) IsOperator(addr common.Address) bool {
	return addr == s.operator
}
