package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// RegistryService manages the token registry: operator-gated registration and
// read access with an optional cache in front of the store.
type RegistryService struct {
	tokens   domain.TokenStore
	cache    domain.TokenCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	operator common.Address
	logger   *slog.Logger
}

// NewRegistryService creates a RegistryService. cache may be nil, in which
// case every read goes to the store.
func NewRegistryService(
	tokens domain.TokenStore,
	cache domain.TokenCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	operator common.Address,
	logger *slog.Logger,
) *RegistryService {
	return &RegistryService{
		tokens:   tokens,
		cache:    cache,
		bus:      bus,
		audit:    audit,
		operator: operator,
		logger:   logger,
	}
}

// AddToken registers a new stakeable token. Only the operator may call it.
// The ethPrice field of the stored token is always zero; the column is
// reserved by the original deployment and has no write path.
func (s *RegistryService) AddToken(ctx context.Context, caller common.Address, name, symbol string, assetAddr common.Address, usdPrice, apyBps uint64) (uint64, error) {
	if caller != s.operator {
		return 0, fmt.Errorf("registry_service: add token %q: %w", symbol, domain.ErrUnauthorized)
	}
	if name == "" || symbol == "" {
		return 0, fmt.Errorf("registry_service: name and symbol must not be empty")
	}

	id, err := s.tokens.Add(ctx, domain.Token{
		Name:     name,
		Symbol:   symbol,
		Address:  assetAddr,
		USDPrice: usdPrice,
		APYBps:   apyBps,
	})
	if err != nil {
		return 0, fmt.Errorf("registry_service: add token %q: %w", symbol, err)
	}

	if s.cache != nil {
		token, getErr := s.tokens.Get(ctx, symbol)
		if getErr == nil {
			if cacheErr := s.cache.Set(ctx, token); cacheErr != nil {
				s.logger.WarnContext(ctx, "registry_service: cache set failed",
					slog.String("symbol", symbol),
					slog.String("error", cacheErr.Error()),
				)
			}
		}
	}

	s.publishEvent(ctx, "tokens", map[string]any{
		"event":    "token_registered",
		"event_id": uuid.NewString(),
		"token_id": id,
		"symbol":   symbol,
		"apy_bps":  apyBps,
	})

	if auditErr := s.audit.Log(ctx, "token_registered", map[string]any{
		"token_id":  id,
		"name":      name,
		"symbol":    symbol,
		"address":   assetAddr.Hex(),
		"usd_price": usdPrice,
		"apy_bps":   apyBps,
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "registry_service: audit log failed",
			slog.String("symbol", symbol),
			slog.String("error", auditErr.Error()),
		)
	}

	s.logger.InfoContext(ctx, "registry_service: token registered",
		slog.Uint64("token_id", id),
		slog.String("symbol", symbol),
		slog.Uint64("apy_bps", apyBps),
	)

	return id, nil
}

// GetToken returns a registered token, consulting the cache first.
func (s *RegistryService) GetToken(ctx context.Context, symbol string) (domain.Token, error) {
	if s.cache != nil {
		token, ok, err := s.cache.Get(ctx, symbol)
		if err != nil {
			s.logger.WarnContext(ctx, "registry_service: cache get failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return token, nil
		}
	}

	token, err := s.tokens.Get(ctx, symbol)
	if err != nil {
		return domain.Token{}, fmt.Errorf("registry_service: get token %q: %w", symbol, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, token); err != nil {
			s.logger.WarnContext(ctx, "registry_service: cache set failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	return token, nil
}

// TokenSymbols returns every registered symbol in registration order.
func (s *RegistryService) TokenSymbols(ctx context.Context) ([]string, error) {
	symbols, err := s.tokens.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry_service: list symbols: %w", err)
	}
	return symbols, nil
}

func (s *RegistryService) publishEvent(ctx context.Context, channel string, detail map[string]any) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(detail)
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "registry_service: publish event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
