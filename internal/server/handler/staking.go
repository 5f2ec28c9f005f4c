package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
	"github.com/stakeledger/stakeledger/internal/service"
)

// StakingService defines the methods that the staking handler requires from
// the service layer.
type StakingService interface {
	Stake(ctx context.Context, caller common.Address, symbol string, amount *big.Int, now time.Time) (uint64, error)
	ClosePosition(ctx context.Context, caller common.Address, positionID uint64, now time.Time) (service.ClosedPosition, error)
	StakedTotal(ctx context.Context, symbol string) (*big.Int, error)
}

// StakingHandler serves the stake and close endpoints.
type StakingHandler struct {
	staking StakingService
	logger  *slog.Logger
}

// NewStakingHandler creates a StakingHandler with the given service and logger.
func NewStakingHandler(staking StakingService, logger *slog.Logger) *StakingHandler {
	return &StakingHandler{
		staking: staking,
		logger:  logger,
	}
}

// stakeRequest is the JSON body for staking. Amount is a decimal string in
// the token's smallest unit.
type stakeRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// Stake opens a new position for the calling wallet.
// POST /api/stake
func (h *StakingHandler) Stake(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}

	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative decimal string")
		return
	}

	positionID, err := h.staking.Stake(r.Context(), caller, req.Symbol, amount, time.Now().UTC())
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: stake failed",
			slog.String("owner", caller.Hex()),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to stake")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"position_id": positionID,
		"symbol":      req.Symbol,
		"amount":      amount.String(),
	})
}

// closeResponse describes a settled position.
type closeResponse struct {
	Position positionResponse `json:"position"`
	Days     int64            `json:"days"`
	Interest string           `json:"interest"`
}

// ClosePosition closes one of the caller's positions, returning principal and
// settling interest.
// POST /api/positions/{id}/close
func (h *StakingHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	closed, err := h.staking.ClosePosition(r.Context(), caller, id, time.Now().UTC())
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: close position failed",
			slog.Uint64("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to close position")
		return
	}

	writeJSON(w, http.StatusOK, closeResponse{
		Position: toPositionResponse(closed.Position),
		Days:     closed.Days,
		Interest: closed.Interest.String(),
	})
}

// StakedTotal returns the total currently staked for a token symbol.
// GET /api/tokens/{symbol}/staked
func (h *StakingHandler) StakedTotal(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing token symbol")
		return
	}

	total, err := h.staking.StakedTotal(r.Context(), symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: staked total failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get staked total")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"symbol": symbol,
		"total":  total.String(),
	})
}

// positionResponse mirrors domain.Position with the principal rendered as a
// decimal string, since wei-scale values overflow JSON numbers.
type positionResponse struct {
	ID          uint64    `json:"position_id"`
	Owner       string    `json:"owner"`
	TokenName   string    `json:"token_name"`
	TokenSymbol string    `json:"token_symbol"`
	APYBps      uint64    `json:"apy_bps"`
	Principal   string    `json:"principal"`
	CreatedAt   time.Time `json:"created_at"`
	Open        bool      `json:"open"`
}

func toPositionResponse(p domain.Position) positionResponse {
	return positionResponse{
		ID:          p.ID,
		Owner:       p.Owner.Hex(),
		TokenName:   p.TokenName,
		TokenSymbol: p.TokenSymbol,
		APYBps:      p.APYBps,
		Principal:   p.Principal.String(),
		CreatedAt:   p.CreatedAt,
		Open:        p.Open,
	}
}
