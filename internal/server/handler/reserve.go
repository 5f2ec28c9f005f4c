package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// ReserveService defines the interest-reserve operations the handler exposes.
type ReserveService interface {
	Reserve(ctx context.Context) (*big.Int, error)
	FundReserve(ctx context.Context, caller common.Address, amount *big.Int) error
}

// ReserveHandler serves the interest reserve endpoints.
type ReserveHandler struct {
	reserve ReserveService
	logger  *slog.Logger
}

// NewReserveHandler creates a ReserveHandler with the given service and logger.
func NewReserveHandler(reserve ReserveService, logger *slog.Logger) *ReserveHandler {
	return &ReserveHandler{
		reserve: reserve,
		logger:  logger,
	}
}

// GetReserve returns the current interest reserve balance.
// GET /api/reserve
func (h *ReserveHandler) GetReserve(w http.ResponseWriter, r *http.Request) {
	balance, err := h.reserve.Reserve(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get reserve failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get reserve")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"balance": balance.String(),
	})
}

// fundReserveRequest is the JSON body for funding the reserve.
type fundReserveRequest struct {
	Amount string `json:"amount"`
}

// FundReserve credits the interest reserve. Operator only.
// POST /api/reserve/fund
func (h *ReserveHandler) FundReserve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}

	var req fundReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative decimal string")
		return
	}

	if err := h.reserve.FundReserve(r.Context(), caller, amount); err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: fund reserve failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fund reserve")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "funded",
		"amount": amount.String(),
	})
}
