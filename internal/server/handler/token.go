package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// TokenService defines the methods that the token handler requires from the
// service layer.
type TokenService interface {
	AddToken(ctx context.Context, caller common.Address, name, symbol string, assetAddr common.Address, usdPrice, apyBps uint64) (uint64, error)
	GetToken(ctx context.Context, symbol string) (domain.Token, error)
	TokenSymbols(ctx context.Context) ([]string, error)
}

// TokenHandler serves token registry HTTP endpoints.
type TokenHandler struct {
	tokens TokenService
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler with the given service and logger.
func NewTokenHandler(tokens TokenService, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		tokens: tokens,
		logger: logger,
	}
}

// createTokenRequest is the JSON body for token registration.
type createTokenRequest struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	USDPrice uint64 `json:"usd_price"`
	APYBps   uint64 `json:"apy_bps"`
}

// CreateToken registers a new stakeable token. Operator only.
// POST /api/tokens
func (h *TokenHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Name == "" || req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "name and symbol are required")
		return
	}
	if req.Address != "" && !common.IsHexAddress(req.Address) {
		writeError(w, http.StatusBadRequest, "address is not a valid hex address")
		return
	}

	id, err := h.tokens.AddToken(r.Context(), caller, req.Name, req.Symbol,
		common.HexToAddress(req.Address), req.USDPrice, req.APYBps)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: create token failed",
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token_id": id,
		"symbol":   req.Symbol,
	})
}

// listTokensResponse wraps the list tokens response.
type listTokensResponse struct {
	Symbols []string `json:"symbols"`
}

// ListTokens returns the symbols of all registered tokens in registration
// order.
// GET /api/tokens
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.tokens.TokenSymbols(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list tokens failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list tokens")
		return
	}

	if symbols == nil {
		symbols = []string{}
	}

	writeJSON(w, http.StatusOK, listTokensResponse{Symbols: symbols})
}

// GetToken returns a registered token by symbol.
// GET /api/tokens/{symbol}
func (h *TokenHandler) GetToken(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing token symbol")
		return
	}

	token, err := h.tokens.GetToken(r.Context(), symbol)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get token failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get token")
		return
	}

	writeJSON(w, http.StatusOK, token)
}
