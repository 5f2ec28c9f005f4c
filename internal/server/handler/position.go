package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// PositionService defines the methods that the position handler requires.
type PositionService interface {
	GetPosition(ctx context.Context, positionID uint64) (domain.Position, error)
	PositionIDsFor(ctx context.Context, owner common.Address) ([]uint64, error)
	ModifyCreatedDate(ctx context.Context, caller common.Address, positionID uint64, createdAt time.Time) error
}

// PositionHandler serves position query and maintenance endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// listPositionsResponse wraps the caller's position IDs.
type listPositionsResponse struct {
	Owner       string   `json:"owner"`
	PositionIDs []uint64 `json:"position_ids"`
}

// ListPositions returns the IDs of every position the calling wallet has ever
// opened, including closed ones.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}

	ids, err := h.positions.PositionIDsFor(r.Context(), caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("owner", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	if ids == nil {
		ids = []uint64{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{
		Owner:       caller.Hex(),
		PositionIDs: ids,
	})
}

// GetPosition returns a single position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid position id")
		return
	}

	pos, err := h.positions.GetPosition(r.Context(), id)
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.Uint64("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, toPositionResponse(pos))
}

// setCreatedAtRequest is the JSON body for backdating a position.
type setCreatedAtRequest struct {
	CreatedAt time.Time `json:"created_at"`
}

// SetCreatedAt rewrites a position's creation timestamp. Operator only; used
// to correct records and to exercise interest accrual in test deployments.
// PUT /api/positions/{id}/created-at
func (h *PositionHandler) SetCreatedAt(w http.ResponseWriter, r *http.Request) {
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

	var req setCreatedAtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CreatedAt.IsZero() {
		writeError(w, http.StatusBadRequest, "created_at is required")
		return
	}

	if err := h.positions.ModifyCreatedDate(r.Context(), caller, id, req.CreatedAt); err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: set created_at failed",
			slog.Uint64("position_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update position")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"position_id": id,
		"created_at":  req.CreatedAt.UTC().Format(time.RFC3339),
	})
}
