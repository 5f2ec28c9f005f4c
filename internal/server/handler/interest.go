package handler

import (
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"
)

// InterestService defines the interest math the handler exposes.
type InterestService interface {
	CalculateInterest(apyBps uint64, principal *big.Int, days int64) *big.Int
	InterestDays(since, now time.Time) (int64, error)
}

// InterestHandler exposes the interest formula as read-only quote endpoints.
type InterestHandler struct {
	interest InterestService
	logger   *slog.Logger
}

// NewInterestHandler creates an InterestHandler with the given service and logger.
func NewInterestHandler(interest InterestService, logger *slog.Logger) *InterestHandler {
	return &InterestHandler{
		interest: interest,
		logger:   logger,
	}
}

// Quote computes simple interest for the given parameters without touching
// any position.
// GET /api/interest?apy_bps=1500&principal=100000000000000000000&days=365
func (h *InterestHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	apyBps, err := strconv.ParseUint(q.Get("apy_bps"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "apy_bps must be a non-negative integer")
		return
	}
	principal, ok := parseAmount(q.Get("principal"))
	if !ok {
		writeError(w, http.StatusBadRequest, "principal must be a non-negative decimal string")
		return
	}
	days, err := strconv.ParseInt(q.Get("days"), 10, 64)
	if err != nil || days < 0 {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer")
		return
	}

	interest := h.interest.CalculateInterest(apyBps, principal, days)

	writeJSON(w, http.StatusOK, map[string]any{
		"apy_bps":   apyBps,
		"principal": principal.String(),
		"days":      days,
		"interest":  interest.String(),
	})
}

// Days returns the number of whole days elapsed since a timestamp.
// GET /api/interest/days?since=2025-01-01T00:00:00Z
func (h *InterestHandler) Days(w http.ResponseWriter, r *http.Request) {
	since, err := time.Parse(time.RFC3339, r.URL.Query().Get("since"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
		return
	}

	days, err := h.interest.InterestDays(since, time.Now().UTC())
	if err != nil {
		if writeDomainError(w, err) {
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: interest days failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute days")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"since": since.UTC().Format(time.RFC3339),
		"days":  days,
	})
}
