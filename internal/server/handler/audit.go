package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/stakeledger/stakeledger/internal/domain"
)

// OperatorChecker reports whether an address holds the operator capability.
type OperatorChecker interface {
	IsOperator(addr common.Address) bool
}

// AuditHandler exposes the audit trail to the operator.
type AuditHandler struct {
	audit    domain.AuditStore
	operator OperatorChecker
	logger   *slog.Logger
}

// NewAuditHandler creates an AuditHandler with the given store and logger.
func NewAuditHandler(audit domain.AuditStore, operator OperatorChecker, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		audit:    audit,
		operator: operator,
		logger:   logger,
	}
}

// listAuditResponse wraps the audit listing response.
type listAuditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
}

// ListEntries returns audit entries, newest first. Operator only.
// GET /api/audit?limit=50&offset=0&since=...&until=...
func (h *AuditHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAddress(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "missing or invalid "+callerHeader+" header")
		return
	}
	if !h.operator.IsOperator(caller) {
		writeError(w, http.StatusForbidden, domain.ErrUnauthorized.Error())
		return
	}

	opts := parseListOpts(r)
	q := r.URL.Query()
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		opts.Since = &t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be an RFC3339 timestamp")
			return
		}
		opts.Until = &t
	}

	entries, err := h.audit.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list audit entries failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, listAuditResponse{Entries: entries})
}
