package handlers

import (
	"net/http"

	"github.com/budgetnz/envelope-sync-backend/internal/api/dto"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// RunsHandler exposes historical import runs.
type RunsHandler struct {
	ledger storage.Ledger
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(ledger storage.Ledger) *RunsHandler {
	return &RunsHandler{ledger: ledger}
}

// List handles GET /api/runs?user_id=N&limit=M.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.ledger.ImportRuns(r.Context(), userID, limit)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}
