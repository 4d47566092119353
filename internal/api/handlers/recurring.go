package handlers

import (
	"net/http"

	"github.com/budgetnz/envelope-sync-backend/internal/api/dto"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// RecurringIncomesHandler handles recurring-income definition requests.
type RecurringIncomesHandler struct {
	ledger storage.Ledger
}

// NewRecurringIncomesHandler creates a new recurring incomes handler.
func NewRecurringIncomesHandler(ledger storage.Ledger) *RecurringIncomesHandler {
	return &RecurringIncomesHandler{ledger: ledger}
}

// List handles GET /api/recurring-incomes?user_id=N.
func (h *RecurringIncomesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	definitions, err := h.ledger.RecurringIncomesForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"recurring_incomes": definitions})
}
