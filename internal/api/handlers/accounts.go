package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/budgetnz/envelope-sync-backend/internal/api/dto"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// AccountsHandler handles account HTTP requests.
type AccountsHandler struct {
	ledger storage.Ledger
}

// NewAccountsHandler creates a new accounts handler.
func NewAccountsHandler(ledger storage.Ledger) *AccountsHandler {
	return &AccountsHandler{ledger: ledger}
}

// List handles GET /api/accounts?user_id=N.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	accounts, err := h.ledger.AccountsForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

// Get handles GET /api/accounts/{id}.
func (h *AccountsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid account id"))
		return
	}

	account, err := h.ledger.Account(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, dto.NotFoundError("account"))
			return
		}
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, account)
}
