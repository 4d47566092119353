package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/budgetnz/envelope-sync-backend/internal/api/dto"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// EnvelopesHandler handles envelope HTTP requests.
type EnvelopesHandler struct {
	ledger storage.Ledger
}

// NewEnvelopesHandler creates a new envelopes handler.
func NewEnvelopesHandler(ledger storage.Ledger) *EnvelopesHandler {
	return &EnvelopesHandler{ledger: ledger}
}

// List handles GET /api/envelopes?user_id=N.
func (h *EnvelopesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	envelopes, err := h.ledger.EnvelopesForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"envelopes": envelopes})
}

// Get handles GET /api/envelopes/{id}.
func (h *EnvelopesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid envelope id"))
		return
	}

	envelope, err := h.ledger.Envelope(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, dto.NotFoundError("envelope"))
			return
		}
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, envelope)
}
