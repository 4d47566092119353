package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/budgetnz/envelope-sync-backend/internal/api/dto"
	"github.com/budgetnz/envelope-sync-backend/internal/application/importer"
	"github.com/budgetnz/envelope-sync-backend/internal/domain/match"
	"github.com/budgetnz/envelope-sync-backend/internal/infrastructure/storage"
)

// TransactionsHandler handles transaction-related HTTP requests.
type TransactionsHandler struct {
	ledger    storage.Ledger
	processor *importer.Processor
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(ledger storage.Ledger, processor *importer.Processor) *TransactionsHandler {
	return &TransactionsHandler{ledger: ledger, processor: processor}
}

// List handles GET /api/transactions?user_id=N.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := ParseID(r.URL.Query().Get("user_id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("user_id is required"))
		return
	}

	transactions, err := h.ledger.TransactionsForUser(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"total_count":  len(transactions),
	})
}

// Create handles POST /api/transactions - manual transaction entry. The
// entry gets a fingerprint immediately so a later bank sync can exact-match
// and merge with it.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if req.UserID == 0 || req.AccountID == 0 || req.Merchant == "" {
		WriteError(w, http.StatusBadRequest, dto.ValidationError("user_id, account_id and merchant are required"))
		return
	}
	if _, err := decimal.NewFromString(req.Amount); err != nil {
		WriteError(w, http.StatusBadRequest, dto.ValidationError("amount must be a decimal string"))
		return
	}

	fingerprint := match.Fingerprint(req.Amount, req.Date, req.Merchant)
	created, err := h.ledger.CreateTransaction(r.Context(), &storage.Transaction{
		UserID:          req.UserID,
		AccountID:       req.AccountID,
		Merchant:        req.Merchant,
		Description:     req.Description,
		Amount:          req.Amount,
		Date:            req.Date,
		IsApproved:      false,
		SourceType:      storage.SourceManual,
		DuplicateStatus: storage.DuplicateNone,
		BankHash:        &fingerprint,
	})
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	for _, alloc := range req.Envelopes {
		if err := h.ledger.CreateSplit(r.Context(), created.ID, alloc.EnvelopeID, alloc.Amount); err != nil {
			WriteError(w, http.StatusInternalServerError, dto.InternalError())
			return
		}
	}

	WriteJSON(w, http.StatusCreated, created)
}

// Approve handles POST /api/transactions/{id}/approve. Approval applies
// the transaction's envelope and account balance effects exactly once.
func (h *TransactionsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := ParseID(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid transaction id"))
		return
	}

	if err := h.processor.Approve(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, dto.NotFoundError("transaction"))
			return
		}
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	approved, err := h.ledger.Transaction(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, approved)
}

// Import handles POST /api/transactions/import - pushes one bank-shaped
// record through duplicate detection and recurring-income matching.
func (h *TransactionsHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if req.UserID == 0 || req.AccountID == 0 {
		WriteError(w, http.StatusBadRequest, dto.ValidationError("user_id and account_id are required"))
		return
	}

	outcome, err := h.processor.Process(r.Context(), importer.Record{
		Amount:            req.Amount,
		Date:              req.Date,
		Merchant:          req.Merchant,
		Description:       req.Description,
		Memo:              req.Memo,
		BankTransactionID: req.BankTransactionID,
	}, req.UserID, req.AccountID)
	if err != nil {
		if errors.Is(err, importer.ErrInvalidRecord) {
			WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
			return
		}
		WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	WriteJSON(w, http.StatusOK, outcome)
}
