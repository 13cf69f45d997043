package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
	"github.com/shopspring/decimal"
)

type AccountLedger interface {
	Deposit(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error)
	Withdraw(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error)
	Entries(ctx context.Context, sc scope.Scope, accountID string, limit, offset int) ([]models.LedgerEntry, error)
}

type AccountCards interface {
	AccountCard(ctx context.Context, sc scope.Scope, accountID string, size int) ([]byte, error)
}

type AccountHandler struct {
	ledger    AccountLedger
	cards     AccountCards
	validator *services.ValidationHelper
}

func NewAccountHandler(ledger AccountLedger, cards AccountCards) *AccountHandler {
	return &AccountHandler{
		ledger:    ledger,
		cards:     cards,
		validator: services.NewValidationHelper(),
	}
}

// PostingRequest moves money in or out of an account
// @Description Deposit or withdrawal request structure
type PostingRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gt=0" swaggertype:"string" example:"1000.00"`
	Description string          `json:"description,omitempty" validate:"max=255"`
}

// Deposit credits an account
// @Summary Deposit
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Savings account ID"
// @Param request body PostingRequest true "Deposit"
// @Success 201 {object} Envelope{data=models.LedgerEntry}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/deposits [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.ledger.Deposit)
}

// Withdraw debits an account
// @Summary Withdraw
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Savings account ID"
// @Param request body PostingRequest true "Withdrawal"
// @Success 201 {object} Envelope{data=models.LedgerEntry}
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse "Insufficient balance"
// @Router /accounts/{id}/withdrawals [post]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, h.ledger.Withdraw)
}

func (h *AccountHandler) post(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, scope.Scope, string, decimal.Decimal, string) (*models.LedgerEntry, error)) {
	var req PostingRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	entry, err := fn(r.Context(), sc, chi.URLParam(r, "id"), req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, entry)
}

// Entries returns an account statement
// @Summary Account statement
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Savings account ID"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Envelope{data=[]models.LedgerEntry}
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/entries [get]
func (h *AccountHandler) Entries(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	limit, offset, err := page(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.ledger.Entries(r.Context(), sc, chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, entries)
}

// Card renders the account's QR card
// @Summary Account QR card
// @Tags accounts
// @Produce png
// @Security BearerAuth
// @Param id path string true "Savings account ID"
// @Param size query int false "Image size in pixels"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id}/qr [get]
func (h *AccountHandler) Card(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	size, err := queryInt(r, "size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	png, err := h.cards.AccountCard(r.Context(), sc, chi.URLParam(r, "id"), size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
