package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
	"github.com/shopspring/decimal"
)

// CollectionRecorder is the collection service as the HTTP layer uses it.
type CollectionRecorder interface {
	Create(ctx context.Context, sc scope.Scope, in services.CreateCollectionInput) (*models.Collection, error)
	Update(ctx context.Context, sc scope.Scope, id string, in services.UpdateCollectionInput) (*models.Collection, error)
	Delete(ctx context.Context, sc scope.Scope, id string) error
	GetByID(ctx context.Context, sc scope.Scope, id string) (*models.Collection, error)
	GetAll(ctx context.Context, sc scope.Scope, q services.CollectionQuery) ([]models.Collection, error)
	Stats(ctx context.Context, sc scope.Scope, q services.CollectionQuery) (*models.CollectionStats, error)
}

type CollectionHandler struct {
	service   CollectionRecorder
	validator *services.ValidationHelper
}

func NewCollectionHandler(service CollectionRecorder) *CollectionHandler {
	return &CollectionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// CreateCollectionRequest represents a collection recorded in the field
// @Description Collection request structure
type CreateCollectionRequest struct {
	CompanyID        string                  `json:"companyId,omitempty"`
	BranchID         string                  `json:"branchId,omitempty"`
	CustomerID       string                  `json:"customerId" validate:"required" example:"1b0f3c2e-7a55-4c1e-9f8e-3d2a1c0b9e77"`
	SavingsAccountID string                  `json:"savingsAccountId" validate:"required" example:"9a7e5c3b-1d2f-4e6a-8b9c-0d1e2f3a4b5c"`
	Amount           decimal.Decimal         `json:"amount" validate:"gte=0" swaggertype:"string" example:"500.00"`
	ExpectedAmount   *decimal.Decimal        `json:"expectedAmount,omitempty" swaggertype:"string" example:"500.00"`
	Status           models.CollectionStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING COLLECTED PARTIAL MISSED"`
	CollectionDate   *time.Time              `json:"collectionDate,omitempty"`
	Location         *models.Location        `json:"location,omitempty"`
	Notes            string                  `json:"notes,omitempty" validate:"max=500"`
}

// UpdateCollectionRequest carries the fields an admin may correct
// @Description Collection update structure
type UpdateCollectionRequest struct {
	Amount         *decimal.Decimal         `json:"amount,omitempty" swaggertype:"string"`
	ExpectedAmount *decimal.Decimal         `json:"expectedAmount,omitempty" swaggertype:"string"`
	Status         *models.CollectionStatus `json:"status,omitempty" validate:"omitempty,oneof=PENDING COLLECTED PARTIAL MISSED"`
	Notes          *string                  `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// Create records a collection
// @Summary Record collection
// @Description Record a collection against a customer's savings account. A collected amount is deposited into the account.
// @Tags collections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCollectionRequest true "Collection"
// @Success 201 {object} Envelope{data=models.Collection}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /collections [post]
func (h *CollectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCollectionRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	sc, ok := callerScope(w, r, scope.Filter{CompanyID: req.CompanyID, BranchID: req.BranchID})
	if !ok {
		return
	}

	c, err := h.service.Create(r.Context(), sc, services.CreateCollectionInput{
		CustomerID:     req.CustomerID,
		AccountID:      req.SavingsAccountID,
		Amount:         req.Amount,
		ExpectedAmount: req.ExpectedAmount,
		Status:         req.Status,
		CollectionDate: req.CollectionDate,
		Location:       req.Location,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

// Update corrects a collection
// @Summary Update collection
// @Description Correct amount, status or notes. Ledger effects are reversed and re-applied, never edited.
// @Tags collections
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Collection ID"
// @Param request body UpdateCollectionRequest true "Changes"
// @Success 200 {object} Envelope{data=models.Collection}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /collections/{id} [patch]
func (h *CollectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateCollectionRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}

	c, err := h.service.Update(r.Context(), sc, chi.URLParam(r, "id"), services.UpdateCollectionInput{
		Amount:         req.Amount,
		ExpectedAmount: req.ExpectedAmount,
		Status:         req.Status,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// Delete removes a collection
// @Summary Delete collection
// @Description Delete a collection and reverse its deposit
// @Tags collections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Collection ID"
// @Success 200 {object} Envelope
// @Failure 404 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /collections/{id} [delete]
func (h *CollectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), sc, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// Get returns one collection
// @Summary Get collection
// @Tags collections
// @Produce json
// @Security BearerAuth
// @Param id path string true "Collection ID"
// @Success 200 {object} Envelope{data=models.Collection}
// @Failure 404 {object} services.ErrorResponse
// @Router /collections/{id} [get]
func (h *CollectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	c, err := h.service.GetByID(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func collectionQuery(r *http.Request) (services.CollectionQuery, error) {
	q := services.CollectionQuery{
		CustomerID: r.URL.Query().Get("customerId"),
		Status:     models.CollectionStatus(r.URL.Query().Get("status")),
	}
	if q.Status != "" && !q.Status.Valid() {
		return q, models.Invalid("unknown status %q", q.Status)
	}
	var err error
	if q.From, err = queryDate(r, "from", false); err != nil {
		return q, err
	}
	if q.To, err = queryDate(r, "to", true); err != nil {
		return q, err
	}
	q.Limit, q.Offset, err = page(r)
	return q, err
}

// List returns collections in the caller's scope
// @Summary List collections
// @Tags collections
// @Produce json
// @Security BearerAuth
// @Param companyId query string false "Company (super admin only)"
// @Param branchId query string false "Branch"
// @Param agentId query string false "Agent"
// @Param customerId query string false "Customer"
// @Param status query string false "Status"
// @Param from query string false "From date (yyyy-mm-dd)"
// @Param to query string false "To date (yyyy-mm-dd), inclusive"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Envelope{data=[]models.Collection}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /collections [get]
func (h *CollectionHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	q, err := collectionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.service.GetAll(r.Context(), sc, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// Stats aggregates collections in the caller's scope
// @Summary Collection statistics
// @Tags collections
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (yyyy-mm-dd)"
// @Param to query string false "To date (yyyy-mm-dd), inclusive"
// @Success 200 {object} Envelope{data=models.CollectionStats}
// @Failure 400 {object} services.ErrorResponse
// @Router /collections/stats [get]
func (h *CollectionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	q, err := collectionQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), sc, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
