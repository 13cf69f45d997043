package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
)

type SummaryReconciler interface {
	Generate(ctx context.Context, sc scope.Scope, date time.Time, notes string) (*models.DailySummary, error)
	Update(ctx context.Context, sc scope.Scope, id string, patch services.SummaryPatch) (*models.DailySummary, error)
	Lock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error)
	Unlock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error)
	GetByID(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error)
	GetAll(ctx context.Context, sc scope.Scope, q services.SummaryQuery) ([]models.DailySummary, error)
}

type SummaryHandler struct {
	service   SummaryReconciler
	validator *services.ValidationHelper
}

func NewSummaryHandler(service SummaryReconciler) *SummaryHandler {
	return &SummaryHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateSummaryRequest asks for the reconciliation of one day
// @Description Daily summary request structure
type GenerateSummaryRequest struct {
	CompanyID string `json:"companyId,omitempty"`
	BranchID  string `json:"branchId,omitempty"`
	AgentID   string `json:"agentId,omitempty"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02" example:"2026-03-01"`
	Notes     string `json:"notes,omitempty" validate:"max=500"`
}

// UpdateSummaryRequest patches notes or releases the lock
// @Description Daily summary patch structure
type UpdateSummaryRequest struct {
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=500"`
	IsLocked *bool   `json:"isLocked,omitempty"`
}

// Generate reconciles one day of collections
// @Summary Generate daily summary
// @Description Aggregate one agent's collections for a branch and day into a summary
// @Tags summaries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body GenerateSummaryRequest true "Summary"
// @Success 201 {object} Envelope{data=models.DailySummary}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /summaries [post]
func (h *SummaryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateSummaryRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		writeError(w, r, models.Invalid("date must be yyyy-mm-dd"))
		return
	}

	sc, ok := callerScope(w, r, scope.Filter{CompanyID: req.CompanyID, BranchID: req.BranchID, AgentID: req.AgentID})
	if !ok {
		return
	}

	summary, err := h.service.Generate(r.Context(), sc, date, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, summary)
}

// Update patches a summary
// @Summary Update daily summary
// @Description Edit notes or unlock. A locked summary only accepts isLocked=false.
// @Tags summaries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Summary ID"
// @Param request body UpdateSummaryRequest true "Patch"
// @Success 200 {object} Envelope{data=models.DailySummary}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /summaries/{id} [patch]
func (h *SummaryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateSummaryRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	summary, err := h.service.Update(r.Context(), sc, chi.URLParam(r, "id"), services.SummaryPatch{
		Notes:    req.Notes,
		IsLocked: req.IsLocked,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

// Lock freezes a summary
// @Summary Lock daily summary
// @Tags summaries
// @Produce json
// @Security BearerAuth
// @Param id path string true "Summary ID"
// @Success 200 {object} Envelope{data=models.DailySummary}
// @Failure 400 {object} services.ErrorResponse
// @Router /summaries/{id}/lock [post]
func (h *SummaryHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Lock)
}

// Unlock releases a locked summary
// @Summary Unlock daily summary
// @Tags summaries
// @Produce json
// @Security BearerAuth
// @Param id path string true "Summary ID"
// @Success 200 {object} Envelope{data=models.DailySummary}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /summaries/{id}/unlock [post]
func (h *SummaryHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Unlock)
}

func (h *SummaryHandler) transition(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, scope.Scope, string) (*models.DailySummary, error)) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	summary, err := fn(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

// Get returns one summary
// @Summary Get daily summary
// @Tags summaries
// @Produce json
// @Security BearerAuth
// @Param id path string true "Summary ID"
// @Success 200 {object} Envelope{data=models.DailySummary}
// @Failure 404 {object} services.ErrorResponse
// @Router /summaries/{id} [get]
func (h *SummaryHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.GetByID)
}

// List returns summaries in the caller's scope
// @Summary List daily summaries
// @Tags summaries
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (yyyy-mm-dd)"
// @Param to query string false "To date (yyyy-mm-dd), inclusive"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} Envelope{data=[]models.DailySummary}
// @Router /summaries [get]
func (h *SummaryHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}

	var q services.SummaryQuery
	var err error
	if q.From, err = queryDate(r, "from", false); err == nil {
		if q.To, err = queryDate(r, "to", true); err == nil {
			q.Limit, q.Offset, err = page(r)
		}
	}
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
