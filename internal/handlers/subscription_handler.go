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

type SubscriptionLifecycle interface {
	Activate(ctx context.Context, sc scope.Scope, in services.ActivateInput) (*models.Subscription, error)
	Suspend(ctx context.Context, sc scope.Scope, companyID, reason string) error
	Reactivate(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error)
	Cancel(ctx context.Context, sc scope.Scope, subscriptionID, reason string) (*models.Subscription, error)
	SweepExpired(ctx context.Context) (*models.SweepResult, error)
	Current(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error)
	History(ctx context.Context, sc scope.Scope, companyID string) ([]models.Subscription, error)
}

type SubscriptionHandler struct {
	service   SubscriptionLifecycle
	validator *services.ValidationHelper
}

func NewSubscriptionHandler(service SubscriptionLifecycle) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ActivateRequest starts a subscription for a company
// @Description Subscription activation structure
type ActivateRequest struct {
	CompanyID string                  `json:"companyId" validate:"required" example:"5c6d7e8f-9a0b-4c1d-8e2f-3a4b5c6d7e8f"`
	Plan      models.SubscriptionPlan `json:"plan" validate:"required,oneof=TRIAL MONTHLY QUARTERLY YEARLY" example:"MONTHLY"`
	Amount    *decimal.Decimal        `json:"amount,omitempty" swaggertype:"string" example:"15000.00"`
	Notes     string                  `json:"notes,omitempty" validate:"max=500"`
	StartDate *time.Time              `json:"startDate,omitempty"`
}

// ReasonRequest carries an optional reason for a state change
// @Description Reason structure
type ReasonRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500" example:"Unpaid invoice"`
}

// superAdminScope resolves the caller for platform operations that are not
// bound to a tenant filter.
func superAdminScope(w http.ResponseWriter, r *http.Request) (scope.Scope, bool) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return sc, false
	}
	if err := sc.RequireSuperAdmin(); err != nil {
		writeError(w, r, err)
		return sc, false
	}
	return sc, true
}

// decodeOptional accepts an empty body as the zero value.
func decodeOptional(w http.ResponseWriter, r *http.Request, h *services.ValidationHelper, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, h, dst)
}

// Activate starts a subscription
// @Summary Activate subscription
// @Description Start a subscription, cancelling the current one. A company that was not ACTIVE is reactivated.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body ActivateRequest true "Subscription"
// @Success 201 {object} Envelope{data=models.Subscription}
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /subscriptions [post]
func (h *SubscriptionHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}
	sc, ok := superAdminScope(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Activate(r.Context(), sc, services.ActivateInput{
		CompanyID: req.CompanyID,
		Plan:      req.Plan,
		Amount:    req.Amount,
		Notes:     req.Notes,
		StartDate: req.StartDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sub)
}

// Cancel ends a subscription
// @Summary Cancel subscription
// @Tags subscriptions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Param request body ReasonRequest false "Reason"
// @Success 200 {object} Envelope{data=models.Subscription}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !decodeOptional(w, r, h.validator, &req) {
		return
	}
	sc, ok := superAdminScope(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Cancel(r.Context(), sc, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// Sweep expires overdue subscriptions now
// @Summary Run expiry sweep
// @Description Expire every ACTIVE subscription past its end date and suspend its company
// @Tags subscriptions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Envelope{data=models.SweepResult}
// @Failure 403 {object} services.ErrorResponse
// @Router /subscriptions/sweep [post]
func (h *SubscriptionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	if _, ok := superAdminScope(w, r); !ok {
		return
	}
	result, err := h.service.SweepExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, result)
}

// Suspend switches a company off
// @Summary Suspend company
// @Tags companies
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Company ID"
// @Param request body ReasonRequest false "Reason"
// @Success 200 {object} Envelope
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /companies/{id}/suspend [post]
func (h *SubscriptionHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if !decodeOptional(w, r, h.validator, &req) {
		return
	}
	sc, ok := superAdminScope(w, r)
	if !ok {
		return
	}
	if err := h.service.Suspend(r.Context(), sc, chi.URLParam(r, "id"), req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

// Reactivate restores a company from a subscription still in term
// @Summary Reactivate company
// @Tags companies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Company ID"
// @Success 200 {object} Envelope{data=models.Subscription}
// @Failure 402 {object} services.ErrorResponse "No valid subscription"
// @Failure 404 {object} services.ErrorResponse
// @Router /companies/{id}/reactivate [post]
func (h *SubscriptionHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	sc, ok := superAdminScope(w, r)
	if !ok {
		return
	}
	sub, err := h.service.Reactivate(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// Current returns the company's live subscription
// @Summary Current subscription
// @Tags companies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Company ID"
// @Success 200 {object} Envelope{data=models.Subscription}
// @Failure 404 {object} services.ErrorResponse
// @Router /companies/{id}/subscription [get]
func (h *SubscriptionHandler) Current(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	sub, err := h.service.Current(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sub)
}

// History lists the company's subscriptions
// @Summary Subscription history
// @Tags companies
// @Produce json
// @Security BearerAuth
// @Param id path string true "Company ID"
// @Success 200 {object} Envelope{data=[]models.Subscription}
// @Failure 404 {object} services.ErrorResponse
// @Router /companies/{id}/subscriptions [get]
func (h *SubscriptionHandler) History(w http.ResponseWriter, r *http.Request) {
	sc, ok := callerScope(w, r, scope.Filter{})
	if !ok {
		return
	}
	subs, err := h.service.History(r.Context(), sc, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, subs)
}
