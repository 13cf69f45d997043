package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CompanyStatus string

const (
	CompanyPending   CompanyStatus = "PENDING"
	CompanyActive    CompanyStatus = "ACTIVE"
	CompanySuspended CompanyStatus = "SUSPENDED"
	CompanyInactive  CompanyStatus = "INACTIVE"
)

type Company struct {
	ID        string        `json:"id" db:"id"`
	Name      string        `json:"name" db:"name"`
	Email     string        `json:"email" db:"email"`
	Status    CompanyStatus `json:"status" db:"status"`
	CreatedAt time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time     `json:"updatedAt" db:"updated_at"`
}

type SubscriptionPlan string

const (
	PlanTrial     SubscriptionPlan = "TRIAL"
	PlanMonthly   SubscriptionPlan = "MONTHLY"
	PlanQuarterly SubscriptionPlan = "QUARTERLY"
	PlanYearly    SubscriptionPlan = "YEARLY"
)

var planDurationDays = map[SubscriptionPlan]int{
	PlanTrial:     14,
	PlanMonthly:   30,
	PlanQuarterly: 90,
	PlanYearly:    365,
}

// DurationDays returns the length of the plan and whether the plan is known.
func (p SubscriptionPlan) DurationDays() (int, bool) {
	d, ok := planDurationDays[p]
	return d, ok
}

type SubscriptionStatus string

const (
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionSuspended SubscriptionStatus = "SUSPENDED"
)

// Terminal reports whether the status can no longer transition.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionExpired || s == SubscriptionCancelled
}

type Subscription struct {
	ID           string             `json:"id" db:"id"`
	CompanyID    string             `json:"companyId" db:"company_id"`
	Plan         SubscriptionPlan   `json:"plan" db:"plan"`
	Status       SubscriptionStatus `json:"status" db:"status"`
	StartDate    time.Time          `json:"startDate" db:"start_date"`
	EndDate      time.Time          `json:"endDate" db:"end_date"`
	Amount       *decimal.Decimal   `json:"amount,omitempty" db:"amount"`
	Notes        string             `json:"notes,omitempty" db:"notes"`
	StatusReason string             `json:"statusReason,omitempty" db:"status_reason"`
	CreatedAt    time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time          `json:"updatedAt" db:"updated_at"`
}

// SweepFailure records why a single subscription could not be expired.
type SweepFailure struct {
	SubscriptionID string `json:"subscriptionId"`
	CompanyID      string `json:"companyId"`
	Error          string `json:"error"`
}

// SweepResult is the per-item outcome of an expiry sweep.
type SweepResult struct {
	Processed int            `json:"processed"`
	Expired   int            `json:"expired"`
	Failed    int            `json:"failed"`
	Failures  []SweepFailure `json:"failures,omitempty"`
}

// WarningResult summarizes one expiry-warning pass.
type WarningResult struct {
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
