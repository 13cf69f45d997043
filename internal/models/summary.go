package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailySummary is the per agent/branch/day reconciliation of collections.
// Grain: (company_id, branch_id, agent_id, summary_date).
type DailySummary struct {
	ID               string          `json:"id" db:"id"`
	CompanyID        string          `json:"companyId" db:"company_id"`
	BranchID         string          `json:"branchId" db:"branch_id"`
	AgentID          string          `json:"agentId" db:"agent_id"`
	SummaryDate      time.Time       `json:"summaryDate" db:"summary_date"`
	TotalExpected    decimal.Decimal `json:"totalExpected" db:"total_expected"`
	TotalCollected   decimal.Decimal `json:"totalCollected" db:"total_collected"`
	TotalCustomers   int             `json:"totalCustomers" db:"total_customers"`
	CollectionsCount int             `json:"collectionsCount" db:"collections_count"`
	MissedCount      int             `json:"missedCount" db:"missed_count"`
	Notes            string          `json:"notes,omitempty" db:"notes"`
	IsLocked         bool            `json:"isLocked" db:"is_locked"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}
