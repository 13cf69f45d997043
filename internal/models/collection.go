package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CollectionStatus string

const (
	CollectionPending   CollectionStatus = "PENDING"
	CollectionCollected CollectionStatus = "COLLECTED"
	CollectionPartial   CollectionStatus = "PARTIAL"
	CollectionMissed    CollectionStatus = "MISSED"
)

func (s CollectionStatus) Valid() bool {
	switch s {
	case CollectionPending, CollectionCollected, CollectionPartial, CollectionMissed:
		return true
	}
	return false
}

// Location represents where a collection was recorded
type Location struct {
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`
}

type Collection struct {
	ID             string           `json:"id" db:"id"`
	CompanyID      string           `json:"companyId" db:"company_id"`
	BranchID       string           `json:"branchId" db:"branch_id"`
	CustomerID     string           `json:"customerId" db:"customer_id"`
	AccountID      string           `json:"savingsAccountId" db:"savings_account_id"`
	AgentID        string           `json:"agentId" db:"agent_id"`
	LedgerEntryID  *string          `json:"transactionId,omitempty" db:"ledger_entry_id"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	ExpectedAmount *decimal.Decimal `json:"expectedAmount,omitempty" db:"expected_amount"`
	Status         CollectionStatus `json:"status" db:"status"`
	CollectionDate time.Time        `json:"collectionDate" db:"collection_date"`
	Location       *Location        `json:"location,omitempty"`
	Notes          string           `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}

// Contribution is the amount this collection adds to its savings account.
// MISSED collections never touch the ledger.
func (c *Collection) Contribution() decimal.Decimal {
	if c.Status == CollectionMissed {
		return decimal.Zero
	}
	return c.Amount
}

// CollectionStats is the count/sum breakdown of a filtered set of collections.
type CollectionStats struct {
	TotalCount      int             `json:"totalCount"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CollectedCount  int             `json:"collectedCount"`
	CollectedAmount decimal.Decimal `json:"collectedAmount"`
	PartialCount    int             `json:"partialCount"`
	PendingCount    int             `json:"pendingCount"`
	MissedCount     int             `json:"missedCount"`
	CollectionRate  float64         `json:"collectionRate"`
}
