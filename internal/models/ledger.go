package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EntryType string

const (
	EntryDeposit    EntryType = "DEPOSIT"
	EntryWithdrawal EntryType = "WITHDRAWAL"
	EntryTransfer   EntryType = "TRANSFER"
	EntryFee        EntryType = "FEE"
)

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

// WholeCents reports whether amount is stored without rounding.
func WholeCents(amount decimal.Decimal) bool {
	return amount.Equal(amount.Round(MoneyScale))
}

// Valid reports whether t is one of the known entry types.
func (t EntryType) Valid() bool {
	switch t {
	case EntryDeposit, EntryWithdrawal, EntryTransfer, EntryFee:
		return true
	}
	return false
}

// Credit reports whether entries of this type increase the balance.
// TRANSFER and FEE move money out of the account.
func (t EntryType) Credit() bool {
	return t == EntryDeposit
}

// Signed returns amount with the sign the entry type applies to a balance.
func (t EntryType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t.Credit() {
		return amount
	}
	return amount.Neg()
}

// Inverse is the entry type that undoes t.
func (t EntryType) Inverse() EntryType {
	if t.Credit() {
		return EntryWithdrawal
	}
	return EntryDeposit
}

type LedgerEntry struct {
	ID            string          `json:"id" db:"id"`
	AccountID     string          `json:"accountId" db:"account_id"`
	Type          EntryType       `json:"type" db:"type"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore" db:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter" db:"balance_after"`
	Reference     string          `json:"reference" db:"reference"`
	Description   string          `json:"description" db:"description"`
	CreatedAt     time.Time       `json:"createdAt" db:"created_at"`
}

type SavingsAccount struct {
	ID         string          `json:"id" db:"id"`
	CustomerID string          `json:"customerId" db:"customer_id"`
	PlanID     string          `json:"planId" db:"plan_id"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	IsActive   bool            `json:"isActive" db:"is_active"`
	Version    int             `json:"-" db:"version"` // for optimistic locking
	UpdatedAt  time.Time       `json:"updatedAt" db:"updated_at"`
}
