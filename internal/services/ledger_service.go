package services

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/shopspring/decimal"
)

// Reference prefixes. A reference is PREFIX-<unix millis>-<random hex>.
const (
	RefCollection = "COL"
	RefReversal   = "REV"
	RefWithdrawal = "WDR"
	RefDeposit    = "DEP"
	RefAdjustment = "ADJ"
)

// LedgerService owns savings account balances. Every balance change writes a
// ledger entry and updates the account in the caller's transaction, so the
// balance always equals the signed sum of the account's entries.
type LedgerService struct {
	db       *sql.DB
	audit    Auditor
	attempts int
	now      func() time.Time
}

func NewLedgerService(db *sql.DB, audit Auditor, attempts int) *LedgerService {
	return &LedgerService{
		db:       db,
		audit:    audit,
		attempts: attempts,
		now:      time.Now,
	}
}

var randRead = rand.Read

// NewReference generates a ledger reference code. If the system random source
// fails the suffix falls back to the clock's nanoseconds; a colliding
// reference is retried by runInTx.
func NewReference(prefix string, now time.Time) string {
	b := make([]byte, 4)
	if _, err := randRead(b); err != nil {
		log.Printf("[LEDGER] Random source unavailable for reference suffix: %v", err)
		binary.BigEndian.PutUint32(b, uint32(time.Now().UnixNano()))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), hex.EncodeToString(b))
}

// ApplyEntry posts an entry against an active account inside tx and returns
// it; entry.BalanceAfter is the account's new balance. An empty reference is
// generated from the entry type.
func (s *LedgerService) ApplyEntry(ctx context.Context, tx *sql.Tx, accountID string, entryType models.EntryType, amount decimal.Decimal, reference, description string) (*models.LedgerEntry, error) {
	return s.apply(ctx, tx, accountID, entryType, amount, reference, description, true)
}

// ReverseEntry posts the inverse of an existing entry inside tx. Reversals
// are corrections, so they are accepted on inactive accounts too.
func (s *LedgerService) ReverseEntry(ctx context.Context, tx *sql.Tx, entryID, reason string) (*models.LedgerEntry, error) {
	var original models.LedgerEntry
	err := tx.QueryRowContext(ctx, `
		SELECT id, account_id, type, amount, reference
		FROM ledger_entries
		WHERE id = $1`, entryID).Scan(&original.ID, &original.AccountID, &original.Type, &original.Amount, &original.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: ledger entry %s", models.ErrNotFound, entryID)
	}
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Reversal of %s: %s", original.Reference, reason)
	return s.apply(ctx, tx, original.AccountID, original.Type.Inverse(), original.Amount,
		NewReference(RefReversal, s.now()), description, false)
}

func (s *LedgerService) apply(ctx context.Context, tx *sql.Tx, accountID string, entryType models.EntryType, amount decimal.Decimal, reference, description string, requireActive bool) (*models.LedgerEntry, error) {
	if !entryType.Valid() {
		return nil, models.Invalid("unknown entry type %q", entryType)
	}
	if !amount.IsPositive() {
		return nil, models.Invalid("entry amount must be positive")
	}
	if !models.WholeCents(amount) {
		return nil, models.Invalid("entry amount %s has more than %d decimal places", amount, models.MoneyScale)
	}

	account, err := s.lockAccount(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if requireActive && !account.IsActive {
		return nil, models.ErrAccountInactive
	}

	after := account.Balance.Add(entryType.Signed(amount))
	if after.IsNegative() {
		return nil, fmt.Errorf("%w: account %s has %s, needs %s", models.ErrInsufficientBalance,
			accountID, account.Balance.StringFixed(2), amount.StringFixed(2))
	}

	now := s.now()
	if reference == "" {
		reference = NewReference(referencePrefix(entryType), now)
	}
	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		AccountID:     account.ID,
		Type:          entryType,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  after,
		Reference:     reference,
		Description:   description,
		CreatedAt:     now,
	}

	if err := s.createLedgerEntry(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.updateAccountBalance(ctx, tx, account.ID, after, account.Version, now); err != nil {
		return nil, err
	}

	log.Printf("[LEDGER] %s %s on account %s: %s -> %s (%s)", entryType, amount.StringFixed(2), account.ID,
		entry.BalanceBefore.StringFixed(2), entry.BalanceAfter.StringFixed(2), reference)
	return entry, nil
}

func referencePrefix(t models.EntryType) string {
	switch t {
	case models.EntryDeposit:
		return RefDeposit
	case models.EntryWithdrawal:
		return RefWithdrawal
	}
	return RefAdjustment
}

func (s *LedgerService) lockAccount(ctx context.Context, tx *sql.Tx, accountID string) (*models.SavingsAccount, error) {
	var account models.SavingsAccount
	err := tx.QueryRowContext(ctx, `
		SELECT id, customer_id, balance, is_active, version, updated_at
		FROM savings_accounts
		WHERE id = $1
		FOR UPDATE`, accountID).Scan(&account.ID, &account.CustomerID, &account.Balance,
		&account.IsActive, &account.Version, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: savings account %s", models.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) createLedgerEntry(ctx context.Context, tx *sql.Tx, e *models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, account_id, type, amount, balance_before, balance_after, reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.AccountID, e.Type, e.Amount, e.BalanceBefore, e.BalanceAfter, e.Reference, e.Description, e.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", models.ErrReferenceCollision, e.Reference)
	}
	return err
}

func (s *LedgerService) updateAccountBalance(ctx context.Context, tx *sql.Tx, accountID string, newBalance decimal.Decimal, version int, now time.Time) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE savings_accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, now, accountID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrOptimisticLock, accountID)
	}
	return nil
}

// accountInScope checks that the account's customer belongs to the scope's
// company and, when the scope is pinned to a branch, to that branch.
// Out-of-scope accounts are reported as not found.
func accountInScope(ctx context.Context, q querier, sc scope.Scope, accountID string) error {
	var companyID, branchID string
	err := q.QueryRowContext(ctx, `
		SELECT c.company_id, COALESCE(c.branch_id::text, '')
		FROM savings_accounts a
		JOIN customers c ON c.id = a.customer_id
		WHERE a.id = $1`, accountID).Scan(&companyID, &branchID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: savings account %s", models.ErrNotFound, accountID)
	}
	if err != nil {
		return err
	}
	if !sc.Covers(companyID, branchID) {
		return fmt.Errorf("%w: savings account %s", models.ErrNotFound, accountID)
	}
	return nil
}

// Deposit credits an account outside of a collection.
func (s *LedgerService) Deposit(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	return s.post(ctx, sc, accountID, models.EntryDeposit, amount, description)
}

// Withdraw debits an account. It fails with ErrInsufficientBalance rather
// than let the balance go negative.
func (s *LedgerService) Withdraw(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	return s.post(ctx, sc, accountID, models.EntryWithdrawal, amount, description)
}

func (s *LedgerService) post(ctx context.Context, sc scope.Scope, accountID string, entryType models.EntryType, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	if err := sc.RequireAdmin(); err != nil {
		return nil, err
	}

	var entry *models.LedgerEntry
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		if err := accountInScope(ctx, tx, sc, accountID); err != nil {
			return err
		}
		var err error
		entry, err = s.ApplyEntry(ctx, tx, accountID, entryType, amount, "", description)
		if err != nil {
			return err
		}
		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  sc.CompanyID,
			ActorID:    sc.ActorID,
			Action:     string(entryType),
			EntityType: "savings_account",
			EntityID:   accountID,
			Changes: models.Metadata{
				"entryId":       entry.ID,
				"amount":        amount.String(),
				"balanceBefore": entry.BalanceBefore.String(),
				"balanceAfter":  entry.BalanceAfter.String(),
				"reference":     entry.Reference,
			},
		})
		return nil
	})
	if err != nil {
		log.Printf("[LEDGER] %s on account %s failed: %v", entryType, accountID, err)
		return nil, err
	}
	return entry, nil
}

// Entries returns an account statement, newest first.
func (s *LedgerService) Entries(ctx context.Context, sc scope.Scope, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	if err := accountInScope(ctx, s.db, sc, accountID); err != nil {
		return nil, err
	}
	limit, offset = pageBounds(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, balance_before, balance_after, reference, description, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount, &e.BalanceBefore, &e.BalanceAfter,
			&e.Reference, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
