package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/shopspring/decimal"
)

// CollectionService records field collections and keeps the linked savings
// account balance in step with them.
type CollectionService struct {
	db       *sql.DB
	ledger   *LedgerService
	audit    Auditor
	attempts int
	now      func() time.Time
}

func NewCollectionService(db *sql.DB, ledger *LedgerService, audit Auditor, attempts int) *CollectionService {
	return &CollectionService{
		db:       db,
		ledger:   ledger,
		audit:    audit,
		attempts: attempts,
		now:      time.Now,
	}
}

type CreateCollectionInput struct {
	CustomerID     string
	AccountID      string
	Amount         decimal.Decimal
	ExpectedAmount *decimal.Decimal
	Status         models.CollectionStatus
	CollectionDate *time.Time
	Location       *models.Location
	Notes          string
}

type UpdateCollectionInput struct {
	Amount         *decimal.Decimal
	ExpectedAmount *decimal.Decimal
	Status         *models.CollectionStatus
	Notes          *string
}

type CollectionQuery struct {
	CustomerID string
	Status     models.CollectionStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

const collectionColumns = `c.id, c.company_id, c.branch_id, c.customer_id, c.account_id, c.agent_id,
	c.ledger_entry_id, c.amount, c.expected_amount, c.status, c.collection_date,
	c.latitude, c.longitude, c.notes, c.created_at, c.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollection(row rowScanner) (*models.Collection, error) {
	var c models.Collection
	var entryID sql.NullString
	var expected decimal.NullDecimal
	var lat, lng sql.NullFloat64
	err := row.Scan(&c.ID, &c.CompanyID, &c.BranchID, &c.CustomerID, &c.AccountID, &c.AgentID,
		&entryID, &c.Amount, &expected, &c.Status, &c.CollectionDate,
		&lat, &lng, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if entryID.Valid {
		c.LedgerEntryID = &entryID.String
	}
	if expected.Valid {
		c.ExpectedAmount = &expected.Decimal
	}
	if lat.Valid && lng.Valid {
		c.Location = &models.Location{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &c, nil
}

// defaultStatus derives a status when the caller did not send one.
func defaultStatus(amount decimal.Decimal, expected *decimal.Decimal) models.CollectionStatus {
	switch {
	case amount.IsZero():
		return models.CollectionMissed
	case expected != nil && amount.LessThan(*expected):
		return models.CollectionPartial
	}
	return models.CollectionCollected
}

func validateCollection(amount decimal.Decimal, expected *decimal.Decimal, status models.CollectionStatus) error {
	if !status.Valid() {
		return models.Invalid("unknown collection status %q", status)
	}
	if amount.IsNegative() {
		return models.Invalid("amount cannot be negative")
	}
	if !models.WholeCents(amount) {
		return models.Invalid("amount %s has more than %d decimal places", amount, models.MoneyScale)
	}
	if expected != nil && expected.IsNegative() {
		return models.Invalid("expectedAmount cannot be negative")
	}
	if expected != nil && !models.WholeCents(*expected) {
		return models.Invalid("expectedAmount %s has more than %d decimal places", expected, models.MoneyScale)
	}
	if status == models.CollectionMissed && !amount.IsZero() {
		return models.Invalid("a MISSED collection must have amount 0")
	}
	return nil
}

// Create records a collection for the scope's write target. A non-missed
// collection with a positive amount deposits into the savings account in the
// same transaction.
func (s *CollectionService) Create(ctx context.Context, sc scope.Scope, in CreateCollectionInput) (*models.Collection, error) {
	target, err := sc.WriteTarget()
	if err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = defaultStatus(in.Amount, in.ExpectedAmount)
	}
	if err := validateCollection(in.Amount, in.ExpectedAmount, in.Status); err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Collection{
		ID:             uuid.NewString(),
		CompanyID:      target.CompanyID,
		BranchID:       target.BranchID,
		CustomerID:     in.CustomerID,
		AccountID:      in.AccountID,
		AgentID:        target.AgentID,
		Amount:         in.Amount,
		ExpectedAmount: in.ExpectedAmount,
		Status:         in.Status,
		CollectionDate: now,
		Location:       in.Location,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.CollectionDate != nil {
		c.CollectionDate = *in.CollectionDate
	}

	err = runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		c.LedgerEntryID = nil
		if err := s.checkOwnership(ctx, tx, c); err != nil {
			return err
		}
		if err := checkWriteTarget(ctx, tx, sc, target); err != nil {
			return err
		}

		if contribution := c.Contribution(); contribution.IsPositive() {
			entry, err := s.ledger.ApplyEntry(ctx, tx, c.AccountID, models.EntryDeposit, contribution,
				NewReference(RefCollection, now), fmt.Sprintf("Collection %s", c.ID))
			if err != nil {
				return err
			}
			c.LedgerEntryID = &entry.ID
		}

		if err := insertCollection(ctx, tx, c); err != nil {
			return err
		}

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  c.CompanyID,
			ActorID:    sc.ActorID,
			Action:     "CREATE",
			EntityType: "collection",
			EntityID:   c.ID,
			Changes: models.Metadata{
				"accountId": c.AccountID,
				"amount":    c.Amount.String(),
				"status":    string(c.Status),
			},
		})
		return nil
	})
	if err != nil {
		log.Printf("[COLLECTION] Create for account %s by %s failed: %v", in.AccountID, sc.ActorID, err)
		return nil, err
	}

	log.Printf("[COLLECTION] Recorded %s %s for account %s by agent %s", c.Status, c.Amount.StringFixed(2), c.AccountID, c.AgentID)
	return c, nil
}

// checkOwnership validates the customer, account and branch of a new
// collection against its tenant. Foreign rows are reported as not found.
func (s *CollectionService) checkOwnership(ctx context.Context, tx *sql.Tx, c *models.Collection) error {
	var companyID string
	var active bool
	err := tx.QueryRowContext(ctx, `SELECT company_id, is_active FROM customers WHERE id = $1`, c.CustomerID).
		Scan(&companyID, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && companyID != c.CompanyID) {
		return fmt.Errorf("%w: customer %s", models.ErrNotFound, c.CustomerID)
	}
	if err != nil {
		return err
	}
	if !active {
		return models.Invalid("customer %s is inactive", c.CustomerID)
	}

	var customerID string
	err = tx.QueryRowContext(ctx, `SELECT customer_id, is_active FROM savings_accounts WHERE id = $1`, c.AccountID).
		Scan(&customerID, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && customerID != c.CustomerID) {
		return fmt.Errorf("%w: savings account %s", models.ErrNotFound, c.AccountID)
	}
	if err != nil {
		return err
	}
	if !active {
		return models.ErrAccountInactive
	}

	err = tx.QueryRowContext(ctx, `SELECT company_id, is_active FROM branches WHERE id = $1`, c.BranchID).
		Scan(&companyID, &active)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && companyID != c.CompanyID) {
		return fmt.Errorf("%w: branch %s", models.ErrNotFound, c.BranchID)
	}
	if err != nil {
		return err
	}
	if !active {
		return models.Invalid("branch %s is inactive", c.BranchID)
	}
	return nil
}

func insertCollection(ctx context.Context, tx *sql.Tx, c *models.Collection) error {
	var lat, lng *float64
	if c.Location != nil {
		lat, lng = &c.Location.Latitude, &c.Location.Longitude
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO collections (id, company_id, branch_id, customer_id, account_id, agent_id, ledger_entry_id,
			amount, expected_amount, status, collection_date, latitude, longitude, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.CompanyID, c.BranchID, c.CustomerID, c.AccountID, c.AgentID, c.LedgerEntryID,
		c.Amount, c.ExpectedAmount, c.Status, c.CollectionDate, lat, lng, c.Notes, c.CreatedAt, c.UpdatedAt)
	return err
}

// lockCollection loads a collection inside the scope for modification.
func lockCollection(ctx context.Context, tx *sql.Tx, sc scope.Scope, id string) (*models.Collection, error) {
	where, args, _ := sc.Where("c", 2)
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = $1`
	if where != "" {
		query += " AND " + where
	}
	query += " FOR UPDATE"

	c, err := scanCollection(tx.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: collection %s", models.ErrNotFound, id)
	}
	return c, err
}

// Update applies an admin correction. When the change alters what the
// collection contributes to the account, the new deposit is posted first and
// the previously linked entry reversed, so the ledger stays append-only.
func (s *CollectionService) Update(ctx context.Context, sc scope.Scope, id string, in UpdateCollectionInput) (*models.Collection, error) {
	if err := sc.RequireAdmin(); err != nil {
		return nil, err
	}

	var updated *models.Collection
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		current, err := lockCollection(ctx, tx, sc, id)
		if err != nil {
			return err
		}

		next := *current
		if in.Amount != nil {
			next.Amount = *in.Amount
		}
		if in.ExpectedAmount != nil {
			next.ExpectedAmount = in.ExpectedAmount
		}
		if in.Status != nil {
			next.Status = *in.Status
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		if err := validateCollection(next.Amount, next.ExpectedAmount, next.Status); err != nil {
			return err
		}

		before, after := current.Contribution(), next.Contribution()
		if !before.Equal(after) {
			next.LedgerEntryID = nil
			if after.IsPositive() {
				entry, err := s.ledger.ApplyEntry(ctx, tx, next.AccountID, models.EntryDeposit, after,
					NewReference(RefCollection, s.now()), fmt.Sprintf("Collection %s corrected", next.ID))
				if err != nil {
					return err
				}
				next.LedgerEntryID = &entry.ID
			}
			if current.LedgerEntryID != nil {
				if _, err := s.ledger.ReverseEntry(ctx, tx, *current.LedgerEntryID, "collection corrected"); err != nil {
					return err
				}
			}
		}

		next.UpdatedAt = s.now()
		_, err = tx.ExecContext(ctx, `
			UPDATE collections
			SET amount = $1, expected_amount = $2, status = $3, notes = $4, ledger_entry_id = $5, updated_at = $6
			WHERE id = $7`,
			next.Amount, next.ExpectedAmount, next.Status, next.Notes, next.LedgerEntryID, next.UpdatedAt, next.ID)
		if err != nil {
			return err
		}

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  next.CompanyID,
			ActorID:    sc.ActorID,
			Action:     "UPDATE",
			EntityType: "collection",
			EntityID:   next.ID,
			Changes: models.Metadata{
				"before": map[string]any{"amount": current.Amount.String(), "status": string(current.Status), "notes": current.Notes},
				"after":  map[string]any{"amount": next.Amount.String(), "status": string(next.Status), "notes": next.Notes},
			},
		})
		updated = &next
		return nil
	})
	if err != nil {
		log.Printf("[COLLECTION] Update of %s by %s failed: %v", id, sc.ActorID, err)
		return nil, err
	}
	return updated, nil
}

// Delete removes a collection and reverses its ledger entry, if any, in the
// same transaction.
func (s *CollectionService) Delete(ctx context.Context, sc scope.Scope, id string) error {
	if err := sc.RequireAdmin(); err != nil {
		return err
	}

	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		c, err := lockCollection(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		if c.LedgerEntryID != nil {
			if _, err := s.ledger.ReverseEntry(ctx, tx, *c.LedgerEntryID, "collection deleted"); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = $1`, c.ID); err != nil {
			return err
		}

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  c.CompanyID,
			ActorID:    sc.ActorID,
			Action:     "DELETE",
			EntityType: "collection",
			EntityID:   c.ID,
			Changes:    models.Metadata{"amount": c.Amount.String(), "status": string(c.Status)},
		})
		return nil
	})
	if err != nil {
		log.Printf("[COLLECTION] Delete of %s by %s failed: %v", id, sc.ActorID, err)
	}
	return err
}

func (s *CollectionService) GetByID(ctx context.Context, sc scope.Scope, id string) (*models.Collection, error) {
	where, args, _ := sc.Where("c", 2)
	query := `SELECT ` + collectionColumns + ` FROM collections c WHERE c.id = $1`
	if where != "" {
		query += " AND " + where
	}
	c, err := scanCollection(s.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: collection %s", models.ErrNotFound, id)
	}
	return c, err
}

// filter renders the scope and query filters as a WHERE clause.
func (q CollectionQuery) filter(sc scope.Scope) (string, []any, int) {
	where, args, next := sc.Where("c", 1)
	conds := []string{}
	if where != "" {
		conds = append(conds, where)
	}
	add := func(cond string, value any) {
		conds = append(conds, fmt.Sprintf(cond, next))
		args = append(args, value)
		next++
	}
	if q.CustomerID != "" {
		add("c.customer_id = $%d", q.CustomerID)
	}
	if q.Status != "" {
		add("c.status = $%d", string(q.Status))
	}
	if q.From != nil {
		add("c.collection_date >= $%d", *q.From)
	}
	if q.To != nil {
		add("c.collection_date <= $%d", *q.To)
	}
	if len(conds) == 0 {
		return "", args, next
	}
	return " WHERE " + strings.Join(conds, " AND "), args, next
}

func (s *CollectionService) GetAll(ctx context.Context, sc scope.Scope, q CollectionQuery) ([]models.Collection, error) {
	where, args, next := q.filter(sc)
	limit, offset := pageBounds(q.Limit, q.Offset)
	query := fmt.Sprintf(`SELECT %s FROM collections c%s ORDER BY c.collection_date DESC, c.id LIMIT $%d OFFSET $%d`,
		collectionColumns, where, next, next+1)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	collections := []models.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

// Stats aggregates the filtered collections by status. COLLECTED and
// PARTIAL both count as collected.
func (s *CollectionService) Stats(ctx context.Context, sc scope.Scope, q CollectionQuery) (*models.CollectionStats, error) {
	where, args, _ := q.filter(sc)
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(c.amount), 0),
			COUNT(*) FILTER (WHERE c.status IN ('COLLECTED', 'PARTIAL')),
			COALESCE(SUM(c.amount) FILTER (WHERE c.status IN ('COLLECTED', 'PARTIAL')), 0),
			COUNT(*) FILTER (WHERE c.status = 'PARTIAL'),
			COUNT(*) FILTER (WHERE c.status = 'PENDING'),
			COUNT(*) FILTER (WHERE c.status = 'MISSED')
		FROM collections c` + where

	var st models.CollectionStats
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.TotalCount, &st.TotalAmount, &st.CollectedCount,
		&st.CollectedAmount, &st.PartialCount, &st.PendingCount, &st.MissedCount)
	if err != nil {
		return nil, err
	}
	st.CollectionRate = collectionRate(st.CollectedCount, st.TotalCount)
	return &st, nil
}

func collectionRate(collected, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(collected)/float64(total)*10000) / 100
}
