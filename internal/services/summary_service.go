package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
)

// SummaryService builds and maintains daily agent reconciliations.
type SummaryService struct {
	db       *sql.DB
	audit    Auditor
	attempts int
	now      func() time.Time
}

func NewSummaryService(db *sql.DB, audit Auditor, attempts int) *SummaryService {
	return &SummaryService{
		db:       db,
		audit:    audit,
		attempts: attempts,
		now:      time.Now,
	}
}

type SummaryPatch struct {
	Notes    *string
	IsLocked *bool
}

// unlocks reports whether the patch itself releases the lock.
func (p SummaryPatch) unlocks() bool {
	return p.IsLocked != nil && !*p.IsLocked
}

type SummaryQuery struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

const summaryColumns = `s.id, s.company_id, s.branch_id, s.agent_id, s.summary_date, s.total_expected,
	s.total_collected, s.total_customers, s.collections_count, s.missed_count, s.notes, s.is_locked,
	s.created_at, s.updated_at`

func scanSummary(row rowScanner) (*models.DailySummary, error) {
	var d models.DailySummary
	err := row.Scan(&d.ID, &d.CompanyID, &d.BranchID, &d.AgentID, &d.SummaryDate, &d.TotalExpected,
		&d.TotalCollected, &d.TotalCustomers, &d.CollectionsCount, &d.MissedCount, &d.Notes, &d.IsLocked,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// dayBounds returns the first and last millisecond of date's calendar day.
func dayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.Add(24*time.Hour - time.Millisecond)
}

// Generate reconciles one agent's collections for one day. A second summary
// for the same company, branch, agent and day fails with ErrAlreadyExists.
func (s *SummaryService) Generate(ctx context.Context, sc scope.Scope, date time.Time, notes string) (*models.DailySummary, error) {
	target, err := sc.WriteTarget()
	if err != nil {
		return nil, err
	}
	start, end := dayBounds(date)

	var summary *models.DailySummary
	err = runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		if err := checkWriteTarget(ctx, tx, sc, target); err != nil {
			return err
		}

		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM daily_summaries
			WHERE company_id = $1 AND branch_id = $2 AND agent_id = $3 AND summary_date = $4`,
			target.CompanyID, target.BranchID, target.AgentID, start).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%w: summary %s covers %s", models.ErrAlreadyExists, existing, start.Format(time.DateOnly))
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		now := s.now()
		d := &models.DailySummary{
			ID:          uuid.NewString(),
			CompanyID:   target.CompanyID,
			BranchID:    target.BranchID,
			AgentID:     target.AgentID,
			SummaryDate: start,
			Notes:       notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(COALESCE(expected_amount, amount)), 0),
				COALESCE(SUM(amount) FILTER (WHERE status IN ('COLLECTED', 'PARTIAL')), 0),
				COUNT(DISTINCT customer_id),
				COUNT(*) FILTER (WHERE status IN ('COLLECTED', 'PARTIAL')),
				COUNT(*) FILTER (WHERE status = 'MISSED')
			FROM collections
			WHERE company_id = $1 AND branch_id = $2 AND agent_id = $3
				AND collection_date BETWEEN $4 AND $5`,
			target.CompanyID, target.BranchID, target.AgentID, start, end).
			Scan(&d.TotalExpected, &d.TotalCollected, &d.TotalCustomers, &d.CollectionsCount, &d.MissedCount)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO daily_summaries (id, company_id, branch_id, agent_id, summary_date, total_expected,
				total_collected, total_customers, collections_count, missed_count, notes, is_locked, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE, $12, $13)`,
			d.ID, d.CompanyID, d.BranchID, d.AgentID, d.SummaryDate, d.TotalExpected, d.TotalCollected,
			d.TotalCustomers, d.CollectionsCount, d.MissedCount, d.Notes, d.CreatedAt, d.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: summary for %s", models.ErrAlreadyExists, start.Format(time.DateOnly))
		}
		if err != nil {
			return err
		}

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  d.CompanyID,
			ActorID:    sc.ActorID,
			Action:     "GENERATE",
			EntityType: "daily_summary",
			EntityID:   d.ID,
			Changes: models.Metadata{
				"summaryDate":    start.Format(time.DateOnly),
				"totalCollected": d.TotalCollected.String(),
				"totalExpected":  d.TotalExpected.String(),
			},
		})
		summary = d
		return nil
	})
	if err != nil {
		log.Printf("[SUMMARY] Generate for agent %s on %s failed: %v", target.AgentID, start.Format(time.DateOnly), err)
		return nil, err
	}

	log.Printf("[SUMMARY] Generated %s for agent %s on %s: %d collected, %d missed",
		summary.ID, summary.AgentID, start.Format(time.DateOnly), summary.CollectionsCount, summary.MissedCount)
	return summary, nil
}

func lockSummary(ctx context.Context, tx *sql.Tx, sc scope.Scope, id string) (*models.DailySummary, error) {
	where, args, _ := sc.Where("s", 2)
	query := `SELECT ` + summaryColumns + ` FROM daily_summaries s WHERE s.id = $1`
	if where != "" {
		query += " AND " + where
	}
	query += " FOR UPDATE"

	d, err := scanSummary(tx.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary %s", models.ErrNotFound, id)
	}
	return d, err
}

// mutate loads the summary for update, lets change modify it and persists
// notes and lock state.
func (s *SummaryService) mutate(ctx context.Context, sc scope.Scope, id, action string, change func(d *models.DailySummary) error) (*models.DailySummary, error) {
	var result *models.DailySummary
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		d, err := lockSummary(ctx, tx, sc, id)
		if err != nil {
			return err
		}
		before := map[string]any{"notes": d.Notes, "isLocked": d.IsLocked}
		if err := change(d); err != nil {
			return err
		}

		d.UpdatedAt = s.now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE daily_summaries
			SET notes = $1, is_locked = $2, updated_at = $3
			WHERE id = $4`, d.Notes, d.IsLocked, d.UpdatedAt, d.ID); err != nil {
			return err
		}

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  d.CompanyID,
			ActorID:    sc.ActorID,
			Action:     action,
			EntityType: "daily_summary",
			EntityID:   d.ID,
			Changes: models.Metadata{
				"before": before,
				"after":  map[string]any{"notes": d.Notes, "isLocked": d.IsLocked},
			},
		})
		result = d
		return nil
	})
	if err != nil {
		log.Printf("[SUMMARY] %s of %s by %s failed: %v", action, id, sc.ActorID, err)
		return nil, err
	}
	return result, nil
}

// Update edits a summary. A locked summary only accepts a patch that unlocks it.
func (s *SummaryService) Update(ctx context.Context, sc scope.Scope, id string, patch SummaryPatch) (*models.DailySummary, error) {
	if err := sc.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sc, id, "UPDATE", func(d *models.DailySummary) error {
		if d.IsLocked && !patch.unlocks() {
			return models.ErrLocked
		}
		if patch.Notes != nil {
			d.Notes = *patch.Notes
		}
		if patch.IsLocked != nil {
			d.IsLocked = *patch.IsLocked
		}
		return nil
	})
}

func (s *SummaryService) Lock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	return s.mutate(ctx, sc, id, "LOCK", func(d *models.DailySummary) error {
		if d.IsLocked {
			return models.ErrAlreadyLocked
		}
		d.IsLocked = true
		return nil
	})
}

func (s *SummaryService) Unlock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	if err := sc.RequireAdmin(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, sc, id, "UNLOCK", func(d *models.DailySummary) error {
		if !d.IsLocked {
			return models.ErrNotLocked
		}
		d.IsLocked = false
		return nil
	})
}

func (s *SummaryService) GetByID(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	where, args, _ := sc.Where("s", 2)
	query := `SELECT ` + summaryColumns + ` FROM daily_summaries s WHERE s.id = $1`
	if where != "" {
		query += " AND " + where
	}
	d, err := scanSummary(s.db.QueryRowContext(ctx, query, append([]any{id}, args...)...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: summary %s", models.ErrNotFound, id)
	}
	return d, err
}

func (s *SummaryService) GetAll(ctx context.Context, sc scope.Scope, q SummaryQuery) ([]models.DailySummary, error) {
	where, args, next := sc.Where("s", 1)
	conds := []string{}
	if where != "" {
		conds = append(conds, where)
	}
	if q.From != nil {
		conds = append(conds, fmt.Sprintf("s.summary_date >= $%d", next))
		args = append(args, *q.From)
		next++
	}
	if q.To != nil {
		conds = append(conds, fmt.Sprintf("s.summary_date <= $%d", next))
		args = append(args, *q.To)
		next++
	}
	query := `SELECT ` + summaryColumns + ` FROM daily_summaries s`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	limit, offset := pageBounds(q.Limit, q.Offset)
	query += fmt.Sprintf(" ORDER BY s.summary_date DESC, s.id LIMIT $%d OFFSET $%d", next, next+1)

	rows, err := s.db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []models.DailySummary{}
	for rows.Next() {
		d, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *d)
	}
	return summaries, rows.Err()
}
