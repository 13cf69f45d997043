package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/notify"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/shopspring/decimal"
)

// SessionStore revokes sessions and drops cached company state.
type SessionStore interface {
	RevokeAllForCompany(ctx context.Context, companyID string) error
	InvalidateCompanyStatus(ctx context.Context, companyID string) error
}

const (
	systemActor        = "system"
	supersededReason   = "Superseded by new subscription"
	expiredReason      = "Subscription expired"
	defaultSuspendNote = "Suspended by administrator"
)

// SubscriptionService drives a company's access through its subscriptions.
// Company and subscription rows change together in one transaction; session
// revocation, cache invalidation, notifications and audit run after commit.
//
// Row locks are always taken company first, then subscription.
type SubscriptionService struct {
	db          *sql.DB
	audit       Auditor
	sessions    SessionStore
	dispatcher  notify.Dispatcher
	deduper     notify.Deduper
	warningDays []int
	attempts    int
	now         func() time.Time
}

func NewSubscriptionService(db *sql.DB, audit Auditor, sessions SessionStore, dispatcher notify.Dispatcher, deduper notify.Deduper, warningDays []int, attempts int) *SubscriptionService {
	return &SubscriptionService{
		db:          db,
		audit:       audit,
		sessions:    sessions,
		dispatcher:  dispatcher,
		deduper:     deduper,
		warningDays: warningDays,
		attempts:    attempts,
		now:         time.Now,
	}
}

type ActivateInput struct {
	CompanyID string
	Plan      models.SubscriptionPlan
	Amount    *decimal.Decimal
	Notes     string
	StartDate *time.Time
}

const subscriptionColumns = `id, company_id, plan, status, start_date, end_date, amount, notes, status_reason, created_at, updated_at`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	var amount decimal.NullDecimal
	err := row.Scan(&sub.ID, &sub.CompanyID, &sub.Plan, &sub.Status, &sub.StartDate, &sub.EndDate,
		&amount, &sub.Notes, &sub.StatusReason, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if amount.Valid {
		sub.Amount = &amount.Decimal
	}
	return &sub, nil
}

func lockCompany(ctx context.Context, tx *sql.Tx, companyID string) (*models.Company, error) {
	var c models.Company
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, email, status
		FROM companies
		WHERE id = $1
		FOR UPDATE`, companyID).Scan(&c.ID, &c.Name, &c.Email, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: company %s", models.ErrNotFound, companyID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func setCompanyStatus(ctx context.Context, tx *sql.Tx, companyID string, status models.CompanyStatus, now time.Time) error {
	_, err := tx.ExecContext(ctx, `UPDATE companies SET status = $1, updated_at = $2 WHERE id = $3`, status, now, companyID)
	return err
}

func setSubscriptionStatus(ctx context.Context, tx *sql.Tx, id string, status models.SubscriptionStatus, reason string, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = $1, status_reason = $2, updated_at = $3
		WHERE id = $4`, status, reason, now, id)
	return err
}

// notifyEffect queues a templated message to the company's contact address.
func (s *SubscriptionService) notifyEffect(fx *effects, template string, company *models.Company, data map[string]any) {
	if s.dispatcher == nil {
		return
	}
	data["CompanyName"] = company.Name
	fx.add("notify "+template, func(ctx context.Context) error {
		msg, err := notify.Render(template, company.ID, company.Email, data)
		if err != nil {
			return err
		}
		return s.dispatcher.Dispatch(ctx, msg)
	})
}

func (s *SubscriptionService) revokeEffect(fx *effects, companyID string) {
	if s.sessions == nil {
		return
	}
	fx.add("revoke sessions", func(ctx context.Context) error {
		return s.sessions.RevokeAllForCompany(ctx, companyID)
	})
}

func (s *SubscriptionService) invalidateEffect(fx *effects, companyID string) {
	if s.sessions == nil {
		return
	}
	fx.add("invalidate company status", func(ctx context.Context) error {
		return s.sessions.InvalidateCompanyStatus(ctx, companyID)
	})
}

// Activate starts a new ACTIVE subscription, cancelling whatever ACTIVE or
// PENDING subscription the company had. A company that was not ACTIVE is
// switched on and told about it.
func (s *SubscriptionService) Activate(ctx context.Context, sc scope.Scope, in ActivateInput) (*models.Subscription, error) {
	if err := sc.RequireSuperAdmin(); err != nil {
		return nil, err
	}
	days, ok := in.Plan.DurationDays()
	if !ok {
		return nil, models.Invalid("unknown plan %q", in.Plan)
	}
	if in.Amount != nil && in.Amount.IsNegative() {
		return nil, models.Invalid("amount cannot be negative")
	}

	var sub *models.Subscription
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		now := s.now()
		company, err := lockCompany(ctx, tx, in.CompanyID)
		if err != nil {
			return err
		}

		start := now
		if in.StartDate != nil {
			start = *in.StartDate
		}
		sub = &models.Subscription{
			ID:        uuid.NewString(),
			CompanyID: company.ID,
			Plan:      in.Plan,
			Status:    models.SubscriptionActive,
			StartDate: start,
			EndDate:   start.AddDate(0, 0, days),
			Amount:    in.Amount,
			Notes:     in.Notes,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = 'CANCELLED', status_reason = $1, updated_at = $2
			WHERE company_id = $3 AND status IN ('ACTIVE', 'PENDING')`,
			supersededReason, now, company.ID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO subscriptions (id, company_id, plan, status, start_date, end_date, amount, notes, status_reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9, $10)`,
			sub.ID, sub.CompanyID, sub.Plan, sub.Status, sub.StartDate, sub.EndDate, sub.Amount, sub.Notes,
			sub.CreatedAt, sub.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: company %s already has a current subscription", models.ErrConflict, company.ID)
		}
		if err != nil {
			return err
		}

		reactivated := company.Status != models.CompanyActive
		if reactivated {
			if err := setCompanyStatus(ctx, tx, company.ID, models.CompanyActive, now); err != nil {
				return err
			}
		}

		s.invalidateEffect(fx, company.ID)
		if reactivated {
			s.notifyEffect(fx, notify.TemplateReactivation, company, map[string]any{
				"Plan":    string(sub.Plan),
				"EndDate": sub.EndDate.Format(time.DateOnly),
			})
		}
		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  company.ID,
			ActorID:    sc.ActorID,
			Action:     "ACTIVATE",
			EntityType: "subscription",
			EntityID:   sub.ID,
			Changes: models.Metadata{
				"plan":          string(sub.Plan),
				"endDate":       sub.EndDate.Format(time.RFC3339),
				"companyStatus": string(company.Status),
			},
		})
		return nil
	})
	if err != nil {
		log.Printf("[SUBSCRIPTION] Activate %s for company %s failed: %v", in.Plan, in.CompanyID, err)
		return nil, err
	}

	log.Printf("[SUBSCRIPTION] Activated %s subscription %s for company %s until %s",
		sub.Plan, sub.ID, sub.CompanyID, sub.EndDate.Format(time.DateOnly))
	return sub, nil
}

// Suspend switches a company off, suspends its active subscription and
// signs out all of its users.
func (s *SubscriptionService) Suspend(ctx context.Context, sc scope.Scope, companyID, reason string) error {
	if err := sc.RequireSuperAdmin(); err != nil {
		return err
	}
	if reason == "" {
		reason = defaultSuspendNote
	}

	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		now := s.now()
		company, err := lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if company.Status == models.CompanySuspended {
			return models.Invalid("company %s is already suspended", companyID)
		}
		if err := setCompanyStatus(ctx, tx, company.ID, models.CompanySuspended, now); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions
			SET status = 'SUSPENDED', status_reason = $1, updated_at = $2
			WHERE company_id = $3 AND status = 'ACTIVE'`, reason, now, company.ID); err != nil {
			return err
		}

		s.queueSuspensionEffects(fx, sc.ActorID, company, "", reason)
		return nil
	})
	if err != nil {
		log.Printf("[SUBSCRIPTION] Suspend company %s failed: %v", companyID, err)
		return err
	}
	log.Printf("[SUBSCRIPTION] Company %s suspended: %s", companyID, reason)
	return nil
}

func (s *SubscriptionService) queueSuspensionEffects(fx *effects, actorID string, company *models.Company, subscriptionID, reason string) {
	s.revokeEffect(fx, company.ID)
	s.invalidateEffect(fx, company.ID)
	s.notifyEffect(fx, notify.TemplateSuspension, company, map[string]any{"Reason": reason})

	entityType, entityID := "company", company.ID
	if subscriptionID != "" {
		entityType, entityID = "subscription", subscriptionID
	}
	fx.audit(s.audit, models.AuditRecord{
		CompanyID:  company.ID,
		ActorID:    actorID,
		Action:     "SUSPEND",
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    models.Metadata{"reason": reason, "previousStatus": string(company.Status)},
	})
}

// Reactivate restores access from a subscription that is still within its
// term, preferring an ACTIVE one over a SUSPENDED one.
func (s *SubscriptionService) Reactivate(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error) {
	if err := sc.RequireSuperAdmin(); err != nil {
		return nil, err
	}

	var sub *models.Subscription
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		now := s.now()
		company, err := lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}

		sub, err = scanSubscription(tx.QueryRowContext(ctx, `
			SELECT `+subscriptionColumns+`
			FROM subscriptions
			WHERE company_id = $1 AND status IN ('ACTIVE', 'SUSPENDED') AND end_date > $2
			ORDER BY (status = 'ACTIVE') DESC, end_date DESC
			LIMIT 1
			FOR UPDATE`, company.ID, now))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: company %s", models.ErrNoValidSubscription, company.ID)
		}
		if err != nil {
			return err
		}

		if sub.Status != models.SubscriptionActive {
			if err := setSubscriptionStatus(ctx, tx, sub.ID, models.SubscriptionActive, "", now); err != nil {
				return err
			}
			sub.Status = models.SubscriptionActive
			sub.StatusReason = ""
			sub.UpdatedAt = now
		}
		if company.Status != models.CompanyActive {
			if err := setCompanyStatus(ctx, tx, company.ID, models.CompanyActive, now); err != nil {
				return err
			}
			s.notifyEffect(fx, notify.TemplateReactivation, company, map[string]any{
				"Plan":    string(sub.Plan),
				"EndDate": sub.EndDate.Format(time.DateOnly),
			})
		}

		s.invalidateEffect(fx, company.ID)
		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  company.ID,
			ActorID:    sc.ActorID,
			Action:     "REACTIVATE",
			EntityType: "subscription",
			EntityID:   sub.ID,
			Changes:    models.Metadata{"previousStatus": string(company.Status)},
		})
		return nil
	})
	if err != nil {
		log.Printf("[SUBSCRIPTION] Reactivate company %s failed: %v", companyID, err)
		return nil, err
	}
	log.Printf("[SUBSCRIPTION] Company %s reactivated on subscription %s", companyID, sub.ID)
	return sub, nil
}

// Cancel ends a subscription. The company's status is left as it is.
func (s *SubscriptionService) Cancel(ctx context.Context, sc scope.Scope, subscriptionID, reason string) (*models.Subscription, error) {
	if err := sc.RequireSuperAdmin(); err != nil {
		return nil, err
	}

	var sub *models.Subscription
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		now := s.now()
		var err error
		sub, err = scanSubscription(tx.QueryRowContext(ctx, `
			SELECT `+subscriptionColumns+`
			FROM subscriptions
			WHERE id = $1
			FOR UPDATE`, subscriptionID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: subscription %s", models.ErrNotFound, subscriptionID)
		}
		if err != nil {
			return err
		}
		if sub.Status.Terminal() {
			return models.Invalid("subscription %s is already %s", sub.ID, sub.Status)
		}

		previous := sub.Status
		if err := setSubscriptionStatus(ctx, tx, sub.ID, models.SubscriptionCancelled, reason, now); err != nil {
			return err
		}
		sub.Status = models.SubscriptionCancelled
		sub.StatusReason = reason
		sub.UpdatedAt = now

		fx.audit(s.audit, models.AuditRecord{
			CompanyID:  sub.CompanyID,
			ActorID:    sc.ActorID,
			Action:     "CANCEL",
			EntityType: "subscription",
			EntityID:   sub.ID,
			Changes:    models.Metadata{"reason": reason, "previousStatus": string(previous)},
		})
		return nil
	})
	if err != nil {
		log.Printf("[SUBSCRIPTION] Cancel %s failed: %v", subscriptionID, err)
		return nil, err
	}
	log.Printf("[SUBSCRIPTION] Subscription %s cancelled", subscriptionID)
	return sub, nil
}

// SweepExpired expires every ACTIVE subscription past its end date. Each one
// is handled in its own transaction; a failure is recorded in the result and
// the sweep moves on.
func (s *SubscriptionService) SweepExpired(ctx context.Context) (*models.SweepResult, error) {
	now := s.now()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, company_id
		FROM subscriptions
		WHERE status = 'ACTIVE' AND end_date < $1
		ORDER BY end_date`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired subscriptions: %w", err)
	}

	type candidate struct{ id, companyID string }
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.companyID); err != nil {
			rows.Close()
			return nil, err
		}
		candidates = append(candidates, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &models.SweepResult{}
	for _, c := range candidates {
		result.Processed++
		expired, err := s.expireOne(ctx, c.id, c.companyID, now)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, models.SweepFailure{
				SubscriptionID: c.id,
				CompanyID:      c.companyID,
				Error:          err.Error(),
			})
			log.Printf("[SWEEP] Failed to expire subscription %s: %v", c.id, err)
			continue
		}
		if expired {
			result.Expired++
		}
	}

	log.Printf("[SWEEP] Processed %d subscriptions: %d expired, %d failed", result.Processed, result.Expired, result.Failed)
	return result, nil
}

// expireOne re-checks the subscription under lock; it reports false when
// another writer already moved it on.
func (s *SubscriptionService) expireOne(ctx context.Context, subscriptionID, companyID string, now time.Time) (bool, error) {
	expired := false
	err := runInTx(ctx, s.db, s.attempts, func(tx *sql.Tx, fx *effects) error {
		expired = false
		company, err := lockCompany(ctx, tx, companyID)
		if err != nil {
			return err
		}

		var status models.SubscriptionStatus
		var endDate time.Time
		err = tx.QueryRowContext(ctx, `
			SELECT status, end_date
			FROM subscriptions
			WHERE id = $1
			FOR UPDATE`, subscriptionID).Scan(&status, &endDate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if status != models.SubscriptionActive || !endDate.Before(now) {
			return nil
		}

		if err := setSubscriptionStatus(ctx, tx, subscriptionID, models.SubscriptionExpired, expiredReason, now); err != nil {
			return err
		}
		if err := setCompanyStatus(ctx, tx, company.ID, models.CompanySuspended, now); err != nil {
			return err
		}

		s.queueSuspensionEffects(fx, systemActor, company, subscriptionID, expiredReason)
		expired = true
		return nil
	})
	return expired, err
}

// SendExpiryWarnings notifies companies whose ACTIVE subscription ends in
// exactly one of the configured day counts. It never changes state. With a
// deduper each (day, subscription, days left) is sent once; without one a
// rerun sends again.
func (s *SubscriptionService) SendExpiryWarnings(ctx context.Context) (*models.WarningResult, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	result := &models.WarningResult{}
	var errs []error

	for _, days := range s.warningDays {
		from := today.AddDate(0, 0, days)
		to := from.AddDate(0, 0, 1)
		if err := s.warnWindow(ctx, now, days, from, to, result); err != nil {
			log.Printf("[SWEEP] Expiry warnings for %d days failed: %v", days, err)
			errs = append(errs, err)
		}
	}

	log.Printf("[SWEEP] Expiry warnings: %d sent, %d skipped, %d failed", result.Sent, result.Skipped, result.Failed)
	return result, errors.Join(errs...)
}

func (s *SubscriptionService) warnWindow(ctx context.Context, now time.Time, days int, from, to time.Time, result *models.WarningResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.plan, s.end_date, c.id, c.name, c.email
		FROM subscriptions s
		JOIN companies c ON c.id = s.company_id
		WHERE s.status = 'ACTIVE' AND s.end_date >= $1 AND s.end_date < $2`, from, to)
	if err != nil {
		return err
	}

	type due struct {
		subscriptionID string
		plan           models.SubscriptionPlan
		endDate        time.Time
		company        models.Company
	}
	var list []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.subscriptionID, &d.plan, &d.endDate, &d.company.ID, &d.company.Name, &d.company.Email); err != nil {
			rows.Close()
			return err
		}
		list = append(list, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, d := range list {
		key := notify.WarningKey(now, d.subscriptionID, days)
		claimed := false
		if s.deduper != nil {
			first, err := s.deduper.First(ctx, key)
			if err != nil {
				log.Printf("[SWEEP] Warning dedup unavailable for %s, sending anyway: %v", d.subscriptionID, err)
			} else if !first {
				result.Skipped++
				continue
			}
			claimed = first
		}

		msg, err := notify.Render(notify.TemplateExpiryWarning, d.company.ID, d.company.Email, map[string]any{
			"CompanyName": d.company.Name,
			"Plan":        string(d.plan),
			"EndDate":     d.endDate.Format(time.DateOnly),
			"DaysLeft":    days,
		})
		if err == nil && s.dispatcher != nil {
			err = s.dispatcher.Dispatch(ctx, msg)
		}
		if err != nil {
			result.Failed++
			log.Printf("[SWEEP] Expiry warning for subscription %s failed: %v", d.subscriptionID, err)
			if claimed {
				if err := s.deduper.Release(ctx, key); err != nil {
					log.Printf("[SWEEP] Failed to release warning claim %s: %v", key, err)
				}
			}
			continue
		}
		result.Sent++
	}
	return nil
}

// companyVisible allows super admins everywhere and company admins on their
// own company.
func companyVisible(sc scope.Scope, companyID string) error {
	if err := sc.RequireAdmin(); err != nil {
		return err
	}
	if sc.CompanyID != "" && sc.CompanyID != companyID {
		return fmt.Errorf("%w: company %s", models.ErrNotFound, companyID)
	}
	return nil
}

// Current returns the company's live subscription.
func (s *SubscriptionService) Current(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error) {
	if err := companyVisible(sc, companyID); err != nil {
		return nil, err
	}
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE company_id = $1 AND status IN ('ACTIVE', 'PENDING', 'SUSPENDED')
		ORDER BY created_at DESC
		LIMIT 1`, companyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no current subscription for company %s", models.ErrNotFound, companyID)
	}
	return sub, err
}

// History lists every subscription the company has had, newest first.
func (s *SubscriptionService) History(ctx context.Context, sc scope.Scope, companyID string) ([]models.Subscription, error) {
	if err := companyVisible(sc, companyID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE company_id = $1
		ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// CompanyStatus reads a company's access status.
func (s *SubscriptionService) CompanyStatus(ctx context.Context, companyID string) (models.CompanyStatus, error) {
	var status models.CompanyStatus
	err := s.db.QueryRowContext(ctx, `SELECT status FROM companies WHERE id = $1`, companyID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: company %s", models.ErrNotFound, companyID)
	}
	return status, err
}
