package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ruralpay/collections/internal/models"
)

// Logger appends audit records to the audit_logs table. The table is
// write-only from the application's point of view.
type Logger struct {
	db  *sql.DB
	now func() time.Time
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db, now: time.Now}
}

// Record persists rec. When the insert fails the record is still echoed to
// the process log so the trail is not lost.
func (a *Logger) Record(ctx context.Context, rec models.AuditRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now()
	}

	if a.db == nil {
		a.log(rec)
		return nil
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, company_id, actor_id, action, entity_type, entity_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.NewString(), nullString(rec.CompanyID), rec.ActorID, rec.Action,
		rec.EntityType, rec.EntityID, rec.Changes, rec.CreatedAt)
	if err != nil {
		a.log(rec)
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

func (a *Logger) log(rec models.AuditRecord) {
	data, _ := json.Marshal(rec)
	log.Printf("AUDIT: %s", string(data))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
