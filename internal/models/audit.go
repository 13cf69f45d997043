package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AuditRecord is an append-only trail entry for a mutating operation.
type AuditRecord struct {
	CompanyID  string    `json:"companyId,omitempty"`
	ActorID    string    `json:"actorId"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Changes    Metadata  `json:"changes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
