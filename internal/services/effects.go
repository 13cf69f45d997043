package services

import (
	"context"
	"log"

	"github.com/ruralpay/collections/internal/models"
)

// Auditor appends audit records. Failures are reported but never undo the
// operation being audited.
type Auditor interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

type effect struct {
	name string
	fn   func(ctx context.Context) error
}

// effects collects the best-effort work of a transaction: audit writes,
// session revocation, notifications. Nothing queued here runs unless the
// transaction commits.
type effects struct {
	list []effect
}

func (e *effects) add(name string, fn func(ctx context.Context) error) {
	e.list = append(e.list, effect{name: name, fn: fn})
}

func (e *effects) audit(a Auditor, rec models.AuditRecord) {
	if a == nil {
		return
	}
	e.add("audit "+rec.Action+" "+rec.EntityType, func(ctx context.Context) error {
		return a.Record(ctx, rec)
	})
}

// drain runs every queued effect in order. The caller's cancellation does not
// propagate: the state change already committed.
func (e *effects) drain(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for _, eff := range e.list {
		if err := eff.fn(ctx); err != nil {
			log.Printf("[EFFECT] %s failed: %v", eff.name, err)
		}
	}
	e.list = nil
}
