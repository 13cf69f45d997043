package services

import (
	"context"
	"fmt"

	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
)

// checkWriteTarget confirms that an admin-chosen branch belongs to the target
// company and that the named agent is an active AGENT of that company assigned
// to that branch. Agents write under the assignment carried by their token.
// Anything outside the company is reported as not found.
func checkWriteTarget(ctx context.Context, q querier, sc scope.Scope, target scope.Target) error {
	if sc.Role == models.RoleAgent {
		return nil
	}

	if target.AgentID == sc.ActorID {
		var found bool
		err := q.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM branches
				WHERE id = $1 AND company_id = $2 AND is_active
			)`, target.BranchID, target.CompanyID).Scan(&found)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: branch %s", models.ErrNotFound, target.BranchID)
		}
		return nil
	}

	var assigned bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM users u
			JOIN agent_branches ab ON ab.agent_id = u.id AND ab.is_active
			JOIN branches b ON b.id = ab.branch_id AND b.is_active
			WHERE u.id = $1 AND u.company_id = $2 AND u.role = $3 AND u.is_active
				AND b.id = $4 AND b.company_id = $2
		)`, target.AgentID, target.CompanyID, string(models.RoleAgent), target.BranchID).Scan(&assigned)
	if err != nil {
		return err
	}
	if !assigned {
		return fmt.Errorf("%w: agent %s in branch %s", models.ErrNotFound, target.AgentID, target.BranchID)
	}
	return nil
}
