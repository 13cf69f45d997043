// Package scope computes the data window a caller may read or modify.
//
// Every collection and summary query goes through Resolve; handlers never
// compare roles themselves.
package scope

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ruralpay/collections/internal/models"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID    string
	CompanyID string
	Role      models.Role
	// Branches holds the active branch assignments of an agent.
	Branches []string
}

func (id Identity) IsAdmin() bool {
	return id.Role == models.RoleSuperAdmin || id.Role == models.RoleCompanyAdmin
}

// Filter is the narrowing a caller asks for. Empty fields mean "no preference".
type Filter struct {
	CompanyID string
	BranchID  string
	AgentID   string
}

// Scope is the resolved window. Empty fields are unrestricted.
type Scope struct {
	Role      models.Role
	ActorID   string
	CompanyID string
	BranchID  string
	AgentID   string
}

// Resolve applies the role rules to a requested filter.
func Resolve(id Identity, f Filter) (Scope, error) {
	s := Scope{Role: id.Role, ActorID: id.UserID}

	switch id.Role {
	case models.RoleSuperAdmin:
		s.CompanyID = f.CompanyID
		s.BranchID = f.BranchID
		s.AgentID = f.AgentID
		return s, nil

	case models.RoleCompanyAdmin:
		if id.CompanyID == "" {
			return Scope{}, models.ErrUnauthorized
		}
		if f.CompanyID != "" && f.CompanyID != id.CompanyID {
			return Scope{}, models.ErrForbidden
		}
		s.CompanyID = id.CompanyID
		s.BranchID = f.BranchID
		s.AgentID = f.AgentID
		return s, nil

	case models.RoleAgent:
		if id.CompanyID == "" || id.UserID == "" {
			return Scope{}, models.ErrUnauthorized
		}
		if f.CompanyID != "" && f.CompanyID != id.CompanyID {
			return Scope{}, models.ErrForbidden
		}
		if f.AgentID != "" && f.AgentID != id.UserID {
			return Scope{}, models.ErrForbidden
		}
		branch, err := agentBranch(id.Branches, f.BranchID)
		if err != nil {
			return Scope{}, err
		}
		s.CompanyID = id.CompanyID
		s.AgentID = id.UserID
		s.BranchID = branch
		return s, nil
	}

	return Scope{}, models.ErrUnauthorized
}

func agentBranch(assigned []string, requested string) (string, error) {
	if requested != "" {
		if !slices.Contains(assigned, requested) {
			return "", models.ErrForbidden
		}
		return requested, nil
	}
	switch len(assigned) {
	case 0:
		return "", models.ErrNotAssigned
	case 1:
		return assigned[0], nil
	default:
		return "", models.ErrBranchAmbiguous
	}
}

// RequireAdmin rejects agents.
func (s Scope) RequireAdmin() error {
	if s.Role != models.RoleSuperAdmin && s.Role != models.RoleCompanyAdmin {
		return models.ErrForbidden
	}
	return nil
}

// RequireSuperAdmin rejects everyone but platform administrators.
func (s Scope) RequireSuperAdmin() error {
	if s.Role != models.RoleSuperAdmin {
		return models.ErrForbidden
	}
	return nil
}

// Target is the fully qualified owner of a row about to be written.
type Target struct {
	CompanyID string
	BranchID  string
	AgentID   string
}

// WriteTarget resolves the tenant/branch/agent a new row belongs to.
// Admins must name the branch; a super admin must also name the company.
// Agents always write as themselves.
func (s Scope) WriteTarget() (Target, error) {
	t := Target{CompanyID: s.CompanyID, BranchID: s.BranchID, AgentID: s.AgentID}
	if t.CompanyID == "" {
		return Target{}, models.Invalid("companyId is required")
	}
	if t.BranchID == "" {
		return Target{}, models.Invalid("branchId is required")
	}
	if t.AgentID == "" {
		t.AgentID = s.ActorID
	}
	return t, nil
}

// Covers reports whether a row owned by company and branch, but by no agent,
// is inside the scope. A row without a branch is visible company wide.
func (s Scope) Covers(companyID, branchID string) bool {
	if s.CompanyID != "" && s.CompanyID != companyID {
		return false
	}
	if s.BranchID != "" && branchID != "" && s.BranchID != branchID {
		return false
	}
	return true
}

// Where renders the scope as SQL conditions over the company_id, branch_id
// and agent_id columns of alias. Placeholders start at $next. It returns the
// conditions joined with AND (empty when unrestricted), the arguments, and
// the next free placeholder index.
func (s Scope) Where(alias string, next int) (string, []any, int) {
	col := func(name string) string {
		if alias == "" {
			return name
		}
		return alias + "." + name
	}

	var conds []string
	var args []any
	add := func(name, value string) {
		if value == "" {
			return
		}
		conds = append(conds, fmt.Sprintf("%s = $%d", col(name), next))
		args = append(args, value)
		next++
	}
	add("company_id", s.CompanyID)
	add("branch_id", s.BranchID)
	add("agent_id", s.AgentID)

	return strings.Join(conds, " AND "), args, next
}
