package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/notify"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Record(ctx context.Context, rec models.AuditRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) RevokeAllForCompany(ctx context.Context, companyID string) error {
	args := m.Called(ctx, companyID)
	return args.Error(0)
}

func (m *MockSessionStore) InvalidateCompanyStatus(ctx context.Context, companyID string) error {
	args := m.Called(ctx, companyID)
	return args.Error(0)
}

type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) Blacklist(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockDeduper struct {
	mock.Mock
}

func (m *MockDeduper) First(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockDeduper) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

var fixedNow = time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func superAdmin() scope.Scope {
	return scope.Scope{Role: models.RoleSuperAdmin, ActorID: "root"}
}

func companyAdmin() scope.Scope {
	return scope.Scope{Role: models.RoleCompanyAdmin, ActorID: "admin-1", CompanyID: "co-1"}
}

func agentScope() scope.Scope {
	return scope.Scope{Role: models.RoleAgent, ActorID: "agent-1", CompanyID: "co-1", BranchID: "br-1", AgentID: "agent-1"}
}

var accountColumns = []string{"id", "customer_id", "balance", "is_active", "version", "updated_at"}

const lockAccountSQL = "SELECT id, customer_id, balance, is_active, version, updated_at FROM savings_accounts WHERE id = \\$1 FOR UPDATE"

func expectLockAccount(mock sqlmock.Sqlmock, accountID, balance string, active bool, version int) {
	mock.ExpectQuery(lockAccountSQL).
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows(accountColumns).
			AddRow(accountID, "cust-1", balance, active, version, fixedNow))
}

const agentAssignmentSQL = "FROM users u JOIN agent_branches ab ON ab.agent_id = u.id AND ab.is_active JOIN branches b ON b.id = ab.branch_id AND b.is_active"

func expectAgentAssignment(mock sqlmock.Sqlmock, agentID, companyID, branchID string, assigned bool) {
	mock.ExpectQuery(agentAssignmentSQL).
		WithArgs(agentID, companyID, "AGENT", branchID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(assigned))
}

func adminFor(agentID string) scope.Scope {
	sc := companyAdmin()
	sc.BranchID = "br-1"
	sc.AgentID = agentID
	return sc
}

func expectAccountScope(mock sqlmock.Sqlmock, accountID, companyID, branchID string) {
	mock.ExpectQuery("FROM savings_accounts a JOIN customers c ON c.id = a.customer_id WHERE a.id = \\$1").
		WithArgs(accountID).
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "branch_id"}).AddRow(companyID, branchID))
}

func expectEntryInsert(mock sqlmock.Sqlmock, accountID string, entryType models.EntryType, amount, before, after string) {
	mock.ExpectExec("INSERT INTO ledger_entries").
		WithArgs(sqlmock.AnyArg(), accountID, string(entryType), amount, before, after,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, accountID, balance string, version int) {
	mock.ExpectExec("UPDATE savings_accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE id = \\$3 AND version = \\$4").
		WithArgs(balance, sqlmock.AnyArg(), accountID, version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}
