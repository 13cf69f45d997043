package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var collectionRowColumns = []string{"id", "company_id", "branch_id", "customer_id", "account_id", "agent_id",
	"ledger_entry_id", "amount", "expected_amount", "status", "collection_date",
	"latitude", "longitude", "notes", "created_at", "updated_at"}

func collectionRows(id, entryID, amount, status string) *sqlmock.Rows {
	var entry any
	if entryID != "" {
		entry = entryID
	}
	return sqlmock.NewRows(collectionRowColumns).
		AddRow(id, "co-1", "br-1", "cust-1", "acc-1", "agent-1", entry, amount, "50.00", status,
			fixedNow, 6.5244, 3.3792, "", fixedNow, fixedNow)
}

func newTestCollections(t *testing.T) (*CollectionService, sqlmock.Sqlmock, *MockAuditor) {
	db, sqlMock := newMockDB(t)
	auditor := new(MockAuditor)
	ledger := NewLedgerService(db, auditor, 1)
	ledger.now = fixedClock
	service := NewCollectionService(db, ledger, auditor, 1)
	service.now = fixedClock
	return service, sqlMock, auditor
}

func expectOwnership(sqlMock sqlmock.Sqlmock) {
	sqlMock.ExpectQuery("SELECT company_id, is_active FROM customers WHERE id = \\$1").
		WithArgs("cust-1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "is_active"}).AddRow("co-1", true))
	sqlMock.ExpectQuery("SELECT customer_id, is_active FROM savings_accounts WHERE id = \\$1").
		WithArgs("acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"customer_id", "is_active"}).AddRow("cust-1", true))
	sqlMock.ExpectQuery("SELECT company_id, is_active FROM branches WHERE id = \\$1").
		WithArgs("br-1").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "is_active"}).AddRow("co-1", true))
}

const lockCollectionSQL = "FROM collections c WHERE c.id = \\$1 AND c.company_id = \\$2 FOR UPDATE"

func expectEntryLookup(sqlMock sqlmock.Sqlmock, entryID, amount, reference string) {
	sqlMock.ExpectQuery("SELECT id, account_id, type, amount, reference FROM ledger_entries WHERE id = \\$1").
		WithArgs(entryID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "type", "amount", "reference"}).
			AddRow(entryID, "acc-1", "DEPOSIT", amount, reference))
}

func TestCollectionService_Create(t *testing.T) {
	service, sqlMock, auditor := newTestCollections(t)
	ctx := context.Background()

	t.Run("collected amount is deposited", func(t *testing.T) {
		sqlMock.ExpectBegin()
		expectOwnership(sqlMock)
		expectLockAccount(sqlMock, "acc-1", "100.00", true, 1)
		expectEntryInsert(sqlMock, "acc-1", models.EntryDeposit, "50", "100", "150")
		expectBalanceUpdate(sqlMock, "acc-1", "150", 1)
		sqlMock.ExpectExec("INSERT INTO collections").
			WithArgs(sqlmock.AnyArg(), "co-1", "br-1", "cust-1", "acc-1", "agent-1", sqlmock.AnyArg(),
				"50", nil, "COLLECTED", fixedNow, nil, nil, "", fixedNow, fixedNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		sqlMock.ExpectCommit()
		auditor.On("Record", mock.Anything, mock.MatchedBy(func(rec models.AuditRecord) bool {
			return rec.Action == "CREATE" && rec.EntityType == "collection" && rec.ActorID == "agent-1"
		})).Return(nil).Once()

		c, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(50),
			Status:     models.CollectionCollected,
		})
		require.NoError(t, err)
		assert.NotNil(t, c.LedgerEntryID)
		assert.Equal(t, "agent-1", c.AgentID)
		assert.Equal(t, "br-1", c.BranchID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		auditor.AssertExpectations(t)
	})

	t.Run("missed collection does not touch the ledger", func(t *testing.T) {
		sqlMock.ExpectBegin()
		expectOwnership(sqlMock)
		sqlMock.ExpectExec("INSERT INTO collections").
			WithArgs(sqlmock.AnyArg(), "co-1", "br-1", "cust-1", "acc-1", "agent-1", nil,
				"0", sqlmock.AnyArg(), "MISSED", sqlmock.AnyArg(), nil, nil, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		sqlMock.ExpectCommit()
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

		expected := decimal.NewFromInt(50)
		c, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID:     "cust-1",
			AccountID:      "acc-1",
			Amount:         decimal.Zero,
			ExpectedAmount: &expected,
		})
		require.NoError(t, err)
		assert.Equal(t, models.CollectionMissed, c.Status)
		assert.Nil(t, c.LedgerEntryID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("missed with an amount is rejected", func(t *testing.T) {
		_, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(10),
			Status:     models.CollectionMissed,
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("negative amount is rejected", func(t *testing.T) {
		_, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(-5),
			Status:     models.CollectionCollected,
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("fractions of a cent are rejected", func(t *testing.T) {
		_, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.RequireFromString("0.004"),
			Status:     models.CollectionCollected,
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)

		expected := decimal.RequireFromString("49.999")
		_, err = service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID:     "cust-1",
			AccountID:      "acc-1",
			Amount:         decimal.NewFromInt(50),
			ExpectedAmount: &expected,
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("admin records for an assigned agent", func(t *testing.T) {
		sqlMock.ExpectBegin()
		expectOwnership(sqlMock)
		expectAgentAssignment(sqlMock, "agent-1", "co-1", "br-1", true)
		expectLockAccount(sqlMock, "acc-1", "100.00", true, 1)
		expectEntryInsert(sqlMock, "acc-1", models.EntryDeposit, "50", "100", "150")
		expectBalanceUpdate(sqlMock, "acc-1", "150", 1)
		sqlMock.ExpectExec("INSERT INTO collections").
			WillReturnResult(sqlmock.NewResult(1, 1))
		sqlMock.ExpectCommit()
		auditor.On("Record", mock.Anything, mock.MatchedBy(func(rec models.AuditRecord) bool {
			return rec.Action == "CREATE" && rec.ActorID == "admin-1"
		})).Return(nil).Once()

		c, err := service.Create(ctx, adminFor("agent-1"), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(50),
		})
		require.NoError(t, err)
		assert.Equal(t, "agent-1", c.AgentID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("agent of another company is not found", func(t *testing.T) {
		sqlMock.ExpectBegin()
		expectOwnership(sqlMock)
		expectAgentAssignment(sqlMock, "agent-of-co-2", "co-1", "br-1", false)
		sqlMock.ExpectRollback()

		_, err := service.Create(ctx, adminFor("agent-of-co-2"), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(50),
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("admin must name a branch", func(t *testing.T) {
		_, err := service.Create(ctx, companyAdmin(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("customer of another tenant is not found", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery("SELECT company_id, is_active FROM customers WHERE id = \\$1").
			WithArgs("cust-1").
			WillReturnRows(sqlmock.NewRows([]string{"company_id", "is_active"}).AddRow("co-2", true))
		sqlMock.ExpectRollback()

		_, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("inactive account is rejected", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery("FROM customers WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows([]string{"company_id", "is_active"}).AddRow("co-1", true))
		sqlMock.ExpectQuery("FROM savings_accounts WHERE id = \\$1").
			WillReturnRows(sqlmock.NewRows([]string{"customer_id", "is_active"}).AddRow("cust-1", false))
		sqlMock.ExpectRollback()

		_, err := service.Create(ctx, agentScope(), CreateCollectionInput{
			CustomerID: "cust-1",
			AccountID:  "acc-1",
			Amount:     decimal.NewFromInt(10),
		})
		assert.ErrorIs(t, err, models.ErrAccountInactive)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestCollectionService_Delete(t *testing.T) {
	service, sqlMock, auditor := newTestCollections(t)
	ctx := context.Background()

	t.Run("reversal restores the balance", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-1", "co-1").
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))
		expectEntryLookup(sqlMock, "entry-1", "50.00", "COL-1-aa")
		expectLockAccount(sqlMock, "acc-1", "150.00", true, 2)
		expectEntryInsert(sqlMock, "acc-1", models.EntryWithdrawal, "50", "150", "100")
		expectBalanceUpdate(sqlMock, "acc-1", "100", 2)
		sqlMock.ExpectExec("DELETE FROM collections WHERE id = \\$1").
			WithArgs("col-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()
		auditor.On("Record", mock.Anything, mock.MatchedBy(func(rec models.AuditRecord) bool {
			return rec.Action == "DELETE" && rec.EntityID == "col-1"
		})).Return(nil).Once()

		assert.NoError(t, service.Delete(ctx, companyAdmin(), "col-1"))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
		auditor.AssertExpectations(t)
	})

	t.Run("missed collection is deleted without reversal", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-2", "co-1").
			WillReturnRows(collectionRows("col-2", "", "0.00", "MISSED"))
		sqlMock.ExpectExec("DELETE FROM collections WHERE id = \\$1").
			WithArgs("col-2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()
		auditor.On("Record", mock.Anything, mock.Anything).Return(nil).Once()

		assert.NoError(t, service.Delete(ctx, companyAdmin(), "col-2"))
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("reversal that would overdraw rolls back", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-3", "co-1").
			WillReturnRows(collectionRows("col-3", "entry-3", "50.00", "COLLECTED"))
		expectEntryLookup(sqlMock, "entry-3", "50.00", "COL-3-cc")
		expectLockAccount(sqlMock, "acc-1", "10.00", true, 2)
		sqlMock.ExpectRollback()

		err := service.Delete(ctx, companyAdmin(), "col-3")
		assert.ErrorIs(t, err, models.ErrInsufficientBalance)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("out of scope collection is not found", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-9", "co-1").
			WillReturnRows(sqlmock.NewRows(collectionRowColumns))
		sqlMock.ExpectRollback()

		err := service.Delete(ctx, companyAdmin(), "col-9")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("agents cannot delete", func(t *testing.T) {
		err := service.Delete(ctx, agentScope(), "col-1")
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}

func TestCollectionService_Update(t *testing.T) {
	service, sqlMock, auditor := newTestCollections(t)
	ctx := context.Background()
	auditor.On("Record", mock.Anything, mock.Anything).Return(nil)

	t.Run("amount change appends a new deposit and reverses the old one", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-1", "co-1").
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))
		expectLockAccount(sqlMock, "acc-1", "150.00", true, 2)
		expectEntryInsert(sqlMock, "acc-1", models.EntryDeposit, "80", "150", "230")
		expectBalanceUpdate(sqlMock, "acc-1", "230", 2)
		expectEntryLookup(sqlMock, "entry-1", "50.00", "COL-1-aa")
		expectLockAccount(sqlMock, "acc-1", "230.00", true, 3)
		expectEntryInsert(sqlMock, "acc-1", models.EntryWithdrawal, "50", "230", "180")
		expectBalanceUpdate(sqlMock, "acc-1", "180", 3)
		sqlMock.ExpectExec("UPDATE collections SET amount = \\$1, expected_amount = \\$2, status = \\$3, notes = \\$4, ledger_entry_id = \\$5, updated_at = \\$6 WHERE id = \\$7").
			WithArgs("80", sqlmock.AnyArg(), "COLLECTED", "", sqlmock.AnyArg(), fixedNow, "col-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()

		amount := decimal.NewFromInt(80)
		c, err := service.Update(ctx, companyAdmin(), "col-1", UpdateCollectionInput{Amount: &amount})
		require.NoError(t, err)
		assert.True(t, c.Amount.Equal(amount))
		require.NotNil(t, c.LedgerEntryID)
		assert.NotEqual(t, "entry-1", *c.LedgerEntryID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("marking missed reverses and unlinks", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-1", "co-1").
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))
		expectEntryLookup(sqlMock, "entry-1", "50.00", "COL-1-aa")
		expectLockAccount(sqlMock, "acc-1", "150.00", true, 2)
		expectEntryInsert(sqlMock, "acc-1", models.EntryWithdrawal, "50", "150", "100")
		expectBalanceUpdate(sqlMock, "acc-1", "100", 2)
		sqlMock.ExpectExec("UPDATE collections").
			WithArgs("0", sqlmock.AnyArg(), "MISSED", "", nil, fixedNow, "col-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()

		amount := decimal.Zero
		status := models.CollectionMissed
		c, err := service.Update(ctx, companyAdmin(), "col-1", UpdateCollectionInput{Amount: &amount, Status: &status})
		require.NoError(t, err)
		assert.Nil(t, c.LedgerEntryID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("notes only leaves the ledger alone", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-1", "co-1").
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))
		sqlMock.ExpectExec("UPDATE collections").
			WithArgs("50", sqlmock.AnyArg(), "COLLECTED", "customer travelling", "entry-1", fixedNow, "col-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		sqlMock.ExpectCommit()

		notes := "customer travelling"
		c, err := service.Update(ctx, companyAdmin(), "col-1", UpdateCollectionInput{Notes: &notes})
		require.NoError(t, err)
		assert.Equal(t, "entry-1", *c.LedgerEntryID)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("missed with amount is rejected and rolled back", func(t *testing.T) {
		sqlMock.ExpectBegin()
		sqlMock.ExpectQuery(lockCollectionSQL).
			WithArgs("col-1", "co-1").
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))
		sqlMock.ExpectRollback()

		status := models.CollectionMissed
		_, err := service.Update(ctx, companyAdmin(), "col-1", UpdateCollectionInput{Status: &status})
		assert.ErrorIs(t, err, models.ErrInvalidState)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("agents cannot update", func(t *testing.T) {
		notes := "x"
		_, err := service.Update(ctx, agentScope(), "col-1", UpdateCollectionInput{Notes: &notes})
		assert.ErrorIs(t, err, models.ErrForbidden)
	})
}

func TestCollectionService_GetAll(t *testing.T) {
	service, sqlMock, _ := newTestCollections(t)
	ctx := context.Background()

	t.Run("agent reads only its own rows", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM collections c WHERE c.company_id = \\$1 AND c.branch_id = \\$2 AND c.agent_id = \\$3 AND c.status = \\$4 ORDER BY c.collection_date DESC, c.id LIMIT \\$5 OFFSET \\$6").
			WithArgs("co-1", "br-1", "agent-1", "COLLECTED", defaultPageSize, 0).
			WillReturnRows(collectionRows("col-1", "entry-1", "50.00", "COLLECTED"))

		rows, err := service.GetAll(ctx, agentScope(), CollectionQuery{Status: models.CollectionCollected})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "agent-1", rows[0].AgentID)
		require.NotNil(t, rows[0].Location)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("super admin is unrestricted", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM collections c ORDER BY c.collection_date DESC, c.id LIMIT \\$1 OFFSET \\$2").
			WithArgs(20, 40).
			WillReturnRows(sqlmock.NewRows(collectionRowColumns))

		rows, err := service.GetAll(ctx, superAdmin(), CollectionQuery{Limit: 20, Offset: 40})
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestCollectionService_GetByID(t *testing.T) {
	service, sqlMock, _ := newTestCollections(t)
	ctx := context.Background()

	sqlMock.ExpectQuery("FROM collections c WHERE c.id = \\$1 AND c.company_id = \\$2 AND c.branch_id = \\$3 AND c.agent_id = \\$4").
		WithArgs("col-7", "co-1", "br-1", "agent-1").
		WillReturnRows(sqlmock.NewRows(collectionRowColumns))

	_, err := service.GetByID(ctx, agentScope(), "col-7")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestCollectionService_Stats(t *testing.T) {
	service, sqlMock, _ := newTestCollections(t)
	ctx := context.Background()
	statColumns := []string{"count", "sum", "collected", "collected_sum", "partial", "pending", "missed"}

	t.Run("rate over collected and partial", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM collections c WHERE c.company_id = \\$1").
			WithArgs("co-1").
			WillReturnRows(sqlmock.NewRows(statColumns).AddRow(3, "150.00", 2, "150.00", 1, 0, 1))

		st, err := service.Stats(ctx, companyAdmin(), CollectionQuery{})
		require.NoError(t, err)
		assert.Equal(t, 3, st.TotalCount)
		assert.Equal(t, 2, st.CollectedCount)
		assert.Equal(t, 66.67, st.CollectionRate)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})

	t.Run("empty set has zero rate", func(t *testing.T) {
		sqlMock.ExpectQuery("FROM collections c").
			WillReturnRows(sqlmock.NewRows(statColumns).AddRow(0, "0", 0, "0", 0, 0, 0))

		st, err := service.Stats(ctx, scope.Scope{Role: models.RoleSuperAdmin}, CollectionQuery{})
		require.NoError(t, err)
		assert.Zero(t, st.CollectionRate)
		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}

func TestValidateCollection(t *testing.T) {
	assert.NoError(t, validateCollection(decimal.RequireFromString("10.50"), nil, models.CollectionCollected))
	assert.NoError(t, validateCollection(decimal.RequireFromString("10.500"), nil, models.CollectionCollected))
	assert.ErrorIs(t, validateCollection(decimal.RequireFromString("10.005"), nil, models.CollectionCollected), models.ErrInvalidState)
	assert.ErrorIs(t, validateCollection(decimal.RequireFromString("0.004"), nil, models.CollectionPartial), models.ErrInvalidState)
}

func TestDefaultStatus(t *testing.T) {
	expected := decimal.NewFromInt(100)
	assert.Equal(t, models.CollectionMissed, defaultStatus(decimal.Zero, &expected))
	assert.Equal(t, models.CollectionPartial, defaultStatus(decimal.NewFromInt(40), &expected))
	assert.Equal(t, models.CollectionCollected, defaultStatus(decimal.NewFromInt(100), &expected))
	assert.Equal(t, models.CollectionCollected, defaultStatus(decimal.NewFromInt(5), nil))
}
