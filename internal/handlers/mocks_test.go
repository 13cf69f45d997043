package handlers

import (
	"context"
	"time"

	"github.com/ruralpay/collections/internal/models"
	"github.com/ruralpay/collections/internal/scope"
	"github.com/ruralpay/collections/internal/services"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockCollections struct {
	mock.Mock
}

func (m *MockCollections) Create(ctx context.Context, sc scope.Scope, in services.CreateCollectionInput) (*models.Collection, error) {
	args := m.Called(ctx, sc, in)
	c, _ := args.Get(0).(*models.Collection)
	return c, args.Error(1)
}

func (m *MockCollections) Update(ctx context.Context, sc scope.Scope, id string, in services.UpdateCollectionInput) (*models.Collection, error) {
	args := m.Called(ctx, sc, id, in)
	c, _ := args.Get(0).(*models.Collection)
	return c, args.Error(1)
}

func (m *MockCollections) Delete(ctx context.Context, sc scope.Scope, id string) error {
	args := m.Called(ctx, sc, id)
	return args.Error(0)
}

func (m *MockCollections) GetByID(ctx context.Context, sc scope.Scope, id string) (*models.Collection, error) {
	args := m.Called(ctx, sc, id)
	c, _ := args.Get(0).(*models.Collection)
	return c, args.Error(1)
}

func (m *MockCollections) GetAll(ctx context.Context, sc scope.Scope, q services.CollectionQuery) ([]models.Collection, error) {
	args := m.Called(ctx, sc, q)
	list, _ := args.Get(0).([]models.Collection)
	return list, args.Error(1)
}

func (m *MockCollections) Stats(ctx context.Context, sc scope.Scope, q services.CollectionQuery) (*models.CollectionStats, error) {
	args := m.Called(ctx, sc, q)
	s, _ := args.Get(0).(*models.CollectionStats)
	return s, args.Error(1)
}

type MockSummaries struct {
	mock.Mock
}

func (m *MockSummaries) Generate(ctx context.Context, sc scope.Scope, date time.Time, notes string) (*models.DailySummary, error) {
	args := m.Called(ctx, sc, date, notes)
	s, _ := args.Get(0).(*models.DailySummary)
	return s, args.Error(1)
}

func (m *MockSummaries) Update(ctx context.Context, sc scope.Scope, id string, patch services.SummaryPatch) (*models.DailySummary, error) {
	args := m.Called(ctx, sc, id, patch)
	s, _ := args.Get(0).(*models.DailySummary)
	return s, args.Error(1)
}

func (m *MockSummaries) Lock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	args := m.Called(ctx, sc, id)
	s, _ := args.Get(0).(*models.DailySummary)
	return s, args.Error(1)
}

func (m *MockSummaries) Unlock(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	args := m.Called(ctx, sc, id)
	s, _ := args.Get(0).(*models.DailySummary)
	return s, args.Error(1)
}

func (m *MockSummaries) GetByID(ctx context.Context, sc scope.Scope, id string) (*models.DailySummary, error) {
	args := m.Called(ctx, sc, id)
	s, _ := args.Get(0).(*models.DailySummary)
	return s, args.Error(1)
}

func (m *MockSummaries) GetAll(ctx context.Context, sc scope.Scope, q services.SummaryQuery) ([]models.DailySummary, error) {
	args := m.Called(ctx, sc, q)
	list, _ := args.Get(0).([]models.DailySummary)
	return list, args.Error(1)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Deposit(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, sc, accountID, amount.String(), description)
	e, _ := args.Get(0).(*models.LedgerEntry)
	return e, args.Error(1)
}

func (m *MockLedger) Withdraw(ctx context.Context, sc scope.Scope, accountID string, amount decimal.Decimal, description string) (*models.LedgerEntry, error) {
	args := m.Called(ctx, sc, accountID, amount.String(), description)
	e, _ := args.Get(0).(*models.LedgerEntry)
	return e, args.Error(1)
}

func (m *MockLedger) Entries(ctx context.Context, sc scope.Scope, accountID string, limit, offset int) ([]models.LedgerEntry, error) {
	args := m.Called(ctx, sc, accountID, limit, offset)
	list, _ := args.Get(0).([]models.LedgerEntry)
	return list, args.Error(1)
}

type MockCards struct {
	mock.Mock
}

func (m *MockCards) AccountCard(ctx context.Context, sc scope.Scope, accountID string, size int) ([]byte, error) {
	args := m.Called(ctx, sc, accountID, size)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type MockSubscriptions struct {
	mock.Mock
}

func (m *MockSubscriptions) Activate(ctx context.Context, sc scope.Scope, in services.ActivateInput) (*models.Subscription, error) {
	args := m.Called(ctx, sc, in)
	s, _ := args.Get(0).(*models.Subscription)
	return s, args.Error(1)
}

func (m *MockSubscriptions) Suspend(ctx context.Context, sc scope.Scope, companyID, reason string) error {
	args := m.Called(ctx, sc, companyID, reason)
	return args.Error(0)
}

func (m *MockSubscriptions) Reactivate(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error) {
	args := m.Called(ctx, sc, companyID)
	s, _ := args.Get(0).(*models.Subscription)
	return s, args.Error(1)
}

func (m *MockSubscriptions) Cancel(ctx context.Context, sc scope.Scope, subscriptionID, reason string) (*models.Subscription, error) {
	args := m.Called(ctx, sc, subscriptionID, reason)
	s, _ := args.Get(0).(*models.Subscription)
	return s, args.Error(1)
}

func (m *MockSubscriptions) SweepExpired(ctx context.Context) (*models.SweepResult, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.SweepResult)
	return s, args.Error(1)
}

func (m *MockSubscriptions) Current(ctx context.Context, sc scope.Scope, companyID string) (*models.Subscription, error) {
	args := m.Called(ctx, sc, companyID)
	s, _ := args.Get(0).(*models.Subscription)
	return s, args.Error(1)
}

func (m *MockSubscriptions) History(ctx context.Context, sc scope.Scope, companyID string) ([]models.Subscription, error) {
	args := m.Called(ctx, sc, companyID)
	list, _ := args.Get(0).([]models.Subscription)
	return list, args.Error(1)
}

type MockAuth struct {
	mock.Mock
}

func (m *MockAuth) Login(ctx context.Context, email, password string) (*services.LoginResult, error) {
	args := m.Called(ctx, email, password)
	res, _ := args.Get(0).(*services.LoginResult)
	return res, args.Error(1)
}

func (m *MockAuth) Logout(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

type MockStatusSource struct {
	mock.Mock
}

func (m *MockStatusSource) CompanyStatus(ctx context.Context, companyID string) (models.CompanyStatus, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).(models.CompanyStatus), args.Error(1)
}
