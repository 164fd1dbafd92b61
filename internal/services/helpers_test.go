package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetTransaction(ctx context.Context, id string) (*ProviderTransaction, error) {
	args := m.Called(ctx, id)
	txn, _ := args.Get(0).(*ProviderTransaction)
	return txn, args.Error(1)
}

func (m *mockProvider) StartDelivery(ctx context.Context, allocationID string) error {
	return m.Called(ctx, allocationID).Error(0)
}

func (m *mockProvider) CompleteDelivery(ctx context.Context, allocationID string) error {
	return m.Called(ctx, allocationID).Error(0)
}

func (m *mockProvider) AcceptDelivery(ctx context.Context, allocationID string) error {
	return m.Called(ctx, allocationID).Error(0)
}

type fixture struct {
	store      *repository.MemoryStore
	provider   *mockProvider
	clock      *time.Time
	deps       Dependencies
	release    *EscrowReleaseService
	completion *CompletionService
	mediator   *DisputeMediator
	funding    *FundingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	provider := &mockProvider{}
	clock := testNow
	f := &fixture{store: store, provider: provider, clock: &clock}

	now := func() time.Time { return *f.clock }
	f.deps = Dependencies{
		Store: store,
		Transactor: repository.NewTransactor(store, repository.RetryPolicy{
			MaxRetries:      5,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
		}, nil),
		Provider:        provider,
		Notifier:        NewNotificationService(store, nil, nil),
		Now:             now,
		ProviderTimeout: time.Second,
	}
	f.release = NewEscrowReleaseService(f.deps)
	f.completion = NewCompletionService(f.deps)
	f.mediator = NewDisputeMediator(f.deps, f.release)
	f.funding = NewFundingService(f.deps)

	store.SeedUser(models.User{ID: "admin-1", Role: models.RoleAdmin, Email: "admin@gigsafe.test"})
	store.SeedUser(models.User{ID: "employer-1", Role: models.RoleEmployer, Email: "employer@gigsafe.test"})
	store.SeedUser(models.User{ID: "worker-1", Role: models.RoleWorker, Email: "worker@gigsafe.test"})
	store.SeedFeeConfiguration(models.FeeConfiguration{ID: "fee-1", Version: 1, PlatformCommissionPercent: 10, IsActive: true})
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

// seedFunded seeds a gig funded for worker-1 with both parties' pending
// balances holding the escrow.
func (f *fixture) seedFunded(t *testing.T, amount float64) {
	t.Helper()
	worker := "worker-1"
	paymentID := "payment-1"

	f.store.SeedUser(models.User{ID: "employer-1", Role: models.RoleEmployer, PendingBalance: amount})
	f.store.SeedUser(models.User{ID: "worker-1", Role: models.RoleWorker, PendingBalance: amount})
	f.store.SeedGig(models.Gig{
		ID: "gig-1", EmployerID: "employer-1", Title: "Garden cleanup",
		EscrowAmount: amount, AssignedTo: &worker, Status: models.GigInProgress,
	})
	f.store.SeedApplication(models.Application{
		ID: "app-1", GigID: "gig-1", ApplicantID: worker, EmployerID: "employer-1",
		AgreedRate: amount, PaymentID: &paymentID,
		PaymentStatus: models.PaymentInEscrow, Status: models.ApplicationFunded,
	})
	f.store.SeedPayment(models.Payment{
		ID: paymentID, ApplicationID: "app-1", GigID: "gig-1", EmployerID: "employer-1", WorkerID: worker,
		Amount: amount, Currency: "ZAR", Provider: "tradesafe",
		ProviderTransactionID: "txn-1", ProviderAllocationID: "alloc-1", Status: models.PaymentInEscrow,
	})
	f.store.SeedPaymentHistory(models.PaymentHistory{
		ID: "history-1", UserID: worker, GigID: "gig-1", ApplicationID: "app-1", PaymentID: paymentID,
		Type: models.HistoryEarnings, Status: models.HistoryPending, Amount: amount,
	})
}

// seedRequested seeds a funded application with an open completion request.
func (f *fixture) seedRequested(t *testing.T, amount float64) {
	t.Helper()
	f.seedFunded(t, amount)
	_, err := f.completion.RequestCompletionByWorker(context.Background(), "app-1", "worker-1")
	require.NoError(t, err)
}

func (f *fixture) seedDisputed(t *testing.T, amount float64) {
	t.Helper()
	f.seedRequested(t, amount)
	_, err := f.completion.DisputeCompletion(context.Background(), "app-1", "employer-1", "The fence was never painted", "")
	require.NoError(t, err)
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) application(t *testing.T, id string) *models.Application {
	t.Helper()
	a, err := f.store.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return a
}

func (f *fixture) gig(t *testing.T, id string) *models.Gig {
	t.Helper()
	g, err := f.store.GetGig(context.Background(), id)
	require.NoError(t, err)
	return g
}

func fundedTransaction(allocationState string) *ProviderTransaction {
	return &ProviderTransaction{
		ID:          "txn-1",
		State:       TransactionFundsReceived,
		Allocations: []ProviderAllocation{{ID: "alloc-1", State: allocationState}},
	}
}
