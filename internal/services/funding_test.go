package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"GigSafe/internal/models"
	"GigSafe/internal/repository"
)

func seedAccepted(t *testing.T, f *fixture) {
	t.Helper()
	seedOpenGig(f, "worker-1")
	_, err := f.completion.UpdateApplicationStatus(context.Background(), "app-1", "employer-1", models.ApplicationAccepted)
	require.NoError(t, err)
}

func fundRequest() FundRequest {
	return FundRequest{
		ApplicationID:         "app-1",
		EmployerID:            "employer-1",
		ProviderTransactionID: "txn-1",
		ProviderAllocationID:  "alloc-1",
	}
}

func TestFundApplicationHoldsEscrow(t *testing.T) {
	f := newFixture(t)
	seedAccepted(t, f)
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(fundedTransaction(AllocationCreated), nil).Once()

	payment, err := f.funding.FundApplication(context.Background(), fundRequest())
	require.NoError(t, err)
	assert.Equal(t, 600.0, payment.Amount)
	assert.Equal(t, "alloc-1", payment.ProviderAllocationID)
	assert.Equal(t, models.PaymentInEscrow, payment.Status)

	app := f.application(t, "app-1")
	assert.Equal(t, models.ApplicationFunded, app.Status)
	assert.Equal(t, models.PaymentInEscrow, app.PaymentStatus)
	assert.Equal(t, 600.0, app.AgreedRate)
	require.NotNil(t, app.PaymentID)
	assert.Equal(t, payment.ID, *app.PaymentID)

	gig := f.gig(t, "gig-1")
	assert.Equal(t, models.GigInProgress, gig.Status)
	assert.Equal(t, 600.0, gig.EscrowAmount)
	assert.Equal(t, 600.0, f.user(t, "worker-1").PendingBalance)
	assert.Equal(t, 600.0, f.user(t, "employer-1").PendingBalance)

	pending, err := f.store.FindPaymentHistory(context.Background(), repository.PaymentHistoryQuery{
		UserID: "worker-1", Status: models.HistoryPending,
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.HistoryEarnings, pending[0].Type)
	f.provider.AssertExpectations(t)
}

func TestFundThenReleaseEndToEnd(t *testing.T) {
	f := newFixture(t)
	seedAccepted(t, f)
	ctx := context.Background()
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(fundedTransaction(AllocationCreated), nil)
	f.provider.On("StartDelivery", mock.Anything, "alloc-1").Return(nil).Once()
	f.provider.On("CompleteDelivery", mock.Anything, "alloc-1").Return(nil).Once()
	f.provider.On("AcceptDelivery", mock.Anything, "alloc-1").Return(nil).Once()

	_, err := f.funding.FundApplication(ctx, fundRequest())
	require.NoError(t, err)
	_, err = f.completion.RequestCompletionByWorker(ctx, "app-1", "worker-1")
	require.NoError(t, err)
	result, err := f.release.ApproveCompletion(ctx, "app-1", "employer-1")
	require.NoError(t, err)
	assert.True(t, result.TradeSafePayoutTriggered)

	worker := f.user(t, "worker-1")
	assert.Equal(t, 540.0, worker.WalletBalance)
	assert.Equal(t, 0.0, worker.PendingBalance)
	assert.Equal(t, 0.0, f.user(t, "employer-1").PendingBalance)

	earnings, err := f.store.FindPaymentHistory(ctx, repository.PaymentHistoryQuery{UserID: "worker-1", Type: models.HistoryEarnings})
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, models.HistoryCompleted, earnings[0].Status)
	assert.Equal(t, 540.0, earnings[0].Amount)
}

func TestFundApplicationRequiresFundsReceived(t *testing.T) {
	f := newFixture(t)
	seedAccepted(t, f)
	writes := f.store.Writes()
	txn := fundedTransaction(AllocationCreated)
	txn.State = "CREATED"
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(txn, nil).Once()

	_, err := f.funding.FundApplication(context.Background(), fundRequest())
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, writes, f.store.Writes())
	assert.Equal(t, models.ApplicationAccepted, f.application(t, "app-1").Status)
}

func TestFundApplicationSurfacesProviderErrors(t *testing.T) {
	f := newFixture(t)
	seedAccepted(t, f)
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(nil, errors.New("connection reset")).Once()

	_, err := f.funding.FundApplication(context.Background(), fundRequest())
	require.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, 0.0, f.user(t, "worker-1").PendingBalance)
}

func TestFundApplicationGuards(t *testing.T) {
	f := newFixture(t)
	seedOpenGig(f, "worker-1")

	_, err := f.funding.FundApplication(context.Background(), fundRequest())
	require.ErrorIs(t, err, ErrInvalidState, "pending applications cannot be funded")

	req := fundRequest()
	req.EmployerID = "worker-1"
	_, err = f.funding.FundApplication(context.Background(), req)
	require.ErrorIs(t, err, ErrUnauthorized)

	req = fundRequest()
	req.ProviderTransactionID = ""
	_, err = f.funding.FundApplication(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)

	f.provider.AssertNotCalled(t, "GetTransaction", mock.Anything, mock.Anything)
}

func TestFundApplicationUnknownAllocation(t *testing.T) {
	f := newFixture(t)
	seedAccepted(t, f)
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(fundedTransaction(AllocationCreated), nil).Once()

	req := fundRequest()
	req.ProviderAllocationID = "alloc-9"
	_, err := f.funding.FundApplication(context.Background(), req)
	require.ErrorIs(t, err, ErrValidation)
}
