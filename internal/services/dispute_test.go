package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"GigSafe/internal/models"
)

func TestResolveDisputeForWorkerReleasesOnce(t *testing.T) {
	f := newFixture(t)
	f.seedDisputed(t, 1000)
	f.provider.On("GetTransaction", mock.Anything, "txn-1").Return(nil, errors.New("unavailable"))

	res, err := f.mediator.ResolveDisputeInFavorOfWorker(context.Background(), "app-1", "admin-1", "Photos show the work was done")
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionApproved, res.Resolution)
	require.NotNil(t, res.Release)
	assert.Equal(t, TriggerDisputeResolution, res.Release.Trigger)

	app := f.application(t, "app-1")
	assert.Equal(t, models.ApplicationCompleted, app.Status)
	require.NotNil(t, app.CompletionResolution)
	assert.Equal(t, models.ResolutionApproved, *app.CompletionResolution)
	require.NotNil(t, app.CompletionResolvedBy)
	assert.Equal(t, "admin-1", *app.CompletionResolvedBy)
	require.NotNil(t, app.CompletionResolutionNotes)

	before := *f.user(t, "worker-1")
	employerBefore := *f.user(t, "employer-1")

	_, err = f.mediator.ResolveDisputeInFavorOfWorker(context.Background(), "app-1", "admin-1", "")
	require.ErrorIs(t, err, ErrAlreadyResolved)

	after := f.user(t, "worker-1")
	assert.Equal(t, before.WalletBalance, after.WalletBalance)
	assert.Equal(t, before.PendingBalance, after.PendingBalance)
	assert.Equal(t, before.TotalEarnings, after.TotalEarnings)
	assert.Equal(t, employerBefore.PendingBalance, f.user(t, "employer-1").PendingBalance)
	assert.Equal(t, 900.0, after.WalletBalance)
}

func TestResolveDisputeRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.seedDisputed(t, 1000)

	_, err := f.mediator.ResolveDisputeInFavorOfWorker(context.Background(), "app-1", "employer-1", "")
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.mediator.ResolveDisputeInFavorOfEmployer(context.Background(), "app-1", "worker-1", "Remedy the fence")
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, f.application(t, "app-1").IsDisputed())
}

func TestResolveDisputeWithoutDispute(t *testing.T) {
	f := newFixture(t)
	f.seedRequested(t, 1000)

	_, err := f.mediator.ResolveDisputeInFavorOfWorker(context.Background(), "app-1", "admin-1", "")
	require.ErrorIs(t, err, ErrNoActiveDispute)
	_, err = f.mediator.ResolveDisputeInFavorOfEmployer(context.Background(), "app-1", "admin-1", "Remedy the fence")
	require.ErrorIs(t, err, ErrNoActiveDispute)
	assert.Equal(t, 0.0, f.user(t, "worker-1").WalletBalance)
}

func TestResolveDisputeForEmployerReopensCompletion(t *testing.T) {
	f := newFixture(t)
	f.seedDisputed(t, 1000)
	ctx := context.Background()

	_, err := f.mediator.ResolveDisputeInFavorOfEmployer(ctx, "app-1", "admin-1", "")
	require.ErrorIs(t, err, ErrValidation)

	res, err := f.mediator.ResolveDisputeInFavorOfEmployer(ctx, "app-1", "admin-1", "Paint the second coat first")
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionRejected, res.Resolution)
	assert.Nil(t, res.Release)

	app := f.application(t, "app-1")
	assert.Equal(t, models.ApplicationFunded, app.Status)
	assert.Equal(t, models.PaymentInEscrow, app.PaymentStatus)
	assert.Nil(t, app.CompletionRequestedAt)
	assert.Nil(t, app.CompletionRequestedBy)
	assert.Nil(t, app.CompletionDisputedAt)
	assert.Nil(t, app.CompletionDisputeReason)
	require.NotNil(t, app.CompletionResolution)
	assert.Equal(t, models.ResolutionRejected, *app.CompletionResolution)
	assert.Equal(t, models.GigInProgress, f.gig(t, "gig-1").Status)
	assert.Equal(t, 1000.0, f.user(t, "worker-1").PendingBalance)

	_, err = f.mediator.ResolveDisputeInFavorOfEmployer(ctx, "app-1", "admin-1", "Again")
	require.ErrorIs(t, err, ErrAlreadyResolved)

	// The worker can try again once the work is remedied.
	again, err := f.completion.RequestCompletionByWorker(ctx, "app-1", "worker-1")
	require.NoError(t, err)
	assert.Nil(t, again.CompletionResolvedAt)
	assert.NotNil(t, again.CompletionAutoReleaseAt)
}

func TestGetAllDisputedApplications(t *testing.T) {
	f := newFixture(t)
	f.seedDisputed(t, 1000)

	disputes, err := f.mediator.GetAllDisputedApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, disputes, 1)
	assert.Equal(t, "app-1", disputes[0].ID)

	_, err = f.mediator.ResolveDisputeInFavorOfEmployer(context.Background(), "app-1", "admin-1", "Redo the work")
	require.NoError(t, err)
	disputes, err = f.mediator.GetAllDisputedApplications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, disputes)
}
