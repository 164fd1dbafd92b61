package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GigSafe/internal/handlers"
	"GigSafe/internal/models"
	"GigSafe/internal/repository"
	"GigSafe/internal/routes"
	"GigSafe/internal/services"
)

const testSecret = "test-secret"

// fakeProvider is a single-transaction escrow rail whose allocation advances
// through the delivery states as the release flow drives it.
type fakeProvider struct {
	mu    sync.Mutex
	state string
	calls []string
}

func (p *fakeProvider) GetTransaction(_ context.Context, id string) (*services.ProviderTransaction, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return &services.ProviderTransaction{
		ID:          id,
		State:       services.TransactionFundsReceived,
		Allocations: []services.ProviderAllocation{{ID: "alloc-1", State: p.state}},
	}, nil
}

func (p *fakeProvider) advance(call, to string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	p.state = to
	return nil
}

func (p *fakeProvider) StartDelivery(context.Context, string) error {
	return p.advance("start", services.AllocationInitiated)
}

func (p *fakeProvider) CompleteDelivery(context.Context, string) error {
	return p.advance("complete", services.AllocationDelivered)
}

func (p *fakeProvider) AcceptDelivery(context.Context, string) error {
	return p.advance("accept", services.AllocationAccepted)
}

type testServer struct {
	app      *fiber.App
	store    *repository.MemoryStore
	provider *fakeProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	store.SeedUser(models.User{ID: "admin-1", Role: models.RoleAdmin, Email: "admin@gigsafe.test"})
	store.SeedUser(models.User{ID: "employer-1", Role: models.RoleEmployer, Email: "employer@gigsafe.test"})
	store.SeedUser(models.User{ID: "worker-1", Role: models.RoleWorker, Email: "worker@gigsafe.test"})
	store.SeedUser(models.User{ID: "worker-2", Role: models.RoleWorker, Email: "worker2@gigsafe.test"})
	store.SeedFeeConfiguration(models.FeeConfiguration{ID: "fee-1", Version: 1, PlatformCommissionPercent: 10, IsActive: true})

	provider := &fakeProvider{state: services.AllocationCreated}
	transactor := repository.NewTransactor(store, repository.RetryPolicy{
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, nil)
	settings := services.NewSettingsService(store, transactor, time.Now)
	notifier := services.NewNotificationService(store, nil, nil)
	deps := services.Dependencies{
		Store:           store,
		Transactor:      transactor,
		Provider:        provider,
		Config:          settings,
		Notifier:        notifier,
		ProviderTimeout: time.Second,
	}
	release := services.NewEscrowReleaseService(deps)
	completion := services.NewCompletionService(deps)
	mediator := services.NewDisputeMediator(deps, release)

	app := fiber.New()
	routes.SetupRoutes(app, routes.Handlers{
		Gigs:          handlers.NewGigHandler(completion, nil),
		Escrow:        handlers.NewEscrowHandler(services.NewFundingService(deps), completion, release, nil),
		Disputes:      handlers.NewDisputeHandler(completion, mediator, nil, nil),
		Files:         handlers.NewFileHandler(nil, nil),
		Wallet:        handlers.NewWalletHandler(services.NewWalletService(store), nil),
		Notifications: handlers.NewNotificationHandler(notifier, nil),
		Admin:         handlers.NewAdminHandler(settings, release, 50, nil),
	}, testSecret)

	return &testServer{app: app, store: store, provider: provider}
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func field(t *testing.T, body map[string]any, object, key string) any {
	t.Helper()
	nested, ok := body[object].(map[string]any)
	require.True(t, ok, "response has no %q object: %v", object, body)
	return nested[key]
}

// openGig posts a gig as employer-1 and applies to it as each worker. It
// returns the gig id and the application ids in worker order.
func (s *testServer) openGig(t *testing.T, amount float64, workers ...string) (string, []string) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/gigs", token(t, "employer-1", models.RoleEmployer), fiber.Map{
		"title":  "Paint the fence",
		"amount": amount,
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	gigID := field(t, body, "gig", "id").(string)

	var appIDs []string
	for _, worker := range workers {
		status, body = s.do(t, http.MethodPost, "/api/gigs/"+gigID+"/apply", token(t, worker, models.RoleWorker), fiber.Map{
			"proposed_rate": amount,
		})
		require.Equal(t, fiber.StatusCreated, status, body)
		appIDs = append(appIDs, field(t, body, "application", "id").(string))
	}
	return gigID, appIDs
}

// fundedApplication walks a gig through acceptance and funding for worker-1.
func (s *testServer) fundedApplication(t *testing.T, amount float64) string {
	t.Helper()
	employer := token(t, "employer-1", models.RoleEmployer)
	_, appIDs := s.openGig(t, amount, "worker-1")
	appID := appIDs[0]

	status, body := s.do(t, http.MethodPut, "/api/applications/"+appID+"/status", employer, fiber.Map{"status": "accepted"})
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = s.do(t, http.MethodPost, "/api/applications/"+appID+"/fund", employer, fiber.Map{
		"provider_transaction_id": "txn-1",
		"provider_allocation_id":  "alloc-1",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	return appID
}

func TestStoredIDsSurviveLaterRequests(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)
	gigID, appIDs := s.openGig(t, 300, "worker-1")

	// Longer paths reuse and overwrite the previous request's buffer.
	for i := 0; i < 3; i++ {
		status, _ := s.do(t, http.MethodPut, "/api/applications/"+strings.Repeat("0", 64)+"/status", employer, fiber.Map{"status": "accepted"})
		require.Equal(t, fiber.StatusNotFound, status)
	}

	app, err := s.store.GetApplication(context.Background(), appIDs[0])
	require.NoError(t, err)
	assert.Equal(t, gigID, app.GigID)

	status, body := s.do(t, http.MethodPut, "/api/applications/"+appIDs[0]+"/status", employer, fiber.Map{"status": "accepted"})
	assert.Equal(t, fiber.StatusOK, status, body)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/api/wallet/balance", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/wallet/balance", "not-a-jwt", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "worker-1"}).
		SignedString([]byte("some-other-secret"))
	require.NoError(t, err)
	status, _ = s.do(t, http.MethodGet, "/api/wallet/balance", forged, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/admin/disputes", token(t, "employer-1", models.RoleEmployer), nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Admin access required", body["error"])

	status, body = s.do(t, http.MethodGet, "/api/admin/disputes", token(t, "admin-1", models.RoleAdmin), nil)
	assert.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestCompletionApprovalReleasesEscrow(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)
	worker := token(t, "worker-1", models.RoleWorker)
	appID := s.fundedApplication(t, 600)

	status, body := s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/request", worker, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotNil(t, body["auto_release_at"])

	status, body = s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/approve", employer, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.InDelta(t, 540, body["net_amount"], 0.001)
	assert.InDelta(t, 60, body["platform_commission"], 0.001)
	assert.Equal(t, true, body["tradesafe_payout_triggered"])
	assert.Equal(t, []string{"start", "complete", "accept"}, s.provider.calls)

	status, body = s.do(t, http.MethodGet, "/api/wallet/balance", worker, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.InDelta(t, 540, field(t, body, "balance", "wallet_balance"), 0.001)
	assert.InDelta(t, 0, field(t, body, "balance", "pending_balance"), 0.001)
	assert.EqualValues(t, 1, field(t, body, "balance", "completed_gigs"))

	status, body = s.do(t, http.MethodGet, "/api/wallet/history?type=earnings", worker, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
}

func TestApproveRequiresEmployer(t *testing.T) {
	s := newTestServer(t)
	worker := token(t, "worker-1", models.RoleWorker)
	appID := s.fundedApplication(t, 600)

	status, _ := s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/request", worker, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/approve", worker, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Empty(t, s.provider.calls)
}

func TestSecondAcceptanceConflicts(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)
	_, appIDs := s.openGig(t, 300, "worker-1", "worker-2")

	status, _ := s.do(t, http.MethodPut, "/api/applications/"+appIDs[0]+"/status", employer, fiber.Map{"status": "accepted"})
	require.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, http.MethodPut, "/api/applications/"+appIDs[1]+"/status", employer, fiber.Map{"status": "accepted"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, services.ErrAlreadySelected.Error(), body["error"])
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)

	status, _ := s.do(t, http.MethodPost, "/api/gigs", employer, fiber.Map{"title": "No amount"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	_, appIDs := s.openGig(t, 300, "worker-1")
	status, _ = s.do(t, http.MethodPut, "/api/applications/"+appIDs[0]+"/status", employer, fiber.Map{"status": "completed"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPut, "/api/applications/missing/status", employer, fiber.Map{"status": "accepted"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestEmployerCannotApplyToOwnGig(t *testing.T) {
	s := newTestServer(t)
	gigID, _ := s.openGig(t, 300)

	status, _ := s.do(t, http.MethodPost, "/api/gigs/"+gigID+"/apply", token(t, "employer-1", models.RoleEmployer), fiber.Map{})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestDisputeAndAdminResolution(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)
	worker := token(t, "worker-1", models.RoleWorker)
	admin := token(t, "admin-1", models.RoleAdmin)
	appID := s.fundedApplication(t, 600)

	status, _ := s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/request", worker, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/dispute", employer, fiber.Map{"reason": "bad"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body := s.do(t, http.MethodPost, "/api/applications/"+appID+"/completion/dispute", employer, fiber.Map{
		"reason": "Only half of the fence was painted",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Nil(t, field(t, body, "application", "completion_auto_release_at"))

	status, body = s.do(t, http.MethodGet, "/api/admin/disputes", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = s.do(t, http.MethodPost, "/api/admin/disputes/"+appID+"/resolve", admin, fiber.Map{
		"in_favor_of": "worker",
		"notes":       "Photos show the work was done",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, field(t, body, "resolution", "release").(map[string]any)["tradesafe_payout_triggered"])

	status, body = s.do(t, http.MethodGet, "/api/admin/disputes", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 0, body["count"])
}

func TestEvidenceUploadWithoutStorage(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/applications/app-1/completion/evidence", token(t, "employer-1", models.RoleEmployer), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "No file provided", body["error"])
}

func TestNotificationsFlow(t *testing.T) {
	s := newTestServer(t)
	employer := token(t, "employer-1", models.RoleEmployer)
	s.openGig(t, 300, "worker-1", "worker-2")

	status, body := s.do(t, http.MethodGet, "/api/notifications/unread-count", employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 2, body["unread_count"])

	status, body = s.do(t, http.MethodGet, "/api/notifications?unread_only=true", employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	list := body["notifications"].([]any)
	require.Len(t, list, 2)
	firstID := list[0].(map[string]any)["id"].(string)

	status, _ = s.do(t, http.MethodPut, "/api/notifications/"+firstID+"/read", employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	_, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", employer, nil)
	assert.EqualValues(t, 1, body["unread_count"])

	status, _ = s.do(t, http.MethodPut, "/api/notifications/read-all", employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	_, body = s.do(t, http.MethodGet, "/api/notifications/unread-count", employer, nil)
	assert.EqualValues(t, 0, body["unread_count"])

	status, _ = s.do(t, http.MethodDelete, "/api/notifications/"+firstID, employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(t, http.MethodDelete, "/api/notifications/"+firstID, employer, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, http.MethodDelete, "/api/notifications/read-all", employer, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["deleted"])

	_, body = s.do(t, http.MethodGet, "/api/notifications", employer, nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestAdminSettings(t *testing.T) {
	s := newTestServer(t)
	admin := token(t, "admin-1", models.RoleAdmin)

	status, _ := s.do(t, http.MethodPut, "/api/admin/settings/auto-release", admin, fiber.Map{"days": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPut, "/api/admin/settings/auto-release", admin, fiber.Map{"days": 7})
	require.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, http.MethodPut, "/api/admin/fee-config", admin, fiber.Map{"commission_percent": 12.5})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.EqualValues(t, 2, field(t, body, "fee_configuration", "version"))

	status, body = s.do(t, http.MethodGet, "/api/admin/fee-config", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 7, body["auto_release_days"])
	assert.InDelta(t, 12.5, field(t, body, "fee_configuration", "platform_commission_percent"), 0.001)

	status, body = s.do(t, http.MethodPost, "/api/admin/auto-release/sweep", admin, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.NotNil(t, body["summary"])
}
