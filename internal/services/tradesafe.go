package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Provider-defined states the release flow acts on.
const (
	TransactionFundsReceived = "FUNDS_RECEIVED"

	AllocationCreated   = "CREATED"
	AllocationInitiated = "INITIATED"
	AllocationDelivered = "DELIVERED"
	AllocationAccepted  = "ACCEPTED"
)

type ProviderAllocation struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

type ProviderTransaction struct {
	ID          string               `json:"id"`
	State       string               `json:"state"`
	Allocations []ProviderAllocation `json:"allocations"`
}

// Allocation finds an allocation by id. An empty id matches a transaction
// with exactly one allocation.
func (t ProviderTransaction) Allocation(id string) (ProviderAllocation, bool) {
	if id == "" {
		if len(t.Allocations) == 1 {
			return t.Allocations[0], true
		}
		return ProviderAllocation{}, false
	}
	for _, a := range t.Allocations {
		if a.ID == id {
			return a, true
		}
	}
	return ProviderAllocation{}, false
}

// EscrowProvider is the remote trust-account rail. Its state is always read
// live and never cached locally.
type EscrowProvider interface {
	GetTransaction(ctx context.Context, id string) (*ProviderTransaction, error)
	StartDelivery(ctx context.Context, allocationID string) error
	CompleteDelivery(ctx context.Context, allocationID string) error
	AcceptDelivery(ctx context.Context, allocationID string) error
}

type TradeSafeConfig struct {
	APIURL       string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RetryMax     int
}

type TradeSafeService struct {
	apiURL string
	client *retryablehttp.Client
}

const (
	transactionQuery = `query transaction($id: ID!) {
  transaction(id: $id) { id state allocations { id state } }
}`
	startDeliveryMutation = `mutation allocationStartDelivery($id: ID!) {
  allocationStartDelivery(id: $id) { id state }
}`
	completeDeliveryMutation = `mutation allocationCompleteDelivery($id: ID!) {
  allocationCompleteDelivery(id: $id) { id state }
}`
	acceptDeliveryMutation = `mutation allocationAcceptDelivery($id: ID!) {
  allocationAcceptDelivery(id: $id) { id state }
}`
)

// NewTradeSafeService builds a GraphQL client authenticated with OAuth2 client
// credentials. Transient HTTP failures are retried by go-retryablehttp.
func NewTradeSafeService(cfg TradeSafeConfig, log *zap.Logger) *TradeSafeService {
	tokenClient := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, tokenClient)

	credentials := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	httpClient := credentials.Client(ctx)
	httpClient.Timeout = cfg.Timeout

	return newTradeSafeService(cfg.APIURL, httpClient, cfg.RetryMax, log)
}

func newTradeSafeService(apiURL string, httpClient *http.Client, retryMax int, log *zap.Logger) *TradeSafeService {
	if log == nil {
		log = zap.NewNop()
	}
	client := retryablehttp.NewClient()
	client.HTTPClient = httpClient
	client.RetryMax = retryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = retryLogger{log: log.Named("tradesafe")}
	client.CheckRetry = checkRetry

	return &TradeSafeService{apiURL: apiURL, client: client}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

func (s *TradeSafeService) GetTransaction(ctx context.Context, id string) (*ProviderTransaction, error) {
	var out struct {
		Transaction *ProviderTransaction `json:"transaction"`
	}
	if err := s.makeRequest(ctx, transactionQuery, map[string]any{"id": id}, &out); err != nil {
		return nil, err
	}
	if out.Transaction == nil {
		return nil, fmt.Errorf("%w: transaction %s not found", ErrProvider, id)
	}
	return out.Transaction, nil
}

// Delivery mutations are sent once. A lost response leaves the allocation
// state unknown, and the next release attempt reads it back from the provider
// before deciding which step to send.
func (s *TradeSafeService) StartDelivery(ctx context.Context, allocationID string) error {
	return s.makeRequest(withoutRetry(ctx), startDeliveryMutation, map[string]any{"id": allocationID}, nil)
}

func (s *TradeSafeService) CompleteDelivery(ctx context.Context, allocationID string) error {
	return s.makeRequest(withoutRetry(ctx), completeDeliveryMutation, map[string]any{"id": allocationID}, nil)
}

func (s *TradeSafeService) AcceptDelivery(ctx context.Context, allocationID string) error {
	return s.makeRequest(withoutRetry(ctx), acceptDeliveryMutation, map[string]any{"id": allocationID}, nil)
}

type noRetryKey struct{}

func withoutRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

// checkRetry applies the default policy to reads only.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if noRetry, _ := ctx.Value(noRetryKey{}).(bool); noRetry {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// makeRequest posts one GraphQL operation. Every failure is reported as ErrProvider.
func (s *TradeSafeService) makeRequest(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("%w: marshal request: %v", ErrProvider, err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, truncate(string(raw), 200))
	}

	var result graphQLResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if len(result.Errors) > 0 {
		messages := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("%w: %s", ErrProvider, strings.Join(messages, "; "))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(result.Data, out); err != nil {
		return fmt.Errorf("%w: decode data: %v", ErrProvider, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// retryLogger adapts zap to retryablehttp.LeveledLogger.
type retryLogger struct {
	log *zap.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Infow(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Warnw(msg, keysAndValues...)
}
