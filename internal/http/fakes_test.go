package httpapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"tubematch/internal/billing"
	"tubematch/internal/config"
	"tubematch/internal/identity"
	"tubematch/internal/models"
	"tubematch/internal/services"
	"tubematch/internal/token"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testClaimSecret = "test-claim-secret"

// fakeIdentity accepts code C1 and the credentials session-U1 and session-U2.
type fakeIdentity struct{}

func (fakeIdentity) Name() string { return "google" }

func (fakeIdentity) SignInURL(state string) string {
	return "https://idp.test/authorize?state=" + state
}

func (fakeIdentity) Exchange(_ context.Context, code string) (string, error) {
	switch code {
	case "":
		return "", identity.ErrMissingCode
	case "C1":
		return "session-U1", nil
	default:
		return "", identity.ErrInvalidSession
	}
}

func (fakeIdentity) Resolve(_ context.Context, credential string) (models.Identity, error) {
	switch credential {
	case "":
		return models.Identity{}, identity.ErrUnauthenticated
	case "session-U1":
		return models.Identity{UserID: "U1", Email: "u1@example.com", DisplayName: "User One"}, nil
	case "session-U2":
		return models.Identity{UserID: "U2", Email: "u2@example.com", DisplayName: "User Two"}, nil
	case "broken":
		return models.Identity{}, fmt.Errorf("userinfo: %w", identity.ErrProviderFailure)
	default:
		return models.Identity{}, identity.ErrInvalidSession
	}
}

// fakeBilling accepts deliveries signed "good" and answers checkout lookups
// with a monthly plan.
type fakeBilling struct {
	mu        sync.Mutex
	event     billing.Event
	checkouts []billing.CheckoutRequest
}

func (f *fakeBilling) CreateCheckout(_ context.Context, req billing.CheckoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkouts = append(f.checkouts, req)
	return "https://checkout.test/cs_1", nil
}

func (f *fakeBilling) ParseEvent(_ []byte, signature string) (billing.Event, error) {
	if signature != "good" {
		return billing.Event{}, billing.ErrInvalidSignature
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.event, nil
}

func (f *fakeBilling) CheckoutLineItems(context.Context, string) ([]billing.LineItemPrice, error) {
	return []billing.LineItemPrice{{PriceID: "price_m", Interval: "month"}}, nil
}

func (f *fakeBilling) SubscriptionPeriod(context.Context, string) (time.Time, time.Time, error) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

func (f *fakeBilling) deliver(evt billing.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.event = evt
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, req models.AnalysisRequest) ([]models.VideoAnalysis, error) {
	args := m.Called(ctx, req)
	out, _ := args.Get(0).([]models.VideoAnalysis)
	return out, args.Error(1)
}

// memStore keeps only what the oracle and reconciler read and write.
type memStore struct {
	mu      sync.Mutex
	records map[string]models.BillingRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.BillingRecord)}
}

func (m *memStore) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	return ok && rec.Status == models.StatusActive, nil
}

func (m *memStore) GetBillingRecord(_ context.Context, userID string) (models.BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return models.BillingRecord{}, services.ErrNotFound
	}
	return rec, nil
}

func (m *memStore) UserIDByCustomer(_ context.Context, customerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.StripeCustomerID == customerID {
			return rec.UserID, nil
		}
	}
	return "", services.ErrNotFound
}

func (m *memStore) UpsertBillingRecord(_ context.Context, rec models.BillingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.UserID] = rec
	return nil
}

func (m *memStore) ApplySubscriptionPatch(_ context.Context, userID string, patch models.SubscriptionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return services.ErrNotFound
	}
	rec.Status = patch.Status
	rec.CurrentPeriodStart = patch.CurrentPeriodStart
	rec.CurrentPeriodEnd = patch.CurrentPeriodEnd
	rec.CancelAtPeriodEnd = patch.CancelAtPeriodEnd
	m.records[userID] = rec
	return nil
}

func (m *memStore) ExpireSubscription(_ context.Context, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return services.ErrNotFound
	}
	rec.Status = models.StatusExpired
	m.records[userID] = rec
	return nil
}

func (m *memStore) put(userID, customerID, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID] = models.BillingRecord{
		UserID:           userID,
		StripeCustomerID: customerID,
		PlanType:         models.PlanMonthly,
		Status:           status,
	}
}

type testEnv struct {
	handler  http.Handler
	codec    *token.Codec
	store    *memStore
	billing  *fakeBilling
	analyzer *mockAnalyzer
}

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		ClaimSecret:        testClaimSecret,
		StripePriceMonthly: "price_m",
		StripePriceYearly:  "price_y",
		StripeSuccessURL:   "https://app.test/checkout-success",
		StripeCancelURL:    "https://app.test/dashboard",
		CORSOrigins:        []string{"chrome-extension://abc"},
		LoginRedirect:      "/login",
		DashboardRedirect:  "/dashboard",
	}
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	codec, err := token.NewCodec(testClaimSecret)
	require.NoError(t, err)

	log := discard()
	store := newMemStore()
	bill := &fakeBilling{}
	oracle := services.NewOracle(store, codec, false)
	analyzer := &mockAnalyzer{}

	srv := NewServer(cfg, Deps{
		Identity:   fakeIdentity{},
		Oracle:     oracle,
		Reconciler: services.NewReconciler(store, bill, oracle, log),
		Billing:    bill,
		Analyzer:   analyzer,
		Codec:      codec,
		Log:        log,
	})
	return &testEnv{
		handler:  srv.Routes(),
		codec:    codec,
		store:    store,
		billing:  bill,
		analyzer: analyzer,
	}
}

func (e *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) subscriptionCookie(t *testing.T, userID string, active bool) *http.Cookie {
	t.Helper()
	raw, err := e.codec.Mint(userID, active)
	require.NoError(t, err)
	return &http.Cookie{Name: services.SubscriptionCookie, Value: raw}
}

func sessionCookie(credential string) *http.Cookie {
	return &http.Cookie{Name: SessionCookie, Value: credential}
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *testEnv) webhook(payload, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/billing", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}
