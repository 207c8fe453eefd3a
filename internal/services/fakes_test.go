package services

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tubematch/internal/billing"
	"tubematch/internal/models"

	"github.com/stretchr/testify/mock"
)

// memStore mirrors the Postgres store semantics in memory.
type memStore struct {
	mu        sync.Mutex
	records   map[string]models.BillingRecord
	activeErr error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.BillingRecord)}
}

func (m *memStore) HasActiveSubscription(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return false, m.activeErr
	}
	rec, ok := m.records[userID]
	return ok && rec.Status == models.StatusActive, nil
}

func (m *memStore) GetBillingRecord(_ context.Context, userID string) (models.BillingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return models.BillingRecord{}, ErrNotFound
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
	return "", ErrNotFound
}

func (m *memStore) UpsertBillingRecord(_ context.Context, rec models.BillingRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[rec.UserID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}
	m.records[rec.UserID] = rec
	return nil
}

func (m *memStore) ApplySubscriptionPatch(_ context.Context, userID string, patch models.SubscriptionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = patch.Status
	rec.CurrentPeriodStart = patch.CurrentPeriodStart
	rec.CurrentPeriodEnd = patch.CurrentPeriodEnd
	rec.CancelAtPeriodEnd = patch.CancelAtPeriodEnd
	rec.UpdatedAt = patch.UpdatedAt
	m.records[userID] = rec
	return nil
}

func (m *memStore) ExpireSubscription(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = models.StatusExpired
	rec.UpdatedAt = at
	m.records[userID] = rec
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockCheckoutDetails struct {
	mock.Mock
}

func (m *mockCheckoutDetails) CheckoutLineItems(ctx context.Context, sessionID string) ([]billing.LineItemPrice, error) {
	args := m.Called(ctx, sessionID)
	items, _ := args.Get(0).([]billing.LineItemPrice)
	return items, args.Error(1)
}

func (m *mockCheckoutDetails) SubscriptionPeriod(ctx context.Context, subscriptionID string) (time.Time, time.Time, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Get(0).(time.Time), args.Get(1).(time.Time), args.Error(2)
}

type failingRefresher struct {
	calls int
}

func (f *failingRefresher) Refresh(context.Context, string) (*http.Cookie, bool, error) {
	f.calls++
	return nil, false, io.ErrUnexpectedEOF
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
