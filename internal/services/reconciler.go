package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tubematch/internal/billing"
	"tubematch/internal/lib/sl"
	"tubematch/internal/models"
)

// Outcome reports what a delivered event did to the billing records.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeIgnored covers event types with no handler and events that
	// cannot be attributed to a user.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeNoop is a handled event for a customer with no billing record.
	OutcomeNoop Outcome = "noop"
)

// CheckoutDetails is the part of the billing provider the reconciler reads
// back when a checkout completes.
type CheckoutDetails interface {
	CheckoutLineItems(ctx context.Context, sessionID string) ([]billing.LineItemPrice, error)
	SubscriptionPeriod(ctx context.Context, subscriptionID string) (start, end time.Time, err error)
}

// Refresher re-derives the subscription claim for a user.
type Refresher interface {
	Refresh(ctx context.Context, userID string) (*http.Cookie, bool, error)
}

// Reconciler applies verified billing events to the billing records.
type Reconciler struct {
	store    BillingStore
	provider CheckoutDetails
	oracle   Refresher
	log      *slog.Logger
	now      func() time.Time
}

// NewReconciler wires the store, the provider read-back and the claim refresher.
func NewReconciler(store BillingStore, provider CheckoutDetails, oracle Refresher, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		provider: provider,
		oracle:   oracle,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile applies a verified billing event. Handler errors are returned so
// the provider redelivers; every handler is safe to repeat.
func (r *Reconciler) Reconcile(ctx context.Context, evt billing.Event) (Outcome, error) {
	log := r.log.With(slog.String("event_id", evt.ID), slog.String("event_type", evt.Type))

	switch evt.Type {
	case billing.EventCheckoutCompleted:
		if evt.Checkout == nil {
			log.Warn("checkout event without session")
			return OutcomeIgnored, nil
		}
		return r.checkoutCompleted(ctx, log, evt)
	case billing.EventSubscriptionUpdated:
		if evt.Subscription == nil {
			log.Warn("subscription event without subscription")
			return OutcomeIgnored, nil
		}
		return r.subscriptionUpdated(ctx, log, evt.Subscription)
	case billing.EventSubscriptionDeleted:
		if evt.Subscription == nil {
			log.Warn("subscription event without subscription")
			return OutcomeIgnored, nil
		}
		return r.subscriptionDeleted(ctx, log, evt.Subscription)
	default:
		log.Debug("unhandled event type")
		return OutcomeIgnored, nil
	}
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, log *slog.Logger, evt billing.Event) (Outcome, error) {
	const op = "services.Reconciler.checkoutCompleted"
	c := evt.Checkout
	if c.ClientReferenceID == "" {
		log.Warn("checkout session has no client reference", slog.String("session_id", c.SessionID))
		return OutcomeIgnored, nil
	}
	if c.CustomerID == "" {
		log.Warn("checkout session has no customer", slog.String("session_id", c.SessionID))
		return OutcomeIgnored, nil
	}

	items, err := r.provider.CheckoutLineItems(ctx, c.SessionID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	plan, ok := billing.PlanFor(c.Mode, items)
	if !ok {
		log.Warn("checkout session has no usable line items", slog.String("session_id", c.SessionID), slog.Int("items", len(items)))
		return OutcomeIgnored, nil
	}

	// Stamp the record with the event's own time so a redelivery writes the
	// same row.
	stamp := evt.Created
	if stamp.IsZero() {
		stamp = r.now()
	}
	rec := models.BillingRecord{
		UserID:           c.ClientReferenceID,
		StripeCustomerID: c.CustomerID,
		PlanType:         plan,
		Status:           models.StatusActive,
		UpdatedAt:        stamp,
	}
	if plan == models.PlanLifetime || c.SubscriptionID == "" {
		start := stamp
		rec.CurrentPeriodStart = &start
	} else {
		start, end, err := r.provider.SubscriptionPeriod(ctx, c.SubscriptionID)
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		subID := c.SubscriptionID
		rec.StripeSubscriptionID = &subID
		rec.CurrentPeriodStart = &start
		rec.CurrentPeriodEnd = &end
	}

	if err := r.store.UpsertBillingRecord(ctx, rec); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("billing record activated",
		slog.String("user_id", rec.UserID),
		slog.String("plan_type", plan),
	)
	r.refresh(ctx, log, rec.UserID)
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, log *slog.Logger, sub *billing.SubscriptionChange) (Outcome, error) {
	const op = "services.Reconciler.subscriptionUpdated"
	userID, err := r.userFor(ctx, sub.CustomerID)
	if errors.Is(err, ErrNotFound) {
		log.Info("no billing record for customer", slog.String("customer_id", sub.CustomerID))
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	patch := models.SubscriptionPatch{
		Status:             sub.Status,
		CurrentPeriodStart: timePtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:   timePtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		UpdatedAt:          r.now(),
	}
	if err := r.store.ApplySubscriptionPatch(ctx, userID, patch); err != nil {
		if errors.Is(err, ErrNotFound) {
			return OutcomeNoop, nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription updated", slog.String("user_id", userID), slog.String("status", sub.Status))
	r.refresh(ctx, log, userID)
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, log *slog.Logger, sub *billing.SubscriptionChange) (Outcome, error) {
	const op = "services.Reconciler.subscriptionDeleted"
	userID, err := r.userFor(ctx, sub.CustomerID)
	if errors.Is(err, ErrNotFound) {
		log.Info("no billing record for customer", slog.String("customer_id", sub.CustomerID))
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := r.store.ExpireSubscription(ctx, userID, r.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			return OutcomeNoop, nil
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	log.Info("subscription expired", slog.String("user_id", userID))
	r.refresh(ctx, log, userID)
	return OutcomeApplied, nil
}

func (r *Reconciler) userFor(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", ErrNotFound
	}
	return r.store.UserIDByCustomer(ctx, customerID)
}

// refresh re-derives the claim once the record is written. The client picks
// it up on its next verify call, so a failure here only gets logged.
func (r *Reconciler) refresh(ctx context.Context, log *slog.Logger, userID string) {
	_, active, err := r.oracle.Refresh(ctx, userID)
	if err != nil {
		log.Error("claim refresh failed", slog.String("user_id", userID), sl.Err(err))
		return
	}
	log.Debug("claim refreshed", slog.String("user_id", userID), slog.Bool("has_active_subscription", active))
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
