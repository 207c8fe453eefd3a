// Package billing adapts the Stripe API to the small set of capabilities the
// reconciler and checkout flow need, and turns signed webhook deliveries
// into provider-neutral events.
package billing

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrNotConfigured    = errors.New("billing provider not configured")
	ErrUnknownPlan      = errors.New("unknown plan")
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is a verified webhook delivery. Exactly one of Checkout or
// Subscription is set for the event types the reconciler handles.
type Event struct {
	ID           string
	Type         string
	Created      time.Time
	Checkout     *CheckoutCompleted
	Subscription *SubscriptionChange
}

type CheckoutCompleted struct {
	SessionID         string
	ClientReferenceID string
	CustomerID        string
	SubscriptionID    string
	Mode              string
}

type SubscriptionChange struct {
	SubscriptionID     string
	CustomerID         string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// LineItemPrice is the pricing shape of a purchased line item.
type LineItemPrice struct {
	PriceID  string
	Interval string // "month", "year" or empty for one-time prices
}

type CheckoutRequest struct {
	UserID     string
	Email      string
	PriceID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

// Provider is the billing capability set. The Stripe client implements it;
// tests substitute fakes.
type Provider interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error)
	CheckoutLineItems(ctx context.Context, sessionID string) ([]LineItemPrice, error)
	SubscriptionPeriod(ctx context.Context, subscriptionID string) (start, end time.Time, err error)
	ParseEvent(payload []byte, signature string) (Event, error)
}

// PlanFor maps the first purchased line item to a plan type. Subscription
// mode checkouts use the recurring interval; anything else is a one-time
// lifetime purchase.
func PlanFor(mode string, items []LineItemPrice) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	if mode != "subscription" {
		return "lifetime", true
	}
	switch items[0].Interval {
	case "month":
		return "monthly", true
	case "year":
		return "yearly", true
	default:
		return "", false
	}
}
