package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe is the Provider backed by the Stripe API.
type Stripe struct {
	sc            *client.API
	webhookSecret string
}

// NewStripe builds a client bound to secretKey. backends may be nil to use
// the live Stripe API.
func NewStripe(secretKey, webhookSecret string, backends *stripe.Backends) *Stripe {
	return &Stripe{
		sc:            client.New(secretKey, backends),
		webhookSecret: webhookSecret,
	}
}

// CreateCheckout opens a hosted checkout session and returns its URL.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	const op = "billing.Stripe.CreateCheckout"
	if req.PriceID == "" {
		return "", fmt.Errorf("%s: %w: %s", op, ErrUnknownPlan, req.Plan)
	}

	customerID, err := s.customerFor(ctx, req.Email)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	mode := stripe.CheckoutSessionModePayment
	if req.Plan == "monthly" || req.Plan == "yearly" {
		mode = stripe.CheckoutSessionModeSubscription
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(req.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	sess, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, describe(err))
	}
	return sess.URL, nil
}

// customerFor returns the existing customer for email or creates one.
func (s *Stripe) customerFor(ctx context.Context, email string) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(email)}
	list.Limit = stripe.Int64(1)
	list.Context = ctx
	it := s.sc.Customers.List(list)
	if it.Next() {
		return it.Customer().ID, nil
	}
	if err := it.Err(); err != nil {
		return "", describe(err)
	}

	params := &stripe.CustomerParams{Email: stripe.String(email)}
	params.Context = ctx
	c, err := s.sc.Customers.New(params)
	if err != nil {
		return "", describe(err)
	}
	return c.ID, nil
}

// CheckoutLineItems reads back the purchased prices of a session.
func (s *Stripe) CheckoutLineItems(ctx context.Context, sessionID string) ([]LineItemPrice, error) {
	const op = "billing.Stripe.CheckoutLineItems"
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	sess, err := s.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, describe(err))
	}
	if sess.LineItems == nil {
		return nil, nil
	}
	items := make([]LineItemPrice, 0, len(sess.LineItems.Data))
	for _, li := range sess.LineItems.Data {
		if li == nil || li.Price == nil {
			continue
		}
		item := LineItemPrice{PriceID: li.Price.ID}
		if li.Price.Recurring != nil {
			item.Interval = string(li.Price.Recurring.Interval)
		}
		items = append(items, item)
	}
	return items, nil
}

// SubscriptionPeriod returns the current billing period of a subscription.
func (s *Stripe) SubscriptionPeriod(ctx context.Context, subscriptionID string) (time.Time, time.Time, error) {
	const op = "billing.Stripe.SubscriptionPeriod"
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := s.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", op, describe(err))
	}
	return time.Unix(sub.CurrentPeriodStart, 0).UTC(), time.Unix(sub.CurrentPeriodEnd, 0).UTC(), nil
}

// ParseEvent verifies the signature header and decodes the delivery.
func (s *Stripe) ParseEvent(payload []byte, signature string) (Event, error) {
	if s.webhookSecret == "" {
		return Event{}, ErrNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if errors.Is(err, webhook.ErrNotSigned) ||
			errors.Is(err, webhook.ErrNoValidSignature) ||
			errors.Is(err, webhook.ErrInvalidHeader) ||
			errors.Is(err, webhook.ErrTooOld) {
			return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return decodeEvent(evt)
}

func decodeEvent(evt stripe.Event) (Event, error) {
	out := Event{ID: evt.ID, Type: string(evt.Type), Created: unixTime(evt.Created)}
	if evt.Data == nil {
		return Event{}, fmt.Errorf("%w: event %s has no data", ErrMalformedPayload, evt.ID)
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		c := &CheckoutCompleted{
			SessionID:         sess.ID,
			ClientReferenceID: sess.ClientReferenceID,
			Mode:              string(sess.Mode),
		}
		if sess.Customer != nil {
			c.CustomerID = sess.Customer.ID
		}
		if sess.Subscription != nil {
			c.SubscriptionID = sess.Subscription.ID
		}
		out.Checkout = c
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		change := &SubscriptionChange{
			SubscriptionID:     sub.ID,
			Status:             string(sub.Status),
			CurrentPeriodStart: unixTime(sub.CurrentPeriodStart),
			CurrentPeriodEnd:   unixTime(sub.CurrentPeriodEnd),
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		}
		if sub.Customer != nil {
			change.CustomerID = sub.Customer.ID
		}
		if change.CustomerID == "" {
			return Event{}, fmt.Errorf("%w: subscription %s has no customer", ErrMalformedPayload, sub.ID)
		}
		out.Subscription = change
	}
	return out, nil
}

// unixTime maps an unset provider timestamp to the zero time.
func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// describe surfaces the provider's message without leaking request details.
func describe(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe error: %s - %s", stripeErr.Code, stripeErr.Msg)
	}
	return err
}
