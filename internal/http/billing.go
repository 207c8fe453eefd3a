package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tubematch/internal/billing"
	"tubematch/internal/services"

	"github.com/go-chi/render"
)

const maxWebhookBytes = 64 << 10

type checkoutRequest struct {
	Plan string `json:"plan" validate:"required,oneof=monthly yearly lifetime"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	if s.billing == nil {
		respondError(w, r, http.StatusServiceUnavailable, billing.ErrNotConfigured)
		return
	}
	var req checkoutRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, errors.New(validationMessage(err)))
		return
	}
	price, ok := s.cfg.PriceFor(req.Plan)
	if !ok {
		respondError(w, r, http.StatusServiceUnavailable, errors.New("price for plan "+req.Plan+" not configured"))
		return
	}

	id, _ := identityFromContext(r.Context())
	url, err := s.billing.CreateCheckout(r.Context(), billing.CheckoutRequest{
		UserID:     id.UserID,
		Email:      id.Email,
		PriceID:    price,
		Plan:       req.Plan,
		SuccessURL: s.cfg.StripeSuccessURL,
		CancelURL:  s.cfg.StripeCancelURL,
	})
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"checkout_url": url})
}

// handleBillingWebhook verifies and reconciles one provider delivery.
// Unknown event types are acknowledged so the provider stops retrying them.
func (s *Server) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	if s.billing == nil {
		respondError(w, r, http.StatusServiceUnavailable, billing.ErrNotConfigured)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, billing.ErrMalformedPayload)
		return
	}
	evt, err := s.billing.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.metrics.webhookEvents.WithLabelValues("unverified", "rejected").Inc()
		s.log.Warn("webhook rejected", slog.String("error", err.Error()))
		s.respondServiceError(w, r, err)
		return
	}

	outcome, err := s.reconciler.Reconcile(r.Context(), evt)
	if err != nil {
		s.metrics.webhookEvents.WithLabelValues(evt.Type, "failed").Inc()
		s.respondServiceError(w, r, err)
		return
	}
	s.metrics.webhookEvents.WithLabelValues(evt.Type, string(outcome)).Inc()

	status := "success"
	if outcome == services.OutcomeIgnored {
		status = "ignored"
	}
	respondJSON(w, r, http.StatusOK, map[string]string{"status": status})
}
