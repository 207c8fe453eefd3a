package httpapi

import (
	"context"
	"errors"
	"net/http"

	"tubematch/internal/identity"
	"tubematch/internal/models"
	"tubematch/internal/services"
	"tubematch/internal/token"
)

type contextKey string

const contextKeyIdentity contextKey = "identity"

// SessionCookie carries the identity provider's session credential.
const SessionCookie = "session"

var (
	errSubscriptionTokenRequired  = errors.New("subscription token required")
	errActiveSubscriptionRequired = errors.New("active subscription required")
)

// AuthGuard resolves the session cookie to an identity on every request.
func (s *Server) AuthGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		credential := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			credential = c.Value
		}
		id, err := s.identity.Resolve(r.Context(), credential)
		if err != nil {
			reason := "invalid_session"
			switch {
			case errors.Is(err, identity.ErrUnauthenticated):
				reason = "no_session"
			case errors.Is(err, identity.ErrProviderFailure):
				reason = "provider_failure"
			}
			s.metrics.guardDenials.WithLabelValues("auth", reason).Inc()
			s.respondServiceError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), id)))
	})
}

// SubscriptionGuard admits a request only when it carries a valid claim for
// the authenticated user asserting an active subscription. It never
// consults the billing store.
func (s *Server) SubscriptionGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := identityFromContext(r.Context())
		if !ok {
			s.metrics.guardDenials.WithLabelValues("auth", "no_session").Inc()
			respondError(w, r, http.StatusUnauthorized, identity.ErrUnauthenticated)
			return
		}
		claims, err := s.subscriptionClaims(r, id.UserID)
		if err != nil {
			s.metrics.guardDenials.WithLabelValues("subscription", denialReason(err)).Inc()
			respondError(w, r, http.StatusForbidden, err)
			return
		}
		if !claims.HasActiveSubscription {
			s.metrics.guardDenials.WithLabelValues("subscription", "inactive").Inc()
			respondError(w, r, http.StatusForbidden, errActiveSubscriptionRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// subscriptionClaims verifies the subscription cookie and binds it to userID.
func (s *Server) subscriptionClaims(r *http.Request, userID string) (token.Claims, error) {
	c, err := r.Cookie(services.SubscriptionCookie)
	if err != nil || c.Value == "" {
		return token.Claims{}, errSubscriptionTokenRequired
	}
	claims, err := s.codec.Verify(c.Value)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return token.Claims{}, token.ErrExpired
		}
		return token.Claims{}, token.ErrInvalid
	}
	if claims.UserID != userID {
		return token.Claims{}, token.ErrInvalid
	}
	return claims, nil
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, errSubscriptionTokenRequired):
		return "missing"
	case errors.Is(err, token.ErrExpired):
		return "expired"
	default:
		return "invalid"
	}
}

func withIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, id)
}

func identityFromContext(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity).(models.Identity)
	return id, ok && id.UserID != ""
}
