package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"tubematch/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	stateCookie   = "oauth_state"
	stateMaxAge   = 600
	sessionMaxAge = 86400
)

// handleSignIn starts the provider's consent flow. The state value is kept
// in a short-lived cookie and checked on callback.
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "provider") != s.identity.Name() {
		respondError(w, r, http.StatusNotFound, errors.New("unknown identity provider"))
		return
	}
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth",
		MaxAge:   stateMaxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.identity.SignInURL(state), http.StatusSeeOther)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if providerErr := q.Get("error"); providerErr != "" {
		respondError(w, r, http.StatusBadRequest, errors.New("sign-in was not completed: "+providerErr))
		return
	}
	stored, err := r.Cookie(stateCookie)
	if err != nil || stored.Value == "" || stored.Value != q.Get("state") {
		respondError(w, r, http.StatusBadRequest, errors.New("invalid state parameter"))
		return
	}

	credential, err := s.identity.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	id, err := s.identity.Resolve(r.Context(), credential)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	subscription, active, err := s.oracle.Refresh(r.Context(), id.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/auth", MaxAge: -1})
	s.setCookie(w, SessionCookie, credential, sessionMaxAge)
	http.SetCookie(w, subscription)
	s.log.Info("user signed in",
		slog.String("user_id", id.UserID),
		slog.Bool("has_active_subscription", active),
	)
	http.Redirect(w, r, s.cfg.DashboardRedirect, http.StatusSeeOther)
}

type currentUserResponse struct {
	UserID          string `json:"user_id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	AvatarURL       string `json:"avatar_url"`
	HasSubscription bool   `json:"has_subscription"`
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	hasSubscription := false
	if claims, err := s.subscriptionClaims(r, id.UserID); err == nil {
		hasSubscription = claims.HasActiveSubscription
	}
	respondJSON(w, r, http.StatusOK, currentUserResponse{
		UserID:          id.UserID,
		Email:           id.Email,
		Name:            id.DisplayName,
		AvatarURL:       id.AvatarURL,
		HasSubscription: hasSubscription,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w, SessionCookie)
	s.clearCookie(w, services.SubscriptionCookie)
	http.Redirect(w, r, s.cfg.LoginRedirect, http.StatusSeeOther)
}

func (s *Server) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFromContext(r.Context())
	cookie, active, err := s.oracle.Refresh(r.Context(), id.UserID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	http.SetCookie(w, cookie)
	respondJSON(w, r, http.StatusOK, map[string]bool{"has_active_subscription": active})
}
