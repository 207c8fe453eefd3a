package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"tubematch/internal/billing"
	"tubematch/internal/config"
	"tubematch/internal/identity"
	"tubematch/internal/lib/sl"
	"tubematch/internal/models"
	"tubematch/internal/scoring"
	"tubematch/internal/services"
	"tubematch/internal/token"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WebhookReconciler interface {
	Reconcile(ctx context.Context, evt billing.Event) (services.Outcome, error)
}

// BillingGateway is the part of the billing provider the handlers call
// directly.
type BillingGateway interface {
	CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (string, error)
	ParseEvent(payload []byte, signature string) (billing.Event, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) ([]models.VideoAnalysis, error)
}

type Deps struct {
	Identity   identity.Provider
	Oracle     services.Refresher
	Reconciler WebhookReconciler
	Billing    BillingGateway
	Analyzer   Analyzer
	Codec      *token.Codec
	Log        *slog.Logger
}

type Server struct {
	cfg        config.Config
	identity   identity.Provider
	oracle     services.Refresher
	reconciler WebhookReconciler
	billing    BillingGateway
	analyzer   Analyzer
	codec      *token.Codec
	log        *slog.Logger
	validate   *validator.Validate
	limiter    *userLimiter
	registry   *prometheus.Registry
	metrics    *metrics
}

func NewServer(cfg config.Config, deps Deps) *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Server{
		cfg:        cfg,
		identity:   deps.Identity,
		oracle:     deps.Oracle,
		reconciler: deps.Reconciler,
		billing:    deps.Billing,
		analyzer:   deps.Analyzer,
		codec:      deps.Codec,
		log:        deps.Log,
		validate:   validator.New(),
		limiter:    newUserLimiter(cfg.AnalyzeRate, cfg.AnalyzeBurst),
		registry:   reg,
		metrics:    newMetrics(reg),
	}
}

// loggingRecoverer turns a handler panic into a 500 and logs the stack.
func (s *Server) loggingRecoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				s.log.Error("panic recovered",
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				if r.Header.Get("Connection") != "Upgrade" {
					respondError(w, r, http.StatusInternalServerError, errors.New("internal server error"))
				}
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			s.metrics.observeRequest(r.Method, route, ww.Status(), elapsed)
			s.log.Info("request completed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", elapsed),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingRecoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Post("/auth/{provider}/signin", s.handleSignIn)
	r.Get("/auth/callback", s.handleCallback)
	r.Post("/auth/logout", s.handleLogout)
	r.Post("/webhook/billing", s.handleBillingWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.AuthGuard)

		r.Get("/auth/user", s.handleCurrentUser)
		r.Post("/verify-user", s.handleVerifyUser)
		r.Post("/create-checkout-session", s.handleCreateCheckout)

		r.Group(func(r chi.Router) {
			r.Use(s.SubscriptionGuard)
			r.Use(s.rateLimit)

			r.Post("/analyze", s.handleAnalyze)
			r.Post("/analyze/", s.handleAnalyze)
		})
	})

	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(s.cfg.CORSOrigins, origin) || slices.Contains(s.cfg.CORSOrigins, "*")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Stripe-Signature")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, identity.ErrInvalidSession):
		respondError(w, r, http.StatusUnauthorized, err)
	case errors.Is(err, identity.ErrMissingCode):
		respondError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, identity.ErrProviderFailure):
		respondError(w, r, http.StatusBadGateway, err)
	case errors.Is(err, token.ErrExpired):
		respondError(w, r, http.StatusForbidden, token.ErrExpired)
	case errors.Is(err, token.ErrInvalid):
		respondError(w, r, http.StatusForbidden, token.ErrInvalid)
	case errors.Is(err, billing.ErrInvalidSignature),
		errors.Is(err, billing.ErrMalformedPayload),
		errors.Is(err, billing.ErrUnknownPlan):
		respondError(w, r, http.StatusBadRequest, err)
	case errors.Is(err, billing.ErrNotConfigured):
		respondError(w, r, http.StatusServiceUnavailable, err)
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, scoring.ErrVideoNotFound):
		respondError(w, r, http.StatusNotFound, err)
	case errors.Is(err, services.ErrInvalidRequest):
		respondError(w, r, http.StatusBadRequest, err)
	default:
		s.log.Error("request failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			sl.Err(err),
		)
		respondError(w, r, http.StatusInternalServerError, err)
	}
}

func (s *Server) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, name string) {
	s.setCookie(w, name, "", -1)
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msg := ""
	for i, fe := range verrs {
		if i > 0 {
			msg += ", "
		}
		switch fe.Tag() {
		case "required":
			msg += fmt.Sprintf("field %s is a required field", fe.Field())
		case "oneof":
			msg += fmt.Sprintf("field %s must be one of: %s", fe.Field(), fe.Param())
		case "min", "max":
			msg += fmt.Sprintf("field %s must have %s %s items", fe.Field(), fe.Tag(), fe.Param())
		default:
			msg += fmt.Sprintf("field %s is not valid", fe.Field())
		}
	}
	return msg
}
