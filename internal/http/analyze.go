package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tubematch/internal/models"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"
)

var errTooManyRequests = errors.New("too many requests")

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalysisRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if err := s.validate.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, errors.New(validationMessage(err)))
		return
	}

	results, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.metrics.analyzedVideos.Add(float64(len(results)))
	respondJSON(w, r, http.StatusOK, results)
}

// limiterIdleTTL is how long an unused bucket is kept. An idle bucket has
// refilled long before this, so dropping it loses nothing.
const limiterIdleTTL = 10 * time.Minute

type userBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// userLimiter hands out one token bucket per authenticated user. Buckets idle
// past limiterIdleTTL are swept at most once per TTL.
type userLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*userBucket
	lastSweep time.Time
	now       func() time.Time
}

func newUserLimiter(perSecond float64, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*userBucket),
		now:     time.Now,
	}
}

func (l *userLimiter) allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	now := l.now()
	if now.Sub(l.lastSweep) >= limiterIdleTTL {
		for id, b := range l.buckets {
			if now.Sub(b.lastSeen) >= limiterIdleTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[userID]
	if !ok {
		b = &userBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := identityFromContext(r.Context())
		if !s.limiter.allow(id.UserID) {
			s.log.Warn("analyze rate limited", slog.String("user_id", id.UserID))
			respondError(w, r, http.StatusTooManyRequests, errTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
