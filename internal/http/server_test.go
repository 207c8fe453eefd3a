package httpapi

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"tubematch/internal/models"
	"tubematch/internal/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := env.do(http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsExposure(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.do(http.MethodGet, "/healthz", "")
	env.do(http.MethodPost, "/analyze/", analyzeBody, sessionCookie("session-U1"))

	rec := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `tubematch_http_request_duration_seconds_count{method="GET",route="/healthz",status="200"} 1`)
	assert.Contains(t, body, `tubematch_guard_denials_total{guard="subscription",reason="missing"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req := newRequest(http.MethodOptions, "/analyze/")
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := env.serve(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "chrome-extension://abc", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = newRequest(http.MethodGet, "/healthz")
	req.Header.Set("Origin", "https://evil.test")
	rec = env.serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestAnalyze_Validation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	cookies := []*http.Cookie{sessionCookie("session-U1"), env.subscriptionCookie(t, "U1", true)}

	for _, body := range []string{
		`{"search_term":"go"}`,
		`{"video_ids":["a"],"search_term":""}`,
		`{"video_ids":[""],"search_term":"go"}`,
		`not json`,
	} {
		rec := env.do(http.MethodPost, "/analyze/", body, cookies...)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	env.analyzer.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything)
}

func TestAnalyze_EmptyVideoList(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.analyzer.On("Analyze", mock.Anything, models.AnalysisRequest{VideoIDs: []string{}, SearchTerm: "go"}).
		Return([]models.VideoAnalysis{}, nil).Once()

	rec := env.do(http.MethodPost, "/analyze/", `{"video_ids":[],"search_term":"go"}`,
		sessionCookie("session-U1"), env.subscriptionCookie(t, "U1", true))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `[]`, rec.Body.String())
	env.analyzer.AssertExpectations(t)
}

func TestAnalyze_Errors(t *testing.T) {
	env := newTestEnv(t, testConfig())
	cookies := []*http.Cookie{sessionCookie("session-U1"), env.subscriptionCookie(t, "U1", true)}

	env.analyzer.On("Analyze", mock.Anything, models.AnalysisRequest{VideoIDs: []string{"gone"}, SearchTerm: "go"}).
		Return(nil, scoring.ErrVideoNotFound).Once()
	rec := env.do(http.MethodPost, "/analyze", `{"video_ids":["gone"],"search_term":"go"}`, cookies...)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	env.analyzer.On("Analyze", mock.Anything, models.AnalysisRequest{VideoIDs: []string{"vid1"}, SearchTerm: "go"}).
		Return(nil, errors.New("content analysis for title 'x': upstream timeout")).Once()
	rec = env.do(http.MethodPost, "/analyze", `{"video_ids":["vid1"],"search_term":"go"}`, cookies...)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "upstream timeout")

	env.analyzer.AssertExpectations(t)
}

func TestAnalyze_RateLimitedPerUser(t *testing.T) {
	cfg := testConfig()
	cfg.AnalyzeRate = 0.001
	cfg.AnalyzeBurst = 1
	env := newTestEnv(t, cfg)
	env.analyzer.On("Analyze", mock.Anything, mock.Anything).Return([]models.VideoAnalysis{}, nil)

	u1 := []*http.Cookie{sessionCookie("session-U1"), env.subscriptionCookie(t, "U1", true)}
	u2 := []*http.Cookie{sessionCookie("session-U2"), env.subscriptionCookie(t, "U2", true)}

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/analyze/", analyzeBody, u1...).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/analyze/", analyzeBody, u1...).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/analyze/", analyzeBody, u2...).Code)
	env.analyzer.AssertNumberOfCalls(t, "Analyze", 2)
}

func TestUserLimiter_Disabled(t *testing.T) {
	l := newUserLimiter(0, 0)
	for range 10 {
		assert.True(t, l.allow("U1"))
	}
}

func TestUserLimiter_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newUserLimiter(0.001, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("U1"))
	assert.False(t, l.allow("U1"))
	now = now.Add(limiterIdleTTL / 2)
	assert.True(t, l.allow("U2"))
	assert.Equal(t, 2, l.size())

	now = now.Add(limiterIdleTTL)
	assert.True(t, l.allow("U3"))
	assert.Equal(t, 1, l.size(), "idle buckets for U1 and U2 dropped")

	now = now.Add(time.Minute)
	assert.False(t, l.allow("U3"), "active bucket keeps its state")
}

func TestValidationMessage(t *testing.T) {
	srv := NewServer(testConfig(), Deps{Log: discard()})
	err := srv.validate.Struct(checkoutRequest{Plan: "weekly"})
	require.Error(t, err)
	assert.Equal(t, "field Plan must be one of: monthly yearly lifetime", validationMessage(err))

	err = srv.validate.Struct(models.AnalysisRequest{})
	require.Error(t, err)
	assert.Contains(t, validationMessage(err), "field VideoIDs is a required field")
}
