package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codr-run/codr/internal/admission"
	"github.com/codr-run/codr/internal/app"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/resultsvc"
	"github.com/codr-run/codr/internal/stream"
	"github.com/codr-run/codr/internal/streamtoken"
	"github.com/codr-run/codr/internal/submission"
)

const testAPIKey = "test-api-key"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	b := broker.NewMemory()
	logger := common.NewSilentLogger()
	store := jobstore.New(b, logger)

	rateLimiter := admission.NewRateLimiter(b, 1000, 1000, []byte("jwt-secret"))
	gateway := admission.NewGateway(testAPIKey, rateLimiter, b, true)
	submissionSvc := submission.New(gateway, store, b, logger, nil)
	resultsSvc := resultsvc.New(store, b, logger, nil)
	tokenSvc := streamtoken.New([]byte("jwt-secret"), 0)
	hub := stream.New(b, resultsSvc, tokenSvc, logger)

	a := &app.App{
		Config:     common.NewDefaultConfig(),
		Logger:     logger,
		Broker:     nil,
		JobStore:   store,
		Gateway:    gateway,
		Submission: submissionSvc,
		Results:    resultsSvc,
		Tokens:     tokenSvc,
		Stream:     hub,
	}

	return NewServer(a)
}

func TestHandleHealth_RequiresKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleHealth_OK(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHandleSubmitCode_HappyPath(t *testing.T) {
	s := newTestServer(t)
	body := `{"code":"print(1)","language":"python","filename":"main.py"}`
	req := httptest.NewRequest(http.MethodPost, "/api/submit_code", strings.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"job_id"`)
}

func TestHandleSubmitCode_MissingKeyIsUnauthorized(t *testing.T) {
	s := newTestServer(t)
	body := `{"code":"print(1)","language":"python","filename":"main.py"}`
	req := httptest.NewRequest(http.MethodPost, "/api/submit_code", strings.NewReader(body))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetResult_UnknownJobReturns200(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/get_result/does-not-exist", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"unknown"`)
}

func TestHandleGetResult_MalformedJobIDIs400(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/get_result/bad_id!", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWSToken_IssuesScopedToken(t *testing.T) {
	s := newTestServer(t)
	body := `{"job_id":"11111111-1111-1111-1111-111111111111"}`
	req := httptest.NewRequest(http.MethodPost, "/api/ws-token", strings.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"token"`)
}

func TestHandleCacheStats_RequiresKey(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil)
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
