package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobarthurs/pg-health/internal/health"
	"github.com/jacobarthurs/pg-health/internal/history"
)

// --- Helpers ---

func webReport() *health.Report {
	checks := []health.Finding{
		{Name: "Cache Hit Ratio", Severity: health.OK, Message: "Cache hit ratio: 99.0%"},
		{Name: "Lock Waits", Severity: health.Warning, Message: "8 queries waiting on locks",
			Suggestion: "Identify blocking queries with pg_blocking_pids()"},
	}
	return &health.Report{
		DatabaseName:    "app",
		DatabaseVersion: "PostgreSQL 16.2",
		GeneratedAt:     time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
		Checks:          checks,
		OverallStatus:   health.Overall(checks),
	}
}

func stubRun(report *health.Report, err error) RunFunc {
	return func(context.Context, string) (*health.Report, error) {
		return report, err
	}
}

func do(t *testing.T, s *Server, method, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndex_ShowsConnectionForm(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `action="/check"`)
	assert.Contains(t, body, `name="connection_string"`)
	assert.Contains(t, body, "never stored")
}

func TestCheck_RendersReport(t *testing.T) {
	var gotConn string
	run := func(_ context.Context, connString string) (*health.Report, error) {
		gotConn = connString
		return webReport(), nil
	}
	s := NewServer("", run, nil)

	rec := do(t, s, http.MethodPost, "/check", url.Values{"connection_string": {"postgres://u:secret@db/app"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "postgres://u:secret@db/app", gotConn)

	body := rec.Body.String()
	assert.Contains(t, body, "app")
	assert.Contains(t, body, "PostgreSQL 16.2")
	assert.Contains(t, body, "8 queries waiting on locks")
	assert.Contains(t, body, `class="warning"`)
	assert.Contains(t, body, "pg_blocking_pids()")
}

func TestCheck_MissingConnectionString(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodPost, "/check", url.Values{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection string is required")
}

func TestCheck_RunFailure(t *testing.T) {
	s := NewServer("", stubRun(nil, errors.New("connecting to database: connection refused")), nil)

	rec := do(t, s, http.MethodPost, "/check", url.Values{"connection_string": {"postgres://u@db/app"}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestAPICheck_ReturnsReportJSON(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodPost, "/api/check", url.Values{"connection_string": {"postgres://u@db/app"}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "app", report.DatabaseName)
	assert.Equal(t, health.Warning, report.OverallStatus)
	assert.Len(t, report.Checks, 2)
}

func TestAPICheck_Errors(t *testing.T) {
	s := NewServer("", stubRun(nil, errors.New("connection refused")), nil)

	rec := do(t, s, http.MethodPost, "/api/check", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/check", url.Values{"connection_string": {"postgres://u@db/app"}})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "connection refused", body["error"])
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestBadge_FromHistory(t *testing.T) {
	var gotDatabase string
	latest := func(_ context.Context, database string) (*history.Entry, error) {
		gotDatabase = database
		return &history.Entry{DatabaseName: database, WorstSeverity: "critical"}, nil
	}
	s := NewServer("", stubRun(webReport(), nil), latest)

	rec := do(t, s, http.MethodGet, "/badge/app.svg", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, "app", gotDatabase)

	body := rec.Body.String()
	assert.Contains(t, body, "#e05d44")
	assert.Contains(t, body, ">critical</text>")
}

func TestBadge_UnknownWithoutHistory(t *testing.T) {
	latest := func(context.Context, string) (*history.Entry, error) {
		return nil, nil
	}
	s := NewServer("", stubRun(webReport(), nil), latest)

	rec := do(t, s, http.MethodGet, "/badge/neverchecked.svg", nil)

	body := rec.Body.String()
	assert.Contains(t, body, ">unknown</text>")
	assert.Contains(t, body, "#9f9f9f")
}

func TestBadge_NilLookup(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodGet, "/badge/app.svg", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ">unknown</text>")
}

func TestRequestIDHeader(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodGet, "/health", nil)

	assert.Len(t, rec.Header().Get("X-Request-ID"), 36, "expected a UUID request id")
}

func TestCheck_RejectsGet(t *testing.T) {
	s := NewServer("", stubRun(webReport(), nil), nil)

	rec := do(t, s, http.MethodGet, "/check", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestListenAndServe_GracefulShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", stubRun(webReport(), nil), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}
