package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillnova/lifecycle-hub/internal/application/command"
	"github.com/skillnova/lifecycle-hub/internal/domain/notification"
	"github.com/skillnova/lifecycle-hub/internal/domain/program"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/persistence/memory"
	"github.com/skillnova/lifecycle-hub/internal/infrastructure/scheduler"
	"github.com/skillnova/lifecycle-hub/internal/interface/http/handlers"
	"github.com/skillnova/lifecycle-hub/pkg/logger"
	"github.com/skillnova/lifecycle-hub/pkg/timeutil"
)

type okSender struct{ sent int }

func (s *okSender) Send(_ context.Context, _ notification.Message) (notification.DeliveryResult, error) {
	s.sent++
	return notification.DeliveryResult{Success: true, Attempts: 1, DeliveredAt: time.Now()}, nil
}

type fakeJobs struct {
	running bool
	runs    int
}

func (f *fakeJobs) ListJobs() []scheduler.JobInfo {
	return []scheduler.JobInfo{{Name: "details-email", Schedule: "@every 1m0s", Enabled: true}}
}

func (f *fakeJobs) RunNow(_ context.Context, name string) (*scheduler.JobResult, error) {
	if name != "details-email" {
		return nil, scheduler.ErrJobNotFound
	}
	if f.running {
		return nil, scheduler.ErrJobRunning
	}
	f.runs++
	return &scheduler.JobResult{JobName: name, Success: true, Manual: true}, nil
}

type idSeq struct{}

func (idSeq) GenerateID() string { return "enr-1" }

type testServer struct {
	srv    *Server
	jobs   *fakeJobs
	sender *okSender
	repo   *memory.EnrollmentRepository
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()

	cat, err := program.NewCatalog(program.Builtin()...)
	require.NoError(t, err)

	repo := memory.NewEnrollmentRepository()
	sender := &okSender{}
	clock := timeutil.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	brand := notification.DefaultBrand()
	jobs := &fakeJobs{}

	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", handlers.NewPingCheck(repo))

	cfg := DefaultConfig()
	cfg.APIKey = apiKey
	srv := NewServer(cfg, Dependencies{
		Register: command.NewRegisterEnrollmentHandler(repo, cat, sender, brand, idSeq{}, clock,
			command.DefaultRegisterEnrollmentConfig(), logger.Discard()),
		Payment:     command.NewConfirmPaymentHandler(repo, cat, sender, brand, clock, logger.Discard()),
		Completions: command.NewCompletionHandler(repo, cat, clock, logger.Discard()),
		Enrollments: repo,
		Jobs:        jobs,
		Health:      health,
		Logger:      logger.Discard(),
	})
	return &testServer{srv: srv, jobs: jobs, sender: sender, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, JSONResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)

	var resp JSONResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, "")

	rec, resp := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec, _ = ts.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HealthFailsWhenCheckFails(t *testing.T) {
	health := handlers.NewCompositeHealthChecker("test")
	health.AddCheck("store", func(context.Context) error { return errors.New("database is locked") })
	health.AddOptionalCheck("artifact_cache", func(context.Context) error { return errors.New("connection refused") })

	srv := NewServer(DefaultConfig(), Dependencies{Health: health, Logger: logger.Discard()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "Some checks failed: store")
	assert.NotContains(t, rec.Body.String(), "failed: artifact_cache")
}

func TestServer_EnrollmentLifecycle(t *testing.T) {
	ts := newTestServer(t, "")

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/enrollments",
		`{"name":"Asha","email":"asha@example.com","program_id":"web-development"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, resp.Success)
	assert.Zero(t, ts.sender.sent)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments",
		`{"name":"Asha","email":"ASHA@example.com","program_id":"web-development"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments/enr-1/payment", `{"state":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, ts.sender.sent)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments/enr-1/payment", `{"state":"failed"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments/enr-1/completions", `{"unit_id":"week-1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments/enr-1/completions", `{"unit_id":"week-1"}`)
	assert.Equal(t, http.StatusOK, rec.Code, "repeat completion is a no-op")
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments/enr-1/completions", `{"unit_id":"bogus"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, resp = ts.do(t, http.MethodGet, "/api/v1/enrollments/enr-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, float64(25), data["progress"])
	assert.Equal(t, "paid", data["payment"])
	assert.Equal(t, true, data["status"].(map[string]any)["confirmation_sent"])

	rec, _ = ts.do(t, http.MethodDelete, "/api/v1/enrollments/enr-1/completions/week-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/enrollments/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RejectsBadJSON(t *testing.T) {
	ts := newTestServer(t, "")

	rec, resp := ts.do(t, http.MethodPost, "/api/v1/enrollments", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_json", resp.Error.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/enrollments", `{"name":"A","email":"a@example.com","program_id":"web-development","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Jobs(t *testing.T) {
	ts := newTestServer(t, "")

	rec, resp := ts.do(t, http.MethodGet, "/api/v1/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/details-email/run", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.jobs.runs)

	ts.jobs.running = true
	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/details-email/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 1, ts.jobs.runs)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/jobs/nope/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	ts := newTestServer(t, "s3cret")

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/jobs", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/jobs", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/jobs", "", "X-API-Key", "s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/jobs", "", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "probes stay open")
}
