package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/stt-engine/internal/config"
	"github.com/snarg/stt-engine/internal/engine"
)

type fakeScheduler struct {
	submitErr error
	statuses  map[string]*engine.JobStatus
}

func (f *fakeScheduler) Submit(ctx context.Context, req engine.SubmitRequest) (*engine.Receipt, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &engine.Receipt{
		RequestID: "req-1",
		JobID:     "job-1",
		Status:    engine.StatusQueued,
		Provider:  "whisper",
	}, nil
}

func (f *fakeScheduler) GetStatus(requestID string) (*engine.JobStatus, error) {
	st, ok := f.statuses[requestID]
	if !ok {
		return nil, engine.ErrUnknownRequest
	}
	return st, nil
}

func (f *fakeScheduler) EstimateCost(size int64, dur float64, hint string) (*engine.CostEstimate, error) {
	return &engine.CostEstimate{Provider: "whisper", BilledMinutes: 1, USD: 0.004, Credits: 4}, nil
}

func (f *fakeScheduler) Usage() engine.UsageSnapshot {
	return engine.UsageSnapshot{JobsCompleted: 2, Credits: 8}
}

func (f *fakeScheduler) StatsSnapshot(ctx context.Context) engine.Stats {
	return engine.Stats{Queued: 1, Workers: 3, QueueType: "memory"}
}

type okPinger struct{ name string }

func (p okPinger) Ping(ctx context.Context) error { return nil }
func (p okPinger) Type() string                   { return p.name }

func newTestServer(t *testing.T, sched Scheduler) http.Handler {
	t.Helper()
	cfg := &config.Config{HTTPAddr: ":0", AuthToken: "tok"}
	srv := NewServer(cfg, Deps{
		Scheduler: sched,
		Queue:     okPinger{name: "memory"},
	}, "test", time.Now(), zerolog.Nop())
	return srv.Handler()
}

func authedRequest(method, path string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer tok")
	return req
}

func TestJobStatusEndpoint(t *testing.T) {
	sched := &fakeScheduler{statuses: map[string]*engine.JobStatus{
		"req-1": {RequestID: "req-1", JobID: "job-1", Status: engine.StatusCompleted, ProgressPercent: 100},
	}}
	h := newTestServer(t, sched)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/req-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var st engine.JobStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Status != engine.StatusCompleted {
		t.Errorf("job status = %q, want completed", st.Status)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{statuses: map[string]*engine.JobStatus{}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/jobs/ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestJobsRequireAuth(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/jobs/req-1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without token", rec.Code)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	body, _ := json.Marshal(submitRequest{Path: "/spool/a.mp3", Provider: "whisper"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body)
	}
	var out engine.Receipt
	json.NewDecoder(rec.Body).Decode(&out)
	if out.RequestID != "req-1" {
		t.Errorf("request_id = %q, want req-1", out.RequestID)
	}
}

func TestSubmitValidationMapsTo400(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{submitErr: &engine.ValidationError{Reason: "file is empty"}})

	body, _ := json.Marshal(submitRequest{Path: "/spool/empty.mp3"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitInternalErrorMapsTo500(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{submitErr: errors.New("queue down")})

	body, _ := json.Marshal(submitRequest{Path: "/spool/a.mp3"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", body))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestSubmitMissingPath(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/jobs", []byte(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEstimateEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	body, _ := json.Marshal(estimateRequest{FileSizeBytes: 1 << 20, DurationSeconds: 45})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/estimate", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body)
	}
	var est engine.CostEstimate
	json.NewDecoder(rec.Body).Decode(&est)
	if est.Credits != 4 {
		t.Errorf("credits = %d, want 4", est.Credits)
	}
}

func TestEstimateRejectsNegatives(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	body, _ := json.Marshal(estimateRequest{FileSizeBytes: -1, DurationSeconds: 45})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("POST", "/api/v1/estimate", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUsageEndpoint(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest("GET", "/api/v1/usage", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var u engine.UsageSnapshot
	json.NewDecoder(rec.Body).Decode(&u)
	if u.JobsCompleted != 2 || u.Credits != 8 {
		t.Errorf("usage = %+v, want 2 jobs / 8 credits", u)
	}
}

func TestHealthNoAuth(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	// Overall status depends on ffmpeg/ffprobe being installed on the test
	// host, so only assert the shape and the queue check.
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("health response not JSON: %v", err)
	}
	if resp.Checks["queue"] != "ok" {
		t.Errorf("queue check = %q, want ok", resp.Checks["queue"])
	}
	if resp.Checks["cache"] != "not_configured" {
		t.Errorf("cache check = %q, want not_configured", resp.Checks["cache"])
	}
}

func TestMetricsNoAuth(t *testing.T) {
	h := newTestServer(t, &fakeScheduler{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
