package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/repogist/internal/config"
	"github.com/dgallion1/repogist/internal/llm"
	"github.com/dgallion1/repogist/internal/pipeline"
)

type fakeLLM struct{}

func (fakeLLM) Model() string                      { return "test-model" }
func (fakeLLM) Stats() llm.StatsSnapshot           { return llm.StatsSnapshot{Count: 3} }
func (fakeLLM) Available(ctx context.Context) bool { return true }

type fakeCompleter struct{}

func (fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return `{"purpose":"test","technologies":[],"patterns":[]}`, nil
}

func (fakeCompleter) ContextSize(ctx context.Context) int { return 4096 }

type charEstimator struct{}

func (charEstimator) Estimate(text string) int { return len(text) }

const testKey = "secret-key"

func newTestServer(t *testing.T) (*Server, *pipeline.Orchestrator) {
	t.Helper()
	cfg := config.Config{
		APIKey:                 testKey,
		WorkerCount:            1,
		MaxQueueSize:           4,
		MaxConcurrentSummaries: 1,
		ReserveFraction:        0.7,
		JobTTL:                 time.Hour,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := pipeline.NewOrchestrator(cfg, fakeCompleter{}, charEstimator{}, log)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(orch, fakeLLM{}, log, cfg), orch
}

func doRequest(s *Server, method, path, body string, authed bool) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth_Public(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/health", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"model_available":true`) {
		t.Errorf("expected model availability in health body, got %s", rec.Body.String())
	}
}

func TestAuth_RejectsMissingAndWrongKey(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/api/stats/llm", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without key, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats/llm", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	wrong := httptest.NewRecorder()
	s.ServeHTTP(wrong, req)
	if wrong.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong key, got %d", wrong.Code)
	}
}

func TestLLMStats(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/stats/llm", "", true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test-model") {
		t.Errorf("expected model name in stats, got %s", rec.Body.String())
	}
}

func TestAnalyze_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"empty body", `{}`},
		{"bad json", `{`},
		{"missing path", `{"branch":"main"}`},
		{"conflicting flags", `{"repo_path":"/tmp","branch":"main","all_branches":true}`},
		{"nonexistent path", `{"repo_path":"/does/not/exist"}`},
	}
	for _, tc := range cases {
		rec := doRequest(s, http.MethodPost, "/api/analyze", tc.body, true)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, rec.Code)
		}
	}
}

func TestAnalyze_SubmitAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	dir := t.TempDir()

	rec := doRequest(s, http.MethodPost, "/api/analyze", `{"repo_path":"`+dir+`"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, "job_id") || !strings.Contains(body, "queued") {
		t.Fatalf("unexpected submit response: %s", body)
	}

	// Pull the job ID out of the poll URL.
	idx := strings.Index(body, "/api/analyze/")
	if idx < 0 {
		t.Fatalf("no poll url in response: %s", body)
	}
	rest := body[idx+len("/api/analyze/"):]
	jobID := rest[:strings.Index(rest, "/")]

	status := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/status", "", true)
	if status.Code != http.StatusOK {
		t.Fatalf("expected 200 from status, got %d", status.Code)
	}
	if !strings.Contains(status.Body.String(), jobID) {
		t.Errorf("expected job id in status body, got %s", status.Body.String())
	}
}

func TestAnalyzeStatus_NotFound(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/analyze/missing/status", "", true)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAnalyzeResult_NotCompletedConflicts(t *testing.T) {
	s, orch := newTestServer(t)
	job := &pipeline.Job{ID: "pending", Status: pipeline.StatusQueued, UpdatedAt: time.Now()}
	if err := orch.Submit(job); err != nil {
		t.Fatal(err)
	}
	rec := doRequest(s, http.MethodGet, "/api/analyze/pending/result", "", true)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for unfinished job, got %d", rec.Code)
	}
}

func TestAnalyzeResult_Formats(t *testing.T) {
	s, orch := newTestServer(t)
	orch.Start(context.Background())
	defer orch.Stop()

	dir := t.TempDir()
	rec := doRequest(s, http.MethodPost, "/api/analyze", `{"repo_path":"`+dir+`"}`, true)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	body := rec.Body.String()
	rest := body[strings.Index(body, "/api/analyze/")+len("/api/analyze/"):]
	jobID := rest[:strings.Index(rest, "/")]

	// An empty directory completes without model calls, so this is quick.
	deadline := time.After(5 * time.Second)
	for {
		status := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/status", "", true)
		if strings.Contains(status.Body.String(), `"completed"`) {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("job never completed: %s", status.Body.String())
		case <-time.After(10 * time.Millisecond):
		}
	}

	jsonRec := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/result", "", true)
	if jsonRec.Code != http.StatusOK || !strings.Contains(jsonRec.Body.String(), "results") {
		t.Errorf("json result: code %d body %s", jsonRec.Code, jsonRec.Body.String())
	}

	mdRec := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/result?format=markdown", "", true)
	if mdRec.Code != http.StatusOK || !strings.Contains(mdRec.Body.String(), "# Repository Analysis") {
		t.Errorf("markdown result: code %d body %s", mdRec.Code, mdRec.Body.String())
	}

	htmlRec := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/result?format=html", "", true)
	if htmlRec.Code != http.StatusOK || !strings.Contains(htmlRec.Body.String(), "<!DOCTYPE html>") {
		t.Errorf("html result: code %d", htmlRec.Code)
	}

	badRec := doRequest(s, http.MethodGet, "/api/analyze/"+jobID+"/result?format=yaml", "", true)
	if badRec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown format, got %d", badRec.Code)
	}
}
