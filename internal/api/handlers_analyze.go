package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/repogist/internal/pipeline"
	"github.com/dgallion1/repogist/internal/report"
)

type analyzeRequest struct {
	RepoPath    string `json:"repo_path"`
	Branch      string `json:"branch,omitempty"`
	AllBranches bool   `json:"all_branches,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.RepoPath == "" {
		jsonError(w, "repo_path is required", http.StatusBadRequest)
		return
	}
	if req.Branch != "" && req.AllBranches {
		jsonError(w, "branch and all_branches are mutually exclusive", http.StatusBadRequest)
		return
	}

	info, err := os.Stat(req.RepoPath)
	if err != nil || !info.IsDir() {
		jsonError(w, fmt.Sprintf("repo_path is not a directory: %s", req.RepoPath), http.StatusBadRequest)
		return
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:          pipeline.NewJobID(),
		RepoPath:    req.RepoPath,
		Branch:      req.Branch,
		AllBranches: req.AllBranches,
		Status:      pipeline.StatusQueued,
		Phase:       "queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   job.ID,
		"status":   job.Status,
		"poll_url": fmt.Sprintf("/api/analyze/%s/status", job.ID),
	})
}

func (s *Server) handleAnalyzeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":   snap.ID,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"progress": snap.Progress,
	})
}

// handleAnalyzeResult returns the finished analysis. The format query
// parameter selects json (default), markdown or html.
func (s *Server) handleAnalyzeResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	if snap.Status != pipeline.StatusCompleted {
		jsonError(w, fmt.Sprintf("job is %s, not completed", snap.Status), http.StatusConflict)
		return
	}

	results := job.Results()
	switch r.URL.Query().Get("format") {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"job_id":  snap.ID,
			"results": results,
		})
	case "markdown":
		rep := report.New(snap.RepoPath, s.llm.Model(), results...)
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(rep.Markdown()))
	case "html":
		rep := report.New(snap.RepoPath, s.llm.Model(), results...)
		html, err := rep.HTML()
		if err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(html))
	default:
		jsonError(w, "unknown format, use json, markdown or html", http.StatusBadRequest)
	}
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
