package pipeline

import (
	"sync"
	"time"

	"github.com/dgallion1/repogist/internal/analyze"
)

// JobStatus represents the state of an analysis job.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusGathering   JobStatus = "gathering"
	StatusChunking    JobStatus = "chunking"
	StatusSummarizing JobStatus = "summarizing"
	StatusMerging     JobStatus = "merging"
	StatusFormatting  JobStatus = "formatting"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// Job tracks the state of a single repository analysis.
type Job struct {
	mu sync.Mutex

	ID       string `json:"job_id"`
	RepoPath string `json:"repo_path"`

	// Branch to analyze; empty means whatever is checked out.
	Branch string `json:"branch,omitempty"`
	// AllBranches analyzes every local branch in turn.
	AllBranches bool `json:"all_branches,omitempty"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	results []*analyze.FormattedResult
	errors  []string
}

// Progress tracks how far the analysis has gotten.
type Progress struct {
	TotalFiles    int      `json:"total_files"`
	TotalTokens   int      `json:"total_tokens"`
	ChunkCount    int      `json:"chunk_count"`
	BranchesDone  int      `json:"branches_done"`
	BranchesTotal int      `json:"branches_total"`
	Errors        []string `json:"errors"`
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetGatherCounts records what the gather phase found.
func (j *Job) SetGatherCounts(files, tokens int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalFiles = files
	j.Progress.TotalTokens = tokens
	j.UpdatedAt = time.Now()
}

// SetChunkCount records how many chunks the packer produced.
func (j *Job) SetChunkCount(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChunkCount = n
	j.UpdatedAt = time.Now()
}

// SetBranchTotal records how many branches will be analyzed.
func (j *Job) SetBranchTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.BranchesTotal = n
	j.UpdatedAt = time.Now()
}

// AddResult appends a finished per-branch result.
func (j *Job) AddResult(r *analyze.FormattedResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results = append(j.results, r)
	j.Progress.BranchesDone++
	j.UpdatedAt = time.Now()
}

// Results returns the accumulated per-branch results.
func (j *Job) Results() []*analyze.FormattedResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*analyze.FormattedResult, len(j.results))
	copy(out, j.results)
	return out
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	RepoPath    string    `json:"repo_path"`
	Branch      string    `json:"branch,omitempty"`
	AllBranches bool      `json:"all_branches,omitempty"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobSnapshot{
		ID:          j.ID,
		RepoPath:    j.RepoPath,
		Branch:      j.Branch,
		AllBranches: j.AllBranches,
		Status:      j.Status,
		Phase:       j.Phase,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		Progress: Progress{
			TotalFiles:    j.Progress.TotalFiles,
			TotalTokens:   j.Progress.TotalTokens,
			ChunkCount:    j.Progress.ChunkCount,
			BranchesDone:  j.Progress.BranchesDone,
			BranchesTotal: j.Progress.BranchesTotal,
			Errors:        errs,
		},
	}
}
