package pipeline

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/repogist/internal/config"
	"github.com/dgallion1/repogist/internal/gather"
)

type charEstimator struct{}

func (charEstimator) Estimate(text string) int { return len(text) }

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int
	context int
}

func (f *fakeCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return `{"purpose":"a small tool","project_type":"cli tool","technologies":["go"],"patterns":["worker pool"],"state":"active"}`, nil
}

func (f *fakeCompleter) ContextSize(ctx context.Context) int {
	if f.context > 0 {
		return f.context
	}
	return 4096
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T, completer *fakeCompleter) *Worker {
	t.Helper()
	g, err := gather.New(charEstimator{}, discardLogger(), gather.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return NewWorker(completer, charEstimator{}, g, discardLogger(), 0.7, 1, 0)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorker_ProcessPlainDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "readme.md", "# tool\n")

	completer := &fakeCompleter{}
	w := newTestWorker(t, completer)
	job := &Job{ID: NewJobID(), RepoPath: root, Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q (%+v)", snap.Status, snap.Progress.Errors)
	}
	if snap.Progress.TotalFiles != 2 {
		t.Errorf("expected 2 gathered files, got %d", snap.Progress.TotalFiles)
	}
	results := job.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].ProjectType != "cli tool" {
		t.Errorf("expected model project type, got %q", results[0].ProjectType)
	}
	if completer.callCount() == 0 {
		t.Error("expected at least one model call")
	}
}

func TestWorker_EmptyDirectoryCompletesWithoutModelCalls(t *testing.T) {
	completer := &fakeCompleter{}
	w := newTestWorker(t, completer)
	job := &Job{ID: NewJobID(), RepoPath: t.TempDir(), CreatedAt: time.Now(), UpdatedAt: time.Now()}

	w.Process(context.Background(), job)

	if job.Snapshot().Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", job.Snapshot().Status)
	}
	if completer.callCount() != 0 {
		t.Errorf("expected zero model calls for an empty directory, got %d", completer.callCount())
	}
	results := job.Results()
	if len(results) != 1 || results[0].ProjectType != "empty" {
		t.Errorf("expected canonical empty result, got %+v", results)
	}
}

func TestWorker_BranchOnPlainDirectoryFails(t *testing.T) {
	w := newTestWorker(t, &fakeCompleter{})
	job := &Job{ID: NewJobID(), RepoPath: t.TempDir(), Branch: "dev", CreatedAt: time.Now(), UpdatedAt: time.Now()}

	w.Process(context.Background(), job)

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Fatalf("expected failed, got %q", snap.Status)
	}
	if len(snap.Progress.Errors) == 0 {
		t.Error("expected an error explaining the failure")
	}
}

func TestOrchestrator_SubmitQueueFull(t *testing.T) {
	cfg := config.Config{
		WorkerCount:            1,
		MaxQueueSize:           1,
		MaxConcurrentSummaries: 1,
		ReserveFraction:        0.7,
		JobTTL:                 time.Hour,
	}
	o, err := NewOrchestrator(cfg, &fakeCompleter{}, charEstimator{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	// Not started, so nothing drains the queue.
	first := &Job{ID: "a", UpdatedAt: time.Now()}
	if err := o.Submit(first); err != nil {
		t.Fatalf("first submit should fit the queue: %v", err)
	}
	second := &Job{ID: "b", UpdatedAt: time.Now()}
	if err := o.Submit(second); err == nil {
		t.Fatal("expected queue-full error")
	}
	if second.Snapshot().Status != StatusFailed {
		t.Error("expected rejected job to be marked failed")
	}
	// Both jobs remain queryable.
	if o.GetJob("a") == nil || o.GetJob("b") == nil {
		t.Error("expected both jobs in the store")
	}
}

func TestOrchestrator_RunsSubmittedJob(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "app.go", "package app\n")

	cfg := config.Config{
		WorkerCount:            1,
		MaxQueueSize:           4,
		MaxConcurrentSummaries: 1,
		ReserveFraction:        0.7,
		JobTTL:                 time.Hour,
	}
	o, err := NewOrchestrator(cfg, &fakeCompleter{}, charEstimator{}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	o.Start(context.Background())
	defer o.Stop()

	job := &Job{ID: NewJobID(), RepoPath: root, Status: StatusQueued, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := o.Submit(job); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		snap := job.Snapshot()
		if snap.Status == StatusCompleted {
			break
		}
		if snap.Status == StatusFailed {
			t.Fatalf("job failed: %v", snap.Progress.Errors)
		}
		select {
		case <-deadline:
			t.Fatalf("job did not complete, status %q", snap.Status)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
