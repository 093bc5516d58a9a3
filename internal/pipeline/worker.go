package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/repogist/internal/analyze"
	"github.com/dgallion1/repogist/internal/chunker"
	"github.com/dgallion1/repogist/internal/gather"
	"github.com/dgallion1/repogist/internal/gitops"
	"github.com/dgallion1/repogist/internal/token"
)

// Completer is the model client the worker drives. It also reports the
// model's context window so each run can size its budget.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	ContextSize(ctx context.Context) int
}

// Worker processes a single analysis job end to end.
type Worker struct {
	completer Completer
	est       chunker.Estimator
	gatherer  *gather.Gatherer
	log       *slog.Logger

	reserveFraction        float64
	maxConcurrentSummaries int
	contextOverride        int
}

func NewWorker(completer Completer, est chunker.Estimator, gatherer *gather.Gatherer, log *slog.Logger, reserveFraction float64, maxConcurrent, contextOverride int) *Worker {
	return &Worker{
		completer:              completer,
		est:                    est,
		gatherer:               gatherer,
		log:                    log,
		reserveFraction:        reserveFraction,
		maxConcurrentSummaries: maxConcurrent,
		contextOverride:        contextOverride,
	}
}

// Process runs gather, chunk, summarize, merge and format for a job,
// once per requested branch.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "repo", job.RepoPath)

	branches, err := w.resolveBranches(ctx, job)
	if err != nil {
		log.Error("branch resolution failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "gathering")
		return
	}
	job.SetBranchTotal(len(branches))

	contextSize := w.contextOverride
	if contextSize <= 0 {
		contextSize = w.completer.ContextSize(ctx)
	}
	budget := token.NewBudget(contextSize, w.reserveFraction)

	for _, branch := range branches {
		if err := w.analyzeBranch(ctx, job, branch, len(branches) > 1, budget); err != nil {
			if errors.Is(err, analyze.ErrCanceled) || errors.Is(err, context.Canceled) {
				log.Warn("analysis canceled", "branch", branch)
				job.AddError("canceled")
				job.SetStatus(StatusFailed, job.Phase)
				return
			}
			log.Error("branch analysis failed", "branch", branch, "error", err)
			job.AddError(fmt.Sprintf("branch %s: %s", branch, err))
			job.SetStatus(StatusFailed, job.Phase)
			return
		}
	}

	job.SetStatus(StatusCompleted, "done")
	log.Info("analysis complete", "branches", len(branches))
}

// resolveBranches decides which branches the job covers. Jobs on plain
// directories that are not git repositories get a single unnamed pass.
func (w *Worker) resolveBranches(ctx context.Context, job *Job) ([]string, error) {
	if !gitops.IsRepository(job.RepoPath) {
		if job.AllBranches || job.Branch != "" {
			return nil, fmt.Errorf("%s is not a git repository", job.RepoPath)
		}
		return []string{""}, nil
	}

	if job.AllBranches {
		branches, err := gitops.Branches(ctx, job.RepoPath)
		if err != nil {
			return nil, err
		}
		if len(branches) == 0 {
			return []string{""}, nil
		}
		return branches, nil
	}

	if job.Branch != "" {
		return []string{job.Branch}, nil
	}

	current, err := gitops.CurrentBranch(ctx, job.RepoPath)
	if err != nil {
		return nil, err
	}
	return []string{current}, nil
}

func (w *Worker) analyzeBranch(ctx context.Context, job *Job, branch string, checkout bool, budget token.Budget) error {
	if checkout && branch != "" {
		if err := gitops.Checkout(ctx, job.RepoPath, branch); err != nil {
			return err
		}
	}

	job.SetStatus(StatusGathering, "gathering files")
	units, err := w.gatherer.Gather(job.RepoPath)
	if err != nil {
		return err
	}
	job.SetGatherCounts(len(units), chunker.TotalTokens(units))

	metrics := analyze.NewMetrics()
	p := analyze.NewPipeline(w.completer, w.est, budget, metrics, w.log, analyze.Options{
		MaxConcurrentSummaries: w.maxConcurrentSummaries,
		OnStage: func(s analyze.Stage) {
			switch s {
			case analyze.StageChunking:
				job.SetStatus(StatusChunking, "packing files into chunks")
			case analyze.StageSummarizing:
				job.SetStatus(StatusSummarizing, "summarizing chunks")
			case analyze.StageMerging:
				job.SetStatus(StatusMerging, "merging summaries")
			case analyze.StageFormatting:
				job.SetStatus(StatusFormatting, "formatting result")
			}
		},
	})

	result, err := p.Analyze(ctx, units, branch)
	if err != nil {
		return err
	}
	job.SetChunkCount(result.Metadata.ChunkCount)
	job.AddResult(result)
	return nil
}
