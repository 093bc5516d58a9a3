package analyze

import (
	"context"
	"log/slog"

	"github.com/dgallion1/repogist/internal/chunker"
	"github.com/dgallion1/repogist/internal/token"
)

// Stage identifies a phase of the analysis pipeline. The pipeline moves
// through stages on a single linear path with no retries.
type Stage string

const (
	StageChunking    Stage = "chunking"
	StageSummarizing Stage = "summarizing"
	StageMerging     Stage = "merging"
	StageFormatting  Stage = "formatting"
	StageDone        Stage = "done"
)

// Options tunes pipeline behavior.
type Options struct {
	// MaxConcurrentSummaries bounds parallel chunk summarization. Values
	// below 2 keep the baseline sequential behavior. Results are always
	// re-ordered by chunk index before merging, so output is deterministic
	// for a fixed input either way.
	MaxConcurrentSummaries int
	// OnStage, when set, is called at each stage transition.
	OnStage func(Stage)
}

// Pipeline runs the full analysis: chunking, per-chunk summarization,
// hierarchical merging, result formatting. One Pipeline serves one run; the
// budget and metrics collector are fixed for its lifetime.
type Pipeline struct {
	completer Completer
	est       chunker.Estimator
	budget    token.Budget
	metrics   *Metrics
	log       *slog.Logger
	opts      Options
}

func NewPipeline(completer Completer, est chunker.Estimator, budget token.Budget, metrics *Metrics, log *slog.Logger, opts Options) *Pipeline {
	if opts.MaxConcurrentSummaries < 1 {
		opts.MaxConcurrentSummaries = 1
	}
	return &Pipeline{
		completer: completer,
		est:       est,
		budget:    budget,
		metrics:   metrics,
		log:       log,
		opts:      opts,
	}
}

// Analyze is the public entry point. An empty unit list short-circuits to
// the canonical empty result without a single model call. The only error
// returned is cancellation.
func (p *Pipeline) Analyze(ctx context.Context, units []chunker.TextUnit, branch string) (*FormattedResult, error) {
	meta := RunMetadata{
		TotalUnits:    len(units),
		TotalTokens:   chunker.TotalTokens(units),
		ContextWindow: p.budget.ModelMaxContext,
		UsableBudget:  p.budget.Usable(),
		Branch:        branch,
	}

	if len(units) == 0 {
		p.log.Warn("no analyzable units, returning empty result", "branch", branch)
		return emptyResult(meta), nil
	}

	p.stage(StageChunking)
	chunks := chunker.Pack(units, p.budget.ChunkSize(), p.est)
	meta.ChunkCount = len(chunks)
	p.log.Info("chunking complete",
		"units", len(units), "tokens", meta.TotalTokens,
		"chunks", len(chunks), "chunk_size", p.budget.ChunkSize())

	p.stage(StageSummarizing)
	summaries, err := p.summarizeChunks(ctx, chunks, branch)
	if err != nil {
		return nil, err
	}

	p.stage(StageMerging)
	merger := NewMerger(p.completer, p.est, p.budget.Usable(), p.metrics, p.log)
	final, err := merger.Merge(ctx, summaries)
	if err != nil {
		return nil, err
	}

	p.stage(StageFormatting)
	result := formatResult(final, meta)

	p.stage(StageDone)
	p.log.Info("analysis complete",
		"project_type", result.ProjectType, "model_calls", p.metrics.Calls())
	return result, nil
}

// summarizeChunks analyzes every chunk, sequentially by default or with a
// bounded worker pool. Summaries are returned in chunk-index order.
func (p *Pipeline) summarizeChunks(ctx context.Context, chunks []chunker.Chunk, branch string) ([]Summary, error) {
	summarizer := NewChunkSummarizer(p.completer, p.metrics, p.log)
	summaries := make([]Summary, len(chunks))

	if p.opts.MaxConcurrentSummaries < 2 || len(chunks) < 2 {
		for i, chunk := range chunks {
			s, err := summarizer.Summarize(ctx, chunk, i, len(chunks), branch)
			if err != nil {
				return nil, err
			}
			summaries[i] = s
			p.log.Info("chunk summarized", "chunk", i+1, "total", len(chunks))
		}
		return summaries, nil
	}

	type result struct {
		idx     int
		summary Summary
		err     error
	}
	results := make(chan result, len(chunks))
	sem := make(chan struct{}, p.opts.MaxConcurrentSummaries)

	for i, chunk := range chunks {
		sem <- struct{}{}
		go func(i int, chunk chunker.Chunk) {
			defer func() { <-sem }()
			s, err := summarizer.Summarize(ctx, chunk, i, len(chunks), branch)
			results <- result{idx: i, summary: s, err: err}
		}(i, chunk)
	}

	var firstErr error
	for range chunks {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		summaries[r.idx] = r.summary
		p.log.Info("chunk summarized", "chunk", r.idx+1, "total", len(chunks))
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return summaries, nil
}

func (p *Pipeline) stage(s Stage) {
	p.log.Debug("stage", "stage", string(s))
	if p.opts.OnStage != nil {
		p.opts.OnStage(s)
	}
}
