package analyze

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/repogist/internal/chunker"
)

// Completer is the external text-completion capability. Implementations may
// stream internally; the adapter owns retry and timeout policy. A returned
// error other than cancellation is treated the same as unparseable output.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ChunkSummarizer produces a level-0 Summary for each chunk. Malformed model
// output degrades to a freeform-notes summary instead of failing: one bad
// chunk must never abort the run.
type ChunkSummarizer struct {
	completer Completer
	metrics   *Metrics
	log       *slog.Logger
}

func NewChunkSummarizer(completer Completer, metrics *Metrics, log *slog.Logger) *ChunkSummarizer {
	return &ChunkSummarizer{completer: completer, metrics: metrics, log: log}
}

// Summarize analyzes one chunk. The only error it returns is cancellation;
// every capability failure is recovered locally as a degraded summary.
func (s *ChunkSummarizer) Summarize(ctx context.Context, chunk chunker.Chunk, index, total int, branch string) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, canceled(ctx)
	}

	prompt := buildChunkPrompt(chunk, index, total, branch)
	s.metrics.RecordCall(CallChunkSummary, fmt.Sprintf("chunk %d/%d", index+1, total))

	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Summary{}, canceled(ctx)
		}
		// The capability surfaces faults as erroneous text; recover the
		// same way as a parse failure.
		s.log.Warn("chunk summarization call failed, degrading",
			"chunk", index+1, "error", err)
		raw = ""
	}

	summary, issue := ParseSummary(raw)
	if issue != nil {
		s.log.Warn("chunk summary parse failed, using raw response",
			"chunk", index+1, "reason", issue.Reason)
		return degradedSummary(raw, 0, len(chunk.Units)), nil
	}

	summary.MergeLevel = 0
	summary.SourceCount = len(chunk.Units)
	return summary, nil
}
