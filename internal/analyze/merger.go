package analyze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgallion1/repogist/internal/chunker"
)

// Merger hierarchically combines partial summaries into one. When the
// serialized inputs exceed the usable budget the list is halved and the two
// halves merged independently, then combined one level up; each original
// summary therefore contributes to at most one model call per level, and
// the total number of merge calls is bounded by n-1.
type Merger struct {
	completer    Completer
	est          chunker.Estimator
	usableBudget int
	metrics      *Metrics
	log          *slog.Logger
}

func NewMerger(completer Completer, est chunker.Estimator, usableBudget int, metrics *Metrics, log *slog.Logger) *Merger {
	return &Merger{
		completer:    completer,
		est:          est,
		usableBudget: usableBudget,
		metrics:      metrics,
		log:          log,
	}
}

// Merge reduces summaries to a single root summary. A singleton input is
// returned unchanged without any model call. The only error returned is
// cancellation; merge failures degrade, they never abort.
func (m *Merger) Merge(ctx context.Context, summaries []Summary) (Summary, error) {
	if len(summaries) == 0 {
		return Summary{}, errors.New("merge requires at least one summary")
	}
	return m.mergeRecursive(ctx, summaries, 1)
}

func (m *Merger) mergeRecursive(ctx context.Context, summaries []Summary, level int) (Summary, error) {
	if err := ctx.Err(); err != nil {
		return Summary{}, canceled(ctx)
	}
	if len(summaries) == 1 {
		return summaries[0], nil
	}

	serialized := serializeSummaries(summaries)
	size := m.est.Estimate(serialized)

	// Halving a pair cannot shrink the serialized size, so a two-element
	// merge always goes to the model even when over budget; completing with
	// a possibly-truncated context beats never terminating.
	if size > m.usableBudget && len(summaries) > 2 {
		m.log.Info("merge context over budget, splitting",
			"level", level, "summaries", len(summaries), "tokens", size)
		mid := len(summaries) / 2
		left, err := m.mergeRecursive(ctx, summaries[:mid], level)
		if err != nil {
			return Summary{}, err
		}
		right, err := m.mergeRecursive(ctx, summaries[mid:], level)
		if err != nil {
			return Summary{}, err
		}
		return m.mergeRecursive(ctx, []Summary{left, right}, level+1)
	}

	return m.externalMerge(ctx, summaries, serialized, level)
}

// externalMerge performs one model call over two or more serialized
// summaries. Parse failures produce a degraded summary so recursion can
// continue.
func (m *Merger) externalMerge(ctx context.Context, summaries []Summary, serialized string, level int) (Summary, error) {
	m.log.Info("merging summaries", "level", level, "summaries", len(summaries))
	m.metrics.RecordCall(CallMerge, fmt.Sprintf("level %d (%d summaries)", level, len(summaries)))

	prompt := buildMergePrompt(serialized, len(summaries))
	raw, err := m.completer.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return Summary{}, canceled(ctx)
		}
		m.log.Warn("merge call failed, degrading", "level", level, "error", err)
		raw = ""
	}

	merged, issue := ParseSummary(raw)
	if issue != nil {
		m.log.Warn("merge parse failed, using raw response",
			"level", level, "reason", issue.Reason)
		return degradedSummary(raw, level, len(summaries)), nil
	}

	// Provenance comes from the recursion, not from the model.
	merged.MergeLevel = level
	merged.SourceCount = len(summaries)
	return merged, nil
}
