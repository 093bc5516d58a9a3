package analyze

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// lenEstimator costs one token per byte, making budget checks exact.
type lenEstimator struct{}

func (lenEstimator) Estimate(text string) int { return len(text) }

const mergedResponse = `{"project_type":"library","purpose":"merged","technologies":["go"],"patterns":[],"state":"active"}`

func leafSummaries(n int) []Summary {
	out := make([]Summary, n)
	for i := range out {
		out[i] = Summary{
			Purpose:     fmt.Sprintf("chunk %d purpose", i),
			SourceCount: 1,
		}
	}
	return out
}

func TestMerge_SingletonIdentity(t *testing.T) {
	fc := &fakeCompleter{}
	m := NewMerger(fc, lenEstimator{}, 1000, NewMetrics(), discardLogger())

	in := Summary{Purpose: "only one", MergeLevel: 0, SourceCount: 3}
	got, err := m.Merge(context.Background(), []Summary{in})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Purpose != in.Purpose || got.MergeLevel != in.MergeLevel || got.SourceCount != in.SourceCount {
		t.Errorf("singleton merge must return the element unchanged, got %+v", got)
	}
	if fc.callCount() != 0 {
		t.Errorf("singleton merge must not call the model, got %d calls", fc.callCount())
	}
}

func TestMerge_EmptyInputIsError(t *testing.T) {
	m := NewMerger(&fakeCompleter{}, lenEstimator{}, 1000, NewMetrics(), discardLogger())
	if _, err := m.Merge(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestMerge_CallCountBound(t *testing.T) {
	// A tight budget forces the recursion into pairwise merges, the worst
	// case for call count; the merge-tree bound of n-1 must still hold.
	for _, n := range []int{1, 2, 3, 7, 16} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			fc := &fakeCompleter{respond: func(string) (string, error) {
				return mergedResponse, nil
			}}
			m := NewMerger(fc, lenEstimator{}, 10, NewMetrics(), discardLogger())

			got, err := m.Merge(context.Background(), leafSummaries(n))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if fc.callCount() > n-1 && n > 1 {
				t.Errorf("expected at most %d calls, got %d", n-1, fc.callCount())
			}
			if n == 1 && fc.callCount() != 0 {
				t.Errorf("singleton must not call the model")
			}
			if n > 1 && got.MergeLevel < 1 {
				t.Errorf("merged summary must carry a positive level, got %d", got.MergeLevel)
			}
		})
	}
}

func TestMerge_SingleCallWhenBudgetAllows(t *testing.T) {
	fc := &fakeCompleter{respond: func(string) (string, error) {
		return mergedResponse, nil
	}}
	m := NewMerger(fc, lenEstimator{}, 1<<20, NewMetrics(), discardLogger())

	got, err := m.Merge(context.Background(), leafSummaries(7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fc.callCount() != 1 {
		t.Errorf("all summaries fit the budget, expected 1 call, got %d", fc.callCount())
	}
	if got.MergeLevel != 1 {
		t.Errorf("expected level 1, got %d", got.MergeLevel)
	}
	if got.SourceCount != 7 {
		t.Errorf("expected source count 7, got %d", got.SourceCount)
	}
}

func TestMerge_LevelIncreasesAcrossSplits(t *testing.T) {
	fc := &fakeCompleter{respond: func(string) (string, error) {
		return mergedResponse, nil
	}}
	// Budget small enough that 4 summaries split but 2 fit.
	m := NewMerger(fc, lenEstimator{}, 450, NewMetrics(), discardLogger())

	got, err := m.Merge(context.Background(), leafSummaries(4))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.MergeLevel < 2 {
		t.Errorf("combining two sub-merges must raise the level, got %d", got.MergeLevel)
	}
}

func TestMerge_MalformedOutputDegradesAndContinues(t *testing.T) {
	fc := &fakeCompleter{respond: func(string) (string, error) {
		return "the model rambled instead of returning JSON", nil
	}}
	m := NewMerger(fc, lenEstimator{}, 1<<20, NewMetrics(), discardLogger())

	got, err := m.Merge(context.Background(), leafSummaries(3))
	if err != nil {
		t.Fatalf("merge must never throw for malformed output: %v", err)
	}
	if !got.Degraded {
		t.Error("expected degraded summary")
	}
	if got.FreeformNotes == "" {
		t.Error("degraded summary must keep raw text")
	}
	if got.MergeLevel != 1 || got.SourceCount != 3 {
		t.Errorf("degraded summary must still carry provenance, got level %d sources %d",
			got.MergeLevel, got.SourceCount)
	}
}

func TestMerge_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMerger(&fakeCompleter{}, lenEstimator{}, 1000, NewMetrics(), discardLogger())
	_, err := m.Merge(ctx, leafSummaries(4))
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %v", err)
	}
}

func TestMerge_CountsCallsInMetrics(t *testing.T) {
	fc := &fakeCompleter{respond: func(string) (string, error) {
		return mergedResponse, nil
	}}
	metrics := NewMetrics()
	m := NewMerger(fc, lenEstimator{}, 1<<20, metrics, discardLogger())

	if _, err := m.Merge(context.Background(), leafSummaries(5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.Calls() != fc.callCount() {
		t.Errorf("metrics recorded %d calls, completer saw %d", metrics.Calls(), fc.callCount())
	}
	snap := metrics.Snapshot()
	if snap.ByKind[CallMerge] != fc.callCount() {
		t.Errorf("expected %d merge calls in snapshot, got %d", fc.callCount(), snap.ByKind[CallMerge])
	}
}
