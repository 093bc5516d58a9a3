package token

// PromptOverhead is the token allowance reserved for prompt scaffolding in
// every summarization call.
const PromptOverhead = 500

// DefaultReserveFraction keeps headroom in the model context for the prompt
// wrapper and the response itself.
const DefaultReserveFraction = 0.7

// Budget is the context-window budget for one analysis run. It is fixed for
// the lifetime of a run.
type Budget struct {
	// ModelMaxContext is the model's full context window in tokens.
	ModelMaxContext int
	// ReserveFraction is the usable share of the window (0 < f <= 1).
	ReserveFraction float64
}

// NewBudget builds a budget for a model context window, applying the default
// reserve fraction when none is given.
func NewBudget(maxContext int, reserveFraction float64) Budget {
	if reserveFraction <= 0 || reserveFraction > 1 {
		reserveFraction = DefaultReserveFraction
	}
	return Budget{
		ModelMaxContext: maxContext,
		ReserveFraction: reserveFraction,
	}
}

// Usable returns the maximum aggregate token cost permitted in a single
// summarization or merge call.
func (b Budget) Usable() int {
	return int(float64(b.ModelMaxContext) * b.ReserveFraction)
}

// ChunkSize returns the token budget for the file content of one chunk,
// after subtracting the prompt overhead.
func (b Budget) ChunkSize() int {
	size := b.Usable() - PromptOverhead
	if size < 1 {
		size = 1
	}
	return size
}
