package chunker

import (
	"fmt"
	"sort"
)

// Estimator supplies token costs for re-estimating split sub-parts.
type Estimator interface {
	Estimate(text string) int
}

// TextUnit is one gathered file (or file fragment) to be summarized.
// Immutable once created.
type TextUnit struct {
	// ID is a unique, stable identifier: the relative path, or
	// "path (part i/n)" for fragments of an oversized file.
	ID      string
	Content string
	// Tokens is the estimated token cost of Content.
	Tokens int
}

// Chunk is an ordered group of units whose combined cost fits the chunk
// budget, summarized together in one model call.
type Chunk struct {
	Units       []TextUnit
	TotalTokens int
}

// Pack partitions units into chunks of at most chunkSize tokens using a
// single greedy left-to-right pass. Units are sorted by ID first so the
// grouping is deterministic regardless of gathering order. A unit that is
// itself larger than chunkSize is split into contiguous sub-parts, each
// emitted as its own singleton chunk.
//
// Zero units produce zero chunks; callers treat that as an empty project,
// not an error.
func Pack(units []TextUnit, chunkSize int, est Estimator) []Chunk {
	if len(units) == 0 {
		return nil
	}
	if chunkSize < 1 {
		chunkSize = 1
	}

	sorted := make([]TextUnit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var chunks []Chunk
	var current []TextUnit
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, Chunk{Units: current, TotalTokens: currentTokens})
			current = nil
			currentTokens = 0
		}
	}

	for _, unit := range sorted {
		switch {
		case unit.Tokens > chunkSize:
			flush()
			for _, part := range splitUnit(unit, chunkSize, est) {
				chunks = append(chunks, Chunk{Units: []TextUnit{part}, TotalTokens: part.Tokens})
			}
		case currentTokens+unit.Tokens > chunkSize:
			flush()
			current = []TextUnit{unit}
			currentTokens = unit.Tokens
		default:
			current = append(current, unit)
			currentTokens += unit.Tokens
		}
	}
	flush()

	return chunks
}

// splitUnit divides an oversized unit into ceil(cost/chunkSize) contiguous
// content slices of near-equal length. Each sub-part's cost is re-estimated
// from its actual content rather than apportioned from the parent's cost;
// the split count itself comes from the parent estimate, so this is a
// single pass with no recursive re-splitting.
func splitUnit(unit TextUnit, chunkSize int, est Estimator) []TextUnit {
	total := (unit.Tokens + chunkSize - 1) / chunkSize

	runes := []rune(unit.Content)
	partLen := (len(runes) + total - 1) / total
	if partLen < 1 {
		partLen = 1
	}

	parts := make([]TextUnit, 0, total)
	for i := 0; i < total; i++ {
		start := i * partLen
		if start >= len(runes) {
			break
		}
		end := start + partLen
		if end > len(runes) {
			end = len(runes)
		}
		content := string(runes[start:end])
		parts = append(parts, TextUnit{
			ID:      fmt.Sprintf("%s (part %d/%d)", unit.ID, i+1, total),
			Content: content,
			Tokens:  est.Estimate(content),
		})
	}
	return parts
}

// TotalTokens sums the estimated cost of all units.
func TotalTokens(units []TextUnit) int {
	total := 0
	for _, u := range units {
		total += u.Tokens
	}
	return total
}
