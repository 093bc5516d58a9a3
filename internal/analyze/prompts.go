package analyze

import (
	"fmt"
	"strings"

	"github.com/dgallion1/repogist/internal/chunker"
)

// previewLimit caps how much of each file's content is embedded in a chunk
// prompt, leaving token room for the analysis itself.
const previewLimit = 2000

const truncationMarker = "\n... [content truncated]"

const chunkSchema = `{
  "purpose": "",
  "technologies": [],
  "patterns": [],
  "quality_notes": "",
  "key_features": []
}`

const mergeSchema = `{
  "project_type": "",
  "purpose": "",
  "technologies": [],
  "architecture": "",
  "patterns": [],
  "quality_notes": "",
  "state": ""
}`

// buildChunkPrompt assembles the analysis instruction for one chunk,
// embedding each unit's identifier and a bounded content preview.
func buildChunkPrompt(chunk chunker.Chunk, index, total int, branch string) string {
	var sb strings.Builder

	branchNote := ""
	if branch != "" {
		branchNote = fmt.Sprintf(" (branch: %s)", branch)
	}
	fmt.Fprintf(&sb, "Analyze this portion of a code repository%s (chunk %d of %d):\n\n", branchNote, index+1, total)

	for _, unit := range chunk.Units {
		fmt.Fprintf(&sb, "=== File: %s ===\n", unit.ID)
		preview := unit.Content
		if len(preview) > previewLimit {
			preview = preview[:previewLimit] + truncationMarker
		}
		sb.WriteString(preview)
		sb.WriteString("\n\n")
	}

	sb.WriteString(`Provide a comprehensive analysis covering:
1. Main purpose and functionality of these files
2. Technologies and frameworks used
3. Key patterns or architectural decisions
4. Code quality observations
5. Notable features or issues
`)
	if branch != "" && branch != "main" && branch != "master" {
		fmt.Fprintf(&sb, "6. How this branch %q differs from main, if apparent\n", branch)
	}
	sb.WriteString("\nRespond with ONLY a JSON object in this shape, no other text:\n")
	sb.WriteString(chunkSchema)

	return sb.String()
}

// serializeSummaries renders summaries as the context block for a merge
// prompt. The same serialization is measured against the budget before the
// merge call is attempted.
func serializeSummaries(summaries []Summary) string {
	var sb strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&sb, "=== Summary %d ===\n", i+1)
		sb.WriteString(marshalSummary(s))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// buildMergePrompt assembles the instruction for combining summaries.
func buildMergePrompt(serialized string, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Merge these %d analyses of one code repository into a unified summary:\n\n", count)
	sb.WriteString(serialized)
	sb.WriteString(`Create a merged analysis that:
1. Identifies the overall project type and purpose
2. Lists all technologies used across the codebase
3. Describes the architecture and structure
4. Highlights key patterns
5. Assesses overall code quality and current state

Respond with ONLY a JSON object in this shape, no other text:
`)
	sb.WriteString(mergeSchema)
	return sb.String()
}
