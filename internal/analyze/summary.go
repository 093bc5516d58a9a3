package analyze

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Summary is one structured analysis record. Level 0 summaries come from
// chunk analysis; higher levels come from hierarchical merging. A Summary is
// never mutated after creation — merging produces new values.
type Summary struct {
	Purpose       string   `json:"purpose"`
	ProjectType   string   `json:"project_type,omitempty"`
	Technologies  []string `json:"technologies"`
	Patterns      []string `json:"patterns"`
	Architecture  string   `json:"architecture,omitempty"`
	QualityNotes  string   `json:"quality_notes,omitempty"`
	KeyFeatures   []string `json:"key_features,omitempty"`
	State         string   `json:"state,omitempty"`
	FreeformNotes string   `json:"freeform_notes,omitempty"`

	// Degraded marks a summary recovered from unparseable model output.
	// Only FreeformNotes carries content in that case.
	Degraded bool `json:"degraded,omitempty"`

	// MergeLevel is the depth in the merge tree: 0 for chunk summaries,
	// incremented each time two partial merges are combined.
	MergeLevel int `json:"merge_level"`
	// SourceCount is how many inputs produced this summary.
	SourceCount int `json:"source_count"`
}

// ParseIssue describes why a raw model response could not be parsed into a
// Summary. Callers branch on it explicitly instead of catching errors.
type ParseIssue struct {
	Reason string
	Raw    string
}

var codeFenceRe = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseSummary attempts to decode a model response into a Summary. Markdown
// code fences are stripped first. On failure the returned issue is non-nil
// and the Summary is the zero value; ParseSummary itself never fails hard.
func ParseSummary(raw string) (Summary, *ParseIssue) {
	text := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(text); len(m) > 1 {
		text = m[1]
	}
	if text == "" {
		return Summary{}, &ParseIssue{Reason: "empty response", Raw: raw}
	}

	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return Summary{}, &ParseIssue{Reason: err.Error(), Raw: raw}
	}

	s.Technologies = dedupe(s.Technologies)
	s.Patterns = dedupe(s.Patterns)
	s.KeyFeatures = dedupe(s.KeyFeatures)
	return s, nil
}

// degradePreviewLimit bounds how much raw model output a degraded summary
// keeps as freeform notes.
const degradePreviewLimit = 500

// degradedSummary builds the low-confidence fallback used when model output
// cannot be parsed. Structured fields stay empty; only the freeform notes
// carry the first part of the raw response.
func degradedSummary(raw string, level, sourceCount int) Summary {
	return Summary{
		FreeformNotes: truncate(strings.TrimSpace(raw), degradePreviewLimit),
		Degraded:      true,
		MergeLevel:    level,
		SourceCount:   sourceCount,
	}
}

// marshalSummary renders a summary as indented JSON for merge prompts.
func marshalSummary(s Summary) string {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// dedupe normalizes a best-effort set: trims entries, drops empties and
// duplicates, and sorts for stable output.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
