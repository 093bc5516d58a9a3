package analyze

// RunMetadata describes the shape of one analysis run.
type RunMetadata struct {
	TotalUnits    int    `json:"total_units"`
	TotalTokens   int    `json:"total_tokens"`
	ChunkCount    int    `json:"chunks_created"`
	ContextWindow int    `json:"context_window"`
	UsableBudget  int    `json:"usable_budget"`
	Branch        string `json:"branch,omitempty"`
}

// FormattedResult is the final output of an analysis run: the root summary
// flattened into consumer-facing fields plus run metadata. Technologies and
// Patterns are best-effort sets and may be empty for degraded merge chains.
type FormattedResult struct {
	ProjectType  string   `json:"project_type"`
	Technologies []string `json:"technologies"`
	State        string   `json:"state"`
	Architecture string   `json:"architecture"`
	Quality      string   `json:"quality"`
	Patterns     []string `json:"patterns"`
	Branch       string   `json:"branch,omitempty"`

	Detail   Summary     `json:"detailed_analysis"`
	Metadata RunMetadata `json:"analysis_metadata"`
}

// formatResult flattens the root summary into the public result shape,
// substituting defaults for fields the model left blank.
func formatResult(final Summary, meta RunMetadata) *FormattedResult {
	projectType := final.ProjectType
	if projectType == "" {
		projectType = "unknown"
	}
	state := final.State
	if state == "" {
		state = final.Purpose
	}
	if state == "" {
		state = "analyzed"
	}

	return &FormattedResult{
		ProjectType:  projectType,
		Technologies: emptyIfNil(final.Technologies),
		State:        state,
		Architecture: final.Architecture,
		Quality:      final.QualityNotes,
		Patterns:     emptyIfNil(final.Patterns),
		Branch:       meta.Branch,
		Detail:       final,
		Metadata:     meta,
	}
}

// emptyResult is the canonical terminal result for a repository with no
// analyzable files. No model call is made to produce it.
func emptyResult(meta RunMetadata) *FormattedResult {
	return &FormattedResult{
		ProjectType:  "empty",
		Technologies: []string{},
		State:        "no analyzable files found",
		Patterns:     []string{},
		Branch:       meta.Branch,
		Metadata:     meta,
	}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
