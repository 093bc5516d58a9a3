package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/dgallion1/repogist/internal/analyze"
)

// Report renders one or more analysis results (one per branch) as markdown
// and HTML.
type Report struct {
	RepoPath    string
	Model       string
	GeneratedAt time.Time
	Results     []*analyze.FormattedResult
}

func New(repoPath, model string, results ...*analyze.FormattedResult) *Report {
	return &Report{
		RepoPath:    repoPath,
		Model:       model,
		GeneratedAt: time.Now(),
		Results:     results,
	}
}

// Markdown renders the full report as a markdown document.
func (r *Report) Markdown() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Repository Analysis: %s\n\n", r.RepoPath)
	fmt.Fprintf(&sb, "Generated %s", r.GeneratedAt.Format(time.RFC1123))
	if r.Model != "" {
		fmt.Fprintf(&sb, " using model `%s`", r.Model)
	}
	sb.WriteString("\n\n")

	for _, result := range r.Results {
		writeResult(&sb, result, len(r.Results) > 1)
	}

	return sb.String()
}

func writeResult(sb *strings.Builder, result *analyze.FormattedResult, multiBranch bool) {
	if multiBranch {
		branch := result.Branch
		if branch == "" {
			branch = "(detached)"
		}
		fmt.Fprintf(sb, "## Branch: %s\n\n", branch)
	} else {
		sb.WriteString("## Summary\n\n")
	}

	fmt.Fprintf(sb, "- **Project type:** %s\n", result.ProjectType)
	fmt.Fprintf(sb, "- **State:** %s\n", result.State)
	if result.Architecture != "" {
		fmt.Fprintf(sb, "- **Architecture:** %s\n", result.Architecture)
	}
	if result.Quality != "" {
		fmt.Fprintf(sb, "- **Quality:** %s\n", result.Quality)
	}
	sb.WriteString("\n")

	writeSet(sb, "Technologies", result.Technologies)
	writeSet(sb, "Patterns", result.Patterns)

	if result.Detail.Degraded {
		sb.WriteString("> Note: the model returned unstructured output for part of this analysis; ")
		sb.WriteString("fields above are best-effort.\n\n")
		if result.Detail.FreeformNotes != "" {
			fmt.Fprintf(sb, "```\n%s\n```\n\n", result.Detail.FreeformNotes)
		}
	}

	m := result.Metadata
	sb.WriteString("### Run details\n\n")
	fmt.Fprintf(sb, "| Files | Tokens | Chunks | Context window | Usable budget |\n")
	fmt.Fprintf(sb, "|---|---|---|---|---|\n")
	fmt.Fprintf(sb, "| %d | %d | %d | %d | %d |\n\n",
		m.TotalUnits, m.TotalTokens, m.ChunkCount, m.ContextWindow, m.UsableBudget)
}

func writeSet(sb *strings.Builder, title string, values []string) {
	if len(values) == 0 {
		return
	}
	fmt.Fprintf(sb, "### %s\n\n", title)
	for _, v := range values {
		fmt.Fprintf(sb, "- %s\n", v)
	}
	sb.WriteString("\n")
}

const htmlShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>repogist report</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 860px; margin: 2rem auto; padding: 0 1rem; color: #24292f; }
table { border-collapse: collapse; }
td, th { border: 1px solid #d0d7de; padding: 4px 10px; }
code, pre { background: #f6f8fa; border-radius: 4px; }
pre { padding: 10px; overflow-x: auto; }
blockquote { color: #57606a; border-left: 3px solid #d0d7de; margin-left: 0; padding-left: 1em; }
</style>
</head>
<body>
%s</body>
</html>
`

// HTML renders the markdown report through goldmark into a standalone page.
func (r *Report) HTML() (string, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(r.Markdown()), &body); err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return fmt.Sprintf(htmlShell, body.String()), nil
}

// WriteFiles writes the markdown and HTML renditions into dir, returning
// both paths.
func (r *Report) WriteFiles(dir string) (string, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}

	stamp := r.GeneratedAt.Format("20060102_150405")
	mdPath := filepath.Join(dir, fmt.Sprintf("repogist_report_%s.md", stamp))
	htmlPath := filepath.Join(dir, fmt.Sprintf("repogist_report_%s.html", stamp))

	if err := os.WriteFile(mdPath, []byte(r.Markdown()), 0o644); err != nil {
		return "", "", fmt.Errorf("write markdown report: %w", err)
	}
	html, err := r.HTML()
	if err != nil {
		return "", "", err
	}
	if err := os.WriteFile(htmlPath, []byte(html), 0o644); err != nil {
		return "", "", fmt.Errorf("write html report: %w", err)
	}
	return mdPath, htmlPath, nil
}
