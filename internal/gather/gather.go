package gather

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"

	"github.com/dgallion1/repogist/internal/chunker"
)

// DefaultMaxFileBytes skips files larger than this; big blobs are rarely
// worth the token spend.
const DefaultMaxFileBytes = 100_000

// textExtensions lists file suffixes read as analyzable text.
var textExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".tsx": true, ".jsx": true,
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
	".toml": true, ".ini": true, ".cfg": true, ".conf": true,
	".sh": true, ".bash": true, ".zsh": true, ".bat": true, ".cmd": true,
	".java": true, ".c": true, ".cpp": true, ".h": true, ".hpp": true,
	".cs": true, ".go": true, ".rs": true, ".rb": true, ".php": true,
	".swift": true, ".kt": true, ".scala": true,
	".html": true, ".css": true, ".scss": true, ".less": true,
	".xml": true, ".vue": true, ".sql": true, ".proto": true,
	".dockerignore": true, ".gitignore": true, ".mod": true, ".sum": true,
}

// specialNames are extensionless files still worth reading.
var specialNames = map[string]bool{
	"Dockerfile": true, "Makefile": true, "README": true, "LICENSE": true,
	"CHANGELOG": true, "AUTHORS": true, "CONTRIBUTORS": true,
	"CMakeLists.txt": true,
}

// Options controls gathering.
type Options struct {
	// MaxFileBytes caps the size of files read; zero uses the default.
	MaxFileBytes int64
	// Ignore holds glob patterns matched against slash-separated relative
	// paths; matching files are skipped.
	Ignore []string
}

// Gatherer walks a repository tree and produces the text units the
// analysis pipeline consumes. Identifiers are relative slash paths, unique
// and stable across runs.
type Gatherer struct {
	est     chunker.Estimator
	log     *slog.Logger
	maxSize int64
	ignore  []glob.Glob
}

func New(est chunker.Estimator, log *slog.Logger, opts Options) (*Gatherer, error) {
	maxSize := opts.MaxFileBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxFileBytes
	}

	ignore := make([]glob.Glob, 0, len(opts.Ignore))
	for _, pattern := range opts.Ignore {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("bad ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, g)
	}

	return &Gatherer{est: est, log: log, maxSize: maxSize, ignore: ignore}, nil
}

// Gather collects analyzable files under root. Unreadable files are skipped,
// not fatal; an empty repository yields an empty slice.
func (g *Gatherer) Gather(root string) ([]chunker.TextUnit, error) {
	var units []chunker.TextUnit

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			g.log.Debug("walk error, skipping", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if !textExtensions[strings.ToLower(filepath.Ext(name))] && !specialNames[name] {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)

		for _, ig := range g.ignore {
			if ig.Match(id) {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > g.maxSize {
			g.log.Debug("skipping large file", "path", id, "bytes", info.Size())
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			g.log.Debug("could not read file", "path", id, "error", err)
			return nil
		}
		content := string(data)

		units = append(units, chunker.TextUnit{
			ID:      id,
			Content: content,
			Tokens:  g.est.Estimate(content),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("gather %s: %w", root, err)
	}

	g.log.Info("gathered repository files",
		"root", root, "files", len(units), "tokens", chunker.TotalTokens(units))
	return units, nil
}
