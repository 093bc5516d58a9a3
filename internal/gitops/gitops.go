package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitError wraps a failed git invocation with its captured output.
type GitError struct {
	Op     string
	Output string
	Err    error
}

func (e *GitError) Error() string {
	msg := fmt.Sprintf("git %s: %v", e.Op, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *GitError) Unwrap() error { return e.Err }

func run(ctx context.Context, repoPath string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &GitError{Op: strings.Join(args, " "), Output: string(out), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// IsRepository reports whether path contains a .git entry.
func IsRepository(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}

// CurrentBranch returns the checked-out branch name.
func CurrentBranch(ctx context.Context, repoPath string) (string, error) {
	return run(ctx, repoPath, "branch", "--show-current")
}

// Branches lists all local branches.
func Branches(ctx context.Context, repoPath string) ([]string, error) {
	out, err := run(ctx, repoPath, "branch", "--format=%(refname:short)")
	if err != nil {
		return nil, err
	}
	var branches []string
	for _, line := range strings.Split(out, "\n") {
		if b := strings.TrimSpace(line); b != "" {
			branches = append(branches, b)
		}
	}
	return branches, nil
}

// Checkout switches the working tree to branch.
func Checkout(ctx context.Context, repoPath, branch string) error {
	_, err := run(ctx, repoPath, "checkout", branch)
	return err
}
