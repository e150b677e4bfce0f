// Package workspace locates the repository being built and the git revision
// it was built from.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var ErrNotARepository = errors.New("not a git repository")

func NormalizeRepoPath(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat repo path: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repo path is not a directory: %s", abs)
	}
	return abs, nil
}

// Revision returns the commit HEAD points at. Repositories without git, or
// without commits, report ErrNotARepository.
func Revision(ctx context.Context, repoPath string) (string, error) {
	normalized, err := NormalizeRepoPath(repoPath)
	if err != nil {
		return "", err
	}
	output, err := runGit(ctx, normalized, "rev-parse", "--verify", "HEAD")
	if err != nil {
		return "", err
	}
	return output, nil
}

// Dirty reports whether path, relative to the repository, has uncommitted
// changes.
func Dirty(ctx context.Context, repoPath, path string) (bool, error) {
	normalized, err := NormalizeRepoPath(repoPath)
	if err != nil {
		return false, err
	}
	output, err := runGit(ctx, normalized, "status", "--porcelain", "--", path)
	if err != nil {
		return false, err
	}
	return output != "", nil
}

func runGit(ctx context.Context, repoPath string, args ...string) (string, error) {
	gitPath, err := ResolveBinaryPath()
	if err != nil {
		return "", err
	}
	// #nosec G204 -- the binary comes from fixed system paths and repoPath is an absolute directory.
	cmd := exec.CommandContext(ctx, gitPath, append([]string{"-C", repoPath}, args...)...)
	cmd.Env = SanitizedEnv()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		message := strings.TrimSpace(stderr.String())
		if strings.Contains(message, "not a git repository") || strings.Contains(message, "Needed a single revision") {
			return "", fmt.Errorf("%w: %s", ErrNotARepository, repoPath)
		}
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, message)
	}
	return strings.TrimSpace(string(output)), nil
}
