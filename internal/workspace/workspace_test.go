package workspace

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ben-ranford/reqmap/internal/testutil"
)

func TestNormalizeRepoPath(t *testing.T) {
	got, err := NormalizeRepoPath("")
	if err != nil {
		t.Fatalf("normalize empty path: %v", err)
	}
	want, err := filepath.Abs(".")
	if err != nil {
		t.Fatalf("abs dot: %v", err)
	}
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if _, err := NormalizeRepoPath(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatalf("expected error for missing path")
	}
	file := testutil.WriteTempFile(t, "a.txt", "x")
	if _, err := NormalizeRepoPath(file); err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Fatalf("expected not a directory error, got %v", err)
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	gitPath, err := ResolveBinaryPath()
	if err != nil {
		t.Skip("git binary not available")
	}
	repo := t.TempDir()
	testutil.MustWriteFile(t, filepath.Join(repo, "reqmap.manifest.yaml"), "version: 1\nrequests: {}\n")
	for _, args := range [][]string{
		{"init", "-q"},
		{"-c", "user.email=dev@example.com", "-c", "user.name=dev", "add", "."},
		{"-c", "user.email=dev@example.com", "-c", "user.name=dev", "commit", "-q", "-m", "init"},
	} {
		cmd := exec.Command(gitPath, append([]string{"-C", repo}, args...)...)
		cmd.Env = SanitizedEnv()
		if output, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, output)
		}
	}
	return repo
}

func TestRevisionAndDirty(t *testing.T) {
	repo := initRepo(t)
	ctx := context.Background()

	sha, err := Revision(ctx, repo)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if len(sha) < 7 {
		t.Fatalf("expected commit sha, got %q", sha)
	}

	dirty, err := Dirty(ctx, repo, "reqmap.manifest.yaml")
	if err != nil {
		t.Fatalf("dirty: %v", err)
	}
	if dirty {
		t.Fatalf("expected clean manifest")
	}
	testutil.MustWriteFile(t, filepath.Join(repo, "reqmap.manifest.yaml"), "version: 1\nrequests: {a: {unresolvable: true}}\n")
	dirty, err = Dirty(ctx, repo, "reqmap.manifest.yaml")
	if err != nil {
		t.Fatalf("dirty: %v", err)
	}
	if !dirty {
		t.Fatalf("expected modified manifest to be dirty")
	}
}

func TestRevisionOutsideRepository(t *testing.T) {
	if _, err := ResolveBinaryPath(); err != nil {
		t.Skip("git binary not available")
	}
	dir := t.TempDir()
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	if _, err := Revision(context.Background(), dir); !errors.Is(err, ErrNotARepository) {
		t.Fatalf("expected ErrNotARepository, got %v", err)
	}
}

func TestRevisionCanceled(t *testing.T) {
	repo := initRepo(t)
	if _, err := Revision(testutil.CanceledContext(), repo); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestSanitizedEnv(t *testing.T) {
	t.Setenv("PATH", "/tmp/custom-bin")
	t.Setenv("GIT_DIR", "/tmp/fake-git-dir")
	t.Setenv("GIT_WORK_TREE", "/tmp/fake-worktree")
	t.Setenv("GIT_INDEX_FILE", "/tmp/fake-index")
	t.Setenv("KEEP_ME", "1")

	env := strings.Join(SanitizedEnv(), "\n")
	if !strings.Contains(env, SafeSystemPath) {
		t.Fatalf("expected safe path in env, got %s", env)
	}
	for _, stripped := range []string{"GIT_DIR=", "GIT_WORK_TREE=", "GIT_INDEX_FILE=", "PATH=/tmp/custom-bin"} {
		if strings.Contains(env, stripped) {
			t.Fatalf("expected %s to be stripped, got %s", stripped, env)
		}
	}
	if !strings.Contains(env, "KEEP_ME=1") {
		t.Fatalf("expected unrelated env vars to be preserved")
	}
}

func TestExecutableAvailable(t *testing.T) {
	if ExecutableAvailable(t.TempDir()) {
		t.Fatalf("expected directory to be unavailable")
	}
	filePath := filepath.Join(t.TempDir(), "git")
	if err := os.WriteFile(filePath, []byte("#!/bin/sh\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if ExecutableAvailable(filePath) {
		t.Fatalf("expected non-executable file to be unavailable")
	}
	if err := os.Chmod(filePath, 0o700); err != nil {
		t.Fatalf("chmod file executable: %v", err)
	}
	if !ExecutableAvailable(filePath) {
		t.Fatalf("expected executable file to be available")
	}
}
