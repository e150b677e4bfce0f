package workspace

import (
	"fmt"
	"os"
	"strings"
)

const (
	SafeSystemPath     = "PATH=/usr/bin:/bin:/usr/sbin:/sbin"
	ExecutablePrimary  = "/usr/bin/git"
	ExecutableFallback = "/bin/git"
)

func ResolveBinaryPath() (string, error) {
	switch {
	case ExecutableAvailable(ExecutablePrimary):
		return ExecutablePrimary, nil
	case ExecutableAvailable(ExecutableFallback):
		return ExecutableFallback, nil
	default:
		return "", fmt.Errorf("git executable not found")
	}
}

// SanitizedEnv strips variables that would point git at another repository.
func SanitizedEnv() []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env)+1)
	for _, entry := range env {
		if strings.HasPrefix(entry, "GIT_DIR=") ||
			strings.HasPrefix(entry, "GIT_WORK_TREE=") ||
			strings.HasPrefix(entry, "GIT_INDEX_FILE=") ||
			strings.HasPrefix(entry, "PATH=") {
			continue
		}
		filtered = append(filtered, entry)
	}
	return append(filtered, SafeSystemPath)
}

func ExecutableAvailable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
