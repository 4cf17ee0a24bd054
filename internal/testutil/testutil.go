// Package testutil provides helpers shared by corefork tests that run real
// processes.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// SkipIfNoCommand skips the test if name is not found in PATH. It returns
// the resolved path.
func SkipIfNoCommand(t *testing.T, name string) string {
	t.Helper()

	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not found in PATH, skipping test", name)
	}
	return path
}

// SkipIfNoShell skips the test if /bin/sh is missing.
func SkipIfNoShell(t *testing.T) {
	t.Helper()

	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available, skipping test")
	}
}

// SkipIfNoTaskset skips the test if taskset is not installed.
func SkipIfNoTaskset(t *testing.T) string {
	t.Helper()
	return SkipIfNoCommand(t, "taskset")
}

// SkipIfNoGolangciLint skips the test if golangci-lint is not installed.
func SkipIfNoGolangciLint(t *testing.T) {
	t.Helper()
	SkipIfNoCommand(t, "golangci-lint")
}

// WriteScript writes an executable /bin/sh script with body to a temporary
// directory and returns its path.
func WriteScript(t *testing.T, body string) string {
	t.Helper()
	SkipIfNoShell(t)

	path := filepath.Join(t.TempDir(), "worker.sh")
	content := "#!/bin/sh\n" + strings.TrimLeft(body, "\n")
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

// LogPaths returns out, err and combined sink paths inside a fresh temporary
// directory. The files do not exist yet.
func LogPaths(t *testing.T) (out, errPath, combined string) {
	t.Helper()

	dir := t.TempDir()
	return filepath.Join(dir, "app-out.log"),
		filepath.Join(dir, "app-err.log"),
		filepath.Join(dir, "app.log")
}

// ReadFile returns the content of path on fs, or "" when it does not exist.
func ReadFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// WaitForContent polls path on fs until it contains want or timeout passes.
func WaitForContent(t *testing.T, fs afero.Fs, path, want string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		if strings.Contains(ReadFile(t, fs, path), want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("%s does not contain %q after %v; content: %q", path, want, timeout, ReadFile(t, fs, path))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
