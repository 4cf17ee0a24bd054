package internal

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/Iron-Ham/corefork/internal/testutil"
)

// TestGolangciLintCompliance runs golangci-lint over the module. It is
// skipped when golangci-lint is not installed.
func TestGolangciLintCompliance(t *testing.T) {
	testutil.SkipIfNoGolangciLint(t)

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	projectRoot := wd
	if filepath.Base(wd) == "internal" {
		projectRoot = filepath.Dir(wd)
	}

	cmd := exec.Command("golangci-lint", "run", "--allow-parallel-runners", "./...")
	cmd.Dir = projectRoot
	// A per-test build cache keeps the run working in sandboxes with a
	// read-only home directory.
	cmd.Env = append(os.Environ(), "GOCACHE="+t.TempDir())
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Errorf("golangci-lint found issues:\n%s", output)
	}
}
