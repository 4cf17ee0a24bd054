package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/corefork/internal/config"
	"github.com/Iron-Ham/corefork/internal/launcher"
	"github.com/Iron-Ham/corefork/internal/logging"
	"github.com/Iron-Ham/corefork/internal/topology"
)

func TestRootCommand_Subcommands(t *testing.T) {
	assert.Equal(t, "corefork", rootCmd.Use)

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "topology", "config", "logs"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)

	p.Table([]string{"CORE", "PID"}, [][]string{
		{"0", "4242"},
		{"10", "7"},
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "CORE  PID", lines[0])
	assert.Equal(t, "0     4242", lines[1])
	assert.Equal(t, "10    7", lines[2])
}

func TestPrinter_UnstyledForBuffers(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	assert.False(t, p.styled)
	assert.Equal(t, "plain", p.err.Render("plain"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "short", 10, "short"},
		{"exact", "abcde", 5, "abcde"},
		{"cut", "abcdefghij", 6, "abc..."},
		{"tiny width", "abcdef", 2, "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.width))
		})
	}
}

func TestSpecFromConfig(t *testing.T) {
	app := config.Default().App
	app.ExecPath = "/srv/app.js"
	app.Args = []string{"--port", "3000"}
	app.Env = []string{"NODE_ENV=production", "broken", "EMPTY="}
	app.OutLog = "/var/log/app.out"
	app.PIDFile = "/run/app.pid"

	spec := specFromConfig(app)

	assert.Equal(t, "node", spec.Interpreter)
	assert.Equal(t, "/srv/app.js", spec.ExecPath)
	assert.Equal(t, []string{"--port", "3000"}, spec.Args)
	assert.Equal(t, map[string]string{"NODE_ENV": "production", "EMPTY": ""}, spec.Env)
	assert.Equal(t, "/var/log/app.out", spec.OutLogPath)
	assert.Equal(t, "/run/app.pid", spec.PIDFile)
}

func TestNewDiscoverer(t *testing.T) {
	cfg := config.Default()

	t.Run("static when cores set", func(t *testing.T) {
		cfg.Topology.Cores = 3
		d := newDiscoverer(cfg, logging.NopLogger())
		require.IsType(t, topology.Static{}, d)

		topo, err := d.Discover(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, topo.Resolved())
	})

	t.Run("probe otherwise", func(t *testing.T) {
		cfg.Topology.Cores = 0
		assert.IsType(t, &topology.Probe{}, newDiscoverer(cfg, logging.NopLogger()))
	})
}

func TestLogQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	core := func(n int) *int { return &n }
	entries := []logging.LogEntry{
		{Timestamp: now.Add(-2 * time.Hour), Level: "INFO", Message: "launch finished", App: "api", Core: nil},
		{Timestamp: now.Add(-30 * time.Minute), Level: "WARN", Message: "bind failed", App: "api", Core: core(1)},
		{Timestamp: now.Add(-20 * time.Minute), Level: "ERROR", Message: "spawn failed", App: "api", Core: core(2)},
		{Timestamp: now.Add(-10 * time.Minute), Level: "DEBUG", Message: "sink reopened", App: "web", Core: core(1)},
	}

	reset := func() {
		logsTail, logsLevel, logsSince, logsApp, logsCore, logsGrep = 0, "", "", "", -1, ""
	}

	tests := []struct {
		name  string
		setup func()
		want  []string
	}{
		{"no filter", func() {}, []string{"launch finished", "bind failed", "spawn failed", "sink reopened"}},
		{"level", func() { logsLevel = "warn" }, []string{"bind failed", "spawn failed"}},
		{"since", func() { logsSince = "1h" }, []string{"bind failed", "spawn failed", "sink reopened"}},
		{"app", func() { logsApp = "web" }, []string{"sink reopened"}},
		{"core", func() { logsCore = 1 }, []string{"bind failed", "sink reopened"}},
		{"grep", func() { logsGrep = "bind|spawn" }, []string{"bind failed", "spawn failed"}},
		{"tail", func() { logsTail = 1 }, []string{"sink reopened"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			t.Cleanup(reset)
			tt.setup()

			q, err := newLogQuery(now)
			require.NoError(t, err)

			input := append([]logging.LogEntry(nil), entries...)
			var got []string
			for _, e := range q.apply(input) {
				got = append(got, e.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogQuery_InvalidFlags(t *testing.T) {
	t.Cleanup(func() { logsSince, logsGrep = "", "" })

	logsSince = "yesterday"
	_, err := newLogQuery(time.Now())
	assert.ErrorContains(t, err, "invalid duration")

	logsSince, logsGrep = "", "("
	_, err = newLogQuery(time.Now())
	assert.ErrorContains(t, err, "invalid grep pattern")
}

func TestPrintLaunch(t *testing.T) {
	var buf bytes.Buffer
	spec := launcher.ProcessSpec{Name: "api", Interpreter: "node", ExecPath: "/srv/api.js"}
	result := &launcher.LaunchResult{
		BatchID: "batch-1",
		Statuses: []launcher.CoreStatus{
			{Core: 0, Err: errors.New("exec: no such file")},
			{Core: 1, Err: launcher.ErrSkipped},
		},
	}

	printLaunch(newPrinter(&buf), spec, []string{"--max-old-space-size=512"}, result)

	out := buf.String()
	assert.Contains(t, out, "api: 0 worker(s)")
	assert.Contains(t, out, "batch: batch-1")
	assert.Contains(t, out, "node [--max-old-space-size=512 /srv/api.js]")
	assert.Contains(t, out, "exec: no such file")
	assert.Equal(t, 2, strings.Count(out, "failed"))
}
