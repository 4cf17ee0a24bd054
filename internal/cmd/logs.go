package cmd

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/corefork/internal/config"
	"github.com/Iron-Ham/corefork/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the supervisor log",
	Long: `View and filter the supervisor's own log. Worker output is written to the
per-stream files configured for the application, not here.

Examples:
  # Show the last 50 entries
  corefork logs

  # Everything a single core's worker went through
  corefork logs --core 3 -n 0

  # Warnings and errors from the last hour, as CSV
  corefork logs --level warn --since 1h --format csv

  # Search messages
  corefork logs --grep "bind|spawn"`,
	RunE: runLogs,
}

var (
	logsTail   int
	logsLevel  string
	logsSince  string
	logsApp    string
	logsCore   int
	logsGrep   string
	logsFormat string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show entries since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsApp, "app", "", "Filter by application name")
	logsCmd.Flags().IntVar(&logsCore, "core", -1, "Filter by core index")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter entries whose message matches pattern (regex)")
	logsCmd.Flags().StringVar(&logsFormat, "format", "text", "Output format: text, json or csv")
}

// logQuery is the parsed form of the logs flags.
type logQuery struct {
	filter logging.LogFilter
	grep   *regexp.Regexp
	tail   int
}

func newLogQuery(now time.Time) (logQuery, error) {
	q := logQuery{
		filter: logging.LogFilter{App: logsApp},
		tail:   logsTail,
	}
	if logsLevel != "" {
		q.filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return q, fmt.Errorf("invalid duration format: %w", err)
		}
		q.filter.Since = now.Add(-d)
	}
	if logsCore >= 0 {
		core := logsCore
		q.filter.Core = &core
	}
	if logsGrep != "" {
		re, err := regexp.Compile(logsGrep)
		if err != nil {
			return q, fmt.Errorf("invalid grep pattern: %w", err)
		}
		q.grep = re
	}
	return q, nil
}

// apply filters entries and keeps the last tail of them.
func (q logQuery) apply(entries []logging.LogEntry) []logging.LogEntry {
	entries = logging.FilterLogs(entries, q.filter)
	if q.grep != nil {
		kept := entries[:0]
		for _, e := range entries {
			if q.grep.MatchString(e.Message) {
				kept = append(kept, e)
			}
		}
		entries = kept
	}
	if q.tail > 0 && len(entries) > q.tail {
		entries = entries[len(entries)-q.tail:]
	}
	return entries
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	q, err := newLogQuery(time.Now())
	if err != nil {
		return err
	}

	logPath := filepath.Join(cfg.LogDir(), logging.LogFileName)
	fs := afero.NewOsFs()
	out := newPrinter(cmd.OutOrStdout())
	if ok, _ := afero.Exists(fs, logPath); !ok {
		out.Printf("No supervisor log found at %s\n", logPath)
		out.Printf("Enable it with logging.enabled: true\n")
		return nil
	}

	entries, err := logging.ReadLogs(fs, logPath)
	if err != nil {
		return err
	}
	return logging.ExportLogEntries(cmd.OutOrStdout(), q.apply(entries), logsFormat)
}
