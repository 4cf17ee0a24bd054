package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/corefork/internal/config"
	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
	"github.com/Iron-Ham/corefork/internal/launcher"
	"github.com/Iron-Ham/corefork/internal/logging"
)

var startCmd = &cobra.Command{
	Use:   "start [exec-path] [-- args...]",
	Short: "Launch one worker per core and supervise them",
	Long: `Start resolves the number of usable cores and launches one copy of the
application per core, each pinned to its core. It stays in the foreground until
every worker has exited or it receives SIGINT or SIGTERM, which stops the
workers. SIGUSR2 reopens every worker's log files.

When the core count cannot be determined, a single unpinned worker is started
instead.

Examples:
  # Run a Node server on every core
  corefork start /app/server.js -- --port 3000

  # Run a native binary directly, logging to files
  corefork start --interpreter none --out-log /var/log/api.out --err-log /var/log/api.err /usr/bin/api`,
	RunE: runStart,
}

var startAttach bool

func init() {
	rootCmd.AddCommand(startCmd)

	flags := startCmd.Flags()
	flags.String("name", "", "Application name")
	flags.String("interpreter", "", `Interpreter running the executable ("none" to run it directly)`)
	flags.String("out-log", "", "File receiving worker stdout")
	flags.String("err-log", "", "File receiving worker stderr")
	flags.String("log", "", "File receiving stdout and stderr combined")
	flags.String("log-date-format", "", "Go time layout prefixed to log output")
	flags.String("pid-file", "", "File receiving the pid of the last launched worker")
	flags.String("cwd", "", "Working directory of the workers")
	flags.Int("cores", 0, "Use a fixed core count instead of discovering it")
	flags.String("binder", "", "Affinity binder: taskset, syscall or none")
	flags.String("on-spawn-error", "", "What to do when a core fails to spawn: continue or abort")
	flags.BoolVar(&startAttach, "attach", false, "Echo worker output to the terminal")

	for key, flag := range map[string]string{
		"app.name":              "name",
		"app.interpreter":       "interpreter",
		"app.out_log":           "out-log",
		"app.err_log":           "err-log",
		"app.combined_log":      "log",
		"app.log_date_format":   "log-date-format",
		"app.pid_file":          "pid-file",
		"app.cwd":               "cwd",
		"topology.cores":        "cores",
		"affinity.binder":       "binder",
		"launch.on_spawn_error": "on-spawn-error",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.App.ExecPath = args[0]
		if len(args) > 1 {
			cfg.App.Args = args[1:]
		}
	}
	if errs := cfg.ValidateApp(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	sup, err := newSupervisor(cfg, logger)
	if err != nil {
		return err
	}
	defer sup.Close()

	out := newPrinter(cmd.OutOrStdout())
	if startAttach {
		attachOutput(sup.bus, out)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	spec := specFromConfig(cfg.App)
	result, err := sup.newLauncher().LaunchAll(ctx, spec)
	if err != nil {
		if !errors.Is(err, &errors.TopologyError{}) {
			return err
		}
		out.Printf("%s %v\n", out.warn.Render("cannot optimize:"), err)
		out.Printf("falling back to a single unpinned worker\n")
		w, spawnErr := sup.newFallbackLauncher().Spawn(ctx, spec, 0)
		if spawnErr != nil {
			return spawnErr
		}
		result = &launcher.LaunchResult{
			Workers:  []*launcher.Worker{w},
			Statuses: []launcher.CoreStatus{{Core: 0, Worker: w}},
		}
	}

	printLaunch(out, spec, sup.opts.ExtraOptions, result)
	if len(result.Workers) == 0 {
		return fmt.Errorf("no worker could be started")
	}

	return supervise(ctx, result, logger, cfg.Launch.StopTimeout())
}

// supervise blocks until every worker exited or ctx is cancelled, in which
// case the workers are stopped. SIGUSR2 reopens all sinks.
func supervise(ctx context.Context, result *launcher.LaunchResult, logger *logging.Logger, stopTimeout time.Duration) error {
	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGUSR2)
	defer signal.Stop(reload)

	allDone := make(chan struct{})
	go func() {
		_ = result.Wait(context.Background())
		close(allDone)
	}()

	for {
		select {
		case <-allDone:
			logger.Info("all workers exited")
			return nil
		case <-reload:
			for _, w := range result.Workers {
				if err := w.ReloadLogs(); err != nil && !errors.Is(err, errors.ErrNotRunning) {
					logger.Warn("failed to reload logs", "core", w.Core(), "error", err)
				}
			}
			logger.Info("worker logs reloaded")
		case <-ctx.Done():
			logger.Info("stopping workers")
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout+5*time.Second)
			for _, w := range result.Workers {
				if err := w.Stop(stopCtx); err != nil {
					logger.Warn("failed to stop worker", "core", w.Core(), "pid", w.PID(), "error", err)
				}
			}
			cancel()
			<-allDone
			return nil
		}
	}
}

func printLaunch(out *printer, spec launcher.ProcessSpec, extraOptions []string, result *launcher.LaunchResult) {
	command, args := launcher.ResolveCommand(spec, extraOptions)
	out.Title(fmt.Sprintf("%s: %d worker(s)", spec.Name, len(result.Workers)))
	out.Printf("%s %s %v\n", out.muted.Render("command:"), command, args)
	if result.BatchID != "" {
		out.Printf("%s %s\n", out.muted.Render("batch:"), result.BatchID)
	}
	out.Printf("\n")

	rows := make([][]string, 0, len(result.Statuses))
	for _, s := range result.Statuses {
		pid, status, detail := "-", out.ok.Render("online"), ""
		if s.Worker != nil {
			pid = strconv.Itoa(s.Worker.PID())
		}
		switch {
		case s.Err != nil:
			status, detail = out.err.Render("failed"), s.Err.Error()
		case s.BindErr != nil:
			status, detail = out.warn.Render("unpinned"), s.BindErr.Error()
		}
		rows = append(rows, []string{strconv.Itoa(s.Core), pid, status, truncate(detail, 80)})
	}
	out.Table([]string{"CORE", "PID", "STATUS", "DETAIL"}, rows)
}

// attachOutput echoes worker output to out, prefixed with the core index.
func attachOutput(bus *event.Bus, out *printer) {
	bus.Subscribe(event.TypeLogOut, func(e event.Event) {
		le := e.(event.LogEvent)
		out.Printf("%s %s", out.muted.Render(fmt.Sprintf("[%d]", le.Process.Core)), le.Payload)
	})
	bus.Subscribe(event.TypeLogErr, func(e event.Event) {
		le := e.(event.LogEvent)
		out.Printf("%s %s", out.err.Render(fmt.Sprintf("[%d]", le.Process.Core)), le.Payload)
	})
}
