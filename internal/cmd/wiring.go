package cmd

import (
	"github.com/Iron-Ham/corefork/internal/affinity"
	"github.com/Iron-Ham/corefork/internal/config"
	"github.com/Iron-Ham/corefork/internal/errors"
	"github.com/Iron-Ham/corefork/internal/event"
	"github.com/Iron-Ham/corefork/internal/launcher"
	"github.com/Iron-Ham/corefork/internal/logging"
	"github.com/Iron-Ham/corefork/internal/stream"
	"github.com/Iron-Ham/corefork/internal/topology"
)

// newLogger returns the supervisor logger: a rotating file in the log
// directory when logging is enabled, stderr otherwise.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NewLogger("", cfg.Logging.Level)
	}
	return logging.NewLoggerWithRotation(cfg.LogDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
}

func specFromConfig(app config.AppConfig) launcher.ProcessSpec {
	return launcher.ProcessSpec{
		Name:            app.Name,
		AppID:           app.AppID,
		Interpreter:     app.Interpreter,
		InterpreterArgs: app.InterpreterArgs,
		ExecPath:        app.ExecPath,
		Args:            app.Args,
		Env:             app.EnvMap(),
		Cwd:             app.Cwd,
		OutLogPath:      app.OutLog,
		ErrLogPath:      app.ErrLog,
		CombinedLogPath: app.CombinedLog,
		LogDateFormat:   app.LogDateFormat,
		PIDFile:         app.PIDFile,
	}
}

func newDiscoverer(cfg *config.Config, logger *logging.Logger) topology.Discoverer {
	if cfg.Topology.Cores > 0 {
		return topology.Static{Cores: cfg.Topology.Cores}
	}
	return topology.NewProbe(
		topology.WithCommand(cfg.Topology.Command, cfg.Topology.Args...),
		topology.WithTimeout(cfg.Topology.Timeout()),
		topology.WithLogger(logger),
	)
}

// supervisor holds the collaborators shared by every worker of one run.
type supervisor struct {
	bus      *event.Bus
	logger   *logging.Logger
	reporter errors.Reporter
	watcher  *stream.Watcher
	opts     launcher.Options
}

func newSupervisor(cfg *config.Config, logger *logging.Logger) (*supervisor, error) {
	binder, err := affinity.New(cfg.Affinity.Binder, cfg.Affinity.TasksetPath)
	if err != nil {
		return nil, err
	}

	s := &supervisor{
		bus:      event.NewBus(),
		logger:   logger,
		reporter: errors.LogReporter{Logger: logger},
	}

	if cfg.Logging.WatchSinks {
		w, err := stream.NewWatcher(logger, s.reporter)
		if err != nil {
			logger.Warn("sink watcher unavailable", "error", err)
		} else {
			w.SetReopenCallback(func(set *stream.SinkSet, path string) {
				logger.Debug("sink reopened", "path", path)
			})
			w.Start()
			s.watcher = w
		}
	}

	s.opts = launcher.Options{
		Topology: newDiscoverer(cfg, logger),
		Binder:   binder,
		Bus:      s.bus,
		Reporter: s.reporter,
		Logger:   logger,
		SinkRotation: logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.SinkMaxSizeMB,
			MaxBackups: cfg.Logging.SinkMaxBackups,
		},
		Watcher:      s.watcher,
		ExtraOptions: launcher.ExtraOptionsFromEnv(cfg.Launch.ExtraOptionsEnv),
		OnSpawnError: launcher.SpawnErrorPolicy(cfg.Launch.OnSpawnError),
		StopTimeout:  cfg.Launch.StopTimeout(),
	}
	return s, nil
}

// newLauncher returns a launcher with the configured binder.
func (s *supervisor) newLauncher() *launcher.Launcher {
	return launcher.New(s.opts)
}

// newFallbackLauncher returns a launcher that leaves workers unpinned, for
// machines whose topology cannot be resolved.
func (s *supervisor) newFallbackLauncher() *launcher.Launcher {
	opts := s.opts
	opts.Binder = affinity.NopBinder{}
	return launcher.New(opts)
}

func (s *supervisor) Close() {
	if s.watcher != nil {
		s.watcher.Stop()
	}
}
