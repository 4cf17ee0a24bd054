// Package logging provides the supervisor's structured logger and the
// append-only file writer that worker log sinks are built on.
//
// # Logger
//
// [Logger] wraps log/slog with a JSON handler and persistent attributes.
// Child loggers add context without touching their parent:
//
//	logger, err := logging.NewLogger("/var/lib/corefork", logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	workerLog := logger.WithApp("api").WithCore(3).WithWorker(pid)
//	workerLog.Info("worker online")
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"worker online","app":"api","core":3,"pid":4242}
//
// # RotatingWriter
//
// [RotatingWriter] appends to one path. It rotates by size when MaxSizeMB is
// set (keeping MaxBackups numbered backups, optionally gzip compressed) and
// can be reopened at the same path with Reopen after an external tool moved
// the file. A closed writer keeps its path and rejects writes until reopened.
// Files are opened through an afero.Fs so callers can substitute an in-memory
// filesystem.
//
// # Reading logs back
//
// [ReadLogs], [FilterLogs] and [ExportLogEntries] parse the supervisor log for
// the "corefork logs" command.
package logging
