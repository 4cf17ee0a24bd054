package errors

// Reporter receives errors that are handled locally but must not go unseen.
// Implementations must not block the caller.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a plain function to the Reporter interface.
type ReporterFunc func(err error)

// Report calls f(err).
func (f ReporterFunc) Report(err error) { f(err) }

// errorLogger is the subset of logging.Logger used by LogReporter.
type errorLogger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogReporter reports errors through a structured logger, choosing the level
// from the error's severity.
type LogReporter struct {
	Logger errorLogger
}

// Report logs err. Nil errors and a nil logger are ignored.
func (r LogReporter) Report(err error) {
	if err == nil || r.Logger == nil {
		return
	}
	sev := GetSeverity(err)
	if sev <= SeverityWarning {
		r.Logger.Warn("reported error", "error", err.Error(), "severity", sev.String())
		return
	}
	r.Logger.Error("reported error", "error", err.Error(), "severity", sev.String())
}

// Discard is a Reporter that drops every error.
var Discard Reporter = ReporterFunc(func(error) {})
