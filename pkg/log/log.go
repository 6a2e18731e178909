package log

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
)

// New returns a console logger, or a JSON logger on stderr when running in
// Kubernetes.
func New(level zerolog.Level) *zerolog.Logger {
	var output io.Writer
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		output = os.Stderr
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02T15:04:05.999Z07:00"}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	return &logger
}

// Logr wraps l for the timeline. zerologr maps V(n) to zerolog level -n, so
// V(1) needs the logger at zerolog.DebugLevel or below.
func Logr(l *zerolog.Logger, name string) logr.Logger {
	return zerologr.New(l).WithName(name)
}

// Slog bridges a logr.Logger for the event log backends.
func Slog(l logr.Logger) *slog.Logger {
	return slog.New(logr.ToSlogHandler(l))
}
