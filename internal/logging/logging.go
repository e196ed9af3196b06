// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Options selects the level, formatter and destination of the logger.
type Options struct {
	Level  string
	Format string
	File   string
}

// Setup applies opts to logger. The returned closer releases the log file,
// if one was opened; it is never nil.
func Setup(logger *log.Logger, opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, err
	}
	logger.SetLevel(level)

	switch opts.Format {
	case "", "text":
		logger.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
	case "json":
		logger.SetFormatter(new(log.JSONFormatter))
	default:
		return nopCloser{}, fmt.Errorf("unknown log format %q", opts.Format)
	}

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}

	f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nopCloser{}, fmt.Errorf("opening log file: %w", err)
	}
	logger.SetOutput(f)
	return f, nil
}

// ParseLevel maps a level name to a logrus level. An empty name means info.
func ParseLevel(name string) (log.Level, error) {
	switch name {
	case "trace":
		return log.TraceLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "", "info":
		return log.InfoLevel, nil
	case "warn":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	case "panic":
		return log.PanicLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Component returns an entry tagged with the component name.
func Component(logger *log.Logger, name string) *log.Entry {
	return logger.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
