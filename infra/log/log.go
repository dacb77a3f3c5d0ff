// Package log configures the process-wide logrus logger.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	KeyComponent = "component"
	KeyView      = "view_id"
	KeyKey       = "key"
	KeySeq       = "seq"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.Formatter = &logrus.TextFormatter{TimestampFormat: time.RFC3339Nano, FullTimestamp: true}
	l.Out = os.Stderr
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Setup applies cfg to the process logger.
func Setup(cfg Config) {
	std.SetLevel(parseLevel(cfg.Level))
	if strings.EqualFold(cfg.Format, "json") {
		std.Formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	} else {
		std.Formatter = &logrus.TextFormatter{TimestampFormat: time.RFC3339Nano, FullTimestamp: true}
	}
	// the weakref debug build logs through the logrus standard logger
	logrus.SetLevel(std.GetLevel())
	logrus.SetFormatter(std.Formatter)
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}
	std.Out = w
}

// Component returns a logger tagged with the component name.
func Component(name string) *logrus.Entry {
	return std.WithField(KeyComponent, name)
}
