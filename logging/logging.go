// Package logging builds the logrus logger shared by the trainer and the CLI.
package logging

import (
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// New returns a logger whose level follows the trainer's verbosity:
// 0 reports progress, 1 adds configuration and recovery counters, 2 and up traces everything.
func New(verbosity int, out io.Writer) *logrus.Logger {
	if out == nil {
		out = os.Stderr
	}
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01/02/06 - 03:04.05PM",
	})
	l.SetLevel(Level(verbosity))
	return l
}

func Level(verbosity int) logrus.Level {
	switch {
	case verbosity <= 0:
		return logrus.InfoLevel
	case verbosity == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// WithRun tags every line with a fresh run id so checkpoints and the final save
// of one training run can be told apart in shared logs.
func WithRun(l *logrus.Logger) *logrus.Entry {
	return l.WithField("run", uuid.NewString())
}

// Discard is a logger that drops everything. Handy in tests.
func Discard() *logrus.Entry {
	return logrus.NewEntry(New(0, io.Discard))
}
