package log

import (
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	Panic(args ...interface{})
	Panicf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
	output *MultiWriter
)

// GetLogger returns the process logger. Before Init it writes info and above
// to stderr with the default pattern.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// setOutput installs l writing to out and returns the output it replaces.
func setOutput(l Logger, out *MultiWriter) *MultiWriter {
	mu.Lock()
	defer mu.Unlock()
	prev := output
	logger = l
	output = out
	return prev
}

// Close releases the files opened by Init. The logger stays usable; a
// rotated file is reopened on the next write.
func Close() error {
	mu.RLock()
	out := output
	mu.RUnlock()
	if out == nil {
		return nil
	}
	return out.Close()
}

// NewDiscard returns a logger that drops everything; handy in tests.
func NewDiscard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusAdapter{entry: logrus.NewEntry(l)}
}
