// Package log provides the process-wide logger backed by logrus.
package log

import (
	"io"
	"os"
	"sync"

	"firestige.xyz/flowtap/internal/config"
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

const (
	DefaultPattern = "%time [%level] %msg %field%n"
	DefaultTime    = "2006-01-02 15:04:05.000"
)

var (
	mu     sync.RWMutex
	logger Logger = mustDefault()
	output *MultiWriter // set by Init
)

func mustDefault() Logger {
	l, err := newLogrusAdapter(config.LogConfig{
		Level:   "info",
		Format:  "text",
		Pattern: DefaultPattern,
		Time:    DefaultTime,
	}, os.Stderr)
	if err != nil {
		panic(err)
	}
	return l
}

// GetLogger returns the current process logger. It is usable before Init.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetLogger replaces the process logger.
func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// New builds a logger writing to out.
func New(cfg config.LogConfig, out io.Writer) (Logger, error) {
	l, err := newLogrusAdapter(cfg, out)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Init builds the process logger from configuration. Output always goes to
// stderr; a configured file path adds a rotating file appender.
func Init(cfg config.LogConfig) error {
	w := NewMultiWriter().Add(os.Stderr)
	if cfg.File.Path != "" {
		w.AddFileAppender(cfg.File)
	}

	l, err := New(cfg, w)
	if err != nil {
		return err
	}

	mu.Lock()
	prev := output
	logger, output = l, w
	mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// Close releases the file appenders opened by Init. The logger keeps
// writing to stderr.
func Close() error {
	mu.Lock()
	w := output
	output = nil
	mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}
