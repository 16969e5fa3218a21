package log

import (
	"errors"
	"io"
	"os"
)

// MultiWriter fans each log line out to every appender. A failing appender
// does not stop the others.
type MultiWriter struct {
	appenders []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{}
}

func (m *MultiWriter) Add(w io.Writer) *MultiWriter {
	m.appenders = append(m.appenders, w)
	return m
}

func (m *MultiWriter) Write(p []byte) (int, error) {
	var errs []error
	for _, w := range m.appenders {
		if _, err := w.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return len(p), errors.Join(errs...)
}

// Close closes every appender that is an io.Closer, except the standard
// streams.
func (m *MultiWriter) Close() error {
	var errs []error
	for _, w := range m.appenders {
		if w == os.Stdout || w == os.Stderr {
			continue
		}
		if c, ok := w.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	m.appenders = nil
	return errors.Join(errs...)
}
