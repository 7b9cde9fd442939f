package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Logger provides single-line logging for the init process.
//
// Diagnostics go to stdout and are only emitted when boot config enables debug.
// Fatal errors always go to stderr. Write failures are dropped: there is nobody
// to report them to.
type Logger struct {
	debug *logrus.Logger
	fatal *logrus.Logger
}

// NewLogger creates a logger with diagnostics disabled.
func NewLogger(stdout, stderr io.Writer) *Logger {
	l := &Logger{
		debug: newLineLogger(stdout),
		fatal: newLineLogger(stderr),
	}
	l.SetDebug(false)
	return l
}

func newLineLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(quietWriter{w})
	l.SetFormatter(lineFormatter{})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetDebug turns diagnostic output on or off.
func (l *Logger) SetDebug(enabled bool) {
	if enabled {
		l.debug.SetLevel(logrus.InfoLevel)
	} else {
		l.debug.SetLevel(logrus.PanicLevel)
	}
}

// Info logs a diagnostic message.
// Format: init: [phase] message
func (l *Logger) Info(phase, msg string) {
	l.debug.WithField("phase", phase).Info(msg)
}

// Infof logs a formatted diagnostic message.
func (l *Logger) Infof(phase, format string, args ...interface{}) {
	l.debug.WithField("phase", phase).Infof(format, args...)
}

// Error logs a non-fatal failure as a diagnostic.
// Format: init: [phase] message: error
func (l *Logger) Error(phase, msg string, err error) {
	entry := l.debug.WithField("phase", phase)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

// Fatal reports a boot failure on stderr regardless of the debug setting.
// Format: init: [phase] op path: os error
func (l *Logger) Fatal(err error) {
	var setupErr *SetupError
	if errors.As(err, &setupErr) {
		l.fatal.WithField("phase", setupErr.Phase).Error(setupErr.Error())
		return
	}
	l.fatal.Error(err.Error())
}

// lineFormatter renders one plain line per entry, prefixed with the component
// name and the phase.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString("init: ")
	if phase, ok := e.Data["phase"]; ok {
		fmt.Fprintf(&b, "[%v] ", phase)
	}
	b.WriteString(e.Message)
	if err, ok := e.Data[logrus.ErrorKey]; ok {
		fmt.Fprintf(&b, ": %v", err)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// quietWriter hides write errors from logrus, which would otherwise complain
// about them on stderr.
type quietWriter struct {
	w io.Writer
}

func (q quietWriter) Write(p []byte) (int, error) {
	q.w.Write(p)
	return len(p), nil
}
