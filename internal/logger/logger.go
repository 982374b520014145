// Package logger provides component-scoped structured logging for the service.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu  sync.RWMutex
	log = newLogger(os.Stderr, "console", zerolog.InfoLevel)
)

func newLogger(w io.Writer, format string, level zerolog.Level) zerolog.Logger {
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Configure replaces the process logger. Unknown levels fall back to info.
func Configure(w io.Writer, format, level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	mu.Lock()
	defer mu.Unlock()
	log = newLogger(w, format, lvl)
}

func current() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := log
	return &l
}

func emit(ev *zerolog.Event, component, message string, fields map[string]any) {
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func DebugC(component, message string) {
	emit(current().Debug(), component, message, nil)
}

func DebugCF(component, message string, fields map[string]any) {
	emit(current().Debug(), component, message, fields)
}

func InfoC(component, message string) {
	emit(current().Info(), component, message, nil)
}

func InfoCF(component, message string, fields map[string]any) {
	emit(current().Info(), component, message, fields)
}

func WarnC(component, message string) {
	emit(current().Warn(), component, message, nil)
}

func WarnCF(component, message string, fields map[string]any) {
	emit(current().Warn(), component, message, fields)
}

func ErrorC(component, message string) {
	emit(current().Error(), component, message, nil)
}

func ErrorCF(component, message string, fields map[string]any) {
	emit(current().Error(), component, message, fields)
}
