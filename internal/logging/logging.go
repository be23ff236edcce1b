// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// ServiceName is attached to every record.
const ServiceName = "timestamper"

// Options selects level and output format.
type Options struct {
	Level  string
	Format string // json, text, or auto
}

// ParseLevel maps DEBUG, INFO, WARN and ERROR (any case) to slog levels.
// Empty or unknown values fall back to INFO.
func ParseLevel(value string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidFormat reports whether format is accepted by New.
func ValidFormat(format string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "auto", "json", "text":
		return true
	}
	return false
}

// New builds a logger writing to w. With format "auto" a terminal gets the
// text handler and anything else gets JSON.
func New(w io.Writer, opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch resolveFormat(w, opts.Format) {
	case "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		handler = slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.New(handler).With("service", ServiceName)
}

func resolveFormat(w io.Writer, format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "json" || format == "text" {
		return format
	}
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return "text"
		}
	}
	return "json"
}

// Describe renders the effective settings for the startup log line.
func Describe(w io.Writer, opts Options) string {
	return fmt.Sprintf("level=%s format=%s", ParseLevel(opts.Level), resolveFormat(w, opts.Format))
}
