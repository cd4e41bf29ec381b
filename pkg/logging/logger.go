// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging builds the slog.Logger used by deadlockd.
//
// Records fan out to up to three sinks: the console (stderr or
// Config.Output, text or JSON), a daily JSON file under Config.LogDir, and
// a LogExporter. Components only ever see the *slog.Logger from Slog.
//
//	logger := logging.New(logging.Config{Level: slog.LevelInfo, Service: "deadlockd"})
//	defer logger.Close()
//	coord := coordinator.New(coordinator.WithLogger(logger.Slog()))
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrUnknownLevel is returned by ParseLevel.
var ErrUnknownLevel = errors.New("unknown log level")

// ParseLevel maps a config string to a slog level. Matching is
// case-insensitive, "warning" is accepted for warn and "" means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// Config configures a Logger. The zero value writes info and above to
// stderr as text.
type Config struct {
	// Level is the minimum level for every sink.
	Level slog.Level

	// LogDir enables a JSON file named "{Service}_{YYYY-MM-DD}.log".
	LogDir string

	// Service is attached to every record.
	Service string

	// JSON switches the console sink to JSON. The file sink is always JSON.
	JSON bool

	// Quiet drops the console sink.
	Quiet bool

	// Output replaces stderr for the console sink.
	Output io.Writer

	// Exporter receives every enabled record synchronously.
	Exporter LogExporter
}

// LogExporter ships records to an external system. Export runs on the
// logging goroutine and must not block; Flush and Close run once from
// Logger.Close.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is one exported record. Grouped attributes use dotted keys.
type LogEntry struct {
	Timestamp time.Time
	Level     slog.Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Logger owns the sinks behind a *slog.Logger. Close it when LogDir or
// Exporter is set.
type Logger struct {
	slog     *slog.Logger
	file     *os.File
	exporter LogExporter
	closeMu  sync.Mutex
}

// New creates a Logger.
//
// Description:
//
//	A LogDir that cannot be created or opened is skipped with a warning on
//	the remaining sinks. With every sink disabled, records go to the
//	console writer anyway so that nothing is silently lost.
func New(cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	l := &Logger{exporter: cfg.Exporter}

	var sinks []slog.Handler
	if !cfg.Quiet {
		sinks = append(sinks, consoleHandler(out, cfg.JSON, opts))
	}

	var fileErr error
	if cfg.LogDir != "" {
		l.file, fileErr = openDailyFile(cfg.LogDir, cfg.Service)
		if l.file != nil {
			sinks = append(sinks, slog.NewJSONHandler(l.file, opts))
		}
	}

	if cfg.Exporter != nil {
		sinks = append(sinks, &exportHandler{exporter: cfg.Exporter, level: cfg.Level, service: cfg.Service})
	}

	var h slog.Handler
	switch len(sinks) {
	case 0:
		h = consoleHandler(out, cfg.JSON, opts)
	case 1:
		h = sinks[0]
	default:
		h = fanout(sinks)
	}
	if cfg.Service != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.Service)})
	}

	l.slog = slog.New(h)
	if fileErr != nil {
		l.slog.Warn("file logging disabled", "log_dir", cfg.LogDir, "error", fileErr)
	}
	return l
}

func consoleHandler(w io.Writer, json bool, opts *slog.HandlerOptions) slog.Handler {
	if json {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func openDailyFile(dir, service string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if service == "" {
		service = "deadlockd"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format(time.DateOnly))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// Slog returns the logger handed to components.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close flushes and closes the exporter, then syncs and closes the log
// file. Errors are joined. Later calls return nil.
func (l *Logger) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()

	var errs []error
	if l.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.exporter.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush exporter: %w", err))
		}
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close exporter: %w", err))
		}
		l.exporter = nil
	}
	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		l.file = nil
	}
	return errors.Join(errs...)
}

// =============================================================================
// Handlers
// =============================================================================

// fanout sends each record to every sink enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}

// exportHandler turns records into LogEntry values.
type exportHandler struct {
	exporter LogExporter
	level    slog.Level
	service  string
	attrs    []slog.Attr
	group    string
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *exportHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.qualify(a.Key)] = a.Value.Resolve().Any()
		return true
	})
	// Service travels on the entry itself.
	delete(attrs, "service")

	return h.exporter.Export(ctx, LogEntry{
		Timestamp: r.Time,
		Level:     r.Level,
		Message:   r.Message,
		Service:   h.service,
		Attrs:     attrs,
	})
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value.Resolve()})
	}
	return &next
}

func (h *exportHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.qualify(name)
	return &next
}

func (h *exportHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

// BufferedExporter keeps entries in memory.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter creates an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter { return &BufferedExporter{} }

// Export appends the entry.
func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op.
func (e *BufferedExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the collected entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]LogEntry(nil), e.entries...)
}
