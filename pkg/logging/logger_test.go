// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"Warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnknownLevel) {
			t.Errorf("ParseLevel(%q) error does not wrap ErrUnknownLevel", tt.in)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_ConsoleRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: slog.LevelWarn, Service: "deadlockd", Output: &buf}).Slog()

	log.Info("hidden")
	log.Warn("observer failed", "subscription_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written below configured level")
	}
	for _, want := range []string{"observer failed", "subscription_id=abc", "service=deadlockd"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestNew_JSONConsole(t *testing.T) {
	var buf bytes.Buffer
	New(Config{JSON: true, Output: &buf}).Slog().Info("deadlock resolved", "victim", 1)

	if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), `"victim":1`) {
		t.Errorf("missing victim attribute in %q", buf.String())
	}
}

func TestNew_DailyFile(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Quiet: true})
	logger.Slog().Info("written to file")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "deadlockd_") {
		t.Fatalf("expected one deadlockd_ log file, got %v", files)
	}
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"written to file"`) {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestNew_UnwritableLogDirFallsBackToConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	logger := New(Config{LogDir: filepath.Join(blocker, "logs"), Output: &buf})
	defer logger.Close()

	if logger.file != nil {
		t.Error("file should be nil when the log dir cannot be created")
	}
	if !strings.Contains(buf.String(), "file logging disabled") {
		t.Errorf("expected a warning on the console, got %q", buf.String())
	}
}

func TestNew_AllSinksDisabledStillWrites(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Quiet: true, Output: &buf}).Slog().Info("not lost")
	if !strings.Contains(buf.String(), "not lost") {
		t.Errorf("record dropped: %q", buf.String())
	}
}

func TestExporter_ReceivesComponentRecords(t *testing.T) {
	exporter := NewBufferedExporter()
	log := New(Config{Level: slog.LevelInfo, Service: "deadlockd", Quiet: true, Exporter: exporter}).Slog()

	component := log.With("component", "coordinator")
	component.Debug("dropped")
	component.WithGroup("deadlock").Info("resolved", "victim", 2)
	log.Error("classifier failed")

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0]
	if first.Message != "resolved" || first.Level != slog.LevelInfo || first.Service != "deadlockd" {
		t.Errorf("unexpected entry %+v", first)
	}
	if first.Attrs["component"] != "coordinator" {
		t.Errorf("component attr = %v", first.Attrs["component"])
	}
	if first.Attrs["deadlock.victim"] != int64(2) {
		t.Errorf("grouped attr = %#v", first.Attrs["deadlock.victim"])
	}
	if _, ok := first.Attrs["service"]; ok {
		t.Error("service should be carried on the entry, not in attrs")
	}
	if entries[1].Level != slog.LevelError {
		t.Errorf("second entry level = %v", entries[1].Level)
	}
}

type failingExporter struct{ BufferedExporter }

func (*failingExporter) Flush(context.Context) error { return errors.New("flush failed") }
func (*failingExporter) Close() error                { return errors.New("close failed") }

func TestLogger_CloseJoinsErrors(t *testing.T) {
	logger := New(Config{Quiet: true, Exporter: &failingExporter{}})
	err := logger.Close()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"flush failed", "close failed"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestExporter_ConcurrentWriters(t *testing.T) {
	exporter := NewBufferedExporter()
	log := New(Config{Quiet: true, Exporter: exporter}).Slog()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				log.Info("tick", "worker", n)
			}
		}(i)
	}
	wg.Wait()

	if got := len(exporter.Entries()); got != 500 {
		t.Errorf("got %d entries, want 500", got)
	}
}

func TestFanout_EnabledIfAnySink(t *testing.T) {
	var a, b bytes.Buffer
	h := fanout{
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected enabled at debug")
	}

	slog.New(h).Info("only b")
	if a.Len() != 0 {
		t.Error("error-level sink received an info record")
	}
	if !strings.Contains(b.String(), "only b") {
		t.Error("debug-level sink missed the record")
	}
}
