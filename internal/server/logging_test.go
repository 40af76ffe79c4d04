package server_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/example/go-light-tts/internal/server"
)

// capturingHandler captures all slog records during a test.
type capturingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (c *capturingHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (c *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}
func (c *capturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return c }
func (c *capturingHandler) WithGroup(name string) slog.Handler       { return c }

func (c *capturingHandler) attrMap(idx int) map[string]any {
	m := make(map[string]any)
	c.records[idx].Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func TestMel_LogsTextLenAndFrames(t *testing.T) {
	capture := &capturingHandler{}
	h := server.NewHandler(
		&stubSynthesizer{frames: 7, mels: 2},
		server.WithLogger(slog.New(capture)),
	)

	postJSON(t, h, "/mel", `{"text":"Hallo Welt."}`)

	if len(capture.records) != 1 {
		t.Fatalf("want 1 log record, got %d", len(capture.records))
	}

	rec := capture.records[0]
	if rec.Level != slog.LevelInfo || rec.Message != "generation complete" {
		t.Errorf("got %v %q", rec.Level, rec.Message)
	}

	attrs := capture.attrMap(0)
	if attrs["text_len"] != int64(11) {
		t.Errorf("text_len = %v, want 11", attrs["text_len"])
	}

	if attrs["frames"] != int64(7) {
		t.Errorf("frames = %v, want 7", attrs["frames"])
	}

	if _, ok := attrs["duration_ms"]; !ok {
		t.Error("missing duration_ms attribute")
	}
}

func TestMel_LogsFailuresAtErrorLevel(t *testing.T) {
	capture := &capturingHandler{}
	h := server.NewHandler(
		&stubSynthesizer{err: errors.New("boom")},
		server.WithLogger(slog.New(capture)),
	)

	postJSON(t, h, "/mel", `{"text":"Hallo"}`)

	if len(capture.records) != 1 {
		t.Fatalf("want 1 log record, got %d", len(capture.records))
	}

	if capture.records[0].Level != slog.LevelError {
		t.Errorf("level = %v, want ERROR", capture.records[0].Level)
	}

	if capture.attrMap(0)["error"] != "boom" {
		t.Errorf("error attr = %v, want boom", capture.attrMap(0)["error"])
	}
}

func TestMel_TimeoutLogsWarning(t *testing.T) {
	capture := &capturingHandler{}
	h := server.NewHandler(
		&stubSynthesizer{err: context.DeadlineExceeded},
		server.WithLogger(slog.New(capture)),
	)

	postJSON(t, h, "/mel", `{"text":"Hallo"}`)

	if len(capture.records) != 1 || capture.records[0].Level != slog.LevelWarn {
		t.Fatalf("want a single WARN record, got %d records", len(capture.records))
	}
}
