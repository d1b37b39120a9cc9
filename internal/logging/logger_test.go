package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"driftpursuit/rewind/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLoggerWritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, InfoLevel).Named("coordinator")

	logger.Debug("hidden")
	logger.Info("preset changed", String("preset", "fastest"), Float64("multiplier", 4), Error(errors.New("boom")))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["service"] != "rewind" || entry["component"] != "coordinator" {
		t.Fatalf("missing inherited fields: %v", entry)
	}
	if entry["preset"] != "fastest" || entry["multiplier"] != 4.0 || entry["error"] != "boom" {
		t.Fatalf("unexpected fields: %v", entry)
	}
	if entry["level"] != "info" || entry["message"] != "preset changed" {
		t.Fatalf("unexpected envelope: %v", entry)
	}
}

func TestParseLevelRejectsUnknown(t *testing.T) {
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if level, err := ParseLevel(" WARNING "); err != nil || level != WarnLevel {
		t.Fatalf("expected warn level, got %v %v", level, err)
	}
}

func TestHTTPTraceMiddlewarePropagatesTraceID(t *testing.T) {
	var seen string
	handler := HTTPTraceMiddleware(NewTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
		if FromContext(r.Context()) == nil {
			t.Fatal("expected request logger in context")
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(TraceIDHeader, "abc123")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "abc123" || rr.Header().Get(TraceIDHeader) != "abc123" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", seen, rr.Header().Get(TraceIDHeader))
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	if FromContext(context.Background()) != L() {
		t.Fatal("expected global logger fallback")
	}
}

func TestRotatingWriterRotatesAndCompresses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rewind.log")
	writer, err := newRotatingWriter(config.LoggingConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2, Compress: true})
	if err != nil {
		t.Fatalf("newRotatingWriter: %v", err)
	}
	writer.maxSize = 64

	line := bytes.Repeat([]byte("x"), 40)
	for i := 0; i < 3; i++ {
		if _, err := writer.Write(line); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	matches, err := filepath.Glob(filepath.Join(dir, "rewind.log.*.gz"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected compressed backups")
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat live file: %v", err)
	}
	if info.Size() != int64(len(line)) {
		t.Fatalf("expected live file to hold one line, got %d bytes", info.Size())
	}
}
