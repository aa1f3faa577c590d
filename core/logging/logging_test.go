package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koscakluka/luna/core/correlation"
)

func configureBuffer(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	closer, err := Configure(Options{Level: level, JSON: true, Output: buf})
	if err != nil {
		t.Fatalf("expected configure to succeed, got %v", err)
	}
	t.Cleanup(func() {
		_ = closer.Close()
		_, _ = Configure(Options{Level: slog.LevelInfo})
	})
	return buf
}

func TestLoggerCreatedBeforeConfigureUsesNewSink(t *testing.T) {
	logger := NewLogger("test/early")
	buf := configureBuffer(t, slog.LevelInfo)

	logger.Info("hello", "key", "value")

	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Fatalf("expected record in configured sink, got %q", buf.String())
	}
}

func TestCorrelationIDIsAddedFromContext(t *testing.T) {
	buf := configureBuffer(t, slog.LevelInfo)
	logger := NewLogger("test/correlation")

	ctx := correlation.With(context.Background(), "flow-42")
	logger.InfoContext(ctx, "with id")

	record := map[string]any{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &record); err != nil {
		t.Fatalf("expected a json record, got %q: %v", buf.String(), err)
	}
	if record[CorrelationKey] != "flow-42" {
		t.Fatalf("expected correlation id attribute, got %v", record[CorrelationKey])
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := configureBuffer(t, slog.LevelWarn)
	logger := NewLogger("test/level")

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Fatalf("expected info record to be filtered, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatalf("expected warn record to be written, got %q", buf.String())
	}
}

func TestWithAttrsIsAppliedToLocalSink(t *testing.T) {
	buf := configureBuffer(t, slog.LevelInfo)
	logger := NewLogger("test/attrs").With("service", "agent").WithGroup("req")

	logger.Info("grouped", "id", 1)

	out := buf.String()
	if !strings.Contains(out, `"service":"agent"`) || !strings.Contains(out, `"req":{"id":1}`) {
		t.Fatalf("expected attrs and group in output, got %q", out)
	}
}

func TestAttachReceivesRecordsUntilDetached(t *testing.T) {
	configureBuffer(t, slog.LevelInfo)
	attached := &bytes.Buffer{}
	detach := Attach(slog.NewTextHandler(attached, nil))

	logger := NewLogger("test/attach")
	logger.Info("first")
	detach()
	detach()
	logger.Info("second")

	if !strings.Contains(attached.String(), "first") {
		t.Fatalf("expected attached handler to see first record, got %q", attached.String())
	}
	if strings.Contains(attached.String(), "second") {
		t.Fatalf("expected detached handler to miss second record, got %q", attached.String())
	}
}

func TestConfigureWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "luna.log")
	closer, err := Configure(Options{Level: slog.LevelInfo, Discard: true, File: path})
	if err != nil {
		t.Fatalf("expected configure to succeed, got %v", err)
	}
	t.Cleanup(func() { _, _ = Configure(Options{Level: slog.LevelInfo}) })

	NewLogger("test/file").Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file to exist, got %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Fatalf("expected record in file, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in       string
		expected slog.Level
		wantErr  bool
	}{
		{in: "DEBUG", expected: slog.LevelDebug},
		{in: "info", expected: slog.LevelInfo},
		{in: "WARNING", expected: slog.LevelWarn},
		{in: "CRITICAL", expected: slog.LevelError},
		{in: "nonsense", expected: slog.LevelInfo, wantErr: true},
	}
	for _, testCase := range testCases {
		got, err := ParseLevel(testCase.in)
		if (err != nil) != testCase.wantErr {
			t.Fatalf("%s: unexpected error state %v", testCase.in, err)
		}
		if got != testCase.expected {
			t.Fatalf("%s: expected %v, got %v", testCase.in, testCase.expected, got)
		}
	}
}
