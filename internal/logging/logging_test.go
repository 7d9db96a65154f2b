package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_HasComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, "text", &buf)

	logger := New("section")
	logger.Info("hello")

	output := buf.String()
	if !strings.Contains(output, "component=section") {
		t.Errorf("expected component=section in output, got: %s", output)
	}
	if !strings.Contains(output, "hello") {
		t.Errorf("expected 'hello' in output, got: %s", output)
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "json", &buf)

	New("json-test").Info("json check")

	if !strings.Contains(buf.String(), `"level":"INFO"`) {
		t.Errorf("expected JSON level in output, got: %s", buf.String())
	}
}

func TestInit_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelWarn, "text", &buf)

	New("filter").Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("INFO should be filtered at WARN level, got: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ValidLevel("bogus") {
		t.Error("ValidLevel(bogus) = true")
	}
}

func TestOr_ScopesGivenLogger(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil)).With("run_id", "r1")

	Or(l, "batch").Info("started")

	output := buf.String()
	if !strings.Contains(output, "component=batch") {
		t.Errorf("expected component=batch in output, got: %s", output)
	}
	if !strings.Contains(output, "run_id=r1") {
		t.Errorf("expected attributes of the given logger to survive, got: %s", output)
	}
}

func TestOr_NilFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelInfo, "text", &buf)

	Or(nil, "pipeline").Info("hello")

	if !strings.Contains(buf.String(), "component=pipeline") {
		t.Errorf("expected component=pipeline in output, got: %s", buf.String())
	}
}
