package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSONCarriesService(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "INFO", Format: "auto"})
	logger.Info("hello", "videoID", "abc")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output for non-terminal writer: %v (%q)", err, buf.String())
	}
	if record["service"] != ServiceName {
		t.Errorf("service = %v, want %s", record["service"], ServiceName)
	}
	if record["videoID"] != "abc" {
		t.Errorf("videoID = %v", record["videoID"])
	}
}

func TestNew_TextFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, Options{Level: "WARN", Format: "text"})
	logger.Info("suppressed")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Errorf("info record should be filtered at WARN: %q", out)
	}
	if !strings.Contains(out, "msg=shown") {
		t.Errorf("expected text handler output, got %q", out)
	}
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"", "auto", "JSON", "text"} {
		if !ValidFormat(f) {
			t.Errorf("ValidFormat(%q) = false", f)
		}
	}
	if ValidFormat("xml") {
		t.Error("ValidFormat(xml) = true")
	}
}
