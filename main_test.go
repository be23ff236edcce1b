package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tidyoux/timestamper/internal/config"
	"tidyoux/timestamper/internal/timestamps"
	"tidyoux/timestamper/internal/transcript"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvBaseURL, "")
	t.Setenv(config.EnvListen, "")
	t.Setenv(config.EnvLogLevel, "")
	t.Chdir(dir)
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "conf", "timestamper.yaml")

	out, err := execute(t, "config", "init", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, target) {
		t.Errorf("output = %q", out)
	}
	if _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}

	if _, err := execute(t, "config", "init", target); err == nil {
		t.Fatal("second init without --overwrite should fail")
	}
	if _, err := execute(t, "config", "init", "--overwrite", target); err != nil {
		t.Fatalf("init --overwrite: %v", err)
	}
}

func TestGenerateWithoutAPIKey(t *testing.T) {
	isolate(t)

	_, err := execute(t, "generate", "--log-level", "ERROR", "https://youtu.be/dQw4w9WgXcQ")
	if !errors.Is(err, timestamps.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateRejectsUnknownURL(t *testing.T) {
	isolate(t)

	_, err := execute(t, "generate", "https://vimeo.com/12345")
	if !errors.Is(err, transcript.ErrInvalidVideoID) {
		t.Fatalf("err = %v, want ErrInvalidVideoID", err)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("transcript:\n  provider: carrier-pigeon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "--config", path, "generate", "dQw4w9WgXcQ"); err == nil || !strings.Contains(err.Error(), "transcript.provider") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderSteps(t *testing.T) {
	out := renderSteps(&timestamps.Steps{Steps: []timestamps.Step{
		{Time: 5, Text: "玉ねぎを切る"},
		{Time: 3725, Text: "煮込む"},
	}})
	for _, want := range []string{"玉ねぎを切る", "0:05", "1:02:05", "Step"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestFormatOffset(t *testing.T) {
	tests := map[int]string{0: "0:00", -3: "0:00", 59: "0:59", 61: "1:01", 3600: "1:00:00"}
	for in, want := range tests {
		if got := formatOffset(in); got != want {
			t.Errorf("formatOffset(%d) = %q, want %q", in, got, want)
		}
	}
}
