// Package config loads timestamper settings from an optional YAML or TOML
// file plus environment overrides.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.yaml
var sampleConfig string

// Server configures the HTTP listener.
type Server struct {
	Listen string `yaml:"listen" toml:"listen"`
	// Debug exposes /debug/transcripts and adds provider diagnostics to
	// 500 responses.
	Debug               bool `yaml:"debug" toml:"debug"`
	ReadTimeoutSeconds  int  `yaml:"read_timeout_seconds" toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int  `yaml:"write_timeout_seconds" toml:"write_timeout_seconds"`
}

// Transcript configures how subtitles are looked up.
type Transcript struct {
	// Provider is "innertube" (native HTTP) or "cli" (youtube_transcript_api executable).
	Provider       string   `yaml:"provider" toml:"provider"`
	Languages      []string `yaml:"languages" toml:"languages"`
	MaxChars       int      `yaml:"max_chars" toml:"max_chars"`
	BaseURL        string   `yaml:"base_url" toml:"base_url"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	Executable     string   `yaml:"executable" toml:"executable"`
	// ResolveWithYtDlp falls back to `yt-dlp --get-id` for inputs that are
	// neither a bare id nor a recognised YouTube URL.
	ResolveWithYtDlp bool `yaml:"resolve_with_ytdlp" toml:"resolve_with_ytdlp"`
}

// Completion configures the chat completion API.
type Completion struct {
	APIKey  string `yaml:"api_key" toml:"api_key"`
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Model   string `yaml:"model" toml:"model"`
	// Temperature is left to the API default (1) when unset.
	Temperature    *float32 `yaml:"temperature" toml:"temperature"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds"`
	MaxAttempts    int      `yaml:"max_attempts" toml:"max_attempts"`
}

// Prompt tweaks the text handed to the model.
type Prompt struct {
	// WithTimestamps prefixes every cue with its start second.
	WithTimestamps bool `yaml:"with_timestamps" toml:"with_timestamps"`
}

// Cache configures the SQLite result cache.
type Cache struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	Path       string `yaml:"path" toml:"path"`
	TTLSeconds int    `yaml:"ttl_seconds" toml:"ttl_seconds"`
}

// Logging configures log output.
type Logging struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Config is the full configuration.
type Config struct {
	Server     Server     `yaml:"server" toml:"server"`
	Transcript Transcript `yaml:"transcript" toml:"transcript"`
	Completion Completion `yaml:"completion" toml:"completion"`
	Prompt     Prompt     `yaml:"prompt" toml:"prompt"`
	Cache      Cache      `yaml:"cache" toml:"cache"`
	Logging    Logging    `yaml:"logging" toml:"logging"`
}

// SearchPaths returns the locations tried when no explicit path is given.
func SearchPaths() []string {
	paths := []string{"timestamper.yaml", "timestamper.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		dir := filepath.Join(home, ".config", "timestamper")
		paths = append(paths, filepath.Join(dir, "config.yaml"), filepath.Join(dir, "config.toml"))
	}
	return paths
}

// Load reads the configuration. An explicit path must exist; without one
// the SearchPaths are tried and a missing file means defaults. It returns
// the config and the file it came from ("" when none).
func Load(explicit string) (*Config, string, error) {
	cfg := Default()

	path, err := findConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, "", err
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

func findConfig(explicit string) (string, error) {
	if explicit != "" {
		expanded, err := ExpandPath(explicit)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(expanded); err != nil {
			return "", fmt.Errorf("config file not found: %s: %w", explicit, err)
		}
		return expanded, nil
	}
	for _, p := range SearchPaths() {
		info, err := os.Stat(p)
		if err == nil && !info.IsDir() {
			return p, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat config %s: %w", p, err)
		}
	}
	return "", nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	// A list given in the file replaces the default list; normalize refills it when absent.
	cfg.Transcript.Languages = nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
	return nil
}

// ExpandPath expands a leading ~ and makes the path absolute.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		switch {
		case value == "~":
			value = home
		case len(value) > 1 && (value[1] == '/' || value[1] == '\\'):
			value = filepath.Join(home, value[2:])
		}
	}
	abs, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return abs, nil
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// HasAPIKey reports whether a completion credential is configured.
func (c *Config) HasAPIKey() bool {
	return strings.TrimSpace(c.Completion.APIKey) != ""
}
