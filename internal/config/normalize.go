package config

import (
	"fmt"
	"math"
	"os"
	"strings"

	"golang.org/x/text/language"
)

// Environment variables consulted by Load.
const (
	EnvAPIKey   = "OPENAI_API_KEY"
	EnvBaseURL  = "OPENAI_BASE_URL"
	EnvListen   = "TIMESTAMPER_LISTEN"
	EnvLogLevel = "LOG_LEVEL"
)

// applyEnv fills settings from the environment. The API key and base URL
// only apply when the file leaves them empty; listen and log level always
// win so a deployment can override a checked-in file.
func (c *Config) applyEnv() {
	if strings.TrimSpace(c.Completion.APIKey) == "" {
		if value, ok := os.LookupEnv(EnvAPIKey); ok {
			c.Completion.APIKey = value
		}
	}
	if strings.TrimSpace(c.Completion.BaseURL) == "" {
		if value, ok := os.LookupEnv(EnvBaseURL); ok {
			c.Completion.BaseURL = value
		}
	}
	if value := strings.TrimSpace(os.Getenv(EnvListen)); value != "" {
		c.Server.Listen = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvLogLevel)); value != "" {
		c.Logging.Level = value
	}
}

func (c *Config) normalize() error {
	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	if c.Server.Listen == "" {
		c.Server.Listen = defaultListen
	}
	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = defaultReadTimeoutSeconds
	}

	if err := c.normalizeTranscript(); err != nil {
		return err
	}

	c.Completion.APIKey = strings.TrimSpace(c.Completion.APIKey)
	c.Completion.BaseURL = strings.TrimSpace(c.Completion.BaseURL)
	c.Completion.Model = strings.TrimSpace(c.Completion.Model)
	if c.Completion.Model == "" {
		c.Completion.Model = defaultModel
	}
	if c.Completion.TimeoutSeconds <= 0 {
		c.Completion.TimeoutSeconds = defaultCompletionTimeout
	}
	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = int(math.Ceil(c.RequestBudget().Seconds()))
	}

	c.Cache.Path = strings.TrimSpace(c.Cache.Path)
	if c.Cache.Path == "" {
		c.Cache.Path = defaultCachePath
	}
	if c.Cache.Path != MemoryCachePath {
		path, err := ExpandPath(c.Cache.Path)
		if err != nil {
			return fmt.Errorf("cache.path: %w", err)
		}
		c.Cache.Path = path
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func (c *Config) normalizeTranscript() error {
	c.Transcript.Provider = strings.ToLower(strings.TrimSpace(c.Transcript.Provider))
	if c.Transcript.Provider == "" {
		c.Transcript.Provider = defaultProvider
	}
	c.Transcript.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcript.BaseURL), "/")
	c.Transcript.Executable = strings.TrimSpace(c.Transcript.Executable)
	if c.Transcript.Executable == "" {
		c.Transcript.Executable = defaultExecutable
	}
	if c.Transcript.TimeoutSeconds <= 0 {
		c.Transcript.TimeoutSeconds = defaultTranscriptTimeout
	}

	langs := make([]string, 0, len(c.Transcript.Languages))
	seen := make(map[string]bool, len(c.Transcript.Languages))
	for _, raw := range c.Transcript.Languages {
		code, key, err := parseLanguage(raw)
		if err != nil {
			return fmt.Errorf("transcript.languages: %w", err)
		}
		if code == "" || seen[key] {
			continue
		}
		seen[key] = true
		langs = append(langs, code)
	}
	if len(langs) == 0 {
		langs = append(langs, DefaultLanguages...)
	}
	c.Transcript.Languages = langs
	return nil
}

// parseLanguage validates a BCP 47 tag. It returns the code as written,
// since YouTube keeps deprecated codes such as "iw" that canonicalization
// would rewrite, and the canonical form as a dedupe key.
func parseLanguage(raw string) (code, key string, err error) {
	code = strings.TrimSpace(raw)
	if code == "" {
		return "", "", nil
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", "", fmt.Errorf("invalid language %q: %w", code, err)
	}
	return code, tag.String(), nil
}
