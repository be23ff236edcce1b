package config

import (
	"time"

	"github.com/sashabaranov/go-openai"

	"tidyoux/timestamper/internal/completion"
)

const (
	defaultListen             = "0.0.0.0:8000"
	defaultReadTimeoutSeconds = 30
	defaultProvider           = ProviderInnertube
	defaultMaxChars           = 15000
	defaultTranscriptTimeout  = 30
	defaultExecutable         = "youtube_transcript_api"
	defaultModel              = openai.GPT4oMini
	defaultCompletionTimeout  = 60
	defaultMaxAttempts        = 3
	defaultCachePath          = "~/.cache/timestamper/cache.db"
	defaultCacheTTLSeconds    = 7 * 24 * 60 * 60
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
)

const (
	// transcriptCalls is the most sequential transcript requests one
	// generation makes: watch page, player API and caption track.
	transcriptCalls = 3
	// requestSlack covers request parsing, the cache and writing the reply.
	requestSlack = 15 * time.Second
)

// MemoryCachePath keeps the cache in memory for the life of the process.
const MemoryCachePath = ":memory:"

// Transcript providers.
const (
	ProviderInnertube = "innertube"
	ProviderCLI       = "cli"
)

// DefaultLanguages is the transcript language preference, most preferred first.
var DefaultLanguages = []string{"ja", "en"}

// Default returns a Config populated with defaults.
func Default() Config {
	return Config{
		Server: Server{
			Listen:             defaultListen,
			ReadTimeoutSeconds: defaultReadTimeoutSeconds,
		},
		Transcript: Transcript{
			Provider:       defaultProvider,
			Languages:      append([]string(nil), DefaultLanguages...),
			MaxChars:       defaultMaxChars,
			TimeoutSeconds: defaultTranscriptTimeout,
			Executable:     defaultExecutable,
		},
		Completion: Completion{
			Model:          defaultModel,
			TimeoutSeconds: defaultCompletionTimeout,
			MaxAttempts:    defaultMaxAttempts,
		},
		Cache: Cache{
			Path:       defaultCachePath,
			TTLSeconds: defaultCacheTTLSeconds,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// RequestBudget is the longest one generation request can take with the
// configured transcript and completion timeouts. The server write timeout
// defaults to it and may not be set below it.
func (c *Config) RequestBudget() time.Duration {
	transcript := transcriptCalls * time.Duration(c.Transcript.TimeoutSeconds) * time.Second
	generation := completion.MaxDuration(time.Duration(c.Completion.TimeoutSeconds)*time.Second, c.Completion.MaxAttempts)
	return transcript + generation + requestSlack
}
