package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tidyoux/timestamper/internal/logging"
)

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Transcript.Provider {
	case ProviderInnertube, ProviderCLI:
	default:
		problems = append(problems, fmt.Sprintf("transcript.provider must be %q or %q, got %q", ProviderInnertube, ProviderCLI, c.Transcript.Provider))
	}
	if c.Transcript.MaxChars <= 0 {
		problems = append(problems, "transcript.max_chars must be positive")
	}
	if c.Completion.MaxAttempts < 0 {
		problems = append(problems, "completion.max_attempts must not be negative")
	}
	if t := c.Completion.Temperature; t != nil && (*t < 0 || *t > 2) {
		problems = append(problems, "completion.temperature must be between 0 and 2")
	}
	if budget := c.RequestBudget(); time.Duration(c.Server.WriteTimeoutSeconds)*time.Second < budget {
		problems = append(problems, fmt.Sprintf(
			"server.write_timeout_seconds must be at least %d to cover the transcript and completion timeouts, got %d",
			int(math.Ceil(budget.Seconds())), c.Server.WriteTimeoutSeconds))
	}
	if c.Cache.TTLSeconds < 0 {
		problems = append(problems, "cache.ttl_seconds must not be negative")
	}
	if !logging.ValidFormat(c.Logging.Format) {
		problems = append(problems, fmt.Sprintf("logging.format must be auto, json or text, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}
