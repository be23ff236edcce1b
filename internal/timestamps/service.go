// Package timestamps turns a video's subtitles into a list of timed cooking
// steps by asking a language model.
package timestamps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tidyoux/timestamper/internal/cache"
	"tidyoux/timestamper/internal/completion"
	"tidyoux/timestamper/internal/transcript"
)

// ErrNotConfigured is returned when no completion credential is set.
var ErrNotConfigured = errors.New("API Key not configured")

// Completer sends a JSON-mode chat completion.
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (completion.Result, error)
}

// Cache stores finished generations.
type Cache interface {
	Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error)
	Put(ctx context.Context, key cache.Key, entry cache.Entry) error
}

// Options tune the pipeline.
type Options struct {
	// Languages in order of preference.
	Languages []string
	// MaxChars limits the transcript text sent to the model; zero means no limit.
	MaxChars int
	// Model is recorded in cache keys and results.
	Model string
	// WithTimestamps prefixes each cue with its start second.
	WithTimestamps bool
}

// Usage reports the tokens a generation consumed.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Result is the outcome of Generate.
type Result struct {
	VideoID  string `json:"video_id"`
	Language string `json:"language"`
	// Content is the model output verbatim.
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	Cached    bool   `json:"cached"`
	Usage     Usage  `json:"usage"`
}

// Service runs the transcript -> prompt -> completion pipeline.
type Service struct {
	transcripts transcript.Provider
	completer   Completer
	cache       Cache
	opts        Options
	logger      *slog.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithCache enables result caching.
func WithCache(c Cache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// NewService returns a Service. A nil completer is allowed: Generate then
// fails with ErrNotConfigured.
func NewService(provider transcript.Provider, completer Completer, opts Options, logger *slog.Logger, options ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"ja", "en"}
	}
	s := &Service{
		transcripts: provider,
		completer:   completer,
		opts:        opts,
		logger:      logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Provider returns the transcript provider.
func (s *Service) Provider() transcript.Provider { return s.transcripts }

// Generate produces the step list for videoID.
func (s *Service) Generate(ctx context.Context, videoID string) (*Result, error) {
	if s.completer == nil {
		return nil, ErrNotConfigured
	}
	logger := s.logger.With("videoID", videoID)
	startTime := time.Now()
	key := cache.Key{VideoID: videoID, Model: s.opts.Model, PromptVersion: PromptVersion(s.opts.WithTimestamps)}

	if s.cache != nil {
		entry, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			logger.Warn("Cache lookup failed", "error", err)
		} else if ok {
			logger.Info("Serving cached steps", "cachedAt", entry.CreatedAt)
			return &Result{
				VideoID:   videoID,
				Language:  entry.Language,
				Content:   entry.Content,
				Truncated: entry.Truncated,
				Cached:    true,
			}, nil
		}
	}

	// 1. Fetch transcript
	stepStart := time.Now()
	t, err := transcript.FetchPreferred(ctx, s.transcripts, videoID, s.opts.Languages)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}
	logger.Info("Fetched transcript",
		"language", t.LanguageCode,
		"generated", t.Generated,
		"cues", len(t.Cues),
		"duration", time.Since(stepStart),
	)

	// 2. Build prompt
	join := transcript.JoinText
	if s.opts.WithTimestamps {
		join = transcript.JoinTimedText
	}
	text, truncated := join(t.Cues, s.opts.MaxChars)
	if truncated {
		logger.Info("Transcript truncated", "maxChars", s.opts.MaxChars)
	}
	prompt := BuildPrompt(text, s.opts.WithTimestamps)

	// 3. Ask the model
	res, err := s.completer.CompleteJSON(ctx, SystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	result := &Result{
		VideoID:   videoID,
		Language:  t.LanguageCode,
		Content:   res.Content,
		Truncated: truncated,
		Usage:     Usage{PromptTokens: res.PromptTokens, CompletionTokens: res.CompletionTokens},
	}

	if s.cache != nil {
		entry := cache.Entry{Content: result.Content, Language: result.Language, Truncated: truncated}
		if err := s.cache.Put(ctx, key, entry); err != nil {
			logger.Warn("Failed to cache steps", "error", err)
		}
	}

	logger.Info("Generated steps", "duration", time.Since(startTime))
	return result, nil
}
