package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tidyoux/timestamper/internal/cache"
	"tidyoux/timestamper/internal/completion"
	"tidyoux/timestamper/internal/config"
	"tidyoux/timestamper/internal/httpkit"
	"tidyoux/timestamper/internal/timestamps"
	"tidyoux/timestamper/internal/transcript"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// newProvider builds the transcript provider selected in the config.
func newProvider(cfg *config.Config, logger *slog.Logger) transcript.Provider {
	timeout := seconds(cfg.Transcript.TimeoutSeconds)
	if cfg.Transcript.Provider == config.ProviderCLI {
		return transcript.NewCLI(cfg.Transcript.Executable, timeout, logger)
	}
	client := httpkit.NewClient(
		httpkit.WithTimeout(timeout),
		httpkit.WithRetry(2, 500*time.Millisecond),
		httpkit.WithLogger(logger),
	)
	return transcript.NewInnertube(transcript.InnertubeOptions{
		BaseURL:    cfg.Transcript.BaseURL,
		HTTPClient: client,
		Logger:     logger,
	})
}

// newCompleter returns nil (not a typed nil) when no API key is set so the
// service reports the missing credential per request.
func newCompleter(cfg *config.Config, logger *slog.Logger) (timestamps.Completer, error) {
	if !cfg.HasAPIKey() {
		logger.Warn("OPENAI_API_KEY is not set; generation requests will fail until it is configured")
		return nil, nil
	}
	timeout := seconds(cfg.Completion.TimeoutSeconds)
	client, err := completion.New(completion.Config{
		APIKey:      cfg.Completion.APIKey,
		BaseURL:     cfg.Completion.BaseURL,
		Model:       cfg.Completion.Model,
		Temperature: cfg.Completion.Temperature,
		Timeout:     timeout,
		MaxAttempts: cfg.Completion.MaxAttempts,
	},
		completion.WithHTTPClient(httpkit.NewClient(
			httpkit.WithTimeout(timeout),
			httpkit.WithResponseHeaderTimeout(timeout),
		)),
		completion.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newService wires provider, completer and the optional cache. The
// returned func releases the cache.
func newService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*timestamps.Service, func(), error) {
	provider := newProvider(cfg, logger)
	completer, err := newCompleter(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("completion client: %w", err)
	}

	opts := timestamps.Options{
		Languages:      cfg.Transcript.Languages,
		MaxChars:       cfg.Transcript.MaxChars,
		Model:          cfg.Completion.Model,
		WithTimestamps: cfg.Prompt.WithTimestamps,
	}
	closer := func() {}
	var serviceOpts []timestamps.ServiceOption
	if cfg.Cache.Enabled {
		store, err := cache.Open(logger, cfg.Cache.Path, seconds(cfg.Cache.TTLSeconds))
		if err != nil {
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		if removed, err := store.Purge(ctx); err != nil {
			logger.Warn("Failed to purge expired cache entries", "error", err)
		} else if removed > 0 {
			logger.Info("Purged expired cache entries", "count", removed)
		}
		serviceOpts = append(serviceOpts, timestamps.WithCache(store))
		closer = func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close cache", "error", err)
			}
		}
	}

	return timestamps.NewService(provider, completer, opts, logger, serviceOpts...), closer, nil
}

func newResolver(cfg *config.Config, logger *slog.Logger) *transcript.Resolver {
	return transcript.NewResolver(cfg.Transcript.ResolveWithYtDlp, logger)
}
