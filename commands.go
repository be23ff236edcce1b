package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"tidyoux/timestamper/internal/buildinfo"
	"tidyoux/timestamper/internal/config"
	"tidyoux/timestamper/internal/logging"
	"tidyoux/timestamper/internal/server"
	"tidyoux/timestamper/internal/timestamps"
	"tidyoux/timestamper/internal/transcript"
)


// commandContext carries the loaded config and logger to subcommands.
type commandContext struct {
	configFlag   string
	logLevelFlag string

	cfg     *config.Config
	cfgPath string
	logger  *slog.Logger
}

func (c *commandContext) load(cmd *cobra.Command) error {
	cfg, path, err := config.Load(c.configFlag)
	if err != nil {
		return err
	}
	if c.logLevelFlag != "" {
		cfg.Logging.Level = c.logLevelFlag
	}

	// Command output goes to stdout, so everything but the server logs to stderr.
	var w io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "serve" || cmd.Parent() == nil {
		w = cmd.OutOrStdout()
	}
	opts := logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	c.logger = logging.New(w, opts)
	slog.SetDefault(c.logger)

	c.cfg, c.cfgPath = cfg, path
	c.logger.Debug("Loaded configuration", "path", path, "logging", logging.Describe(w, opts))
	return nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "timestamper",
		Short:         "Extract timed cooking steps from YouTube subtitles",
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["skipConfigLoad"] == "true" {
				return nil
			}
			return ctx.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level (DEBUG, INFO, WARN, ERROR). Overrides LOG_LEVEL env var.")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newTranscriptCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, cc *commandContext) error {
	cfg, logger := cc.cfg, cc.logger

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeService, err := newService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeService()

	opts := []server.Option{
		server.WithResolver(newResolver(cfg, logger)),
		server.WithTimeouts(seconds(cfg.Server.ReadTimeoutSeconds), seconds(cfg.Server.WriteTimeoutSeconds)),
	}
	if cfg.Server.Debug {
		opts = append(opts, server.WithDebug(svc.Provider()))
	}
	srv := server.NewServer(cfg.Server.Listen, svc, logger, opts...)

	// No request outlives the write timeout, so that bounds the drain.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), seconds(cfg.Server.WriteTimeoutSeconds))
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("Starting timestamper",
		"version", buildinfo.Version,
		"config", cc.cfgPath,
		"provider", svc.Provider().Name(),
		"model", cfg.Completion.Model,
		"cache", cfg.Cache.Enabled,
	)
	if err := srv.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server failed: %w", err)
	}
	<-drained
	logger.Info("timestamper stopped")
	return nil
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "generate <video>",
		Short: "Generate cooking steps for a video id or URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := ctx.cfg, ctx.logger
			videoID, err := newResolver(cfg, logger).Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			svc, closeService, err := newService(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeService()

			result, err := svc.Generate(cmd.Context(), videoID)
			if err != nil {
				if transcript.IsUnavailable(err) {
					return fmt.Errorf("この動画には字幕がありません: %w", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				fmt.Fprintln(out, result.Content)
				return nil
			}
			steps, err := timestamps.ParseSteps(result.Content)
			if err != nil {
				logger.Warn("Model output is not a step list; printing it verbatim", "error", err)
				fmt.Fprintln(out, result.Content)
				return nil
			}
			fmt.Fprintln(out, renderSteps(steps))
			if result.Truncated {
				fmt.Fprintf(out, "Transcript was truncated to %d characters.\n", cfg.Transcript.MaxChars)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw model output")
	return cmd
}

func renderSteps(steps *timestamps.Steps) string {
	rows := make([][]string, 0, len(steps.Steps))
	for i, step := range steps.Steps {
		rows = append(rows, []string{strconv.Itoa(i + 1), formatOffset(step.Time), step.Text})
	}
	return renderTable([]string{"#", "Time", "Step"}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
}

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	var (
		listOnly  bool
		timed     bool
		maxChars  int
		languages []string
	)

	cmd := &cobra.Command{
		Use:   "transcript <video>",
		Short: "Show the transcript text that would be sent to the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := ctx.cfg, ctx.logger
			videoID, err := newResolver(cfg, logger).Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			provider := newProvider(cfg, logger)
			out := cmd.OutOrStdout()

			if listOnly {
				list, err := provider.List(cmd.Context(), videoID)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, renderTrackList(list))
				return nil
			}

			if len(languages) == 0 {
				languages = cfg.Transcript.Languages
			}
			if !cmd.Flags().Changed("max-chars") {
				maxChars = cfg.Transcript.MaxChars
			}
			t, err := transcript.FetchPreferred(cmd.Context(), provider, videoID, languages)
			if err != nil {
				return err
			}
			join := transcript.JoinText
			if timed {
				join = transcript.JoinTimedText
			}
			text, truncated := join(t.Cues, maxChars)
			logger.Info("Fetched transcript", "videoID", videoID, "track", t.Info.String(), "cues", len(t.Cues), "truncated", truncated)
			fmt.Fprintln(out, text)
			return nil
		},
	}

	cmd.Flags().BoolVar(&listOnly, "list", false, "List the available subtitle tracks")
	cmd.Flags().BoolVar(&timed, "timed", false, "Prefix every cue with its start second")
	cmd.Flags().IntVar(&maxChars, "max-chars", 0, "Truncate the text to this many characters (0 disables; default from config)")
	cmd.Flags().StringSliceVar(&languages, "languages", nil, "Language preference, e.g. ja,en (default from config)")
	return cmd
}

func renderTrackList(list *transcript.List) string {
	var rows [][]string
	add := func(infos []transcript.Info) {
		for _, info := range infos {
			kind := "manual"
			if info.Generated {
				kind = "generated"
			}
			translatable := ""
			if info.Translatable {
				translatable = "yes"
			}
			rows = append(rows, []string{info.LanguageCode, info.Language, kind, translatable})
		}
	}
	add(list.ManuallyCreated)
	add(list.Generated)
	return renderTable([]string{"Code", "Language", "Kind", "Translatable"}, rows, nil)
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Create a sample configuration file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := ""
			if len(args) == 1 {
				target = strings.TrimSpace(args[0])
			}
			if target == "" {
				home, err := os.UserHomeDir()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = filepath.Join(home, ".config", "timestamper", "config.yaml")
			}
			target, err := config.ExpandPath(target)
			if err != nil {
				return fmt.Errorf("resolve config path: %w", err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Set completion.api_key (or export OPENAI_API_KEY) before generating steps.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite an existing configuration file")
	return cmd
}
