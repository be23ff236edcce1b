package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

const targetFormat = "json"

// CLI lists and fetches subtitles by running the youtube_transcript_api
// command line tool.
type CLI struct {
	executable string
	timeout    time.Duration
	logger     *slog.Logger

	run      commandRunner
	lookPath func(string) (string, error)
}

// NewCLI returns a provider running executable (default
// "youtube_transcript_api"). A zero timeout leaves the command bounded only
// by the caller's context.
func NewCLI(executable string, timeout time.Duration, logger *slog.Logger) *CLI {
	if strings.TrimSpace(executable) == "" {
		executable = "youtube_transcript_api"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLI{
		executable: executable,
		timeout:    timeout,
		logger:     logger,
		run:        runCommand,
		lookPath:   exec.LookPath,
	}
}

// Name implements Provider.
func (c *CLI) Name() string { return "cli" }

// List implements Provider.
func (c *CLI) List(ctx context.Context, videoID string) (*List, error) {
	logger := c.logger.With("step", "listTranscripts", "provider", c.Name(), "videoID", videoID)
	output, err := c.invoke(ctx, logger, videoID, "--list-transcripts")
	if err != nil {
		return nil, err
	}
	if err := classifyOutput(output); err != nil {
		return nil, err
	}
	list := parseTranscriptListing(videoID, output)
	if list.Empty() {
		return nil, ErrTranscriptsDisabled
	}
	return list, nil
}

// Fetch implements Provider.
func (c *CLI) Fetch(ctx context.Context, info Info) (*Transcript, error) {
	logger := c.logger.With("step", "downloadSubtitles", "provider", c.Name(), "videoID", info.VideoID)
	logger.Info("Starting subtitle download", "language", info.LanguageCode)

	args := []string{"--languages", info.LanguageCode, "--format", targetFormat}
	if info.Generated {
		args = append(args, "--exclude-manually-created")
	} else {
		args = append(args, "--exclude-generated")
	}
	output, err := c.invoke(ctx, logger, info.VideoID, args...)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(output)) == 0 {
		return nil, errors.New("youtube_transcript_api returned empty output")
	}

	var fetched [][]Cue
	if jsonErr := json.Unmarshal([]byte(output), &fetched); jsonErr != nil {
		if err := classifyOutput(output); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("decode youtube_transcript_api output: %w", jsonErr)
	}
	if len(fetched) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTranscriptFound, info.LanguageCode)
	}

	logger.Info("Subtitles downloaded successfully", "cues", len(fetched[0]))
	return &Transcript{Info: info, Cues: fetched[0]}, nil
}

func (c *CLI) invoke(ctx context.Context, logger *slog.Logger, videoID string, args ...string) (string, error) {
	if err := checkExecutable(logger, c.lookPath, c.executable); err != nil {
		return "", err
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	output, err := c.run(ctx, logger, c.executable, append([]string{videoID}, args...)...)
	if err != nil {
		if classified := classifyOutput(string(output) + " " + err.Error()); classified != nil {
			return "", classified
		}
		return "", fmt.Errorf("youtube_transcript_api execution failed: %w", err)
	}
	return string(output), nil
}

// classifyOutput maps the error text youtube_transcript_api prints in
// place of a transcript to the package's sentinel errors.
func classifyOutput(output string) error {
	lower := strings.ToLower(output)
	first := firstLine(output)
	switch {
	case strings.Contains(lower, "subtitles are disabled for this video"):
		return fmt.Errorf("%w: %s", ErrTranscriptsDisabled, first)
	case strings.Contains(lower, "no transcripts were found"):
		return fmt.Errorf("%w: %s", ErrNoTranscriptFound, first)
	case strings.Contains(lower, "video is no longer available"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "video is unplayable"),
		strings.Contains(lower, "age restricted"):
		return fmt.Errorf("%w: %s", ErrVideoUnavailable, first)
	case strings.Contains(lower, "youtube is blocking requests"),
		strings.Contains(lower, "too many requests"),
		strings.Contains(lower, "requestblocked"),
		strings.Contains(lower, "ipblocked"):
		return fmt.Errorf("%w: %s", ErrRequestBlocked, first)
	case strings.Contains(lower, "invalid video id"), strings.Contains(lower, "not a valid video id"):
		return fmt.Errorf("%w: %s", ErrInvalidVideoID, first)
	}
	return nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

var listingLine = regexp.MustCompile(`^\s*-\s+(\S+)\s+\("(.*)"\)(\[TRANSLATABLE\])?`)

// parseTranscriptListing reads the text printed by --list-transcripts:
//
//	(MANUALLY CREATED)
//	 - en ("English")[TRANSLATABLE]
//
//	(GENERATED)
//	 - ja ("Japanese (auto-generated)")[TRANSLATABLE]
//
//	(TRANSLATION LANGUAGES)
//	 - af ("Afrikaans")
func parseTranscriptListing(videoID, output string) *List {
	list := &List{VideoID: videoID}
	section := ""
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "(MANUALLY CREATED)"):
			section = "manual"
			continue
		case strings.HasPrefix(line, "(GENERATED)"):
			section = "generated"
			continue
		case strings.HasPrefix(line, "(TRANSLATION LANGUAGES)"):
			section = "translation"
			continue
		}
		m := listingLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		switch section {
		case "manual", "generated":
			info := Info{
				VideoID:      videoID,
				LanguageCode: m[1],
				Language:     m[2],
				Generated:    section == "generated",
				Translatable: m[3] != "",
			}
			if info.Generated {
				list.Generated = append(list.Generated, info)
			} else {
				list.ManuallyCreated = append(list.ManuallyCreated, info)
			}
		case "translation":
			list.TranslationLanguages = append(list.TranslationLanguages, m[1])
		}
	}
	return list
}
