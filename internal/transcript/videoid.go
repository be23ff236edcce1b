package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os/exec"
	"regexp"
	"strings"
)

const ytDlpExecutable = "yt-dlp"

var (
	bareVideoID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	pathVideoID = regexp.MustCompile(`^/(?:embed|v|shorts|live)/([A-Za-z0-9_-]{11})`)
)

// ParseVideoID extracts the video id from a bare id or a YouTube URL
// (watch?v=, youtu.be/, /embed/, /v/, /shorts/, /live/). Strings that do
// not look like URLs are returned unchanged and left to the provider to
// reject; URLs without a recognisable id yield ErrInvalidVideoID.
func ParseVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVideoID)
	}
	if bareVideoID.MatchString(input) {
		return input, nil
	}
	if !looksLikeURL(input) {
		return input, nil
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %v", ErrInvalidVideoID, input, err)
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "youtu.be":
		id := strings.Trim(parsed.Path, "/")
		if bareVideoID.MatchString(id) {
			return id, nil
		}
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com") ||
		host == "youtube-nocookie.com" || strings.HasSuffix(host, ".youtube-nocookie.com"):
		if id := parsed.Query().Get("v"); bareVideoID.MatchString(id) {
			return id, nil
		}
		if m := pathVideoID.FindStringSubmatch(parsed.Path); m != nil {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("%w: could not extract video ID from URL: %s", ErrInvalidVideoID, input)
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") || strings.Contains(s, "/") || strings.Contains(strings.ToLower(s), "youtu")
}

// Resolver turns user input into a video id, optionally asking yt-dlp
// when the input is a URL ParseVideoID does not understand.
type Resolver struct {
	UseYtDlp bool
	Logger   *slog.Logger

	run      commandRunner
	lookPath func(string) (string, error)
}

// NewResolver returns a Resolver; useYtDlp enables the yt-dlp fallback.
func NewResolver(useYtDlp bool, logger *slog.Logger) *Resolver {
	return &Resolver{UseYtDlp: useYtDlp, Logger: logger, run: runCommand, lookPath: exec.LookPath}
}

// Resolve returns the video id for input.
func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	id, err := ParseVideoID(input)
	if err == nil || r == nil || !r.UseYtDlp {
		return id, err
	}

	logger := r.logger().With("step", "resolveVideoID", "input", input)
	if lookErr := checkExecutable(logger, r.lookPath, ytDlpExecutable); lookErr != nil {
		return "", fmt.Errorf("%w (yt-dlp fallback unavailable: %v)", err, lookErr)
	}
	output, runErr := r.run(ctx, logger, ytDlpExecutable, "--get-id", "--no-playlist", "--no-warnings", input)
	if runErr != nil {
		return "", fmt.Errorf("%w: yt-dlp: %v", ErrInvalidVideoID, runErr)
	}
	resolved := strings.TrimSpace(strings.SplitN(strings.TrimSpace(string(output)), "\n", 2)[0])
	if !bareVideoID.MatchString(resolved) {
		return "", fmt.Errorf("%w: yt-dlp returned %q for %s", ErrInvalidVideoID, resolved, input)
	}
	logger.Info("Resolved video ID with yt-dlp", "videoID", resolved)
	return resolved, nil
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
