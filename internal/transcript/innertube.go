package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"tidyoux/timestamper/internal/httpkit"
)

const (
	defaultYouTubeURL      = "https://www.youtube.com"
	innertubeClientName    = "ANDROID"
	innertubeClientVersion = "20.10.38"
	maxWatchPageBytes      = 8 << 20
	maxTimedTextBytes      = 16 << 20
)

var innertubeAPIKey = regexp.MustCompile(`"INNERTUBE_API_KEY":\s*"([a-zA-Z0-9_-]+)"`)

// InnertubeOptions configures the innertube provider.
type InnertubeOptions struct {
	// BaseURL replaces https://www.youtube.com (tests, proxies).
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Innertube lists and fetches subtitles through YouTube's internal player
// API, the same way the web and Android clients do.
type Innertube struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewInnertube returns an innertube provider.
func NewInnertube(opts InnertubeOptions) *Innertube {
	p := &Innertube{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		client:  opts.HTTPClient,
		logger:  opts.Logger,
	}
	if p.baseURL == "" {
		p.baseURL = defaultYouTubeURL
	}
	if p.client == nil {
		p.client = httpkit.NewClient()
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Name implements Provider.
func (p *Innertube) Name() string { return "innertube" }

// List implements Provider.
func (p *Innertube) List(ctx context.Context, videoID string) (*List, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidVideoID)
	}
	logger := p.logger.With("step", "listTranscripts", "provider", p.Name(), "videoID", videoID)
	startTime := time.Now()

	apiKey, err := p.fetchAPIKey(ctx, videoID)
	if err != nil {
		return nil, err
	}
	player, err := p.fetchPlayer(ctx, videoID, apiKey)
	if err != nil {
		return nil, err
	}
	if err := player.PlayabilityStatus.err(); err != nil {
		logger.Warn("Video not playable", "status", player.PlayabilityStatus.Status, "reason", player.PlayabilityStatus.Reason)
		return nil, err
	}

	list, err := player.list(videoID)
	if err != nil {
		return nil, err
	}
	logger.Debug("Listed transcripts",
		"manual", len(list.ManuallyCreated),
		"generated", len(list.Generated),
		"duration", time.Since(startTime),
	)
	return list, nil
}

// Fetch implements Provider. info must come from this provider's List.
func (p *Innertube) Fetch(ctx context.Context, info Info) (*Transcript, error) {
	if info.url == "" {
		return nil, fmt.Errorf("transcript %s has no timedtext url", info)
	}
	body, err := p.get(ctx, info.url, maxTimedTextBytes)
	if err != nil {
		return nil, fmt.Errorf("download timedtext: %w", err)
	}
	cues, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Fetched transcript", "videoID", info.VideoID, "language", info.LanguageCode, "cues", len(cues))
	return &Transcript{Info: info, Cues: cues}, nil
}

func (p *Innertube) fetchAPIKey(ctx context.Context, videoID string) (string, error) {
	watchURL := p.baseURL + "/watch?v=" + url.QueryEscape(videoID)
	page, err := p.get(ctx, watchURL, maxWatchPageBytes)
	if err != nil {
		return "", fmt.Errorf("fetch watch page: %w", err)
	}
	if m := innertubeAPIKey.FindSubmatch(page); m != nil {
		return string(m[1]), nil
	}
	if bytes.Contains(page, []byte(`class="g-recaptcha"`)) {
		return "", fmt.Errorf("watch page: %w (captcha)", ErrRequestBlocked)
	}
	return "", errors.New("watch page: innertube api key not found")
}

type innertubeRequest struct {
	Context struct {
		Client struct {
			ClientName    string `json:"clientName"`
			ClientVersion string `json:"clientVersion"`
		} `json:"client"`
	} `json:"context"`
	VideoID string `json:"videoId"`
}

func (p *Innertube) fetchPlayer(ctx context.Context, videoID, apiKey string) (*playerResponse, error) {
	var payload innertubeRequest
	payload.Context.Client.ClientName = innertubeClientName
	payload.Context.Client.ClientVersion = innertubeClientVersion
	payload.VideoID = videoID

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("player request: encode body: %w", err)
	}
	endpoint := p.baseURL + "/youtubei/v1/player?key=" + url.QueryEscape(apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("player request: %w", err)
	}

	var player playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&player); err != nil {
		return nil, fmt.Errorf("player request: decode response: %w", err)
	}
	return &player, nil
}

func (p *Innertube) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US")
	// Skips the EU cookie consent interstitial.
	req.AddCookie(&http.Cookie{Name: "SOCS", Value: "CAI"})

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: http 429", ErrRequestBlocked)
	case resp.StatusCode >= http.StatusMultipleChoices:
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(httpkit.ReadErrorBody(resp.Body, 512)))
	}
	return nil
}

type playerResponse struct {
	PlayabilityStatus playabilityStatus `json:"playabilityStatus"`
	Captions          *struct {
		Renderer *struct {
			CaptionTracks        []captionTrack `json:"captionTracks"`
			TranslationLanguages []struct {
				LanguageCode string `json:"languageCode"`
			} `json:"translationLanguages"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (s playabilityStatus) err() error {
	reason := strings.ToLower(s.Reason)
	switch s.Status {
	case "", "OK":
		return nil
	case "LOGIN_REQUIRED":
		if strings.Contains(reason, "not a bot") {
			return fmt.Errorf("%w: %s", ErrRequestBlocked, s.Reason)
		}
		if strings.Contains(reason, "inappropriate") || strings.Contains(reason, "age") {
			return fmt.Errorf("%w: age restricted", ErrVideoUnavailable)
		}
		return fmt.Errorf("%w: login required: %s", ErrVideoUnavailable, s.Reason)
	default:
		if s.Reason == "" {
			return fmt.Errorf("%w: status %s", ErrVideoUnavailable, s.Status)
		}
		return fmt.Errorf("%w: %s", ErrVideoUnavailable, s.Reason)
	}
}

type captionTrack struct {
	BaseURL string `json:"baseUrl"`
	Name    struct {
		SimpleText string `json:"simpleText"`
		Runs       []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"name"`
	LanguageCode   string `json:"languageCode"`
	Kind           string `json:"kind"`
	IsTranslatable bool   `json:"isTranslatable"`
}

func (t captionTrack) displayName() string {
	if t.Name.SimpleText != "" {
		return t.Name.SimpleText
	}
	var parts []string
	for _, run := range t.Name.Runs {
		parts = append(parts, run.Text)
	}
	return strings.Join(parts, "")
}

func (r *playerResponse) list(videoID string) (*List, error) {
	if r.Captions == nil || r.Captions.Renderer == nil {
		return nil, ErrTranscriptsDisabled
	}
	list := &List{VideoID: videoID}
	for _, lang := range r.Captions.Renderer.TranslationLanguages {
		list.TranslationLanguages = append(list.TranslationLanguages, lang.LanguageCode)
	}
	for _, track := range r.Captions.Renderer.CaptionTracks {
		info := Info{
			VideoID:      videoID,
			Language:     track.displayName(),
			LanguageCode: track.LanguageCode,
			Generated:    track.Kind == "asr",
			Translatable: track.IsTranslatable,
			url:          strings.Replace(track.BaseURL, "&fmt=srv3", "", 1),
		}
		if info.Generated {
			list.Generated = append(list.Generated, info)
		} else {
			list.ManuallyCreated = append(list.ManuallyCreated, info)
		}
	}
	if list.Empty() {
		return nil, ErrTranscriptsDisabled
	}
	return list, nil
}
