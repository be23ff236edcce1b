// Package transcript looks up and downloads YouTube subtitle tracks.
//
// A Provider lists the tracks a video has and fetches one of them as an
// ordered sequence of cues. Two providers exist: Innertube talks to YouTube
// over HTTP, CLI shells out to the youtube_transcript_api executable. Both
// report the same sentinel errors so callers can tell "this video has no
// usable subtitles" apart from everything else.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var (
	// ErrTranscriptsDisabled means the video has subtitles turned off.
	ErrTranscriptsDisabled = errors.New("subtitles are disabled for this video")
	// ErrNoTranscriptFound means none of the requested languages exist.
	ErrNoTranscriptFound = errors.New("no transcript found for the requested languages")
	// ErrVideoUnavailable means the video does not exist or cannot be played.
	ErrVideoUnavailable = errors.New("video is unavailable")
	// ErrRequestBlocked means YouTube refused to answer (rate limit, bot check).
	ErrRequestBlocked = errors.New("request blocked by YouTube")
	// ErrInvalidVideoID means the input could not be turned into a video id.
	ErrInvalidVideoID = errors.New("invalid video id")
)

// IsUnavailable reports whether err means the video has no usable subtitles.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrTranscriptsDisabled) || errors.Is(err, ErrNoTranscriptFound)
}

// Cue is one subtitle fragment. Start and Duration are in seconds.
type Cue struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Info describes one subtitle track of a video.
type Info struct {
	VideoID      string `json:"video_id"`
	Language     string `json:"language"`
	LanguageCode string `json:"language_code"`
	Generated    bool   `json:"generated"`
	Translatable bool   `json:"translatable"`

	// url is the timedtext location for the innertube provider.
	url string
}

func (i Info) String() string {
	kind := "manual"
	if i.Generated {
		kind = "generated"
	}
	return fmt.Sprintf("%s (%s, %s)", i.LanguageCode, i.Language, kind)
}

// Transcript is a fetched track.
type Transcript struct {
	Info
	Cues []Cue `json:"cues"`
}

// List holds every track of one video, split by origin.
type List struct {
	VideoID         string `json:"video_id"`
	ManuallyCreated []Info `json:"manually_created"`
	Generated       []Info `json:"generated"`
	// TranslationLanguages are the codes YouTube can machine-translate into.
	TranslationLanguages []string `json:"translation_languages,omitempty"`
}

// Find picks the first track matching languages in order of preference.
// Within one language a manually created track wins over a generated one.
func (l *List) Find(languages []string) (Info, error) {
	for _, code := range languages {
		for _, group := range [][]Info{l.ManuallyCreated, l.Generated} {
			for _, info := range group {
				if sameLanguage(info.LanguageCode, code) {
					return info, nil
				}
			}
		}
	}
	return Info{}, fmt.Errorf("%w: requested %s, available %s",
		ErrNoTranscriptFound, strings.Join(languages, ","), l.availableCodes())
}

// sameLanguage compares codes as BCP 47 tags, so "en-us" matches "en-US"
// and "he" matches YouTube's "iw".
func sameLanguage(a, b string) bool {
	if strings.EqualFold(a, b) {
		return true
	}
	ta, err := language.Parse(a)
	if err != nil {
		return false
	}
	tb, err := language.Parse(b)
	if err != nil {
		return false
	}
	return ta == tb
}

// Empty reports whether the video has no tracks at all.
func (l *List) Empty() bool {
	return len(l.ManuallyCreated) == 0 && len(l.Generated) == 0
}

func (l *List) availableCodes() string {
	var codes []string
	for _, info := range l.ManuallyCreated {
		codes = append(codes, info.LanguageCode)
	}
	for _, info := range l.Generated {
		codes = append(codes, info.LanguageCode+"(auto)")
	}
	if len(codes) == 0 {
		return "none"
	}
	return strings.Join(codes, ",")
}

// Provider is a source of subtitle tracks.
type Provider interface {
	Name() string
	List(ctx context.Context, videoID string) (*List, error)
	Fetch(ctx context.Context, info Info) (*Transcript, error)
}

// FetchPreferred lists the video's tracks, picks one by language
// preference, and fetches it.
func FetchPreferred(ctx context.Context, p Provider, videoID string, languages []string) (*Transcript, error) {
	list, err := p.List(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	if list.Empty() {
		return nil, fmt.Errorf("list transcripts: %w", ErrTranscriptsDisabled)
	}
	info, err := list.Find(languages)
	if err != nil {
		return nil, err
	}
	t, err := p.Fetch(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("fetch %s transcript: %w", info.LanguageCode, err)
	}
	return t, nil
}
