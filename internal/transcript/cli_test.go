package transcript

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

const listingOutput = `
For this video (abcdefghijk) transcripts are available in the following languages:

(MANUALLY CREATED)
 - en ("English")[TRANSLATABLE]

(GENERATED)
 - ja ("Japanese (auto-generated)")[TRANSLATABLE]

(TRANSLATION LANGUAGES)
 - af ("Afrikaans")
 - fr ("French")
`

type scriptedRun struct {
	calls  [][]string
	output string
	err    error
}

func (s *scriptedRun) run(ctx context.Context, logger *slog.Logger, name string, args ...string) ([]byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return []byte(s.output), s.err
}

func newTestCLI(s *scriptedRun) *CLI {
	c := NewCLI("", time.Second, slog.New(slog.DiscardHandler))
	c.run = s.run
	c.lookPath = func(name string) (string, error) { return "/usr/local/bin/" + name, nil }
	return c
}

func TestParseTranscriptListing(t *testing.T) {
	list := parseTranscriptListing("abcdefghijk", listingOutput)

	if len(list.ManuallyCreated) != 1 || list.ManuallyCreated[0].LanguageCode != "en" || !list.ManuallyCreated[0].Translatable {
		t.Errorf("manual = %+v", list.ManuallyCreated)
	}
	if len(list.Generated) != 1 || list.Generated[0].Language != "Japanese (auto-generated)" || !list.Generated[0].Generated {
		t.Errorf("generated = %+v", list.Generated)
	}
	if strings.Join(list.TranslationLanguages, ",") != "af,fr" {
		t.Errorf("translation languages = %v", list.TranslationLanguages)
	}
}

func TestCLIList(t *testing.T) {
	s := &scriptedRun{output: listingOutput}
	list, err := newTestCLI(s).List(context.Background(), "-bcdefghijk")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.VideoID != "-bcdefghijk" || list.Empty() {
		t.Errorf("list = %+v", list)
	}
	if got := strings.Join(s.calls[0], " "); got != "youtube_transcript_api -bcdefghijk --list-transcripts" {
		t.Errorf("command = %q", got)
	}
}

func TestCLIFetch(t *testing.T) {
	s := &scriptedRun{output: `[[{"text": "切る", "start": 1.5, "duration": 2.0}, {"text": "煮る", "start": 4.0, "duration": 1.0}]]`}
	info := Info{VideoID: "abcdefghijk", LanguageCode: "ja", Generated: true}

	tr, err := newTestCLI(s).Fetch(context.Background(), info)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(tr.Cues) != 2 || tr.Cues[1] != (Cue{Text: "煮る", Start: 4, Duration: 1}) {
		t.Errorf("cues = %+v", tr.Cues)
	}
	want := "youtube_transcript_api abcdefghijk --languages ja --format json --exclude-manually-created"
	if got := strings.Join(s.calls[0], " "); got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestCLIClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		output string
		err    error
		want   error
	}{
		{
			name:   "disabled",
			output: "Could not retrieve a transcript for the video https://www.youtube.com/watch?v=abcdefghijk! This is most likely caused by:\n\nSubtitles are disabled for this video",
			want:   ErrTranscriptsDisabled,
		},
		{
			name:   "no transcript",
			output: "Could not retrieve a transcript!\nNo transcripts were found for any of the requested language codes: ['ja']",
			want:   ErrNoTranscriptFound,
		},
		{
			name:   "blocked on exit",
			output: "",
			err:    errors.New("exit status 1: YouTube is blocking requests from your IP"),
			want:   ErrRequestBlocked,
		},
		{
			name:   "unavailable",
			output: "The video is no longer available",
			want:   ErrVideoUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &scriptedRun{output: tt.output, err: tt.err}
			_, err := newTestCLI(s).List(context.Background(), "abcdefghijk")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCLIFetchBadOutput(t *testing.T) {
	s := &scriptedRun{output: "garbage"}
	_, err := newTestCLI(s).Fetch(context.Background(), Info{VideoID: "abcdefghijk", LanguageCode: "en"})
	if err == nil || IsUnavailable(err) {
		t.Fatalf("err = %v, want decode error", err)
	}
}

func TestCLIMissingExecutable(t *testing.T) {
	c := newTestCLI(&scriptedRun{})
	c.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	if _, err := c.List(context.Background(), "abcdefghijk"); err == nil || !strings.Contains(err.Error(), "not found in PATH") {
		t.Fatalf("err = %v", err)
	}
}
