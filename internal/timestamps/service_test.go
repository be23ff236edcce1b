package timestamps

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"tidyoux/timestamper/internal/cache"
	"tidyoux/timestamper/internal/completion"
	"tidyoux/timestamper/internal/transcript"
)

type fakeProvider struct {
	list    *transcript.List
	listErr error
	cues    []transcript.Cue
	calls   int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) List(ctx context.Context, videoID string) (*transcript.List, error) {
	f.calls++
	return f.list, f.listErr
}

func (f *fakeProvider) Fetch(ctx context.Context, info transcript.Info) (*transcript.Transcript, error) {
	return &transcript.Transcript{Info: info, Cues: f.cues}, nil
}

type fakeCompleter struct {
	system, user string
	content      string
	err          error
	calls        int
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (completion.Result, error) {
	f.calls++
	f.system, f.user = systemPrompt, userPrompt
	if f.err != nil {
		return completion.Result{}, f.err
	}
	return completion.Result{Content: f.content, PromptTokens: 10, CompletionTokens: 5}, nil
}

type memoryCache struct {
	entries map[cache.Key]cache.Entry
	puts    int
}

func (m *memoryCache) Get(ctx context.Context, key cache.Key) (cache.Entry, bool, error) {
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *memoryCache) Put(ctx context.Context, key cache.Key, entry cache.Entry) error {
	if m.entries == nil {
		m.entries = map[cache.Key]cache.Entry{}
	}
	m.entries[key] = entry
	m.puts++
	return nil
}

func japaneseProvider() *fakeProvider {
	return &fakeProvider{
		list: &transcript.List{
			VideoID:         "abcdefghijk",
			ManuallyCreated: []transcript.Info{{VideoID: "abcdefghijk", LanguageCode: "en"}},
			Generated:       []transcript.Info{{VideoID: "abcdefghijk", LanguageCode: "ja", Generated: true}},
		},
		cues: []transcript.Cue{{Text: "玉ねぎを切ります", Start: 3}, {Text: "炒めます", Start: 20.5}},
	}
}

const stepsJSON = `{"steps": [{"time": 3, "text": "玉ねぎを切る"}]}`

func TestGenerate(t *testing.T) {
	provider := japaneseProvider()
	completer := &fakeCompleter{content: stepsJSON}
	svc := NewService(provider, completer, Options{MaxChars: 15000, Model: "gpt-4o-mini"}, slog.New(slog.DiscardHandler))

	res, err := svc.Generate(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Content != stepsJSON || res.Language != "ja" || res.Truncated || res.Cached {
		t.Errorf("result = %+v", res)
	}
	if res.Usage.PromptTokens != 10 {
		t.Errorf("usage = %+v", res.Usage)
	}
	if completer.system != SystemPrompt {
		t.Errorf("system prompt = %q", completer.system)
	}
	if !strings.HasSuffix(completer.user, "字幕データ:\n玉ねぎを切ります 炒めます") {
		t.Errorf("user prompt = %q", completer.user)
	}
}

func TestGenerateTruncates(t *testing.T) {
	provider := japaneseProvider()
	completer := &fakeCompleter{content: stepsJSON}
	svc := NewService(provider, completer, Options{MaxChars: 4}, slog.New(slog.DiscardHandler))

	res, err := svc.Generate(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Truncated {
		t.Error("expected truncated result")
	}
	if !strings.HasSuffix(completer.user, "字幕データ:\n玉ねぎを...") {
		t.Errorf("user prompt = %q", completer.user)
	}
}

func TestGenerateWithTimestamps(t *testing.T) {
	completer := &fakeCompleter{content: stepsJSON}
	svc := NewService(japaneseProvider(), completer, Options{WithTimestamps: true}, slog.New(slog.DiscardHandler))

	if _, err := svc.Generate(context.Background(), "abcdefghijk"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(completer.user, "[3] 玉ねぎを切ります [20] 炒めます") {
		t.Errorf("user prompt = %q", completer.user)
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	provider := japaneseProvider()
	svc := NewService(provider, nil, Options{}, slog.New(slog.DiscardHandler))

	_, err := svc.Generate(context.Background(), "abcdefghijk")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if provider.calls != 0 {
		t.Error("transcript should not be fetched without a credential")
	}
}

func TestGenerateTranscriptErrors(t *testing.T) {
	provider := &fakeProvider{listErr: transcript.ErrTranscriptsDisabled}
	completer := &fakeCompleter{}
	svc := NewService(provider, completer, Options{}, slog.New(slog.DiscardHandler))

	_, err := svc.Generate(context.Background(), "abcdefghijk")
	if !transcript.IsUnavailable(err) {
		t.Fatalf("err = %v, want unavailable", err)
	}
	if completer.calls != 0 {
		t.Error("model should not be called")
	}
}

func TestGenerateCompletionError(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(japaneseProvider(), &fakeCompleter{err: boom}, Options{}, slog.New(slog.DiscardHandler))

	if _, err := svc.Generate(context.Background(), "abcdefghijk"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateUsesCache(t *testing.T) {
	provider := japaneseProvider()
	completer := &fakeCompleter{content: stepsJSON}
	store := &memoryCache{}
	svc := NewService(provider, completer, Options{Model: "gpt-4o-mini"}, slog.New(slog.DiscardHandler), WithCache(store))

	first, err := svc.Generate(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	second, err := svc.Generate(context.Background(), "abcdefghijk")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first.Cached || !second.Cached {
		t.Errorf("cached flags = %v, %v", first.Cached, second.Cached)
	}
	if second.Content != stepsJSON || second.Language != "ja" {
		t.Errorf("cached result = %+v", second)
	}
	if completer.calls != 1 || provider.calls != 1 || store.puts != 1 {
		t.Errorf("completer=%d provider=%d puts=%d", completer.calls, provider.calls, store.puts)
	}
}

func TestPromptVersionTracksTemplate(t *testing.T) {
	if PromptVersion(false) == PromptVersion(true) {
		t.Error("timed and plain prompts should have different versions")
	}
	if PromptVersion(false) != PromptVersion(false) {
		t.Error("PromptVersion should be stable")
	}
}

func TestParseSteps(t *testing.T) {
	steps, err := ParseSteps("```json\n" + stepsJSON + "\n```")
	if err != nil {
		t.Fatalf("ParseSteps: %v", err)
	}
	if len(steps.Steps) != 1 || steps.Steps[0] != (Step{Time: 3, Text: "玉ねぎを切る"}) {
		t.Errorf("steps = %+v", steps)
	}
	if _, err := ParseSteps("not json"); err == nil {
		t.Error("expected error")
	}
}
