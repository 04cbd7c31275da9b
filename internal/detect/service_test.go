package detect

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/verselink-labs/verselink-core/internal/bible"
	"github.com/verselink-labs/verselink-core/internal/config"
	"github.com/verselink-labs/verselink-core/internal/pending"
)

type fakeVerseSource struct {
	verses map[string][]bible.VerseItem
	err    error
	calls  int
}

func (f *fakeVerseSource) GetVerses(_ context.Context, _ string, ref bible.Reference) ([]bible.VerseItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.verses[ref.String()], nil
}

func newTestService(t *testing.T, source VerseSource) (*Service, *pending.Buffer) {
	t.Helper()
	buffer := pending.NewBuffer(10, 50)
	cfg := config.DetectorConfig{Enabled: true, DebounceWindowMS: 5000}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(context.Background(), cfg, "KJV", nil, source, buffer, nil, log)
	t.Cleanup(svc.Close)
	return svc, buffer
}

func TestServiceProcessAddsResolvedReference(t *testing.T) {
	source := &fakeVerseSource{verses: map[string][]bible.VerseItem{
		"John 3:16": {{Number: 16, Text: "For God so loved the world"}},
	}}
	svc, buffer := newTestService(t, source)

	svc.Process("turn with me to John 3:16")

	if buffer.Len() != 1 {
		t.Fatalf("expected 1 pending verse, got %d", buffer.Len())
	}
	v := buffer.Current()
	if v.Reference.String() != "John 3:16" {
		t.Errorf("unexpected reference %q", v.Reference.String())
	}
	if v.Translation != "KJV" {
		t.Errorf("unexpected translation %q", v.Translation)
	}
	if v.HeardText != "turn with me to John 3:16" {
		t.Errorf("unexpected heard text %q", v.HeardText)
	}
	if len(v.Verses) != 1 || v.Verses[0].Text != "For God so loved the world" {
		t.Errorf("unexpected verses %+v", v.Verses)
	}
}

func TestServiceProcessSkipsUnresolvedReference(t *testing.T) {
	source := &fakeVerseSource{verses: map[string][]bible.VerseItem{}}
	svc, buffer := newTestService(t, source)

	svc.Process("see John 3:16")

	if source.calls != 1 {
		t.Fatalf("expected one lookup, got %d", source.calls)
	}
	if buffer.Len() != 0 {
		t.Errorf("unresolved reference should not be buffered, got %d entries", buffer.Len())
	}
}

func TestServiceProcessSurvivesLookupError(t *testing.T) {
	source := &fakeVerseSource{err: fmt.Errorf("database is locked")}
	svc, buffer := newTestService(t, source)

	svc.Process("see Romans 8:28")

	if buffer.Len() != 0 {
		t.Errorf("errored lookup should not be buffered, got %d entries", buffer.Len())
	}
}

func TestServiceProcessIgnoresTextWithoutReferences(t *testing.T) {
	source := &fakeVerseSource{}
	svc, buffer := newTestService(t, source)

	svc.Process("and now a word from our worship team")

	if source.calls != 0 {
		t.Errorf("expected no lookups, got %d", source.calls)
	}
	if buffer.Len() != 0 {
		t.Errorf("expected empty buffer, got %d entries", buffer.Len())
	}
}

func TestServiceDebouncesRepeatedTranscripts(t *testing.T) {
	source := &fakeVerseSource{verses: map[string][]bible.VerseItem{
		"Psalms 23:1": {{Number: 1, Text: "The LORD is my shepherd"}},
	}}
	svc, buffer := newTestService(t, source)

	svc.Process("Psalm 23:1")
	svc.Process("Psalm 23:1")

	if source.calls != 1 {
		t.Errorf("expected one lookup after debounce, got %d", source.calls)
	}
	if buffer.Len() != 1 {
		t.Errorf("expected 1 pending verse, got %d", buffer.Len())
	}
}
