package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/verselink-labs/verselink-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.Append(context.Background(), Event{Kind: KindDetection, Reference: "John 3:16"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	events, err := es.Recent(context.Background(), 10)
	if err != nil || events != nil {
		t.Fatalf("ephemeral store should return nothing: %v %v", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.Append(context.Background(), Event{Kind: KindDetection, Reference: "John 3:16", Translation: "KJV"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := es.Append(context.Background(), Event{Kind: KindPush, Reference: "John 3:16", Translation: "KJV"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	events, err := es.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Kind != KindPush {
		t.Fatalf("expected newest first, got %+v", events)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	cfg := config.EventStoreConfig{
		Path:          filepath.Join(t.TempDir(), "events.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxEvents:     2,
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.Append(context.Background(), Event{Kind: KindDetection, Reference: "Genesis 1:1"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, ref := range []string{"John 3:16", "Romans 5:8", "Acts 2:38"} {
		if err := es.Append(context.Background(), Event{Kind: KindDetection, Reference: ref}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events after prune, got %d", len(events))
	}
	for _, e := range events {
		if e.Reference == "Genesis 1:1" {
			t.Fatal("aged-out event survived prune")
		}
	}
}
