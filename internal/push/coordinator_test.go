package push

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/verselink-labs/verselink-core/internal/bible"
	"github.com/verselink-labs/verselink-core/internal/pending"
)

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) SendMessage(_ context.Context, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) ClearMessage(ctx context.Context) error {
	return f.SendMessage(ctx, "")
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newVerse(ref bible.Reference, verses ...bible.VerseItem) *pending.PendingVerse {
	return pending.NewPendingVerse(ref, verses, "KJV", "heard", 0.9, time.Now())
}

func TestPushVerseSuccess(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{}
	c := NewCoordinator(buf, sender, nil, 20*time.Millisecond, newLogger())

	v := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "For God so loved the world"})
	buf.Add(v)

	if err := c.PushVerse(context.Background(), v); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if v.PushCount != 1 {
		t.Fatalf("expected push count 1, got %d", v.PushCount)
	}
	r := c.LastResult()
	if r == nil || r.Kind != ResultSuccess || r.Reference != "John 3:16" {
		t.Fatalf("unexpected result: %+v", r)
	}

	// The success result clears itself after the delay.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.LastResult() == nil {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("success result never cleared")
}

func TestPushVerseFailureLeavesVerseUntouched(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{err: errors.New("display returned HTTP 500")}
	c := NewCoordinator(buf, sender, nil, 0, newLogger())

	v := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "text"})
	buf.Add(v)

	if err := c.PushVerse(context.Background(), v); err == nil {
		t.Fatal("expected push error")
	}
	if v.PushCount != 0 {
		t.Fatalf("failed push must not increment push count, got %d", v.PushCount)
	}
	r := c.LastResult()
	if r == nil || r.Kind != ResultFailure || !strings.Contains(r.Message, "500") {
		t.Fatalf("unexpected result: %+v", r)
	}
	if buf.Current() == nil {
		t.Fatal("verse must remain in the queue after a failed push")
	}
}

func TestRetryLastPush(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{err: errors.New("boom")}
	c := NewCoordinator(buf, sender, nil, 0, newLogger())

	v := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "text"})
	buf.Add(v)

	if err := c.PushCurrent(context.Background()); err == nil {
		t.Fatal("expected failure")
	}

	sender.err = nil
	if err := c.RetryLastPush(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v.PushCount != 1 {
		t.Fatalf("expected push count 1 after retry, got %d", v.PushCount)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 delivered message, got %d", len(sender.sent))
	}
}

func TestPushCurrentEmptyBufferIsNoop(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{}
	c := NewCoordinator(buf, sender, nil, 0, newLogger())

	if err := c.PushCurrent(context.Background()); err != nil {
		t.Fatalf("empty push should be a no-op: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("nothing should have been sent")
	}
}

func TestDismissResult(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{err: errors.New("boom")}
	c := NewCoordinator(buf, sender, nil, 0, newLogger())

	v := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "text"})
	buf.Add(v)
	_ = c.PushVerse(context.Background(), v)

	if c.LastResult() == nil {
		t.Fatal("expected failure result")
	}
	c.DismissResult()
	if c.LastResult() != nil {
		t.Fatal("result should be dismissed")
	}
}

func TestNewPushSupersedesPendingClear(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{}
	c := NewCoordinator(buf, sender, nil, 30*time.Millisecond, newLogger())

	a := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "a"})
	b := newVerse(bible.NewReference("Romans", 5, 8, 0), bible.VerseItem{Number: 8, Text: "b"})
	buf.Add(a)
	buf.Add(b)

	_ = c.PushVerse(context.Background(), a)
	time.Sleep(10 * time.Millisecond)
	_ = c.PushVerse(context.Background(), b)

	// The first push's clear timer fires now; it must not wipe the second
	// push's result.
	time.Sleep(25 * time.Millisecond)
	r := c.LastResult()
	if r == nil || r.Reference != "Romans 5:8" {
		t.Fatalf("stale clear wiped newer result: %+v", r)
	}
}

func TestOnResultSubscriber(t *testing.T) {
	buf := pending.NewBuffer(10, 50)
	sender := &fakeSender{}
	c := NewCoordinator(buf, sender, nil, 0, newLogger())

	var got []*Result
	c.OnResult(func(r *Result) { got = append(got, r) })

	v := newVerse(bible.NewReference("John", 3, 16, 0), bible.VerseItem{Number: 16, Text: "text"})
	buf.Add(v)
	_ = c.PushVerse(context.Background(), v)
	c.DismissResult()

	if len(got) != 2 || got[0] == nil || got[1] != nil {
		t.Fatalf("unexpected notifications: %+v", got)
	}
}

func TestFormatStageMessage(t *testing.T) {
	single := newVerse(bible.NewReference("John", 3, 16, 0),
		bible.VerseItem{Number: 16, Text: "For God so loved the world"})
	got := FormatStageMessage(single)
	want := "John 3:16 (KJV)\nFor God so loved the world"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	multi := newVerse(bible.NewReference("Romans", 8, 28, 29),
		bible.VerseItem{Number: 28, Text: "And we know"},
		bible.VerseItem{Number: 29, Text: "For whom he did foreknow"})
	multi.CurrentVerseIndex = 1
	got = FormatStageMessage(multi)
	want = "Romans 8:28-29 (KJV)\n29. For whom he did foreknow"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
