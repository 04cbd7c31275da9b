package push

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/verselink-labs/verselink-core/internal/eventstore"
	"github.com/verselink-labs/verselink-core/internal/pending"
)

// StageSender abstracts the display client for the coordinator.
type StageSender interface {
	SendMessage(ctx context.Context, text string) error
	ClearMessage(ctx context.Context) error
}

// ResultKind distinguishes transient push outcomes.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultFailure ResultKind = "failure"
)

// Result is the transient outcome of the most recent push. Success results
// clear themselves after a delay; failure results stay until dismissed or a
// retry is invoked.
type Result struct {
	Kind      ResultKind `json:"kind"`
	Reference string     `json:"reference"`
	Message   string     `json:"message,omitempty"`
	At        time.Time  `json:"at"`
}

// Coordinator orchestrates operator-confirmed pushes: format the stage
// message, deliver it, and update buffer bookkeeping. It holds no verse data
// of its own.
type Coordinator struct {
	buffer     *pending.Buffer
	sender     StageSender
	store      *eventstore.Store
	log        *slog.Logger
	clearDelay time.Duration

	mu       sync.Mutex
	pushing  bool
	result   *Result
	gen      int
	onResult []func(*Result)
}

// NewCoordinator wires the coordinator to its collaborators. store may be nil
// when auditing is disabled.
func NewCoordinator(buffer *pending.Buffer, sender StageSender, store *eventstore.Store, clearDelay time.Duration, log *slog.Logger) *Coordinator {
	return &Coordinator{
		buffer:     buffer,
		sender:     sender,
		store:      store,
		log:        log.With(slog.String("component", "push")),
		clearDelay: clearDelay,
	}
}

// OnResult registers a subscriber invoked whenever the transient result
// changes. A nil result means it was cleared or dismissed.
func (c *Coordinator) OnResult(fn func(*Result)) {
	c.mu.Lock()
	c.onResult = append(c.onResult, fn)
	c.mu.Unlock()
}

// IsPushing reports whether a push is in flight. Callers use this to prevent
// a second push while one is outstanding.
func (c *Coordinator) IsPushing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushing
}

// LastResult returns a copy of the current transient result, or nil.
func (c *Coordinator) LastResult() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// PushVerse formats the verse and delivers it to the stage display. On
// success the verse's push bookkeeping is updated in the buffer and a
// transient success result is recorded, clearing itself after the configured
// delay. On failure the verse is left untouched so the operator can retry.
func (c *Coordinator) PushVerse(ctx context.Context, v *pending.PendingVerse) error {
	if v == nil {
		return nil
	}

	c.mu.Lock()
	c.pushing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.pushing = false
		c.mu.Unlock()
	}()

	text := FormatStageMessage(v)
	ref := v.Reference.String()

	if err := c.sender.SendMessage(ctx, text); err != nil {
		c.log.Warn("push failed",
			slog.String("reference", ref),
			slog.String("error", err.Error()))
		c.setResult(&Result{Kind: ResultFailure, Reference: ref, Message: err.Error(), At: time.Now().UTC()})
		c.record(ctx, eventstore.KindPushFailed, v, err.Error())
		return fmt.Errorf("push %s: %w", ref, err)
	}

	c.buffer.MarkAsPushed(v.ID)
	c.log.Info("pushed verse", slog.String("reference", ref), slog.String("translation", v.Translation))
	c.setResult(&Result{Kind: ResultSuccess, Reference: ref, At: time.Now().UTC()})
	c.scheduleClear()
	c.record(ctx, eventstore.KindPush, v, "")
	return nil
}

// PushCurrent pushes the buffer's head. An empty buffer is a logged no-op.
func (c *Coordinator) PushCurrent(ctx context.Context) error {
	v := c.buffer.Current()
	if v == nil {
		c.log.Info("push requested with empty pending buffer")
		return nil
	}
	return c.PushVerse(ctx, v)
}

// ClearStage blanks the stage display.
func (c *Coordinator) ClearStage(ctx context.Context) error {
	if err := c.sender.ClearMessage(ctx); err != nil {
		c.setResult(&Result{Kind: ResultFailure, Reference: "", Message: err.Error(), At: time.Now().UTC()})
		return fmt.Errorf("clear stage: %w", err)
	}
	return nil
}

// RetryLastPush dismisses any current error state and re-attempts the push
// of the buffer's current head.
func (c *Coordinator) RetryLastPush(ctx context.Context) error {
	c.DismissResult()
	return c.PushCurrent(ctx)
}

// DismissResult drops the transient result.
func (c *Coordinator) DismissResult() {
	c.mu.Lock()
	c.gen++
	c.result = nil
	subs := c.subscribers()
	c.mu.Unlock()
	for _, fn := range subs {
		fn(nil)
	}
}

func (c *Coordinator) setResult(r *Result) {
	c.mu.Lock()
	c.gen++
	c.result = r
	subs := c.subscribers()
	c.mu.Unlock()

	var copyR *Result
	if r != nil {
		v := *r
		copyR = &v
	}
	for _, fn := range subs {
		fn(copyR)
	}
}

// scheduleClear arranges for the current success result to clear itself. The
// generation counter invalidates the timer when a newer push or dismissal
// supersedes it.
func (c *Coordinator) scheduleClear() {
	if c.clearDelay <= 0 {
		return
	}
	c.mu.Lock()
	myGen := c.gen
	c.mu.Unlock()

	time.AfterFunc(c.clearDelay, func() {
		c.mu.Lock()
		if c.gen != myGen || c.result == nil || c.result.Kind != ResultSuccess {
			c.mu.Unlock()
			return
		}
		c.result = nil
		subs := c.subscribers()
		c.mu.Unlock()
		for _, fn := range subs {
			fn(nil)
		}
	})
}

// subscribers must be called with the mutex held.
func (c *Coordinator) subscribers() []func(*Result) {
	subs := make([]func(*Result), len(c.onResult))
	copy(subs, c.onResult)
	return subs
}

func (c *Coordinator) record(ctx context.Context, kind string, v *pending.PendingVerse, detail string) {
	if c.store == nil {
		return
	}
	evt := eventstore.Event{
		Kind:        kind,
		Reference:   v.Reference.String(),
		Translation: v.Translation,
		Detail:      detail,
	}
	if err := c.store.Append(ctx, evt); err != nil {
		c.log.Warn("failed to record push event", slog.String("error", err.Error()))
	}
}

// FormatStageMessage renders the payload delivered to the stage display:
// the reference and translation on the first line, the verse text below.
// Multi-verse entries show only the verse at the navigation index, prefixed
// with its number so the congregation can follow.
func FormatStageMessage(v *pending.PendingVerse) string {
	var b strings.Builder
	b.WriteString(v.Reference.String())
	if v.Translation != "" {
		b.WriteString(" (")
		b.WriteString(v.Translation)
		b.WriteString(")")
	}
	b.WriteString("\n")

	verse := v.CurrentVerse()
	if len(v.Verses) > 1 {
		b.WriteString(fmt.Sprintf("%d. ", verse.Number))
	}
	b.WriteString(verse.Text)
	return b.String()
}
