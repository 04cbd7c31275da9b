package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/verselink-labs/verselink-core/internal/bible"
)

// PendingVerse is one unconfirmed detection awaiting operator action.
type PendingVerse struct {
	ID                string            `json:"id"`
	Reference         bible.Reference   `json:"reference"`
	Verses            []bible.VerseItem `json:"verses"`
	Translation       string            `json:"translation"`
	DetectedAt        time.Time         `json:"detected_at"`
	Confidence        float64           `json:"confidence"`
	HeardText         string            `json:"heard_text"`
	PushCount         int               `json:"push_count"`
	LastPushedAt      time.Time         `json:"last_pushed_at,omitempty"`
	CurrentVerseIndex int               `json:"current_verse_index"`
}

// NewPendingVerse builds a pending verse with a fresh identifier.
func NewPendingVerse(ref bible.Reference, verses []bible.VerseItem, translation, heardText string, confidence float64, detectedAt time.Time) *PendingVerse {
	return &PendingVerse{
		ID:          uuid.NewString(),
		Reference:   ref,
		Verses:      verses,
		Translation: translation,
		DetectedAt:  detectedAt,
		Confidence:  confidence,
		HeardText:   heardText,
	}
}

// snapshot returns a copy detached from buffer-held state, so callers can
// read or marshal it without holding the buffer lock. The Verses slice header
// is shared: verse items are never mutated after detection.
func (v *PendingVerse) snapshot() *PendingVerse {
	cp := *v
	return &cp
}

// CurrentVerse returns the verse at the navigation index.
func (v *PendingVerse) CurrentVerse() bible.VerseItem {
	if len(v.Verses) == 0 {
		return bible.VerseItem{}
	}
	idx := v.CurrentVerseIndex
	if idx < 0 {
		idx = 0
	}
	if idx >= len(v.Verses) {
		idx = len(v.Verses) - 1
	}
	return v.Verses[idx]
}

// ChangeKind identifies what mutated in the buffer.
type ChangeKind string

const (
	ChangeAdded        ChangeKind = "added"
	ChangeRemoved      ChangeKind = "removed"
	ChangeIgnored      ChangeKind = "ignored"
	ChangePushed       ChangeKind = "pushed"
	ChangeNavigated    ChangeKind = "navigated"
	ChangeCleared      ChangeKind = "cleared"
	ChangeHistoryWiped ChangeKind = "history_wiped"
)

// Change describes one buffer mutation for subscribers.
type Change struct {
	Kind ChangeKind
	ID   string
}

// Buffer is the bounded, ordered queue of detections awaiting operator
// confirmation, plus a bounded most-recent-first history of resolved entries.
// All mutation happens under one mutex; notification callbacks run after the
// lock is released.
type Buffer struct {
	mu         sync.Mutex
	live       []*PendingVerse
	history    []*PendingVerse
	maxPending int
	maxHistory int
	clock      func() time.Time
	notify     []func(Change)
}

// NewBuffer creates a buffer with the given capacities. maxPending below 1
// falls back to 1.
func NewBuffer(maxPending, maxHistory int) *Buffer {
	if maxPending < 1 {
		maxPending = 1
	}
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Buffer{
		maxPending: maxPending,
		maxHistory: maxHistory,
		clock:      time.Now,
	}
}

// Notify registers a subscriber invoked after every mutation. Subscribers must
// not call back into the buffer synchronously from the callback goroutine if
// they want to avoid re-entrancy; the buffer itself holds no lock during
// delivery.
func (b *Buffer) Notify(fn func(Change)) {
	b.mu.Lock()
	b.notify = append(b.notify, fn)
	b.mu.Unlock()
}

func (b *Buffer) emit(c Change) {
	b.mu.Lock()
	subs := make([]func(Change), len(b.notify))
	copy(subs, b.notify)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(c)
	}
}

// Add appends a detection to the tail of the live queue. A verse whose
// reference structurally equals one already in the live queue is rejected:
// first detected wins until it is resolved. When the queue would exceed its
// capacity the oldest entry is evicted; evicted-for-space entries were never
// actioned and do not enter history. Reports whether the verse was added.
func (b *Buffer) Add(v *PendingVerse) bool {
	b.mu.Lock()
	for _, existing := range b.live {
		if existing.Reference == v.Reference {
			b.mu.Unlock()
			return false
		}
	}
	b.live = append(b.live, v)
	if len(b.live) > b.maxPending {
		b.live = b.live[1:]
	}
	b.mu.Unlock()

	b.emit(Change{Kind: ChangeAdded, ID: v.ID})
	return true
}

// Current returns a snapshot of the head of the live queue, the next
// candidate for operator action, or nil when the queue is empty.
func (b *Buffer) Current() *PendingVerse {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.live) == 0 {
		return nil
	}
	return b.live[0].snapshot()
}

// RemoveCurrent pops the head of the live queue and prepends it to history.
func (b *Buffer) RemoveCurrent() *PendingVerse {
	b.mu.Lock()
	if len(b.live) == 0 {
		b.mu.Unlock()
		return nil
	}
	v := b.live[0]
	b.live = b.live[1:]
	b.pushHistory(v)
	b.mu.Unlock()

	b.emit(Change{Kind: ChangeRemoved, ID: v.ID})
	return v
}

// Remove removes the entry with the given id wherever it sits in the live
// queue and prepends it to history. Unknown ids are a no-op returning nil.
func (b *Buffer) Remove(id string) *PendingVerse {
	b.mu.Lock()
	var removed *PendingVerse
	for i, v := range b.live {
		if v.ID == id {
			removed = v
			b.live = append(b.live[:i], b.live[i+1:]...)
			b.pushHistory(v)
			break
		}
	}
	b.mu.Unlock()

	if removed != nil {
		b.emit(Change{Kind: ChangeRemoved, ID: removed.ID})
	}
	return removed
}

// IgnoreCurrent pops the head without recording it to history: an explicit
// "this was noise" signal distinct from a completed push.
func (b *Buffer) IgnoreCurrent() *PendingVerse {
	b.mu.Lock()
	if len(b.live) == 0 {
		b.mu.Unlock()
		return nil
	}
	v := b.live[0]
	b.live = b.live[1:]
	b.mu.Unlock()

	b.emit(Change{Kind: ChangeIgnored, ID: v.ID})
	return v
}

// MarkAsPushed increments the push count and stamps the push time on the
// matching live entry. The entry stays in the queue: an operator may push the
// same verse again before dismissing it.
func (b *Buffer) MarkAsPushed(id string) bool {
	b.mu.Lock()
	var marked bool
	for _, v := range b.live {
		if v.ID == id {
			v.PushCount++
			v.LastPushedAt = b.clock()
			marked = true
			break
		}
	}
	b.mu.Unlock()

	if marked {
		b.emit(Change{Kind: ChangePushed, ID: id})
	}
	return marked
}

// NextVerse advances the navigation index of a multi-verse entry by one,
// clamped to the verse range. Reports whether movement occurred.
func (b *Buffer) NextVerse(id string) bool {
	return b.moveVerse(id, 1)
}

// PreviousVerse moves the navigation index back by one, clamped.
func (b *Buffer) PreviousVerse(id string) bool {
	return b.moveVerse(id, -1)
}

func (b *Buffer) moveVerse(id string, delta int) bool {
	b.mu.Lock()
	var moved bool
	for _, v := range b.live {
		if v.ID != id {
			continue
		}
		idx := v.CurrentVerseIndex + delta
		if idx >= 0 && idx < len(v.Verses) {
			v.CurrentVerseIndex = idx
			moved = true
		}
		break
	}
	b.mu.Unlock()

	if moved {
		b.emit(Change{Kind: ChangeNavigated, ID: id})
	}
	return moved
}

// SetCurrentVerse sets the navigation index directly when in range.
func (b *Buffer) SetCurrentVerse(id string, index int) bool {
	b.mu.Lock()
	var set bool
	for _, v := range b.live {
		if v.ID != id {
			continue
		}
		if index >= 0 && index < len(v.Verses) {
			v.CurrentVerseIndex = index
			set = true
		}
		break
	}
	b.mu.Unlock()

	if set {
		b.emit(Change{Kind: ChangeNavigated, ID: id})
	}
	return set
}

// ClearAll empties the live queue without touching history.
func (b *Buffer) ClearAll() {
	b.mu.Lock()
	b.live = nil
	b.mu.Unlock()
	b.emit(Change{Kind: ChangeCleared})
}

// ClearHistory empties history only.
func (b *Buffer) ClearHistory() {
	b.mu.Lock()
	b.history = nil
	b.mu.Unlock()
	b.emit(Change{Kind: ChangeHistoryWiped})
}

// Pending returns a snapshot of the live queue in detection order.
func (b *Buffer) Pending() []*PendingVerse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*PendingVerse, len(b.live))
	for i, v := range b.live {
		out[i] = v.snapshot()
	}
	return out
}

// History returns a snapshot of resolved entries, most recent first.
func (b *Buffer) History() []*PendingVerse {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*PendingVerse, len(b.history))
	for i, v := range b.history {
		out[i] = v.snapshot()
	}
	return out
}

// Len returns the live queue length.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Get returns a snapshot of the live entry with the given id, or nil.
func (b *Buffer) Get(id string) *PendingVerse {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, v := range b.live {
		if v.ID == id {
			return v.snapshot()
		}
	}
	return nil
}

// pushHistory prepends under the buffer lock.
func (b *Buffer) pushHistory(v *PendingVerse) {
	if b.maxHistory == 0 {
		return
	}
	b.history = append([]*PendingVerse{v}, b.history...)
	if len(b.history) > b.maxHistory {
		b.history = b.history[:b.maxHistory]
	}
}
