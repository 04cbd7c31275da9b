package detect

import (
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/verselink-labs/verselink-core/internal/bible"
)

// Confidence assigned per pattern tier. These are deliberately fixed
// heuristics, not acoustic scores: the upstream transcription engine does not
// expose a usable per-token confidence.
const (
	ConfidenceStandard    = 0.9
	ConfidenceVerbal      = 0.85
	ConfidenceChapterOnly = 0.6
)

// DefaultDebounceWindow suppresses re-recognition noise: live speech engines
// often emit the same phrase more than once within a few seconds.
const DefaultDebounceWindow = 5 * time.Second

// Candidate is one detected reference with its pattern-tier confidence.
type Candidate struct {
	Reference  bible.Reference
	Confidence float64
}

// bookToken matches an optionally number-prefixed book name, including the
// "Book of X" books. A single trailing word is only consumed after "of" so
// surrounding speech ("turn to John ...") is not swallowed into the token.
const bookToken = `((?:(?:1st|2nd|3rd|first|second|third|iii|ii|i|[123])\s+)?[A-Za-z]+(?:\s+of\s+[A-Za-z]+)?)`

var (
	reStandard    = regexp.MustCompile(`(?i)\b` + bookToken + `\s+(\d{1,3})\s*:\s*(\d{1,3})(?:\s*-\s*(\d{1,3}))?\b`)
	reVerbal      = regexp.MustCompile(`(?i)\b` + bookToken + `\s+chapter\s+(\d{1,3})\s+verses?\s+(\d{1,3})(?:\s+(?:to|through)\s+(\d{1,3}))?\b`)
	reChapterOnly = regexp.MustCompile(`(?i)\b` + bookToken + `\s+(\d{1,3})\b`)
)

// Detector extracts scripture references from noisy transcript text. It is
// stateless apart from a short-lived recency cache used for debouncing.
type Detector struct {
	window time.Duration
	clock  func() time.Time

	mu     sync.Mutex
	recent map[string]time.Time
}

// NewDetector creates a detector with the given debounce window. A zero or
// negative window disables debouncing.
func NewDetector(window time.Duration) *Detector {
	return &Detector{
		window: window,
		clock:  time.Now,
		recent: make(map[string]time.Time),
	}
}

// Detect returns all scripture references found in text, highest-priority
// pattern first. Spans claimed by a higher-priority pattern are not re-matched
// by lower tiers, so "John 3:16" does not additionally yield "John 3".
// References with unrecognized books or out-of-range chapters are dropped
// silently, as are references seen within the debounce window.
func (d *Detector) Detect(text string) []Candidate {
	var (
		out     []Candidate
		claimed [][2]int
	)

	patterns := []struct {
		re         *regexp.Regexp
		confidence float64
	}{
		{reStandard, ConfidenceStandard},
		{reVerbal, ConfidenceVerbal},
		{reChapterOnly, ConfidenceChapterOnly},
	}

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			span := [2]int{m[0], m[1]}
			if overlaps(span, claimed) {
				continue
			}
			ref, ok := d.buildReference(text, m, p.re == reChapterOnly)
			if !ok {
				continue
			}
			claimed = append(claimed, span)
			if d.debounced(ref) {
				continue
			}
			out = append(out, Candidate{Reference: ref, Confidence: p.confidence})
		}
	}
	return out
}

func (d *Detector) buildReference(text string, m []int, chapterOnly bool) (bible.Reference, bool) {
	group := func(i int) string {
		if m[2*i] < 0 {
			return ""
		}
		return text[m[2*i]:m[2*i+1]]
	}

	book, ok := bible.NormalizeBookName(group(1))
	if !ok {
		return bible.Reference{}, false
	}

	chapter, err := strconv.Atoi(group(2))
	if err != nil || chapter < 1 {
		return bible.Reference{}, false
	}
	if !bible.IsValidChapter(book, chapter) {
		return bible.Reference{}, false
	}

	verseStart := 1
	verseEnd := 0
	if !chapterOnly {
		verseStart, err = strconv.Atoi(group(3))
		if err != nil || verseStart < 1 {
			return bible.Reference{}, false
		}
		if end := group(4); end != "" {
			verseEnd, err = strconv.Atoi(end)
			if err != nil || verseEnd < verseStart {
				verseEnd = 0
			}
		}
	}

	return bible.NewReference(book, chapter, verseStart, verseEnd), true
}

// debounced records the reference and reports whether a structurally equal
// reference was already produced within the window.
func (d *Detector) debounced(ref bible.Reference) bool {
	if d.window <= 0 {
		return false
	}
	key := ref.String()
	now := d.clock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.recent[key]; ok && now.Sub(last) < d.window {
		return true
	}
	d.recent[key] = now

	// Drop stale entries so the cache stays bounded under sustained speech.
	for k, ts := range d.recent {
		if now.Sub(ts) >= d.window {
			delete(d.recent, k)
		}
	}
	return false
}

func overlaps(span [2]int, claimed [][2]int) bool {
	for _, c := range claimed {
		if span[0] < c[1] && c[0] < span[1] {
			return true
		}
	}
	return false
}
