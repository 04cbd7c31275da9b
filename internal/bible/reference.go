package bible

import "fmt"

// Reference is an immutable scripture location: canonical book, chapter and
// verse range. VerseEnd 0 means a single verse. Equality is structural;
// constructors normalize VerseEnd == VerseStart to 0 so equal references
// compare equal.
type Reference struct {
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	VerseStart int    `json:"verse_start"`
	VerseEnd   int    `json:"verse_end,omitempty"`
}

// NewReference builds a normalized reference. VerseEnd values at or below
// VerseStart collapse to the single-verse form.
func NewReference(book string, chapter, verseStart, verseEnd int) Reference {
	if verseEnd <= verseStart {
		verseEnd = 0
	}
	return Reference{Book: book, Chapter: chapter, VerseStart: verseStart, VerseEnd: verseEnd}
}

// IsRange reports whether the reference spans more than one verse.
func (r Reference) IsRange() bool {
	return r.VerseEnd > r.VerseStart
}

// LastVerse returns the final verse number of the reference.
func (r Reference) LastVerse() int {
	if r.IsRange() {
		return r.VerseEnd
	}
	return r.VerseStart
}

// String renders the reference in the conventional "Book C:V" or
// "Book C:V-W" form.
func (r Reference) String() string {
	if r.IsRange() {
		return fmt.Sprintf("%s %d:%d-%d", r.Book, r.Chapter, r.VerseStart, r.VerseEnd)
	}
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, r.VerseStart)
}
