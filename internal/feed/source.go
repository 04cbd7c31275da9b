package feed

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Segment is one piece of transcribed speech handed to the publisher.
type Segment struct {
	Text       string  `json:"text"`
	Partial    bool    `json:"partial"`
	Confidence float64 `json:"confidence"`
}

// Source yields transcript segments until io.EOF.
type Source interface {
	Next(ctx context.Context) (Segment, error)
}

// readerSource turns plain text lines into final segments. Used for piping a
// transcript file or typing into stdin during rehearsal.
type readerSource struct {
	scanner *bufio.Scanner
}

func NewReaderSource(r io.Reader) Source {
	return &readerSource{scanner: bufio.NewScanner(r)}
}

func (s *readerSource) Next(ctx context.Context) (Segment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Segment{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Segment{}, err
			}
			return Segment{}, io.EOF
		}
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}
		return Segment{Text: text}, nil
	}
}

// staticSource replays a fixed script. Used in tests.
type staticSource struct {
	segments []Segment
	idx      int
}

func NewStaticSource(segments ...Segment) Source {
	return &staticSource{segments: segments}
}

func (s *staticSource) Next(ctx context.Context) (Segment, error) {
	if err := ctx.Err(); err != nil {
		return Segment{}, err
	}
	if s.idx >= len(s.segments) {
		return Segment{}, io.EOF
	}
	seg := s.segments[s.idx]
	s.idx++
	return seg, nil
}
