package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// execSource spawns an external transcription process and reads one JSON
// segment per stdout line: {"text": "...", "partial": false, "confidence": 0.9}.
// The process owns its own audio capture; this side only consumes text.
type execSource struct {
	cmd    *exec.Cmd
	stdout *bufio.Scanner
}

// NewExecSource starts the given command line. The returned source yields
// io.EOF once the process closes its stdout.
func NewExecSource(ctx context.Context, command string) (Source, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse feed command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("feed command is empty")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("feed command stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start feed command: %w", err)
	}

	return &execSource{cmd: cmd, stdout: bufio.NewScanner(pipe)}, nil
}

func (s *execSource) Next(ctx context.Context) (Segment, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Segment{}, err
		}
		if !s.stdout.Scan() {
			if err := s.stdout.Err(); err != nil {
				_ = s.cmd.Wait()
				return Segment{}, err
			}
			if err := s.cmd.Wait(); err != nil {
				return Segment{}, fmt.Errorf("feed command exited: %w", err)
			}
			return Segment{}, io.EOF
		}
		line := s.stdout.Bytes()
		if len(line) == 0 {
			continue
		}
		var seg Segment
		if err := json.Unmarshal(line, &seg); err != nil {
			return Segment{}, fmt.Errorf("decode feed segment: %w", err)
		}
		if seg.Text == "" {
			continue
		}
		return seg, nil
	}
}
