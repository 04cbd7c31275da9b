package feed

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/verselink-labs/verselink-core/internal/bus"
	"github.com/verselink-labs/verselink-core/internal/protocol"
)

// Publisher drains a source and broadcasts each segment as a transcript on
// the bus, where the detection service picks it up.
type Publisher struct {
	bus       *bus.Client
	logger    *slog.Logger
	sessionID string
	clock     func() time.Time
}

func NewPublisher(busClient *bus.Client, log *slog.Logger) *Publisher {
	return &Publisher{
		bus:       busClient,
		logger:    log.With(slog.String("component", "feed")),
		sessionID: uuid.NewString(),
		clock:     time.Now,
	}
}

// Run pumps segments until the source is exhausted or ctx is cancelled.
func (p *Publisher) Run(ctx context.Context, src Source) error {
	for {
		seg, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := p.publish(seg); err != nil {
			p.logger.Warn("failed to publish transcript", slog.String("error", err.Error()))
		}
	}
}

func (p *Publisher) publish(seg Segment) error {
	subject := protocol.SubjectTranscriptFinal
	if seg.Partial {
		subject = protocol.SubjectTranscriptPartial
	}
	msg := protocol.Transcript{
		SessionID:  p.sessionID,
		Text:       seg.Text,
		Partial:    seg.Partial,
		Timestamp:  p.clock().UTC(),
		Confidence: seg.Confidence,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.bus.Conn().Publish(subject, data)
}
