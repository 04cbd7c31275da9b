package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/verselink-labs/verselink-core/internal/bible"
	"github.com/verselink-labs/verselink-core/internal/bus"
	"github.com/verselink-labs/verselink-core/internal/config"
	"github.com/verselink-labs/verselink-core/internal/eventstore"
	"github.com/verselink-labs/verselink-core/internal/pending"
	"github.com/verselink-labs/verselink-core/internal/protocol"
)

// VerseSource resolves verse text for a reference. Implemented by the bible
// store.
type VerseSource interface {
	GetVerses(ctx context.Context, translation string, ref bible.Reference) ([]bible.VerseItem, error)
}

// Service consumes transcript messages from the bus, runs the detector over
// them and feeds resolved detections into the pending buffer.
type Service struct {
	cfg         config.DetectorConfig
	translation string
	bus         *bus.Client
	detector    *Detector
	verses      VerseSource
	buffer      *pending.Buffer
	store       *eventstore.Store
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	subs        []*nats.Subscription
	wg          sync.WaitGroup
}

func NewService(parent context.Context, cfg config.DetectorConfig, translation string, busClient *bus.Client, verses VerseSource, buffer *pending.Buffer, store *eventstore.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:         cfg,
		translation: translation,
		bus:         busClient,
		detector:    NewDetector(time.Duration(cfg.DebounceWindowMS) * time.Millisecond),
		verses:      verses,
		buffer:      buffer,
		store:       store,
		logger:      log.With(slog.String("component", "detect")),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptFinal, s.handleTranscript)
	if err != nil {
		return fmt.Errorf("subscribe final transcripts: %w", err)
	}
	s.subs = append(s.subs, sub)

	if s.cfg.ConsumePartials {
		partialSub, err := s.bus.Conn().Subscribe(protocol.SubjectTranscriptPartial, s.handleTranscript)
		if err != nil {
			for _, sub := range s.subs {
				_ = sub.Drain()
			}
			return fmt.Errorf("subscribe partial transcripts: %w", err)
		}
		s.subs = append(s.subs, partialSub)
	}
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range s.subs {
		_ = sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || len(s.subs) > 0
}

func (s *Service) handleTranscript(msg *nats.Msg) {
	var transcript protocol.Transcript
	if err := json.Unmarshal(msg.Data, &transcript); err != nil {
		s.logger.Warn("failed to decode transcript", slogError(err))
		return
	}
	if transcript.Text == "" {
		return
	}
	s.Process(transcript.Text)
}

// Process runs detection over one transcript snippet. Exposed so the feed
// path and tests can drive the pipeline without a live bus subscription.
func (s *Service) Process(text string) {
	candidates := s.detector.Detect(text)
	for _, cand := range candidates {
		s.resolve(cand, text)
	}
}

func (s *Service) resolve(cand Candidate, heardText string) {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	items, err := s.verses.GetVerses(ctx, s.translation, cand.Reference)
	if err != nil {
		s.logger.Warn("verse lookup failed",
			slog.String("reference", cand.Reference.String()), slogError(err))
		return
	}
	if len(items) == 0 {
		s.logger.Debug("reference did not resolve to verse text",
			slog.String("reference", cand.Reference.String()))
		return
	}

	verse := pending.NewPendingVerse(cand.Reference, items, s.translation, heardText, cand.Confidence, time.Now().UTC())
	if !s.buffer.Add(verse) {
		return
	}

	s.logger.Info("detected reference",
		slog.String("reference", cand.Reference.String()),
		slog.Float64("confidence", cand.Confidence))

	if s.store != nil {
		if err := s.store.Append(ctx, eventstore.Event{
			Kind:        eventstore.KindDetection,
			Reference:   cand.Reference.String(),
			Translation: s.translation,
			Detail:      heardText,
		}); err != nil {
			s.logger.Warn("failed to record detection", slogError(err))
		}
	}

	s.publishDetection(verse)
}

func (s *Service) publishDetection(v *pending.PendingVerse) {
	if s.bus == nil {
		return
	}
	msg := protocol.Detection{
		ID:          v.ID,
		Reference:   v.Reference.String(),
		Translation: v.Translation,
		HeardText:   v.HeardText,
		Confidence:  v.Confidence,
		Timestamp:   v.DetectedAt,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn("failed to marshal detection", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectDetection, data); err != nil {
		s.logger.Warn("failed to publish detection", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
