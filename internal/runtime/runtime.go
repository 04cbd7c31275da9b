package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/verselink-labs/verselink-core/internal/api"
	"github.com/verselink-labs/verselink-core/internal/bible"
	"github.com/verselink-labs/verselink-core/internal/bus"
	"github.com/verselink-labs/verselink-core/internal/config"
	"github.com/verselink-labs/verselink-core/internal/detect"
	"github.com/verselink-labs/verselink-core/internal/display"
	"github.com/verselink-labs/verselink-core/internal/eventstore"
	"github.com/verselink-labs/verselink-core/internal/natsserver"
	"github.com/verselink-labs/verselink-core/internal/pending"
	"github.com/verselink-labs/verselink-core/internal/protocol"
	"github.com/verselink-labs/verselink-core/internal/push"
)

// Runtime owns the full detection-to-push pipeline: embedded bus, verse
// store, detector, pending buffer, display client, push coordinator and the
// operator API.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	tracerClose func(context.Context) error
	ready       atomic.Bool
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start wires every component and blocks until ctx is cancelled, then shuts
// the pipeline down in reverse dependency order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	bibleStore, err := bible.Open(ctx, r.cfg.Bible, r.logger.With(slog.String("component", "bible")))
	if err != nil {
		return fmt.Errorf("failed to open bible store: %w", err)
	}
	defer bibleStore.Close()

	eventStore, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer eventStore.Close()

	buffer := pending.NewBuffer(r.cfg.Pending.MaxPending, r.cfg.Pending.MaxHistory)
	displayClient := display.NewClient(ctx, r.cfg.Display, r.logger)
	defer displayClient.Close()

	clearDelay := time.Duration(r.cfg.Push.ResultClearDelayMS) * time.Millisecond
	coordinator := push.NewCoordinator(buffer, displayClient, eventStore, clearDelay, r.logger)

	detectSvc := detect.NewService(ctx, r.cfg.Detector, r.cfg.Bible.DefaultTranslation, busClient, bibleStore, buffer, eventStore, r.logger)
	defer detectSvc.Close()

	readyCheck := func() bool {
		return r.ready.Load() && busClient.Healthy() && detectSvc.Healthy()
	}
	apiServer := api.NewServer(r.cfg.HTTP, buffer, coordinator, displayClient, bibleStore, eventStore, readyCheck, r.logger)

	if err := r.bridge(busClient, buffer, displayClient, coordinator, apiServer.Feed()); err != nil {
		return fmt.Errorf("failed to wire event bridges: %w", err)
	}

	if err := detectSvc.Start(); err != nil {
		return fmt.Errorf("failed to start detection service: %w", err)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start operator api: %w", err)
	}
	defer apiServer.Close()

	if displayClient.Address() != "" {
		go displayClient.TestConnection(ctx)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("runtime", r.cfg.RuntimeName),
		slog.String("environment", r.cfg.Environment))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// bridge fans internal component events out to the bus, the websocket feed
// and the pipeline metrics.
func (r *Runtime) bridge(busClient *bus.Client, buffer *pending.Buffer, displayClient *display.Client, coordinator *push.Coordinator, feed *api.Hub) error {
	meter := otel.Meter("verselink-core")

	detections, err := meter.Int64Counter("verselink_detections_total",
		metric.WithDescription("Scripture references added to the pending buffer"))
	if err != nil {
		return err
	}
	pushes, err := meter.Int64Counter("verselink_pushes_total",
		metric.WithDescription("Verses pushed to the stage display"))
	if err != nil {
		return err
	}
	pushFailures, err := meter.Int64Counter("verselink_push_failures_total",
		metric.WithDescription("Pushes that failed to reach the stage display"))
	if err != nil {
		return err
	}
	displayProbes, err := meter.Int64Counter("verselink_display_probes_total",
		metric.WithDescription("Connection probes sent to the stage display"))
	if err != nil {
		return err
	}

	buffer.Notify(func(c pending.Change) {
		update := protocol.PendingUpdate{
			Kind:      string(c.Kind),
			ID:        c.ID,
			Pending:   buffer.Len(),
			Timestamp: time.Now().UTC(),
		}
		r.publish(busClient, protocol.SubjectPendingUpdated, update)
		feed.Broadcast(api.FeedEvent{Type: "pending", Payload: update})
		if c.Kind == pending.ChangeAdded {
			detections.Add(context.Background(), 1)
		}
	})

	displayClient.OnStatusChange(func(st display.Status) {
		status := protocol.DisplayStatus{
			Status:    string(st.State),
			Message:   st.Message,
			Timestamp: time.Now().UTC(),
		}
		r.publish(busClient, protocol.SubjectDisplayStatus, status)
		feed.Broadcast(api.FeedEvent{Type: "display", Payload: status})
		if st.State == display.StateTesting {
			displayProbes.Add(context.Background(), 1)
		}
	})

	coordinator.OnResult(func(res *push.Result) {
		feed.Broadcast(api.FeedEvent{Type: "push", Payload: res})
		if res == nil {
			return
		}
		switch res.Kind {
		case push.ResultSuccess:
			pushes.Add(context.Background(), 1)
		case push.ResultFailure:
			pushFailures.Add(context.Background(), 1)
		}
	})

	return nil
}

func (r *Runtime) publish(busClient *bus.Client, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to marshal bus message", slog.String("subject", subject), slog.String("error", err.Error()))
		return
	}
	if err := busClient.Conn().Publish(subject, data); err != nil {
		r.logger.Warn("failed to publish bus message", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
