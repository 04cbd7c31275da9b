package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/verselink-labs/verselink-core/internal/bus"
	"github.com/verselink-labs/verselink-core/internal/config"
	"github.com/verselink-labs/verselink-core/internal/feed"
)

var version = "0.1.0-dev"

// verselink-feed publishes transcript segments onto the bus for the daemon's
// detector to consume. With no -command it reads plain text lines from stdin;
// with -command it spawns an external transcription process and relays its
// JSON output.
func main() {
	var (
		configPath  string
		command     string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "verselink.yaml", "Path to configuration file")
	flag.StringVar(&command, "command", "", "Transcription command emitting JSON segments, one per line")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	busClient, err := bus.Connect(ctx, cfg.Bus, logger.With(slog.String("component", "bus")))
	if err != nil {
		logger.Error("failed to connect to bus", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer busClient.Close()

	var src feed.Source
	if command != "" {
		src, err = feed.NewExecSource(ctx, command)
		if err != nil {
			logger.Error("failed to start transcription command", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		src = feed.NewReaderSource(os.Stdin)
	}

	publisher := feed.NewPublisher(busClient, logger)
	if err := publisher.Run(ctx, src); err != nil {
		logger.Error("feed terminated", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("feed complete")
}
