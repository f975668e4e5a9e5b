package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dispatch-board/backend/internal/api"
	"github.com/dispatch-board/backend/internal/classify"
	"github.com/dispatch-board/backend/internal/config"
	"github.com/dispatch-board/backend/internal/feed"
	"github.com/dispatch-board/backend/internal/logging"
	"github.com/dispatch-board/backend/internal/positions"
	"github.com/dispatch-board/backend/internal/records"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "dispatch-board.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logging.Configure(logging.Options{
		Level:      cfg.GetLogLevel(),
		FilePath:   cfg.Logging.FilePath,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to configure logging: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logCloser.Close() }()

	policy, err := positions.ParseFailurePolicy(cfg.Positions.FailurePolicy)
	if err != nil {
		log.Fatalf("invalid positions config: %v", err)
	}

	b := cfg.Positions.Bounds
	feedClient := feed.NewClient(feed.Options{
		URL:       cfg.Positions.FeedURL,
		Token:     cfg.Positions.Token,
		Region:    feed.Region{South: b.South, West: b.West, North: b.North, East: b.East},
		TypeCodes: cfg.Positions.TypeCodes,
		Timeout:   cfg.GetFeedTimeout(),
	})
	coordinator := positions.NewCoordinator(feedClient,
		positions.WithTTL(cfg.GetCacheTTL()),
		positions.WithFetchTimeout(cfg.GetFeedTimeout()),
		positions.WithFailurePolicy(policy),
	)

	recordsClient := records.NewClient(records.Options{
		BaseURL:  cfg.Records.BaseURL,
		APIToken: cfg.Records.APIToken,
		TableID:  cfg.Records.TableID,
		Limit:    cfg.Records.Limit,
		Timeout:  cfg.GetRecordsTimeout(),
	})
	if !recordsClient.Configured() {
		log.Warn("NocoDB credentials are not configured; /api/dispatch-records will return 500")
	}

	classifier := classify.New(classify.Options{
		Endpoint:          cfg.Classifier.Endpoint,
		APIKey:            cfg.Classifier.APIKey,
		Model:             cfg.Classifier.Model,
		Timeout:           cfg.GetClassifierTimeout(),
		MaxFallbackLength: cfg.Classifier.MaxFallbackLength,
	})
	if cfg.Classifier.Endpoint == "" {
		log.Info("no language model endpoint configured; chief complaints use keyword extraction")
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Positions:      coordinator,
		Calls:          recordsClient,
		Classifier:     classifier,
		StreamInterval: cfg.GetStreamInterval(),
		Version:        Version,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg.Server)
	api.RegisterRoutes(e, handlers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go handlers.Stream.Run(ctx)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Dispatch Board Server                           ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Cache TTL:  %-45s║\n", cfg.GetCacheTTL())
	fmt.Printf("║  On Failure: %-45s║\n", policy)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", *configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe() }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("graceful shutdown failed")
		}
	}
}
