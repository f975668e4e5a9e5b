// Command mapwatch is a headless map client. It polls the dispatch board
// server, animates vehicle markers with fading trails and keeps the current
// scene in a GeoJSON file that any map viewer can reload.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dispatch-board/backend/internal/client"
	"github.com/dispatch-board/backend/internal/config"
	"github.com/dispatch-board/backend/internal/logging"
	"github.com/dispatch-board/backend/internal/render"
	"github.com/dispatch-board/backend/internal/watch"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "dispatch-board.yaml", "path to the YAML configuration file")
	output := flag.String("out", "", "scene output path (overrides watch.output_path)")
	classifyCalls := flag.Bool("classify", true, "ask the server for a chief complaint of every new dispatch call")
	noCalls := flag.Bool("no-calls", false, "do not poll dispatch records")
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

	outPath := cfg.Watch.OutputPath
	if *output != "" {
		outPath = *output
	}

	c := client.New(client.Options{
		BaseURL:    cfg.Watch.ServerURL,
		UseMsgpack: cfg.Watch.UseMsgpack,
	})
	var calls watch.CallSource = c
	if *noCalls {
		calls = nil
	}

	w := watch.New(c, calls, render.New(render.DefaultConfig()), watch.FileSink{Path: outPath}, watch.Options{
		PositionsInterval: cfg.GetPositionsInterval(),
		RecordsInterval:   cfg.GetRecordsInterval(),
		FrameInterval:     cfg.GetFrameInterval(),
		Classify:          *classifyCalls,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"server": cfg.Watch.ServerURL,
		"out":    outPath,
		"every":  cfg.GetPositionsInterval(),
	}).Info("mapwatch started")

	if err := w.Run(ctx); err != nil {
		log.WithError(err).Error("mapwatch stopped")
	}
}
