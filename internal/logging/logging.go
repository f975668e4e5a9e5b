// Package logging wires the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls where and how much the process logs.
type Options struct {
	Level      log.Level
	FilePath   string
	MaxAgeDays int
	Console    io.Writer // defaults to os.Stdout
}

// Configure sets up the standard logrus logger: coloured text on the console and,
// when FilePath is set, a rotated plain-text log file. The returned closer flushes
// and closes the file writer and is safe to call when no file is configured.
func Configure(opts Options) (io.Closer, error) {
	log.SetLevel(opts.Level)

	console := opts.Console
	if console == nil {
		console = os.Stdout
	}
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	log.SetOutput(console)

	if opts.FilePath == "" {
		return nopCloser{}, nil
	}

	logDir := filepath.Dir(opts.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.FilePath,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	log.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: rotator,
		log.FatalLevel: rotator,
		log.ErrorLevel: rotator,
		log.WarnLevel:  rotator,
		log.InfoLevel:  rotator,
		log.DebugLevel: rotator,
		log.TraceLevel: rotator,
	}, &log.TextFormatter{DisableColors: true, FullTimestamp: true}))

	return rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
