// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level  string // debug|info|warn|error
	Pretty bool
	// File, when set, also receives every line, rotated by size.
	File string
}

// Setup installs the global logger and returns a closer for the log file,
// if any.
func Setup(opts Options) (io.Closer, error) {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stderr
	if opts.Pretty {
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	w := console
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		// the data volume is small
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    5, // megabytes
			MaxBackups: 2,
			MaxAge:     14, // days
			Compress:   true,
		}
		w = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "muezzin").Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
