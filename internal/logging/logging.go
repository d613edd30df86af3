package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the log level and an optional rotating log file.
type Config struct {
	// Level accepts "debug", "info", "warn", "error" (case-insensitive).
	// Unrecognized values mean info.
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Setup creates a configured *slog.Logger, sets it as the default, and returns it.
// Stderr gets a text handler when it is a terminal and JSON otherwise. A log
// file, when set, always receives JSON.
func Setup(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) && cfg.File == "" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(Writer(cfg, os.Stderr), opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Writer returns base, teed into a rotating file when cfg.File is set.
func Writer(cfg Config, base io.Writer) io.Writer {
	if cfg.File == "" {
		return base
	}
	if cfg.MaxSizeMB == 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups == 0 {
		cfg.MaxBackups = 3
	}
	if cfg.MaxAgeDays == 0 {
		cfg.MaxAgeDays = 28
	}
	return io.MultiWriter(base, &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
	})
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
