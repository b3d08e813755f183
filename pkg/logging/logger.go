// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for ShopGraph components.
//
// The package is a thin layer over the standard library slog package:
// stderr output by default (Unix CLI convention), optional JSON file output
// for service deployments. Every entry carries a "service" attribute so logs
// from the assistant, the CLI and tests can be separated downstream.
//
// # Basic Usage
//
//	logger := logging.Default()
//	logger.Info("turn started", "session_id", sessionID)
//
// # Service Setup
//
//	logger, closeFn, err := logging.New(logging.Config{
//	    Level:   logging.LevelDebug,
//	    Service: "assistant",
//	    LogDir:  "/var/log/shopgraph",
//	})
//	defer closeFn()
//
// This package does NOT redact sensitive data; callers must not log API keys
// or raw credentials.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the human-readable name of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// into a Level. Unknown values default to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures logger construction. The zero value yields an Info-level
// text logger on stderr.
type Config struct {
	// Level is the minimum severity to emit.
	Level Level

	// Service is attached to every entry as the "service" attribute.
	Service string

	// LogDir, when non-empty, additionally writes JSON logs to
	// "{Service}_{YYYY-MM-DD}.log" inside the directory. The directory is
	// created with 0750 permissions if missing.
	LogDir string

	// JSON switches stderr output to JSON format. File output is always
	// JSON regardless of this flag.
	JSON bool
}

// Default returns an Info-level stderr logger with no service attribute.
func Default() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: LevelInfo.toSlogLevel(),
	}))
}

// New builds a logger from the config.
//
// # Outputs
//
//   - *slog.Logger: Ready-to-use logger.
//   - func(): Close function that flushes and closes the log file, if any.
//     Always non-nil; safe to call when file logging is disabled.
//   - error: Non-nil if the log directory or file cannot be created.
func New(cfg Config) (*slog.Logger, func(), error) {
	opts := &slog.HandlerOptions{Level: cfg.Level.toSlogLevel()}

	var writer io.Writer = os.Stderr
	closeFn := func() {}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		name := fmt.Sprintf("%s_%s.log", cfg.Service, time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(cfg.LogDir, name),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		writer = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}

	var handler slog.Handler
	if cfg.JSON || cfg.LogDir != "" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	return logger, closeFn, nil
}
