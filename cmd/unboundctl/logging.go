// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation settings for --log-file.
const (
	logFileMaxSizeMB  = 10
	logFileMaxBackups = 3
	logFileMaxAgeDays = 28
)

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", level)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newLogger returns the logger selected by the logging flags and the closer
// of its output.
func newLogger(cmd *cli.Command) (*slog.Logger, io.Closer, error) {
	level, err := parseLogLevel(cmd.String("log-level"))
	if err != nil {
		return nil, nil, err
	}
	format := cmd.String("log-format")
	if format != "text" && format != "json" {
		return nil, nil, fmt.Errorf("unknown log format %q", format)
	}

	path := cmd.String("log-file")
	if path == "" {
		return loggerFor(cmd.Root().ErrWriter, level, format), nopCloser{}, nil
	}
	logFile := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
	}
	return loggerFor(logFile, level, format), logFile, nil
}

// loggerFor returns a text or JSON logger writing to w.
func loggerFor(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
