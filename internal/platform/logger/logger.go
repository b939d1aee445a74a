package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Level is controlled by
// LOG_LEVEL (debug, info, warn, error); default is info.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
