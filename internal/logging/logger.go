package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"

	"plcdash-server/internal/config"
)

// New builds the process logger. The returned close function flushes and
// closes the log file when LOG_FILE is set; it is a no-op otherwise.
func New(cfg config.Config, version string, appName string) (*slog.Logger, func() error) {
	out, closeFn := output(cfg)

	if version == "dev" {
		h := tint.NewHandler(out, &tint.Options{
			Level:      cfg.LogLevel,
			AddSource:  true,
			TimeFormat: time.Kitchen,
			// Colors only make sense on a terminal, not in the rotated file.
			NoColor: cfg.LogFile != "",
		})
		return slog.New(h).With("app", appName), closeFn
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})
	return slog.New(h).With(
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
	), closeFn
}

func output(cfg config.Config) (io.Writer, func() error) {
	if cfg.LogFile == "" {
		return os.Stdout, func() error { return nil }
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, file), file.Close
}
