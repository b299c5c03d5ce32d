package ovlog

import (
	"io"
	"log/slog"
	"os"
)

// Config controls where process logs are written.
type Config struct {
	// FilePath, if set, rotates logs to disk in addition to stderr.
	FilePath   string
	MaxSize    int64
	MaxBackups int
	Level      slog.Level
	JSON       bool

	// OnRotate, if set, is called every time the rotating file rotates.
	// Typically wired to a metrics counter; see RotatingFile's WithOnRotate
	// for why it must not log back through the handler Setup returns.
	OnRotate func(RotationEvent)
}

// Setup installs the default slog logger for the process and returns a
// closer that must be called on shutdown to flush the rotating file.
func Setup(cfg Config) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stderr
	closer := func() error { return nil }

	if cfg.FilePath != "" {
		opts := []Option{}
		if cfg.MaxSize > 0 {
			opts = append(opts, WithMaxSize(cfg.MaxSize))
		}
		if cfg.MaxBackups > 0 {
			opts = append(opts, WithMaxBackups(cfg.MaxBackups))
		}
		if cfg.OnRotate != nil {
			opts = append(opts, WithOnRotate(cfg.OnRotate))
		}

		rf, err := NewRotatingFile(cfg.FilePath, opts...)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stderr, rf)
		closer = rf.Close
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, closer, nil
}
