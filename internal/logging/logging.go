// Package logging builds the zap loggers used across the process.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func level(debug bool) zap.AtomicLevel {
	if debug {
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zap.NewAtomicLevelAt(zap.InfoLevel)
}

// New returns a console logger writing to stderr.
func New(debug bool) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level(debug))
	return zap.New(core)
}

// Sink is an append-only JSON log file.
type Sink struct {
	file *os.File
	core zapcore.Core
}

// OpenSink opens (creating if needed) the log file at path.
func OpenSink(path string, debug bool) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log sink: %w", err)
	}
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.Lock(f), level(debug))
	return &Sink{file: f, core: core}, nil
}

// Attach returns a logger writing to both base and the sink.
func (s *Sink) Attach(base *zap.Logger) *zap.Logger {
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, s.core)
	}))
}

// Close flushes and closes the file. Errors are returned for the caller to
// ignore or report.
func (s *Sink) Close() error {
	_ = s.core.Sync()
	return s.file.Close()
}
