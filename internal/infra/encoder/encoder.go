// Package encoder holds the contract for the external streaming engine.
package encoder

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"ncstreamer/internal/model"
)

// Engine captures a source and pushes it to a stream URL.
type Engine interface {
	Start(ctx context.Context, source, serviceProvider, streamURL string) error
	Stop(ctx context.Context) error
	UpdateVideoQuality(q model.VideoQuality) error
}

var (
	ErrAlreadyRunning = errors.New("encoder already running")
	ErrNotRunning     = errors.New("encoder not running")
)

// Logging is an Engine that only records and logs what it is asked to do.
// It stands in when no capture engine is attached to the process.
type Logging struct {
	log *zap.Logger

	mu        sync.Mutex
	running   bool
	source    string
	streamURL string
	quality   model.VideoQuality
}

func NewLogging(log *zap.Logger) *Logging {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logging{log: log}
}

func (e *Logging) Start(ctx context.Context, source, serviceProvider, streamURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return ErrAlreadyRunning
	}
	e.running = true
	e.source = source
	e.streamURL = streamURL
	e.log.Info("encoder started",
		zap.String("source", source),
		zap.String("provider", serviceProvider),
		zap.Stringer("quality", e.quality))
	return nil
}

func (e *Logging) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return ErrNotRunning
	}
	e.running = false
	e.log.Info("encoder stopped", zap.String("source", e.source))
	e.source, e.streamURL = "", ""
	return nil
}

func (e *Logging) UpdateVideoQuality(q model.VideoQuality) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quality = q
	e.log.Info("encoder quality updated", zap.Stringer("quality", q))
	return nil
}

// Running reports whether Start succeeded without a later Stop.
func (e *Logging) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Quality returns the last quality applied.
func (e *Logging) Quality() model.VideoQuality {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality
}
