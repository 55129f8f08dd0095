package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/foofork/tidepool"
)

// Ensure LoggingEngine implements tidepool.Engine.
var _ tidepool.Engine = (*LoggingEngine)(nil)

// LoggingEngine wraps an Engine with instance lifecycle logging. Pool
// warm-up, lazy construction, and sweep replacements all pass through
// NewInstance, so wrapping the engine makes instance churn observable.
type LoggingEngine struct {
	next   tidepool.Engine
	logger *slog.Logger
}

// NewLoggingEngine creates a new LoggingEngine.
func NewLoggingEngine(next tidepool.Engine, logger *slog.Logger) *LoggingEngine {
	return &LoggingEngine{next: next, logger: logger}
}

// NewInstance delegates to the wrapped engine, logs the construction,
// and wraps the returned instance with call logging.
func (e *LoggingEngine) NewInstance(ctx context.Context) (inst tidepool.Instance, err error) {
	defer func(begin time.Time) {
		info := e.next.Info()
		e.logger.Info("new instance",
			"module", info.Name,
			"version", info.Version,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	inst, err = e.next.NewInstance(ctx)
	if err != nil {
		return nil, err
	}
	return &LoggingInstance{next: inst, logger: e.logger}, nil
}

// Info delegates to the wrapped engine.
func (e *LoggingEngine) Info() tidepool.ModuleInfo {
	return e.next.Info()
}

// Close delegates to the wrapped engine and logs the shutdown.
func (e *LoggingEngine) Close(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		e.logger.Info("engine close",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Close(ctx)
}

// Ensure LoggingInstance implements tidepool.Instance.
var _ tidepool.Instance = (*LoggingInstance)(nil)

// LoggingInstance wraps an Instance with sandbox call logging.
type LoggingInstance struct {
	next   tidepool.Instance
	logger *slog.Logger
}

// Extract delegates to the wrapped instance and logs the sandbox call.
func (i *LoggingInstance) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode, tracker *tidepool.ResourceTracker) (doc *tidepool.ExtractedDoc, err error) {
	defer func(begin time.Time) {
		var peak uint32
		if tracker != nil {
			peak = tracker.PeakPages()
		}
		i.logger.Debug("sandbox extract",
			"url", url,
			"mode", mode.String(),
			"bytes", len(html),
			"peak_pages", peak,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return i.next.Extract(ctx, html, url, mode, tracker)
}

// Close delegates to the wrapped instance.
func (i *LoggingInstance) Close(ctx context.Context) error {
	return i.next.Close(ctx)
}
