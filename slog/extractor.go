// Package slog provides logging decorators for tidepool interfaces.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/foofork/tidepool"
)

// Ensure LoggingExtractor implements tidepool.Extractor.
var _ tidepool.Extractor = (*LoggingExtractor)(nil)

// LoggingExtractor wraps an Extractor with per-call logging.
type LoggingExtractor struct {
	next   tidepool.Extractor
	logger *slog.Logger
}

// NewLoggingExtractor creates a new LoggingExtractor.
func NewLoggingExtractor(next tidepool.Extractor, logger *slog.Logger) *LoggingExtractor {
	return &LoggingExtractor{next: next, logger: logger}
}

// Extract delegates to the wrapped extractor and logs the outcome.
func (e *LoggingExtractor) Extract(ctx context.Context, html, url string, mode tidepool.ExtractionMode) (doc *tidepool.ExtractedDoc, err error) {
	defer func(begin time.Time) {
		var strategy string
		var quality int
		var fallback bool
		if doc != nil {
			strategy = doc.Metadata.Strategy
			quality = doc.QualityScore
			fallback = doc.Metadata.UsedFallback
		}
		e.logger.Info("extract",
			"url", url,
			"mode", mode.String(),
			"strategy", strategy,
			"quality", quality,
			"fallback", fallback,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return e.next.Extract(ctx, html, url, mode)
}
