// Package vision watches the screen for meaningful changes and turns the
// changed frames into textual context for grounding.
package vision

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval      = 1500 * time.Millisecond
	DefaultDiffThreshold = 0.05
)

// Grabber captures the current screen contents.
type Grabber interface {
	Grab(ctx context.Context) (image.Image, error)
}

// TextExtractor turns a captured frame into text. Implementations are
// typically remote vision models, so calls are assumed to be slow and
// fallible.
type TextExtractor interface {
	ExtractText(ctx context.Context, img image.Image) (string, error)
}

type Detector struct {
	grabber   Grabber
	extractor TextExtractor
	onContext func(text string)

	interval  time.Duration
	threshold float64
	limiter   *rate.Limiter

	previous *image.Gray
}

type Option func(*Detector)

func WithInterval(interval time.Duration) Option {
	return func(d *Detector) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithDiffThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithExtractionLimit caps how often frames are sent to the text extractor,
// independently of how often the screen changes.
func WithExtractionLimit(limit rate.Limit) Option {
	return func(d *Detector) {
		d.limiter = rate.NewLimiter(limit, 2)
	}
}

func NewDetector(grabber Grabber, extractor TextExtractor, onContext func(text string), opts ...Option) *Detector {
	d := &Detector{
		grabber:   grabber,
		extractor: extractor,
		onContext: onContext,

		interval:  DefaultInterval,
		threshold: DefaultDiffThreshold,
		limiter:   rate.NewLimiter(rate.Every(3*time.Second), 2),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls the screen until the context is cancelled. Grab and extraction
// failures are logged and skipped; the loop only stops with the context.
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			img, err := d.grabber.Grab(ctx)
			if err != nil {
				logger.Warn("Failed to grab screen frame", "error", err)
				continue
			}
			if _, err := d.Observe(ctx, img); err != nil {
				logger.Warn("Failed to process screen frame", "error", err)
			}
		}
	}
}

// Observe compares the frame against the previously seen one and, when the
// difference qualifies, extracts text and reports it. The frame always
// becomes the new comparison baseline, emitted or not, so a slow drift never
// accumulates into a spurious trigger. The first frame always qualifies.
// Returns whether context was emitted.
func (d *Detector) Observe(ctx context.Context, img image.Image) (bool, error) {
	ctx, span := tracer.Start(ctx, "observe screen frame")
	defer span.End()

	gray := downsampleGray(img)

	changed := d.previous == nil
	if !changed {
		difference := frameDifference(d.previous, gray)
		span.SetAttributes(attribute.Float64("frame.difference", difference))
		changed = difference >= d.threshold
	}
	d.previous = gray

	if !changed {
		return false, nil
	}
	if !d.limiter.Allow() {
		span.AddEvent("extraction rate limited")
		return false, nil
	}

	text, err := d.extractor.ExtractText(ctx, img)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to extract screen text: %w", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	if d.onContext != nil {
		d.onContext(text)
	}
	return true, nil
}
