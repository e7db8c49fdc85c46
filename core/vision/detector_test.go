package vision

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func uniformFrame(shade uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: shade})
		}
	}
	return img
}

type stubExtractor struct {
	text  string
	calls int
}

func (s *stubExtractor) ExtractText(_ context.Context, _ image.Image) (string, error) {
	s.calls++
	return s.text, nil
}

func TestFirstFrameAlwaysEmitsContext(t *testing.T) {
	extractor := &stubExtractor{text: "slide one"}
	var emitted []string
	detector := NewDetector(nil, extractor, func(text string) { emitted = append(emitted, text) },
		WithExtractionLimit(rate.Inf))

	triggered, err := detector.Observe(context.Background(), uniformFrame(100))
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if !triggered {
		t.Fatalf("expected first frame to trigger extraction")
	}
	if len(emitted) != 1 || emitted[0] != "slide one" {
		t.Fatalf("unexpected emissions: %v", emitted)
	}
}

func TestIdenticalFramesNeverRetrigger(t *testing.T) {
	extractor := &stubExtractor{text: "same slide"}
	detector := NewDetector(nil, extractor, func(string) {}, WithExtractionLimit(rate.Inf))

	frame := uniformFrame(100)
	for i := 0; i < 5; i++ {
		if _, err := detector.Observe(context.Background(), frame); err != nil {
			t.Fatalf("observe failed: %v", err)
		}
	}

	if extractor.calls != 1 {
		t.Fatalf("expected a single extraction, got %d", extractor.calls)
	}
}

func TestQualifyingChangeTriggersExactlyOnce(t *testing.T) {
	extractor := &stubExtractor{text: "new slide"}
	detector := NewDetector(nil, extractor, func(string) {}, WithExtractionLimit(rate.Inf))

	if _, err := detector.Observe(context.Background(), uniformFrame(0)); err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	// Shade jump of 50/255 is well past the default 5% threshold.
	triggered, err := detector.Observe(context.Background(), uniformFrame(50))
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if !triggered {
		t.Fatalf("expected qualifying change to trigger")
	}
	triggered, err = detector.Observe(context.Background(), uniformFrame(50))
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if triggered {
		t.Fatalf("expected steady frame not to retrigger")
	}
	if extractor.calls != 2 {
		t.Fatalf("expected two extractions, got %d", extractor.calls)
	}
}

func TestBaselineAdvancesOnSubThresholdChanges(t *testing.T) {
	extractor := &stubExtractor{text: "text"}
	detector := NewDetector(nil, extractor, func(string) {}, WithExtractionLimit(rate.Inf))

	// Each step is ~2% change, below the 5% threshold; against a fixed
	// baseline the cumulative drift would spuriously trigger.
	shades := []uint8{0, 5, 10, 15, 20}
	for _, shade := range shades {
		if _, err := detector.Observe(context.Background(), uniformFrame(shade)); err != nil {
			t.Fatalf("observe failed: %v", err)
		}
	}

	if extractor.calls != 1 {
		t.Fatalf("expected only the first frame to trigger, got %d extractions", extractor.calls)
	}
}

func TestEmptyExtractionEmitsNothing(t *testing.T) {
	extractor := &stubExtractor{text: "   "}
	var emissions int
	detector := NewDetector(nil, extractor, func(string) { emissions++ }, WithExtractionLimit(rate.Inf))

	triggered, err := detector.Observe(context.Background(), uniformFrame(100))
	if err != nil {
		t.Fatalf("observe failed: %v", err)
	}
	if triggered {
		t.Fatalf("expected blank extraction not to count as a trigger")
	}
	if emissions != 0 {
		t.Fatalf("expected no emissions, got %d", emissions)
	}
}

func TestExtractionRateLimitSkipsButKeepsBaseline(t *testing.T) {
	extractor := &stubExtractor{text: "text"}
	detector := NewDetector(nil, extractor, func(string) {}, WithExtractionLimit(rate.Every(time.Hour)))

	frames := []uint8{0, 50, 100, 150}
	for _, shade := range frames {
		if _, err := detector.Observe(context.Background(), uniformFrame(shade)); err != nil {
			t.Fatalf("observe failed: %v", err)
		}
	}

	// Burst of 2, then the limiter holds extraction back.
	if extractor.calls != 2 {
		t.Fatalf("expected limiter to cap extractions at 2, got %d", extractor.calls)
	}
}

func TestFrameDifference(t *testing.T) {
	identical := frameDifference(downsampleGray(uniformFrame(100)), downsampleGray(uniformFrame(100)))
	if identical != 0 {
		t.Fatalf("expected zero difference for identical frames, got %f", identical)
	}

	full := frameDifference(downsampleGray(uniformFrame(0)), downsampleGray(uniformFrame(255)))
	if full != 1.0 {
		t.Fatalf("expected full difference, got %f", full)
	}
}

func TestDownsampleCapsWidth(t *testing.T) {
	wide := image.NewGray(image.Rect(0, 0, 1600, 900))
	gray := downsampleGray(wide)
	if gray.Bounds().Dx() != 800 {
		t.Fatalf("expected width capped at 800, got %d", gray.Bounds().Dx())
	}
	if gray.Bounds().Dy() != 450 {
		t.Fatalf("expected aspect preserved, got height %d", gray.Bounds().Dy())
	}
}
