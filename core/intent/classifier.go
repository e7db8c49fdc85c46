// Package intent filters transcribed speech down to the questions worth
// answering, using a fast heuristic pre-filter ahead of an LLM classifier.
package intent

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/events"
)

const (
	// DefaultMinLength is the minimum utterance length, in runes, that is
	// worth classifying at all.
	DefaultMinLength = 4
	// DefaultMinConfidence is the classifier confidence below which a
	// detected question is discarded.
	DefaultMinConfidence = 0.6
	// DefaultHistoryWindow is how many recent turns accompany the text for
	// coreference resolution.
	DefaultHistoryWindow = 5

	origin = "intent"
)

// Analysis is the structured verdict of the second classification phase.
type Analysis struct {
	IsQuestion        bool    `json:"is_question"`
	ExtractedQuestion string  `json:"extracted_question"`
	Confidence        float64 `json:"confidence"`
}

// Analyzer performs the precise second-phase classification. Implementations
// are expected to be remote models; errors are treated as "not a question".
type Analyzer interface {
	AnalyzeIntent(ctx context.Context, text, history string) (*Analysis, error)
}

// HistoryProvider supplies recent conversation turns as role-tagged lines.
type HistoryProvider interface {
	RecentWindow(limit int) string
}

type Classifier struct {
	analyzer Analyzer
	history  HistoryProvider

	minLength     int
	minConfidence float64
	historyWindow int
}

type Option func(*Classifier)

func WithMinLength(minLength int) Option {
	return func(c *Classifier) {
		if minLength > 0 {
			c.minLength = minLength
		}
	}
}

func WithMinConfidence(minConfidence float64) Option {
	return func(c *Classifier) {
		if minConfidence > 0 {
			c.minConfidence = minConfidence
		}
	}
}

func WithHistoryWindow(window int) Option {
	return func(c *Classifier) {
		if window > 0 {
			c.historyWindow = window
		}
	}
}

func NewClassifier(analyzer Analyzer, history HistoryProvider, opts ...Option) *Classifier {
	c := &Classifier{
		analyzer: analyzer,
		history:  history,

		minLength:     DefaultMinLength,
		minConfidence: DefaultMinConfidence,
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach subscribes the classifier to finalized transcripts and republishes
// accepted questions.
func (c *Classifier) Attach(b *bus.Bus) {
	b.Subscribe(events.KindSpeechText, func(ctx context.Context, event events.Event) {
		speech, ok := event.(events.SpeechText)
		if !ok {
			return
		}
		question, confidence, accepted := c.Classify(ctx, speech.Text, speech.IsSelf)
		if accepted {
			b.Publish(events.NewIntentQuestion(origin, question, confidence))
		}
	})
}

// Classify runs both phases over one utterance and returns the cleaned
// question when it passes. Own speech, short text, and obvious noise never
// reach the analyzer; analyzer failures reject the utterance rather than
// letting noise through.
func (c *Classifier) Classify(ctx context.Context, text string, isSelf bool) (string, float64, bool) {
	ctx, span := tracer.Start(ctx, "classify utterance")
	defer span.End()

	text = strings.TrimSpace(text)
	runeCount := utf8.RuneCountInString(text)
	span.SetAttributes(attribute.Int("utterance.length", runeCount))

	if isSelf {
		span.AddEvent("skipped own speech")
		return "", 0, false
	}
	if runeCount < c.minLength {
		span.AddEvent("skipped short utterance")
		return "", 0, false
	}
	if isObviousNoise(text, runeCount) {
		span.AddEvent("skipped obvious noise")
		return "", 0, false
	}

	var history string
	if c.history != nil {
		history = c.history.RecentWindow(c.historyWindow)
	}

	analysis, err := c.analyzer.AnalyzeIntent(ctx, text, history)
	if err != nil {
		span.RecordError(err)
		logger.Warn("Intent analysis failed, discarding utterance", "error", err)
		return "", 0, false
	}

	question := strings.TrimSpace(analysis.ExtractedQuestion)
	span.SetAttributes(
		attribute.Bool("analysis.is_question", analysis.IsQuestion),
		attribute.Float64("analysis.confidence", analysis.Confidence),
	)

	if !analysis.IsQuestion || question == "" || analysis.Confidence < c.minConfidence {
		return "", 0, false
	}
	return question, analysis.Confidence, true
}
