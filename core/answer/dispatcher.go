// Package answer turns accepted questions into streamed, grounded answers
// published back onto the bus.
package answer

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/events"
	"github.com/avrelja/sidecoach/core/llms"
)

const (
	// DefaultPendingCapacity bounds how many questions may wait while an
	// answer is being generated.
	DefaultPendingCapacity = 4

	origin = "answer"
)

// Generator produces the model stream for one grounding prompt. The request
// is expected to be lazy; failures surface through the stream.
type Generator interface {
	Generate(prompt string) llms.Stream
}

// Prompter builds the grounding prompt for a question.
type Prompter interface {
	GroundingPrompt(question string) string
}

// Publisher is the outbound side of the event bus.
type Publisher interface {
	Publish(event events.Event)
}

// Dispatcher answers questions one at a time. Questions arriving while an
// answer is in flight wait in a bounded queue; overflow is dropped and
// counted rather than stalling the classifier.
type Dispatcher struct {
	publisher Publisher
	generator Generator
	prompter  Prompter

	pending chan string
	dropped atomic.Uint64
}

type Option func(*Dispatcher)

func WithPendingCapacity(capacity int) Option {
	return func(d *Dispatcher) {
		if capacity > 0 {
			d.pending = make(chan string, capacity)
		}
	}
}

func NewDispatcher(publisher Publisher, generator Generator, prompter Prompter, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		generator: generator,
		prompter:  prompter,
		pending:   make(chan string, DefaultPendingCapacity),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Attach subscribes the dispatcher to accepted questions.
func (d *Dispatcher) Attach(b *bus.Bus) {
	b.Subscribe(events.KindIntentQuestion, func(_ context.Context, event events.Event) {
		if question, ok := event.(events.IntentQuestion); ok {
			d.Enqueue(question.Text)
		}
	})
}

// Enqueue queues one question for answering. It never blocks; a full queue
// drops the question and reports false.
func (d *Dispatcher) Enqueue(question string) bool {
	select {
	case d.pending <- question:
		return true
	default:
		d.dropped.Add(1)
		logger.Warn("pending answer queue full, dropping question")
		return false
	}
}

// Dropped reports how many questions were discarded because the pending
// queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Run answers queued questions sequentially until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case question := <-d.pending:
			d.Answer(ctx, question)
		}
	}
}

// Answer runs one full answer cycle: a start marker, the streamed chunks in
// arrival order, and a terminal done marker. The done marker is published
// exactly once per cycle, also when the stream fails mid-way, so viewers can
// always close the answer. Returns the cycle's answer id.
func (d *Dispatcher) Answer(ctx context.Context, question string) string {
	ctx, span := tracer.Start(ctx, "answer question")
	defer span.End()

	answerID := uuid.NewString()
	span.SetAttributes(attribute.String("answer.id", answerID))

	doneOnce := sync.Once{}
	publishDone := func() {
		doneOnce.Do(func() {
			d.publisher.Publish(events.NewAnswerDone(origin, answerID))
		})
	}
	defer publishDone()

	d.publisher.Publish(events.NewAnswerStarted(origin, answerID, question))

	prompt := question
	if d.prompter != nil {
		prompt = d.prompter.GroundingPrompt(question)
	}

	stream := d.generator.Generate(prompt)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			logger.Warn("Answer stream failed mid-way", "error", err, "answer_id", answerID)
			break
		}

		if content, ok := chunk.(llms.StreamContentChunk); ok && content.Content() != "" {
			d.publisher.Publish(events.NewAnswerChunk(origin, answerID, content.Content()))
		}
	}

	return answerID
}
