// Package pipeline assembles the copilot event pipeline: audio capture feeds
// the segmenter, utterances become transcripts, transcripts become classified
// questions, and questions become streamed grounded answers, all coordinated
// over the event bus.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/avrelja/sidecoach/core/answer"
	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/events"
	"github.com/avrelja/sidecoach/core/intent"
	"github.com/avrelja/sidecoach/core/presentation"
	"github.com/avrelja/sidecoach/core/segmenter"
	"github.com/avrelja/sidecoach/core/vision"
)

const (
	originPipeline = "pipeline"
	originSpeech   = "speech"
	originVision   = "vision"

	// utteranceQueueSize bounds utterances waiting for transcription so a
	// slow transcriber backs up here instead of inside the segmenter.
	utteranceQueueSize = 8
)

type Pipeline struct {
	bus   *bus.Bus
	store *conversation.Store

	lanes      []audioLane
	classifier *intent.Classifier
	dispatcher *answer.Dispatcher
	detector   *vision.Detector
	server     *presentation.Server

	options options

	closeOnce sync.Once
	cancel    context.CancelFunc
}

// audioLane is one capture source with its own segmenter; the self lane
// exists so the pipeline can tell the local speaker's utterances apart and
// never answer them.
type audioLane struct {
	source    AudioSource
	segmenter *segmenter.Segmenter
	isSelf    bool
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{options: defaultOptions()}
	for _, opt := range opts {
		opt(&p.options)
	}

	p.bus = bus.New(p.options.busOptions...)
	p.store = conversation.NewStore(p.options.storeOptions...)

	if p.options.analyzer != nil {
		p.classifier = intent.NewClassifier(p.options.analyzer, p.store, p.options.classifierOptions...)
	}
	if p.options.generator != nil {
		p.dispatcher = answer.NewDispatcher(p.bus, p.options.generator, p.store, p.options.dispatcherOptions...)
	}
	if p.options.grabber != nil && p.options.extractor != nil {
		p.detector = vision.NewDetector(p.options.grabber, p.options.extractor, func(text string) {
			p.bus.Publish(events.NewScreenContext(originVision, text))
		}, p.options.visionOptions...)
	}
	if p.options.presentationEnabled {
		serverOptions := append([]presentation.Option{presentation.WithSnapshotProvider(p.store)},
			p.options.presentationOptions...)
		p.server = presentation.NewServer(serverOptions...)
	}

	return p
}

// Bus exposes the event bus for additional subscribers, such as UIs.
func (p *Pipeline) Bus() *bus.Bus { return p.bus }

// Store exposes the grounding state.
func (p *Pipeline) Store() *conversation.Store { return p.store }

// Snapshot returns a point-in-time copy of the grounding state.
func (p *Pipeline) Snapshot() conversation.Snapshot { return p.store.Snapshot() }

// Run wires every configured component to the bus and blocks until the
// context is cancelled. Capture failures abort the start; failures of
// individual collaborators at runtime are contained by their components.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "run pipeline")
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	defer cancel()

	p.store.Attach(p.bus)
	if p.options.recorder != nil {
		p.options.recorder.Attach(p.bus)
	}
	if p.server != nil {
		p.server.Attach(p.bus)
	}
	if p.classifier != nil {
		p.classifier.Attach(p.bus)
	}
	if p.dispatcher != nil {
		p.dispatcher.Attach(p.bus)
	}

	p.bus.Start(ctx)
	defer func() {
		if err := p.bus.Stop(); err != nil {
			logger.Warn("Bus did not drain cleanly", "error", err)
		}
	}()

	if p.dispatcher != nil {
		go p.dispatcher.Run(ctx)
	}
	if p.detector != nil {
		go p.detector.Run(ctx)
	}
	if p.server != nil {
		go func() {
			if err := p.server.Run(ctx); err != nil {
				logger.Warn("Presentation server stopped", "error", err)
			}
		}()
	}

	if err := p.startAudio(ctx); err != nil {
		return err
	}

	p.bus.Publish(events.NewSystemStatus(originPipeline, "pipeline started"))
	logger.Info("pipeline started", "lanes", len(p.lanes))

	<-ctx.Done()
	p.Close()
	return ctx.Err()
}

// Close stops capture; Run unwinds everything else through its context.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		for _, lane := range p.lanes {
			lane.segmenter.Close()
			if err := lane.source.Close(); err != nil {
				logger.Warn("Failed to close audio source", "error", err)
			}
		}
	})
}

func (p *Pipeline) startAudio(ctx context.Context) error {
	if p.options.transcriber == nil {
		if len(p.options.sources) > 0 {
			return fmt.Errorf("audio sources configured without a transcriber")
		}
		return nil
	}

	for _, configured := range p.options.sources {
		utterances := make(chan segmenter.Utterance, utteranceQueueSize)
		isSelf := configured.isSelf

		sampleRate := configured.source.EncodingInfo().SampleRate
		seg := segmenter.New(p.options.vad, sampleRate, func(utterance segmenter.Utterance) {
			select {
			case utterances <- utterance:
			default:
				logger.Warn("transcription backlog full, dropping utterance",
					"duration", utterance.Duration().String())
			}
		}, p.options.segmenterOptions...)

		go seg.Run(ctx)
		go p.transcribeLoop(ctx, utterances, isSelf)

		if err := configured.source.Start(ctx, seg.Push); err != nil {
			return fmt.Errorf("failed to start audio capture: %w", err)
		}

		p.lanes = append(p.lanes, audioLane{source: configured.source, segmenter: seg, isSelf: isSelf})
	}
	return nil
}

func (p *Pipeline) transcribeLoop(ctx context.Context, utterances <-chan segmenter.Utterance, isSelf bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case utterance := <-utterances:
			text, err := p.options.transcriber.Transcribe(ctx, utterance.Samples, utterance.SampleRate)
			if err != nil {
				logger.Warn("Failed to transcribe utterance", "error", err)
				continue
			}
			if text == "" {
				continue
			}
			p.bus.Publish(events.NewSpeechText(originSpeech, text, isSelf))
		}
	}
}
