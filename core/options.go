package pipeline

import (
	"context"

	"github.com/avrelja/sidecoach/core/analytics"
	"github.com/avrelja/sidecoach/core/answer"
	"github.com/avrelja/sidecoach/core/audio"
	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/intent"
	"github.com/avrelja/sidecoach/core/presentation"
	"github.com/avrelja/sidecoach/core/segmenter"
	"github.com/avrelja/sidecoach/core/speechtotext"
	"github.com/avrelja/sidecoach/core/vision"
)

type Option func(*options)

// AudioSource matches audio.Source; declared here so capture clients can
// be swapped without importing their packages here.
type AudioSource interface {
	Start(ctx context.Context, onFrame func(frame []float32)) error
	Close() error
	EncodingInfo() audio.EncodingInfo
}

type configuredSource struct {
	source AudioSource
	isSelf bool
}

type options struct {
	sources     []configuredSource
	vad         segmenter.Detector
	transcriber speechtotext.Transcriber

	grabber   vision.Grabber
	extractor vision.TextExtractor

	analyzer  intent.Analyzer
	generator answer.Generator

	presentationEnabled bool
	recorder            *analytics.Recorder

	busOptions          []bus.Option
	storeOptions        []conversation.Option
	segmenterOptions    []segmenter.Option
	visionOptions       []vision.Option
	classifierOptions   []intent.Option
	dispatcherOptions   []answer.Option
	presentationOptions []presentation.Option
}

func defaultOptions() options {
	return options{vad: segmenter.EnergyDetector{}}
}

// WithAudioSource adds a capture source for the remote side of the
// conversation.
func WithAudioSource(source AudioSource) Option {
	return func(o *options) {
		if source != nil {
			o.sources = append(o.sources, configuredSource{source: source})
		}
	}
}

// WithSelfAudioSource adds a capture source for the local speaker, whose
// utterances are recorded but never answered.
func WithSelfAudioSource(source AudioSource) Option {
	return func(o *options) {
		if source != nil {
			o.sources = append(o.sources, configuredSource{source: source, isSelf: true})
		}
	}
}

// WithSpeechDetector overrides the voice activity detector.
func WithSpeechDetector(vad segmenter.Detector) Option {
	return func(o *options) {
		if vad != nil {
			o.vad = vad
		}
	}
}

func WithTranscriber(transcriber speechtotext.Transcriber) Option {
	return func(o *options) { o.transcriber = transcriber }
}

// WithScreenWatcher enables the screen change detector.
func WithScreenWatcher(grabber vision.Grabber, extractor vision.TextExtractor, opts ...vision.Option) Option {
	return func(o *options) {
		o.grabber = grabber
		o.extractor = extractor
		o.visionOptions = append(o.visionOptions, opts...)
	}
}

// WithIntentAnalyzer enables question classification.
func WithIntentAnalyzer(analyzer intent.Analyzer, opts ...intent.Option) Option {
	return func(o *options) {
		o.analyzer = analyzer
		o.classifierOptions = append(o.classifierOptions, opts...)
	}
}

// WithAnswerGenerator enables answer dispatch.
func WithAnswerGenerator(generator answer.Generator, opts ...answer.Option) Option {
	return func(o *options) {
		o.generator = generator
		o.dispatcherOptions = append(o.dispatcherOptions, opts...)
	}
}

// WithPresentation enables the WebSocket viewer server.
func WithPresentation(opts ...presentation.Option) Option {
	return func(o *options) {
		o.presentationEnabled = true
		o.presentationOptions = append(o.presentationOptions, opts...)
	}
}

// WithRecorder persists the session for a later debrief.
func WithRecorder(recorder *analytics.Recorder) Option {
	return func(o *options) { o.recorder = recorder }
}

func WithBusOptions(opts ...bus.Option) Option {
	return func(o *options) { o.busOptions = append(o.busOptions, opts...) }
}

func WithStoreOptions(opts ...conversation.Option) Option {
	return func(o *options) { o.storeOptions = append(o.storeOptions, opts...) }
}

func WithSegmenterOptions(opts ...segmenter.Option) Option {
	return func(o *options) { o.segmenterOptions = append(o.segmenterOptions, opts...) }
}
