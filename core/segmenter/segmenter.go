// Package segmenter turns a stream of fixed-size audio frames into complete
// utterance segments bounded by silence.
//
// The segmenter owns its sample buffer exclusively. Frames enter through a
// bounded channel fed by the capture callback; finished utterances leave as
// copies through the emit callback. Nothing is ever shared by reference across
// the capture thread boundary.
package segmenter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultSpeechThreshold = 0.5
	DefaultSilenceTimeout  = 1500 * time.Millisecond
	DefaultFrameQueueSize  = 64
)

// Detector scores a single frame for voice activity.
type Detector interface {
	// SpeechProbability returns the probability in [0, 1] that the frame
	// contains speech.
	SpeechProbability(frame []float32, sampleRate int) float64
}

// Utterance is one contiguous speech segment bounded by silence. The trailing
// silence window is included: the transition fires on crossing the timeout,
// not on trimming tail silence.
type Utterance struct {
	Samples    []float32
	SampleRate int
	Start      time.Time
}

func (u Utterance) Duration() time.Duration {
	if u.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(u.Samples)) / float64(u.SampleRate) * float64(time.Second))
}

// Segmenter is a two-state machine (silent, speaking). While speaking, every
// frame is buffered regardless of its own speech score; the segment closes
// when the stream time since the last speech frame exceeds the silence
// timeout.
//
// Time is tracked in stream time derived from frame length, not wall clock,
// so a backlog of queued frames cannot cut a segment short.
type Segmenter struct {
	detector   Detector
	sampleRate int

	speechThreshold float64
	silenceTimeout  time.Duration

	emit func(Utterance)

	frames  chan []float32
	dropped atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}

	// State below is owned by the Run goroutine.
	speaking   bool
	buffer     []float32
	elapsed    time.Duration
	lastSpeech time.Duration
	start      time.Time
}

type Option func(*Segmenter)

// WithSpeechThreshold overrides the probability above which a frame counts as
// speech.
func WithSpeechThreshold(threshold float64) Option {
	return func(s *Segmenter) { s.speechThreshold = threshold }
}

// WithSilenceTimeout overrides how much trailing silence closes a segment.
func WithSilenceTimeout(timeout time.Duration) Option {
	return func(s *Segmenter) {
		if timeout > 0 {
			s.silenceTimeout = timeout
		}
	}
}

// WithFrameQueueSize overrides the capacity of the capture hand-off queue.
func WithFrameQueueSize(size int) Option {
	return func(s *Segmenter) {
		if size > 0 {
			s.frames = make(chan []float32, size)
		}
	}
}

func New(detector Detector, sampleRate int, emit func(Utterance), opts ...Option) *Segmenter {
	if emit == nil {
		emit = func(Utterance) {}
	}

	s := &Segmenter{
		detector:        detector,
		sampleRate:      sampleRate,
		speechThreshold: DefaultSpeechThreshold,
		silenceTimeout:  DefaultSilenceTimeout,
		emit:            emit,
		frames:          make(chan []float32, DefaultFrameQueueSize),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push hands one frame from the capture thread to the segmenter. It never
// blocks; frames beyond the queue capacity are dropped and counted.
func (s *Segmenter) Push(frame []float32) {
	select {
	case s.frames <- frame:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many capture frames were discarded because the
// segmenter could not keep up.
func (s *Segmenter) Dropped() uint64 { return s.dropped.Load() }

// Run consumes frames until the context is cancelled or Close is called.
// It is the only goroutine touching segmentation state.
func (s *Segmenter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case frame := <-s.frames:
			s.processFrame(frame)
		}
	}
}

// Close stops Run. An in-progress segment is discarded; shutdown is not a
// silence boundary.
func (s *Segmenter) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Segmenter) processFrame(frame []float32) {
	frameDuration := time.Duration(float64(len(frame)) / float64(s.sampleRate) * float64(time.Second))
	s.elapsed += frameDuration

	probability := s.detector.SpeechProbability(frame, s.sampleRate)
	isSpeech := probability > s.speechThreshold

	if isSpeech {
		if !s.speaking {
			s.speaking = true
			s.start = time.Now()
			s.buffer = s.buffer[:0]
			logger.Debug("speech started", "probability", probability)
		}
		s.lastSpeech = s.elapsed
		s.buffer = append(s.buffer, frame...)
		return
	}

	if !s.speaking {
		return
	}

	s.buffer = append(s.buffer, frame...)
	if s.elapsed-s.lastSpeech > s.silenceTimeout {
		s.finalize()
	}
}

func (s *Segmenter) finalize() {
	s.speaking = false
	if len(s.buffer) == 0 {
		return
	}

	samples := make([]float32, len(s.buffer))
	copy(samples, s.buffer)
	s.buffer = s.buffer[:0]

	utterance := Utterance{Samples: samples, SampleRate: s.sampleRate, Start: s.start}
	logger.Debug("utterance segmented", "duration", utterance.Duration().String())
	s.emit(utterance)
}
