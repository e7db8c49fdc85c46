package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avrelja/sidecoach/core/audio"
	"github.com/avrelja/sidecoach/core/events"
	"github.com/avrelja/sidecoach/core/intent"
	"github.com/avrelja/sidecoach/core/llms"
	"github.com/avrelja/sidecoach/core/segmenter"
	"github.com/avrelja/sidecoach/core/speechtotext"
)

type fakeSource struct {
	mu      sync.Mutex
	onFrame func([]float32)
}

func (s *fakeSource) Start(_ context.Context, onFrame func([]float32)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = onFrame
	return nil
}

func (s *fakeSource) Close() error { return nil }

func (s *fakeSource) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: audio.DefaultSampleRate, Format: audio.EncodingFloat32}
}

func (s *fakeSource) push(frame []float32) {
	s.mu.Lock()
	onFrame := s.onFrame
	s.mu.Unlock()
	if onFrame != nil {
		onFrame(frame)
	}
}

func speechFrame() []float32 {
	frame := make([]float32, audio.DefaultFrameSize)
	for i := range frame {
		frame[i] = 0.5
	}
	return frame
}

func silenceFrame() []float32 {
	return make([]float32, audio.DefaultFrameSize)
}

type fixedTranscriber struct{ text string }

func (t fixedTranscriber) Transcribe(_ context.Context, _ []float32, _ int, _ ...speechtotext.TranscriptionOption) (string, error) {
	return t.text, nil
}

type fixedAnalyzer struct {
	mu    sync.Mutex
	calls int
}

func (a *fixedAnalyzer) AnalyzeIntent(_ context.Context, text, _ string) (*intent.Analysis, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return &intent.Analysis{IsQuestion: true, ExtractedQuestion: text + "？", Confidence: 0.9}, nil
}

func (a *fixedAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fixedStream struct{ chunks []string }

func (s fixedStream) Chunks(_ context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(fixedChunk(chunk), nil) {
				return
			}
		}
	}
}

type fixedChunk string

func (c fixedChunk) FinishReason() *string { return nil }
func (c fixedChunk) Content() string       { return string(c) }

type fixedGenerator struct{ chunks []string }

func (g fixedGenerator) Generate(string) llms.Stream { return fixedStream{chunks: g.chunks} }

func TestPipelineAnswersSpokenQuestionEndToEnd(t *testing.T) {
	source := &fakeSource{}
	analyzer := &fixedAnalyzer{}

	p := New(
		WithAudioSource(source),
		WithTranscriber(fixedTranscriber{text: "什么是 Transformer"}),
		WithIntentAnalyzer(analyzer),
		WithAnswerGenerator(fixedGenerator{chunks: []string{"注意力", "机制"}}),
		WithSegmenterOptions(segmenter.WithSilenceTimeout(100*time.Millisecond)),
	)

	chunks := make(chan events.AnswerChunk, 16)
	dones := make(chan events.AnswerDone, 4)
	p.Bus().Subscribe(events.KindAnswerChunk, func(_ context.Context, event events.Event) {
		if chunk, ok := event.(events.AnswerChunk); ok {
			chunks <- chunk
		}
	})
	p.Bus().Subscribe(events.KindAnswerDone, func(_ context.Context, event events.Event) {
		if done, ok := event.(events.AnswerDone); ok {
			dones <- done
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(finished)
	}()

	// One second of speech followed by enough silence to close the segment.
	for i := 0; i < 31; i++ {
		source.push(speechFrame())
	}
	for i := 0; i < 8; i++ {
		source.push(silenceFrame())
	}

	var done events.AnswerDone
	select {
	case done = <-dones:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for answer completion")
	}

	// Chunk delivery runs on its own dispatch loop, so the chunks may trail
	// the done marker slightly.
	var answerText string
	timeout := time.After(time.Second)
	for answerText != "注意力机制" {
		select {
		case chunk := <-chunks:
			if chunk.AnswerID != done.AnswerID {
				t.Fatalf("chunk for unexpected answer: %+v", chunk)
			}
			answerText += chunk.Text
		case <-timeout:
			t.Fatalf("expected streamed answer, got %q", answerText)
		}
	}
	if analyzer.callCount() != 1 {
		t.Fatalf("expected one intent analysis, got %d", analyzer.callCount())
	}

	cancel()
	<-finished
}

func TestPipelineNeverAnswersOwnSpeech(t *testing.T) {
	source := &fakeSource{}
	analyzer := &fixedAnalyzer{}

	p := New(
		WithSelfAudioSource(source),
		WithTranscriber(fixedTranscriber{text: "我自己说的话算不算问题"}),
		WithIntentAnalyzer(analyzer),
		WithAnswerGenerator(fixedGenerator{chunks: []string{"ignored"}}),
		WithSegmenterOptions(segmenter.WithSilenceTimeout(100*time.Millisecond)),
	)

	transcripts := make(chan events.SpeechText, 4)
	p.Bus().Subscribe(events.KindSpeechText, func(_ context.Context, event events.Event) {
		if speech, ok := event.(events.SpeechText); ok {
			transcripts <- speech
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(finished)
	}()

	for i := 0; i < 31; i++ {
		source.push(speechFrame())
	}
	for i := 0; i < 8; i++ {
		source.push(silenceFrame())
	}

	select {
	case speech := <-transcripts:
		if !speech.IsSelf {
			t.Fatalf("expected transcript marked as self, got %+v", speech)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}

	// Give the classifier's dispatch loop time to process the transcript.
	time.Sleep(100 * time.Millisecond)
	if analyzer.callCount() != 0 {
		t.Fatalf("expected own speech to bypass the analyzer, got %d calls", analyzer.callCount())
	}

	cancel()
	<-finished
}
