package answer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/avrelja/sidecoach/core/events"
	"github.com/avrelja/sidecoach/core/llms"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(event events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

type scriptedChunk struct {
	content string
	err     error
}

type scriptedStream struct{ chunks []scriptedChunk }

func (s scriptedStream) Chunks(_ context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if chunk.err != nil {
				if !yield(nil, chunk.err) {
					return
				}
				return
			}
			if !yield(testContentChunk(chunk.content), nil) {
				return
			}
		}
	}
}

type testContentChunk string

func (c testContentChunk) FinishReason() *string { return nil }
func (c testContentChunk) Content() string       { return string(c) }

type scriptedGenerator struct {
	stream  scriptedStream
	prompts []string
}

func (g *scriptedGenerator) Generate(prompt string) llms.Stream {
	g.prompts = append(g.prompts, prompt)
	return g.stream
}

type staticPrompter string

func (p staticPrompter) GroundingPrompt(question string) string {
	return string(p) + question
}

func TestAnswerPublishesStartedChunksDoneInOrder(t *testing.T) {
	publisher := &recordingPublisher{}
	generator := &scriptedGenerator{stream: scriptedStream{chunks: []scriptedChunk{
		{content: "A"}, {content: "B"}, {content: "C"},
	}}}
	dispatcher := NewDispatcher(publisher, generator, staticPrompter("grounded: "))

	answerID := dispatcher.Answer(context.Background(), "what is a goroutine?")

	published := publisher.snapshot()
	if len(published) != 5 {
		t.Fatalf("expected 5 events, got %d: %v", len(published), published)
	}

	started, ok := published[0].(events.AnswerStarted)
	if !ok {
		t.Fatalf("expected first event to be answer.started, got %T", published[0])
	}
	if started.AnswerID != answerID || started.Question != "what is a goroutine?" {
		t.Fatalf("unexpected start event: %+v", started)
	}

	wantChunks := []string{"A", "B", "C"}
	for i, want := range wantChunks {
		chunk, ok := published[1+i].(events.AnswerChunk)
		if !ok {
			t.Fatalf("expected event %d to be answer.chunk, got %T", 1+i, published[1+i])
		}
		if chunk.Text != want || chunk.AnswerID != answerID {
			t.Fatalf("unexpected chunk %d: %+v", i, chunk)
		}
	}

	done, ok := published[4].(events.AnswerDone)
	if !ok {
		t.Fatalf("expected last event to be answer.done, got %T", published[4])
	}
	if done.AnswerID != answerID {
		t.Fatalf("expected done for %s, got %s", answerID, done.AnswerID)
	}
}

func TestAnswerUsesGroundingPrompt(t *testing.T) {
	publisher := &recordingPublisher{}
	generator := &scriptedGenerator{stream: scriptedStream{}}
	dispatcher := NewDispatcher(publisher, generator, staticPrompter("grounded: "))

	dispatcher.Answer(context.Background(), "why is the build red?")

	if len(generator.prompts) != 1 || generator.prompts[0] != "grounded: why is the build red?" {
		t.Fatalf("expected grounding prompt handed to generator, got %v", generator.prompts)
	}
}

func TestMidStreamErrorStillPublishesDoneExactlyOnce(t *testing.T) {
	publisher := &recordingPublisher{}
	generator := &scriptedGenerator{stream: scriptedStream{chunks: []scriptedChunk{
		{content: "partial"},
		{err: fmt.Errorf("connection reset")},
		{content: "never delivered"},
	}}}
	dispatcher := NewDispatcher(publisher, generator, nil)

	dispatcher.Answer(context.Background(), "question")

	published := publisher.snapshot()
	var chunks, dones int
	for _, event := range published {
		switch event.(type) {
		case events.AnswerChunk:
			chunks++
		case events.AnswerDone:
			dones++
		}
	}
	if chunks != 1 {
		t.Fatalf("expected only the pre-error chunk, got %d", chunks)
	}
	if dones != 1 {
		t.Fatalf("expected exactly one done event, got %d", dones)
	}
	if _, ok := published[len(published)-1].(events.AnswerDone); !ok {
		t.Fatalf("expected done to be the final event")
	}
}

func TestEnqueueDropsWhenPendingQueueFull(t *testing.T) {
	dispatcher := NewDispatcher(&recordingPublisher{}, &scriptedGenerator{}, nil, WithPendingCapacity(2))

	if !dispatcher.Enqueue("one") || !dispatcher.Enqueue("two") {
		t.Fatalf("expected first two questions to be accepted")
	}
	if dispatcher.Enqueue("three") {
		t.Fatalf("expected third question to be dropped")
	}
	if got := dispatcher.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped question, got %d", got)
	}
}

func TestRunAnswersQueuedQuestionsSequentially(t *testing.T) {
	publisher := &recordingPublisher{}
	generator := &scriptedGenerator{stream: scriptedStream{chunks: []scriptedChunk{{content: "ok"}}}}
	dispatcher := NewDispatcher(publisher, generator, nil)

	dispatcher.Enqueue("first")
	dispatcher.Enqueue("second")

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(finished)
	}()

	deadline := time.After(2 * time.Second)
	for {
		var dones int
		for _, event := range publisher.snapshot() {
			if _, ok := event.(events.AnswerDone); ok {
				dones++
			}
		}
		if dones == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for both answers")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-finished

	if len(generator.prompts) != 2 {
		t.Fatalf("expected two generations, got %d", len(generator.prompts))
	}
}
