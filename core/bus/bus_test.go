package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/avrelja/sidecoach/core/events"
)

func TestPublishDeliversInOrderToSingleSubscriber(t *testing.T) {
	b := New()

	var mu sync.Mutex
	received := []string{}
	done := make(chan struct{})
	b.Subscribe(events.KindSpeechText, func(_ context.Context, event events.Event) {
		mu.Lock()
		received = append(received, event.(events.SpeechText).Text)
		if len(received) == 5 {
			close(done)
		}
		mu.Unlock()
	})

	b.Start(context.Background())
	defer b.Stop()

	want := []string{"a", "b", "c", "d", "e"}
	for _, text := range want {
		b.Publish(events.NewSpeechText("test", text, false))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, text := range want {
		if received[i] != text {
			t.Fatalf("expected event %d to be %q, got %q", i, text, received[i])
		}
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	b := New(WithQueueSize(2))

	// Never started, so the queue only drains into nothing: the third publish
	// must drop.
	subscription := b.Subscribe(events.KindSpeechText, func(context.Context, events.Event) {})

	for range 5 {
		b.Publish(events.NewSpeechText("test", "x", false))
	}

	if got := subscription.Dropped(); got != 3 {
		t.Fatalf("expected 3 dropped events, got %d", got)
	}
	if got := b.Dropped(); got != 3 {
		t.Fatalf("expected bus-wide drop count 3, got %d", got)
	}
}

func TestHandlerPanicDoesNotStopDelivery(t *testing.T) {
	b := New()

	delivered := make(chan string, 4)
	b.Subscribe(events.KindSpeechText, func(_ context.Context, event events.Event) {
		text := event.(events.SpeechText).Text
		if text == "boom" {
			panic("handler failure")
		}
		delivered <- text
	})

	other := make(chan string, 4)
	b.Subscribe(events.KindSpeechText, func(_ context.Context, event events.Event) {
		other <- event.(events.SpeechText).Text
	})

	b.Start(context.Background())
	defer b.Stop()

	b.Publish(events.NewSpeechText("test", "boom", false))
	b.Publish(events.NewSpeechText("test", "after", false))

	select {
	case text := <-delivered:
		if text != "after" {
			t.Fatalf("expected delivery of %q after panic, got %q", "after", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery after handler panic")
	}

	for _, want := range []string{"boom", "after"} {
		select {
		case text := <-other:
			if text != want {
				t.Fatalf("expected unaffected subscriber to receive %q, got %q", want, text)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for unaffected subscriber")
		}
	}
}

func TestSlowSubscriberDoesNotBlockFastOne(t *testing.T) {
	b := New(WithQueueSize(1))

	block := make(chan struct{})
	b.Subscribe(events.KindSpeechText, func(context.Context, events.Event) {
		<-block
	})

	fast := make(chan string, 8)
	b.Subscribe(events.KindSpeechText, func(_ context.Context, event events.Event) {
		fast <- event.(events.SpeechText).Text
	})

	b.Start(context.Background())
	defer func() {
		close(block)
		b.Stop()
	}()

	for _, text := range []string{"1", "2", "3"} {
		b.Publish(events.NewSpeechText("test", text, false))
	}

	for _, want := range []string{"1", "2", "3"} {
		select {
		case text := <-fast:
			if text != want {
				t.Fatalf("expected fast subscriber to receive %q, got %q", want, text)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("fast subscriber starved by slow subscriber")
		}
	}
}

func TestSubscribeAfterStartReceivesEvents(t *testing.T) {
	b := New()
	b.Start(context.Background())
	defer b.Stop()

	received := make(chan string, 1)
	b.Subscribe(events.KindScreenContext, func(_ context.Context, event events.Event) {
		received <- event.(events.ScreenContext).Text
	})

	b.Publish(events.NewScreenContext("test", "late"))

	select {
	case text := <-received:
		if text != "late" {
			t.Fatalf("expected %q, got %q", "late", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for late subscription delivery")
	}
}

func TestSubscribeKindsPreservesOrderAcrossKinds(t *testing.T) {
	b := New()

	const cycles = 50
	var mu sync.Mutex
	received := []events.Event{}
	done := make(chan struct{})
	b.SubscribeKinds(func(_ context.Context, event events.Event) {
		mu.Lock()
		received = append(received, event)
		if len(received) == cycles*4 {
			close(done)
		}
		mu.Unlock()
	}, events.KindAnswerChunk, events.KindAnswerDone)

	b.Start(context.Background())
	defer b.Stop()

	for i := 0; i < cycles; i++ {
		b.Publish(events.NewAnswerChunk("test", "a", "A"))
		b.Publish(events.NewAnswerChunk("test", "a", "B"))
		b.Publish(events.NewAnswerChunk("test", "a", "C"))
		b.Publish(events.NewAnswerDone("test", "a"))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, event := range received {
		wantKind := events.KindAnswerChunk
		if i%4 == 3 {
			wantKind = events.KindAnswerDone
		}
		if event.Kind() != wantKind {
			t.Fatalf("event %d: expected %s, got %s", i, wantKind, event.Kind())
		}
	}
}

func TestSubscribeKindsRunsOneDispatchLoop(t *testing.T) {
	b := New(WithQueueSize(2))

	// Never started: both kinds feed the same queue, so a third publish of
	// either kind must drop.
	subscription := b.SubscribeKinds(func(context.Context, events.Event) {},
		events.KindAnswerChunk, events.KindAnswerDone)

	b.Publish(events.NewAnswerChunk("test", "a", "x"))
	b.Publish(events.NewAnswerDone("test", "a"))
	b.Publish(events.NewAnswerChunk("test", "a", "y"))

	if got := subscription.Dropped(); got != 1 {
		t.Fatalf("expected 1 dropped event on the shared queue, got %d", got)
	}
}

func TestStopReturnsWithinGracePeriod(t *testing.T) {
	b := New(WithGracePeriod(200 * time.Millisecond))
	b.Subscribe(events.KindSpeechText, func(ctx context.Context, _ events.Event) {
		<-ctx.Done()
	})
	b.Start(context.Background())

	b.Publish(events.NewSpeechText("test", "x", false))

	if err := b.Stop(); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}
}
