// Package conversation keeps the rolling dialog history and the latest screen
// context that ground generated answers.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/events"
)

// DefaultHistorySize bounds the rolling turn window.
const DefaultHistorySize = 20

type Speaker string

const (
	SpeakerOther     Speaker = "other"
	SpeakerSelf      Speaker = "self"
	SpeakerAssistant Speaker = "assistant"
)

type Turn struct {
	Speaker   Speaker
	Text      string
	Timestamp time.Time
}

// Snapshot is a detached copy of the store state, safe to hand to UIs and
// late-joining clients. PendingAnswers maps answer IDs to the text streamed so
// far, so a viewer that connects mid-answer gets the prefix its live chunks
// are missing.
type Snapshot struct {
	Turns          []Turn
	ScreenContext  string
	PendingAnswers map[string]string
}

type Store struct {
	mu sync.Mutex

	capacity      int
	turns         []Turn
	screenContext string

	// answerBuffers collects streamed chunks per answer until the answer
	// completes and is committed as a single assistant turn.
	answerBuffers map[string]*strings.Builder
	// committed remembers completed answer IDs so a straggling chunk cannot
	// resurrect a buffer after its answer was committed.
	committed map[string]struct{}
}

type Option func(*Store)

func WithHistorySize(size int) Option {
	return func(s *Store) {
		if size > 0 {
			s.capacity = size
		}
	}
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		capacity:      DefaultHistorySize,
		answerBuffers: map[string]*strings.Builder{},
		committed:     map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach subscribes the store to the event kinds it aggregates. The store
// never publishes; it is a pure consumer. All kinds share one subscription
// queue: a per-kind queue would let an answer's done marker overtake its
// chunks and commit a truncated assistant turn.
func (s *Store) Attach(b *bus.Bus) {
	b.SubscribeKinds(func(_ context.Context, event events.Event) {
		switch event := event.(type) {
		case events.SpeechText:
			speaker := SpeakerOther
			if event.IsSelf {
				speaker = SpeakerSelf
			}
			s.AppendTurn(speaker, event.Text)
		case events.ScreenContext:
			s.SetScreenContext(event.Text)
		case events.AnswerChunk:
			s.AppendAnswerChunk(event.AnswerID, event.Text)
		case events.AnswerDone:
			s.CommitAnswer(event.AnswerID)
		}
	},
		events.KindSpeechText,
		events.KindScreenContext,
		events.KindAnswerChunk,
		events.KindAnswerDone,
	)
}

// AppendTurn records a spoken or generated turn. Blank text is ignored; the
// oldest turn is evicted once the window is full.
func (s *Store) AppendTurn(speaker Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns = append(s.turns, Turn{Speaker: speaker, Text: text, Timestamp: time.Now()})
	if len(s.turns) > s.capacity {
		s.turns = s.turns[len(s.turns)-s.capacity:]
	}
}

// SetScreenContext replaces the latest screen context. Blank extractions keep
// the previous context in place.
func (s *Store) SetScreenContext(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenContext = text
}

func (s *Store) ScreenContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screenContext
}

// AppendAnswerChunk buffers one streamed chunk for the given answer. Chunks
// for an already-committed answer are dropped rather than opening a buffer no
// completion will ever close.
func (s *Store) AppendAnswerChunk(answerID, chunk string) {
	if chunk == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, done := s.committed[answerID]; done {
		return
	}
	buffer, ok := s.answerBuffers[answerID]
	if !ok {
		buffer = &strings.Builder{}
		s.answerBuffers[answerID] = buffer
	}
	buffer.WriteString(chunk)
}

// CommitAnswer turns the buffered chunks of one answer into a single
// assistant turn. A blank or missing buffer commits nothing, and the buffer is
// discarded either way, so a duplicate completion cannot double-record.
func (s *Store) CommitAnswer(answerID string) bool {
	s.mu.Lock()
	buffer, ok := s.answerBuffers[answerID]
	delete(s.answerBuffers, answerID)
	s.committed[answerID] = struct{}{}
	s.mu.Unlock()

	if !ok {
		return false
	}
	text := strings.TrimSpace(buffer.String())
	if text == "" {
		return false
	}

	s.AppendTurn(SpeakerAssistant, text)
	return true
}

// History returns a copy of the turn window, oldest first.
func (s *Store) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.turns...)
}

// Snapshot deep-copies the grounding state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := Snapshot{ScreenContext: s.screenContext}
	if err := copier.CopyWithOption(&snapshot.Turns, &s.turns, copier.Option{DeepCopy: true}); err != nil {
		logger.Warn("Failed to copy conversation turns", "error", err)
		snapshot.Turns = append([]Turn(nil), s.turns...)
	}
	if len(s.answerBuffers) > 0 {
		snapshot.PendingAnswers = make(map[string]string, len(s.answerBuffers))
		for answerID, buffer := range s.answerBuffers {
			snapshot.PendingAnswers[answerID] = buffer.String()
		}
	}
	return snapshot
}
