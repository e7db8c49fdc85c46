// Package analytics persists session history to SQLite and turns finished
// sessions into debrief reports.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP
);
CREATE TABLE IF NOT EXISTS turns (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL REFERENCES sessions(id),
	speaker     TEXT NOT NULL,
	text        TEXT NOT NULL,
	recorded_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS questions (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	text       TEXT NOT NULL,
	confidence REAL NOT NULL,
	asked_at   TIMESTAMP NOT NULL
);
`

// Recorder writes one session's turns and questions to SQLite as they flow
// over the bus. Streamed answers are buffered per answer id and recorded as a
// single assistant turn on completion.
type Recorder struct {
	db        *sql.DB
	sessionID string

	mu            sync.Mutex
	answerBuffers map[string]*strings.Builder
	completed     map[string]struct{}
}

func NewRecorder(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session schema: %w", err)
	}

	sessionID := uuid.NewString()
	if _, err := db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`,
		sessionID, time.Now()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logger.Info("session recording started", "session_id", sessionID, "path", path)
	return &Recorder{
		db:            db,
		sessionID:     sessionID,
		answerBuffers: map[string]*strings.Builder{},
		completed:     map[string]struct{}{},
	}, nil
}

func (r *Recorder) SessionID() string { return r.sessionID }

// Attach subscribes the recorder to everything worth keeping for a debrief.
// One shared subscription queue keeps the session record in publish order; in
// particular an answer's completion can never overtake its chunks and drop the
// assistant turn.
func (r *Recorder) Attach(b *bus.Bus) {
	b.SubscribeKinds(func(_ context.Context, event events.Event) {
		switch event := event.(type) {
		case events.SpeechText:
			speaker := conversation.SpeakerOther
			if event.IsSelf {
				speaker = conversation.SpeakerSelf
			}
			r.RecordTurn(speaker, event.Text)
		case events.IntentQuestion:
			r.RecordQuestion(event.Text, event.Confidence)
		case events.AnswerChunk:
			r.AppendAnswerChunk(event.AnswerID, event.Text)
		case events.AnswerDone:
			r.CompleteAnswer(event.AnswerID)
		}
	},
		events.KindSpeechText,
		events.KindIntentQuestion,
		events.KindAnswerChunk,
		events.KindAnswerDone,
	)
}

func (r *Recorder) RecordTurn(speaker conversation.Speaker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if _, err := r.db.Exec(`INSERT INTO turns (session_id, speaker, text, recorded_at) VALUES (?, ?, ?, ?)`,
		r.sessionID, string(speaker), text, time.Now()); err != nil {
		logger.Warn("Failed to record turn", "error", err)
	}
}

func (r *Recorder) RecordQuestion(text string, confidence float64) {
	if _, err := r.db.Exec(`INSERT INTO questions (session_id, text, confidence, asked_at) VALUES (?, ?, ?, ?)`,
		r.sessionID, text, confidence, time.Now()); err != nil {
		logger.Warn("Failed to record question", "error", err)
	}
}

// AppendAnswerChunk buffers one streamed chunk. Chunks for an answer that has
// already completed are dropped instead of leaking a buffer.
func (r *Recorder) AppendAnswerChunk(answerID, chunk string) {
	if chunk == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, done := r.completed[answerID]; done {
		return
	}
	buffer, ok := r.answerBuffers[answerID]
	if !ok {
		buffer = &strings.Builder{}
		r.answerBuffers[answerID] = buffer
	}
	buffer.WriteString(chunk)
}

// CompleteAnswer persists the buffered answer as one assistant turn. The
// buffer is dropped either way, so duplicate completions record nothing.
func (r *Recorder) CompleteAnswer(answerID string) {
	r.mu.Lock()
	buffer, ok := r.answerBuffers[answerID]
	delete(r.answerBuffers, answerID)
	r.completed[answerID] = struct{}{}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.RecordTurn(conversation.SpeakerAssistant, buffer.String())
}

// End marks the session finished.
func (r *Recorder) End() error {
	if _, err := r.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`,
		time.Now(), r.sessionID); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	return nil
}

func (r *Recorder) Close() error {
	return r.db.Close()
}

// History returns the session's turns in recording order.
func (r *Recorder) History() ([]conversation.Turn, error) {
	return readHistory(r.db, r.sessionID)
}

// ReadHistory loads the turns of a past session from a session database.
func ReadHistory(path, sessionID string) ([]conversation.Turn, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}
	defer db.Close()

	if sessionID == "" {
		if err := db.QueryRow(`SELECT id FROM sessions ORDER BY started_at DESC LIMIT 1`).Scan(&sessionID); err != nil {
			return nil, fmt.Errorf("failed to find latest session: %w", err)
		}
	}
	return readHistory(db, sessionID)
}

func readHistory(db *sql.DB, sessionID string) ([]conversation.Turn, error) {
	rows, err := db.Query(`SELECT speaker, text, recorded_at FROM turns WHERE session_id = ? ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to read session turns: %w", err)
	}
	defer rows.Close()

	var turns []conversation.Turn
	for rows.Next() {
		var speaker string
		var turn conversation.Turn
		if err := rows.Scan(&speaker, &turn.Text, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan session turn: %w", err)
		}
		turn.Speaker = conversation.Speaker(speaker)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
