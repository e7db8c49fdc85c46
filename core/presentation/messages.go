package presentation

import "github.com/avrelja/sidecoach/core/conversation"

const (
	MessageTypeQuestion = "question"
	MessageTypeChunk    = "chunk"
	MessageTypeDone     = "done"
	MessageTypeStatus   = "status"
	MessageTypeSnapshot = "snapshot"
)

// Message is the wire format sent to viewers. AnswerID lets a viewer
// attribute chunks when answers overlap with reconnects.
type Message struct {
	Type       string  `json:"type"`
	AnswerID   string  `json:"answer_id,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	Turns         []TurnMessage `json:"turns,omitempty"`
	ScreenContext string        `json:"screen_context,omitempty"`
	// PendingAnswers carries the text streamed so far per in-flight answer,
	// so a viewer attaching mid-answer can seed its display before the next
	// chunk arrives.
	PendingAnswers map[string]string `json:"pending_answers,omitempty"`
}

type TurnMessage struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func newSnapshotMessage(snapshot conversation.Snapshot) Message {
	message := Message{
		Type:           MessageTypeSnapshot,
		ScreenContext:  snapshot.ScreenContext,
		PendingAnswers: snapshot.PendingAnswers,
	}
	for _, turn := range snapshot.Turns {
		message.Turns = append(message.Turns, TurnMessage{Speaker: string(turn.Speaker), Text: turn.Text})
	}
	return message
}
