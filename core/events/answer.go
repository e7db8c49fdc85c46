package events

const (
	// KindAnswerStarted identifies the start of an answer cycle.
	KindAnswerStarted Kind = "answer.started"
	// KindAnswerChunk identifies a streamed answer text piece.
	KindAnswerChunk Kind = "answer.chunk"
	// KindAnswerDone identifies the terminal marker of an answer cycle.
	KindAnswerDone Kind = "answer.done"
)

// AnswerStarted marks the beginning of an answer cycle for a question.
type AnswerStarted struct {
	Base
	AnswerID string
	Question string
}

// NewAnswerStarted creates an answer cycle start event.
func NewAnswerStarted(origin, answerID, question string) AnswerStarted {
	return AnswerStarted{Base: NewBase(KindAnswerStarted, origin), AnswerID: answerID, Question: question}
}

// AnswerChunk carries one streamed answer text piece.
type AnswerChunk struct {
	Base
	AnswerID string
	Text     string
}

// NewAnswerChunk creates a streamed answer chunk event.
func NewAnswerChunk(origin, answerID, text string) AnswerChunk {
	return AnswerChunk{Base: NewBase(KindAnswerChunk, origin), AnswerID: answerID, Text: text}
}

func (e AnswerChunk) String() string { return e.Text }

// AnswerDone marks the completion of an answer cycle. It is published exactly
// once per cycle, including when the generating collaborator fails mid-stream.
type AnswerDone struct {
	Base
	AnswerID string
}

// NewAnswerDone creates a terminal answer cycle event.
func NewAnswerDone(origin, answerID string) AnswerDone {
	return AnswerDone{Base: NewBase(KindAnswerDone, origin), AnswerID: answerID}
}
