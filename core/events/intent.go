package events

const (
	// KindIntentQuestion identifies a classified, normalized question.
	KindIntentQuestion Kind = "intent.question"
)

// IntentQuestion carries a question accepted by the intent classifier.
type IntentQuestion struct {
	Base
	Text       string
	Confidence float64
}

// NewIntentQuestion creates a classified question event.
func NewIntentQuestion(origin, text string, confidence float64) IntentQuestion {
	return IntentQuestion{Base: NewBase(KindIntentQuestion, origin), Text: text, Confidence: confidence}
}

func (e IntentQuestion) String() string { return e.Text }
