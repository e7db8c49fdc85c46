package events

const (
	// KindSpeechText identifies a finalized utterance transcript.
	KindSpeechText Kind = "speech.text"
)

// SpeechText carries one transcribed utterance.
type SpeechText struct {
	Base
	Text string
	// IsSelf is true when the utterance belongs to the local speaker.
	IsSelf bool
}

// NewSpeechText creates a finalized utterance transcript event.
func NewSpeechText(origin, text string, isSelf bool) SpeechText {
	return SpeechText{Base: NewBase(KindSpeechText, origin), Text: text, IsSelf: isSelf}
}

func (e SpeechText) String() string { return e.Text }
