package speechtotext

import "context"

// Transcriber converts a finished utterance into text. Implementations are
// expected to be safe for concurrent use.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts ...TranscriptionOption) (string, error)
}

type TranscriptionOptions struct {
	Model    string
	Language string
}

type TranscriptionOption func(*TranscriptionOptions)

func WithModel(model string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if model != "" {
			o.Model = model
		}
	}
}

func WithLanguage(language string) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if language != "" {
			o.Language = language
		}
	}
}
