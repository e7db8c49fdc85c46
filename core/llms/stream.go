// Package llms defines the streaming contract shared by the answer-generation
// and intent-classification collaborators.
package llms

import "context"

// Stream yields chunks of a model response in arrival order. The iterator
// terminates exactly once per call: either after the final chunk or after
// yielding an error.
type Stream interface {
	Chunks(context.Context) func(func(StreamChunk, error) bool)
}

type StreamChunk interface {
	FinishReason() *string
}

type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	MessageRoleSystem    = "system"
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
)
