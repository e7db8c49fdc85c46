package answer

import (
	"github.com/avrelja/sidecoach/core/llms"
	"github.com/avrelja/sidecoach/core/llms/openai"
)

// LLMGenerator streams answers from an OpenAI-compatible model. The grounding
// prompt already carries the full instruction set, so no extra system prompt
// is attached.
type LLMGenerator struct {
	client *openai.Client

	maxTokens   int
	temperature float64
}

var _ Generator = (*LLMGenerator)(nil)

type GeneratorOption func(*LLMGenerator)

func WithMaxTokens(maxTokens int) GeneratorOption {
	return func(g *LLMGenerator) {
		if maxTokens > 0 {
			g.maxTokens = maxTokens
		}
	}
}

func WithTemperature(temperature float64) GeneratorOption {
	return func(g *LLMGenerator) {
		if temperature > 0 {
			g.temperature = temperature
		}
	}
}

func NewLLMGenerator(client *openai.Client, opts ...GeneratorOption) *LLMGenerator {
	g := &LLMGenerator{client: client, maxTokens: 512, temperature: 0.3}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *LLMGenerator) Generate(prompt string) llms.Stream {
	return g.client.PromptWithStream(prompt,
		openai.WithMaxTokens(g.maxTokens),
		openai.WithTemperature(g.temperature),
	)
}
