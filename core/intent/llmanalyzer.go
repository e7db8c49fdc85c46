package intent

import (
	"context"
	"fmt"

	"github.com/avrelja/sidecoach/core/llms/openai"
)

const analysisPromptTemplate = `请判断下面的语音转写文本是否包含一个需要回答的问题。
转写可能有识别错误，请结合上下文推断原意；如果是问题，请提取并改写成一个干净完整的问句。
%s
[待分析文本]:
%s`

const historyBlockTemplate = `
[最近对话上下文]:
%s
`

// LLMAnalyzer classifies utterances through a structured chat-completions
// call, so the verdict always parses or fails as an error.
type LLMAnalyzer struct {
	client *openai.Client
}

var _ Analyzer = (*LLMAnalyzer)(nil)

func NewLLMAnalyzer(client *openai.Client) *LLMAnalyzer {
	return &LLMAnalyzer{client: client}
}

func (a *LLMAnalyzer) AnalyzeIntent(ctx context.Context, text, history string) (*Analysis, error) {
	if !a.client.IsConfigured() {
		return nil, fmt.Errorf("llm client is not configured")
	}

	var historyBlock string
	if history != "" {
		historyBlock = fmt.Sprintf(historyBlockTemplate, history)
	}

	return openai.PromptJSONSchema(ctx, a.client,
		fmt.Sprintf(analysisPromptTemplate, historyBlock, text),
		Analysis{},
		openai.WithMaxTokens(150),
		openai.WithTemperature(0.1),
	)
}
