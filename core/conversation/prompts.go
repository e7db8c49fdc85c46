package conversation

import (
	"fmt"
	"strings"
)

const (
	// promptHistoryWindow caps how many turns the answering prompt carries.
	promptHistoryWindow = 10

	noScreenContextPlaceholder = "(无屏幕上下文)"
)

const answeringPromptTemplate = `[System]
你是一个专家级的会议智囊与技术对讲决策大脑。
请基于所提供【最新屏幕聚焦状态】以及【对话历史】，直接输出针对当前问题的极精简回答要点。

[Context Sync]
近期屏幕内容:
%s

[Conversation Flow]
%s

[Action Required]
最新提问: "%s"

务必做到：直接输出答案，拒绝废话，使用分点结构（1. 2. 3.）。`

func speakerLabel(speaker Speaker) string {
	switch speaker {
	case SpeakerSelf:
		return "【我】"
	case SpeakerAssistant:
		return "【助手】"
	default:
		return "【对方】"
	}
}

// RecentWindow renders the last limit turns as role-tagged lines, one turn
// per line, oldest first.
func (s *Store) RecentWindow(limit int) string {
	turns := s.History()
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}

	lines := make([]string, 0, len(turns))
	for _, turn := range turns {
		lines = append(lines, speakerLabel(turn.Speaker)+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

// GroundingPrompt builds the answering prompt for a detected question,
// combining the latest screen context with the recent conversation window.
func (s *Store) GroundingPrompt(question string) string {
	screenContext := s.ScreenContext()
	if screenContext == "" {
		screenContext = noScreenContextPlaceholder
	}

	return fmt.Sprintf(answeringPromptTemplate, screenContext, s.RecentWindow(promptHistoryWindow), question)
}
