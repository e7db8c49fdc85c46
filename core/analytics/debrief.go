package analytics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/llms"
)

const emptySessionReport = "没有捕获到有效的对话，无法生成复盘报告。"

const debriefPromptTemplate = `你是一个顶级技术面试官与职业发展教练。请对以下这场“面试/会议”的对话记录进行深度复盘。

[对话全文]:
---
%s
---

请生成一份专业且有温度的复盘报告，包含以下板块：

1. **🏆 闪光点总结**：
   - 候选人在哪些技术点上回答得非常出色？
   - 表达逻辑和专业度如何？

2. **🚩 技术短板识别 (需重点关注)**：
   - 哪些提问候选人回答得不够深入或含糊？
   - 识别出具体的知识盲区（结合对方提问及候选人回答缺失的部分）。

3. **📝 未能完全解答的问题**：
   - 列出面试官提出的核心提问，并标注候选人当时是否给出了满意的答案。

4. **🚀 成长建议与学习路线**：
   - 针对上述短板，给出具体的学习路线图和关键词（如：阅读某某文档、理解某某底层原理）。

5. **👀 辅导提示对比**：
   - AI 助手给出的提示是否被候选人有效利用了？

请直接输出 Markdown 格式的报告，内容要精准、专业。`

// ReportGenerator produces the model stream for one debrief prompt.
type ReportGenerator interface {
	Generate(prompt string) llms.Stream
}

// Analyzer turns a recorded session into a Markdown debrief report.
type Analyzer struct {
	generator  ReportGenerator
	reportsDir string
}

type AnalyzerOption func(*Analyzer)

func WithReportsDir(dir string) AnalyzerOption {
	return func(a *Analyzer) {
		if dir != "" {
			a.reportsDir = dir
		}
	}
}

func NewAnalyzer(generator ReportGenerator, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{generator: generator, reportsDir: "reports"}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze generates the debrief report for a session and writes it to the
// reports directory. A session without turns yields a fixed notice and no
// file.
func (a *Analyzer) Analyze(ctx context.Context, history []conversation.Turn) (string, error) {
	ctx, span := tracer.Start(ctx, "analyze session")
	defer span.End()

	if len(history) == 0 {
		return emptySessionReport, nil
	}

	prompt := fmt.Sprintf(debriefPromptTemplate, formatHistory(history))

	var report strings.Builder
	stream := a.generator.Generate(prompt)
	for chunk, err := range stream.Chunks(ctx) {
		if err != nil {
			span.RecordError(err)
			return "", fmt.Errorf("failed to generate debrief report: %w", err)
		}
		if content, ok := chunk.(llms.StreamContentChunk); ok {
			report.WriteString(content.Content())
		}
	}

	if path, err := a.saveReport(report.String()); err != nil {
		logger.Warn("Failed to save debrief report", "error", err)
	} else {
		logger.Info("debrief report saved", "path", path)
	}
	return report.String(), nil
}

func formatHistory(history []conversation.Turn) string {
	lines := make([]string, 0, len(history))
	for _, turn := range history {
		var role string
		switch turn.Speaker {
		case conversation.SpeakerSelf:
			role = "【候选人/我】"
		case conversation.SpeakerAssistant:
			role = "【AI 助手】"
		default:
			role = "【面试官/对方】"
		}
		lines = append(lines, role+": "+turn.Text)
	}
	return strings.Join(lines, "\n")
}

func (a *Analyzer) saveReport(content string) (string, error) {
	if err := os.MkdirAll(a.reportsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(a.reportsDir,
		fmt.Sprintf("meeting_report_%s.md", time.Now().Format("20060102_150405")))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
