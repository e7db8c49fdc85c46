package analytics

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/avrelja/sidecoach/core/conversation"
	"github.com/avrelja/sidecoach/core/llms"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	recorder, err := NewRecorder(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	t.Cleanup(func() { recorder.Close() })
	return recorder
}

func TestRecorderKeepsTurnsInOrder(t *testing.T) {
	recorder := newTestRecorder(t)

	recorder.RecordTurn(conversation.SpeakerOther, "first")
	recorder.RecordTurn(conversation.SpeakerSelf, "second")
	recorder.RecordTurn(conversation.SpeakerOther, "third")

	turns, err := recorder.History()
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Text != "first" || turns[1].Text != "second" || turns[2].Text != "third" {
		t.Fatalf("unexpected order: %v", turns)
	}
	if turns[1].Speaker != conversation.SpeakerSelf {
		t.Fatalf("expected speaker preserved, got %q", turns[1].Speaker)
	}
}

func TestRecorderIgnoresBlankTurns(t *testing.T) {
	recorder := newTestRecorder(t)
	recorder.RecordTurn(conversation.SpeakerOther, "   ")

	turns, err := recorder.History()
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("expected no turns, got %d", len(turns))
	}
}

func TestCompleteAnswerRecordsBufferedChunksOnce(t *testing.T) {
	recorder := newTestRecorder(t)

	recorder.AppendAnswerChunk("a1", "streamed ")
	recorder.AppendAnswerChunk("a1", "answer")
	recorder.CompleteAnswer("a1")
	recorder.CompleteAnswer("a1")

	turns, err := recorder.History()
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected one assistant turn, got %d", len(turns))
	}
	if turns[0].Speaker != conversation.SpeakerAssistant || turns[0].Text != "streamed answer" {
		t.Fatalf("unexpected turn: %+v", turns[0])
	}
}

func TestChunkAfterCompletionIsDropped(t *testing.T) {
	recorder := newTestRecorder(t)

	recorder.AppendAnswerChunk("a1", "answer")
	recorder.CompleteAnswer("a1")
	recorder.AppendAnswerChunk("a1", "stray")
	recorder.CompleteAnswer("a1")

	turns, err := recorder.History()
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "answer" {
		t.Fatalf("expected a single intact assistant turn, got %v", turns)
	}

	recorder.mu.Lock()
	buffered := len(recorder.answerBuffers)
	recorder.mu.Unlock()
	if buffered != 0 {
		t.Fatalf("expected no buffer for a completed answer, got %d", buffered)
	}
}

func TestReadHistoryFindsLatestSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")

	recorder, err := NewRecorder(path)
	if err != nil {
		t.Fatalf("failed to create recorder: %v", err)
	}
	recorder.RecordTurn(conversation.SpeakerOther, "recorded line")
	if err := recorder.End(); err != nil {
		t.Fatalf("failed to end session: %v", err)
	}
	recorder.Close()

	turns, err := ReadHistory(path, "")
	if err != nil {
		t.Fatalf("failed to read history: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "recorded line" {
		t.Fatalf("unexpected history: %v", turns)
	}
}

type scriptedReportStream struct{ chunks []string }

func (s scriptedReportStream) Chunks(_ context.Context) func(func(llms.StreamChunk, error) bool) {
	return func(yield func(llms.StreamChunk, error) bool) {
		for _, chunk := range s.chunks {
			if !yield(reportChunk(chunk), nil) {
				return
			}
		}
	}
}

type reportChunk string

func (c reportChunk) FinishReason() *string { return nil }
func (c reportChunk) Content() string       { return string(c) }

type scriptedReportGenerator struct {
	stream     scriptedReportStream
	lastPrompt string
}

func (g *scriptedReportGenerator) Generate(prompt string) llms.Stream {
	g.lastPrompt = prompt
	return g.stream
}

func TestAnalyzeEmptySessionReturnsNotice(t *testing.T) {
	analyzer := NewAnalyzer(&scriptedReportGenerator{}, WithReportsDir(t.TempDir()))

	report, err := analyzer.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report != emptySessionReport {
		t.Fatalf("expected empty-session notice, got %q", report)
	}
}

func TestAnalyzeBuildsRoleTaggedPromptAndCollectsReport(t *testing.T) {
	generator := &scriptedReportGenerator{stream: scriptedReportStream{chunks: []string{"# 复盘", "报告"}}}
	analyzer := NewAnalyzer(generator, WithReportsDir(t.TempDir()))

	report, err := analyzer.Analyze(context.Background(), []conversation.Turn{
		{Speaker: conversation.SpeakerOther, Text: "请介绍一下你自己"},
		{Speaker: conversation.SpeakerSelf, Text: "我主要做后端开发"},
		{Speaker: conversation.SpeakerAssistant, Text: "提示：强调分布式经验"},
	})
	if err != nil {
		t.Fatalf("analyze failed: %v", err)
	}
	if report != "# 复盘报告" {
		t.Fatalf("expected collected report, got %q", report)
	}

	for _, want := range []string{
		"【面试官/对方】: 请介绍一下你自己",
		"【候选人/我】: 我主要做后端开发",
		"【AI 助手】: 提示：强调分布式经验",
	} {
		if !strings.Contains(generator.lastPrompt, want) {
			t.Fatalf("expected prompt to contain %q", want)
		}
	}
}
