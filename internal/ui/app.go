// Package ui renders the live pipeline state in the terminal: recent turns,
// the current question, and the streaming answer.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/avrelja/sidecoach/core/bus"
	"github.com/avrelja/sidecoach/core/events"
)

const (
	maxVisibleTurns = 8
	eventQueueSize  = 256
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	statusStyle   = lipgloss.NewStyle().Faint(true)
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	turnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	answerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Attach subscribes to everything the view renders and returns the channel
// feeding the program. A single shared subscription keeps the channel in
// publish order across kinds.
func Attach(b *bus.Bus) <-chan events.Event {
	ch := make(chan events.Event, eventQueueSize)
	b.SubscribeKinds(func(_ context.Context, event events.Event) {
		select {
		case ch <- event:
		default:
		}
	},
		events.KindSpeechText,
		events.KindScreenContext,
		events.KindIntentQuestion,
		events.KindAnswerStarted,
		events.KindAnswerChunk,
		events.KindAnswerDone,
		events.KindSystemStatus,
	)
	return ch
}

type eventMsg struct{ event events.Event }

// App is the root Bubble Tea model. It holds no pipeline references; state
// arrives exclusively through event messages.
type App struct {
	events <-chan events.Event

	status    string
	question  string
	answer    string
	answering bool
	turns     []string

	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

func NewApp(eventsCh <-chan events.Event) App {
	return App{events: eventsCh, status: "waiting for audio"}
}

func (a App) Init() tea.Cmd {
	return a.waitForEvent()
}

func (a App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-a.events
		if !ok {
			return tea.Quit()
		}
		return eventMsg{event: event}
	}
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return a, tea.Quit
		}
		return a, nil

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if !a.ready {
			a.viewport = viewport.New(msg.Width, answerHeight(msg.Height))
			a.ready = true
		} else {
			a.viewport.Width = msg.Width
			a.viewport.Height = answerHeight(msg.Height)
		}
		a.viewport.SetContent(a.wrappedAnswer())
		return a, nil

	case eventMsg:
		a = a.applyEvent(msg.event)
		return a, a.waitForEvent()
	}

	return a, nil
}

func (a App) applyEvent(event events.Event) App {
	switch event := event.(type) {
	case events.SpeechText:
		label := "对方"
		if event.IsSelf {
			label = "我"
		}
		a.turns = append(a.turns, fmt.Sprintf("%s: %s", label, event.Text))
		if len(a.turns) > maxVisibleTurns {
			a.turns = a.turns[len(a.turns)-maxVisibleTurns:]
		}

	case events.ScreenContext:
		a.status = "screen context updated"

	case events.IntentQuestion:
		a.question = event.Text
		a.answer = ""

	case events.AnswerStarted:
		a.answering = true
		a.answer = ""

	case events.AnswerChunk:
		a.answer += event.Text
		if a.ready {
			a.viewport.SetContent(a.wrappedAnswer())
			a.viewport.GotoBottom()
		}

	case events.AnswerDone:
		a.answering = false

	case events.SystemStatus:
		a.status = event.Message
	}
	return a
}

func (a App) wrappedAnswer() string {
	width := a.width
	if width <= 0 {
		width = 80
	}
	return answerStyle.Render(wordwrap.String(a.answer, width))
}

func (a App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("sidecoach"))
	b.WriteString("  ")
	b.WriteString(statusStyle.Render(a.status))
	b.WriteString("\n\n")

	for _, turn := range a.turns {
		b.WriteString(turnStyle.Render(turn))
		b.WriteString("\n")
	}

	if a.question != "" {
		b.WriteString("\n")
		b.WriteString(questionStyle.Render("Q: " + a.question))
		b.WriteString("\n")
	}

	if a.ready {
		b.WriteString(a.viewport.View())
	} else if a.answer != "" {
		b.WriteString(a.wrappedAnswer())
	}
	if a.answering {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render("answering…"))
	}

	return b.String()
}

// Run drives the live view until the user quits or the context ends.
func Run(ctx context.Context, eventsCh <-chan events.Event) error {
	program := tea.NewProgram(NewApp(eventsCh), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := program.Run()
	return err
}

func answerHeight(total int) int {
	height := total - maxVisibleTurns - 6
	if height < 3 {
		height = 3
	}
	return height
}
