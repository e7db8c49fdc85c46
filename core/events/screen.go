package events

const (
	// KindScreenContext identifies text extracted from a screen change.
	KindScreenContext Kind = "screen.context"
)

// ScreenContext carries the text extracted from the latest qualifying
// screen change.
type ScreenContext struct {
	Base
	Text string
}

// NewScreenContext creates a screen context event.
func NewScreenContext(origin, text string) ScreenContext {
	return ScreenContext{Base: NewBase(KindScreenContext, origin), Text: text}
}

func (e ScreenContext) String() string { return e.Text }
