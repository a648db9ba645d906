package widget

import (
	"time"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/transport"
)

// Role identifies who produced a transcript message.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Message is one transcript entry. Messages live in memory only and are
// evicted oldest-first once the transcript exceeds the configured cap.
type Message struct {
	Role    Role
	Text    string
	Sources []transport.Source
	At      time.Time
}

// State is the widget panel state.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Snapshot is everything a renderer needs to draw the widget. The message
// slice is a copy; renderers may hold on to it.
type Snapshot struct {
	State    State
	Typing   bool
	Messages []Message
}

// Renderer draws the widget from a snapshot. Keeping rendering behind this
// seam means the state machine is testable with no UI at all.
type Renderer interface {
	Render(Snapshot)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }

// Sounds receives the widget's audio cues. Implementations decide what, if
// anything, to play.
type Sounds interface {
	Open()
	Message()
}
