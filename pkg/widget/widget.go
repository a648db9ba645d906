// Package widget owns the embeddable chat widget's lifecycle: the
// open/closed state machine, the bounded in-memory transcript, greeting
// rotation on open, and the wiring between user actions and the chat
// transport. Every failure is absorbed here; nothing the widget does can
// break the host.
package widget

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/config"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/greeting"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/logger"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/store"
	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/transport"
)

// ErrClosed is returned by SendMessage while the panel is closed. Sending
// is only reachable from an open panel.
var ErrClosed = errors.New("widget: panel is closed")

// Sender is the request/response chat path. *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, text, sessionID string) (*transport.Reply, error)
}

// Widget is one mounted widget instance. All state lives on the struct, so
// two instances with different embed codes on the same host never share
// anything but the process.
type Widget struct {
	cfg      *config.Config
	store    store.Store
	sender   Sender
	socket   *transport.Socket
	renderer Renderer
	sounds   Sounds

	mu       sync.Mutex
	state    State
	typing   bool
	messages []Message
	sess     store.State
}

// Option customizes a Widget at construction.
type Option func(*Widget)

// WithStore replaces the default file-backed session store.
func WithStore(s store.Store) Option {
	return func(w *Widget) { w.store = s }
}

// WithSender replaces the default HTTP chat client, mainly for tests.
func WithSender(s Sender) Option {
	return func(w *Widget) { w.sender = s }
}

// WithRenderer attaches a renderer. Without one the widget runs headless.
func WithRenderer(r Renderer) Option {
	return func(w *Widget) { w.renderer = r }
}

// WithSounds attaches an audio cue sink.
func WithSounds(s Sounds) Option {
	return func(w *Widget) { w.sounds = s }
}

// New mounts a widget from a resolved configuration. The persisted session
// state is read once here; if storage is unusable the widget starts fresh
// and keeps working without persistence.
func New(cfg *config.Config, opts ...Option) (*Widget, error) {
	if cfg == nil {
		return nil, errors.New("widget: nil config")
	}
	if cfg.CodeID == "" {
		return nil, config.ErrMissingCodeID
	}

	w := &Widget{
		cfg:   cfg,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.store == nil {
		w.store = store.NewFileStore(defaultStateDir())
	}
	if w.sender == nil {
		w.sender = transport.NewClient(cfg.APIBase, cfg.CodeID, cfg.RequestTimeout)
	}

	sess, err := w.store.Load(cfg.CodeID)
	if err != nil {
		logger.DebugCF("widget", "No usable persisted session, starting fresh", map[string]interface{}{
			"code_id": cfg.CodeID,
			"reason":  err.Error(),
		})
		sess = store.Fresh()
	}
	w.sess = sess

	return w, nil
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ccgpt-widget")
	}
	return filepath.Join(home, ".ccgpt", "widget")
}

// StartPush dials the optional live channel. Push frames are appended to
// the transcript as they arrive; a channel that never connects leaves the
// HTTP path untouched.
func (w *Widget) StartPush(ctx context.Context) {
	if w.cfg.WSBase == "" || w.socket != nil {
		return
	}
	w.socket = transport.NewSocket(w.cfg.WSBase, w.cfg.CodeID, w.handlePush)
	w.socket.OnStatus(func(st transport.Status) {
		logger.DebugCF("widget", "Push channel status changed", map[string]interface{}{
			"code_id": w.cfg.CodeID,
			"status":  string(st),
		})
	})
	w.socket.Start(ctx)
}

// ConnectionStatus reports the push channel state; StatusClosed when no
// push channel was started.
func (w *Widget) ConnectionStatus() transport.Status {
	if w.socket == nil {
		return transport.StatusClosed
	}
	return w.socket.Status()
}

// Shutdown tears down the push channel. The widget itself needs no
// teardown; transcript and panel state are plain memory.
func (w *Widget) Shutdown() {
	if w.socket != nil {
		w.socket.Close()
	}
}

// State returns the current panel state.
func (w *Widget) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Snapshot returns a copy of the renderable state.
func (w *Widget) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Widget) snapshotLocked() Snapshot {
	msgs := make([]Message, len(w.messages))
	copy(msgs, w.messages)
	return Snapshot{State: w.state, Typing: w.typing, Messages: msgs}
}

// Open transitions Closed -> Open: advances the greeting rotation exactly
// once, appends the rotated greeting as a bot message and plays the open
// cue. Opening an already-open widget is a no-op.
func (w *Widget) Open() {
	w.mu.Lock()
	if w.state == StateOpen {
		w.mu.Unlock()
		return
	}
	w.state = StateOpen

	idx := w.sess.GreetingIndex
	if st, err := w.store.Load(w.cfg.CodeID); err == nil {
		idx = st.GreetingIndex
	}
	msg, next := greeting.Next(w.cfg.WelcomeMessages, w.cfg.WelcomeMessage, idx)
	w.sess.GreetingIndex = next
	w.persistLocked()

	if msg != "" {
		w.appendLocked(Message{Role: RoleBot, Text: msg, At: time.Now()})
	}
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.render(snap)
	if w.cfg.SoundEnabled && w.sounds != nil {
		w.sounds.Open()
	}
}

// Close transitions Open -> Closed. The transcript is retained in memory,
// so reopening only appends a new rotated greeting.
func (w *Widget) Close() {
	w.mu.Lock()
	if w.state == StateClosed {
		w.mu.Unlock()
		return
	}
	w.state = StateClosed
	w.typing = false
	snap := w.snapshotLocked()
	w.mu.Unlock()

	w.render(snap)
}

// SendMessage sends user text through the chat transport. Empty or
// whitespace-only input is a no-op: nothing is appended and no request is
// made. While the panel is closed it returns ErrClosed.
//
// The user message is appended optimistically before the request; the bot
// reply — or the fixed fallback text on any transport failure — is appended
// after, with the typing indicator removed first. Transport failures are
// absorbed, not returned.
func (w *Widget) SendMessage(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	w.mu.Lock()
	if w.state != StateOpen {
		w.mu.Unlock()
		return ErrClosed
	}
	w.appendLocked(Message{Role: RoleUser, Text: text, At: time.Now()})
	if w.cfg.TypingIndicator {
		w.typing = true
	}
	sessionID := w.sess.SessionID
	snap := w.snapshotLocked()
	w.mu.Unlock()
	w.render(snap)

	reply, err := w.sender.Send(ctx, text, sessionID)

	w.mu.Lock()
	w.typing = false
	if err != nil {
		w.appendLocked(Message{Role: RoleBot, Text: transport.FallbackText, At: time.Now()})
		snap = w.snapshotLocked()
		w.mu.Unlock()
		w.render(snap)
		return nil
	}

	if reply.SessionID != "" && reply.SessionID != w.sess.SessionID {
		w.sess.SessionID = reply.SessionID
		w.persistLocked()
	}
	w.appendLocked(Message{Role: RoleBot, Text: reply.Text, Sources: reply.Sources, At: time.Now()})
	snap = w.snapshotLocked()
	w.mu.Unlock()

	w.render(snap)
	if w.cfg.SoundEnabled && w.sounds != nil {
		w.sounds.Message()
	}
	return nil
}

// handlePush appends server-initiated frames. Push messages skip the
// typing dance and land directly in the transcript, open or closed.
func (w *Widget) handlePush(frame transport.PushFrame) {
	switch frame.Type {
	case "typing":
		if !w.cfg.TypingIndicator {
			return
		}
		w.mu.Lock()
		w.typing = frame.Typing
		snap := w.snapshotLocked()
		w.mu.Unlock()
		w.render(snap)

	case "message":
		if frame.Content == "" {
			return
		}
		w.mu.Lock()
		if frame.SessionID != "" && frame.SessionID != w.sess.SessionID {
			w.sess.SessionID = frame.SessionID
			w.persistLocked()
		}
		w.appendLocked(Message{Role: RoleBot, Text: frame.Content, At: time.Now()})
		snap := w.snapshotLocked()
		w.mu.Unlock()

		w.render(snap)
		if w.cfg.SoundEnabled && w.sounds != nil {
			w.sounds.Message()
		}

	default:
		logger.DebugCF("widget", "Ignoring unknown push frame", map[string]interface{}{
			"type": frame.Type,
		})
	}
}

// appendLocked is the single append path; it enforces the FIFO cap.
func (w *Widget) appendLocked(msg Message) {
	w.messages = append(w.messages, msg)
	if over := len(w.messages) - w.cfg.MaxMessages; over > 0 {
		w.messages = append([]Message(nil), w.messages[over:]...)
	}
}

// persistLocked saves the cached session state best-effort. A failed save
// only costs greeting variety and session continuity.
func (w *Widget) persistLocked() {
	if err := w.store.Save(w.cfg.CodeID, w.sess); err != nil {
		logger.DebugCF("widget", "Session save failed, continuing without persistence", map[string]interface{}{
			"code_id": w.cfg.CodeID,
			"error":   err.Error(),
		})
	}
}

func (w *Widget) render(snap Snapshot) {
	if w.renderer == nil {
		return
	}
	w.renderer.Render(snap)
}
