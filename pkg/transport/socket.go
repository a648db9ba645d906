package transport

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/logger"
)

// wsPath is the backend push endpoint, relative to the configured WS base.
const wsPath = "/api/v1/chat/ws"

// Status describes the push channel's connection state. It is transient
// and only drives whether the widget can expect push frames; the HTTP path
// works regardless.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusError      Status = "error"
)

// PushFrame is one server-initiated event: an async bot message or a
// typing notification from a human agent.
type PushFrame struct {
	Type      string `json:"type"` // "message" or "typing"
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Typing    bool   `json:"typing,omitempty"`
}

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
)

// Socket maintains the optional live connection to the backend. It keeps
// reconnecting with capped exponential backoff until closed; a socket that
// never connects simply means no push frames, nothing else.
type Socket struct {
	url      string
	handler  func(PushFrame)
	onStatus func(Status)

	mu     sync.Mutex
	conn   *websocket.Conn
	status Status

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewSocket creates a push channel for one embed code. The handler is
// invoked from the read loop for every decoded frame.
func NewSocket(wsBase, codeID string, handler func(PushFrame)) *Socket {
	return &Socket{
		url:     strings.TrimRight(wsBase, "/") + wsPath + "?code_id=" + codeID,
		handler: handler,
		status:  StatusClosed,
		done:    make(chan struct{}),
	}
}

// OnStatus registers an observer for connection state changes. Must be
// called before Start.
func (s *Socket) OnStatus(fn func(Status)) {
	s.onStatus = fn
}

// Status returns the current connection state.
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Socket) setStatus(st Status) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	s.mu.Unlock()
	if changed && s.onStatus != nil {
		s.onStatus(st)
	}
}

// Start launches the connect/read loop in the background and returns
// immediately. It never blocks chat: dial failures are logged and retried.
func (s *Socket) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Socket) run(ctx context.Context) {
	defer close(s.done)
	defer s.setStatus(StatusClosed)

	backoff := reconnectBase
	for {
		if ctx.Err() != nil {
			return
		}

		s.setStatus(StatusConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.setStatus(StatusError)
			logger.DebugCF("transport", "Push channel dial failed", map[string]interface{}{
				"url":   s.url,
				"retry": backoff.String(),
				"error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMax {
				backoff = reconnectMax
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(StatusOpen)
		backoff = reconnectBase

		s.readLoop(ctx, conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.setStatus(StatusError)
	}
}

func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.DebugCF("transport", "Push channel disconnected", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return
		}

		var frame PushFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			// Unknown frames are dropped, not fatal to the connection.
			logger.DebugCF("transport", "Dropping undecodable push frame", map[string]interface{}{
				"error": err.Error(),
			})
			continue
		}

		if s.handler != nil {
			s.handler(frame)
		}
	}
}

// Close stops the reconnect loop and tears down any live connection.
// Safe to call more than once.
func (s *Socket) Close() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		if s.cancel != nil {
			<-s.done
		}
	})
	return nil
}
