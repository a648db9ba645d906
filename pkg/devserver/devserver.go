// Package devserver is a local stand-in for the CCGPT backend: it
// implements the widget's chat contract (HTTP send + WebSocket push) with
// an echo bot, so the runtime can be exercised end to end without the real
// RAG pipeline.
package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/logger"
)

// ReplyFunc produces the bot reply for a user message.
type ReplyFunc func(codeID, sessionID, message string) string

type storedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Time    string `json:"time"`
}

type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	CodeID    string `json:"code_id"`
}

type sendResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type pushFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Typing    bool   `json:"typing,omitempty"`
}

// Server is the stub backend. Transcripts are in-memory, keyed by session
// id; push connections are grouped by embed code so broadcasts stay scoped
// to one widget population.
type Server struct {
	addr     string
	reply    ReplyFunc
	server   *http.Server
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	transcripts map[string][]storedMessage
	conns       map[*websocket.Conn]string // conn -> code id

	// gorilla allows a single concurrent writer per connection
	writeMu sync.Mutex
}

// New creates a dev server listening on addr. A nil reply function gets
// the default echo bot.
func New(addr string, reply ReplyFunc) *Server {
	if reply == nil {
		reply = func(codeID, sessionID, message string) string {
			return fmt.Sprintf("You said: %s", message)
		}
	}
	return &Server{
		addr:        addr,
		reply:       reply,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		transcripts: make(map[string][]storedMessage),
		conns:       make(map[*websocket.Conn]string),
	}
}

// Handler returns the HTTP handler, so tests can mount the server under
// httptest without a real listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/message", s.handleSend)
	mux.HandleFunc("/api/v1/chat/ws", s.handleWS)
	mux.HandleFunc("/api/v1/chat/history", s.handleHistory)
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.addr, Handler: s.Handler()}

	logger.InfoCF("devserver", "Dev backend started", map[string]interface{}{"addr": s.addr})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("devserver", "Dev backend error", map[string]interface{}{"error": err.Error()})
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.CodeID == "" {
		http.Error(w, "code_id is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.transcripts[req.SessionID] = append(s.transcripts[req.SessionID], storedMessage{
		Role:    "user",
		Content: req.Message,
		Time:    time.Now().Format(time.RFC3339),
	})
	s.mu.Unlock()

	s.broadcast(req.CodeID, pushFrame{Type: "typing", Typing: true, SessionID: req.SessionID})
	answer := s.reply(req.CodeID, req.SessionID, req.Message)
	s.broadcast(req.CodeID, pushFrame{Type: "typing", Typing: false, SessionID: req.SessionID})

	s.mu.Lock()
	s.transcripts[req.SessionID] = append(s.transcripts[req.SessionID], storedMessage{
		Role:    "assistant",
		Content: answer,
		Time:    time.Now().Format(time.RFC3339),
	})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sendResponse{Response: answer, SessionID: req.SessionID})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	s.mu.RLock()
	msgs := s.transcripts[sessionID]
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(msgs)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	codeID := r.URL.Query().Get("code_id")
	if codeID == "" {
		http.Error(w, "code_id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("devserver", "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.conns[conn] = codeID
	s.mu.Unlock()

	logger.DebugCF("devserver", "Push client connected", map[string]interface{}{"code_id": codeID})

	// Clients only listen; drain until the connection drops.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Push sends an async bot message to every connected widget for a code id,
// the way a human agent reply would arrive.
func (s *Server) Push(codeID, sessionID, content string) {
	s.broadcast(codeID, pushFrame{Type: "message", Content: content, SessionID: sessionID})
}

func (s *Server) broadcast(codeID string, frame pushFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.mu.RLock()
	var targets []*websocket.Conn
	for conn, code := range s.conns {
		if code == codeID {
			targets = append(targets, conn)
		}
	}
	s.mu.RUnlock()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for _, conn := range targets {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.DebugCF("devserver", "Dropping dead push client", map[string]interface{}{"error": err.Error()})
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}
	}
}
