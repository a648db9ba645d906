package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pushServer upgrades /api/v1/chat/ws and hands each connection to accept.
func pushServer(t *testing.T, accept func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accept(conn)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSocketReceivesPushFrames(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := pushServer(t, func(c *websocket.Conn) { conns <- c })

	frames := make(chan PushFrame, 4)
	s := NewSocket(wsBase(srv), "code-1", func(f PushFrame) { frames <- f })
	s.Start(context.Background())
	defer s.Close()

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(3 * time.Second):
		t.Fatal("socket never connected")
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"message","content":"agent says hi","session_id":"s1"}`)))

	select {
	case f := <-frames:
		assert.Equal(t, "message", f.Type)
		assert.Equal(t, "agent says hi", f.Content)
		assert.Equal(t, "s1", f.SessionID)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestSocketDropsUndecodableFrames(t *testing.T) {
	conns := make(chan *websocket.Conn, 1)
	srv := pushServer(t, func(c *websocket.Conn) { conns <- c })

	frames := make(chan PushFrame, 4)
	s := NewSocket(wsBase(srv), "code-1", func(f PushFrame) { frames <- f })
	s.Start(context.Background())
	defer s.Close()

	conn := <-conns
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"typing","typing":true}`)))

	select {
	case f := <-frames:
		assert.Equal(t, "typing", f.Type, "the bad frame is skipped, the good one delivered")
		assert.True(t, f.Typing)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered")
	}
}

func TestSocketReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conns := make(chan *websocket.Conn, 2)
	srv := pushServer(t, func(c *websocket.Conn) {
		mu.Lock()
		dials++
		mu.Unlock()
		conns <- c
	})

	frames := make(chan PushFrame, 4)
	s := NewSocket(wsBase(srv), "code-1", func(f PushFrame) { frames <- f })
	s.Start(context.Background())
	defer s.Close()

	first := <-conns
	first.Close() // server-side drop

	select {
	case second := <-conns:
		require.NoError(t, second.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"message","content":"after reconnect"}`)))
	case <-time.After(10 * time.Second):
		t.Fatal("socket never reconnected")
	}

	select {
	case f := <-frames:
		assert.Equal(t, "after reconnect", f.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("frame never delivered after reconnect")
	}

	mu.Lock()
	assert.GreaterOrEqual(t, dials, 2)
	mu.Unlock()
}

func TestSocketUnreachableBackendJustRetries(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1", "code-1", nil)

	statuses := make(chan Status, 8)
	s.OnStatus(func(st Status) {
		select {
		case statuses <- st:
		default:
		}
	})
	s.Start(context.Background())

	deadline := time.After(3 * time.Second)
	sawError := false
	for !sawError {
		select {
		case st := <-statuses:
			if st == StatusError {
				sawError = true
			}
		case <-deadline:
			t.Fatal("never observed an error status")
		}
	}

	require.NoError(t, s.Close())
	assert.Equal(t, StatusClosed, s.Status())
}

func TestSocketCloseBeforeStart(t *testing.T) {
	s := NewSocket("ws://127.0.0.1:1", "code-1", nil)
	assert.NoError(t, s.Close())
}
