package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/transport"
)

func testServer(t *testing.T, reply ReplyFunc) (*Server, *httptest.Server) {
	t.Helper()
	s := New("", reply)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postMessage(t *testing.T, url string, body map[string]string) (*http.Response, map[string]string) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url+"/api/v1/chat/message", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]string
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp, decoded
}

func TestSendEchoesAndIssuesSession(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, body := postMessage(t, ts.URL, map[string]string{
		"message": "hello",
		"code_id": "code-1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "You said: hello", body["response"])
	assert.NotEmpty(t, body["session_id"], "a session id is issued on first exchange")

	// Same session id is kept on subsequent sends.
	_, body2 := postMessage(t, ts.URL, map[string]string{
		"message":    "again",
		"code_id":    "code-1",
		"session_id": body["session_id"],
	})
	assert.Equal(t, body["session_id"], body2["session_id"])
}

func TestSendValidation(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, _ := postMessage(t, ts.URL, map[string]string{"message": "no code"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/v1/chat/message")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)
}

func TestHistoryKeepsTranscript(t *testing.T) {
	_, ts := testServer(t, nil)

	_, body := postMessage(t, ts.URL, map[string]string{
		"message": "hello",
		"code_id": "code-1",
	})

	resp, err := http.Get(ts.URL + "/api/v1/chat/history?session_id=" + body["session_id"])
	require.NoError(t, err)
	defer resp.Body.Close()

	var msgs []storedMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestPushReachesConnectedWidgets(t *testing.T) {
	s, ts := testServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/chat/ws?code_id=code-1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Scoped to another code: must not arrive on this connection.
	s.Push("code-other", "s1", "wrong room")
	s.Push("code-1", "s1", "agent reply")

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame pushFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "agent reply", frame.Content)
}

func TestWSRequiresCodeID(t *testing.T) {
	_, ts := testServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/chat/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// The real transport client against the dev backend, end to end.
func TestTransportClientAgainstDevServer(t *testing.T) {
	_, ts := testServer(t, func(codeID, sessionID, message string) string {
		return "answer: " + message
	})

	c := transport.NewClient(ts.URL, "code-1", time.Second)
	reply, err := c.Send(context.Background(), "how do refunds work?", "")
	require.NoError(t, err)

	assert.Equal(t, "answer: how do refunds work?", reply.Text)
	assert.NotEmpty(t, reply.SessionID)
}
