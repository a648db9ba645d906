// Package transport exchanges chat messages with the backend. The HTTP
// client is the required path; the WebSocket push channel is purely
// additive and its failure never degrades request/response chat.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PrinceYeshhhh/CCGPT-sub002/pkg/logger"
)

// FallbackText is the fixed user-facing reply substituted for any transport
// failure. No error code or technical detail ever reaches the chat UI.
const FallbackText = "Sorry, I encountered an error. Please try again."

// sendPath is the backend chat endpoint, relative to the configured API base.
const sendPath = "/api/v1/chat/message"

// Source is a citation attached to a bot reply.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Reply is a successful backend response.
type Reply struct {
	Text      string
	SessionID string
	Sources   []Source
}

// Client sends user messages to the backend chat endpoint. Sends are not
// retried: the caller's fallback message is the documented failure contract.
type Client struct {
	base   string
	codeID string
	hc     *http.Client
}

// NewClient creates a chat client for one embed code. The timeout bounds
// every Send, including connection setup and body read.
func NewClient(apiBase, codeID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(apiBase, "/"),
		codeID: codeID,
		hc:     &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	CodeID    string `json:"code_id"`
}

// sendResponse tolerates the schema variations the backend has shipped:
// the reply text may arrive as "response", "reply" or "message" (either a
// bare string or an object with a "content" field), and the session id as
// snake or camel case.
type sendResponse struct {
	Response     string          `json:"response"`
	Reply        string          `json:"reply"`
	Message      json.RawMessage `json:"message"`
	SessionID    string          `json:"session_id"`
	SessionIDAlt string          `json:"sessionId"`
	Sources      []Source        `json:"sources"`
}

func (r *sendResponse) text() string {
	if r.Response != "" {
		return r.Response
	}
	if r.Reply != "" {
		return r.Reply
	}
	if len(r.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Message, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(r.Message, &obj); err == nil {
		return obj.Content
	}
	return ""
}

func (r *sendResponse) sessionID() string {
	if r.SessionID != "" {
		return r.SessionID
	}
	return r.SessionIDAlt
}

// Send posts a user message and returns the bot reply. Any failure —
// network error, timeout, non-2xx status, undecodable or empty body — comes
// back as an error; mapping errors to FallbackText is the caller's job so
// the transport never invents chat content.
func (c *Client) Send(ctx context.Context, text, sessionID string) (*Reply, error) {
	payload, err := json.Marshal(sendRequest{
		Message:   text,
		SessionID: sessionID,
		CodeID:    c.codeID,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+sendPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("transport: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		logger.WarnCF("transport", "Chat send failed", map[string]interface{}{
			"code_id": c.codeID,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("transport: sending message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("transport: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.WarnCF("transport", "Chat send rejected", map[string]interface{}{
			"code_id": c.codeID,
			"status":  resp.StatusCode,
		})
		return nil, fmt.Errorf("transport: backend returned status %d", resp.StatusCode)
	}

	var decoded sendResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("transport: decoding response: %w", err)
	}

	replyText := decoded.text()
	if replyText == "" {
		return nil, fmt.Errorf("transport: response carried no reply text")
	}

	return &Reply{
		Text:      replyText,
		SessionID: decoded.sessionID(),
		Sources:   decoded.Sources,
	}, nil
}
