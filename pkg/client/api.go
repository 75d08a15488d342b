// Package client is a Go client for the support chat API. Session keeps the
// same conversation state a browser widget would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Message is one chat turn as returned by the history endpoint.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`

	// Local marks messages generated by the client that were never stored.
	Local bool `json:"-"`
}

// Senders as stored by the server.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

type sendRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"sessionId"`
}

// SendResponse is the server's answer to a submitted message.
type SendResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"sessionId"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat api: %d %s", e.Status, e.Message)
}

// Transport is what Session needs from the server.
type Transport interface {
	SendMessage(ctx context.Context, message, sessionID string) (*SendResponse, error)
	History(ctx context.Context, sessionID string) ([]Message, error)
}

// APIClient talks to the chat API over HTTP.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a client for the API rooted at baseURL. A nil
// httpClient gets a 30s timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// SendMessage posts a message. An empty sessionID starts a new conversation.
func (c *APIClient) SendMessage(ctx context.Context, message, sessionID string) (*SendResponse, error) {
	body := sendRequest{Message: message}
	if sessionID != "" {
		body.SessionID = &sessionID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/message", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out SendResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches every message of a conversation, oldest first.
func (c *APIClient) History(ctx context.Context, sessionID string) ([]Message, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/chat/history/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var out []Message
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}

func (c *APIClient) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			apiErr.Message = body.Error
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
