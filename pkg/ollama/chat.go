// Package ollama provides a minimal client for Ollama's chat API.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries sampling parameters.
type Options struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatReq struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

type chatResp struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("ollama: status %d", e.StatusCode)
	}
	return fmt.Sprintf("ollama: status %d: %s", e.StatusCode, e.Message)
}

// ChatClient talks to an Ollama server.
type ChatClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewChatClient creates an Ollama chat client. A nil httpClient uses http.DefaultClient.
func NewChatClient(baseURL, model string, httpClient *http.Client) *ChatClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ChatClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  httpClient,
	}
}

// Model returns the configured model name.
func (c *ChatClient) Model() string { return c.model }

// Chat sends a non-streaming chat request and returns the assistant's content.
func (c *ChatClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	body, err := json.Marshal(chatReq{Model: c.model, Messages: messages, Options: opts})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	defer resp.Body.Close()

	var result chatResp
	decodeErr := json.NewDecoder(resp.Body).Decode(&result)
	if resp.StatusCode != http.StatusOK {
		return "", &StatusError{StatusCode: resp.StatusCode, Message: result.Error}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("ollama chat decode: %w", decodeErr)
	}
	return result.Message.Content, nil
}
