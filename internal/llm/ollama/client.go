package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultBaseURL = "http://localhost:11434"

// Client talks to a local Ollama server.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// New creates a client for the given server and model. An empty baseURL falls
// back to the default local address.
func New(baseURL, model string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

// Chat sends a system+user message pair to /api/chat and returns the
// assistant's reply content.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: userPrompt})

	chatReq := ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}
	var chatResp ChatResponse
	if err := c.post(ctx, "/api/chat", chatReq, &chatResp); err != nil {
		return "", err
	}
	return chatResp.Message.Content, nil
}

// Generate sends a raw prompt to /api/generate and returns the completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	genReq := GenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
	}
	var genResp GenerateResponse
	if err := c.post(ctx, "/api/generate", genReq, &genResp); err != nil {
		return "", err
	}
	return genResp.Response, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
