package oracle

// chat.go speaks the OpenAI-compatible chat completions protocol.
//
// Only the subset needed for classification is implemented: a single
// non-streaming completion with temperature 0. Any transport error, non-2xx
// status, or empty choice list is returned as an error; the classifier
// treats those the same as an invalid reply.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// DefaultModel is used when ChatConfig.Model is empty.
const DefaultModel = "gpt-4-turbo-preview"

// ErrEmptyReply is returned when the service answers without any choices.
var ErrEmptyReply = errors.New("oracle returned no choices")

// ChatConfig configures a Chat client.
type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a single HTTP exchange. Zero leaves it to the context.
	Timeout time.Duration
}

// Chat is an Oracle backed by a chat completions endpoint.
type Chat struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewChat creates a chat client.
func NewChat(cfg ChatConfig) *Chat {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Chat{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Ask implements Oracle.
func (c *Chat) Ask(ctx context.Context, system string, history []Message) (string, error) {
	msgs := make([]Message, 0, len(history)+1)
	if system != "" {
		msgs = append(msgs, System(system))
	}
	msgs = append(msgs, history...)

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode chat response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode/100 != 2 {
		if out.Error != nil {
			return "", fmt.Errorf("chat status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("chat status %d", resp.StatusCode)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return out.Choices[0].Message.Content, nil
}
