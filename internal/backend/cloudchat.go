package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultCloudChatURL is the chat completion endpoint used when none is configured.
	DefaultCloudChatURL = "https://api.openai.com/v1/chat/completions"
	// DefaultCloudChatModel is the model requested when none is configured.
	DefaultCloudChatModel = "gpt-3.5-turbo"

	cloudChatMaxTokens   = 500
	cloudChatTemperature = 0.7
)

// CloudChatConfig configures the hosted chat completion adapter.
type CloudChatConfig struct {
	URL        string
	Model      string
	Timeout    time.Duration
	RatePerSec float64
}

// CloudChat calls an OpenAI-compatible chat completion API.
type CloudChat struct {
	client  *http.Client
	limiter *rate.Limiter
	apiURL  string
	model   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

// NewCloudChat creates the cloud-chat adapter.
func NewCloudChat(cfg CloudChatConfig) *CloudChat {
	if cfg.URL == "" {
		cfg.URL = DefaultCloudChatURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultCloudChatModel
	}
	return &CloudChat{
		client:  newHTTPClient(cfg.Timeout),
		limiter: newLimiter(cfg.RatePerSec),
		apiURL:  cfg.URL,
		model:   cfg.Model,
	}
}

func (c *CloudChat) Kind() Kind {
	return KindCloudChat
}

func (c *CloudChat) RequiresCredential() bool {
	return true
}

// Generate sends the system and user prompts as a two-message conversation.
func (c *CloudChat) Generate(ctx context.Context, req Request) (string, error) {
	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   cloudChatMaxTokens,
		Temperature: cloudChatTemperature,
	}
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", req.Credential),
	}

	body, err := postJSON(ctx, c.client, c.limiter, KindCloudChat, c.apiURL, headers, payload)
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &DispatchError{Kind: APIError, Provider: KindCloudChat, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &DispatchError{Kind: APIError, Provider: KindCloudChat, Reason: "response has no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}
