package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultLocalGenerateURL is the base URL of a locally hosted Ollama server.
	DefaultLocalGenerateURL = "http://localhost:11434"
	// DefaultLocalGenerateModel is the model requested when none is configured.
	DefaultLocalGenerateModel = "llama2"
)

// LocalGenerateConfig configures the local generation adapter.
type LocalGenerateConfig struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RatePerSec float64
}

// LocalGenerate calls the /api/generate endpoint of an Ollama server.
type LocalGenerate struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
	model   string
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewLocalGenerate creates the local-generate adapter.
func NewLocalGenerate(cfg LocalGenerateConfig) *LocalGenerate {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLocalGenerateURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLocalGenerateModel
	}
	return &LocalGenerate{
		client:  newHTTPClient(cfg.Timeout),
		limiter: newLimiter(cfg.RatePerSec),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
	}
}

func (l *LocalGenerate) Kind() Kind {
	return KindLocalGenerate
}

func (l *LocalGenerate) RequiresCredential() bool {
	return false
}

// Generate sends the system prompt and the user prompt joined into a single non-streaming prompt.
func (l *LocalGenerate) Generate(ctx context.Context, req Request) (string, error) {
	payload := generateRequest{
		Model:  l.model,
		Prompt: req.SystemPrompt + "\n\n" + req.UserPrompt,
		Stream: false,
	}

	body, err := postJSON(ctx, l.client, l.limiter, KindLocalGenerate, l.baseURL+"/api/generate", nil, payload)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &DispatchError{Kind: APIError, Provider: KindLocalGenerate, Err: fmt.Errorf("decode response: %w", err)}
	}
	return resp.Response, nil
}
