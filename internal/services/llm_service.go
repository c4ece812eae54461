package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/SirClappington/brochure-backend/internal/config"
	"go.uber.org/zap"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes a single chat completion call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
	// JSON asks the provider to constrain its output to a JSON object.
	JSON bool
}

// LLMClient is implemented by every chat model provider.
type LLMClient interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	// Stream calls onChunk for each content delta and returns the full text.
	// An error from onChunk aborts the stream.
	Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) (string, error)
}

// NewLLMClient builds the client for cfg.Provider, using the API key that
// provider reads.
func NewLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg.BaseURL, cfg.Key(), httpClient, logger), nil
	case "ollama":
		return NewOllamaClient(cfg.BaseURL, httpClient, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg.Key(), cfg.BaseURL, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}

// postJSON sends payload to endpoint and returns the open response for any
// 2xx status. Transport errors, 429 and 5xx are retried.
func postJSON(ctx context.Context, client *http.Client, endpoint, apiKey string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *http.Response
	err = retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		r, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return permanent(err)
			}
			return fmt.Errorf("request failed: %w", err)
		}

		if r.StatusCode >= 200 && r.StatusCode <= 299 {
			resp = r
			return nil
		}

		respBody, _ := io.ReadAll(io.LimitReader(r.Body, 64<<10))
		r.Body.Close()
		statusErr := fmt.Errorf("API request failed with status %d: %s", r.StatusCode, strings.TrimSpace(string(respBody)))
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500 {
			return statusErr
		}
		return permanent(statusErr)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
