package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"go.uber.org/zap"
)

// OllamaClient uses Ollama's native /api/chat endpoint, which streams
// newline-delimited JSON rather than server-sent events.
type OllamaClient struct {
	host       string
	httpClient *http.Client
	logger     *zap.Logger
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// NewOllamaClient accepts either the bare host or the OpenAI-compatible /v1
// base URL.
func NewOllamaClient(host string, httpClient *http.Client, logger *zap.Logger) *OllamaClient {
	host = strings.TrimRight(host, "/")
	host = strings.TrimSuffix(host, "/v1")
	return &OllamaClient{
		host:       host,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *OllamaClient) newRequest(req ChatRequest, stream bool) ollamaRequest {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
	}
	if req.JSON {
		body.Format = "json"
	}
	if req.Temperature != nil {
		body.Options = &ollamaOptions{Temperature: req.Temperature}
	}
	return body
}

func (c *OllamaClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	resp, err := postJSON(ctx, c.httpClient, c.host+"/api/chat", "", c.newRequest(req, false))
	if err != nil {
		return "", apierrors.NewExternalError("ollama", err)
	}
	defer resp.Body.Close()

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierrors.NewExternalError("ollama", fmt.Errorf("failed to parse response: %w", err))
	}
	if out.Error != "" {
		return "", apierrors.NewExternalError("ollama", fmt.Errorf("API error: %s", out.Error))
	}
	return out.Message.Content, nil
}

func (c *OllamaClient) Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) (string, error) {
	resp, err := postJSON(ctx, c.httpClient, c.host+"/api/chat", "", c.newRequest(req, true))
	if err != nil {
		return "", apierrors.NewExternalError("ollama", err)
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			c.logger.Debug("Skipping malformed stream line", zap.Error(err))
			continue
		}
		if chunk.Error != "" {
			return full.String(), apierrors.NewExternalError("ollama", fmt.Errorf("API error: %s", chunk.Error))
		}

		if piece := chunk.Message.Content; piece != "" {
			full.WriteString(piece)
			if err := onChunk(piece); err != nil {
				return full.String(), err
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), apierrors.NewExternalError("ollama", fmt.Errorf("stream interrupted: %w", err))
	}
	return full.String(), nil
}
