package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"go.uber.org/zap"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 API.
type OpenAIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []Message             `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func NewOpenAIClient(baseURL, apiKey string, httpClient *http.Client, logger *zap.Logger) *OpenAIClient {
	return &OpenAIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *OpenAIClient) newRequest(req ChatRequest, stream bool) openAIRequest {
	body := openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}
	return body
}

func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	start := time.Now()
	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", c.apiKey, c.newRequest(req, false))
	if err != nil {
		return "", apierrors.NewExternalError("llm", err)
	}
	defer resp.Body.Close()

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apierrors.NewExternalError("llm", fmt.Errorf("failed to parse response: %w", err))
	}
	if out.Error != nil {
		return "", apierrors.NewExternalError("llm", fmt.Errorf("API error: %s", out.Error.Message))
	}
	if len(out.Choices) == 0 {
		return "", apierrors.NewExternalError("llm", fmt.Errorf("no completion returned"))
	}

	content := out.Choices[0].Message.Content
	c.logger.Debug("Chat completion finished",
		zap.String("model", req.Model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(content)))
	return content, nil
}

func (c *OpenAIClient) Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) (string, error) {
	resp, err := postJSON(ctx, c.httpClient, c.baseURL+"/chat/completions", c.apiKey, c.newRequest(req, true))
	if err != nil {
		return "", apierrors.NewExternalError("llm", err)
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("Skipping malformed stream chunk", zap.Error(err))
			continue
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		piece := chunk.Choices[0].Delta.Content
		full.WriteString(piece)
		if err := onChunk(piece); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), apierrors.NewExternalError("llm", fmt.Errorf("stream interrupted: %w", err))
	}
	return full.String(), nil
}
