package services

import (
	"context"
	"fmt"
	"strings"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// GeminiClient generates chat completions with Google's Gemini API.
type GeminiClient struct {
	client *genai.Client
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini client. An empty baseURL uses Google's
// public endpoint.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, logger *zap.Logger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiClient{client: client, logger: logger}, nil
}

// geminiContents splits a chat into Gemini contents plus a generation config.
// System messages are merged into the system instruction.
func geminiContents(req ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	return contents, config
}

func (g *GeminiClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	contents, config := geminiContents(req)

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return "", apierrors.NewExternalError("gemini", err)
	}
	return resp.Text(), nil
}

func (g *GeminiClient) Stream(ctx context.Context, req ChatRequest, onChunk func(chunk string) error) (string, error) {
	contents, config := geminiContents(req)

	var full strings.Builder
	for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return full.String(), apierrors.NewExternalError("gemini", err)
		}
		piece := resp.Text()
		if piece == "" {
			continue
		}
		full.WriteString(piece)
		if err := onChunk(piece); err != nil {
			return full.String(), err
		}
	}

	g.logger.Debug("Gemini stream finished", zap.String("model", req.Model), zap.Int("chars", full.Len()))
	return full.String(), nil
}
