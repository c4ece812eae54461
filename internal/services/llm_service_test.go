package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SirClappington/brochure-backend/internal/config"
	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"
)

func testChat(jsonMode bool) ChatRequest {
	return ChatRequest{
		Model: "gemma3:latest",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hello"},
		},
		Temperature: Float64Ptr(0.2),
		JSON:        jsonMode,
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gemma3:latest", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
		assert.Nil(t, body["stream"])

		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"links\":[]}"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1/", "ollama", srv.Client(), zaptest.NewLogger(t))
	out, err := client.Complete(context.Background(), testChat(true))
	require.NoError(t, err)
	assert.Equal(t, `{"links":[]}`, out)
}

func TestOpenAIClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, true, body["stream"])
		assert.Nil(t, body["response_format"])

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"# Acme\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" builds chairs\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ignored\"}}]}\n\n")
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))

	var chunks []string
	out, err := client.Stream(context.Background(), testChat(false), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"# Acme", " builds chairs"}, chunks)
	assert.Equal(t, "# Acme builds chairs", out)
}

func TestOpenAIClientStreamAbortsOnCallbackError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n")
	}))
	defer srv.Close()

	stop := errors.New("client went away")
	client := NewOpenAIClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))
	out, err := client.Stream(context.Background(), testChat(false), func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, "one", out)
}

func TestOpenAIClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))
	_, err := client.Complete(context.Background(), testChat(false))
	require.Error(t, err)

	apiErr, ok := apierrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apierrors.ErrorTypeExternal, apiErr.Type)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))
	out, err := client.Complete(context.Background(), testChat(false))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL, "", srv.Client(), zaptest.NewLogger(t))
	_, err := client.Complete(context.Background(), testChat(false))
	assert.ErrorContains(t, err, "no completion returned")
}

func TestOllamaClientComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "json", body.Format)
		assert.False(t, body.Stream)
		require.NotNil(t, body.Options)
		assert.Equal(t, 0.2, *body.Options.Temperature)

		fmt.Fprint(w, `{"message":{"role":"assistant","content":"Canberra"},"done":true}`)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL+"/v1", srv.Client(), zaptest.NewLogger(t))
	out, err := client.Complete(context.Background(), testChat(true))
	require.NoError(t, err)
	assert.Equal(t, "Canberra", out)
}

func TestOllamaClientStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"Kubernetes"},"done":false}`)
		fmt.Fprintln(w, `{malformed`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"message":{"content":" orchestrates"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true}`)
		fmt.Fprintln(w, `{"message":{"content":" never sent"},"done":false}`)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, srv.Client(), zaptest.NewLogger(t))

	var chunks []string
	out, err := client.Stream(context.Background(), testChat(false), func(chunk string) error {
		chunks = append(chunks, chunk)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Kubernetes", " orchestrates"}, chunks)
	assert.Equal(t, "Kubernetes orchestrates", out)
}

func TestOllamaClientStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model 'llama9' not found"}`)
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL, srv.Client(), zaptest.NewLogger(t))
	_, err := client.Stream(context.Background(), testChat(false), func(string) error { return nil })
	assert.ErrorContains(t, err, "llama9")
}

func TestGeminiContents(t *testing.T) {
	req := ChatRequest{
		Model: "gemini-2.5-flash",
		Messages: []Message{
			{Role: RoleSystem, Content: "rule one"},
			{Role: RoleUser, Content: "question"},
			{Role: RoleAssistant, Content: "answer"},
			{Role: RoleSystem, Content: "rule two"},
		},
		Temperature: Float64Ptr(0.5),
		JSON:        true,
	}

	contents, cfg := geminiContents(req)
	require.Len(t, contents, 2)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, "answer", contents[1].Parts[0].Text)

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "rule one\n\nrule two", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, float32(0.5), *cfg.Temperature)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
}

func TestNewLLMClientProviders(t *testing.T) {
	cfg := config.Default().LLM
	cfg.Timeout = time.Second
	log := zaptest.NewLogger(t)

	client, err := NewLLMClient(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)

	cfg.Provider = "ollama"
	client, err = NewLLMClient(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &OllamaClient{}, client)

	// The OpenAI key is never handed to Gemini.
	cfg.Provider = "gemini"
	_, err = NewLLMClient(context.Background(), cfg, log)
	assert.Error(t, err)

	cfg.GeminiAPIKey = "g-key"
	client, err = NewLLMClient(context.Background(), cfg, log)
	require.NoError(t, err)
	assert.IsType(t, &GeminiClient{}, client)

	cfg.Provider = "bard"
	_, err = NewLLMClient(context.Background(), cfg, log)
	assert.Error(t, err)
}

func TestGeminiClientSendsProviderKey(t *testing.T) {
	var key, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get("x-goog-api-key")
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Acme makes chairs."}]}}]}`)
	}))
	defer srv.Close()

	cfg := config.Default().LLM
	cfg.Provider = "gemini"
	cfg.GeminiAPIKey = "g-key"
	cfg.ResolveProvider()
	cfg.BaseURL = srv.URL

	client, err := NewLLMClient(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	answer, err := client.Complete(context.Background(), ChatRequest{
		Model:    cfg.Model,
		Messages: []Message{{Role: RoleUser, Content: "What does Acme make?"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme makes chairs.", answer)
	assert.Equal(t, "g-key", key)
	assert.True(t, strings.HasSuffix(path, "/models/gemini-2.5-flash:generateContent"), path)
}
