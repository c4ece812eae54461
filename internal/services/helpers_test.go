package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

func init() {
	retryBaseDelay = time.Millisecond
}

// fakeFetcher serves canned HTML per URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, pageURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pageURL)
	body, ok := f.pages[pageURL]
	if !ok {
		return "", fmt.Errorf("HTTP 404 fetching %s", pageURL)
	}
	return body, nil
}

// fakeLLM answers link selection requests with linksReply and everything
// else with brochureReply, which is streamed word by word.
type fakeLLM struct {
	mu            sync.Mutex
	linksReply    string
	linksErr      error
	brochureReply string
	requests      []ChatRequest
}

func (f *fakeLLM) record(req ChatRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeLLM) Complete(_ context.Context, req ChatRequest) (string, error) {
	f.record(req)
	if req.JSON {
		return f.linksReply, f.linksErr
	}
	return f.brochureReply, nil
}

func (f *fakeLLM) Stream(_ context.Context, req ChatRequest, onChunk func(string) error) (string, error) {
	f.record(req)
	var full strings.Builder
	for i, word := range strings.Fields(f.brochureReply) {
		piece := word
		if i > 0 {
			piece = " " + word
		}
		full.WriteString(piece)
		if err := onChunk(piece); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

func (f *fakeLLM) lastRequest() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}
