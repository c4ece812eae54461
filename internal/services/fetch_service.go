package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// maxBodyBytes bounds how much of a page is read.
const maxBodyBytes = 4 << 20

// Fetcher returns the HTML of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP client, retrying transient
// failures and spacing requests with a shared rate limiter.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, requestsPerSec float64, logger *zap.Logger) *HTTPFetcher {
	burst := int(requestsPerSec)
	if burst < 1 {
		burst = 1
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSec), burst),
		logger:    logger,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	var body string
	err := retry(ctx, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,*/*")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, pageURL)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return permanent(fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, pageURL))
		}

		reader, err := charset.NewReader(io.LimitReader(resp.Body, maxBodyBytes), resp.Header.Get("Content-Type"))
		if err != nil {
			return permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		data, err := io.ReadAll(reader)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		body = string(data)
		return nil
	})
	if err != nil {
		f.logger.Warn("Failed to fetch page", zap.String("url", pageURL), zap.Error(err))
		return "", err
	}

	f.logger.Debug("Fetched page", zap.String("url", pageURL), zap.Int("bytes", len(body)))
	return body, nil
}
