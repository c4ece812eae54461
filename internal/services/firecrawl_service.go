package services

import (
	"context"
	"fmt"

	"github.com/mendableai/firecrawl-go"
	"go.uber.org/zap"
)

// FirecrawlClient fetches pages and site maps through the Firecrawl API.
type FirecrawlClient struct {
	APIKey    string
	BaseURL   string
	UserAgent string
	Client    *firecrawl.FirecrawlApp
	logger    *zap.Logger
}

// NewFirecrawlClient creates a new instance of FirecrawlClient.
func NewFirecrawlClient(apiKey, baseURL, userAgent string, logger *zap.Logger) (*FirecrawlClient, error) {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}

	app, err := firecrawl.NewFirecrawlApp(apiKey, baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize FirecrawlApp: %v", err)
	}

	return &FirecrawlClient{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    app,
		logger:    logger,
	}, nil
}

// Fetch scrapes a single page and returns its full HTML.
func (fc *FirecrawlClient) Fetch(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	headers := map[string]string{"User-Agent": fc.UserAgent}
	doc, err := fc.Client.ScrapeURL(pageURL, &firecrawl.ScrapeParams{
		Formats:         []string{"html"},
		Headers:         &headers,
		OnlyMainContent: BoolPtr(false),
	})
	if err != nil {
		return "", fmt.Errorf("scrape failed: %w", err)
	}
	if doc == nil || doc.HTML == "" {
		return "", fmt.Errorf("scrape returned no HTML for %s", pageURL)
	}

	fc.logger.Debug("Scraped page via Firecrawl", zap.String("url", pageURL), zap.Int("bytes", len(doc.HTML)))
	return doc.HTML, nil
}

// MapWebsite lists the URLs Firecrawl knows for the given website.
func (fc *FirecrawlClient) MapWebsite(ctx context.Context, website string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mapResponse, err := fc.Client.MapURL(website, &firecrawl.MapParams{
		IncludeSubdomains: BoolPtr(false),
		Limit:             IntPtr(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map website: %v", err)
	}

	if !mapResponse.Success {
		return nil, fmt.Errorf("map operation failed for %s: %s", website, mapResponse.Error)
	}

	if mapResponse.Links == nil {
		return nil, fmt.Errorf("received nil Links in response for %s", website)
	}

	fc.logger.Debug("Mapped website via Firecrawl", zap.String("url", website), zap.Int("links", len(mapResponse.Links)))
	return mapResponse.Links, nil
}

func BoolPtr(b bool) *bool {
	return &b
}

func IntPtr(i int) *int {
	return &i
}
