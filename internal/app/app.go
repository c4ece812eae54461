// Package app builds the brochure services from a Config so the HTTP API and
// the CLI share one dependency graph.
package app

import (
	"context"
	"fmt"

	"github.com/SirClappington/brochure-backend/internal/config"
	"github.com/SirClappington/brochure-backend/internal/services"
	"go.uber.org/zap"
)

// App bundles the wired services.
type App struct {
	Config    *config.Config
	LLM       services.LLMClient
	Fetcher   services.Fetcher
	Brochures *services.BrochureService

	closers []func() error
	logger  *zap.Logger
}

// New constructs the fetcher, model client, optional contact lookups and
// storage described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, logger: logger}

	llm, err := services.NewLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.LLM.Provider, err)
	}
	a.LLM = llm

	fetcher, mapper, err := a.newFetcher()
	if err != nil {
		return nil, err
	}
	a.Fetcher = fetcher

	selector := services.NewLinkSelector(llm, cfg.LLM.Model, cfg.Scrape.MaxLinks, cfg.Scrape.MaxPages, cfg.Scrape.SameDomainOnly, logger)
	svc := services.NewBrochureService(fetcher, selector, llm, services.BrochureOptions{
		Model:           cfg.LLM.Model,
		WordTarget:      cfg.LLM.WordTarget,
		MaxLinks:        cfg.Scrape.MaxLinks,
		MaxCharsPerPage: cfg.Scrape.MaxCharsPerPage,
		SameDomainOnly:  cfg.Scrape.SameDomainOnly,
		Concurrency:     cfg.Scrape.Concurrency,
		Temperature:     services.Float64Ptr(cfg.LLM.Temperature),
	}, logger)
	if mapper != nil {
		svc.WithSiteMapper(mapper)
	}

	if cfg.Places.APIKey != "" {
		places, err := services.NewPlacesClient(cfg.Places.APIKey, logger)
		if err != nil {
			return nil, err
		}
		svc.WithContacts(places)
	}

	store, err := newStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		svc.WithStore(store)
	}

	a.Brochures = svc
	return a, nil
}

func (a *App) newFetcher() (services.Fetcher, services.SiteMapper, error) {
	sc := a.Config.Scrape
	switch sc.Fetcher {
	case "browser":
		bf := services.NewBrowserFetcher(sc.BrowserURL, sc.Timeout, a.logger)
		a.closers = append(a.closers, bf.Close)
		return bf, nil, nil
	case "firecrawl":
		fc, err := services.NewFirecrawlClient(sc.FirecrawlAPIKey, sc.FirecrawlURL, sc.UserAgent, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return fc, fc, nil
	default:
		return services.NewHTTPFetcher(sc.Timeout, sc.UserAgent, sc.RequestsPerSec, a.logger), nil, nil
	}
}

func newStore(ctx context.Context, sc config.StorageConfig, logger *zap.Logger) (services.BrochureStore, error) {
	switch {
	case sc.Bucket != "":
		fs, err := services.NewFirebaseService(ctx, sc.CredentialsFile, sc.Bucket, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize firebase service: %w", err)
		}
		return fs, nil
	case sc.OutputDir != "":
		return services.NewFileStore(sc.OutputDir, logger)
	default:
		return nil, nil
	}
}

// Close releases the browser when one was started.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
