package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const brochureSystemPrompt = `You are an assistant that writes a concise company brochure
for prospective customers, investors, and recruits.
Use the provided website content only; do not invent facts.
Respond in Markdown (no code blocks).
Aim for ~%d words.
Include sections:
- Overview
- What they do (products/services)
- Who they serve (customers/industries)
- Culture & values
- Careers (roles/what to expect)
- Contact / next steps
`

// ContactFinder resolves contact details for a company.
type ContactFinder interface {
	Lookup(ctx context.Context, company, website string) (*models.Contact, error)
}

// SiteMapper lists known URLs of a website without crawling it.
type SiteMapper interface {
	MapWebsite(ctx context.Context, website string, limit int) ([]string, error)
}

// BrochureOptions tunes corpus gathering and generation.
type BrochureOptions struct {
	Model           string
	WordTarget      int
	MaxLinks        int
	MaxCharsPerPage int
	SameDomainOnly  bool
	Concurrency     int
	Temperature     *float64
}

// Corpus is the website text a brochure is written from.
type Corpus struct {
	Text    string
	Links   []models.Link
	Pages   []models.Page
	Contact *models.Contact
}

type BrochureService struct {
	fetcher  Fetcher
	selector *LinkSelector
	llm      LLMClient
	contacts ContactFinder
	mapper   SiteMapper
	store    BrochureStore
	opts     BrochureOptions
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewBrochureService(fetcher Fetcher, selector *LinkSelector, llm LLMClient, opts BrochureOptions, logger *zap.Logger) *BrochureService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &BrochureService{
		fetcher:  fetcher,
		selector: selector,
		llm:      llm,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithContacts enables contact lookups for generated brochures.
func (s *BrochureService) WithContacts(contacts ContactFinder) *BrochureService {
	s.contacts = contacts
	return s
}

// WithSiteMapper adds a second source of candidate links.
func (s *BrochureService) WithSiteMapper(mapper SiteMapper) *BrochureService {
	s.mapper = mapper
	return s
}

// WithStore persists every generated brochure.
func (s *BrochureService) WithStore(store BrochureStore) *BrochureService {
	s.store = store
	return s
}

// ValidateRequest checks a company name and website before any network work.
func ValidateRequest(company, rootURL string) error {
	if strings.TrimSpace(company) == "" {
		return apierrors.NewValidationError("company name is required")
	}
	u, err := url.Parse(strings.TrimSpace(rootURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierrors.NewValidationError(fmt.Sprintf("invalid website URL %q: must be an absolute http(s) URL", rootURL))
	}
	return nil
}

// SelectLinks fetches the landing page and returns the pages chosen for the
// brochure, landing page first.
func (s *BrochureService) SelectLinks(ctx context.Context, rootURL string) ([]models.Link, error) {
	if err := ValidateRequest("-", rootURL); err != nil {
		return nil, err
	}
	_, links, err := s.candidateLinks(ctx, strings.TrimSpace(rootURL))
	if err != nil {
		return nil, err
	}
	return s.selector.Select(ctx, strings.TrimSpace(rootURL), links), nil
}

func (s *BrochureService) candidateLinks(ctx context.Context, rootURL string) (string, []string, error) {
	landing, err := s.fetcher.Fetch(ctx, rootURL)
	if err == nil && strings.TrimSpace(landing) == "" {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		return "", nil, apierrors.NewExternalError("fetch", fmt.Errorf("unable to fetch landing page %s: %w", rootURL, err))
	}

	links := ExtractLinks(rootURL, landing, s.opts.MaxLinks, s.opts.SameDomainOnly)
	if s.mapper != nil {
		mapped, err := s.mapper.MapWebsite(ctx, rootURL, s.opts.MaxLinks)
		if err != nil {
			s.logger.Warn("Error mapping website", zap.String("url", rootURL), zap.Error(err))
		} else {
			links = s.mergeLinks(rootURL, links, mapped)
		}
	}

	s.logger.Info("Extracted candidate links", zap.String("url", rootURL), zap.Int("count", len(links)))
	return landing, links, nil
}

func (s *BrochureService) mergeLinks(rootURL string, links, extra []string) []string {
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		seen[l] = true
	}
	for _, raw := range extra {
		if s.opts.MaxLinks > 0 && len(links) >= s.opts.MaxLinks {
			break
		}
		norm, ok := NormalizeURL(rootURL, raw)
		if !ok || seen[norm] {
			continue
		}
		if s.opts.SameDomainOnly && !SameHost(rootURL, norm) {
			continue
		}
		seen[norm] = true
		links = append(links, norm)
	}
	return links
}

// GatherCorpus fetches the landing page, selects relevant pages, fetches them
// concurrently and joins their text. Pages that fail to load are skipped.
func (s *BrochureService) GatherCorpus(ctx context.Context, company, rootURL string) (*Corpus, error) {
	landing, links, err := s.candidateLinks(ctx, rootURL)
	if err != nil {
		return nil, err
	}
	selected := s.selector.Select(ctx, rootURL, links)

	pages := make([]models.Page, len(selected))
	var contact *models.Contact

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, link := range selected {
		g.Go(func() error {
			body := landing
			if link.URL != rootURL {
				var err error
				body, err = s.fetcher.Fetch(gctx, link.URL)
				if err != nil {
					s.logger.Warn("Skipping page", zap.String("url", link.URL), zap.Error(err))
					return nil
				}
			}
			text := HTMLToText(body)
			if text == "" {
				return nil
			}
			pages[i] = models.Page{Type: link.Type, URL: link.URL, Text: truncateRunes(text, s.opts.MaxCharsPerPage)}
			return nil
		})
	}
	if s.contacts != nil {
		g.Go(func() error {
			c, err := s.contacts.Lookup(gctx, company, rootURL)
			if err != nil {
				s.logger.Warn("Contact lookup failed", zap.String("company", company), zap.Error(err))
				return nil
			}
			contact = c
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	corpus := &Corpus{Links: selected, Contact: contact}
	var parts []string
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		corpus.Pages = append(corpus.Pages, p)
		parts = append(parts, fmt.Sprintf("## %s :: %s\n%s", strings.ToUpper(p.Type), p.URL, p.Text))
	}
	if contact != nil {
		parts = append(parts, contactSection(contact))
	}
	corpus.Text = strings.Join(parts, "\n\n")
	return corpus, nil
}

func contactSection(c *models.Contact) string {
	lines := []string{"## CONTACT"}
	if c.Name != "" {
		lines = append(lines, "Name: "+c.Name)
	}
	if c.Address != "" {
		lines = append(lines, "Address: "+c.Address)
	}
	if c.Phone != "" {
		lines = append(lines, "Phone: "+c.Phone)
	}
	if c.Website != "" {
		lines = append(lines, "Website: "+c.Website)
	}
	return strings.Join(lines, "\n")
}

func (s *BrochureService) chatRequest(company, rootURL, corpus string) ChatRequest {
	userPrompt := fmt.Sprintf("Company name: %s\nWebsite: %s\n\n"+
		"Below is text extracted from relevant pages. Write the brochure now.\n\n%s",
		company, rootURL, corpus)

	return ChatRequest{
		Model: s.opts.Model,
		Messages: []Message{
			{Role: RoleSystem, Content: fmt.Sprintf(brochureSystemPrompt, s.opts.WordTarget)},
			{Role: RoleUser, Content: userPrompt},
		},
		Temperature: s.opts.Temperature,
	}
}

// Generate writes a brochure for the company in one completion call.
func (s *BrochureService) Generate(ctx context.Context, company, rootURL string) (*models.Brochure, error) {
	return s.generate(ctx, company, rootURL, func(ctx context.Context, req ChatRequest) (string, error) {
		s.logger.Info("Generating brochure via LLM", zap.String("model", req.Model))
		return s.llm.Complete(ctx, req)
	})
}

// Stream writes a brochure for the company, passing each chunk to onChunk as
// the model produces it.
func (s *BrochureService) Stream(ctx context.Context, company, rootURL string, onChunk func(chunk string) error) (*models.Brochure, error) {
	return s.generate(ctx, company, rootURL, func(ctx context.Context, req ChatRequest) (string, error) {
		s.logger.Info("Streaming brochure via LLM", zap.String("model", req.Model))
		return s.llm.Stream(ctx, req, onChunk)
	})
}

func (s *BrochureService) generate(ctx context.Context, company, rootURL string, write func(context.Context, ChatRequest) (string, error)) (*models.Brochure, error) {
	if err := ValidateRequest(company, rootURL); err != nil {
		return nil, err
	}
	company = strings.TrimSpace(company)
	rootURL = strings.TrimSpace(rootURL)

	corpus, err := s.GatherCorpus(ctx, company, rootURL)
	if err != nil {
		return nil, err
	}

	markdown, err := write(ctx, s.chatRequest(company, rootURL, corpus.Text))
	if err != nil {
		return nil, err
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, apierrors.NewExternalError("llm", fmt.Errorf("model returned an empty brochure"))
	}

	brochure := &models.Brochure{
		ID:        s.newID(),
		Company:   company,
		URL:       rootURL,
		Model:     s.opts.Model,
		Markdown:  markdown,
		Links:     corpus.Links,
		Contact:   corpus.Contact,
		CreatedAt: s.now().UTC(),
	}

	if s.store != nil {
		if err := s.store.Save(ctx, brochure); err != nil {
			return nil, fmt.Errorf("error saving brochure: %w", err)
		}
	}

	s.logger.Info("Brochure generated",
		zap.String("company", company),
		zap.Int("pages", len(corpus.Pages)),
		zap.Int("chars", len(markdown)))
	return brochure, nil
}

// LookupContact returns contact details for a company when lookups are enabled.
func (s *BrochureService) LookupContact(ctx context.Context, company, rootURL string) (*models.Contact, error) {
	if err := ValidateRequest(company, rootURL); err != nil {
		return nil, err
	}
	if s.contacts == nil {
		return nil, apierrors.NewNotFoundError("contact lookup is not configured")
	}
	return s.contacts.Lookup(ctx, strings.TrimSpace(company), strings.TrimSpace(rootURL))
}

// GetBrochure returns the latest stored brochure for a company.
func (s *BrochureService) GetBrochure(ctx context.Context, company string) (*models.Brochure, error) {
	if s.store == nil {
		return nil, apierrors.NewNotFoundError("brochure storage is not configured")
	}
	return s.store.Get(ctx, company)
}

// ListBrochures returns the slugs of companies with a stored brochure.
func (s *BrochureService) ListBrochures(ctx context.Context) ([]string, error) {
	if s.store == nil {
		return []string{}, nil
	}
	return s.store.List(ctx)
}
