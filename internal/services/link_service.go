package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/SirClappington/brochure-backend/internal/models"
	"go.uber.org/zap"
)

// LandingType labels the company's root page.
const LandingType = "landing"

const linkSystemPrompt = `You are given a list of links from a company's website.
Select only the links that are most relevant for a company brochure.
Good candidates: About, Company, Products/Services, Solutions, Customers, Case Studies,
Blog (optional), Careers/Jobs, Team, Contact.
Avoid: privacy, terms, cookie policy, login, signup, press release archive, unrelated.

Respond ONLY with JSON of the form:
{
  "links": [
    {"type": "about", "url": "https://example.com/about"},
    {"type": "careers", "url": "https://example.com/careers"}
  ]
}
`

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Heuristic categories, checked in order against lower-cased URL paths.
var linkPatterns = []struct {
	linkType string
	pattern  *regexp.Regexp
}{
	{"about", regexp.MustCompile(`/(about|company|who-we-are|our-story)(/|$)`)},
	{"products", regexp.MustCompile(`/(product|products|services|solutions)(/|$)`)},
	{"customers", regexp.MustCompile(`/(customers|case-studies|case-study|stories|clients)(/|$)`)},
	{"careers", regexp.MustCompile(`/(careers|jobs|join|join-us|work-with-us)(/|$)`)},
	{"contact", regexp.MustCompile(`/(contact|get-in-touch)(/|$)`)},
}

// LinkSelector picks the pages of a company website worth reading for a
// brochure.
type LinkSelector struct {
	llm            LLMClient
	model          string
	maxLinks       int
	maxPages       int
	sameDomainOnly bool
	logger         *zap.Logger
}

func NewLinkSelector(llm LLMClient, model string, maxLinks, maxPages int, sameDomainOnly bool, logger *zap.Logger) *LinkSelector {
	return &LinkSelector{
		llm:            llm,
		model:          model,
		maxLinks:       maxLinks,
		maxPages:       maxPages,
		sameDomainOnly: sameDomainOnly,
		logger:         logger,
	}
}

// Select asks the model which links matter and falls back to URL heuristics
// when the model fails or answers with something unusable. The landing page
// is always first and the result never exceeds maxPages.
func (s *LinkSelector) Select(ctx context.Context, rootURL string, links []string) []models.Link {
	if len(links) == 0 {
		return []models.Link{{Type: LandingType, URL: rootURL}}
	}

	selected, err := s.selectWithLLM(ctx, rootURL, links)
	if err != nil {
		s.logger.Warn("LLM link selection failed; falling back to heuristic", zap.Error(err))
		selected = HeuristicLinks(rootURL, links)
	}
	return withLanding(rootURL, selected, s.maxPages)
}

func (s *LinkSelector) selectWithLLM(ctx context.Context, rootURL string, links []string) ([]models.Link, error) {
	if len(links) > s.maxLinks && s.maxLinks > 0 {
		links = links[:s.maxLinks]
	}
	userPrompt := fmt.Sprintf("Root website: %s\n"+
		"Here are links found on the website. Choose only brochure-relevant links.\n\n%s",
		rootURL, strings.Join(links, "\n"))

	s.logger.Info("Selecting relevant links via LLM", zap.String("model", s.model), zap.Int("candidates", len(links)))
	content, err := s.llm.Complete(ctx, ChatRequest{
		Model: s.model,
		Messages: []Message{
			{Role: RoleSystem, Content: linkSystemPrompt},
			{Role: RoleUser, Content: userPrompt},
		},
		JSON: true,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Links []json.RawMessage `json:"links"`
	}
	if err := SafeJSON(content, &parsed); err != nil {
		return nil, err
	}
	if parsed.Links == nil {
		return nil, fmt.Errorf("response has no links list")
	}

	var out []models.Link
	for _, raw := range parsed.Links {
		var item struct {
			Type any `json:"type"`
			URL  any `json:"url"`
		}
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}

		linkType := strings.TrimSpace(stringify(item.Type))
		if linkType == "" {
			linkType = "page"
		}
		u := strings.TrimSpace(stringify(item.URL))
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			continue
		}
		if s.sameDomainOnly && !SameHost(rootURL, u) {
			continue
		}
		out = append(out, models.Link{Type: linkType, URL: u})
	}

	s.logger.Info("LLM selected links", zap.Int("count", len(out)))
	return out, nil
}

// SafeJSON decodes text into v, tolerating prose around the JSON by retrying
// with the outermost {...} span.
func SafeJSON(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return fmt.Errorf("no JSON object in response")
	}
	if err := json.Unmarshal([]byte(match), v); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// HeuristicLinks picks at most one link per brochure category by URL path.
// The root is returned when nothing matches.
func HeuristicLinks(rootURL string, links []string) []models.Link {
	var selected []models.Link
	for _, p := range linkPatterns {
		for _, link := range links {
			u, err := url.Parse(link)
			if err != nil {
				continue
			}
			if p.pattern.MatchString(strings.ToLower(u.Path)) {
				selected = append(selected, models.Link{Type: p.linkType, URL: link})
				break
			}
		}
	}

	if len(selected) == 0 {
		selected = append(selected, models.Link{Type: LandingType, URL: rootURL})
	}
	return selected
}

func withLanding(rootURL string, links []models.Link, maxPages int) []models.Link {
	out := []models.Link{{Type: LandingType, URL: rootURL}}
	for _, l := range links {
		if l.URL == rootURL {
			continue
		}
		out = append(out, l)
	}
	if maxPages > 0 && len(out) > maxPages {
		out = out[:maxPages]
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
