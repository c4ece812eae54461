// Package config loads brochure generator settings from an optional YAML
// file, a .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when BROCHURE_CONFIG is unset.
const DefaultPath = "brochure.yaml"

// Built-in model settings. The defaults target a local Ollama server through
// its OpenAI-compatible endpoint.
const (
	DefaultBaseURL     = "http://localhost:11434/v1"
	DefaultModel       = "gemma3:latest"
	DefaultGeminiModel = "gemini-2.5-flash"
)

// Configuration validation errors.
var (
	ErrInvalidTimeout     = errors.New("scrape.timeout must be positive")
	ErrInvalidMaxLinks    = errors.New("scrape.max_links must be at least 1")
	ErrInvalidMaxPages    = errors.New("scrape.max_pages must be at least 1")
	ErrInvalidMaxChars    = errors.New("scrape.max_chars_per_page must be at least 1")
	ErrInvalidConcurrency = errors.New("scrape.concurrency must be at least 1")
	ErrInvalidRate        = errors.New("scrape.requests_per_second must be positive")
	ErrInvalidFetcher     = errors.New("scrape.fetcher must be one of: http, browser, firecrawl")
	ErrMissingFirecrawl   = errors.New("scrape.firecrawl_api_key is required for the firecrawl fetcher")
	ErrInvalidProvider    = errors.New("llm.provider must be one of: openai, ollama, gemini")
	ErrMissingModel       = errors.New("llm.model is required")
	ErrMissingGeminiKey   = errors.New("llm.gemini_api_key (GEMINI_API_KEY) is required for the gemini provider")
	ErrInvalidGeminiModel = errors.New("llm.model must be a Gemini model name for the gemini provider")
	ErrInvalidWordTarget  = errors.New("llm.word_target must be at least 1")
	ErrInvalidLogLevel    = errors.New("logging.level must be one of: debug, info, warn, error")
)

// Config is the complete generator configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	LLM     LLMConfig     `yaml:"llm"`
	Places  PlacesConfig  `yaml:"places"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port string `yaml:"port"`
}

// ScrapeConfig controls how company websites are fetched.
type ScrapeConfig struct {
	Fetcher         string        `yaml:"fetcher"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxLinks        int           `yaml:"max_links"`
	MaxPages        int           `yaml:"max_pages"`
	MaxCharsPerPage int           `yaml:"max_chars_per_page"`
	SameDomainOnly  bool          `yaml:"same_domain_only"`
	UserAgent       string        `yaml:"user_agent"`
	Concurrency     int           `yaml:"concurrency"`
	RequestsPerSec  float64       `yaml:"requests_per_second"`
	FirecrawlAPIKey string        `yaml:"firecrawl_api_key"`
	FirecrawlURL    string        `yaml:"firecrawl_url"`
	BrowserURL      string        `yaml:"browser_url"`
}

// LLMConfig selects and configures the chat model provider. GeminiAPIKey is
// used instead of APIKey when Provider is gemini.
type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	Model        string        `yaml:"model"`
	WordTarget   int           `yaml:"word_target"`
	Temperature  float64       `yaml:"temperature"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ResolveProvider swaps Ollama-oriented defaults for ones that suit the
// selected provider. It must run again whenever Provider changes after Load.
func (l *LLMConfig) ResolveProvider() {
	if l.Provider != "gemini" {
		return
	}
	if l.Model == DefaultModel {
		l.Model = DefaultGeminiModel
	}
	if l.BaseURL == DefaultBaseURL {
		l.BaseURL = ""
	}
}

// Key returns the API key for the selected provider.
func (l LLMConfig) Key() string {
	if l.Provider == "gemini" {
		return l.GeminiAPIKey
	}
	return l.APIKey
}

// PlacesConfig enables contact lookups through Google Places.
type PlacesConfig struct {
	APIKey string `yaml:"api_key"`
}

// StorageConfig chooses where brochures are persisted. A bucket takes
// precedence over a local directory.
type StorageConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Bucket          string `yaml:"bucket"`
	OutputDir       string `yaml:"output_dir"`
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Scrape: ScrapeConfig{
			Fetcher:         "http",
			Timeout:         15 * time.Second,
			MaxLinks:        200,
			MaxPages:        6,
			MaxCharsPerPage: 8000,
			SameDomainOnly:  true,
			UserAgent:       "Mozilla/5.0 (compatible; BrochureGenerator/1.0; +https://example.com)",
			Concurrency:     4,
			RequestsPerSec:  5,
			FirecrawlURL:    "https://api.firecrawl.dev",
		},
		LLM: LLMConfig{
			Provider:    "openai",
			BaseURL:     DefaultBaseURL,
			APIKey:      "ollama",
			Model:       DefaultModel,
			WordTarget:  500,
			Temperature: 0.7,
			Timeout:     5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// LoadDotEnv loads a .env file into the environment when one is present.
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Load reads the YAML file at path (a missing file is not an error), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("BROCHURE_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Server.Port, "PORT")

	setString(&c.Scrape.Fetcher, "FETCHER")
	setString(&c.Scrape.UserAgent, "SCRAPE_USER_AGENT")
	setString(&c.Scrape.FirecrawlAPIKey, "FIRECRAWL_API_KEY")
	setString(&c.Scrape.BrowserURL, "BROWSER_URL")
	if err := setInt(&c.Scrape.MaxLinks, "SCRAPE_MAX_LINKS"); err != nil {
		return err
	}
	if err := setInt(&c.Scrape.MaxPages, "SCRAPE_MAX_PAGES"); err != nil {
		return err
	}
	if err := setDuration(&c.Scrape.Timeout, "SCRAPE_TIMEOUT"); err != nil {
		return err
	}

	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "OLLAMA_BASE_URL")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	c.LLM.ResolveProvider()

	setString(&c.Places.APIKey, "GOOGLE_PLACES_API_KEY")

	setString(&c.Storage.CredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	setString(&c.Storage.Bucket, "FIREBASE_BUCKET_NAME")
	setString(&c.Storage.OutputDir, "BROCHURE_OUTPUT_DIR")

	setString(&c.Logging.Level, "LOG_LEVEL")
	return nil
}

// Validate checks the configuration for values the generator cannot run with.
func (c *Config) Validate() error {
	s := c.Scrape
	switch {
	case s.Timeout <= 0:
		return ErrInvalidTimeout
	case s.MaxLinks < 1:
		return ErrInvalidMaxLinks
	case s.MaxPages < 1:
		return ErrInvalidMaxPages
	case s.MaxCharsPerPage < 1:
		return ErrInvalidMaxChars
	case s.Concurrency < 1:
		return ErrInvalidConcurrency
	case s.RequestsPerSec <= 0:
		return ErrInvalidRate
	}

	switch s.Fetcher {
	case "http", "browser":
	case "firecrawl":
		if s.FirecrawlAPIKey == "" {
			return ErrMissingFirecrawl
		}
	default:
		return ErrInvalidFetcher
	}

	switch c.LLM.Provider {
	case "openai", "ollama", "gemini":
	default:
		return ErrInvalidProvider
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return ErrMissingModel
	}
	if c.LLM.Provider == "gemini" {
		if c.LLM.GeminiAPIKey == "" {
			return ErrMissingGeminiKey
		}
		// Ollama tags such as gemma3:latest are not valid Gemini model names.
		if strings.Contains(c.LLM.Model, ":") {
			return ErrInvalidGeminiModel
		}
	}
	if c.LLM.WordTarget < 1 {
		return ErrInvalidWordTarget
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}
