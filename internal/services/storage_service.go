package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/models"
	"go.uber.org/zap"
)

const (
	markdownObject = "brochure.md"
	metadataObject = "brochure.json"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// BrochureStore persists the latest brochure per company.
type BrochureStore interface {
	Save(ctx context.Context, brochure *models.Brochure) error
	Get(ctx context.Context, company string) (*models.Brochure, error)
	List(ctx context.Context) ([]string, error)
}

// Slugify turns a company name into a storage key.
func Slugify(company string) (string, error) {
	slug := strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(company), "-"), "-")
	if slug == "" {
		return "", apierrors.NewValidationError(fmt.Sprintf("company name %q has no usable characters", company))
	}
	return slug, nil
}

// FileStore keeps brochures under a local directory as
// <slug>/brochure.md and <slug>/brochure.json.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (fs *FileStore) Save(_ context.Context, brochure *models.Brochure) error {
	slug, err := Slugify(brochure.Company)
	if err != nil {
		return err
	}

	metadata, err := json.MarshalIndent(brochure, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling brochure: %w", err)
	}

	dir := filepath.Join(fs.dir, slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating brochure directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, markdownObject), []byte(brochure.Markdown+"\n"), 0o644); err != nil {
		return fmt.Errorf("error writing brochure: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metadataObject), metadata, 0o644); err != nil {
		return fmt.Errorf("error writing brochure metadata: %w", err)
	}

	fs.logger.Info("Brochure stored", zap.String("company", brochure.Company), zap.String("path", dir))
	return nil
}

func (fs *FileStore) Get(_ context.Context, company string) (*models.Brochure, error) {
	slug, err := Slugify(company)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(fs.dir, slug, metadataObject))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("no brochure stored for %s", company))
	}
	if err != nil {
		return nil, fmt.Errorf("error reading brochure: %w", err)
	}

	var brochure models.Brochure
	if err := json.Unmarshal(data, &brochure); err != nil {
		return nil, fmt.Errorf("error decoding brochure: %w", err)
	}
	return &brochure, nil
}

func (fs *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("error listing brochures: %w", err)
	}

	var companies []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(fs.dir, e.Name(), metadataObject)); err == nil {
			companies = append(companies, e.Name())
		}
	}
	sort.Strings(companies)
	return companies, nil
}
