package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go"
	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/models"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// FirebaseService stores brochures in the Firebase Storage bucket of the
// configured project.
type FirebaseService struct {
	app    *firebase.App
	bucket *storage.BucketHandle
	logger *zap.Logger
}

func NewFirebaseService(ctx context.Context, credentialsFilePath, bucketName string, logger *zap.Logger) (*FirebaseService, error) {
	var opts []option.ClientOption
	if credentialsFilePath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFilePath))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{StorageBucket: bucketName}, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %v", err)
	}

	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase storage client: %v", err)
	}

	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("error opening storage bucket %s: %v", bucketName, err)
	}

	fs := newBucketStore(bucket, logger)
	fs.app = app
	return fs, nil
}

func newBucketStore(bucket *storage.BucketHandle, logger *zap.Logger) *FirebaseService {
	return &FirebaseService{bucket: bucket, logger: logger}
}

// Save writes <slug>/brochure.md and then <slug>/brochure.json. Get and List
// only read the JSON object, so it is written last; when that write fails the
// Markdown object is removed again.
func (fs *FirebaseService) Save(ctx context.Context, brochure *models.Brochure) error {
	slug, err := Slugify(brochure.Company)
	if err != nil {
		return err
	}

	metadata, err := json.Marshal(brochure)
	if err != nil {
		return fmt.Errorf("error marshaling brochure data: %v", err)
	}

	mdName := slug + "/" + markdownObject
	if err := fs.write(ctx, mdName, "text/markdown; charset=utf-8", []byte(brochure.Markdown+"\n")); err != nil {
		return err
	}
	if err := fs.write(ctx, slug+"/"+metadataObject, "application/json", metadata); err != nil {
		if delErr := fs.bucket.Object(mdName).Delete(ctx); delErr != nil {
			fs.logger.Warn("Failed to remove orphaned brochure", zap.String("object", mdName), zap.Error(delErr))
		}
		return err
	}

	fs.logger.Info("Brochure stored in bucket", zap.String("company", brochure.Company), zap.String("prefix", slug))
	return nil
}

func (fs *FirebaseService) write(ctx context.Context, objectName, contentType string, data []byte) error {
	wc := fs.bucket.Object(objectName).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return apierrors.NewExternalError("storage", fmt.Errorf("error writing %s: %w", objectName, err))
	}
	if err := wc.Close(); err != nil {
		return apierrors.NewExternalError("storage", fmt.Errorf("error closing writer for %s: %w", objectName, err))
	}
	return nil
}

func (fs *FirebaseService) Get(ctx context.Context, company string) (*models.Brochure, error) {
	slug, err := Slugify(company)
	if err != nil {
		return nil, err
	}

	objectName := slug + "/" + metadataObject
	rc, err := fs.bucket.Object(objectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("no brochure stored for %s", company))
	}
	if err != nil {
		return nil, apierrors.NewExternalError("storage", fmt.Errorf("error creating reader: %w", err))
	}
	defer rc.Close()

	var brochure models.Brochure
	if err := json.NewDecoder(rc).Decode(&brochure); err != nil {
		return nil, fmt.Errorf("error decoding brochure data: %v", err)
	}

	fs.logger.Debug("Brochure retrieved", zap.String("object", objectName))
	return &brochure, nil
}

func (fs *FirebaseService) List(ctx context.Context) ([]string, error) {
	var companies []string
	it := fs.bucket.Objects(ctx, &storage.Query{MatchGlob: "**/" + metadataObject})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierrors.NewExternalError("storage", fmt.Errorf("error listing brochures: %w", err))
		}
		if slug, ok := strings.CutSuffix(attrs.Name, "/"+metadataObject); ok {
			companies = append(companies, slug)
		}
	}
	sort.Strings(companies)
	return companies, nil
}
