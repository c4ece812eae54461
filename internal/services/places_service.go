package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/models"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

const (
	maxRetries = 3

	// Only the top search results are worth a details call.
	maxPlaceCandidates = 3
)

// retryBaseDelay is multiplied by the attempt number between retries.
var retryBaseDelay = time.Second

// PlacesClient looks up company contact details with Google Places.
type PlacesClient struct {
	Client *maps.Client
	logger *zap.Logger
}

func NewPlacesClient(apiKey string, logger *zap.Logger, opts ...maps.ClientOption) (*PlacesClient, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Maps client: %v", err)
	}
	return &PlacesClient{Client: client, logger: logger}, nil
}

// Lookup searches Places for the company and returns the details of the best
// match. Results whose website shares the company's host are preferred.
func (pc *PlacesClient) Lookup(ctx context.Context, company, website string) (*models.Contact, error) {
	var results []maps.PlacesSearchResult
	err := retry(ctx, func() error {
		r, err := pc.Client.TextSearch(ctx, &maps.TextSearchRequest{
			Query: company,
		})
		if err != nil {
			return err
		}
		results = r.Results
		return nil
	})
	if err != nil {
		return nil, apierrors.NewExternalError("places", err)
	}
	if len(results) == 0 {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("no place found for %s", company))
	}

	var best *maps.PlaceDetailsResult
	for i, place := range results {
		if i == maxPlaceCandidates {
			break
		}
		details, err := pc.GetPlaceDetails(ctx, place.PlaceID)
		if err != nil {
			pc.logger.Warn("Error getting place details", zap.String("place", place.Name), zap.Error(err))
			continue
		}
		if best == nil {
			best = details
		}
		if website != "" && details.Website != "" && SameHost(website, details.Website) {
			best = details
			break
		}
	}
	if best == nil {
		return nil, apierrors.NewNotFoundError(fmt.Sprintf("no place details found for %s", company))
	}

	pc.logger.Info("Found contact details", zap.String("company", company), zap.String("place", best.Name))
	return &models.Contact{
		Name:    best.Name,
		Address: best.FormattedAddress,
		Phone:   best.FormattedPhoneNumber,
		Website: best.Website,
	}, nil
}

func (pc *PlacesClient) GetPlaceDetails(ctx context.Context, placeID string) (*maps.PlaceDetailsResult, error) {
	var result *maps.PlaceDetailsResult
	err := retry(ctx, func() error {
		r, err := pc.Client.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
			PlaceID: placeID,
			Fields: []maps.PlaceDetailsFieldMask{
				maps.PlaceDetailsFieldMaskName,
				maps.PlaceDetailsFieldMaskFormattedAddress,
				maps.PlaceDetailsFieldMaskFormattedPhoneNumber,
				maps.PlaceDetailsFieldMaskWebsite,
			},
		})
		if err != nil {
			return err
		}
		result = &r
		return nil
	})
	return result, err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// permanent marks err as not worth retrying.
func permanent(err error) error {
	return &permanentError{err: err}
}

func retry(ctx context.Context, operation func() error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * retryBaseDelay):
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}
