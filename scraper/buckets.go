package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/go-scrape-parts/config"
	"github.com/aluiziolira/go-scrape-parts/models"
)

// BucketSource resolves the value buckets of one attribute within a category.
type BucketSource interface {
	FetchBuckets(ctx context.Context, categoryID string, attr config.Attribute) (models.AttributeBuckets, error)
}

// Enumerator fetches attribute buckets from the search API. It neither retries
// challenges nor caches results; the controller owns both.
type Enumerator struct {
	client Poster
}

// NewEnumerator returns an Enumerator sending requests through client.
func NewEnumerator(client Poster) *Enumerator {
	return &Enumerator{client: client}
}

type graphQLError struct {
	Message string `json:"message"`
}

type bucketEnvelope struct {
	Data *struct {
		Search *struct {
			Hits     int `json:"hits"`
			SpecAggs []struct {
				Buckets []models.Bucket `json:"buckets"`
			} `json:"spec_aggs"`
		} `json:"search"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchBuckets returns the ordered buckets of attr. Any response without a bucket list,
// GraphQL errors included, is reported as ErrAntiBotBlock.
func (e *Enumerator) FetchBuckets(ctx context.Context, categoryID string, attr config.Attribute) (models.AttributeBuckets, error) {
	out := models.AttributeBuckets{Attribute: attr.Name, Key: attr.Key}

	body, err := e.client.Post(ctx, BucketQuery(categoryID, attr.Key))
	if err != nil {
		return out, err
	}

	var env bucketEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return out, ErrAntiBotBlock{Err: fmt.Errorf("decode buckets for %s: %w", attr.Name, err)}
	}
	if env.Data == nil {
		if len(env.Errors) > 0 {
			return out, ErrAntiBotBlock{Err: fmt.Errorf("buckets for %s: %s", attr.Name, env.Errors[0].Message)}
		}
		return out, ErrAntiBotBlock{Err: fmt.Errorf("buckets for %s: response has no data", attr.Name)}
	}
	if env.Data.Search == nil || len(env.Data.Search.SpecAggs) == 0 || env.Data.Search.SpecAggs[0].Buckets == nil {
		return out, ErrAntiBotBlock{Err: errors.New("bucket list missing for " + attr.Name)}
	}

	out.Buckets = env.Data.Search.SpecAggs[0].Buckets
	if len(out.Buckets) == 0 {
		slog.Warn("attribute has no buckets in category",
			slog.String("attribute", attr.Name),
			slog.String("category_id", categoryID),
		)
	}
	return out, nil
}
