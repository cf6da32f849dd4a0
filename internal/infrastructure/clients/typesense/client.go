package typesense

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/typesense/typesense-go/v2/typesense"
	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"

	"github.com/trialworks/eligibility-etl/pkg/config"
	"github.com/trialworks/eligibility-etl/pkg/retry"
)

// Client represents a Typesense client
type Client struct {
	client *typesense.Client
}

// NewClient creates a new Typesense client with exponential backoff retry
func NewClient(cfg *config.TypesenseConfig) (*Client, error) {
	client := typesense.NewClient(
		typesense.WithServer(cfg.URL),
		typesense.WithAPIKey(cfg.APIKey),
		typesense.WithConnectionTimeout(5*time.Second),
	)

	retryConfig := retry.DefaultConfig()
	err := retry.DoWithLog(
		context.Background(),
		retryConfig,
		"Typesense",
		func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_, err := client.Health(ctx, 2*time.Second)
			return err
		},
		func(attempt int, err error, nextDelay time.Duration) {
			log.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", nextDelay).
				Msg("Typesense connection attempt failed, retrying")
		},
	)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to Typesense after retries: %w", err)
	}

	log.Info().Str("url", cfg.URL).Msg("Connected to Typesense")
	return &Client{client: client}, nil
}

// Client returns the underlying Typesense client
func (c *Client) Client() *typesense.Client {
	return c.client
}

// EligibilitySchema returns the collection schema for eligibility documents.
// Criteria lists are optional: the schema mirrors the document shape, not
// the write filter, so a reader can tell a filtered corpus from a lossy one.
func EligibilitySchema(collection string) *api.CollectionSchema {
	return &api.CollectionSchema{
		Name: collection,
		Fields: []api.Field{
			{
				Name: "study_id",
				Type: "string",
			},
			{
				Name:     "minimum_age",
				Type:     "string",
				Optional: pointer.True(),
			},
			{
				Name:     "maximum_age",
				Type:     "string",
				Optional: pointer.True(),
			},
			{
				Name:  "gender",
				Type:  "string",
				Facet: pointer.True(),
			},
			{
				Name: "inclusion_criteria",
				Type: "string[]",
			},
			{
				Name:     "exclusion_criteria",
				Type:     "string[]",
				Optional: pointer.True(),
			},
		},
	}
}

// EnsureCollection creates the eligibility collection if it does not exist
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	collections, err := c.client.Collections().Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve collections: %w", err)
	}

	for _, col := range collections {
		if col.Name == collection {
			log.Debug().Str("collection", collection).Msg("Typesense collection already exists")
			return nil
		}
	}

	if _, err := c.client.Collections().Create(ctx, EligibilitySchema(collection)); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}

	log.Info().Str("collection", collection).Msg("Created Typesense collection")
	return nil
}

// DropCollection deletes the collection; used by the -reset flag
func (c *Client) DropCollection(ctx context.Context, collection string) error {
	_, err := c.client.Collection(collection).Delete(ctx)
	return err
}
