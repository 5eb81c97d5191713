// Package enrichment hands freshly indexed chunks to the external metadata
// enrichment service.
package enrichment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

// RedisTrigger pushes enrichment requests onto a Redis list consumed by the
// enrichment service.
type RedisTrigger struct {
	client *redis.Client
	key    string
}

// NewRedisTrigger creates a trigger writing to the list at key
func NewRedisTrigger(client *redis.Client, key string) *RedisTrigger {
	return &RedisTrigger{client: client, key: key}
}

// Trigger enqueues req. An empty chunk set is not sent.
func (t *RedisTrigger) Trigger(ctx context.Context, req entities.EnrichmentRequest) error {
	if len(req.ChunkIDs) == 0 {
		return nil
	}
	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := t.client.LPush(ctx, t.key, b).Err(); err != nil {
		return fmt.Errorf("push enrichment request: %w", err)
	}
	return nil
}

// Noop discards enrichment requests
type Noop struct{}

// Trigger implements the enrichment trigger and does nothing
func (Noop) Trigger(ctx context.Context, req entities.EnrichmentRequest) error {
	return nil
}
