package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

const EmbeddingCacheTTL = 24 * time.Hour

// CacheService caches query embeddings keyed by model and text hash.
type CacheService struct {
	client *Client
	ttl    time.Duration
}

func NewCacheService(client *Client) *CacheService {
	return &CacheService{client: client, ttl: EmbeddingCacheTTL}
}

func embeddingKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", model, hex.EncodeToString(sum[:]))
}

func (s *CacheService) CacheEmbedding(ctx context.Context, model, text string, embedding []float32) error {
	return s.client.SetJSON(ctx, embeddingKey(model, text), embedding, s.ttl)
}

// GetEmbedding returns nil without error on a cache miss.
func (s *CacheService) GetEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	var embedding []float32
	found, err := s.client.GetJSON(ctx, embeddingKey(model, text), &embedding)
	if err != nil || !found {
		return nil, err
	}
	return embedding, nil
}
