package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/model"
)

func TestListEmbeddedCandidatesOrderAndCap(t *testing.T) {
	s := memory.New()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.AddArticle(model.KnowledgeArticle{ID: 1, IsActive: true, Embedding: []float32{1}, UpdatedAt: base})
	s.AddArticle(model.KnowledgeArticle{ID: 2, IsActive: true, Embedding: []float32{1}, UpdatedAt: base.Add(time.Hour)})
	s.AddArticle(model.KnowledgeArticle{ID: 3, IsActive: true, Embedding: []float32{1}, UpdatedAt: base.Add(time.Hour)})
	s.AddArticle(model.KnowledgeArticle{ID: 4, IsActive: false, Embedding: []float32{1}, UpdatedAt: base.Add(2 * time.Hour)})
	s.AddArticle(model.KnowledgeArticle{ID: 5, IsActive: true, UpdatedAt: base.Add(3 * time.Hour)})

	got, err := s.ListEmbeddedCandidates(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)
	assert.Equal(t, int64(2), got[1].ID)
}

func TestProfileNotFound(t *testing.T) {
	s := memory.New()
	_, err := s.GetProfile(context.Background(), 42)
	assert.ErrorIs(t, err, adapters.ErrNotFound)

	require.NoError(t, s.SaveProfile(context.Background(), model.NewUserProfile(42)))
	p, err := s.GetProfile(context.Background(), 42)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.PriceSensitivity, 1e-9)
}

func TestRecentLogsNewestFirst(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for i := range 3 {
		_, err := s.AppendRecommendationLog(ctx, model.RecommendationLogEntry{UserID: 7, RawQuestion: string(rune('a' + i))})
		require.NoError(t, err)
	}
	_, err := s.AppendRecommendationLog(ctx, model.RecommendationLogEntry{UserID: 8, RawQuestion: "other"})
	require.NoError(t, err)

	logs, err := s.ListRecentRecommendationLogs(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "c", logs[0].RawQuestion)
	assert.Equal(t, "b", logs[1].RawQuestion)
}

func TestUpsertArticleReportsChange(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	id, changed, err := s.UpsertArticle(ctx, model.KnowledgeArticle{Title: "洗牙", Content: "a"})
	require.NoError(t, err)
	assert.True(t, changed)

	again, changed, err := s.UpsertArticle(ctx, model.KnowledgeArticle{Title: "洗牙", Content: "a"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.False(t, changed)

	_, changed, err = s.UpsertArticle(ctx, model.KnowledgeArticle{Title: "洗牙", Content: "b"})
	require.NoError(t, err)
	assert.True(t, changed)
}
