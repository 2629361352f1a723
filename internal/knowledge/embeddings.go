package knowledge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/embedder"
	"github.com/hsn0918/dentalrag/internal/logger"
)

const DefaultBatchSize = 32

// BatchEncoder is the embedding capability the generator needs.
type BatchEncoder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateRequest selects articles: explicit ids win, then All, otherwise
// only active articles that have no embedding yet.
type GenerateRequest struct {
	ArticleIDs []int64
	All        bool
}

type GenerateReport struct {
	Selected int
	Updated  int
	Failed   []int64
	Duration time.Duration
}

// EmbeddingGenerator is the out-of-band job that (re)computes article embeddings.
type EmbeddingGenerator struct {
	store     adapters.KnowledgeStore
	encoder   BatchEncoder
	batchSize int
}

func NewEmbeddingGenerator(store adapters.KnowledgeStore, encoder BatchEncoder, batchSize int) *EmbeddingGenerator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &EmbeddingGenerator{store: store, encoder: encoder, batchSize: batchSize}
}

// Generate fails fast if the provider is unavailable; per-batch encode
// errors are recorded in the report and the job moves on.
func (g *EmbeddingGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateReport, error) {
	start := time.Now()
	articles, err := g.store.ListForEmbedding(ctx, req.ArticleIDs, !req.All)
	if err != nil {
		return GenerateReport{}, fmt.Errorf("select articles: %w", err)
	}

	report := GenerateReport{Selected: len(articles)}
	log := logger.GetLogger().With(zap.Int("selected", len(articles)), zap.Bool("all", req.All))
	log.Info("开始生成知识条目向量")

	for begin := 0; begin < len(articles); begin += g.batchSize {
		end := min(begin+g.batchSize, len(articles))
		batch := articles[begin:end]

		texts := make([]string, len(batch))
		for i, a := range batch {
			texts[i] = a.EmbeddingText()
		}

		vecs, err := g.encoder.EncodeBatch(ctx, texts)
		if err != nil {
			if errors.Is(err, embedder.ErrUnavailable) {
				return report, fmt.Errorf("embedding provider: %w", err)
			}
			log.Error("批量向量化失败", zap.Int("offset", begin), zap.Error(err))
			for _, a := range batch {
				report.Failed = append(report.Failed, a.ID)
			}
			continue
		}
		if len(vecs) != len(batch) {
			log.Error("向量数量与条目数量不一致",
				zap.Int("offset", begin), zap.Int("expected", len(batch)), zap.Int("got", len(vecs)))
			for _, a := range batch {
				report.Failed = append(report.Failed, a.ID)
			}
			continue
		}

		for i, a := range batch {
			if err := g.store.UpdateEmbedding(ctx, a.ID, vecs[i]); err != nil {
				log.Error("保存向量失败", zap.Int64("article_id", a.ID), zap.Error(err))
				report.Failed = append(report.Failed, a.ID)
				continue
			}
			report.Updated++
		}
	}

	report.Duration = time.Since(start)
	log.Info("知识条目向量生成完成",
		zap.Int("updated", report.Updated),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration))
	return report, nil
}
