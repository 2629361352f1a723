// Package knowledge retrieves dental knowledge articles for a question and
// maintains their embeddings.
package knowledge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/utils"
)

const (
	DefaultSimilarityThreshold = 0.3
	DefaultMaxCandidates       = 200
)

type Mode string

const (
	ModeNone    Mode = "none"
	ModeVector  Mode = "vector"
	ModeLexical Mode = "lexical"
)

// 回退原因，记录在 Result.FallbackReason 中
const (
	ReasonNotPreferred    = "vector_not_preferred"
	ReasonNoEmbeddings    = "no_embedded_articles"
	ReasonEncodeFailed    = "encode_failed"
	ReasonNoVectorMatches = "no_vector_matches"
)

type Result struct {
	Articles       []model.KnowledgeArticle
	Mode           Mode
	FallbackReason string
}

// Encoder is the embedding capability the retriever needs.
type Encoder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

type Retriever struct {
	store         adapters.KnowledgeStore
	encoder       Encoder
	threshold     float64
	maxCandidates int
}

type Option func(*Retriever)

func WithThreshold(t float64) Option { return func(r *Retriever) { r.threshold = t } }

func WithMaxCandidates(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxCandidates = n
		}
	}
}

// NewRetriever builds a retriever; encoder may be nil for lexical-only use.
func NewRetriever(store adapters.KnowledgeStore, encoder Encoder, opts ...Option) *Retriever {
	r := &Retriever{
		store:         store,
		encoder:       encoder,
		threshold:     DefaultSimilarityThreshold,
		maxCandidates: DefaultMaxCandidates,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most limit active articles for question. Embedding
// failures never surface as errors; only store failures do.
func (r *Retriever) Retrieve(ctx context.Context, question string, limit int, preferVector bool) (Result, error) {
	if limit <= 0 {
		return Result{Mode: ModeNone}, nil
	}
	active, err := r.store.CountActive(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count active articles: %w", err)
	}
	if active == 0 {
		return Result{Mode: ModeNone}, nil
	}

	reason := ReasonNotPreferred
	if preferVector && r.encoder != nil {
		articles, why, err := r.retrieveByVector(ctx, question, limit)
		if err != nil {
			return Result{}, err
		}
		if len(articles) > 0 {
			return Result{Articles: articles, Mode: ModeVector}, nil
		}
		reason = why
	}

	articles, err := r.retrieveByKeywords(ctx, question, limit)
	if err != nil {
		return Result{}, err
	}
	return Result{Articles: articles, Mode: ModeLexical, FallbackReason: reason}, nil
}

func (r *Retriever) retrieveByVector(ctx context.Context, question string, limit int) ([]model.KnowledgeArticle, string, error) {
	embedded, err := r.store.CountActiveEmbedded(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("count embedded articles: %w", err)
	}
	if embedded == 0 {
		return nil, ReasonNoEmbeddings, nil
	}

	start := time.Now()
	queryVec, err := r.encoder.Encode(ctx, question)
	if err != nil {
		logger.GetLogger().Warn("问题向量化失败，降级为关键词检索", zap.Error(err))
		return nil, ReasonEncodeFailed, nil
	}

	if embedded > r.maxCandidates {
		logger.GetLogger().Debug("已向量化条目超过候选上限，仅对最近更新的条目打分",
			zap.Int("embedded", embedded), zap.Int("cap", r.maxCandidates))
	}
	candidates, err := r.store.ListEmbeddedCandidates(ctx, r.maxCandidates)
	if err != nil {
		return nil, "", fmt.Errorf("list vector candidates: %w", err)
	}

	scored := RankBySimilarity(queryVec, candidates, r.threshold)
	if len(scored) > limit {
		scored = scored[:limit]
	}
	logger.GetLogger().Debug("向量检索完成",
		zap.Int("candidates", len(candidates)),
		zap.Int("matched", len(scored)),
		zap.Duration("duration", time.Since(start)))

	if len(scored) == 0 {
		return nil, ReasonNoVectorMatches, nil
	}
	out := make([]model.KnowledgeArticle, len(scored))
	for i, s := range scored {
		out[i] = s.Article
	}
	return out, "", nil
}

func (r *Retriever) retrieveByKeywords(ctx context.Context, question string, limit int) ([]model.KnowledgeArticle, error) {
	articles, err := r.store.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active articles: %w", err)
	}
	sort.SliceStable(articles, func(i, j int) bool { return articles[i].ID < articles[j].ID })
	return MatchLexical(articles, question, limit), nil
}

// MatchLexical returns up to limit articles in the given order whose
// question pattern, title or content contains a keyword of question
// (case-insensitive) or the whole question.
func MatchLexical(articles []model.KnowledgeArticle, question string, limit int) []model.KnowledgeArticle {
	keywords := utils.KeywordsOrQuery(question)
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	var out []model.KnowledgeArticle
	seen := make(map[int64]bool)
	for _, a := range articles {
		if len(out) >= limit {
			break
		}
		if seen[a.ID] {
			continue
		}
		fields := []string{a.QuestionPattern, a.Title, a.Content}
		if articleMatches(fields, lowered, strings.ToLower(question)) {
			seen[a.ID] = true
			out = append(out, a)
		}
	}
	return out
}

func articleMatches(fields, keywords []string, question string) bool {
	for _, f := range fields {
		lf := strings.ToLower(f)
		if question != "" && strings.Contains(lf, question) {
			return true
		}
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lf, kw) {
				return true
			}
		}
	}
	return false
}

type ScoredArticle struct {
	Article    model.KnowledgeArticle
	Similarity float64
}

// RankBySimilarity scores every candidate against query in one pass, keeps
// similarities >= threshold and orders them descending. Equal scores keep
// ascending id order.
func RankBySimilarity(query []float32, candidates []model.KnowledgeArticle, threshold float64) []ScoredArticle {
	pool := make([]model.KnowledgeArticle, 0, len(candidates))
	seen := make(map[int64]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.ID] {
			seen[c.ID] = true
			pool = append(pool, c)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })

	vectors := make([][]float32, len(pool))
	for i, a := range pool {
		vectors[i] = a.Embedding
	}
	sims := BatchCosine(query, vectors)

	var scored []ScoredArticle
	for i, sim := range sims {
		if math.IsNaN(sim) || sim < threshold {
			continue
		}
		scored = append(scored, ScoredArticle{Article: pool[i], Similarity: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	return scored
}

// BatchCosine computes cosine(query, row) for every row with the query norm
// computed once. Zero-norm rows score 0; rows of a different length score NaN.
func BatchCosine(query []float32, rows [][]float32) []float64 {
	out := make([]float64, len(rows))
	qNorm := norm(query)
	for i, row := range rows {
		if len(row) != len(query) {
			out[i] = math.NaN()
			continue
		}
		rNorm := norm(row)
		if qNorm == 0 || rNorm == 0 {
			out[i] = 0
			continue
		}
		var dot float64
		for j := range row {
			dot += float64(query[j]) * float64(row[j])
		}
		out[i] = dot / (qNorm * rNorm)
	}
	return out
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
