package recommend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/ranking"
)

const DefaultMinBehaviors = 20

type Strategy string

const (
	StrategyHybrid    Strategy = "hybrid"
	StrategyRuleBased Strategy = "rule_based"
)

const (
	ReasonInsufficientBehavior = "insufficient_behavior"
	ReasonPersonalization      = "personalization_failed"
	ReasonNoPersonalized       = "no_personalized_candidates"
)

type Weights struct {
	CF   float64
	CB   float64
	Base float64
}

var DefaultWeights = Weights{CF: 0.4, CB: 0.4, Base: 0.2}

// Outcome says which strategy produced the doctors and, for rule-based
// output, why personalization was skipped.
type Outcome struct {
	Doctors        []model.DoctorSummary
	Strategy       Strategy
	FallbackReason string
	Scores         []BlendedScore
}

type BlendedScore struct {
	DoctorID int64
	CF       float64
	CB       float64
	Base     float64
	Final    float64
}

// RuleRanker is the rule-based ranking the hybrid blends with and falls back to.
type RuleRanker interface {
	Rank(ctx context.Context, intent model.Intent, question string, articles []model.KnowledgeArticle, limit int) ([]model.DoctorSummary, error)
}

// Personalizer is one personalized candidate source.
type Personalizer interface {
	Recommend(ctx context.Context, userID int64, limit int) ([]ScoredDoctor, error)
}

type Hybrid struct {
	behaviors    adapters.BehaviorStore
	cf           Personalizer
	cb           Personalizer
	rules        RuleRanker
	weights      Weights
	minBehaviors int
}

func NewHybrid(behaviors adapters.BehaviorStore, cf, cb Personalizer, rules RuleRanker, weights Weights, minBehaviors int) *Hybrid {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if minBehaviors <= 0 {
		minBehaviors = DefaultMinBehaviors
	}
	return &Hybrid{
		behaviors:    behaviors,
		cf:           cf,
		cb:           cb,
		rules:        rules,
		weights:      weights,
		minBehaviors: minBehaviors,
	}
}

// Recommend returns at most limit doctors. Personalization problems only
// change the strategy; an error means the rule-based ranking itself failed.
func (h *Hybrid) Recommend(ctx context.Context, userID int64, intent model.Intent, question string, articles []model.KnowledgeArticle, limit int) (Outcome, error) {
	if limit <= 0 {
		limit = ranking.DefaultLimit
	}
	base, err := h.rules.Rank(ctx, intent, question, articles, limit)
	if err != nil {
		return Outcome{}, fmt.Errorf("rule-based ranking: %w", err)
	}
	ruleBased := func(reason string) Outcome {
		return Outcome{Doctors: trim(base, limit), Strategy: StrategyRuleBased, FallbackReason: reason}
	}
	log := logger.GetLogger().With(zap.Int64("user_id", userID))

	count, err := h.behaviors.CountBehaviors(ctx, userID)
	if err != nil {
		log.Warn("统计用户行为失败，使用规则推荐", zap.Error(err))
		return ruleBased(ReasonPersonalization), nil
	}
	if count < h.minBehaviors {
		log.Debug("用户行为不足，跳过个性化推荐", zap.Int("behaviors", count))
		return ruleBased(ReasonInsufficientBehavior), nil
	}

	start := time.Now()
	var (
		wg             sync.WaitGroup
		cfRecs, cbRecs []ScoredDoctor
		cfErr, cbErr   error
	)
	wg.Go(func() { cfRecs, cfErr = h.cf.Recommend(ctx, userID, 2*limit) })
	wg.Go(func() { cbRecs, cbErr = h.cb.Recommend(ctx, userID, 2*limit) })
	wg.Wait()

	if cfErr != nil || cbErr != nil {
		log.Warn("个性化推荐失败，降级为规则推荐", zap.NamedError("cf_error", cfErr), zap.NamedError("cb_error", cbErr))
		return ruleBased(ReasonPersonalization), nil
	}
	if len(cfRecs) == 0 && len(cbRecs) == 0 {
		return ruleBased(ReasonNoPersonalized), nil
	}

	doctors, scores := Blend(base, cfRecs, cbRecs, h.weights, limit)
	log.Debug("混合推荐完成",
		zap.Int("cf", len(cfRecs)),
		zap.Int("cb", len(cbRecs)),
		zap.Int("base", len(base)),
		zap.Duration("duration", time.Since(start)))
	return Outcome{Doctors: doctors, Strategy: StrategyHybrid, Scores: scores}, nil
}

// Blend merges the three candidate lists by doctor id. The rule-based score
// is positional, (N - i) / N. Result is ordered by the weighted sum, ties by
// id, and trimmed to limit.
func Blend(base []model.DoctorSummary, cf, cb []ScoredDoctor, w Weights, limit int) ([]model.DoctorSummary, []BlendedScore) {
	type entry struct {
		summary model.DoctorSummary
		score   BlendedScore
	}
	acc := make(map[int64]*entry)
	get := func(id int64, summary func() model.DoctorSummary) *entry {
		e, ok := acc[id]
		if !ok {
			e = &entry{summary: summary(), score: BlendedScore{DoctorID: id}}
			acc[id] = e
		}
		return e
	}

	for _, r := range cf {
		get(r.Doctor.ID, func() model.DoctorSummary { return ranking.Summary(r.Doctor, false) }).score.CF = r.Score
	}
	for _, r := range cb {
		get(r.Doctor.ID, func() model.DoctorSummary { return ranking.Summary(r.Doctor, false) }).score.CB = r.Score
	}
	n := float64(len(base))
	for i, s := range base {
		e := get(s.ID, func() model.DoctorSummary { return s })
		// 规则排序的摘要带有 is_exact_match，优先保留
		e.summary = s
		e.score.Base = (n - float64(i)) / n
	}

	entries := make([]*entry, 0, len(acc))
	for _, e := range acc {
		e.score.Final = w.CF*e.score.CF + w.CB*e.score.CB + w.Base*e.score.Base
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score.Final != entries[j].score.Final {
			return entries[i].score.Final > entries[j].score.Final
		}
		return entries[i].score.DoctorID < entries[j].score.DoctorID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	doctors := make([]model.DoctorSummary, len(entries))
	scores := make([]BlendedScore, len(entries))
	for i, e := range entries {
		doctors[i] = e.summary
		scores[i] = e.score
	}
	return doctors, scores
}

func trim(s []model.DoctorSummary, limit int) []model.DoctorSummary {
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
