// Package ranking orders candidate doctors by rule-based specialty matching.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/specialty"
	"github.com/hsn0918/dentalrag/internal/utils"
)

const (
	DefaultLimit = 3

	// 问题关键词只取前 5 个参与匹配
	maxQuestionKeywords = 5

	NoDetailPlaceholder   = "暂无详细信息"
	NoSchedulePlaceholder = "暂无排班信息"
)

// 过于宽泛的科室标签，已由意图中的科室覆盖，不再单独作为匹配条件
var genericTags = map[string]bool{
	"口腔内科":  true,
	"口腔外科":  true,
	"正畸科":   true,
	"儿童口腔科": true,
}

type field uint8

const (
	fieldSpecialty field = 1 << iota
	fieldIntroduction
	fieldExperience
	fieldName

	freeText = fieldSpecialty | fieldIntroduction | fieldExperience
)

// predicate matches doctors whose selected fields contain term, case-insensitively.
type predicate struct {
	term   string
	fields field
}

func (p predicate) match(d model.Doctor) bool {
	term := strings.ToLower(p.term)
	return (p.fields&fieldSpecialty != 0 && containsFold(d.Specialty, term)) ||
		(p.fields&fieldIntroduction != 0 && containsFold(d.Introduction, term)) ||
		(p.fields&fieldExperience != 0 && containsFold(d.Experience, term)) ||
		(p.fields&fieldName != 0 && containsFold(d.Name, term))
}

func containsFold(s, lowerTerm string) bool {
	return lowerTerm != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}

// Query is everything the rule-based ranking looks at for one turn.
type Query struct {
	Department string
	Category   string
	Tags       []string
	Question   string
}

// NewQuery collects the department, category and knowledge tags of a turn.
func NewQuery(intent model.Intent, question string, articles []model.KnowledgeArticle) Query {
	q := Query{
		Department: intent.Department(),
		Category:   intent.Category(),
		Question:   question,
	}
	seen := make(map[string]bool)
	for _, a := range articles {
		for _, tag := range a.TagList() {
			if genericTags[tag] || seen[tag] {
				continue
			}
			seen[tag] = true
			q.Tags = append(q.Tags, tag)
		}
	}
	return q
}

// Ranker loads the doctor roster and applies RankDoctors.
type Ranker struct {
	store  adapters.DoctorStore
	mapper *specialty.Mapper
}

func NewRanker(store adapters.DoctorStore, mapper *specialty.Mapper) *Ranker {
	if mapper == nil {
		mapper = specialty.NewMapper()
	}
	return &Ranker{store: store, mapper: mapper}
}

// Rank returns at most 2×limit doctor summaries for the turn.
func (r *Ranker) Rank(ctx context.Context, intent model.Intent, question string, articles []model.KnowledgeArticle, limit int) ([]model.DoctorSummary, error) {
	doctors, err := r.store.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	out := RankDoctors(doctors, NewQuery(intent, question, articles), r.mapper, limit)
	logger.GetLogger().Debug("规则排序完成",
		zap.Int("doctors", len(doctors)),
		zap.Int("candidates", len(out)),
		zap.Bool("exact", len(out) > 0 && out[0].IsExactMatch))
	return out, nil
}

// RankDoctors is the pure rule-based ranking.
//
// Predicates are built in order:
//   - department and disease category against specialty/introduction/experience
//   - every non-generic knowledge tag against the same three fields
//   - only when nothing above applies, terms derived from the question:
//     a specialty hit restricts matching to the specialty field, otherwise
//     keywords match the three fields; person-name keywords match name
//
// Matched doctors are tiered (exact specialty, contained specialty or name,
// introduction/experience, rest) and flagged as exact matches. Without any
// match every doctor is ordered by question-derived specialty and name hits
// and flagged as not exact. Ties always break on is_online, score, reviews
// descending then id ascending.
func RankDoctors(doctors []model.Doctor, q Query, mapper *specialty.Mapper, limit int) []model.DoctorSummary {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if mapper == nil {
		mapper = specialty.NewMapper()
	}
	doctors = uniqueByID(doctors)

	preds := buildPredicates(q, mapper)
	if len(preds) > 0 {
		var matched []model.Doctor
		for _, d := range doctors {
			if matchesAny(d, preds) {
				matched = append(matched, d)
			}
		}
		if len(matched) > 0 {
			names := utils.PersonNameTokens(q.Question)
			ordered := orderByTier(matched, func(d model.Doctor) int { return exactTier(d, q, names) })
			return summarize(ordered, true, 2*limit)
		}
	}

	ordered := orderByTier(doctors, fallbackTier(q.Question, mapper))
	return summarize(ordered, false, 2*limit)
}

func buildPredicates(q Query, mapper *specialty.Mapper) []predicate {
	var preds []predicate
	if q.Department != "" {
		preds = append(preds, predicate{term: q.Department, fields: freeText})
	}
	if q.Category != "" {
		preds = append(preds, predicate{term: q.Category, fields: freeText})
	}
	for _, tag := range q.Tags {
		preds = append(preds, predicate{term: tag, fields: freeText})
	}
	if len(preds) > 0 || q.Question == "" {
		return preds
	}

	keywords := utils.ExtractDoctorKeywords(q.Question)
	if len(keywords) > maxQuestionKeywords {
		keywords = keywords[:maxQuestionKeywords]
	}

	canonical, hit := mapper.Resolve(q.Question, keywords)
	if hit {
		preds = append(preds, predicate{term: canonical, fields: fieldSpecialty})
	}
	for _, kw := range keywords {
		if utils.LooksLikePersonName(kw) {
			preds = append(preds, predicate{term: kw, fields: fieldName})
		}
	}
	if !hit {
		for _, kw := range keywords {
			preds = append(preds, predicate{term: kw, fields: freeText})
		}
	}
	return preds
}

func matchesAny(d model.Doctor, preds []predicate) bool {
	for _, p := range preds {
		if p.match(d) {
			return true
		}
	}
	return false
}

// exactTier: 1 专科完全一致，2 专科包含或姓名命中，3 简介/经验包含科室，4 其他
func exactTier(d model.Doctor, q Query, names []string) int {
	terms := make([]string, 0, 2)
	if q.Department != "" {
		terms = append(terms, q.Department)
	}
	if q.Category != "" {
		terms = append(terms, q.Category)
	}

	for _, t := range terms {
		if strings.EqualFold(strings.TrimSpace(d.Specialty), t) {
			return 1
		}
	}
	for _, t := range terms {
		if containsFold(d.Specialty, strings.ToLower(t)) {
			return 2
		}
	}
	for _, n := range names {
		if strings.Contains(d.Name, n) {
			return 2
		}
	}
	if dept := strings.ToLower(q.Department); dept != "" {
		if containsFold(d.Introduction, dept) || containsFold(d.Experience, dept) {
			return 3
		}
	}
	return 4
}

// fallbackTier ranks doctors with a question-derived specialty or name hit
// first. Names are only considered when the whole question has no term.
func fallbackTier(question string, mapper *specialty.Mapper) func(model.Doctor) int {
	var preds []predicate
	if canonical, ok := mapper.MatchText(question); ok {
		preds = append(preds, predicate{term: canonical, fields: fieldSpecialty})
	} else {
		for _, w := range utils.CJKWords(question) {
			if canonical, ok := mapper.LookupExact(w); ok {
				preds = append(preds, predicate{term: canonical, fields: fieldSpecialty})
			}
			if utils.LooksLikePersonName(w) {
				preds = append(preds, predicate{term: w, fields: fieldName})
			}
		}
	}
	return func(d model.Doctor) int {
		if matchesAny(d, preds) {
			return 1
		}
		return 2
	}
}

type tiered struct {
	doctor model.Doctor
	tier   int
}

func orderByTier(doctors []model.Doctor, tierOf func(model.Doctor) int) []model.Doctor {
	items := make([]tiered, len(doctors))
	for i, d := range doctors {
		items[i] = tiered{doctor: d, tier: tierOf(d)}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.tier != b.tier {
			return a.tier < b.tier
		}
		return Less(a.doctor, b.doctor)
	})
	out := make([]model.Doctor, len(items))
	for i, it := range items {
		out[i] = it.doctor
	}
	return out
}

// Less is the deterministic tie-break: online first, then higher score,
// more reviews, lower id.
func Less(a, b model.Doctor) bool {
	if a.IsOnline != b.IsOnline {
		return a.IsOnline
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Reviews != b.Reviews {
		return a.Reviews > b.Reviews
	}
	return a.ID < b.ID
}

func uniqueByID(doctors []model.Doctor) []model.Doctor {
	seen := make(map[int64]bool, len(doctors))
	out := make([]model.Doctor, 0, len(doctors))
	for _, d := range doctors {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

func summarize(doctors []model.Doctor, exact bool, capacity int) []model.DoctorSummary {
	if len(doctors) > capacity {
		doctors = doctors[:capacity]
	}
	out := make([]model.DoctorSummary, len(doctors))
	for i, d := range doctors {
		out[i] = Summary(d, exact)
	}
	return out
}

// Summary builds the doctor view shown to the answer generator.
func Summary(d model.Doctor, exact bool) model.DoctorSummary {
	return model.DoctorSummary{
		ID:                d.ID,
		Name:              d.Name,
		DepartmentName:    d.HospitalName,
		Title:             d.Title,
		Specialty:         d.Specialty,
		Introduction:      d.Introduction,
		Experience:        d.Experience,
		GoodAt:            GoodAt(d),
		IsOnline:          d.IsOnline,
		Score:             d.Score,
		Reviews:           d.Reviews,
		NextAvailableTime: NoSchedulePlaceholder,
		IsExactMatch:      exact,
	}
}

// GoodAt joins the labelled non-empty specialty, introduction and
// experience with a full-width semicolon.
func GoodAt(d model.Doctor) string {
	var parts []string
	if d.Specialty != "" {
		parts = append(parts, "专科："+d.Specialty)
	}
	if d.Introduction != "" {
		parts = append(parts, "简介："+d.Introduction)
	}
	if d.Experience != "" {
		parts = append(parts, "经验："+d.Experience)
	}
	if len(parts) == 0 {
		return NoDetailPlaceholder
	}
	return strings.Join(parts, "；")
}
