package dialogue

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/hsn0918/dentalrag/internal/model"
)

// 医生称谓后缀
var titleSuffixes = []string{"医生", "主任", "医师", "大夫", "教授"}

// 回答中出现这些表述且未点名任何医生时，视为明确不推荐
var negativePhrases = []string{"建议到", "暂未找到", "没有找到", "暂无合适", "无法推荐"}

// 对账结果原因
const (
	ReconcileMatched   = "matched"
	ReconcileNegative  = "negative_phrasing"
	ReconcileNoMention = "no_mention"
	ReconcileNoAnswer  = "no_answer"
)

// mentionPatterns lists the ways an answer may refer to a doctor. A name
// stored with a title suffix ("张医生") also matches under the other titles.
func mentionPatterns(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	base := name
	for _, s := range titleSuffixes {
		if trimmed := strings.TrimSuffix(name, s); trimmed != name && trimmed != "" {
			base = trimmed
			break
		}
	}
	patterns := []string{name, "推荐" + base, "为您推荐" + base}
	for _, s := range titleSuffixes {
		patterns = append(patterns, base+s)
	}
	// 单字姓氏单独出现太容易误匹配
	if base != name && utf8.RuneCountInString(base) >= 2 {
		patterns = append(patterns, base)
	}
	return patterns
}

func firstMention(answer, name string) int {
	first := -1
	for _, p := range mentionPatterns(name) {
		if i := strings.Index(answer, p); i >= 0 && (first < 0 || i < first) {
			first = i
		}
	}
	return first
}

// Reconcile returns the candidates the answer actually names, ordered by
// first mention. Candidates that are never named are dropped, so the result
// is empty when the answer only gives department advice.
func Reconcile(answer string, candidates []model.DoctorSummary) ([]model.DoctorSummary, string) {
	if strings.TrimSpace(answer) == "" {
		return nil, ReconcileNoAnswer
	}

	type mention struct {
		doctor model.DoctorSummary
		pos    int
	}
	var found []mention
	seen := make(map[int64]bool, len(candidates))
	for _, d := range candidates {
		if seen[d.ID] {
			continue
		}
		if pos := firstMention(answer, d.Name); pos >= 0 {
			seen[d.ID] = true
			found = append(found, mention{doctor: d, pos: pos})
		}
	}
	if len(found) == 0 {
		for _, p := range negativePhrases {
			if strings.Contains(answer, p) {
				return nil, ReconcileNegative
			}
		}
		return nil, ReconcileNoMention
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].pos < found[j].pos })
	out := make([]model.DoctorSummary, len(found))
	for i, m := range found {
		out[i] = m.doctor
	}
	return out, ReconcileMatched
}

// Deduplicate removes doctors already surfaced for the same topic. When
// that would leave nothing, the original candidates are kept and undone is
// set.
func Deduplicate(candidates []model.DoctorSummary, current model.Intent, logs []model.RecommendationLogEntry) (kept []model.DoctorSummary, removed int, undone bool) {
	seen := make(map[int64]bool)
	for _, entry := range logs {
		if !entry.Intent.SameTopic(current) {
			continue
		}
		for _, d := range entry.RecommendedDoctors {
			seen[d.ID] = true
		}
	}
	if len(seen) == 0 {
		return candidates, 0, false
	}

	kept = make([]model.DoctorSummary, 0, len(candidates))
	for _, d := range candidates {
		if !seen[d.ID] {
			kept = append(kept, d)
		}
	}
	removed = len(candidates) - len(kept)
	if len(kept) == 0 && len(candidates) > 0 {
		return candidates, removed, true
	}
	return kept, removed, false
}
