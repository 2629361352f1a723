// Package recommend personalizes doctor recommendations from behavior logs
// and user profiles, and blends them with the rule-based ranking.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/model"
)

const (
	DefaultSimilarUsers  = 20
	DefaultMinSimilarity = 0.1
	defaultFindLimit     = 10
)

// 行为权重，未列出的行为按 1.0 计
var actionWeights = map[model.Action]float64{
	model.ActionMakeAppointment:  3.0,
	model.ActionRateDoctor:       2.0,
	model.ActionViewDoctorDetail: 1.5,
	model.ActionClickDoctor:      1.0,
}

// 推荐时只累计这三类行为
var recommendActions = map[model.Action]bool{
	model.ActionMakeAppointment: true,
	model.ActionRateDoctor:      true,
	model.ActionClickDoctor:     true,
}

func ActionWeight(a model.Action) float64 {
	if w, ok := actionWeights[a]; ok {
		return w
	}
	return 1.0
}

// ScoredDoctor is a doctor with a recommender-specific score.
type ScoredDoctor struct {
	Doctor model.Doctor
	Score  float64
}

// Vector is a user's weighted interaction score per doctor id.
type Vector map[int64]float64

// BuildVectors groups doctor-linked behaviors into one vector per user.
func BuildVectors(behaviors []model.UserBehavior) map[int64]Vector {
	out := make(map[int64]Vector)
	for _, b := range behaviors {
		if b.DoctorID == nil {
			continue
		}
		v, ok := out[b.UserID]
		if !ok {
			v = make(Vector)
			out[b.UserID] = v
		}
		v[*b.DoctorID] += b.Score * ActionWeight(b.Action)
	}
	return out
}

// Similarity is the cosine of two interaction vectors: the dot product runs
// over doctors both users touched while each norm covers the user's whole
// vector. Result is clamped to [0,1]; no overlap or a zero norm gives 0.
func Similarity(a, b Vector) float64 {
	var dot float64
	common := false
	for id, x := range a {
		if y, ok := b[id]; ok {
			dot += x * y
			common = true
		}
	}
	if !common {
		return 0
	}
	na, nb := vectorNorm(a), vectorNorm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, dot/(na*nb)))
}

func vectorNorm(v Vector) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

type SimilarUser struct {
	UserID     int64
	Similarity float64
}

// RankSimilarUsers scores userID against every other vector, keeps those at
// or above minSimilarity and returns the top limit, ties by user id.
func RankSimilarUsers(userID int64, vectors map[int64]Vector, limit int, minSimilarity float64) []SimilarUser {
	self := vectors[userID]
	if len(self) == 0 {
		return nil
	}
	var out []SimilarUser
	for other, v := range vectors {
		if other == userID {
			continue
		}
		if sim := Similarity(self, v); sim >= minSimilarity {
			out = append(out, SimilarUser{UserID: other, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CollaborativeFilter recommends doctors that similar users engaged with.
type CollaborativeFilter struct {
	behaviors     adapters.BehaviorStore
	doctors       adapters.DoctorStore
	similarUsers  int
	minSimilarity float64
}

func NewCollaborativeFilter(behaviors adapters.BehaviorStore, doctors adapters.DoctorStore, similarUsers int, minSimilarity float64) *CollaborativeFilter {
	if similarUsers <= 0 {
		similarUsers = DefaultSimilarUsers
	}
	if minSimilarity <= 0 {
		minSimilarity = DefaultMinSimilarity
	}
	return &CollaborativeFilter{
		behaviors:     behaviors,
		doctors:       doctors,
		similarUsers:  similarUsers,
		minSimilarity: minSimilarity,
	}
}

func (cf *CollaborativeFilter) vectors(ctx context.Context) (map[int64]Vector, []model.UserBehavior, error) {
	all, err := cf.behaviors.ListDoctorBehaviors(ctx, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("list behaviors: %w", err)
	}
	return BuildVectors(all), all, nil
}

// Similarity compares two users.
func (cf *CollaborativeFilter) Similarity(ctx context.Context, a, b int64) (float64, error) {
	va, err := cf.behaviors.ListDoctorBehaviors(ctx, a)
	if err != nil {
		return 0, fmt.Errorf("list behaviors of %d: %w", a, err)
	}
	vb, err := cf.behaviors.ListDoctorBehaviors(ctx, b)
	if err != nil {
		return 0, fmt.Errorf("list behaviors of %d: %w", b, err)
	}
	return Similarity(BuildVectors(va)[a], BuildVectors(vb)[b]), nil
}

// FindSimilarUsers returns up to limit users (10 when limit <= 0) at or
// above minSimilarity.
func (cf *CollaborativeFilter) FindSimilarUsers(ctx context.Context, userID int64, limit int, minSimilarity float64) ([]SimilarUser, error) {
	if limit <= 0 {
		limit = defaultFindLimit
	}
	vectors, _, err := cf.vectors(ctx)
	if err != nil {
		return nil, err
	}
	return RankSimilarUsers(userID, vectors, limit, minSimilarity), nil
}

// Recommend accumulates score × action weight × similarity over the
// appointment, rating and click behaviors of the most similar users.
func (cf *CollaborativeFilter) Recommend(ctx context.Context, userID int64, limit int) ([]ScoredDoctor, error) {
	vectors, all, err := cf.vectors(ctx)
	if err != nil {
		return nil, err
	}
	similar := RankSimilarUsers(userID, vectors, cf.similarUsers, cf.minSimilarity)
	if len(similar) == 0 {
		return nil, nil
	}

	simOf := make(map[int64]float64, len(similar))
	for _, s := range similar {
		simOf[s.UserID] = s.Similarity
	}
	scores := make(map[int64]float64)
	for _, b := range all {
		sim, ok := simOf[b.UserID]
		if !ok || b.DoctorID == nil || !recommendActions[b.Action] {
			continue
		}
		scores[*b.DoctorID] += b.Score * ActionWeight(b.Action) * sim
	}
	return resolveDoctors(ctx, cf.doctors, scores, limit)
}

// resolveDoctors loads the scored doctors, drops unknown ids and returns the
// top limit by score then id.
func resolveDoctors(ctx context.Context, store adapters.DoctorStore, scores map[int64]float64, limit int) ([]ScoredDoctor, error) {
	if len(scores) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	doctors, err := store.GetDoctors(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	out := make([]ScoredDoctor, 0, len(doctors))
	for id, d := range doctors {
		out = append(out, ScoredDoctor{Doctor: d, Score: scores[id]})
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortScored(s []ScoredDoctor) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Doctor.ID < s[j].Doctor.ID
	})
}
