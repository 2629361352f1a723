package recommend_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/ranking"
	"github.com/hsn0918/dentalrag/internal/recommend"
)

func doctorID(id int64) *int64 { return &id }

func behave(t *testing.T, s *memory.Store, user int64, action model.Action, doctor int64, score float64) {
	t.Helper()
	_, err := s.AppendBehavior(context.Background(), model.UserBehavior{
		UserID: user, Action: action, DoctorID: doctorID(doctor), Score: score,
	})
	require.NoError(t, err)
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b recommend.Vector
		want float64
	}{
		{name: "identical", a: recommend.Vector{1: 3, 2: 1}, b: recommend.Vector{1: 3, 2: 1}, want: 1},
		{name: "no overlap", a: recommend.Vector{1: 3}, b: recommend.Vector{2: 3}, want: 0},
		{name: "zero norm", a: recommend.Vector{1: 0}, b: recommend.Vector{1: 2}, want: 0},
		// dot over the common doctor only, norms over full vectors
		{name: "partial overlap", a: recommend.Vector{1: 3, 2: 4}, b: recommend.Vector{1: 1}, want: 3.0 / 5.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recommend.Similarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestBuildVectorsWeightsActions(t *testing.T) {
	vectors := recommend.BuildVectors([]model.UserBehavior{
		{UserID: 1, Action: model.ActionMakeAppointment, DoctorID: doctorID(7), Score: 1},
		{UserID: 1, Action: model.ActionViewDoctorDetail, DoctorID: doctorID(7), Score: 2},
		{UserID: 1, Action: model.ActionSearch, DoctorID: nil, Score: 1},
		{UserID: 2, Action: model.ActionCancelAppointment, DoctorID: doctorID(8), Score: 1},
	})
	assert.InDelta(t, 3+3, vectors[1][7], 1e-9)
	assert.InDelta(t, 1, vectors[2][8], 1e-9)
}

func cfStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for id := int64(1); id <= 4; id++ {
		s.AddDoctor(model.Doctor{ID: id, Specialty: "正畸"})
	}
	// user 1 and 2 share doctor 1; user 2 also booked doctor 3
	behave(t, s, 1, model.ActionClickDoctor, 1, 1)
	behave(t, s, 2, model.ActionClickDoctor, 1, 1)
	behave(t, s, 2, model.ActionMakeAppointment, 3, 1)
	behave(t, s, 2, model.ActionViewDoctorDetail, 4, 1)
	// user 3 is unrelated
	behave(t, s, 3, model.ActionMakeAppointment, 2, 1)
	return s
}

func TestCollaborativeFilter(t *testing.T) {
	s := cfStore(t)
	cf := recommend.NewCollaborativeFilter(s, s, 0, 0)
	ctx := context.Background()

	similar, err := cf.FindSimilarUsers(ctx, 1, 0, 0.1)
	require.NoError(t, err)
	require.Len(t, similar, 1)
	assert.Equal(t, int64(2), similar[0].UserID)

	sim, err := cf.Similarity(ctx, 1, 3)
	require.NoError(t, err)
	assert.Zero(t, sim)

	recs, err := cf.Recommend(ctx, 1, 10)
	require.NoError(t, err)
	// view_doctor_detail does not contribute to recommendations
	require.Len(t, recs, 2)
	assert.Equal(t, int64(3), recs[0].Doctor.ID)
	assert.Equal(t, int64(1), recs[1].Doctor.ID)
	assert.InDelta(t, 3*similar[0].Similarity, recs[0].Score, 1e-9)
}

func TestContentBasedRequiresProfile(t *testing.T) {
	s := cfStore(t)
	recs, err := recommend.NewContentBased(s, s, s).Recommend(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Empty(t, recs)

	_, err = s.GetProfile(context.Background(), 1)
	assert.Error(t, err)
}

func TestContentBasedFromProfile(t *testing.T) {
	s := memory.New()
	s.AddDoctor(model.Doctor{ID: 1, Specialty: "种植", Score: 4.0, Reviews: 100})
	s.AddDoctor(model.Doctor{ID: 2, Specialty: "正畸", Score: 4.0, Reviews: 100})
	s.AddDoctor(model.Doctor{ID: 3, Specialty: "种植", Score: 1.0, Reviews: 2000})

	p := model.NewUserProfile(9)
	p.SpecialtyPreference = map[string]float64{"种植": 1.0, "正畸": 0.5}
	require.NoError(t, s.SaveProfile(context.Background(), p))

	recs, err := recommend.NewContentBased(s, s, s).Recommend(context.Background(), 9, 5)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(1), recs[0].Doctor.ID)
	assert.InDelta(t, 1.0, recs[0].Score, 1e-9)
	assert.InDelta(t, 0.25+0.3+0.2, recs[1].Score, 1e-9)
}

func TestContentBasedExcludesInteracted(t *testing.T) {
	s := cfStore(t)
	require.NoError(t, s.SaveProfile(context.Background(), model.NewUserProfile(2)))

	recs, err := recommend.NewContentBased(s, s, s).Recommend(context.Background(), 2, 5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].Doctor.ID)
}

func TestScoreComponentsBounds(t *testing.T) {
	affinity := recommend.Affinity{SpecialtyCounts: map[string]float64{"正畸": 2, "种植": 4}, MeanScore: 0.5, MeanReviews: 10}
	for _, d := range []model.Doctor{
		{Specialty: "正畸", Score: 5, Reviews: 100000},
		{Specialty: "种植", Score: 0, Reviews: 0},
		{Specialty: "", Score: 10, Reviews: -5},
	} {
		c := recommend.ScoreComponents(d, affinity)
		for _, v := range []float64{c.SpecialtyMatch, c.ScoreSimilarity, c.ReviewsSimilarity} {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
	}
	assert.InDelta(t, 0.5, recommend.ScoreComponents(model.Doctor{Specialty: "正畸"}, affinity).SpecialtyMatch, 1e-9)
}

type fixedRules struct{ out []model.DoctorSummary }

func (f fixedRules) Rank(context.Context, model.Intent, string, []model.KnowledgeArticle, int) ([]model.DoctorSummary, error) {
	return f.out, nil
}

type fixedPersonalizer struct {
	recs  []recommend.ScoredDoctor
	err   error
	calls int
}

func (f *fixedPersonalizer) Recommend(context.Context, int64, int) ([]recommend.ScoredDoctor, error) {
	f.calls++
	return f.recs, f.err
}

func rules(ids ...int64) fixedRules {
	var out []model.DoctorSummary
	for _, id := range ids {
		out = append(out, ranking.Summary(model.Doctor{ID: id}, true))
	}
	return fixedRules{out: out}
}

func TestHybridSkipsPersonalizationBelowThreshold(t *testing.T) {
	s := memory.New()
	for i := range 5 {
		behave(t, s, 1, model.ActionClickDoctor, int64(i+1), 1)
	}
	cf, cb := &fixedPersonalizer{}, &fixedPersonalizer{}
	h := recommend.NewHybrid(s, cf, cb, rules(6, 5, 4, 3, 2, 1), recommend.DefaultWeights, 20)

	out, err := h.Recommend(context.Background(), 1, model.DefaultIntent(), "牙疼", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, recommend.StrategyRuleBased, out.Strategy)
	assert.Equal(t, recommend.ReasonInsufficientBehavior, out.FallbackReason)
	assert.Equal(t, []int64{6, 5, 4}, []int64{out.Doctors[0].ID, out.Doctors[1].ID, out.Doctors[2].ID})
	assert.Len(t, out.Doctors, 3)
	assert.Zero(t, cf.calls)
	assert.Zero(t, cb.calls)
}

func TestHybridFallsBackOnError(t *testing.T) {
	s := memory.New()
	for range 20 {
		behave(t, s, 1, model.ActionClickDoctor, 1, 1)
	}
	cf := &fixedPersonalizer{err: errors.New("boom")}
	h := recommend.NewHybrid(s, cf, &fixedPersonalizer{}, rules(1, 2), recommend.Weights{}, 0)

	out, err := h.Recommend(context.Background(), 1, model.DefaultIntent(), "", nil, 3)
	require.NoError(t, err)
	assert.Equal(t, recommend.StrategyRuleBased, out.Strategy)
	assert.Equal(t, recommend.ReasonPersonalization, out.FallbackReason)
	assert.Len(t, out.Doctors, 2)
}

func TestHybridBlends(t *testing.T) {
	s := memory.New()
	for range 20 {
		behave(t, s, 1, model.ActionClickDoctor, 1, 1)
	}
	cf := &fixedPersonalizer{recs: []recommend.ScoredDoctor{{Doctor: model.Doctor{ID: 9}, Score: 2}}}
	cb := &fixedPersonalizer{recs: []recommend.ScoredDoctor{{Doctor: model.Doctor{ID: 2}, Score: 0.5}}}
	h := recommend.NewHybrid(s, cf, cb, rules(1, 2), recommend.DefaultWeights, 20)

	out, err := h.Recommend(context.Background(), 1, model.DefaultIntent(), "", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, recommend.StrategyHybrid, out.Strategy)
	require.Len(t, out.Doctors, 2)
	// 9: 0.4*2, 2: 0.4*0.5+0.2*0.5, 1: 0.2*1
	assert.Equal(t, int64(9), out.Doctors[0].ID)
	assert.Equal(t, int64(2), out.Doctors[1].ID)
	assert.True(t, out.Doctors[1].IsExactMatch)
	assert.False(t, out.Doctors[0].IsExactMatch)
	assert.InDelta(t, 0.3, out.Scores[1].Final, 1e-9)
}
