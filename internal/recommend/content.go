package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/model"
)

// 没有历史交互时使用的默认偏好
const (
	DefaultMeanScore   = 4.0
	DefaultMeanReviews = 100.0
)

// Affinity is what a user appears to like in a doctor.
type Affinity struct {
	SpecialtyCounts map[string]float64
	MeanScore       float64
	MeanReviews     float64
}

// AffinityFromDoctors derives affinity from the doctors a user interacted with.
func AffinityFromDoctors(doctors []model.Doctor) Affinity {
	a := Affinity{SpecialtyCounts: make(map[string]float64)}
	if len(doctors) == 0 {
		return a
	}
	var score, reviews float64
	for _, d := range doctors {
		if d.Specialty != "" {
			a.SpecialtyCounts[d.Specialty]++
		}
		score += d.Score
		reviews += float64(d.Reviews)
	}
	a.MeanScore = score / float64(len(doctors))
	a.MeanReviews = reviews / float64(len(doctors))
	return a
}

// AffinityFromProfile is used when the user has no doctor interactions.
func AffinityFromProfile(p *model.UserProfile) Affinity {
	counts := make(map[string]float64, len(p.SpecialtyPreference))
	for k, v := range p.SpecialtyPreference {
		counts[k] = v
	}
	return Affinity{SpecialtyCounts: counts, MeanScore: DefaultMeanScore, MeanReviews: DefaultMeanReviews}
}

// Components are the three weighted parts of a content score, each in [0,1].
type Components struct {
	SpecialtyMatch    float64
	ScoreSimilarity   float64
	ReviewsSimilarity float64
}

func (c Components) Total() float64 {
	return 0.5*c.SpecialtyMatch + 0.3*c.ScoreSimilarity + 0.2*c.ReviewsSimilarity
}

// ScoreComponents compares one doctor with an affinity. The specialty match
// is normalized by the largest specialty count.
func ScoreComponents(d model.Doctor, a Affinity) Components {
	var c Components
	if d.Specialty != "" && len(a.SpecialtyCounts) > 0 {
		var maxCount float64
		for _, v := range a.SpecialtyCounts {
			maxCount = math.Max(maxCount, v)
		}
		if n := a.SpecialtyCounts[d.Specialty]; n > 0 && maxCount > 0 {
			c.SpecialtyMatch = n / maxCount
		}
	}
	c.ScoreSimilarity = clamp01(1 - math.Abs(d.Score-a.MeanScore)/5)
	c.ReviewsSimilarity = 1 - math.Min(math.Abs(float64(d.Reviews)-a.MeanReviews)/1000, 1)
	return c
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ContentBased scores doctors the user has not interacted with by their
// similarity to the user's affinity.
type ContentBased struct {
	behaviors adapters.BehaviorStore
	doctors   adapters.DoctorStore
	profiles  adapters.ProfileStore
}

func NewContentBased(behaviors adapters.BehaviorStore, doctors adapters.DoctorStore, profiles adapters.ProfileStore) *ContentBased {
	return &ContentBased{behaviors: behaviors, doctors: doctors, profiles: profiles}
}

// Recommend returns nothing for users without a stored profile.
func (cb *ContentBased) Recommend(ctx context.Context, userID int64, limit int) ([]ScoredDoctor, error) {
	profile, err := cb.profiles.GetProfile(ctx, userID)
	if errors.Is(err, adapters.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	behaviors, err := cb.behaviors.ListDoctorBehaviors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list behaviors: %w", err)
	}
	seen := make(map[int64]bool)
	for _, b := range behaviors {
		if b.DoctorID != nil {
			seen[*b.DoctorID] = true
		}
	}

	doctors, err := cb.doctors.ListDoctors(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}

	var affinity Affinity
	if len(seen) > 0 {
		var touched []model.Doctor
		for _, d := range doctors {
			if seen[d.ID] {
				touched = append(touched, d)
			}
		}
		affinity = AffinityFromDoctors(touched)
	} else {
		affinity = AffinityFromProfile(profile)
	}

	var out []ScoredDoctor
	for _, d := range doctors {
		if seen[d.ID] {
			continue
		}
		if score := ScoreComponents(d, affinity).Total(); score > 0 {
			out = append(out, ScoredDoctor{Doctor: d, Score: score})
		}
	}
	sortScored(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
