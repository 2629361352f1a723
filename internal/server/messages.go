package server

import (
	"github.com/hsn0918/dentalrag/internal/dialogue"
	"github.com/hsn0918/dentalrag/internal/model"
)

type ChatRequest struct {
	UserID     int64  `json:"user_id" validate:"required,gt=0"`
	Message    string `json:"message" validate:"required,max=4000"`
	Age        *int   `json:"age,omitempty" validate:"omitempty,gte=0,lte=150"`
	Gender     string `json:"gender,omitempty" validate:"omitempty,oneof=male female"`
	HasAllergy bool   `json:"has_allergy,omitempty"`
}

func (r *ChatRequest) Hints() model.DemographicHints {
	return model.DemographicHints{Age: r.Age, Gender: r.Gender, HasAllergy: r.HasAllergy}
}

type ChatResponse struct {
	dialogue.TurnResult
}

type RecordBehaviorRequest struct {
	UserID   int64          `json:"user_id" validate:"required,gt=0"`
	Action   string         `json:"action" validate:"required"`
	DoctorID *int64         `json:"doctor_id,omitempty" validate:"omitempty,gt=0"`
	Context  map[string]any `json:"context,omitempty"`
	Score    *float64       `json:"score,omitempty" validate:"omitempty,gte=0"`
}

type RecordBehaviorResponse struct {
	ID int64 `json:"id"`
}

type GenerateEmbeddingsRequest struct {
	ArticleIDs []int64 `json:"article_ids,omitempty" validate:"omitempty,dive,gt=0"`
	All        bool    `json:"all,omitempty"`
}

type GenerateEmbeddingsResponse struct {
	Selected   int     `json:"selected"`
	Updated    int     `json:"updated"`
	Failed     []int64 `json:"failed"`
	DurationMs int64   `json:"duration_ms"`
}

// UpdateUserProfileRequest refreshes one user, or everyone with
// appointments when AllUsers is set.
type UpdateUserProfileRequest struct {
	UserID   int64 `json:"user_id" validate:"omitempty,gt=0"`
	AllUsers bool  `json:"all_users,omitempty"`
	Force    bool  `json:"force,omitempty"`
}

type UpdateUserProfileResponse struct {
	Updated int                `json:"updated"`
	Skipped int                `json:"skipped"`
	Failed  []int64            `json:"failed"`
	Profile *model.UserProfile `json:"profile,omitempty"`
}
