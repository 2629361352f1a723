// Package model holds the entities shared by retrieval, ranking and the
// dialogue pipeline.
package model

import (
	"strings"
	"time"
)

// UnknownCategory 是意图抽取失败或无法判断时的病症类别占位值。
const UnknownCategory = "未知"

type PriorityLevel string

const (
	PriorityInfo   PriorityLevel = "info"
	PriorityNormal PriorityLevel = "normal"
	PriorityUrgent PriorityLevel = "urgent"
)

func (p PriorityLevel) Valid() bool {
	switch p {
	case PriorityInfo, PriorityNormal, PriorityUrgent:
		return true
	}
	return false
}

// Intent is the structured visit intent extracted from one message.
type Intent struct {
	DiseaseCategory       string        `json:"disease_category"`
	RecommendedDepartment *string       `json:"recommended_department"`
	PriorityLevel         PriorityLevel `json:"priority_level"`
}

func DefaultIntent() Intent {
	return Intent{DiseaseCategory: UnknownCategory, PriorityLevel: PriorityInfo}
}

// Department returns the recommended department or "".
func (i Intent) Department() string {
	if i.RecommendedDepartment == nil {
		return ""
	}
	return strings.TrimSpace(*i.RecommendedDepartment)
}

// Category returns the disease category, or "" for the unknown sentinel.
func (i Intent) Category() string {
	c := strings.TrimSpace(i.DiseaseCategory)
	if c == UnknownCategory {
		return ""
	}
	return c
}

// SameTopic reports whether two intents share category and department.
func (i Intent) SameTopic(other Intent) bool {
	return i.DiseaseCategory == other.DiseaseCategory && i.Department() == other.Department()
}

type KnowledgeArticle struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	QuestionPattern string    `json:"question_pattern"`
	Content         string    `json:"content"`
	Tags            string    `json:"tags"`
	Embedding       []float32 `json:"-"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TagList splits Tags on commas (ASCII or full-width) and drops blanks.
func (a KnowledgeArticle) TagList() []string {
	parts := strings.FieldsFunc(a.Tags, func(r rune) bool { return r == ',' || r == '，' })
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// EmbeddingText is the text an article's embedding is computed from.
func (a KnowledgeArticle) EmbeddingText() string {
	return a.Title + " " + a.Content + " " + a.Tags
}

type Doctor struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Title        string  `json:"title"`
	Specialty    string  `json:"specialty"`
	Introduction string  `json:"introduction"`
	Experience   string  `json:"experience"`
	HospitalName string  `json:"hospital_name"`
	IsOnline     bool    `json:"is_online"`
	Score        float64 `json:"score"`
	Reviews      int     `json:"reviews"`
}

// DoctorSummary is the doctor view handed to the answer generator and
// persisted in recommendation logs.
type DoctorSummary struct {
	ID                int64   `json:"id"`
	Name              string  `json:"name"`
	DepartmentName    string  `json:"department_name"`
	Title             string  `json:"title"`
	Specialty         string  `json:"specialty"`
	Introduction      string  `json:"introduction"`
	Experience        string  `json:"experience"`
	GoodAt            string  `json:"good_at"`
	IsOnline          bool    `json:"is_online"`
	Score             float64 `json:"score"`
	Reviews           int     `json:"reviews"`
	NextAvailableTime string  `json:"next_available_time"`
	IsExactMatch      bool    `json:"is_exact_match"`
}

type Action string

const (
	ActionSearch              Action = "search"
	ActionClickDoctor         Action = "click_doctor"
	ActionViewDoctorDetail    Action = "view_doctor_detail"
	ActionMakeAppointment     Action = "make_appointment"
	ActionCancelAppointment   Action = "cancel_appointment"
	ActionRateDoctor          Action = "rate_doctor"
	ActionClickRecommendation Action = "click_recommendation"
)

func (a Action) Valid() bool {
	switch a {
	case ActionSearch, ActionClickDoctor, ActionViewDoctorDetail, ActionMakeAppointment,
		ActionCancelAppointment, ActionRateDoctor, ActionClickRecommendation:
		return true
	}
	return false
}

// DefaultBehaviorScore applies when a behavior is recorded without a score.
const DefaultBehaviorScore = 1.0

type UserBehavior struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Action    Action         `json:"action"`
	DoctorID  *int64         `json:"doctor_id"`
	Context   map[string]any `json:"context"`
	Score     float64        `json:"score"`
	CreatedAt time.Time      `json:"created_at"`
}

const (
	TimeMorning   = "morning"
	TimeAfternoon = "afternoon"
	TimeEvening   = "evening"
)

const (
	FeatureScoreWeight   = "score_weight"
	FeatureReviewsWeight = "reviews_weight"
)

type UserProfile struct {
	UserID                  int64              `json:"user_id"`
	SpecialtyPreference     map[string]float64 `json:"specialty_preference"`
	HospitalPreference      map[string]float64 `json:"hospital_preference"`
	PriceSensitivity        float64            `json:"price_sensitivity"`
	TimePreference          string             `json:"time_preference"`
	DoctorFeaturePreference map[string]float64 `json:"doctor_feature_preference"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

func NewUserProfile(userID int64) *UserProfile {
	return &UserProfile{
		UserID:                  userID,
		SpecialtyPreference:     map[string]float64{},
		HospitalPreference:      map[string]float64{},
		PriceSensitivity:        0.5,
		DoctorFeaturePreference: map[string]float64{FeatureScoreWeight: 0.5, FeatureReviewsWeight: 0.5},
	}
}

type RecommendationLogEntry struct {
	ID                 int64           `json:"id"`
	UserID             int64           `json:"user_id"`
	RawQuestion        string          `json:"raw_question"`
	Intent             Intent          `json:"structured_intent"`
	RecommendedDoctors []DoctorSummary `json:"recommended_doctors"`
	CreatedAt          time.Time       `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type AppointmentStatus string

const (
	AppointmentUpcoming  AppointmentStatus = "upcoming"
	AppointmentCompleted AppointmentStatus = "completed"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCheckedIn AppointmentStatus = "checked-in"
)

type Appointment struct {
	ID              int64             `json:"id"`
	UserID          int64             `json:"user_id"`
	DoctorID        int64             `json:"doctor_id"`
	HospitalName    string            `json:"hospital_name"`
	AppointmentTime string            `json:"appointment_time"`
	Status          AppointmentStatus `json:"status"`
}

// DemographicHints are optional user facts that nudge intent extraction.
type DemographicHints struct {
	Age        *int   `json:"age,omitempty"`
	Gender     string `json:"gender,omitempty"`
	HasAllergy bool   `json:"has_allergy,omitempty"`
}
