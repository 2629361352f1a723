// Package profile recomputes user preference profiles from appointment history.
package profile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
)

const DefaultRefreshInterval = time.Hour

// Store is what the updater reads and writes.
type Store interface {
	adapters.ProfileStore
	adapters.AppointmentStore
	adapters.DoctorStore
}

type Updater struct {
	store   Store
	refresh time.Duration
	now     func() time.Time
}

type Option func(*Updater)

func WithClock(now func() time.Time) Option { return func(u *Updater) { u.now = now } }

func NewUpdater(store Store, refresh time.Duration, opts ...Option) *Updater {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	u := &Updater{store: store, refresh: refresh, now: time.Now}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type Result struct {
	Profile *model.UserProfile
	Created bool
	// Skipped is set when the profile was refreshed within the interval.
	Skipped bool
}

// UpdateUser gets or creates the profile and recomputes it, unless it was
// updated within the refresh interval and force is false. New profiles are
// always computed.
func (u *Updater) UpdateUser(ctx context.Context, userID int64, force bool) (Result, error) {
	p, err := u.store.GetProfile(ctx, userID)
	created := false
	switch {
	case errors.Is(err, adapters.ErrNotFound):
		p, created = model.NewUserProfile(userID), true
	case err != nil:
		return Result{}, fmt.Errorf("get profile: %w", err)
	}

	now := u.now()
	if !force && !created && now.Sub(p.UpdatedAt) < u.refresh {
		return Result{Profile: p, Skipped: true}, nil
	}

	appointments, err := u.store.ListProfileAppointments(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("list appointments: %w", err)
	}
	ids := make([]int64, 0, len(appointments))
	for _, a := range appointments {
		ids = append(ids, a.DoctorID)
	}
	doctors, err := u.store.GetDoctors(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("load doctors: %w", err)
	}

	Apply(p, appointments, doctors)
	p.UpdatedAt = now
	if err := u.store.SaveProfile(ctx, p); err != nil {
		return Result{}, fmt.Errorf("save profile: %w", err)
	}
	logger.GetLogger().Debug("用户画像已更新",
		zap.Int64("user_id", userID),
		zap.Int("appointments", len(appointments)),
		zap.Bool("created", created))
	return Result{Profile: p, Created: created}, nil
}

type BulkReport struct {
	Users   int
	Updated int
	Skipped int
	Failed  []int64
}

// UpdateAll refreshes every user that has appointments. Per-user failures
// are collected, not returned.
func (u *Updater) UpdateAll(ctx context.Context, force bool) (BulkReport, error) {
	users, err := u.store.ListUsersWithAppointments(ctx)
	if err != nil {
		return BulkReport{}, fmt.Errorf("list users: %w", err)
	}
	report := BulkReport{Users: len(users)}
	for _, id := range users {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := u.UpdateUser(ctx, id, force)
		switch {
		case err != nil:
			logger.GetLogger().Error("更新用户画像失败", zap.Int64("user_id", id), zap.Error(err))
			report.Failed = append(report.Failed, id)
		case res.Skipped:
			report.Skipped++
		default:
			report.Updated++
		}
	}
	logger.GetLogger().Info("批量更新用户画像完成",
		zap.Int("users", report.Users),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

// Apply overwrites the computed fields of p from appointment history.
func Apply(p *model.UserProfile, appointments []model.Appointment, doctors map[int64]model.Doctor) {
	p.SpecialtyPreference = SpecialtyPreference(appointments, doctors)
	p.HospitalPreference = HospitalPreference(appointments)
	p.TimePreference = TimePreference(appointments)
	p.DoctorFeaturePreference = FeaturePreference(appointments, doctors)
	p.PriceSensitivity = PriceSensitivity(appointments, doctors)
}

func normalize(counts map[string]float64) map[string]float64 {
	var total float64
	for _, v := range counts {
		total += v
	}
	out := make(map[string]float64, len(counts))
	if total == 0 {
		return out
	}
	for k, v := range counts {
		out[k] = v / total
	}
	return out
}

// SpecialtyPreference is the share of appointments per doctor specialty.
func SpecialtyPreference(appointments []model.Appointment, doctors map[int64]model.Doctor) map[string]float64 {
	counts := make(map[string]float64)
	for _, a := range appointments {
		if d, ok := doctors[a.DoctorID]; ok && d.Specialty != "" {
			counts[d.Specialty]++
		}
	}
	return normalize(counts)
}

// HospitalPreference is the share of appointments per hospital.
func HospitalPreference(appointments []model.Appointment) map[string]float64 {
	counts := make(map[string]float64)
	for _, a := range appointments {
		if a.HospitalName != "" {
			counts[a.HospitalName]++
		}
	}
	return normalize(counts)
}

// TimePreference buckets appointment hours into morning [6,12), afternoon
// [12,18) and evening [18,24). The earliest bucket wins a tie; no usable
// time gives "".
func TimePreference(appointments []model.Appointment) string {
	buckets := []string{model.TimeMorning, model.TimeAfternoon, model.TimeEvening}
	counts := make([]int, len(buckets))
	for _, a := range appointments {
		hourText, _, _ := strings.Cut(a.AppointmentTime, ":")
		hour, err := strconv.Atoi(strings.TrimSpace(hourText))
		if err != nil {
			continue
		}
		switch {
		case hour >= 6 && hour < 12:
			counts[0]++
		case hour >= 12 && hour < 18:
			counts[1]++
		case hour >= 18 && hour < 24:
			counts[2]++
		}
	}
	best := -1
	for i, c := range counts {
		if c > 0 && (best < 0 || c > counts[best]) {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return buckets[best]
}

// averages over the distinct doctors that were booked and still exist.
func averages(appointments []model.Appointment, doctors map[int64]model.Doctor) (score, reviews float64, n int) {
	seen := make(map[int64]bool)
	for _, a := range appointments {
		d, ok := doctors[a.DoctorID]
		if !ok || seen[a.DoctorID] {
			continue
		}
		seen[a.DoctorID] = true
		score += d.Score
		reviews += float64(d.Reviews)
		n++
	}
	if n == 0 {
		return 0, 0, 0
	}
	return score / float64(n), reviews / float64(n), n
}

func defaultFeatures() map[string]float64 {
	return map[string]float64{model.FeatureScoreWeight: 0.5, model.FeatureReviewsWeight: 0.5}
}

// FeaturePreference splits weight between score and review count by how
// strong each was among booked doctors (score / 5, reviews / 1000 capped at 1).
func FeaturePreference(appointments []model.Appointment, doctors map[int64]model.Doctor) map[string]float64 {
	if len(appointments) == 0 {
		return defaultFeatures()
	}
	score, reviews, _ := averages(appointments, doctors)
	ns := score / 5
	nr := math.Min(reviews/1000, 1)
	if ns+nr == 0 {
		return defaultFeatures()
	}
	sw := ns / (ns + nr)
	return map[string]float64{model.FeatureScoreWeight: sw, model.FeatureReviewsWeight: 1 - sw}
}

// PriceSensitivity is 1 - mean booked score / 5, clamped; 0.5 without history.
func PriceSensitivity(appointments []model.Appointment, doctors map[int64]model.Doctor) float64 {
	if len(appointments) == 0 {
		return 0.5
	}
	score, _, _ := averages(appointments, doctors)
	return math.Max(0, math.Min(1, 1-score/5))
}
