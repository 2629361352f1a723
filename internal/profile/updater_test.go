package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/dentalrag/internal/adapters/memory"
	"github.com/hsn0918/dentalrag/internal/model"
	"github.com/hsn0918/dentalrag/internal/profile"
)

func seedStore() *memory.Store {
	s := memory.New()
	s.AddDoctor(model.Doctor{ID: 1, Specialty: "正畸", Score: 5, Reviews: 1000})
	s.AddDoctor(model.Doctor{ID: 2, Specialty: "种植", Score: 3, Reviews: 0})
	s.AddAppointment(model.Appointment{UserID: 7, DoctorID: 1, HospitalName: "市口腔医院", AppointmentTime: "09:30", Status: model.AppointmentCompleted})
	s.AddAppointment(model.Appointment{UserID: 7, DoctorID: 1, HospitalName: "市口腔医院", AppointmentTime: "14:00", Status: model.AppointmentUpcoming})
	s.AddAppointment(model.Appointment{UserID: 7, DoctorID: 2, HospitalName: "区医院", AppointmentTime: "15:00", Status: model.AppointmentCompleted})
	s.AddAppointment(model.Appointment{UserID: 7, DoctorID: 2, HospitalName: "区医院", AppointmentTime: "08:00", Status: model.AppointmentCancelled})
	s.AddAppointment(model.Appointment{UserID: 8, DoctorID: 2, AppointmentTime: "19:00", Status: model.AppointmentUpcoming})
	return s
}

func TestUpdateUserComputesProfile(t *testing.T) {
	s := seedStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u := profile.NewUpdater(s, time.Hour, profile.WithClock(func() time.Time { return now }))

	res, err := u.UpdateUser(context.Background(), 7, false)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Skipped)

	p, err := s.GetProfile(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3, p.SpecialtyPreference["正畸"], 1e-9)
	assert.InDelta(t, 1.0/3, p.HospitalPreference["区医院"], 1e-9)
	assert.Equal(t, model.TimeAfternoon, p.TimePreference)
	// mean score 4 → 0.8, mean reviews 500 → 0.5
	assert.InDelta(t, 0.8/1.3, p.DoctorFeaturePreference[model.FeatureScoreWeight], 1e-9)
	assert.InDelta(t, 1.0, p.DoctorFeaturePreference[model.FeatureScoreWeight]+p.DoctorFeaturePreference[model.FeatureReviewsWeight], 1e-9)
	assert.InDelta(t, 0.2, p.PriceSensitivity, 1e-9)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestUpdateUserThrottle(t *testing.T) {
	s := seedStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	u := profile.NewUpdater(s, time.Hour, profile.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := u.UpdateUser(ctx, 7, false)
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	res, err := u.UpdateUser(ctx, 7, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	res, err = u.UpdateUser(ctx, 7, true)
	require.NoError(t, err)
	assert.False(t, res.Skipped)

	now = now.Add(2 * time.Hour)
	res, err = u.UpdateUser(ctx, 7, false)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestUpdateUserWithoutHistory(t *testing.T) {
	s := seedStore()
	res, err := profile.NewUpdater(s, 0).UpdateUser(context.Background(), 99, false)
	require.NoError(t, err)
	assert.Empty(t, res.Profile.SpecialtyPreference)
	assert.Equal(t, "", res.Profile.TimePreference)
	assert.InDelta(t, 0.5, res.Profile.PriceSensitivity, 1e-9)
	assert.InDelta(t, 0.5, res.Profile.DoctorFeaturePreference[model.FeatureScoreWeight], 1e-9)
}

func TestUpdateAll(t *testing.T) {
	s := seedStore()
	u := profile.NewUpdater(s, time.Hour)
	ctx := context.Background()

	report, err := u.UpdateAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Users)
	assert.Equal(t, 2, report.Updated)

	report, err = u.UpdateAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)

	p, err := s.GetProfile(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, model.TimeEvening, p.TimePreference)
}

func TestTimePreferenceTies(t *testing.T) {
	tests := []struct {
		name  string
		times []string
		want  string
	}{
		{name: "earliest bucket wins tie", times: []string{"13:00", "07:00"}, want: model.TimeMorning},
		{name: "ignores garbage and night", times: []string{"abc", "02:00", ""}, want: ""},
		{name: "evening", times: []string{"18:00", "23:59", "12:00"}, want: model.TimeEvening},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apts []model.Appointment
			for _, at := range tt.times {
				apts = append(apts, model.Appointment{AppointmentTime: at})
			}
			assert.Equal(t, tt.want, profile.TimePreference(apts))
		})
	}
}
