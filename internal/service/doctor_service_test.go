package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"clinicq/internal/database"
	"clinicq/internal/models"
	"clinicq/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDoctors struct {
	mock.Mock
}

func (m *mockDoctors) GetDoctor(ctx context.Context, id int64) (*models.Doctor, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Doctor), args.Error(1)
}

func (m *mockDoctors) UpsertDoctor(ctx context.Context, d *models.Doctor) error {
	return m.Called(ctx, d).Error(0)
}

var demoDoctors = []models.Doctor{
	{ID: 1, Name: "Dr. Demo", ClinicName: "Demo Clinic", StartTime: "9:00 AM", EndTime: "5:00 PM"},
}

func TestClinicDetailsFallback(t *testing.T) {
	ctx := context.Background()
	state := setupState()

	t.Run("from database and cached", func(t *testing.T) {
		repo := &mockDoctors{}
		repo.On("GetDoctor", mock.Anything, int64(4)).Return(&models.Doctor{ID: 4, Name: "Dr. Rao"}, nil).Once()
		repo.On("GetDoctor", mock.Anything, int64(4)).Return(nil, errors.New("disk I/O error")).Once()
		svc := NewDoctorService(repo, state, demoDoctors, 1, time.UTC, nopLogger())

		d, fallback, err := svc.ClinicDetails(ctx, 4)
		require.NoError(t, err)
		assert.False(t, fallback)
		assert.Equal(t, "Dr. Rao", d.Name)

		d, fallback, err = svc.ClinicDetails(ctx, 4)
		require.NoError(t, err)
		assert.True(t, fallback)
		assert.Equal(t, "Dr. Rao", d.Name)
		repo.AssertExpectations(t)
	})

	t.Run("demo data", func(t *testing.T) {
		repo := &mockDoctors{}
		repo.On("GetDoctor", mock.Anything, mock.Anything).Return(nil, database.ErrNotFound)
		svc := NewDoctorService(repo, state, demoDoctors, 1, time.UTC, nopLogger())

		d, fallback, err := svc.ClinicDetails(ctx, 1)
		require.NoError(t, err)
		assert.True(t, fallback)
		assert.Equal(t, "Demo Clinic", d.ClinicName)

		d, _, err = svc.ClinicDetails(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, int64(77), d.ID)
		assert.Equal(t, "Dr. Demo", d.Name)
	})

	t.Run("nothing to fall back on", func(t *testing.T) {
		repo := &mockDoctors{}
		repo.On("GetDoctor", mock.Anything, mock.Anything).Return(nil, database.ErrNotFound)
		svc := NewDoctorService(repo, setupState(), nil, 1, time.UTC, nopLogger())

		_, _, err := svc.ClinicDetails(ctx, 5)
		assert.ErrorIs(t, err, ErrNoClinicDetails)
	})
}

func TestAvailabilityDefaultsOpen(t *testing.T) {
	ctx := context.Background()
	svc := NewDoctorService(setupDB(t), setupState(), nil, 1, time.UTC, nopLogger())

	days, err := svc.Availability(ctx, "2024-02")
	require.NoError(t, err)
	require.Len(t, days, 29)
	assert.Equal(t, "2024-02-01", days[0].Date)
	for _, d := range days {
		assert.True(t, d.IsOpen, d.Date)
	}

	days, err = svc.SetAvailability(ctx, "2024-02", []models.DayAvailability{{Date: "2024-02-10", IsOpen: false}})
	require.NoError(t, err)
	require.Len(t, days, 29)
	assert.False(t, days[9].IsOpen)
	assert.True(t, days[10].IsOpen)

	open, err := svc.IsOpen(ctx, "2024-02-10")
	require.NoError(t, err)
	assert.False(t, open)
	open, err = svc.IsOpen(ctx, "2024-03-10")
	require.NoError(t, err)
	assert.True(t, open)

	_, err = svc.SetAvailability(ctx, "2024-02", []models.DayAvailability{{Date: "2024-03-01"}})
	assert.True(t, IsValidation(err))
	_, err = svc.Availability(ctx, "Feb")
	assert.True(t, IsValidation(err))
}

func TestAlertsConsumedOnce(t *testing.T) {
	ctx := context.Background()
	state := setupState()
	svc := NewDoctorService(setupDB(t), state, nil, 1, time.UTC, nopLogger())

	alert, err := svc.Alerts(ctx)
	require.NoError(t, err)
	assert.Nil(t, alert)

	require.NoError(t, state.RaiseSignal(ctx, queue.SignalEmergency, queue.EmergencySignal{Reason: "cardiac arrest", RaisedAt: time.Now()}))

	alert, err = svc.Alerts(ctx)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, "cardiac arrest", alert.Reason)

	alert, err = svc.Alerts(ctx)
	require.NoError(t, err)
	assert.Nil(t, alert)
}

func TestVitals(t *testing.T) {
	ctx := context.Background()
	svc := NewVitalsService(setupDB(t))

	log := &models.VitalsLog{UserName: " Asha ", HeartRate: 120}
	require.NoError(t, svc.Record(ctx, log))
	assert.Equal(t, VitalsHigh, log.Status)
	assert.Equal(t, "Asha", log.UserName)

	require.NoError(t, svc.Record(ctx, &models.VitalsLog{UserName: "Ravi", HeartRate: 72}))

	err := svc.Record(ctx, &models.VitalsLog{HeartRate: 5})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Fields, 2)

	logs, err := svc.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, VitalsNormal, classifyHeartRate(72))
	assert.Equal(t, VitalsLow, classifyHeartRate(45))
}
