package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"clinicq/internal/booking"
	"clinicq/internal/checkin"
	"clinicq/internal/config"
	"clinicq/internal/database"
	"clinicq/internal/events"
	"clinicq/internal/models"
	"clinicq/internal/queue"
	"clinicq/internal/repository"
	"clinicq/internal/service"
	"clinicq/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	mediatorKey = "mediator-key"
	doctorKey   = "doctor-key"
)

type testEnv struct {
	ts    *httptest.Server
	db    *database.DB
	state *repository.AppState
	queue *queue.LiveQueue
}

func newTestEnv(t *testing.T, apiCfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.Nop()
	ctx := context.Background()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	state := repository.NewAppState(repository.NewMemoryStateRepository(time.Hour), "test")
	bus := events.NewEventBus()

	finance := service.NewFinanceService(db, db, service.FinanceOptions{Location: time.UTC, ExportPath: t.TempDir()}, &logger)
	fees := worker.NewFeeWorker(db, finance, nil, worker.RetryPolicy{}, time.Second, "test", &logger)

	doctors := service.NewDoctorService(db, state, []models.Doctor{{ID: 1, Name: "Dr. Demo", ClinicName: "Demo Clinic"}}, 1, time.UTC, &logger)
	tokens, err := booking.NewSequentialTokenSource(models.FreeTokenMin, models.FreeTokenMax, state)
	require.NoError(t, err)
	selector := booking.NewSelector(state, db, tokens, doctors, bus,
		booking.Options{Slots: models.DefaultTimeSlots, WindowDays: 7, Location: time.UTC}, &logger)

	live := queue.NewLiveQueue(queue.Options{}, bus, fees, state, &logger)
	t.Cleanup(queue.EnrollBookings(ctx, bus, live, db, &logger))
	t.Cleanup(queue.FlagLateCheckIns(bus, live))

	checkins := checkin.NewManager(state, checkin.Config{Location: time.UTC}, fees, bus, &logger)
	t.Cleanup(checkins.Shutdown)

	srv := NewHTTPServer(apiCfg, Services{
		Patients: service.NewPatientService(db, state, &logger),
		Selector: selector,
		Bookings: state,
		History:  db,
		Tracker:  queue.NewTracker(state, live, queue.DefaultParams()),
		CheckIns: checkins,
		Queue:    live,
		Doctors:  doctors,
		Finance:  finance,
		Vitals:   service.NewVitalsService(db),
		Health:   func(ctx context.Context) error { return db.PingContext(ctx) },
	}, &logger)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, state: state, queue: live}
}

func authConfig() config.APIConfig {
	return config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: mediatorKey, Name: "front desk", Permissions: []string{PermMediator}},
				{Key: doctorKey, Name: "doctor", Permissions: []string{PermDoctor}},
			},
		},
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, apiKey string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	decoded := map[string]any{}
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}
	return resp, decoded
}

func tomorrow() string {
	return time.Now().UTC().AddDate(0, 0, 1).Format(models.DateLayout)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	resp, body := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestPatientFlow(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/api/v1/accounts/login", map[string]string{"phone_number": "9876543210"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accountID := int64(body["id"].(float64))

	resp, body = env.do(t, http.MethodPost, "/api/v1/accounts/login", map[string]string{"phone_number": "42"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "phone_number")

	path := "/api/v1/accounts/" + itoa(accountID) + "/patients"
	resp, body = env.do(t, http.MethodPost, path, service.PatientInput{Name: "Asha", Age: 30, IdentityID: "123", IdentityType: models.IdentityAadhar}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "identity_id")

	resp, body = env.do(t, http.MethodPost, path, service.PatientInput{Name: "Asha", Age: 30, IdentityID: "123456789012", IdentityType: models.IdentityAadhar}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	patientID := int64(body["id"].(float64))

	resp, body = env.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["patients"], 1)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/patients/"+itoa(patientID)+"/select", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	selected, ok, err := env.state.SelectedPatient(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, patientID, selected)

	profilePath := "/api/v1/patients/" + itoa(patientID) + "/profile"
	resp, _ = env.do(t, http.MethodGet, profilePath, nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPut, profilePath, map[string]string{"blood_group": "B+", "allergies": "dust"}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = env.do(t, http.MethodGet, profilePath, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B+", body["blood_group"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/patients/abc/select", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingAndTracker(t *testing.T) {
	env := newTestEnv(t, authConfig())

	resp, body := env.do(t, http.MethodGet, "/api/v1/slots", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["slots"], len(models.DefaultTimeSlots))

	resp, body = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"patient_id": 5, "tier": "free", "date": tomorrow()}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(models.FreeTokenMin), body["token_number"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/tracker/5", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snapshot := body["queue"].(map[string]any)
	assert.Equal(t, float64(2), snapshot["tokens_ahead"])
	assert.Equal(t, float64(10), snapshot["estimated_wait_minutes"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/bookings/5", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["booking"])
	assert.Len(t, body["history"], 1)

	// the free booking was enrolled in the mediator's queue
	entry, ok := env.queue.Find(5)
	require.True(t, ok)
	assert.Equal(t, models.FreeTokenMin, entry.TokenNumber)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"patient_id": 6, "tier": "premium", "date": tomorrow(), "time": "7:15 AM"}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/tracker/99", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCheckInFlow(t *testing.T) {
	env := newTestEnv(t, authConfig())

	resp, body := env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"patient_id": 8, "tier": "premium", "date": tomorrow(), "time": "9:00 AM"}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = env.do(t, http.MethodPost, "/api/v1/checkin/8", nil, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, string(models.CheckInPending), body["status"])
	assert.Equal(t, false, body["is_late"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/checkin/8/grace", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/v1/checkin/8/arrive", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(models.CheckInSuccess), body["status"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/checkin/8/acknowledge", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/checkin/8", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/checkin/8", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/checkin/77", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMediatorRoutes(t *testing.T) {
	env := newTestEnv(t, authConfig())

	resp, _ := env.do(t, http.MethodGet, "/api/v1/mediator/queue", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/mediator/queue", nil, "bogus")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/mediator/queue", nil, doctorKey)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/mediator/call-next", nil, mediatorKey)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	for i, name := range []string{"Asha", "Ravi"} {
		resp, _ = env.do(t, http.MethodPost, "/api/v1/mediator/queue", models.QueueEntry{PatientID: int64(i + 1), Name: name, TokenNumber: 40 + i}, mediatorKey)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := env.do(t, http.MethodPost, "/api/v1/mediator/call-next", nil, mediatorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(40), body["current_serving_token"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/mediator/late-arrival", map[string]int64{"patient_id": 2}, mediatorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(42), body["token_number"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/mediator/late-arrival", map[string]int64{"patient_id": 99}, mediatorKey)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/mediator/queue", nil, mediatorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["entries"], 2)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/mediator/emergency", map[string]string{"reason": "collapse in waiting room"}, mediatorKey)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/doctor/alerts", nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	alert := body["emergency"].(map[string]any)
	assert.Equal(t, "collapse in waiting room", alert["reason"])

	_, body = env.do(t, http.MethodGet, "/api/v1/doctor/alerts", nil, doctorKey)
	assert.Nil(t, body["emergency"])
}

func TestDoctorRoutes(t *testing.T) {
	env := newTestEnv(t, authConfig())

	resp, body := env.do(t, http.MethodGet, "/api/v1/doctor/3/clinic-details", nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["fallback"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/ledger/4/adjust", map[string]int64{"amount": 300}, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(300), body["credit_balance"])

	resp, body = env.do(t, http.MethodGet, "/api/v1/ledger/4", nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(300), body["credit_balance"])
	assert.NotNil(t, body["credit_expiry"])

	resp, body = env.do(t, http.MethodPost, "/api/v1/ledger/4/adjust", map[string]int64{"amount": 0}, doctorKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["fields"], "amount")

	resp, body = env.do(t, http.MethodGet, "/api/v1/doctor/balance", nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(300), body["pending_total"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/doctor/balance/export", nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "balance_")

	closed := time.Now().UTC().AddDate(0, 0, 2)
	month := closed.Format("2006-01")
	resp, body = env.do(t, http.MethodPut, "/api/v1/doctor/availability",
		map[string]any{"month": month, "days": []models.DayAvailability{{Date: closed.Format(models.DateLayout), IsOpen: false}}}, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{"patient_id": 9, "tier": "free", "date": closed.Format(models.DateLayout)}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/doctor/availability?month="+month, nil, doctorKey)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["days"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/doctor/availability?month=soon", nil, doctorKey)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVitalsRoutes(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	resp, body := env.do(t, http.MethodPost, "/api/v1/vitals", map[string]any{"user_name": "Asha", "heart_rate": 110}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, service.VitalsHigh, body["status"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/vitals", map[string]any{"user_name": "", "heart_rate": 0}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/v1/vitals?limit=10", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["vitals"], 1)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1}})

	resp, _ := env.do(t, http.MethodGet, "/healthz", nil, "key1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/healthz", nil, "key1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/healthz", nil, "key2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start
	limiter := newRateLimiter(config.APIRateLimitConfig{RPS: 1, Burst: 1})
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.allow("a"))
	assert.False(t, limiter.allow("a"))
	assert.True(t, limiter.allow("b"))
	assert.Equal(t, 2, limiter.size())

	now = start.Add(limiterIdleTTL + limiterSweepEvery + time.Second)
	assert.True(t, limiter.allow("c"))
	assert.Equal(t, 1, limiter.size())
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/mediator/queue", PermMediator},
		{"/api/v1/doctor/balance", PermDoctor},
		{"/api/v1/ledger/4", PermDoctor},
		{"/api/v1/tracker/4", ""},
		{"/healthz", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requiredPermission(tt.path), tt.path)
	}
}

func TestEmptyPermissionsAllowAllStaffRoutes(t *testing.T) {
	assert.NoError(t, checkPermissions(config.APIClientKey{Key: "k"}, PermDoctor))
	assert.ErrorIs(t, checkPermissions(config.APIClientKey{Key: "k", Permissions: []string{PermMediator}}, PermDoctor), errPermissionDenied)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
