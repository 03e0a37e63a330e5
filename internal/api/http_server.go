package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"clinicq/internal/booking"
	"clinicq/internal/checkin"
	"clinicq/internal/config"
	"clinicq/internal/database"
	"clinicq/internal/domain"
	"clinicq/internal/logging"
	"clinicq/internal/queue"
	"clinicq/internal/service"

	"github.com/rs/zerolog"
)

// Services bundles everything the handlers call into.
type Services struct {
	Patients *service.PatientService
	Selector *booking.Selector
	Bookings queue.BookingReader
	History  domain.BookingHistory
	Tracker  *queue.Tracker
	CheckIns *checkin.Manager
	Queue    *queue.LiveQueue
	Doctors  *service.DoctorService
	Finance  *service.FinanceService
	Vitals   *service.VitalsService
	// Health reports whether backing stores are reachable; nil means always healthy.
	Health func(ctx context.Context) error
}

// HTTPServer exposes the patient, mediator and doctor JSON API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, svc: svc, logger: logging.Component(logger, "http")}
	srv.auth = NewHTTPAuth(cfg)
	srv.routes(mux)

	handler := loggingMiddleware(srv.logger, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /api/v1/accounts/login", s.handleLogin)
	mux.HandleFunc("GET /api/v1/accounts/{id}/patients", s.handleListPatients)
	mux.HandleFunc("POST /api/v1/accounts/{id}/patients", s.handleAddPatient)
	mux.HandleFunc("POST /api/v1/patients/{id}/select", s.handleSelectPatient)
	mux.HandleFunc("GET /api/v1/patients/{id}/profile", s.handleGetProfile)
	mux.HandleFunc("PUT /api/v1/patients/{id}/profile", s.handlePutProfile)

	mux.HandleFunc("GET /api/v1/slots", s.handleSlots)
	mux.HandleFunc("POST /api/v1/bookings", s.handleConfirmBooking)
	mux.HandleFunc("GET /api/v1/bookings/{patientID}", s.handleGetBooking)
	mux.HandleFunc("GET /api/v1/tracker/{patientID}", s.handleTracker)

	mux.HandleFunc("POST /api/v1/checkin/{patientID}", s.handleCheckInStart)
	mux.HandleFunc("GET /api/v1/checkin/{patientID}", s.handleCheckInGet)
	mux.HandleFunc("POST /api/v1/checkin/{patientID}/arrive", s.handleCheckInArrive)
	mux.HandleFunc("POST /api/v1/checkin/{patientID}/grace", s.handleCheckInGrace)
	mux.HandleFunc("POST /api/v1/checkin/{patientID}/acknowledge", s.handleCheckInAcknowledge)
	mux.HandleFunc("DELETE /api/v1/checkin/{patientID}", s.handleCheckInAbandon)

	mux.HandleFunc("GET /api/v1/mediator/queue", s.handleQueue)
	mux.HandleFunc("POST /api/v1/mediator/queue", s.handleQueueAdd)
	mux.HandleFunc("POST /api/v1/mediator/call-next", s.handleCallNext)
	mux.HandleFunc("POST /api/v1/mediator/late-arrival", s.handleLateArrival)
	mux.HandleFunc("POST /api/v1/mediator/emergency", s.handleEmergency)

	mux.HandleFunc("GET /api/v1/doctor/{id}/clinic-details", s.handleClinicDetails)
	mux.HandleFunc("GET /api/v1/doctor/balance", s.handleBalance)
	mux.HandleFunc("GET /api/v1/doctor/balance/export", s.handleBalanceExport)
	mux.HandleFunc("GET /api/v1/doctor/availability", s.handleGetAvailability)
	mux.HandleFunc("PUT /api/v1/doctor/availability", s.handlePutAvailability)
	mux.HandleFunc("GET /api/v1/doctor/alerts", s.handleAlerts)
	mux.HandleFunc("GET /api/v1/ledger/{patientID}", s.handleLedger)
	mux.HandleFunc("POST /api/v1/ledger/{patientID}/adjust", s.handleAdjustCredit)

	mux.HandleFunc("POST /api/v1/vitals", s.handleRecordVitals)
	mux.HandleFunc("GET /api/v1/vitals", s.handleListVitals)
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps domain errors to status codes. Anything unknown is
// logged and reported as a 500 without detail.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": verr.Fields})
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, queue.ErrNoBooking),
		errors.Is(err, queue.ErrNotInQueue),
		errors.Is(err, checkin.ErrNoSession),
		errors.Is(err, service.ErrNoClinicDetails):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrTierRequired),
		errors.Is(err, booking.ErrDateRequired),
		errors.Is(err, booking.ErrTimeRequired),
		errors.Is(err, booking.ErrInvalidDate),
		errors.Is(err, booking.ErrInvalidTime),
		errors.Is(err, booking.ErrUnknownSlot),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrDateTooFar),
		errors.Is(err, booking.ErrPatientNeeded),
		errors.Is(err, queue.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrClinicClosed),
		errors.Is(err, queue.ErrQueueEmpty),
		errors.Is(err, checkin.ErrInvalidTransition),
		errors.Is(err, checkin.ErrGraceExpired),
		errors.Is(err, checkin.ErrNoLateFee),
		errors.Is(err, checkin.ErrSessionClosed):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	return id, nil
}
