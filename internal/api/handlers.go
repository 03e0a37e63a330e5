package api

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"clinicq/internal/booking"
	"clinicq/internal/models"
	"clinicq/internal/service"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.svc.Health != nil {
		if err := s.svc.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Patient routes.

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PhoneNumber string `json:"phone_number"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, err := s.svc.Patients.Login(r.Context(), body.PhoneNumber)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (s *HTTPServer) handleListPatients(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patients, err := s.svc.Patients.ListPatients(r.Context(), accountID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if patients == nil {
		patients = []*models.Patient{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patients": patients})
}

func (s *HTTPServer) handleAddPatient(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in service.PatientInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patient, err := s.svc.Patients.AddPatient(r.Context(), accountID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, patient)
}

func (s *HTTPServer) handleSelectPatient(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patient, err := s.svc.Patients.SelectPatient(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, err := s.svc.Patients.Profile(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *HTTPServer) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var profile models.MedicalProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	profile.PatientID = patientID

	if err := s.svc.Patients.SaveProfile(r.Context(), &profile); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// Booking and tracker routes.

func (s *HTTPServer) handleSlots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": s.svc.Selector.Slots()})
}

func (s *HTTPServer) handleConfirmBooking(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID int64 `json:"patient_id"`
		booking.Request
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	record, err := s.svc.Selector.Confirm(r.Context(), body.PatientID, body.Request)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	current, err := s.svc.Bookings.Booking(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{"booking": current}
	if s.svc.History != nil {
		history, err := s.svc.History.ListBookings(r.Context(), patientID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("patient_id", patientID).Msg("booking history unavailable")
		} else {
			resp["history"] = history
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleTracker(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.svc.Tracker.View(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Check-in routes.

func (s *HTTPServer) handleCheckInStart(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.svc.CheckIns.Start(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *HTTPServer) checkInAction(w http.ResponseWriter, r *http.Request, action func(int64) (models.CheckInSnapshot, error)) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := action(patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *HTTPServer) handleCheckInGet(w http.ResponseWriter, r *http.Request) {
	s.checkInAction(w, r, s.svc.CheckIns.Get)
}

func (s *HTTPServer) handleCheckInArrive(w http.ResponseWriter, r *http.Request) {
	s.checkInAction(w, r, s.svc.CheckIns.Arrive)
}

func (s *HTTPServer) handleCheckInGrace(w http.ResponseWriter, r *http.Request) {
	s.checkInAction(w, r, s.svc.CheckIns.GraceCheckIn)
}

func (s *HTTPServer) handleCheckInAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.checkInAction(w, r, s.svc.CheckIns.Acknowledge)
}

func (s *HTTPServer) handleCheckInAbandon(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.CheckIns.Abandon(patientID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mediator routes.

func (s *HTTPServer) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"current_serving_token": s.svc.Queue.CurrentServing(),
		"entries":               s.svc.Queue.Entries(),
	})
}

func (s *HTTPServer) handleQueueAdd(w http.ResponseWriter, r *http.Request) {
	var entry models.QueueEntry
	if err := decodeJSON(r, &entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	added, err := s.svc.Queue.Add(entry)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *HTTPServer) handleCallNext(w http.ResponseWriter, r *http.Request) {
	called, err := s.svc.Queue.CallNext(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"called":                called,
		"current_serving_token": s.svc.Queue.CurrentServing(),
	})
}

func (s *HTTPServer) handleLateArrival(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PatientID int64 `json:"patient_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	moved, err := s.svc.Queue.MoveDown(r.Context(), body.PatientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moved)
}

func (s *HTTPServer) handleEmergency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	signal, err := s.svc.Queue.RaiseEmergency(r.Context(), strings.TrimSpace(body.Reason))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, signal)
}

// Doctor routes.

func (s *HTTPServer) handleClinicDetails(w http.ResponseWriter, r *http.Request) {
	doctorID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doctor, fallback, err := s.svc.Doctors.ClinicDetails(r.Context(), doctorID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doctor": doctor, "fallback": fallback})
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.svc.Finance.Balance(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

func (s *HTTPServer) handleBalanceExport(w http.ResponseWriter, r *http.Request) {
	path, err := s.svc.Finance.ExportBalance(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

func (s *HTTPServer) handleGetAvailability(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	days, err := s.svc.Doctors.Availability(r.Context(), month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": month, "days": days})
}

func (s *HTTPServer) handlePutAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Month string                   `json:"month"`
		Days  []models.DayAvailability `json:"days"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	days, err := s.svc.Doctors.SetAvailability(r.Context(), body.Month, body.Days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"month": body.Month, "days": days})
}

func (s *HTTPServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alert, err := s.svc.Doctors.Alerts(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"emergency": alert})
}

func (s *HTTPServer) handleLedger(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ledger, err := s.svc.Finance.Ledger(r.Context(), patientID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

func (s *HTTPServer) handleAdjustCredit(w http.ResponseWriter, r *http.Request) {
	patientID, err := pathID(r, "patientID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ledger, err := s.svc.Finance.AdjustCredit(r.Context(), patientID, body.Amount)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ledger)
}

// Vitals routes.

func (s *HTTPServer) handleRecordVitals(w http.ResponseWriter, r *http.Request) {
	var log models.VitalsLog
	if err := decodeJSON(r, &log); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.svc.Vitals.Record(r.Context(), &log); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, log)
}

func (s *HTTPServer) handleListVitals(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := s.svc.Vitals.List(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if logs == nil {
		logs = []*models.VitalsLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"vitals": logs})
}
