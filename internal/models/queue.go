package models

import "time"

// QueueSnapshot is the derived position of a free-tier token.
type QueueSnapshot struct {
	TokenNumber          int       `json:"token_number"`
	CurrentServingToken  int       `json:"current_serving_token"`
	TokensAhead          int       `json:"tokens_ahead"`
	EstimatedWaitMinutes int       `json:"estimated_wait_minutes"`
	ETA                  time.Time `json:"eta"`
	ETALabel             string    `json:"eta_label"`
	TimeToLeaveMinutes   int       `json:"time_to_leave_minutes"`
	LeaveNow             bool      `json:"leave_now"`
	YourTurn             bool      `json:"your_turn"`
}

// QueueEntry is one patient in the mediator's dispatch list.
type QueueEntry struct {
	TokenNumber int       `json:"token_number"`
	PatientID   int64     `json:"patient_id"`
	Name        string    `json:"name"`
	Age         int       `json:"age"`
	Tier        Tier      `json:"tier"`
	Status      string    `json:"status"`
	IsLate      bool      `json:"is_late"`
	IssuedAt    time.Time `json:"issued_at"`
}

// TrackerView is what the patient tracker shows for the current booking.
type TrackerView struct {
	Booking             BookingRecord  `json:"booking"`
	CurrentServingToken int            `json:"current_serving_token"`
	ReservedTime        string         `json:"reserved_time,omitempty"`
	Queue               *QueueSnapshot `json:"queue,omitempty"`
}
