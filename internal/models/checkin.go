package models

import "time"

type CheckInStatus string

const (
	CheckInPending     CheckInStatus = "pending"
	CheckInGracePeriod CheckInStatus = "grace_period"
	CheckInLate        CheckInStatus = "late"
	CheckInSuccess     CheckInStatus = "success"
)

// Terminal reports whether no further transition can happen.
func (s CheckInStatus) Terminal() bool {
	return s == CheckInLate || s == CheckInSuccess
}

// LateFeeNotice is shown once when a grace period runs out.
type LateFeeNotice struct {
	Amount       int64     `json:"amount"`
	IssuedAt     time.Time `json:"issued_at"`
	Acknowledged bool      `json:"acknowledged"`
}

// CheckInSnapshot is a read-only view of a check-in session.
type CheckInSnapshot struct {
	SessionID             string         `json:"session_id"`
	PatientID             int64          `json:"patient_id"`
	Tier                  Tier           `json:"tier"`
	ScheduledTime         string         `json:"scheduled_time,omitempty"`
	TokenNumber           int            `json:"token_number,omitempty"`
	Status                CheckInStatus  `json:"status"`
	IsLate                bool           `json:"is_late"`
	GraceSecondsRemaining int            `json:"grace_seconds_remaining"`
	LateFee               *LateFeeNotice `json:"late_fee,omitempty"`
	CalledByMediator      bool           `json:"called_by_mediator"`
	StartedAt             time.Time      `json:"started_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}
