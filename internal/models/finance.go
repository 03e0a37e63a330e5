package models

import "time"

type Ledger struct {
	PatientID     int64      `json:"patient_id"`
	TotalFee      int64      `json:"total_fee"`
	CreditBalance int64      `json:"credit_balance"`
	CreditExpiry  *time.Time `json:"credit_expiry,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Charge is an applied deduction or fee.
type Charge struct {
	ID        int64     `json:"id"`
	TaskID    int64     `json:"task_id,omitempty"`
	PatientID int64     `json:"patient_id"`
	Kind      string    `json:"kind"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type PendingCredit struct {
	PatientID     int64     `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	Amount        int64     `json:"amount"`
	DaysRemaining int       `json:"days_remaining"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Balance is the doctor's revenue overview for one day.
type Balance struct {
	Date               string          `json:"date"`
	TotalPatients      int             `json:"total_patients"`
	CollectedToday     int64           `json:"collected_today"`
	MissedAppointments int64           `json:"missed_appointments"`
	LateFees           int64           `json:"late_fees"`
	PendingCredits     []PendingCredit `json:"pending_credits"`
	PendingTotal       int64           `json:"pending_total"`
	TotalRevenue       int64           `json:"total_revenue"`
}

// FeeTask is a queued ledger charge.
type FeeTask struct {
	ID          int64      `json:"id"`
	Kind        string     `json:"kind"`
	PatientID   int64      `json:"patient_id"`
	Amount      int64      `json:"amount"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
