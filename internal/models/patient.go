package models

import "time"

type IdentityType string

const (
	IdentityAadhar IdentityType = "aadhar"
	IdentityABHA   IdentityType = "abha"
)

type Account struct {
	ID          int64     `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	Patients    []Patient `json:"patients,omitempty"`
}

type Patient struct {
	ID           int64        `json:"id"`
	AccountID    int64        `json:"account_id"`
	Name         string       `json:"name"`
	Age          int          `json:"age"`
	IdentityID   string       `json:"identity_id"`
	IdentityType IdentityType `json:"identity_type"`
	CreatedAt    time.Time    `json:"created_at"`
}

type MedicalProfile struct {
	PatientID        int64     `json:"patient_id"`
	BloodGroup       string    `json:"blood_group"`
	Allergies        string    `json:"allergies"`
	Conditions       string    `json:"conditions"`
	Medications      string    `json:"medications"`
	EmergencyContact string    `json:"emergency_contact"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type VitalsLog struct {
	ID        int64     `json:"id"`
	UserName  string    `json:"user_name"`
	HeartRate int       `json:"heart_rate"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
