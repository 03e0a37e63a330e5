package models

type Doctor struct {
	ID                   int64  `json:"id" yaml:"id"`
	Name                 string `json:"name" yaml:"name"`
	Speciality           string `json:"speciality" yaml:"speciality"`
	Qualification        string `json:"qualification" yaml:"qualification"`
	ClinicName           string `json:"clinic_name" yaml:"clinic_name"`
	ClinicAddress        string `json:"clinic_address" yaml:"clinic_address"`
	StartTime            string `json:"start_time" yaml:"start_time"`
	EndTime              string `json:"end_time" yaml:"end_time"`
	BookingWindowDays    int    `json:"booking_window_days" yaml:"booking_window_days"`
	MaxPatientsPerDay    int    `json:"max_patients_per_day" yaml:"max_patients_per_day"`
	PharmacyAvailable    bool   `json:"pharmacy_available" yaml:"pharmacy_available"`
	WheelchairAccessible bool   `json:"wheelchair_accessible" yaml:"wheelchair_accessible"`
}

// DayAvailability marks whether the doctor takes bookings on a date.
type DayAvailability struct {
	Date   string `json:"date"`
	IsOpen bool   `json:"is_open"`
}
