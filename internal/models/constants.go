package models

const (
	StatusWaiting        = "waiting"
	StatusCalled         = "called"
	StatusInConsultation = "in_consultation"
)

const (
	FeeTaskPending   = "pending"
	FeeTaskRetry     = "retry"
	FeeTaskCompleted = "completed"
	FeeTaskFailed    = "failed"
)

const (
	ChargeLateFee     = "late_fee"
	ChargeLateArrival = "late_arrival"
)

const (
	// DateLayout is the wire and storage format of booking dates.
	DateLayout = "2006-01-02"

	// SlotLayout is the 12-hour format of premium time slots, e.g. "9:30 AM".
	SlotLayout = "3:04 PM"

	// FreeTokenMin and FreeTokenMax bound free-tier tokens as [min, max).
	FreeTokenMin = 40
	FreeTokenMax = 70

	DefaultAverageMinutesPerPatient = 5
	DefaultTravelTimeMinutes        = 20

	// DefaultGracePeriodSeconds is the window after a missed premium slot.
	DefaultGracePeriodSeconds = 300

	DefaultLateFee           = 25
	DefaultLateArrivalCharge = 100
	DefaultConsultationFee   = 500

	DefaultCreditExpiryWorkingDays = 7
	DefaultBookingWindowDays       = 7

	// DefaultStartingToken is the serving token a fresh queue starts from.
	DefaultStartingToken = 38
)

var DefaultTimeSlots = []string{
	"9:00 AM", "9:30 AM", "10:00 AM", "10:30 AM", "11:00 AM", "11:30 AM",
	"12:00 PM", "12:30 PM", "1:00 PM", "1:30 PM", "2:00 PM", "2:30 PM",
	"3:00 PM", "3:30 PM", "4:00 PM", "4:30 PM", "5:00 PM",
}
