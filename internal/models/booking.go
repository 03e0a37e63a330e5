package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Tier string

const (
	TierPremium Tier = "premium"
	TierFree    Tier = "free"
)

func (t Tier) Valid() bool {
	return t == TierPremium || t == TierFree
}

// BookingRecord is the patient's current booking. Premium records carry
// ScheduledTime, free records carry TokenNumber, never both.
type BookingRecord struct {
	PatientID     int64     `json:"patient_id"`
	Tier          Tier      `json:"tier"`
	Date          string    `json:"date"`
	ScheduledTime string    `json:"scheduled_time,omitempty"`
	TokenNumber   int       `json:"token_number,omitempty"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

var ErrInvalidSlot = errors.New("time must look like h:mm AM/PM")

// Validate checks the tier/field invariant.
func (b BookingRecord) Validate() error {
	if _, err := time.Parse(DateLayout, b.Date); err != nil {
		return fmt.Errorf("invalid booking date %q: %w", b.Date, err)
	}
	switch b.Tier {
	case TierPremium:
		if b.ScheduledTime == "" || b.TokenNumber != 0 {
			return errors.New("premium booking needs a scheduled time and no token")
		}
	case TierFree:
		if b.TokenNumber <= 0 || b.ScheduledTime != "" {
			return errors.New("free booking needs a token and no scheduled time")
		}
	default:
		return fmt.Errorf("unknown tier %q", b.Tier)
	}
	return nil
}

// Day returns the booking date at midnight in loc.
func (b BookingRecord) Day(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(DateLayout, b.Date, loc)
}

// ScheduledAt resolves a premium slot to a wall-clock instant on the booking date.
func (b BookingRecord) ScheduledAt(loc *time.Location) (time.Time, error) {
	if b.Tier != TierPremium {
		return time.Time{}, errors.New("only premium bookings have a scheduled time")
	}
	day, err := b.Day(loc)
	if err != nil {
		return time.Time{}, err
	}
	return SlotTime(day, b.ScheduledTime)
}

// ParseSlot splits an "h:mm AM/PM" string into 24-hour clock parts.
func ParseSlot(slot string) (hour, minute int, err error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(slot), " "))
	t, err := time.Parse(SlotLayout, normalized)
	if err != nil {
		return 0, 0, ErrInvalidSlot
	}
	return t.Hour(), t.Minute(), nil
}

// SlotTime places slot on the calendar day of day, in day's location.
func SlotTime(day time.Time, slot string) (time.Time, error) {
	hour, minute, err := ParseSlot(slot)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}

// FormatSlot renders t the way slots are displayed.
func FormatSlot(t time.Time) string {
	return t.Format(SlotLayout)
}
