package queue

import (
	"time"

	"clinicq/internal/models"
)

// Params are the clinic constants the estimate depends on.
type Params struct {
	AverageMinutesPerPatient int
	TravelTimeMinutes        int
}

func DefaultParams() Params {
	return Params{
		AverageMinutesPerPatient: models.DefaultAverageMinutesPerPatient,
		TravelTimeMinutes:        models.DefaultTravelTimeMinutes,
	}
}

// Estimate derives a free-tier patient's position from their token and the
// token being served. It is pure: the same inputs always give the same output.
func Estimate(tokenNumber, currentServing int, now time.Time, p Params) models.QueueSnapshot {
	ahead := max(0, tokenNumber-currentServing)
	wait := ahead * p.AverageMinutesPerPatient
	eta := now.Add(time.Duration(wait) * time.Minute)

	return models.QueueSnapshot{
		TokenNumber:          tokenNumber,
		CurrentServingToken:  currentServing,
		TokensAhead:          ahead,
		EstimatedWaitMinutes: wait,
		ETA:                  eta,
		ETALabel:             models.FormatSlot(eta),
		TimeToLeaveMinutes:   max(0, wait-p.TravelTimeMinutes),
		LeaveNow:             p.TravelTimeMinutes >= wait,
		YourTurn:             ahead == 0,
	}
}
