package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := DefaultParams()

	tests := []struct {
		name     string
		token    int
		serving  int
		ahead    int
		wait     int
		leave    int
		leaveNow bool
		yourTurn bool
		etaLabel string
	}{
		{name: "far back", token: 60, serving: 42, ahead: 18, wait: 90, leave: 70, etaLabel: "11:30 AM"},
		{name: "travel equals wait", token: 46, serving: 42, ahead: 4, wait: 20, leave: 0, leaveNow: true, etaLabel: "10:20 AM"},
		{name: "close", token: 44, serving: 42, ahead: 2, wait: 10, leave: 0, leaveNow: true, etaLabel: "10:10 AM"},
		{name: "at the front", token: 42, serving: 42, ahead: 0, wait: 0, leave: 0, leaveNow: true, yourTurn: true, etaLabel: "10:00 AM"},
		{name: "already passed", token: 40, serving: 42, ahead: 0, wait: 0, leave: 0, leaveNow: true, yourTurn: true, etaLabel: "10:00 AM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Estimate(tt.token, tt.serving, now, p)
			assert.Equal(t, tt.ahead, s.TokensAhead)
			assert.Equal(t, tt.wait, s.EstimatedWaitMinutes)
			assert.Equal(t, tt.leave, s.TimeToLeaveMinutes)
			assert.Equal(t, tt.leaveNow, s.LeaveNow)
			assert.Equal(t, tt.yourTurn, s.YourTurn)
			assert.Equal(t, now.Add(time.Duration(tt.wait)*time.Minute), s.ETA)
			assert.Equal(t, tt.etaLabel, s.ETALabel)
		})
	}
}

func TestEstimateIsPure(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	p := Params{AverageMinutesPerPatient: 7, TravelTimeMinutes: 10}

	a := Estimate(55, 50, now, p)
	b := Estimate(55, 50, now, p)
	assert.Equal(t, a, b)
	assert.Equal(t, 35, a.EstimatedWaitMinutes)
	assert.Equal(t, 25, a.TimeToLeaveMinutes)
	assert.False(t, a.LeaveNow)
}
