package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWeeklyIntervalOverlaps(t *testing.T) {
	monMorning := WeeklyInterval{DayOfWeek: 1, StartMinutes: 540, EndMinutes: 600} // Mon 09:00-10:00

	cases := []struct {
		name     string
		other    WeeklyInterval
		overlaps bool
	}{
		{"partial overlap", WeeklyInterval{DayOfWeek: 1, StartMinutes: 570, EndMinutes: 630}, true},
		{"contained", WeeklyInterval{DayOfWeek: 1, StartMinutes: 550, EndMinutes: 590}, true},
		{"identical", WeeklyInterval{DayOfWeek: 1, StartMinutes: 540, EndMinutes: 600}, true},
		{"back to back", WeeklyInterval{DayOfWeek: 1, StartMinutes: 600, EndMinutes: 660}, false},
		{"before back to back", WeeklyInterval{DayOfWeek: 1, StartMinutes: 480, EndMinutes: 540}, false},
		{"different day", WeeklyInterval{DayOfWeek: 2, StartMinutes: 540, EndMinutes: 600}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlaps, monMorning.Overlaps(tc.other))
			assert.Equal(t, tc.overlaps, tc.other.Overlaps(monMorning))
		})
	}
}

func TestWeeklyIntervalValid(t *testing.T) {
	assert.True(t, WeeklyInterval{DayOfWeek: 0, StartMinutes: 0, EndMinutes: 60}.Valid())
	assert.False(t, WeeklyInterval{DayOfWeek: 0, StartMinutes: 60, EndMinutes: 60}.Valid())
	assert.False(t, WeeklyInterval{DayOfWeek: 7, StartMinutes: 0, EndMinutes: 60}.Valid())
	assert.False(t, WeeklyInterval{DayOfWeek: 1, StartMinutes: 0, EndMinutes: 1441}.Valid())
}

func TestEscrowRefundableAmount(t *testing.T) {
	held := Escrow{GrossAmount: 500000, Status: EscrowStatusHeld}
	assert.Equal(t, int64(500000), held.RefundableAmount())

	partial := Escrow{GrossAmount: 500000, ReleasedAmount: 200000, Status: EscrowStatusPartiallyReleased}
	assert.Equal(t, int64(300000), partial.RefundableAmount())

	refunded := Escrow{GrossAmount: 500000, Status: EscrowStatusRefunded}
	assert.Equal(t, int64(0), refunded.RefundableAmount())

	overReleased := Escrow{GrossAmount: 100, ReleasedAmount: 150, Status: EscrowStatusPartiallyReleased}
	assert.Equal(t, int64(0), overReleased.RefundableAmount())
}
