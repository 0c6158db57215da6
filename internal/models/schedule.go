package models

// WeeklyInterval is one recurring slot in a weekly schedule. Times are
// minutes since midnight so half-open comparisons stay exact; DayOfWeek
// follows time.Weekday (0 = Sunday).
type WeeklyInterval struct {
	DayOfWeek    int `db:"day_of_week" json:"day_of_week"`
	StartMinutes int `db:"start_minutes" json:"start_minutes"`
	EndMinutes   int `db:"end_minutes" json:"end_minutes"`
}

// Overlaps reports whether two intervals collide. Intervals are half-open:
// touching endpoints do not overlap.
func (w WeeklyInterval) Overlaps(other WeeklyInterval) bool {
	if w.DayOfWeek != other.DayOfWeek {
		return false
	}
	return w.StartMinutes < other.EndMinutes && other.StartMinutes < w.EndMinutes
}

// Valid reports whether the interval is well-formed.
func (w WeeklyInterval) Valid() bool {
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return false
	}
	if w.StartMinutes < 0 || w.EndMinutes > 24*60 {
		return false
	}
	return w.StartMinutes < w.EndMinutes
}
