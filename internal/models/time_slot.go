package models

import "time"

// TimeSlot is the scheduling atom. All slots of a run share one width.
type TimeSlot struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Width returns the slot length.
func (t TimeSlot) Width() time.Duration {
	return t.End.Sub(t.Start)
}

// Precedes reports whether next starts exactly when t ends.
func (t TimeSlot) Precedes(next TimeSlot) bool {
	return t.End.Equal(next.Start)
}
