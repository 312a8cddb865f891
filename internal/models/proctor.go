package models

import "time"

// AvailabilityWindow is a period during which a proctor may supervise.
type AvailabilityWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Covers reports whether [start, end) lies inside the window.
func (w AvailabilityWindow) Covers(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// Proctor supervises exams. An empty availability list means always available.
type Proctor struct {
	ID           string               `json:"id"`
	Name         string               `json:"name,omitempty"`
	Department   string               `json:"department,omitempty"`
	Availability []AvailabilityWindow `json:"availability,omitempty"`
}

// AvailableFor reports whether the proctor can cover the whole period.
func (p Proctor) AvailableFor(start, end time.Time) bool {
	if len(p.Availability) == 0 {
		return true
	}
	for _, window := range p.Availability {
		if window.Covers(start, end) {
			return true
		}
	}
	return false
}
