package models

import (
	"fmt"
	"sort"
	"time"

	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// Problem is the immutable snapshot handed to a single scheduling run.
type Problem struct {
	Exams     []Exam
	Rooms     []Room
	Proctors  []Proctor
	TimeSlots []TimeSlot
}

// Empty reports whether any of the four collections is missing.
func (p Problem) Empty() bool {
	return len(p.Exams) == 0 || len(p.Rooms) == 0 || len(p.Proctors) == 0 || len(p.TimeSlots) == 0
}

// Validate checks the per-record invariants: positive durations and
// capacities, well-formed slots of exactly slotWidth, and unique ids.
func (p Problem) Validate(slotWidth time.Duration) error {
	if slotWidth <= 0 {
		return appErrors.Clone(appErrors.ErrMalformedInput, "slot width must be positive")
	}

	examIDs := make(map[string]struct{}, len(p.Exams))
	for _, exam := range p.Exams {
		if exam.ID == "" {
			return appErrors.Clone(appErrors.ErrMalformedInput, "exam id is required")
		}
		if _, dup := examIDs[exam.ID]; dup {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("duplicate exam id %s", exam.ID))
		}
		examIDs[exam.ID] = struct{}{}
		if exam.DurationMinutes <= 0 {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("exam %s duration must be positive", exam.ID))
		}
		if exam.Participants < 0 {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("exam %s participant count is negative", exam.ID))
		}
	}

	roomIDs := make(map[string]struct{}, len(p.Rooms))
	for _, room := range p.Rooms {
		if _, dup := roomIDs[room.ID]; dup || room.ID == "" {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("room id %q is missing or duplicated", room.ID))
		}
		roomIDs[room.ID] = struct{}{}
		if room.Capacity <= 0 {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("room %s capacity must be positive", room.ID))
		}
	}

	proctorIDs := make(map[string]struct{}, len(p.Proctors))
	for _, proctor := range p.Proctors {
		if _, dup := proctorIDs[proctor.ID]; dup || proctor.ID == "" {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("proctor id %q is missing or duplicated", proctor.ID))
		}
		proctorIDs[proctor.ID] = struct{}{}
		for _, window := range proctor.Availability {
			if window.End.Before(window.Start) {
				return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("proctor %s availability ends before it starts", proctor.ID))
			}
		}
	}

	slotIDs := make(map[string]struct{}, len(p.TimeSlots))
	for _, slot := range p.TimeSlots {
		if _, dup := slotIDs[slot.ID]; dup || slot.ID == "" {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("time slot id %q is missing or duplicated", slot.ID))
		}
		slotIDs[slot.ID] = struct{}{}
		if !slot.End.After(slot.Start) {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("time slot %s ends before it starts", slot.ID))
		}
		if slot.Width() != slotWidth {
			return appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("time slot %s is %s wide, expected %s", slot.ID, slot.Width(), slotWidth))
		}
	}
	return nil
}

// SortedSlots returns the time slots ordered by start instant, ties by id.
// Slot indices used by the constraint model refer to this order.
func (p Problem) SortedSlots() []TimeSlot {
	slots := make([]TimeSlot, len(p.TimeSlots))
	copy(slots, p.TimeSlots)
	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].ID < slots[j].ID
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots
}
