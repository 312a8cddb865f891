package models

import "time"

// ScheduleAssignment is the placement of one exam produced by a scheduling run.
type ScheduleAssignment struct {
	ExamID      string    `json:"exam_id"`
	RoomID      string    `json:"room_id"`
	TimeSlotIDs []string  `json:"time_slot_ids"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ProctorIDs  []string  `json:"proctor_ids"`
}

// Overlaps reports whether two assignments share any instant.
func (a ScheduleAssignment) Overlaps(other ScheduleAssignment) bool {
	return a.StartTime.Before(other.EndTime) && other.StartTime.Before(a.EndTime)
}
