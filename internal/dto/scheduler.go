package dto

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/noah-isme/exam-scheduler/internal/models"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// DurationField accepts an exam duration as {"hours":2,"minutes":30}, as a
// plain minute count, or as text such as "2h30".
type DurationField struct {
	Minutes int
}

// UnmarshalJSON decodes any of the three accepted forms.
func (d *DurationField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		d.Minutes = 0
		return nil
	}
	switch trimmed[0] {
	case '{':
		var structured models.Duration
		if err := json.Unmarshal(trimmed, &structured); err != nil {
			return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "invalid duration object")
		}
		d.Minutes = structured.TotalMinutes()
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "invalid duration text")
		}
		minutes, err := models.ParseDuration(text)
		if err != nil {
			return err
		}
		d.Minutes = minutes
	default:
		var minutes int
		if err := json.Unmarshal(trimmed, &minutes); err != nil {
			return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "invalid duration minutes")
		}
		d.Minutes = minutes
	}
	return nil
}

// MarshalJSON writes the normalised minute count.
func (d DurationField) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Minutes)
}

// ExamInput describes an exam to place.
type ExamInput struct {
	ID           string        `json:"id" validate:"required"`
	Name         string        `json:"name"`
	Duration     DurationField `json:"duration"`
	Level        string        `json:"level" validate:"required"`
	Department   string        `json:"department" validate:"required"`
	Participants int           `json:"participants" validate:"min=0"`
}

// RoomInput describes a room available to the run.
type RoomInput struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

// ProctorInput describes a proctor and, optionally, when they can supervise.
type ProctorInput struct {
	ID           string                      `json:"id" validate:"required"`
	Name         string                      `json:"name"`
	Department   string                      `json:"department"`
	Availability []models.AvailabilityWindow `json:"availability"`
}

// TimeSlotInput is one scheduling atom.
type TimeSlotInput struct {
	ID    string    `json:"id" validate:"required"`
	Start time.Time `json:"start" validate:"required"`
	End   time.Time `json:"end" validate:"required"`
}

// ScheduleRequest is the complete input of a scheduling run.
type ScheduleRequest struct {
	Exams     []ExamInput     `json:"exams" validate:"dive"`
	Rooms     []RoomInput     `json:"rooms" validate:"dive"`
	Proctors  []ProctorInput  `json:"proctors" validate:"dive"`
	TimeSlots []TimeSlotInput `json:"time_slots" validate:"dive"`
}

// RoomStatusView reports a room's occupancy after a run.
type RoomStatusView struct {
	RoomID        string            `json:"room_id"`
	Status        models.RoomStatus `json:"status"`
	OccupiedSlots int               `json:"occupied_slots"`
	TotalSlots    int               `json:"total_slots"`
}

// ScheduleStats summarises the search.
type ScheduleStats struct {
	Variables   int   `json:"variables"`
	Constraints int   `json:"constraints"`
	Nodes       int64 `json:"nodes"`
	ElapsedMs   int64 `json:"elapsed_ms"`
}

// ScheduleResult is returned by a successful run. Status is OPTIMAL when the
// search proved minimality and FEASIBLE when the budget cut it short.
type ScheduleResult struct {
	RunID        string                      `json:"run_id"`
	Status       string                      `json:"status"`
	Objective    int64                       `json:"objective"`
	Assignments  []models.ScheduleAssignment `json:"assignments"`
	RoomStatuses []RoomStatusView            `json:"room_statuses"`
	Stats        ScheduleStats               `json:"stats"`
}

// ManualAssignRequest places one exam directly, bypassing the solver.
type ManualAssignRequest struct {
	ExamID     string   `json:"exam_id" validate:"required"`
	RoomID     string   `json:"room_id" validate:"required"`
	TimeSlotID string   `json:"time_slot_id" validate:"required"`
	ProctorIDs []string `json:"proctor_ids" validate:"required,min=1,dive,required"`
}

// SchedulerMetricsSnapshot aggregates run statistics for summaries.
type SchedulerMetricsSnapshot struct {
	Runs         uint64    `json:"runs"`
	Solved       uint64    `json:"solved"`
	Failed       uint64    `json:"failed"`
	AverageRunMs float64   `json:"average_run_ms"`
	Goroutines   int       `json:"goroutines"`
	GeneratedAt  time.Time `json:"generated_at"`
}
