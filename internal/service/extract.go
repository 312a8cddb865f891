package service

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler/internal/csp"
	"github.com/noah-isme/exam-scheduler/internal/dto"
	"github.com/noah-isme/exam-scheduler/internal/models"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// extractAssignments reads the chosen start and proctor variables back into
// one assignment per exam, in input order.
func extractAssignments(problem models.Problem, model *csp.Model, values *bitset.BitSet) ([]models.ScheduleAssignment, error) {
	slots := problem.SortedSlots()
	assignments := make([]models.ScheduleAssignment, 0, len(problem.Exams))
	for e, exam := range problem.Exams {
		room, start, ok := model.Start(values, e)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInternal, fmt.Sprintf("exam %s has no start variable set", exam.ID))
		}
		assignment := manualAssignment(exam, slots, start, model.Exams[e].SpanLen)
		assignment.RoomID = problem.Rooms[room].ID
		assignment.ProctorIDs = lo.Map(model.Supervisors(values, e), func(p int, _ int) string {
			return problem.Proctors[p].ID
		})
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

// manualAssignment fills the time fields of an assignment starting at slot
// index start. The end is the start plus the exam's exact duration, which may
// fall before the end of the last covered slot.
func manualAssignment(exam models.Exam, slots []models.TimeSlot, start, span int) models.ScheduleAssignment {
	last := start + span
	if last > len(slots) {
		last = len(slots)
	}
	begin := slots[start].Start
	return models.ScheduleAssignment{
		ExamID: exam.ID,
		TimeSlotIDs: lo.Map(slots[start:last], func(t models.TimeSlot, _ int) string {
			return t.ID
		}),
		StartTime: begin,
		EndTime:   begin.Add(exam.Duration()),
	}
}

// deriveRoomStatuses reports, per room, how many slots the schedule uses.
func deriveRoomStatuses(problem models.Problem, assignments []models.ScheduleAssignment) []dto.RoomStatusView {
	total := len(problem.TimeSlots)
	used := make(map[string]int, len(problem.Rooms))
	for _, a := range assignments {
		used[a.RoomID] += len(a.TimeSlotIDs)
	}

	return lo.Map(problem.Rooms, func(r models.Room, _ int) dto.RoomStatusView {
		occupied := used[r.ID]
		status := models.RoomStatusPartiallyOccupied
		switch {
		case occupied == 0:
			status = models.RoomStatusAvailable
		case occupied >= total:
			status = models.RoomStatusOccupied
		}
		return dto.RoomStatusView{RoomID: r.ID, Status: status, OccupiedSlots: occupied, TotalSlots: total}
	})
}
