package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler/internal/csp"
	"github.com/noah-isme/exam-scheduler/internal/dto"
	"github.com/noah-isme/exam-scheduler/internal/models"
	"github.com/noah-isme/exam-scheduler/internal/solver"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
	"github.com/noah-isme/exam-scheduler/pkg/logger"
)

type schedulerMetrics interface {
	ObserveSchedulerRun(verdict string, elapsed time.Duration, nodes int64, scheduled int)
}

// ExamSchedulerConfig governs the constraint model and search budget.
type ExamSchedulerConfig struct {
	SlotMinutes int
	TimeLimit   time.Duration
	MaxNodes    int64
	Workers     int
	MinProctors int

	// Relaxations. Both rules are enforced unless explicitly disabled.
	DisableAvailability bool
	DisableCapacity     bool
}

// ExamSchedulerService turns exams, rooms, proctors and time slots into a
// conflict-free timetable. It keeps no state between runs and is safe for
// concurrent use.
type ExamSchedulerService struct {
	cfg       ExamSchedulerConfig
	validator *validator.Validate
	logger    *zap.Logger
	metrics   schedulerMetrics
}

// NewExamSchedulerService wires scheduler dependencies.
func NewExamSchedulerService(validate *validator.Validate, logger *zap.Logger, metrics schedulerMetrics, cfg ExamSchedulerConfig) *ExamSchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SlotMinutes <= 0 {
		cfg.SlotMinutes = 30
	}
	if cfg.MinProctors <= 0 {
		cfg.MinProctors = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &ExamSchedulerService{
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
	}
}

// Schedule validates a request payload and runs the scheduler on it.
func (s *ExamSchedulerService) Schedule(ctx context.Context, req dto.ScheduleRequest) (*dto.ScheduleResult, error) {
	if len(req.Exams) == 0 || len(req.Rooms) == 0 || len(req.Proctors) == 0 || len(req.TimeSlots) == 0 {
		return nil, insufficientResources(len(req.Exams), len(req.Rooms), len(req.Proctors), len(req.TimeSlots))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "invalid scheduling payload")
	}
	return s.ScheduleProblem(ctx, ToProblem(req))
}

// ScheduleProblem runs model construction, search and extraction on an
// already converted problem.
func (s *ExamSchedulerService) ScheduleProblem(ctx context.Context, problem models.Problem) (*dto.ScheduleResult, error) {
	if problem.Empty() {
		return nil, insufficientResources(len(problem.Exams), len(problem.Rooms), len(problem.Proctors), len(problem.TimeSlots))
	}
	slotWidth := time.Duration(s.cfg.SlotMinutes) * time.Minute
	if err := problem.Validate(slotWidth); err != nil {
		return nil, err
	}

	model, err := csp.Build(problem, csp.BuildOptions{
		SlotMinutes:         s.cfg.SlotMinutes,
		MinProctors:         s.cfg.MinProctors,
		EnforceAvailability: !s.cfg.DisableAvailability,
		EnforceCapacity:     !s.cfg.DisableCapacity,
	})
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	log := s.logger.With(logger.SchedulerRun(runID, len(problem.Exams), len(problem.Rooms), len(problem.Proctors), len(problem.TimeSlots))...)
	log.Debug("scheduler run started",
		zap.Int("variables", model.NumVars()),
		zap.Int("constraints", len(model.Constraints)),
		zap.Int("workers", s.cfg.Workers),
	)

	res := solver.Solve(ctx, model, solver.Options{
		TimeLimit: s.cfg.TimeLimit,
		MaxNodes:  s.cfg.MaxNodes,
		Workers:   s.cfg.Workers,
	})

	fields := []zap.Field{
		zap.String("verdict", res.Verdict.String()),
		zap.Int64("nodes", res.Nodes),
		zap.Duration("elapsed", res.Elapsed),
	}

	if !res.Verdict.Solved() {
		s.observe(res, 0)
		log.Info("scheduler run found no schedule", fields...)
		if res.Verdict == solver.BudgetExceeded {
			return nil, appErrors.Clone(appErrors.ErrBudgetExceeded, fmt.Sprintf("no schedule found within %d nodes / %s", res.Nodes, res.Elapsed.Round(time.Millisecond)))
		}
		return nil, appErrors.Clone(appErrors.ErrNoFeasibleSchedule, "no assignment satisfies every hard constraint")
	}

	if err := model.Check(*res.Solution); err != nil {
		s.observe(res, 0)
		log.Error("solver returned an invalid schedule", append(fields, zap.Error(err))...)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "solver returned an invalid schedule")
	}

	assignments, err := extractAssignments(problem, model, res.Assignment)
	if err != nil {
		s.observe(res, 0)
		return nil, err
	}
	s.observe(res, len(assignments))
	log.Info("scheduler run completed", append(fields, zap.Int64("objective", res.Objective))...)

	return &dto.ScheduleResult{
		RunID:        runID,
		Status:       res.Verdict.String(),
		Objective:    res.Objective,
		Assignments:  assignments,
		RoomStatuses: deriveRoomStatuses(problem, assignments),
		Stats: dto.ScheduleStats{
			Variables:   model.NumVars(),
			Constraints: len(model.Constraints),
			Nodes:       res.Nodes,
			ElapsedMs:   res.Elapsed.Milliseconds(),
		},
	}, nil
}

// ManualAssign builds a single assignment from explicit ids without running
// the solver. Only presence is checked; conflict avoidance is the caller's
// responsibility.
func (s *ExamSchedulerService) ManualAssign(problem models.Problem, req dto.ManualAssignRequest) (*models.ScheduleAssignment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid manual assignment payload")
	}

	examIdx := indexOf(problem.Exams, func(e models.Exam) string { return e.ID }, req.ExamID)
	if examIdx < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("exam %s not found", req.ExamID))
	}
	if indexOf(problem.Rooms, func(r models.Room) string { return r.ID }, req.RoomID) < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("room %s not found", req.RoomID))
	}
	for _, id := range req.ProctorIDs {
		if indexOf(problem.Proctors, func(p models.Proctor) string { return p.ID }, id) < 0 {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("proctor %s not found", id))
		}
	}
	slots := problem.SortedSlots()
	start := indexOf(slots, func(t models.TimeSlot) string { return t.ID }, req.TimeSlotID)
	if start < 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("time slot %s not found", req.TimeSlotID))
	}

	exam := problem.Exams[examIdx]
	span := models.SpanSlots(exam.DurationMinutes, s.cfg.SlotMinutes)
	assignment := manualAssignment(exam, slots, start, span)
	assignment.RoomID = req.RoomID
	assignment.ProctorIDs = append([]string(nil), req.ProctorIDs...)
	return &assignment, nil
}

func (s *ExamSchedulerService) observe(res solver.Result, scheduled int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveSchedulerRun(res.Verdict.String(), res.Elapsed, res.Nodes, scheduled)
}

// ToProblem converts a request payload into the engine's problem snapshot,
// normalising level and department tags.
func ToProblem(req dto.ScheduleRequest) models.Problem {
	problem := models.Problem{
		Exams:     make([]models.Exam, 0, len(req.Exams)),
		Rooms:     make([]models.Room, 0, len(req.Rooms)),
		Proctors:  make([]models.Proctor, 0, len(req.Proctors)),
		TimeSlots: make([]models.TimeSlot, 0, len(req.TimeSlots)),
	}
	for _, e := range req.Exams {
		problem.Exams = append(problem.Exams, models.Exam{
			ID:              e.ID,
			Name:            e.Name,
			DurationMinutes: e.Duration.Minutes,
			Level:           models.NormalizeLevel(e.Level),
			Department:      models.NormalizeDepartment(e.Department),
			Participants:    e.Participants,
		})
	}
	for _, r := range req.Rooms {
		problem.Rooms = append(problem.Rooms, models.Room{ID: r.ID, Name: r.Name, Capacity: r.Capacity, Status: models.RoomStatusAvailable})
	}
	for _, p := range req.Proctors {
		problem.Proctors = append(problem.Proctors, models.Proctor{
			ID:           p.ID,
			Name:         p.Name,
			Department:   models.NormalizeDepartment(p.Department),
			Availability: p.Availability,
		})
	}
	for _, t := range req.TimeSlots {
		problem.TimeSlots = append(problem.TimeSlots, models.TimeSlot{ID: t.ID, Start: t.Start, End: t.End})
	}
	return problem
}

// IsNoSchedule reports whether err means the run ended without a schedule
// (proven infeasible or out of budget) rather than on bad input.
func IsNoSchedule(err error) bool {
	return errors.Is(err, appErrors.ErrNoFeasibleSchedule) || errors.Is(err, appErrors.ErrBudgetExceeded)
}

func insufficientResources(exams, rooms, proctors, slots int) error {
	return appErrors.Clone(appErrors.ErrInsufficientResources, fmt.Sprintf("exams=%d rooms=%d proctors=%d time_slots=%d: every collection must be non-empty", exams, rooms, proctors, slots))
}

func indexOf[T any](items []T, key func(T) string, id string) int {
	for i, item := range items {
		if key(item) == id {
			return i
		}
	}
	return -1
}
