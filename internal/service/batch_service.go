package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler/internal/dto"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
	"github.com/noah-isme/exam-scheduler/pkg/jobs"
)

// JobTypeSchedule tags queue jobs that carry a BatchItem.
const JobTypeSchedule = "schedule"

// BatchItem is one independent problem of a batch run.
type BatchItem struct {
	Name    string
	Request dto.ScheduleRequest
}

// BatchOutcome is the final state of one batch item.
type BatchOutcome struct {
	JobID    string
	Name     string
	Attempts int
	Result   *dto.ScheduleResult
	Err      error
}

// BatchWorker bridges queue jobs to ExamSchedulerService. Every retry doubles
// the node and time budget of the previous attempt.
type BatchWorker struct {
	scheduler *ExamSchedulerService
	logger    *zap.Logger

	mu       sync.Mutex
	outcomes map[string]*BatchOutcome
}

// NewBatchWorker constructs a worker.
func NewBatchWorker(scheduler *ExamSchedulerService, logger *zap.Logger) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWorker{
		scheduler: scheduler,
		logger:    logger,
		outcomes:  make(map[string]*BatchOutcome),
	}
}

// Handle processes a queue job.
func (w *BatchWorker) Handle(ctx context.Context, job jobs.Job) error {
	item, ok := job.Payload.(BatchItem)
	if !ok {
		err := fmt.Errorf("job %s carries %T, want BatchItem", job.ID, job.Payload)
		w.store(job, BatchItem{}, nil, err)
		return err
	}

	scheduler := w.scheduler.withBudgetScale(1 << job.Attempt)
	res, err := scheduler.Schedule(ctx, item.Request)
	w.store(job, item, res, err)
	if err != nil {
		w.logger.Sugar().Infow("batch item failed", "job_id", job.ID, "name", item.Name, "attempt", job.Attempt, "error", err)
		return err
	}
	return nil
}

// Outcomes returns the latest outcome of every handled job ordered by name.
func (w *BatchWorker) Outcomes() []BatchOutcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]BatchOutcome, 0, len(w.outcomes))
	for _, o := range w.outcomes {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].JobID < out[j].JobID
	})
	return out
}

func (w *BatchWorker) store(job jobs.Job, item BatchItem, res *dto.ScheduleResult, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[job.ID] = &BatchOutcome{
		JobID:    job.ID,
		Name:     item.Name,
		Attempts: job.Attempt + 1,
		Result:   res,
		Err:      err,
	}
}

// RetryBatchError reports whether a failed batch item may succeed with a
// larger budget. Infeasibility and bad input are final.
func RetryBatchError(err error) bool {
	return errors.Is(err, appErrors.ErrBudgetExceeded)
}

func (s *ExamSchedulerService) withBudgetScale(factor int64) *ExamSchedulerService {
	if factor <= 1 {
		return s
	}
	scaled := *s
	if scaled.cfg.MaxNodes > 0 {
		scaled.cfg.MaxNodes *= factor
	}
	if scaled.cfg.TimeLimit > 0 {
		scaled.cfg.TimeLimit *= time.Duration(factor)
	}
	return &scaled
}
