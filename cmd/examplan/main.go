package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-scheduler/internal/dto"
	"github.com/noah-isme/exam-scheduler/internal/service"
	"github.com/noah-isme/exam-scheduler/pkg/config"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
	"github.com/noah-isme/exam-scheduler/pkg/export"
	"github.com/noah-isme/exam-scheduler/pkg/jobs"
	"github.com/noah-isme/exam-scheduler/pkg/logger"
	"github.com/noah-isme/exam-scheduler/pkg/response"
	"github.com/noah-isme/exam-scheduler/pkg/storage"
)

// exitError carries the process exit status of a failed command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		if exit, ok := err.(exitError); ok {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "examplan",
		Short:         "Conflict-free exam timetabling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := root.PersistentFlags()
	f.Int("slot-minutes", 30, "Width of every time slot in minutes")
	f.Duration("time-limit", 0, "Wall-clock search budget per run (0 = config default)")
	f.Int64("max-nodes", 0, "Search node budget per run (0 = config default)")
	f.Int("workers", 0, "Parallel search workers per run (0 = config default)")
	f.Int("min-proctors", 1, "Proctors required per exam")
	f.Bool("enforce-availability", true, "Keep proctors within their availability windows")
	f.Bool("enforce-capacity", true, "Keep exams in rooms that seat every participant")
	f.String("metrics-file", "", "Write Prometheus metrics to this textfile after the run")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "json", "Log format (json, console)")

	root.AddCommand(scheduleCmd(), batchCmd(), assignCmd())
	return root
}

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule one problem read from a JSON file",
		RunE:  runSchedule,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "-", "Problem JSON file (- for stdin)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("format", "json", "Output format (json, csv)")
	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Schedule every *.json problem in a directory concurrently",
		Args:  cobra.ExactArgs(1),
		RunE:  runBatch,
	}
	f := cmd.Flags()
	f.Int("batch-workers", 0, "Problems scheduled at once (0 = config default)")
	f.Int("retries", -1, "Retries with a doubled budget after BUDGET_EXCEEDED (-1 = config default)")
	f.String("out-dir", "", "Also write each schedule to <out-dir>/<name>.schedule.json")
	return cmd
}

func assignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Place one exam by hand without running the solver",
		RunE:  runAssign,
	}
	f := cmd.Flags()
	f.StringP("file", "f", "-", "Problem JSON file (- for stdin)")
	f.String("exam", "", "Exam id")
	f.String("room", "", "Room id")
	f.String("slot", "", "Starting time slot id")
	f.StringSlice("proctor", nil, "Proctor id (repeatable)")
	_ = cmd.MarkFlagRequired("exam")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("slot")
	return cmd
}

// app bundles what every command needs once flags and environment are merged.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *service.MetricsService
	scheduler   *service.ExamSchedulerService
	metricsFile string
}

// newApp binds command flags onto the configuration keys so that an explicit
// flag wins over the environment, which wins over .env and the defaults.
func newApp(cmd *cobra.Command) (*app, error) {
	v := viper.New()
	config.SetDefaults(v)
	bindFlag(v, cmd, "SCHEDULER_SLOT_MINUTES", "slot-minutes")
	bindFlag(v, cmd, "SCHEDULER_TIME_LIMIT", "time-limit")
	bindFlag(v, cmd, "SCHEDULER_MAX_NODES", "max-nodes")
	bindFlag(v, cmd, "SCHEDULER_WORKERS", "workers")
	bindFlag(v, cmd, "SCHEDULER_MIN_PROCTORS", "min-proctors")
	bindFlag(v, cmd, "SCHEDULER_ENFORCE_AVAILABILITY", "enforce-availability")
	bindFlag(v, cmd, "SCHEDULER_ENFORCE_CAPACITY", "enforce-capacity")
	bindFlag(v, cmd, "BATCH_WORKERS", "batch-workers")
	bindFlag(v, cmd, "BATCH_MAX_RETRIES", "retries")
	bindFlag(v, cmd, "LOG_LEVEL", "log-level")
	bindFlag(v, cmd, "LOG_FORMAT", "log-format")

	cfg, err := config.LoadViper(v)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics := service.NewMetricsService()
	scheduler := service.NewExamSchedulerService(validator.New(), logr, metrics, service.ExamSchedulerConfig{
		SlotMinutes:         cfg.Scheduler.SlotMinutes,
		TimeLimit:           cfg.Scheduler.TimeLimit,
		MaxNodes:            cfg.Scheduler.MaxNodes,
		Workers:             cfg.Scheduler.Workers,
		MinProctors:         cfg.Scheduler.MinProctors,
		DisableAvailability: !cfg.Scheduler.EnforceAvailability,
		DisableCapacity:     !cfg.Scheduler.EnforceCapacity,
	})

	metricsFile, _ := cmd.Flags().GetString("metrics-file")
	return &app{cfg: cfg, logger: logr, metrics: metrics, scheduler: scheduler, metricsFile: metricsFile}, nil
}

// bindFlag only binds flags the user actually set, so unset flags fall
// through to the environment instead of overriding it with their zero value.
func bindFlag(v *viper.Viper, cmd *cobra.Command, key, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil || !flag.Changed {
		return
	}
	_ = v.BindPFlag(key, flag)
}

func (a *app) close() {
	if a.metricsFile != "" {
		if err := a.metrics.WriteTextfile(a.metricsFile); err != nil {
			a.logger.Warn("failed to write metrics textfile", zap.String("path", a.metricsFile), zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		log.Printf("examplan: %v", err)
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path, _ := cmd.Flags().GetString("file")
	req, err := readRequest(path, cmd.InOrStdin())
	if err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}

	res, err := a.scheduler.Schedule(ctx, req)
	if err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}

	outPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	return writeOutput(outPath, cmd.OutOrStdout(), func(w io.Writer) error {
		if strings.EqualFold(format, "csv") {
			data, err := export.NewCSVExporter().Render(export.ScheduleDataset(res.Assignments))
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}
		return response.JSON(w, res)
	})
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		log.Printf("examplan: %v", err)
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, err := filepath.Glob(filepath.Join(args[0], "*.json"))
	if err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return fail(cmd.ErrOrStderr(), appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no *.json problems in %s", args[0])))
	}

	worker := service.NewBatchWorker(a.scheduler, a.logger)
	queue := jobs.NewQueue("batch", worker.Handle, jobs.QueueConfig{
		Workers:    a.cfg.Batch.Workers,
		BufferSize: len(files),
		MaxRetries: a.cfg.Batch.MaxRetries,
		Retryable:  service.RetryBatchError,
		Logger:     a.logger,
	})
	queue.Start(ctx)
	defer queue.Stop()

	batchID := uuid.NewString()
	a.logger.Info("batch started", zap.String("batch_id", batchID), zap.Int("problems", len(files)))

	parseFailures := map[string]error{}
	for _, file := range files {
		req, err := readRequest(file, nil)
		if err != nil {
			parseFailures[filepath.Base(file)] = err
			continue
		}
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    service.JobTypeSchedule,
			Payload: service.BatchItem{Name: filepath.Base(file), Request: req},
		}
		if err := queue.Enqueue(job); err != nil {
			return fail(cmd.ErrOrStderr(), err)
		}
	}
	if err := queue.Wait(ctx); err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}

	items := make([]batchItemView, 0, len(files))
	for name, err := range parseFailures {
		items = append(items, batchItemView{Name: name, Error: appErrors.FromError(err)})
	}
	for _, o := range worker.Outcomes() {
		items = append(items, batchItemView{Name: o.Name, Attempts: o.Attempts, Result: o.Result, Error: appErrors.FromError(o.Err)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	if outDir, _ := cmd.Flags().GetString("out-dir"); outDir != "" {
		if err := saveResults(outDir, items); err != nil {
			return fail(cmd.ErrOrStderr(), err)
		}
	}

	failed := 0
	for _, item := range items {
		if item.Error != nil {
			failed++
		}
	}
	a.logger.Info("batch finished", zap.String("batch_id", batchID), zap.Int("problems", len(items)), zap.Int("failed", failed))

	if err := response.JSON(cmd.OutOrStdout(), items, map[string]interface{}{
		"batch_id": batchID,
		"metrics":  a.metrics.Snapshot(),
	}); err != nil {
		return err
	}
	if failed > 0 {
		return exitError{code: 1}
	}
	return nil
}

type batchItemView struct {
	Name     string              `json:"name"`
	Attempts int                 `json:"attempts,omitempty"`
	Result   *dto.ScheduleResult `json:"result,omitempty"`
	Error    *appErrors.Error    `json:"error,omitempty"`
}

func saveResults(dir string, items []batchItemView) error {
	store, err := storage.NewLocalStorage(dir)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.Result == nil {
			continue
		}
		data, err := json.MarshalIndent(item.Result, "", "  ")
		if err != nil {
			return err
		}
		if _, err := store.Save(storage.OutputName(item.Name, "json"), data); err != nil {
			return err
		}
	}
	return nil
}

func runAssign(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		log.Printf("examplan: %v", err)
		return err
	}
	defer a.close()

	path, _ := cmd.Flags().GetString("file")
	req, err := readRequest(path, cmd.InOrStdin())
	if err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}

	examID, _ := cmd.Flags().GetString("exam")
	roomID, _ := cmd.Flags().GetString("room")
	slotID, _ := cmd.Flags().GetString("slot")
	proctorIDs, _ := cmd.Flags().GetStringSlice("proctor")

	assignment, err := a.scheduler.ManualAssign(service.ToProblem(req), dto.ManualAssignRequest{
		ExamID:     examID,
		RoomID:     roomID,
		TimeSlotID: slotID,
		ProctorIDs: proctorIDs,
	})
	if err != nil {
		return fail(cmd.ErrOrStderr(), err)
	}
	return response.JSON(cmd.OutOrStdout(), assignment)
}

func readRequest(path string, stdin io.Reader) (dto.ScheduleRequest, error) {
	var req dto.ScheduleRequest
	var r io.Reader
	if path == "" || path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return req, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "open problem file")
		}
		defer f.Close()
		r = f
	}
	if r == nil {
		return req, appErrors.Clone(appErrors.ErrMalformedInput, "no problem input")
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, "decode problem JSON")
	}
	return req, nil
}

func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	return write(f)
}

// fail prints the error envelope and maps its class to an exit status:
// 2 for bad input, 3 when no schedule exists, 4 when the budget ran out.
func fail(w io.Writer, err error) error {
	appErr := response.Error(w, err)
	switch {
	case appErr.Is(appErrors.ErrNoFeasibleSchedule):
		return exitError{code: 3}
	case appErr.Is(appErrors.ErrBudgetExceeded):
		return exitError{code: 4}
	case appErr.Status >= http.StatusBadRequest && appErr.Status < http.StatusInternalServerError:
		return exitError{code: 2}
	default:
		return exitError{code: 1}
	}
}
