package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

const sessionJSON = `{
  "exams": [
    {"id": "algo", "duration": "2h30", "level": "L3", "department": "CS", "participants": 28},
    {"id": "intro", "duration": {"hours": 1, "minutes": 0}, "level": "L1", "department": "CS", "participants": 22},
    {"id": "calc", "duration": 120, "level": "L3", "department": "Math", "participants": 18}
  ],
  "rooms": [{"id": "R1", "capacity": 30}, {"id": "R2", "capacity": 25}, {"id": "R3", "capacity": 20}],
  "proctors": [{"id": "P1"}, {"id": "P2"}, {"id": "P3"}],
  "time_slots": [
    {"id": "t00", "start": "2024-06-03T08:00:00Z", "end": "2024-06-03T08:30:00Z"},
    {"id": "t01", "start": "2024-06-03T08:30:00Z", "end": "2024-06-03T09:00:00Z"},
    {"id": "t02", "start": "2024-06-03T09:00:00Z", "end": "2024-06-03T09:30:00Z"},
    {"id": "t03", "start": "2024-06-03T09:30:00Z", "end": "2024-06-03T10:00:00Z"},
    {"id": "t04", "start": "2024-06-03T10:00:00Z", "end": "2024-06-03T10:30:00Z"},
    {"id": "t05", "start": "2024-06-03T10:30:00Z", "end": "2024-06-03T11:00:00Z"},
    {"id": "t06", "start": "2024-06-03T11:00:00Z", "end": "2024-06-03T11:30:00Z"},
    {"id": "t07", "start": "2024-06-03T11:30:00Z", "end": "2024-06-03T12:00:00Z"},
    {"id": "t08", "start": "2024-06-03T12:00:00Z", "end": "2024-06-03T12:30:00Z"}
  ]
}`

const overloadJSON = `{
  "exams": [
    {"id": "a", "duration": "30m", "level": "L1", "department": "cs"},
    {"id": "b", "duration": "30m", "level": "L1", "department": "math"}
  ],
  "rooms": [{"id": "R1", "capacity": 30}, {"id": "R2", "capacity": 30}],
  "proctors": [{"id": "P1"}, {"id": "P2"}],
  "time_slots": [{"id": "t00", "start": "2024-06-03T08:00:00Z", "end": "2024-06-03T08:30:00Z"}]
}`

func writeProblem(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestScheduleCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeProblem(t, dir, "session.json", sessionJSON)
	metricsPath := filepath.Join(dir, "scheduler.prom")

	stdout, _, err := execute("schedule", "-f", path, "--metrics-file", metricsPath)
	require.NoError(t, err)

	var envelope struct {
		Data struct {
			Status      string `json:"status"`
			Objective   int64  `json:"objective"`
			Assignments []struct {
				ExamID string `json:"exam_id"`
			} `json:"assignments"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &envelope))
	assert.Equal(t, "OPTIMAL", envelope.Data.Status)
	assert.EqualValues(t, 4, envelope.Data.Objective)
	assert.Len(t, envelope.Data.Assignments, 3)

	_, err = os.Stat(metricsPath)
	assert.NoError(t, err)
}

func TestScheduleCommandInfeasible(t *testing.T) {
	path := writeProblem(t, t.TempDir(), "overload.json", overloadJSON)

	_, stderr, err := execute("schedule", "-f", path)
	require.Error(t, err)
	var exit exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 3, exit.code)
	assert.Contains(t, stderr, "NO_FEASIBLE_SCHEDULE")
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	writeProblem(t, dir, "a-session.json", sessionJSON)
	writeProblem(t, dir, "b-overload.json", overloadJSON)
	writeProblem(t, dir, "c-broken.json", `{"exams": [`)

	stdout, _, err := execute("batch", dir, "--batch-workers", "2")
	require.Error(t, err)

	var envelope struct {
		Data []struct {
			Name   string           `json:"name"`
			Error  *appErrors.Error `json:"error"`
			Result *struct {
				Status string `json:"status"`
			} `json:"result"`
		} `json:"data"`
		Meta map[string]interface{} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &envelope))
	require.Len(t, envelope.Data, 3)
	assert.Equal(t, "a-session.json", envelope.Data[0].Name)
	require.NotNil(t, envelope.Data[0].Result)
	assert.Equal(t, "OPTIMAL", envelope.Data[0].Result.Status)
	assert.Equal(t, "NO_FEASIBLE_SCHEDULE", envelope.Data[1].Error.Code)
	assert.Equal(t, "MALFORMED_INPUT", envelope.Data[2].Error.Code)
	assert.NotEmpty(t, envelope.Meta["batch_id"])
}

func TestAssignCommand(t *testing.T) {
	path := writeProblem(t, t.TempDir(), "session.json", sessionJSON)

	stdout, _, err := execute("assign", "-f", path, "--exam", "intro", "--room", "R2", "--slot", "t01", "--proctor", "P3")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"time_slot_ids": [`)
	assert.Contains(t, stdout, `"t02"`)

	_, stderr, err := execute("assign", "-f", path, "--exam", "nope", "--room", "R2", "--slot", "t01", "--proctor", "P3")
	var exit exitError
	require.True(t, errors.As(err, &exit))
	assert.Equal(t, 2, exit.code)
	assert.Contains(t, stderr, "NOT_FOUND")
}

func TestFailMapsExitCodes(t *testing.T) {
	var buf bytes.Buffer
	cases := []struct {
		err  error
		code int
	}{
		{err: appErrors.ErrMalformedInput, code: 2},
		{err: appErrors.ErrInfeasibleDimensions, code: 2},
		{err: appErrors.ErrNoFeasibleSchedule, code: 3},
		{err: appErrors.Clone(appErrors.ErrBudgetExceeded, "out of nodes"), code: 4},
		{err: errors.New("disk on fire"), code: 1},
	}
	for _, tc := range cases {
		err := fail(&buf, tc.err)
		assert.Equal(t, exitError{code: tc.code}, err, tc.err.Error())
	}
}

func TestScheduleCommandCSV(t *testing.T) {
	path := writeProblem(t, t.TempDir(), "session.json", sessionJSON)

	stdout, _, err := execute("schedule", "-f", path, "--format", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "exam_id,room_id,start_time,end_time,time_slot_ids,proctor_ids\n"))
	assert.Contains(t, stdout, "algo,R1,2024-06-03T10:00:00Z,2024-06-03T12:30:00Z,t04;t05;t06;t07;t08,")
}

func TestBatchCommandWritesOutDir(t *testing.T) {
	dir := t.TempDir()
	writeProblem(t, dir, "week1.json", sessionJSON)
	outDir := filepath.Join(t.TempDir(), "schedules")

	_, _, err := execute("batch", dir, "--out-dir", outDir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "week1.schedule.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status": "OPTIMAL"`)
}
