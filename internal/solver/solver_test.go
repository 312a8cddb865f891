package solver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler/internal/csp"
	"github.com/noah-isme/exam-scheduler/internal/models"
)

var day = time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)

func halfHourSlots(n int) []models.TimeSlot {
	slots := make([]models.TimeSlot, n)
	for i := range slots {
		start := day.Add(time.Duration(i) * 30 * time.Minute)
		slots[i] = models.TimeSlot{ID: fmt.Sprintf("t%02d", i), Start: start, End: start.Add(30 * time.Minute)}
	}
	return slots
}

func staff(n int) []models.Proctor {
	out := make([]models.Proctor, n)
	for i := range out {
		out[i] = models.Proctor{ID: fmt.Sprintf("p%d", i)}
	}
	return out
}

func buildModel(t *testing.T, problem models.Problem, minProctors int) *csp.Model {
	t.Helper()
	m, err := csp.Build(problem, csp.BuildOptions{SlotMinutes: 30, MinProctors: minProctors, EnforceAvailability: true, EnforceCapacity: true})
	require.NoError(t, err)
	return m
}

// three exams over an eight hour day: A and C share a level, A and B a
// department.
func sessionProblem() models.Problem {
	return models.Problem{
		Exams: []models.Exam{
			{ID: "A", DurationMinutes: 150, Level: models.LevelL3, Department: "cs", Participants: 28},
			{ID: "B", DurationMinutes: 60, Level: models.LevelL1, Department: "cs", Participants: 22},
			{ID: "C", DurationMinutes: 120, Level: models.LevelL3, Department: "math", Participants: 18},
		},
		Rooms: []models.Room{
			{ID: "R1", Capacity: 30},
			{ID: "R2", Capacity: 25},
			{ID: "R3", Capacity: 20},
		},
		Proctors:  staff(3),
		TimeSlots: halfHourSlots(16),
	}
}

func span(m *csp.Model, sol *csp.Solution, e int) (int, int) {
	pl := m.Exams[e].Placements[sol.Placements[e]]
	return pl.Start, pl.Start + m.Exams[e].SpanLen
}

func disjoint(aStart, aEnd, bStart, bEnd int) bool {
	return aEnd <= bStart || bEnd <= aStart
}

func TestSolveFindsOptimalSchedule(t *testing.T) {
	m := buildModel(t, sessionProblem(), 1)

	res := Solve(context.Background(), m, Options{})
	require.Equal(t, Optimal, res.Verdict)
	require.NotNil(t, res.Solution)
	require.NoError(t, m.Check(*res.Solution))

	// B and C open the day side by side, A follows once C is done.
	assert.EqualValues(t, 4, res.Objective)
	assert.Equal(t, res.Objective, m.Objective(*res.Solution))

	aStart, aEnd := span(m, res.Solution, 0)
	bStart, bEnd := span(m, res.Solution, 1)
	cStart, cEnd := span(m, res.Solution, 2)
	assert.True(t, disjoint(aStart, aEnd, cStart, cEnd), "L3 exams overlap")
	assert.True(t, disjoint(aStart, aEnd, bStart, bEnd), "CS exams overlap")

	for e := range m.Exams {
		room, slot, ok := m.Start(res.Assignment, e)
		require.True(t, ok)
		pl := m.Exams[e].Placements[res.Solution.Placements[e]]
		assert.Equal(t, pl.Room, room)
		assert.Equal(t, pl.Start, slot)
		assert.Equal(t, res.Solution.Proctors[e], m.Supervisors(res.Assignment, e))
	}
	assert.Greater(t, res.Nodes, int64(0))
}

func TestSolveIsIdempotent(t *testing.T) {
	m := buildModel(t, sessionProblem(), 1)

	first := Solve(context.Background(), m, Options{})
	second := Solve(context.Background(), m, Options{})
	require.Equal(t, Optimal, first.Verdict)
	assert.Equal(t, first.Solution, second.Solution)
	assert.Equal(t, first.Nodes, second.Nodes)
}

func TestSolveParallelWorkersAgree(t *testing.T) {
	m := buildModel(t, sessionProblem(), 1)

	single := Solve(context.Background(), m, Options{Workers: 1})
	parallel := Solve(context.Background(), m, Options{Workers: 4})
	again := Solve(context.Background(), m, Options{Workers: 4})

	require.Equal(t, Optimal, parallel.Verdict)
	require.NoError(t, m.Check(*parallel.Solution))
	assert.Equal(t, single.Objective, parallel.Objective)
	assert.Equal(t, parallel.Solution, again.Solution)
}

func TestSolveDetectsLevelOverload(t *testing.T) {
	problem := models.Problem{
		Exams: []models.Exam{
			{ID: "a", DurationMinutes: 30, Level: models.LevelL1, Department: "cs"},
			{ID: "b", DurationMinutes: 30, Level: models.LevelL1, Department: "math"},
		},
		Rooms:     []models.Room{{ID: "r0", Capacity: 10}, {ID: "r1", Capacity: 10}},
		Proctors:  staff(2),
		TimeSlots: halfHourSlots(1),
	}
	m := buildModel(t, problem, 1)

	res := Solve(context.Background(), m, Options{})
	assert.Equal(t, Infeasible, res.Verdict)
	assert.Nil(t, res.Solution)
	assert.Nil(t, res.Assignment)
}

func TestSolveKeepsProctorsExclusive(t *testing.T) {
	problem := models.Problem{
		Exams: []models.Exam{
			{ID: "a", DurationMinutes: 30, Level: models.LevelL1, Department: "cs"},
			{ID: "b", DurationMinutes: 30, Level: models.LevelL2, Department: "math"},
		},
		Rooms:     []models.Room{{ID: "r0", Capacity: 10}, {ID: "r1", Capacity: 10}},
		Proctors:  staff(1),
		TimeSlots: halfHourSlots(2),
	}
	m := buildModel(t, problem, 1)

	res := Solve(context.Background(), m, Options{})
	require.Equal(t, Optimal, res.Verdict)
	assert.EqualValues(t, 1, res.Objective)

	problem.TimeSlots = halfHourSlots(1)
	m = buildModel(t, problem, 1)
	res = Solve(context.Background(), m, Options{})
	assert.Equal(t, Infeasible, res.Verdict)
}

func TestSolveRequiresMinimumProctors(t *testing.T) {
	problem := models.Problem{
		Exams:     []models.Exam{{ID: "a", DurationMinutes: 30, Level: models.LevelL1, Department: "cs"}},
		Rooms:     []models.Room{{ID: "r0", Capacity: 10}},
		Proctors:  staff(2),
		TimeSlots: halfHourSlots(2),
	}

	res := Solve(context.Background(), buildModel(t, problem, 2), Options{})
	require.Equal(t, Optimal, res.Verdict)
	assert.Equal(t, []int{0, 1}, res.Solution.Proctors[0])

	res = Solve(context.Background(), buildModel(t, problem, 3), Options{})
	assert.Equal(t, Infeasible, res.Verdict)
}

func TestSolveBudgets(t *testing.T) {
	m := buildModel(t, sessionProblem(), 1)

	t.Run("node limit before any solution", func(t *testing.T) {
		res := Solve(context.Background(), m, Options{MaxNodes: 1})
		assert.Equal(t, BudgetExceeded, res.Verdict)
		assert.Nil(t, res.Solution)
	})

	t.Run("node limit after first solution", func(t *testing.T) {
		res := Solve(context.Background(), m, Options{MaxNodes: 3})
		require.Equal(t, Feasible, res.Verdict)
		require.NoError(t, m.Check(*res.Solution))
		assert.GreaterOrEqual(t, res.Objective, int64(4))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := Solve(ctx, m, Options{Workers: 2})
		assert.Equal(t, BudgetExceeded, res.Verdict)
	})
}

func TestSolveEmptyModel(t *testing.T) {
	res := Solve(context.Background(), &csp.Model{}, Options{})
	assert.Equal(t, Optimal, res.Verdict)
	assert.Zero(t, res.Objective)
	require.NotNil(t, res.Solution)
}

func TestCombinationsLexicographic(t *testing.T) {
	var got [][]int
	combinations(4, 2, func(pick []int) bool {
		got = append(got, append([]int(nil), pick...))
		return true
	})
	assert.Equal(t, [][]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}, got)

	calls := 0
	combinations(3, 4, func([]int) bool { calls++; return true })
	assert.Zero(t, calls)
}

func TestVerdictString(t *testing.T) {
	assert.Equal(t, "OPTIMAL", Optimal.String())
	assert.Equal(t, "BUDGET_EXCEEDED", BudgetExceeded.String())
	assert.True(t, Feasible.Solved())
	assert.False(t, Infeasible.Solved())
}
