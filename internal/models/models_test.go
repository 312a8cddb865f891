package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		raw     string
		minutes int
	}{
		{"2h30", 150},
		{"2h", 120},
		{"1h05m", 65},
		{" 0h45 ", 45},
		{"90m", 90},
		{"3H", 180},
	}
	for _, tc := range cases {
		got, err := ParseDuration(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.minutes, got, tc.raw)
	}
}

func TestParseDurationRejectsMalformedText(t *testing.T) {
	for _, raw := range []string{"", "150", "2:30", "h30", "2h75", "-1h", "xh10"} {
		_, err := ParseDuration(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, appErrors.ErrMalformedInput), raw)
	}
}

func TestSpanSlots(t *testing.T) {
	assert.Equal(t, 5, SpanSlots(150, 30))
	assert.Equal(t, 2, SpanSlots(60, 30))
	assert.Equal(t, 2, SpanSlots(31, 30))
	assert.Equal(t, 1, SpanSlots(1, 30))
	assert.Equal(t, 0, SpanSlots(0, 30))
}

func TestLevelRankAndNormalisation(t *testing.T) {
	assert.Equal(t, LevelL3, NormalizeLevel(" l3 "))
	assert.Less(t, LevelL1.Rank(), LevelM2.Rank())
	assert.Equal(t, 0, Level("PHD").Rank())
	assert.Equal(t, "informatique", NormalizeDepartment(" Informatique"))
}

func TestProctorAvailability(t *testing.T) {
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	always := Proctor{ID: "p1"}
	assert.True(t, always.AvailableFor(base, base.Add(time.Hour)))

	morning := Proctor{ID: "p2", Availability: []AvailabilityWindow{{Start: base, End: base.Add(4 * time.Hour)}}}
	assert.True(t, morning.AvailableFor(base.Add(time.Hour), base.Add(3*time.Hour)))
	assert.False(t, morning.AvailableFor(base.Add(3*time.Hour), base.Add(5*time.Hour)))
}

func TestProblemValidate(t *testing.T) {
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	valid := func() Problem {
		return Problem{
			Exams:     []Exam{{ID: "e1", DurationMinutes: 60, Level: LevelL1, Department: "cs"}},
			Rooms:     []Room{{ID: "r1", Capacity: 20}},
			Proctors:  []Proctor{{ID: "p1"}},
			TimeSlots: []TimeSlot{{ID: "t1", Start: base, End: base.Add(30 * time.Minute)}},
		}
	}
	require.NoError(t, valid().Validate(30*time.Minute))

	cases := map[string]func(p *Problem){
		"zero duration":  func(p *Problem) { p.Exams[0].DurationMinutes = 0 },
		"zero capacity":  func(p *Problem) { p.Rooms[0].Capacity = 0 },
		"inverted slot":  func(p *Problem) { p.TimeSlots[0].End = base.Add(-time.Minute) },
		"mixed width":    func(p *Problem) { p.TimeSlots[0].End = base.Add(time.Hour) },
		"duplicate exam": func(p *Problem) { p.Exams = append(p.Exams, p.Exams[0]) },
		"missing room":   func(p *Problem) { p.Rooms[0].ID = "" },
	}
	for name, mutate := range cases {
		p := valid()
		mutate(&p)
		err := p.Validate(30 * time.Minute)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, appErrors.ErrMalformedInput), name)
	}
}

func TestSortedSlots(t *testing.T) {
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	p := Problem{TimeSlots: []TimeSlot{
		{ID: "b", Start: base.Add(30 * time.Minute), End: base.Add(time.Hour)},
		{ID: "a", Start: base, End: base.Add(30 * time.Minute)},
	}}
	sorted := p.SortedSlots()
	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
	assert.Equal(t, "b", p.TimeSlots[0].ID)
}
