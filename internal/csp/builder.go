package csp

import (
	"fmt"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler/internal/models"
	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// BuildOptions controls which optional rules are part of the model.
type BuildOptions struct {
	SlotMinutes int
	MinProctors int

	// EnforceAvailability keeps proctors away from exams outside their
	// declared availability windows.
	EnforceAvailability bool

	// EnforceCapacity restricts exams with a known participant count to rooms
	// that seat them.
	EnforceCapacity bool
}

// Build translates a validated problem into its constraint model. Slots are
// indexed in start order. An exam whose span cannot start anywhere yields an
// INFEASIBLE_DIMENSIONS error before any search happens.
func Build(problem models.Problem, opts BuildOptions) (*Model, error) {
	if opts.SlotMinutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrMalformedInput, "slot granularity must be positive")
	}
	if opts.MinProctors <= 0 {
		opts.MinProctors = 1
	}

	slots := problem.SortedSlots()
	m := &Model{
		NumRooms:    len(problem.Rooms),
		NumProctors: len(problem.Proctors),
		NumSlots:    len(slots),
		MinProctors: opts.MinProctors,
		RoomCapacity: lo.Map(problem.Rooms, func(r models.Room, _ int) int {
			return r.Capacity
		}),
	}
	if len(problem.Exams) == 0 {
		return m, nil
	}

	reach := contiguousReach(slots)
	levels := newInterner()
	depts := newInterner()
	proctorIdx := lo.Range(len(problem.Proctors))

	m.Exams = make([]ExamVar, len(problem.Exams))
	for e, exam := range problem.Exams {
		span := models.SpanSlots(exam.DurationMinutes, opts.SlotMinutes)
		if span > m.NumSlots {
			return nil, appErrors.Clone(appErrors.ErrInfeasibleDimensions, fmt.Sprintf("exam %s needs %d slots but only %d exist", exam.ID, span, m.NumSlots))
		}
		v := ExamVar{
			SpanLen:      span,
			Level:        levels.id(string(exam.Level)),
			Department:   depts.id(exam.Department),
			Participants: exam.Participants,
		}

		for t := 0; t+span <= m.NumSlots; t++ {
			if reach[t] < span {
				continue
			}
			spanBits := bitset.New(uint(m.NumSlots))
			for i := t; i < t+span; i++ {
				spanBits.Set(uint(i))
			}
			eligible := proctorIdx
			if opts.EnforceAvailability {
				start := slots[t].Start
				end := start.Add(time.Duration(exam.DurationMinutes) * time.Minute)
				eligible = lo.Filter(proctorIdx, func(p int, _ int) bool {
					return problem.Proctors[p].AvailableFor(start, end)
				})
			}
			for r, room := range problem.Rooms {
				if opts.EnforceCapacity && !room.Fits(exam.Participants) {
					continue
				}
				v.Placements = append(v.Placements, Placement{
					Room:     r,
					Start:    t,
					Span:     spanBits,
					Cost:     int64(t),
					Proctors: eligible,
				})
			}
		}
		if len(v.Placements) == 0 {
			return nil, appErrors.Clone(appErrors.ErrInfeasibleDimensions, fmt.Sprintf("exam %s (%d slots, %d participants) fits no room and contiguous slot block", exam.ID, span, exam.Participants))
		}
		m.Exams[e] = v
	}
	m.NumLevels = levels.size()
	m.NumDepts = depts.size()

	m.buildConstraints(opts)
	return m, nil
}

// buildConstraints emits the rule records in the order the search benefits
// from: unit rules first, then pairwise conflicts, then resource exclusivity.
func (m *Model) buildConstraints(opts BuildOptions) {
	n := len(m.Exams)
	all := lo.Range(n)

	for e := 0; e < n; e++ {
		m.Constraints = append(m.Constraints, Constraint{Kind: SinglePlacement, Exams: []int{e}, Room: -1, Proctor: -1, Bound: 1})
	}
	for e := 0; e < n; e++ {
		m.Constraints = append(m.Constraints, Constraint{Kind: MinProctorCoverage, Exams: []int{e}, Room: -1, Proctor: -1, Bound: m.MinProctors})
	}
	if opts.EnforceAvailability {
		for e := 0; e < n; e++ {
			m.Constraints = append(m.Constraints, Constraint{Kind: ProctorAvailability, Exams: []int{e}, Room: -1, Proctor: -1})
		}
	}
	if opts.EnforceCapacity {
		for e, v := range m.Exams {
			if v.Participants > 0 {
				m.Constraints = append(m.Constraints, Constraint{Kind: RoomCapacity, Exams: []int{e}, Room: -1, Proctor: -1, Bound: v.Participants})
			}
		}
	}

	m.conflicts = make([][]bool, n)
	for e := range m.conflicts {
		m.conflicts[e] = make([]bool, n)
	}
	for e := 0; e < n; e++ {
		for f := e + 1; f < n; f++ {
			if m.Exams[e].Level == m.Exams[f].Level {
				m.Constraints = append(m.Constraints, Constraint{Kind: LevelConflict, Exams: []int{e, f}, Room: -1, Proctor: -1})
				m.conflicts[e][f], m.conflicts[f][e] = true, true
			}
			if m.Exams[e].Department == m.Exams[f].Department {
				m.Constraints = append(m.Constraints, Constraint{Kind: DepartmentConflict, Exams: []int{e, f}, Room: -1, Proctor: -1})
				m.conflicts[e][f], m.conflicts[f][e] = true, true
			}
		}
	}

	for r := 0; r < m.NumRooms; r++ {
		users := lo.Filter(all, func(e int, _ int) bool {
			return lo.ContainsBy(m.Exams[e].Placements, func(pl Placement) bool { return pl.Room == r })
		})
		if len(users) > 1 {
			m.Constraints = append(m.Constraints, Constraint{Kind: RoomExclusive, Exams: users, Room: r, Proctor: -1})
		}
	}
	for p := 0; p < m.NumProctors; p++ {
		m.Constraints = append(m.Constraints, Constraint{Kind: ProctorExclusive, Exams: all, Room: -1, Proctor: p})
	}
}

// contiguousReach returns, for each slot, how many back-to-back slots start
// there (itself included).
func contiguousReach(slots []models.TimeSlot) []int {
	reach := make([]int, len(slots))
	for t := len(slots) - 1; t >= 0; t-- {
		reach[t] = 1
		if t+1 < len(slots) && slots[t].Precedes(slots[t+1]) {
			reach[t] = reach[t+1] + 1
		}
	}
	return reach
}

type interner struct {
	ids map[string]int
}

func newInterner() *interner {
	return &interner{ids: make(map[string]int)}
}

func (i *interner) id(key string) int {
	if id, ok := i.ids[key]; ok {
		return id
	}
	id := len(i.ids)
	i.ids[key] = id
	return id
}

func (i *interner) size() int {
	return len(i.ids)
}
