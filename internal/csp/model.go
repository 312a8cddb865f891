// Package csp holds the indexed constraint model of an exam timetabling run.
//
// Exams, rooms, proctors and slots are referred to by their position in the
// input (slots by their position after sorting by start time). Two families
// of boolean decision variables exist:
//
//	occupies[e][r][t]  exam e starts in room r at slot t   index (e*R+r)*T+t
//	supervises[e][p]   proctor p supervises exam e          index E*R*T+e*P+p
//
// Only the occupies variables listed as candidate placements of an exam may
// be true; every other start variable is fixed to false by construction.
package csp

import (
	"fmt"
	"sort"

	"github.com/bits-and-blooms/bitset"
	"github.com/samber/lo"
)

// ConstraintKind enumerates the hard rules of the model.
type ConstraintKind int

const (
	SinglePlacement ConstraintKind = iota + 1
	MinProctorCoverage
	LevelConflict
	DepartmentConflict
	RoomExclusive
	ProctorExclusive
	RoomCapacity
	ProctorAvailability
)

var constraintKindNames = map[ConstraintKind]string{
	SinglePlacement:     "SINGLE_PLACEMENT",
	MinProctorCoverage:  "MIN_PROCTOR_COVERAGE",
	LevelConflict:       "LEVEL_CONFLICT",
	DepartmentConflict:  "DEPARTMENT_CONFLICT",
	RoomExclusive:       "ROOM_EXCLUSIVE",
	ProctorExclusive:    "PROCTOR_EXCLUSIVE",
	RoomCapacity:        "ROOM_CAPACITY",
	ProctorAvailability: "PROCTOR_AVAILABILITY",
}

func (k ConstraintKind) String() string {
	if name, ok := constraintKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CONSTRAINT_%d", int(k))
}

// Constraint is one hard rule over a group of exams. Room and Proctor are -1
// when the rule is not bound to a single resource.
type Constraint struct {
	Kind    ConstraintKind
	Exams   []int
	Room    int
	Proctor int
	Bound   int
}

// Placement is a candidate start for an exam.
type Placement struct {
	Room  int
	Start int

	// Span marks every slot the exam occupies when started here. Spans are
	// shared between placements with the same start and must not be mutated.
	Span *bitset.BitSet
	Cost int64

	// Proctors lists, ascending, the proctors allowed to supervise this
	// placement.
	Proctors []int
}

// ExamVar groups the candidate placements of one exam.
type ExamVar struct {
	SpanLen      int
	Level        int
	Department   int
	Participants int
	Placements   []Placement
}

// Model is the complete constraint satisfaction problem of one run. It is
// read-only once built and may be shared between search workers.
type Model struct {
	NumRooms    int
	NumProctors int
	NumSlots    int
	NumLevels   int
	NumDepts    int
	MinProctors int

	RoomCapacity []int
	Exams        []ExamVar
	Constraints  []Constraint

	conflicts [][]bool
}

// Solution is a satisfying assignment expressed as placement indices.
type Solution struct {
	Placements []int
	Proctors   [][]int
	Objective  int64
}

// Empty reports whether the model has no exams, which is trivially feasible.
func (m *Model) Empty() bool {
	return m == nil || len(m.Exams) == 0
}

// OccupiesVar returns the variable index of occupies[e][r][t].
func (m *Model) OccupiesVar(e, r, t int) int {
	return (e*m.NumRooms+r)*m.NumSlots + t
}

// SupervisesVar returns the variable index of supervises[e][p].
func (m *Model) SupervisesVar(e, p int) int {
	return len(m.Exams)*m.NumRooms*m.NumSlots + e*m.NumProctors + p
}

// NumVars is the total number of boolean decision variables.
func (m *Model) NumVars() int {
	return len(m.Exams) * (m.NumRooms*m.NumSlots + m.NumProctors)
}

// Conflicting reports whether exams e and f must never share a slot because
// they have the same level or department.
func (m *Model) Conflicting(e, f int) bool {
	return m.conflicts[e][f]
}

// Objective sums the cost of the chosen placements.
func (m *Model) Objective(sol Solution) int64 {
	var total int64
	for e, idx := range sol.Placements {
		total += m.Exams[e].Placements[idx].Cost
	}
	return total
}

// Encode turns a solution into the variable assignment bitset.
func (m *Model) Encode(sol Solution) *bitset.BitSet {
	values := bitset.New(uint(m.NumVars()))
	for e, idx := range sol.Placements {
		pl := m.Exams[e].Placements[idx]
		values.Set(uint(m.OccupiesVar(e, pl.Room, pl.Start)))
		for _, p := range sol.Proctors[e] {
			values.Set(uint(m.SupervisesVar(e, p)))
		}
	}
	return values
}

// Start reads exam e's room and start slot back from a variable assignment.
func (m *Model) Start(values *bitset.BitSet, e int) (room, slot int, ok bool) {
	for _, pl := range m.Exams[e].Placements {
		if values.Test(uint(m.OccupiesVar(e, pl.Room, pl.Start))) {
			return pl.Room, pl.Start, true
		}
	}
	return -1, -1, false
}

// Supervisors reads exam e's proctors back from a variable assignment.
func (m *Model) Supervisors(values *bitset.BitSet, e int) []int {
	var proctors []int
	for p := 0; p < m.NumProctors; p++ {
		if values.Test(uint(m.SupervisesVar(e, p))) {
			proctors = append(proctors, p)
		}
	}
	return proctors
}

func (m *Model) placementOf(sol Solution, e int) (*Placement, error) {
	if e >= len(sol.Placements) {
		return nil, fmt.Errorf("exam %d has no placement", e)
	}
	idx := sol.Placements[e]
	if idx < 0 || idx >= len(m.Exams[e].Placements) {
		return nil, fmt.Errorf("exam %d placement %d out of range", e, idx)
	}
	return &m.Exams[e].Placements[idx], nil
}

func overlap(a, b *Placement) bool {
	return a.Span.IntersectionCardinality(b.Span) > 0
}

// ViolationError names the first hard rule a solution breaks.
type ViolationError struct {
	Kind    ConstraintKind
	Exams   []int
	Message string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s violated: %s", e.Kind, e.Message)
}

// Check verifies every hard constraint against a solution.
func (m *Model) Check(sol Solution) error {
	if len(sol.Placements) != len(m.Exams) || len(sol.Proctors) != len(m.Exams) {
		return &ViolationError{Kind: SinglePlacement, Message: "solution does not cover every exam"}
	}
	for _, c := range m.Constraints {
		if err := m.checkConstraint(sol, c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) checkConstraint(sol Solution, c Constraint) error {
	switch c.Kind {
	case SinglePlacement:
		if _, err := m.placementOf(sol, c.Exams[0]); err != nil {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
		}
	case MinProctorCoverage:
		e := c.Exams[0]
		seen := make(map[int]bool, len(sol.Proctors[e]))
		for _, p := range sol.Proctors[e] {
			if p < 0 || p >= m.NumProctors || seen[p] {
				return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: fmt.Sprintf("exam %d has invalid proctor %d", e, p)}
			}
			seen[p] = true
		}
		if len(seen) < c.Bound {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: fmt.Sprintf("exam %d has %d proctors, needs %d", e, len(seen), c.Bound)}
		}
	case ProctorAvailability:
		e := c.Exams[0]
		pl, err := m.placementOf(sol, e)
		if err != nil {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
		}
		for _, p := range sol.Proctors[e] {
			if !containsSorted(pl.Proctors, p) {
				return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: fmt.Sprintf("proctor %d unavailable for exam %d", p, e)}
			}
		}
	case RoomCapacity:
		e := c.Exams[0]
		pl, err := m.placementOf(sol, e)
		if err != nil {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
		}
		if m.RoomCapacity[pl.Room] < c.Bound {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: fmt.Sprintf("room %d seats %d, exam %d needs %d", pl.Room, m.RoomCapacity[pl.Room], e, c.Bound)}
		}
	case LevelConflict, DepartmentConflict:
		return m.checkDisjoint(sol, c, c.Exams)
	case RoomExclusive:
		var inRoom []int
		for _, e := range c.Exams {
			pl, err := m.placementOf(sol, e)
			if err != nil {
				return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
			}
			if pl.Room == c.Room {
				inRoom = append(inRoom, e)
			}
		}
		return m.checkDisjoint(sol, c, inRoom)
	case ProctorExclusive:
		var supervised []int
		for _, e := range c.Exams {
			if lo.Contains(sol.Proctors[e], c.Proctor) {
				supervised = append(supervised, e)
			}
		}
		return m.checkDisjoint(sol, c, supervised)
	}
	return nil
}

func (m *Model) checkDisjoint(sol Solution, c Constraint, exams []int) error {
	for i := 0; i < len(exams); i++ {
		a, err := m.placementOf(sol, exams[i])
		if err != nil {
			return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
		}
		for j := i + 1; j < len(exams); j++ {
			b, err := m.placementOf(sol, exams[j])
			if err != nil {
				return &ViolationError{Kind: c.Kind, Exams: c.Exams, Message: err.Error()}
			}
			if overlap(a, b) {
				return &ViolationError{Kind: c.Kind, Exams: []int{exams[i], exams[j]}, Message: fmt.Sprintf("exams %d and %d overlap", exams[i], exams[j])}
			}
		}
	}
	return nil
}

func containsSorted(values []int, target int) bool {
	i := sort.SearchInts(values, target)
	return i < len(values) && values[i] == target
}
