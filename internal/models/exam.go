package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	appErrors "github.com/noah-isme/exam-scheduler/pkg/errors"
)

// Level is the academic year an exam belongs to. Exams of the same level are
// sat by the same cohort and must never overlap.
type Level string

const (
	LevelL1 Level = "L1"
	LevelL2 Level = "L2"
	LevelL3 Level = "L3"
	LevelM1 Level = "M1"
	LevelM2 Level = "M2"
)

var levelRank = map[Level]int{
	LevelL1: 1,
	LevelL2: 2,
	LevelL3: 3,
	LevelM1: 4,
	LevelM2: 5,
}

// Rank returns the ordinal of a known level, or 0 for custom tags.
func (l Level) Rank() int {
	return levelRank[l]
}

// NormalizeLevel upper-cases and trims a level tag.
func NormalizeLevel(raw string) Level {
	return Level(strings.ToUpper(strings.TrimSpace(raw)))
}

// NormalizeDepartment lower-cases and trims a department tag.
func NormalizeDepartment(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Exam is a single sitting that needs a room, a contiguous block of slots and
// at least one proctor.
type Exam struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	Level           Level  `json:"level"`
	Department      string `json:"department"`
	Participants    int    `json:"participants,omitempty"`
}

// Duration returns the exact requested exam length.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Duration is the structured hours/minutes form accepted from callers.
type Duration struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

// TotalMinutes normalises the duration to minutes.
func (d Duration) TotalMinutes() int {
	return d.Hours*60 + d.Minutes
}

// ParseDuration converts free-form duration text such as "2h30", "2h",
// "1h05m" or "90m" into minutes. Text without an h/m separator is rejected.
func ParseDuration(raw string) (int, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return 0, appErrors.Clone(appErrors.ErrMalformedInput, "duration is empty")
	}

	var hours, minutes int
	var err error
	if idx := strings.IndexByte(text, 'h'); idx >= 0 {
		if hours, err = strconv.Atoi(text[:idx]); err != nil {
			return 0, malformedDuration(raw, err)
		}
		rest := strings.TrimSuffix(text[idx+1:], "m")
		if rest != "" {
			if minutes, err = strconv.Atoi(rest); err != nil {
				return 0, malformedDuration(raw, err)
			}
			if minutes >= 60 {
				return 0, appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("duration %q has more than 59 minutes", raw))
			}
		}
	} else if strings.HasSuffix(text, "m") {
		if minutes, err = strconv.Atoi(strings.TrimSuffix(text, "m")); err != nil {
			return 0, malformedDuration(raw, err)
		}
	} else {
		return 0, appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("duration %q is missing the hour/minute separator", raw))
	}

	if hours < 0 || minutes < 0 {
		return 0, appErrors.Clone(appErrors.ErrMalformedInput, fmt.Sprintf("duration %q is negative", raw))
	}
	return hours*60 + minutes, nil
}

func malformedDuration(raw string, err error) error {
	return appErrors.Wrap(err, appErrors.ErrMalformedInput.Code, appErrors.ErrMalformedInput.Status, fmt.Sprintf("duration %q cannot be parsed", raw))
}

// SpanSlots is the number of consecutive slots an exam of the given length
// occupies, rounding up to the slot granularity.
func SpanSlots(durationMinutes, slotMinutes int) int {
	if durationMinutes <= 0 || slotMinutes <= 0 {
		return 0
	}
	return (durationMinutes + slotMinutes - 1) / slotMinutes
}
