package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-scheduler/internal/models"
)

func TestScheduleDatasetRendersCSV(t *testing.T) {
	start := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	data := ScheduleDataset([]models.ScheduleAssignment{{
		ExamID:      "algo",
		RoomID:      "R1",
		TimeSlotIDs: []string{"t00", "t01"},
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		ProctorIDs:  []string{"P1", "P2"},
	}})

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "exam_id,room_id,start_time,end_time,time_slot_ids,proctor_ids", lines[0])
	require.Equal(t, "algo,R1,2024-06-03T08:00:00Z,2024-06-03T09:00:00Z,t00;t01,P1;P2", lines[1])
}

func TestRenderRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	require.Error(t, err)
}
