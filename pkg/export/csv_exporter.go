package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/exam-scheduler/internal/models"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// ScheduleHeaders is the column order of an exported timetable.
var ScheduleHeaders = []string{"exam_id", "room_id", "start_time", "end_time", "time_slot_ids", "proctor_ids"}

// ScheduleDataset flattens assignments into one row each. Multi-valued
// columns are joined with ";".
func ScheduleDataset(assignments []models.ScheduleAssignment) Dataset {
	return Dataset{
		Headers: ScheduleHeaders,
		Rows: lo.Map(assignments, func(a models.ScheduleAssignment, _ int) map[string]string {
			return map[string]string{
				"exam_id":       a.ExamID,
				"room_id":       a.RoomID,
				"start_time":    a.StartTime.Format(time.RFC3339),
				"end_time":      a.EndTime.Format(time.RFC3339),
				"time_slot_ids": strings.Join(a.TimeSlotIDs, ";"),
				"proctor_ids":   strings.Join(a.ProctorIDs, ";"),
			}
		}),
	}
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
