package audit

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

var csvHeader = []string{"ts", "decision_id", "decision_type", "customer_id", "status", "attempts", "duration_ms", "error"}

// ExportJSONLToCSV converts a JSONL audit log into CSV and returns the row count.
func ExportJSONLToCSV(inputPath string, outputPath string) (int, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open input audit log: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create output csv: %w", err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	rows := 0
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for s.Scan() {
		line := s.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return rows, fmt.Errorf("parse audit line %d: %w", rows+1, err)
		}
		if err := w.Write([]string{
			ev.Timestamp,
			ev.DecisionID,
			ev.DecisionType,
			ev.CustomerID,
			ev.Status,
			strconv.Itoa(ev.Attempts),
			strconv.FormatInt(ev.DurationMs, 10),
			ev.Error,
		}); err != nil {
			return rows, fmt.Errorf("write csv row: %w", err)
		}
		rows++
	}
	if err := s.Err(); err != nil {
		return rows, fmt.Errorf("scan audit log: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return rows, fmt.Errorf("flush csv: %w", err)
	}
	return rows, nil
}
