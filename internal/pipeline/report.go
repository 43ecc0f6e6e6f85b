package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type shardFailure struct {
	Code   string `json:"code"`
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// EntityCounts summarizes the entity stage.
type EntityCounts struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Dropped   int `json:"dropped"`
}

// RunReport is the machine-readable summary of one run (run_report.json).
type RunReport struct {
	RunID          string            `json:"run_id"`
	ProcessingYear int               `json:"processing_year"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
	Status         string            `json:"status"`
	Error          string            `json:"error,omitempty"`
	Durations      map[string]string `json:"durations"`

	Entities          EntityCounts     `json:"entities"`
	DroppedEntities   []string         `json:"dropped_entities,omitempty"`
	ShardErrors       []shardFailure   `json:"shard_errors,omitempty"`
	IndicatorFailures map[string]int   `json:"indicator_failures,omitempty"` // "family/freq" -> entities
	FieldErrors       int              `json:"field_errors"`
	BadRows           int              `json:"bad_rows"`
	Rows              int64            `json:"rows"`
	LatestDate        string           `json:"latest_date,omitempty"`
	Outputs           map[string]int64 `json:"outputs,omitempty"` // file -> rows
	Sector            map[string]any   `json:"sector,omitempty"`
}

// NewRunReport starts a report for runID.
func NewRunReport(runID string, year int, started time.Time) *RunReport {
	return &RunReport{
		RunID:             runID,
		ProcessingYear:    year,
		StartedAt:         started,
		Status:            "running",
		Durations:         make(map[string]string),
		IndicatorFailures: make(map[string]int),
		Outputs:           make(map[string]int64),
	}
}

// Stage records the wall time of a named stage.
func (r *RunReport) Stage(name string, d time.Duration) {
	r.Durations[name] = d.Truncate(time.Millisecond).String()
}

// Finish stamps the report with its end state.
func (r *RunReport) Finish(err error) {
	r.FinishedAt = time.Now().UTC()
	r.Status = "success"
	if err != nil {
		r.Status = "failed"
		r.Error = err.Error()
	}
	sort.Strings(r.DroppedEntities)
	sort.Slice(r.ShardErrors, func(i, j int) bool {
		if r.ShardErrors[i].Code != r.ShardErrors[j].Code {
			return r.ShardErrors[i].Code < r.ShardErrors[j].Code
		}
		return r.ShardErrors[i].Path < r.ShardErrors[j].Path
	})
}

// WriteRunReport writes r as indented JSON.
func WriteRunReport(path string, r *RunReport) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}
	slog.Info("run report saved", "path", path, "status", r.Status, "processed", r.Entities.Processed, "dropped", r.Entities.Dropped)
	return nil
}

// joinShardReasons renders the first few shard failures for a summary line.
func joinShardReasons(list []shardFailure) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	for i, f := range list {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Code)
		b.WriteString(": ")
		b.WriteString(f.Reason)
		if i >= 4 && len(list) > 6 {
			b.WriteString(fmt.Sprintf(" (+%d more)", len(list)-5))
			break
		}
	}
	return b.String()
}
