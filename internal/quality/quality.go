// Package quality inspects the compacted outputs and writes quality_report.json.
package quality

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/floats"

	"cn-data/internal/schema"
	"cn-data/internal/writer"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	scanBatch     = 8192
)

// Report is the content of quality_report.json.
type Report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	RunID       string        `json:"run_id,omitempty"`
	Stock       StockQuality  `json:"stock_data"`
	Sector      SectorQuality `json:"sector_data"`
}

// StockQuality describes the daily partitions.
type StockQuality struct {
	Status      string       `json:"status"`
	Message     string       `json:"message,omitempty"`
	GlobalScore int          `json:"global_score"`
	TotalRows   int64        `json:"total_rows"`
	StockCount  int          `json:"stock_count"`
	DateRange   string       `json:"date_range,omitempty"`
	Other       OtherMetrics `json:"other_metrics"`
	FundFlow    FlowQuality  `json:"fund_flow_data"`
	Schema      []FieldInfo  `json:"schema,omitempty"`
}

// OtherMetrics are the non-flow global checks.
type OtherMetrics struct {
	MissingFactorPct float64 `json:"missing_factor_pct"`
	InvalidMktCap    int64   `json:"invalid_mkt_cap"`
}

// FlowQuality summarizes net_flow_amount coverage. FlowStartDate is the
// first date with a non-missing, non-zero value.
type FlowQuality struct {
	Score         int         `json:"score"`
	FlowStartDate string      `json:"ff_start_date,omitempty"`
	AnomalyCount  int64       `json:"anomaly_count"`
	Details       FlowDetails `json:"details"`
}

// FlowDetails are the raw counts behind FlowQuality. MaxIn and MaxOut are
// nil when no row carries a flow value.
type FlowDetails struct {
	MissingRows int64    `json:"nan_rows"`
	ZeroRows    int64    `json:"zero_rows"`
	PosDays     int64    `json:"pos_days"`
	NegDays     int64    `json:"neg_days"`
	MaxIn       *float64 `json:"max_in"`
	MaxOut      *float64 `json:"max_out"`
}

// SectorQuality describes the sector table.
type SectorQuality struct {
	Status      string      `json:"status"`
	Message     string      `json:"message,omitempty"`
	TotalRows   int64       `json:"total_rows"`
	SectorCount int         `json:"sector_count"`
	DateRange   string      `json:"date_range,omitempty"`
	LatestDate  string      `json:"latest_date,omitempty"`
	Schema      []FieldInfo `json:"schema,omitempty"`
}

// FieldInfo is one entry of the column dictionary.
type FieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Desc string `json:"desc"`
}

var stockDesc = map[string]string{
	"date":                  "trading date (YYYY-MM-DD)",
	"code":                  "stock code",
	"close":                 "close price (unadjusted)",
	"peTTM":                 "trailing P/E",
	"pbMRQ":                 "P/B, most recent quarter",
	"adjustFactor":          "backward adjust factor",
	"mkt_cap":               "float market cap (CNY)",
	"volume":                "volume",
	"turn":                  "turnover rate",
	"net_flow_amount":       "net inflow, all orders (CNY)",
	"main_net_flow":         "main net inflow, super large + large (CNY)",
	"super_large_net_flow":  "super large order net inflow",
	"large_net_flow":        "large order net inflow",
	"medium_small_net_flow": "medium and small order net inflow",
}

var sectorDesc = map[string]string{
	"date":   "trading date",
	"code":   "sector code",
	"name":   "sector name",
	"type":   "sector type",
	"close":  "close level",
	"pctChg": "change percent",
}

func dictionary(k schema.Kind, desc map[string]string) []FieldInfo {
	out := make([]FieldInfo, 0, len(k.Columns()))
	for _, c := range k.Columns() {
		d, ok := desc[c.Name]
		if !ok {
			d = "derived field"
		}
		out = append(out, FieldInfo{Name: c.Name, Type: c.Type.String(), Desc: d})
	}
	return out
}

type stockRow struct {
	Date          string   `parquet:"date"`
	Code          string   `parquet:"code"`
	AdjustFactor  *float64 `parquet:"adjustFactor"`
	MktCap        *float64 `parquet:"mkt_cap"`
	NetFlowAmount *float64 `parquet:"net_flow_amount"`
}

type sectorRow struct {
	Date string `parquet:"date"`
	Code string `parquet:"code"`
}

type dateSpan struct{ first, last string }

func (s *dateSpan) add(d string) {
	if d == "" {
		return
	}
	if s.first == "" || d < s.first {
		s.first = d
	}
	if d > s.last {
		s.last = d
	}
}

func (s dateSpan) String() string {
	if s.first == "" {
		return ""
	}
	return s.first + " ~ " + s.last
}

func missing(p *float64) bool { return p == nil || math.IsNaN(*p) }

// CheckStocks scans the daily partitions.
func CheckStocks(files []string) StockQuality {
	q := StockQuality{Status: statusError}
	if len(files) == 0 {
		q.Message = "no daily partitions"
		return q
	}
	codes := make(map[string]struct{})
	var span, flowSpan dateSpan
	var missingFactor int64
	var maxIn, maxOut []float64
	d := &q.FundFlow.Details

	for _, path := range files {
		err := writer.Scan(path, scanBatch, func(rows []stockRow) error {
			var flows []float64
			for i := range rows {
				r := &rows[i]
				q.TotalRows++
				codes[r.Code] = struct{}{}
				span.add(r.Date)
				if missing(r.AdjustFactor) {
					missingFactor++
				}
				if !missing(r.MktCap) && *r.MktCap <= 0 {
					q.Other.InvalidMktCap++
				}
				switch {
				case missing(r.NetFlowAmount):
					d.MissingRows++
					continue
				case *r.NetFlowAmount == 0:
					d.ZeroRows++
				case *r.NetFlowAmount > 0:
					d.PosDays++
					flowSpan.add(r.Date)
				default:
					d.NegDays++
					flowSpan.add(r.Date)
				}
				flows = append(flows, *r.NetFlowAmount)
			}
			if len(flows) > 0 {
				maxIn = append(maxIn, floats.Max(flows))
				maxOut = append(maxOut, floats.Min(flows))
			}
			return nil
		})
		if err != nil {
			return StockQuality{Status: statusError, Message: fmt.Sprintf("scan %s: %v", filepath.Base(path), err)}
		}
	}
	if q.TotalRows == 0 {
		q.Message = "daily partitions are empty"
		return q
	}

	q.Status = statusSuccess
	q.StockCount = len(codes)
	q.DateRange = span.String()
	q.Schema = dictionary(schema.Daily, stockDesc)
	q.FundFlow.FlowStartDate = flowSpan.first
	q.FundFlow.AnomalyCount = d.MissingRows + d.ZeroRows
	if len(maxIn) > 0 {
		in, out := floats.Max(maxIn), floats.Min(maxOut)
		d.MaxIn, d.MaxOut = &in, &out
	}

	total := float64(q.TotalRows)
	q.FundFlow.Score = max(0, 100-int(float64(q.FundFlow.AnomalyCount)/total*100))
	q.Other.MissingFactorPct = math.Round(float64(missingFactor)/total*10000) / 100
	q.GlobalScore = 100
	if q.FundFlow.Score < 60 {
		q.GlobalScore -= 20
	}
	if float64(q.Other.InvalidMktCap)/total > 0.1 {
		q.GlobalScore -= 10
	}
	return q
}

// CheckSectors scans the sector table at path.
func CheckSectors(path string) SectorQuality {
	q := SectorQuality{Status: statusError}
	if _, err := os.Stat(path); err != nil {
		q.Message = "file not found"
		return q
	}
	codes := make(map[string]struct{})
	var span dateSpan
	err := writer.Scan(path, scanBatch, func(rows []sectorRow) error {
		for i := range rows {
			q.TotalRows++
			codes[rows[i].Code] = struct{}{}
			span.add(rows[i].Date)
		}
		return nil
	})
	if err != nil {
		q.Message = err.Error()
		return q
	}
	if q.TotalRows == 0 {
		q.Message = "empty"
		return q
	}
	q.Status = statusSuccess
	q.SectorCount = len(codes)
	q.DateRange = span.String()
	q.LatestDate = span.last
	q.Schema = dictionary(schema.Sector, sectorDesc)
	return q
}

// Build checks the daily partitions and the sector table.
func Build(runID string, dailyFiles []string, sectorPath string) *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		RunID:       runID,
		Stock:       CheckStocks(dailyFiles),
		Sector:      CheckSectors(sectorPath),
	}
}

// Write stores r as indented JSON.
func Write(path string, r *Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
