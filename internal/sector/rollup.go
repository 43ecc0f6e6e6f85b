package sector

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"cn-data/internal/model"
	"cn-data/internal/schema"
	"cn-data/internal/shard"
	"cn-data/internal/writer"
)

// Config locates the rollup inputs and output.
type Config struct {
	SectorFile     string
	SectorListFile string // optional: code, name, type
	MembershipFile string
	DailyFiles     []string
	Output         string
}

// Stats summarizes one rollup.
type Stats struct {
	Sectors       int
	Rows          int
	Members       int
	Contributions int64 // member flow values added into a sector key
	ZeroFilled    int   // sector rows that received no member flow
	Ambiguous     int   // bare member codes shared by several exchanges
	FieldErrors   int
	BadRows       int
	Duration      time.Duration
}

// Rollup sums member fund flows into sector bars.
type Rollup struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Rollup. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) *Rollup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rollup{cfg: cfg, logger: logger}
}

type key struct {
	sector string
	date   string
}

type codeOnly struct {
	Code string `parquet:"code"`
}

// flowOnly projects a daily partition onto the columns the rollup needs.
type flowOnly struct {
	Date               string   `parquet:"date"`
	Code               string   `parquet:"code"`
	NetFlowAmount      *float64 `parquet:"net_flow_amount"`
	MainNetFlow        *float64 `parquet:"main_net_flow"`
	SuperLargeNetFlow  *float64 `parquet:"super_large_net_flow"`
	LargeNetFlow       *float64 `parquet:"large_net_flow"`
	MediumSmallNetFlow *float64 `parquet:"medium_small_net_flow"`
}

func (f *flowOnly) values() [5]*float64 {
	return [5]*float64{f.NetFlowAmount, f.MainNetFlow, f.SuperLargeNetFlow, f.LargeNetFlow, f.MediumSmallNetFlow}
}

// Run loads the sector table, joins member flows by (sector, date) and writes
// the result sorted by (code, date). Sector rows without any member flow get
// exactly 0 in every flow column.
func (r *Rollup) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	var st Stats

	bars, err := r.loadSectors(&st)
	if err != nil {
		return st, err
	}
	if r.cfg.SectorListFile != "" {
		if err := r.enrich(bars); err != nil {
			return st, err
		}
	}

	pairs, err := LoadMembership(r.cfg.MembershipFile)
	if err != nil {
		return st, fmt.Errorf("load membership: %w", err)
	}
	st.Members = len(pairs)
	entities, err := r.entities(ctx)
	if err != nil {
		return st, err
	}
	members, ambiguous := newMemberIndex(pairs).resolve(entities)
	if st.Ambiguous = len(ambiguous); st.Ambiguous > 0 {
		r.logger.Warn("membership codes without exchange match several entities, skipped",
			"codes", len(ambiguous), "first", ambiguous[0])
	}

	pos := make(map[key]int, len(bars))
	for i := range bars {
		pos[key{bars[i].Code, schema.DateKey(bars[i].Date)}] = i
	}
	sums := make([][5]decimal.Decimal, len(bars))
	touched := make([]bool, len(bars))

	for _, path := range r.cfg.DailyFiles {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		err := writer.Scan(path, 4096, func(rows []flowOnly) error {
			for i := range rows {
				sectors := members[MemberKey(rows[i].Code)]
				if len(sectors) == 0 {
					continue
				}
				vals := rows[i].values()
				for _, s := range sectors {
					at, ok := pos[key{s, rows[i].Date}]
					if !ok {
						continue
					}
					for k, v := range vals {
						if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
							continue
						}
						sums[at][k] = sums[at][k].Add(decimal.NewFromFloat(*v))
						touched[at] = true
						st.Contributions++
					}
				}
			}
			return ctx.Err()
		})
		if err != nil {
			return st, fmt.Errorf("stream flows %s: %w", path, err)
		}
	}

	out := make([]schema.SectorRecord, len(bars))
	for i := range bars {
		dst := bars[i].Flow.Refs()
		for k := range dst {
			*dst[k] = sums[i][k].InexactFloat64()
		}
		if !touched[i] {
			st.ZeroFilled++
		}
		out[i] = schema.ToSectorRecord(&bars[i])
	}
	if err := writer.WriteFile(r.cfg.Output, out); err != nil {
		return st, fmt.Errorf("write sector table: %w", err)
	}

	st.Rows = len(out)
	st.Duration = time.Since(start)
	r.logger.Info("sector rollup done",
		"sectors", st.Sectors, "rows", st.Rows, "members", st.Members,
		"contributions", st.Contributions, "zero_filled", st.ZeroFilled,
		"output", r.cfg.Output, "elapsed", st.Duration.Truncate(time.Millisecond))
	return st, nil
}

// entities returns the distinct member keys present in the daily files.
func (r *Rollup) entities(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, path := range r.cfg.DailyFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := writer.Scan(path, 8192, func(rows []codeOnly) error {
			for i := range rows {
				seen[MemberKey(rows[i].Code)] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scan codes %s: %w", path, err)
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// loadSectors conforms the sector table, keeps the last row per (code, date)
// and sorts by (code, date).
func (r *Rollup) loadSectors(st *Stats) ([]model.SectorBar, error) {
	raws, err := shard.Load(r.cfg.SectorFile)
	if err != nil {
		return nil, fmt.Errorf("load sector table: %w", err)
	}
	pos := make(map[key]int, len(raws))
	var bars []model.SectorBar
	for _, raw := range raws {
		b, ferrs, err := schema.ConformSector(raw)
		if err != nil || b.Code == "" {
			st.BadRows++
			continue
		}
		st.FieldErrors += len(ferrs)
		k := key{b.Code, schema.DateKey(b.Date)}
		if i, ok := pos[k]; ok {
			bars[i] = b
			continue
		}
		pos[k] = len(bars)
		bars = append(bars, b)
	}
	if st.BadRows > 0 {
		r.logger.Warn("sector rows without code or date dropped", "rows", st.BadRows)
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Code != bars[j].Code {
			return bars[i].Code < bars[j].Code
		}
		return bars[i].Date.Before(bars[j].Date)
	})
	codes := make(map[string]struct{})
	for i := range bars {
		codes[bars[i].Code] = struct{}{}
	}
	st.Sectors = len(codes)
	return bars, nil
}

// enrich fills missing name and type from the sector list.
func (r *Rollup) enrich(bars []model.SectorBar) error {
	raws, err := shard.Load(r.cfg.SectorListFile)
	if err != nil {
		return fmt.Errorf("load sector list: %w", err)
	}
	type info struct{ name, category string }
	list := make(map[string]info, len(raws))
	for _, raw := range raws {
		cols := schema.Sector.Resolve(raw)
		code := schema.NormalizeSectorCode(schema.String(cols["code"]))
		if code == "" {
			continue
		}
		list[code] = info{schema.String(cols["name"]), schema.String(cols["type"])}
	}
	for i := range bars {
		in, ok := list[bars[i].Code]
		if !ok {
			continue
		}
		if bars[i].Name == "" {
			bars[i].Name = in.name
		}
		if bars[i].Category == "" {
			bars[i].Category = in.category
		}
	}
	return nil
}
