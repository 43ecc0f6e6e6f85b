package indicator

import (
	"fmt"
	"math"

	"cn-data/internal/model"
)

// Frequency is the bar spacing a series is expressed in. Indicator windows
// count bars of this frequency.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
)

func (f Frequency) String() string {
	switch f {
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "daily"
	}
}

// TimeFrame returns the timeframe label used by the TA environment.
func (f Frequency) TimeFrame() string {
	switch f {
	case Weekly:
		return "1w"
	case Monthly:
		return "1M"
	default:
		return "1d"
	}
}

// minSpacingMillis is the smallest gap between two consecutive bars.
func (f Frequency) minSpacingMillis() int64 {
	const day = int64(24 * 60 * 60 * 1000)
	switch f {
	case Weekly:
		return 7 * day
	case Monthly:
		return 28 * day
	default:
		return day
	}
}

// Input is the column view of one entity's series handed to each family.
type Input struct {
	Freq   Frequency
	Time   []int64 // unix millis
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// Len returns the number of bars.
func (in *Input) Len() int { return len(in.Close) }

func newInput(bars []model.Bar, freq Frequency) *Input {
	n := len(bars)
	in := &Input{
		Freq:   freq,
		Time:   make([]int64, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i := range bars {
		in.Time[i] = bars[i].Date.UnixMilli()
		in.Open[i] = bars[i].Open
		in.High[i] = bars[i].High
		in.Low[i] = bars[i].Low
		in.Close[i] = bars[i].Close
		in.Volume[i] = bars[i].Volume
	}
	return in
}

// Output maps column name to one value per input bar.
type Output map[string][]float64

// Family computes a fixed group of indicator columns.
type Family struct {
	Name    string
	Columns []string
	Compute func(in *Input) (Output, error)
}

// Outcome is the per-family result of one Compute call.
type Outcome struct {
	Family  string
	Columns []string
	Err     error
}

// OK reports whether the family produced values.
func (o Outcome) OK() bool { return o.Err == nil }

// Report collects the outcomes of every family for one series.
type Report struct {
	Rows     int
	Outcomes []Outcome
}

// Failed returns the outcomes that degraded to missing values.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Outcome returns the outcome of the named family.
func (r Report) Outcome(family string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Family == family {
			return o, true
		}
	}
	return Outcome{}, false
}

// Engine runs indicator families over a series with per-family isolation.
type Engine struct {
	families []Family
	refs     map[string]func(*model.IndicatorSet) *float64
}

// NewEngine validates that every family column belongs to the IndicatorSet.
func NewEngine(families ...Family) (*Engine, error) {
	e := &Engine{families: families, refs: make(map[string]func(*model.IndicatorSet) *float64)}
	owner := make(map[string]string)
	for _, f := range families {
		if f.Compute == nil {
			return nil, fmt.Errorf("indicator family %q has no compute func", f.Name)
		}
		for _, c := range f.Columns {
			ref := model.IndicatorRef(c)
			if ref == nil {
				return nil, fmt.Errorf("indicator family %q: unknown column %q", f.Name, c)
			}
			if prev, dup := owner[c]; dup {
				return nil, fmt.Errorf("column %q claimed by %q and %q", c, prev, f.Name)
			}
			owner[c] = f.Name
			e.refs[c] = ref
		}
	}
	return e, nil
}

// NewDefaultEngine returns an engine over DefaultFamilies.
func NewDefaultEngine() *Engine {
	e, err := NewEngine(DefaultFamilies()...)
	if err != nil {
		panic(err)
	}
	return e
}

// Families returns the configured family names.
func (e *Engine) Families() []string {
	out := make([]string, len(e.families))
	for i, f := range e.families {
		out[i] = f.Name
	}
	return out
}

// Compute overwrites the IndicatorSet of every bar in place. Bars must be
// sorted by date. Every indicator column is reset to missing first, so values
// loaded from an earlier run never survive; a failed family leaves its
// columns missing for the whole series.
func (e *Engine) Compute(bars []model.Bar, freq Frequency) Report {
	rep := Report{Rows: len(bars)}
	for i := range bars {
		bars[i].Ind = model.NewIndicatorSet()
	}
	if len(bars) == 0 {
		return rep
	}
	in := newInput(bars, freq)
	for _, fam := range e.families {
		out, err := run(fam, in)
		if err == nil {
			err = checkOutput(fam, out, len(bars))
		}
		rep.Outcomes = append(rep.Outcomes, Outcome{Family: fam.Name, Columns: fam.Columns, Err: err})
		if err != nil {
			continue
		}
		for _, c := range fam.Columns {
			ref, vals := e.refs[c], out[c]
			for i := range bars {
				*ref(&bars[i].Ind) = clean(vals[i])
			}
		}
	}
	return rep
}

func run(fam Family, in *Input) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", fam.Name, r)
		}
	}()
	return fam.Compute(in)
}

func checkOutput(fam Family, out Output, n int) error {
	for _, c := range fam.Columns {
		vals, ok := out[c]
		if !ok {
			return fmt.Errorf("%s: column %s not produced", fam.Name, c)
		}
		if len(vals) != n {
			return fmt.Errorf("%s: column %s has %d values for %d rows", fam.Name, c, len(vals), n)
		}
	}
	return nil
}

// clean maps non-finite results (division by zero) to missing.
func clean(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
