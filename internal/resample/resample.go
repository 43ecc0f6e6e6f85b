package resample

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"cn-data/internal/model"
)

// Labeler maps a daily date to the label date of its bucket.
type Labeler func(time.Time) time.Time

// WeekEnd labels a date with the Friday closing its week. Saturday and Sunday
// belong to the following week.
func WeekEnd(d time.Time) time.Time {
	ahead := (int(time.Friday) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, ahead)
}

// MonthEnd labels a date with the last calendar day of its month.
func MonthEnd(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

// Weekly aggregates a date-sorted daily series into W-FRI buckets.
func Weekly(bars []model.Bar) []model.Bar { return Aggregate(bars, WeekEnd) }

// Monthly aggregates a date-sorted daily series into month-end buckets.
func Monthly(bars []model.Bar) []model.Bar { return Aggregate(bars, MonthEnd) }

// Aggregate groups consecutive bars sharing a label and folds every group into
// one bar dated at the label. Groups without a valid close are dropped.
// pctChg is recomputed from the closes of consecutive emitted buckets.
func Aggregate(bars []model.Bar, label Labeler) []model.Bar {
	var out []model.Bar
	for lo := 0; lo < len(bars); {
		key := label(bars[lo].Date)
		hi := lo + 1
		for hi < len(bars) && label(bars[hi].Date).Equal(key) {
			hi++
		}
		if b, ok := fold(bars[lo:hi], key); ok {
			out = append(out, b)
		}
		lo = hi
	}
	prev := model.Missing
	for i := range out {
		out[i].PctChg = pctChange(prev, out[i].Close)
		prev = out[i].Close
	}
	return out
}

func fold(group []model.Bar, at time.Time) (model.Bar, bool) {
	b := model.NewBar(group[0].Code, at)
	b.Close = last(group, func(x *model.Bar) float64 { return x.Close })
	if model.IsMissing(b.Close) {
		return b, false
	}
	b.Open = first(group, func(x *model.Bar) float64 { return x.Open })
	b.High = extreme(group, func(x *model.Bar) float64 { return x.High }, floats.Max)
	b.Low = extreme(group, func(x *model.Bar) float64 { return x.Low }, floats.Min)
	b.Volume = sum(group, func(x *model.Bar) float64 { return x.Volume })
	b.Amount = sum(group, func(x *model.Bar) float64 { return x.Amount })
	b.Turn = mean(group, func(x *model.Bar) float64 { return x.Turn })
	b.PeTTM = last(group, func(x *model.Bar) float64 { return x.PeTTM })
	b.PbMRQ = last(group, func(x *model.Bar) float64 { return x.PbMRQ })
	b.MktCap = last(group, func(x *model.Bar) float64 { return x.MktCap })
	b.AdjustFactor = last(group, func(x *model.Bar) float64 { return x.AdjustFactor })

	dst := b.Flow.Refs()
	for k := range dst {
		*dst[k] = sum(group, func(x *model.Bar) float64 { return *x.Flow.Refs()[k] })
	}
	return b, true
}

// present collects the non-missing values of pick over group.
func present(group []model.Bar, pick func(*model.Bar) float64) []float64 {
	vals := make([]float64, 0, len(group))
	for i := range group {
		if v := pick(&group[i]); !model.IsMissing(v) {
			vals = append(vals, v)
		}
	}
	return vals
}

func first(group []model.Bar, pick func(*model.Bar) float64) float64 {
	for i := range group {
		if v := pick(&group[i]); !model.IsMissing(v) {
			return v
		}
	}
	return model.Missing
}

func last(group []model.Bar, pick func(*model.Bar) float64) float64 {
	for i := len(group) - 1; i >= 0; i-- {
		if v := pick(&group[i]); !model.IsMissing(v) {
			return v
		}
	}
	return model.Missing
}

// sum skips missing values; an all-missing group stays missing.
func sum(group []model.Bar, pick func(*model.Bar) float64) float64 {
	vals := present(group, pick)
	if len(vals) == 0 {
		return model.Missing
	}
	return floats.Sum(vals)
}

func mean(group []model.Bar, pick func(*model.Bar) float64) float64 {
	vals := present(group, pick)
	if len(vals) == 0 {
		return model.Missing
	}
	return stat.Mean(vals, nil)
}

func extreme(group []model.Bar, pick func(*model.Bar) float64, agg func([]float64) float64) float64 {
	vals := present(group, pick)
	if len(vals) == 0 {
		return model.Missing
	}
	return agg(vals)
}

func pctChange(prev, cur float64) float64 {
	if model.IsMissing(prev) || prev == 0 {
		return model.Missing
	}
	v := (cur/prev - 1) * 100
	if math.IsInf(v, 0) {
		return model.Missing
	}
	return v
}
