package resample

import (
	"cn-data/internal/indicator"
	"cn-data/internal/model"
)

// Output is the coarse series of one entity with their indicator reports.
type Output struct {
	Weekly        []model.Bar
	Monthly       []model.Bar
	WeeklyReport  indicator.Report
	MonthlyReport indicator.Report
}

// Resampler derives weekly and monthly series and recomputes their indicators
// in bars of the coarse frequency.
type Resampler struct {
	engine *indicator.Engine
}

// New creates a Resampler over engine.
func New(engine *indicator.Engine) *Resampler {
	return &Resampler{engine: engine}
}

// Process resamples a date-sorted daily series. The input is not modified.
func (r *Resampler) Process(daily []model.Bar) Output {
	var out Output
	out.Weekly = Weekly(daily)
	out.WeeklyReport = r.engine.Compute(out.Weekly, indicator.Weekly)
	out.Monthly = Monthly(daily)
	out.MonthlyReport = r.engine.Compute(out.Monthly, indicator.Monthly)
	return out
}
