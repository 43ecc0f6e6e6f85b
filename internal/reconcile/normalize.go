package reconcile

import "cn-data/internal/model"

// Normalize fills derived fields on a date-sorted series in place.
//
// adjustFactor carries forward from the last corporate-action row and is 1.0
// before the first one. mkt_cap, where absent, is close * float shares with
// float shares = volume / (turn/100); suspended days (turn == 0) carry the
// previous value and anything still unknown is 0.
func Normalize(bars []model.Bar) {
	last := 1.0
	for i := range bars {
		if model.IsMissing(bars[i].AdjustFactor) {
			bars[i].AdjustFactor = last
		} else {
			last = bars[i].AdjustFactor
		}
	}

	prev := model.Missing
	for i := range bars {
		b := &bars[i]
		if model.IsMissing(b.MktCap) {
			b.MktCap = floatMarketCap(b)
		}
		if model.IsMissing(b.MktCap) {
			b.MktCap = prev
		}
		prev = b.MktCap
	}
	for i := range bars {
		if model.IsMissing(bars[i].MktCap) {
			bars[i].MktCap = 0
		}
	}
}

func floatMarketCap(b *model.Bar) float64 {
	if model.IsMissing(b.Close) || model.IsMissing(b.Volume) || model.IsMissing(b.Turn) || b.Turn == 0 {
		return model.Missing
	}
	return b.Close * b.Volume / (b.Turn / 100)
}
