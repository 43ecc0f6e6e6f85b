package model

import (
	"math"
	"time"
)

// DateLayout is the on-disk date representation of every output table.
const DateLayout = "2006-01-02"

// Missing is the explicit "no data" marker for float fields. It is never zero.
var Missing = math.NaN()

// IsMissing reports whether v carries no data.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Flow holds the fund-flow tranches of one observation.
type Flow struct {
	NetFlowAmount      float64
	MainNetFlow        float64
	SuperLargeNetFlow  float64
	LargeNetFlow       float64
	MediumSmallNetFlow float64
}

// Bar is one (entity, date) observation after reconciliation.
type Bar struct {
	Code string
	Date time.Time // UTC midnight

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Amount float64
	Turn   float64 // turnover rate, percent
	PctChg float64

	PeTTM        float64
	PbMRQ        float64
	AdjustFactor float64
	MktCap       float64 // float market cap

	Flow Flow
	Ind  IndicatorSet
}

// IndicatorSet is derived and non-authoritative; it is recomputed every run.
type IndicatorSet struct {
	MA5, MA10, MA20, MA60, MA120, MA250 float64
	VolMA5, VolMA10, VolMA20, VolMA30   float64
	DIF, DEA, MACD                      float64
	K, D, J                             float64
	RSI6, RSI12, RSI24                  float64
	BollUp, BollLB                      float64
	CCI                                 float64
	ATR                                 float64
}

// NewBar returns a bar with every float field missing.
func NewBar(code string, date time.Time) Bar {
	b := Bar{Code: code, Date: date}
	for _, f := range BarFields {
		*f.Ref(&b) = Missing
	}
	for _, f := range FlowFields {
		*f.Ref(&b) = Missing
	}
	b.Ind = NewIndicatorSet()
	return b
}

// NewIndicatorSet returns a set with every column missing.
func NewIndicatorSet() IndicatorSet {
	var s IndicatorSet
	for _, f := range IndicatorFields {
		*f.Ref(&s) = Missing
	}
	return s
}

// DateKey formats the bar date the way it is stored.
func (b *Bar) DateKey() string { return b.Date.Format(DateLayout) }

// Less orders bars by (code, date).
func Less(a, b *Bar) bool {
	if a.Code != b.Code {
		return a.Code < b.Code
	}
	return a.Date.Before(b.Date)
}
