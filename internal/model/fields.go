package model

// BarField addresses one float column of a Bar by its canonical name.
type BarField struct {
	Name string
	Ref  func(*Bar) *float64
}

// IndicatorField addresses one column of an IndicatorSet by its canonical name.
type IndicatorField struct {
	Name string
	Ref  func(*IndicatorSet) *float64
}

// BarFields lists raw, valuation and derived market columns in canonical order.
var BarFields = []BarField{
	{"open", func(b *Bar) *float64 { return &b.Open }},
	{"high", func(b *Bar) *float64 { return &b.High }},
	{"low", func(b *Bar) *float64 { return &b.Low }},
	{"close", func(b *Bar) *float64 { return &b.Close }},
	{"volume", func(b *Bar) *float64 { return &b.Volume }},
	{"amount", func(b *Bar) *float64 { return &b.Amount }},
	{"turn", func(b *Bar) *float64 { return &b.Turn }},
	{"pctChg", func(b *Bar) *float64 { return &b.PctChg }},
	{"peTTM", func(b *Bar) *float64 { return &b.PeTTM }},
	{"pbMRQ", func(b *Bar) *float64 { return &b.PbMRQ }},
	{"adjustFactor", func(b *Bar) *float64 { return &b.AdjustFactor }},
	{"mkt_cap", func(b *Bar) *float64 { return &b.MktCap }},
}

// FlowFields lists the fund-flow tranches in canonical order.
var FlowFields = []BarField{
	{"net_flow_amount", func(b *Bar) *float64 { return &b.Flow.NetFlowAmount }},
	{"main_net_flow", func(b *Bar) *float64 { return &b.Flow.MainNetFlow }},
	{"super_large_net_flow", func(b *Bar) *float64 { return &b.Flow.SuperLargeNetFlow }},
	{"large_net_flow", func(b *Bar) *float64 { return &b.Flow.LargeNetFlow }},
	{"medium_small_net_flow", func(b *Bar) *float64 { return &b.Flow.MediumSmallNetFlow }},
}

// IndicatorFields lists indicator columns in canonical order.
var IndicatorFields = []IndicatorField{
	{"ma5", func(s *IndicatorSet) *float64 { return &s.MA5 }},
	{"ma10", func(s *IndicatorSet) *float64 { return &s.MA10 }},
	{"ma20", func(s *IndicatorSet) *float64 { return &s.MA20 }},
	{"ma60", func(s *IndicatorSet) *float64 { return &s.MA60 }},
	{"ma120", func(s *IndicatorSet) *float64 { return &s.MA120 }},
	{"ma250", func(s *IndicatorSet) *float64 { return &s.MA250 }},
	{"vol_ma5", func(s *IndicatorSet) *float64 { return &s.VolMA5 }},
	{"vol_ma10", func(s *IndicatorSet) *float64 { return &s.VolMA10 }},
	{"vol_ma20", func(s *IndicatorSet) *float64 { return &s.VolMA20 }},
	{"vol_ma30", func(s *IndicatorSet) *float64 { return &s.VolMA30 }},
	{"dif", func(s *IndicatorSet) *float64 { return &s.DIF }},
	{"dea", func(s *IndicatorSet) *float64 { return &s.DEA }},
	{"macd", func(s *IndicatorSet) *float64 { return &s.MACD }},
	{"k", func(s *IndicatorSet) *float64 { return &s.K }},
	{"d", func(s *IndicatorSet) *float64 { return &s.D }},
	{"j", func(s *IndicatorSet) *float64 { return &s.J }},
	{"rsi6", func(s *IndicatorSet) *float64 { return &s.RSI6 }},
	{"rsi12", func(s *IndicatorSet) *float64 { return &s.RSI12 }},
	{"rsi24", func(s *IndicatorSet) *float64 { return &s.RSI24 }},
	{"boll_up", func(s *IndicatorSet) *float64 { return &s.BollUp }},
	{"boll_lb", func(s *IndicatorSet) *float64 { return &s.BollLB }},
	{"cci", func(s *IndicatorSet) *float64 { return &s.CCI }},
	{"atr", func(s *IndicatorSet) *float64 { return &s.ATR }},
}

// IndicatorRef returns the accessor for an indicator column, or nil.
func IndicatorRef(name string) func(*IndicatorSet) *float64 {
	for _, f := range IndicatorFields {
		if f.Name == name {
			return f.Ref
		}
	}
	return nil
}
