package schema

import (
	"math"
	"time"

	"cn-data/internal/model"
)

// DailyRecord is the on-disk layout of the daily kind. Field order is the
// registry order; nullable pointers carry missing values as parquet nulls.
type DailyRecord struct {
	Date string `parquet:"date"`
	Code string `parquet:"code,dict"`

	Open         *float64 `parquet:"open"`
	High         *float64 `parquet:"high"`
	Low          *float64 `parquet:"low"`
	Close        *float64 `parquet:"close"`
	Volume       *float64 `parquet:"volume"`
	Amount       *float64 `parquet:"amount"`
	Turn         *float64 `parquet:"turn"`
	PctChg       *float64 `parquet:"pctChg"`
	PeTTM        *float64 `parquet:"peTTM"`
	PbMRQ        *float64 `parquet:"pbMRQ"`
	AdjustFactor *float64 `parquet:"adjustFactor"`
	MktCap       *float64 `parquet:"mkt_cap"`

	NetFlowAmount      *float64 `parquet:"net_flow_amount"`
	MainNetFlow        *float64 `parquet:"main_net_flow"`
	SuperLargeNetFlow  *float64 `parquet:"super_large_net_flow"`
	LargeNetFlow       *float64 `parquet:"large_net_flow"`
	MediumSmallNetFlow *float64 `parquet:"medium_small_net_flow"`

	MA5     *float64 `parquet:"ma5"`
	MA10    *float64 `parquet:"ma10"`
	MA20    *float64 `parquet:"ma20"`
	MA60    *float64 `parquet:"ma60"`
	MA120   *float64 `parquet:"ma120"`
	MA250   *float64 `parquet:"ma250"`
	VolMA5  *float64 `parquet:"vol_ma5"`
	VolMA10 *float64 `parquet:"vol_ma10"`
	VolMA20 *float64 `parquet:"vol_ma20"`
	VolMA30 *float64 `parquet:"vol_ma30"`
	DIF     *float64 `parquet:"dif"`
	DEA     *float64 `parquet:"dea"`
	MACD    *float64 `parquet:"macd"`
	K       *float64 `parquet:"k"`
	D       *float64 `parquet:"d"`
	J       *float64 `parquet:"j"`
	RSI6    *float64 `parquet:"rsi6"`
	RSI12   *float64 `parquet:"rsi12"`
	RSI24   *float64 `parquet:"rsi24"`
	BollUp  *float64 `parquet:"boll_up"`
	BollLB  *float64 `parquet:"boll_lb"`
	CCI     *float64 `parquet:"cci"`
	ATR     *float64 `parquet:"atr"`
}

// SectorRecord is the on-disk layout of the sector kind.
type SectorRecord struct {
	Date     string `parquet:"date"`
	Code     string `parquet:"code,dict"`
	Name     string `parquet:"name,dict"`
	Category string `parquet:"type,dict"`

	Open     *float64 `parquet:"open"`
	High     *float64 `parquet:"high"`
	Low      *float64 `parquet:"low"`
	Close    *float64 `parquet:"close"`
	Volume   *float64 `parquet:"volume"`
	Amount   *float64 `parquet:"amount"`
	Turnover *float64 `parquet:"turnover"`

	NetFlowAmount      *float64 `parquet:"net_flow_amount"`
	MainNetFlow        *float64 `parquet:"main_net_flow"`
	SuperLargeNetFlow  *float64 `parquet:"super_large_net_flow"`
	LargeNetFlow       *float64 `parquet:"large_net_flow"`
	MediumSmallNetFlow *float64 `parquet:"medium_small_net_flow"`
}

// RecordKey returns the (code, date) sort key used by the writer.
func (r *DailyRecord) RecordKey() (code, date string) { return r.Code, r.Date }

// RecordKey returns the (code, date) sort key.
func (r *SectorRecord) RecordKey() (code, date string) { return r.Code, r.Date }

func (r *DailyRecord) barRefs() []**float64 {
	return []**float64{&r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Amount, &r.Turn,
		&r.PctChg, &r.PeTTM, &r.PbMRQ, &r.AdjustFactor, &r.MktCap}
}

func (r *DailyRecord) flowRefs() []**float64 {
	return []**float64{&r.NetFlowAmount, &r.MainNetFlow, &r.SuperLargeNetFlow, &r.LargeNetFlow, &r.MediumSmallNetFlow}
}

func (r *DailyRecord) indicatorRefs() []**float64 {
	return []**float64{&r.MA5, &r.MA10, &r.MA20, &r.MA60, &r.MA120, &r.MA250,
		&r.VolMA5, &r.VolMA10, &r.VolMA20, &r.VolMA30,
		&r.DIF, &r.DEA, &r.MACD, &r.K, &r.D, &r.J,
		&r.RSI6, &r.RSI12, &r.RSI24, &r.BollUp, &r.BollLB, &r.CCI, &r.ATR}
}

func (r *SectorRecord) priceRefs() []**float64 {
	return []**float64{&r.Open, &r.High, &r.Low, &r.Close, &r.Volume, &r.Amount, &r.Turnover}
}

func (r *SectorRecord) flowRefs() []**float64 {
	return []**float64{&r.NetFlowAmount, &r.MainNetFlow, &r.SuperLargeNetFlow, &r.LargeNetFlow, &r.MediumSmallNetFlow}
}

// ToDailyRecord converts a bar to its stored form. NaN becomes null.
func ToDailyRecord(b *model.Bar) DailyRecord {
	r := DailyRecord{Date: b.DateKey(), Code: b.Code}
	for i, p := range r.barRefs() {
		*p = nullable(*model.BarFields[i].Ref(b))
	}
	for i, p := range r.flowRefs() {
		*p = nullable(*model.FlowFields[i].Ref(b))
	}
	for i, p := range r.indicatorRefs() {
		*p = nullable(*model.IndicatorFields[i].Ref(&b.Ind))
	}
	return r
}

// FromDailyRecord converts a stored record back into a bar. Null becomes NaN.
func FromDailyRecord(r *DailyRecord) (model.Bar, error) {
	d, err := time.ParseInLocation(model.DateLayout, r.Date, time.UTC)
	if err != nil {
		return model.Bar{}, err
	}
	b := model.Bar{Code: r.Code, Date: d}
	for i, p := range r.barRefs() {
		*model.BarFields[i].Ref(&b) = value(*p)
	}
	for i, p := range r.flowRefs() {
		*model.FlowFields[i].Ref(&b) = value(*p)
	}
	for i, p := range r.indicatorRefs() {
		*model.IndicatorFields[i].Ref(&b.Ind) = value(*p)
	}
	return b, nil
}

// ToSectorRecord converts a sector bar to its stored form.
func ToSectorRecord(b *model.SectorBar) SectorRecord {
	r := SectorRecord{Date: b.Date.Format(model.DateLayout), Code: b.Code, Name: b.Name, Category: b.Category}
	for i, p := range r.priceRefs() {
		*p = nullable(*model.SectorFields[i].Ref(b))
	}
	flows := b.Flow.Refs()
	for i, p := range r.flowRefs() {
		*p = nullable(*flows[i])
	}
	return r
}

// FromSectorRecord converts a stored sector record back into a sector bar.
func FromSectorRecord(r *SectorRecord) (model.SectorBar, error) {
	d, err := time.ParseInLocation(model.DateLayout, r.Date, time.UTC)
	if err != nil {
		return model.SectorBar{}, err
	}
	b := model.SectorBar{Code: r.Code, Date: d, Name: r.Name, Category: r.Category}
	for i, p := range r.priceRefs() {
		*model.SectorFields[i].Ref(&b) = value(*p)
	}
	flows := b.Flow.Refs()
	for i, p := range r.flowRefs() {
		*flows[i] = value(*p)
	}
	return b, nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return model.Missing
	}
	return *p
}
