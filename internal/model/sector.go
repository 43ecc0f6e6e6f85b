package model

import "time"

// SectorBar is one (sector, date) price bar with its rolled-up flows.
type SectorBar struct {
	Code     string
	Date     time.Time
	Name     string
	Category string // 行业 / 概念 / 地域

	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	Amount   float64
	Turnover float64

	Flow Flow
}

// SectorFields lists the sector price columns in canonical order.
var SectorFields = []SectorField{
	{"open", func(b *SectorBar) *float64 { return &b.Open }},
	{"high", func(b *SectorBar) *float64 { return &b.High }},
	{"low", func(b *SectorBar) *float64 { return &b.Low }},
	{"close", func(b *SectorBar) *float64 { return &b.Close }},
	{"volume", func(b *SectorBar) *float64 { return &b.Volume }},
	{"amount", func(b *SectorBar) *float64 { return &b.Amount }},
	{"turnover", func(b *SectorBar) *float64 { return &b.Turnover }},
}

// SectorField addresses one float column of a SectorBar.
type SectorField struct {
	Name string
	Ref  func(*SectorBar) *float64
}

// Refs returns the five flow tranches of f in canonical order.
func (f *Flow) Refs() [5]*float64 {
	return [5]*float64{&f.NetFlowAmount, &f.MainNetFlow, &f.SuperLargeNetFlow, &f.LargeNetFlow, &f.MediumSmallNetFlow}
}

// NewSectorBar returns a sector bar with every float field missing.
func NewSectorBar(code string, date time.Time) SectorBar {
	b := SectorBar{Code: code, Date: date}
	for _, f := range SectorFields {
		*f.Ref(&b) = Missing
	}
	for _, p := range b.Flow.Refs() {
		*p = Missing
	}
	return b
}

// Membership is one (sector, member entity) pair.
type Membership struct {
	Sector string
	Code   string
}
