package schema

import (
	"fmt"
	"strings"
	"time"

	"cn-data/internal/model"
)

// RawRow is one producer row keyed by its own column names. Values may be
// any of the types Float and Date understand.
type RawRow map[string]any

// FieldError records a value replaced by missing during conformance.
type FieldError struct {
	Column string
	Value  any
	Err    error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("column %s: %v", e.Column, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// Canonical maps a producer column name to a registry column name of k.
// Unknown columns return ok=false and are ignored by conformance.
func (k Kind) Canonical(name string) (string, bool) {
	if _, ok := k.Lookup(name); ok {
		return name, true
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, c := range k.columns {
		if strings.ToLower(c.Name) == lower {
			return c.Name, true
		}
	}
	if alias, ok := k.aliases[lower]; ok {
		return alias, true
	}
	return "", false
}

// Resolve re-keys raw onto registry names, dropping extra columns. When both
// a registry name and an alias are present, the registry name wins.
func (k Kind) Resolve(raw RawRow) map[string]any {
	out := make(map[string]any, len(k.columns))
	for _, exact := range []bool{false, true} {
		for name, v := range raw {
			canon, ok := k.Canonical(name)
			if ok && strings.EqualFold(canon, name) == exact {
				out[canon] = v
			}
		}
	}
	return out
}

// ConformDaily builds a schema-complete bar from raw. Absent columns and
// unparseable values become missing; only a missing date rejects the row.
// fallbackCode is used when the row carries no code of its own.
func ConformDaily(raw RawRow, fallbackCode string) (model.Bar, []FieldError, error) {
	cols := Daily.Resolve(raw)
	date, err := Date(cols["date"])
	if err != nil {
		return model.Bar{}, nil, err
	}
	code := String(cols["code"])
	if code == "" {
		code = fallbackCode
	}
	b := model.NewBar(code, date)
	var errs []FieldError
	set := func(name string, dst *float64) {
		v, ok := cols[name]
		if !ok {
			return
		}
		f, err := Float(v)
		if err != nil {
			errs = append(errs, FieldError{Column: name, Value: v, Err: err})
		}
		*dst = f
	}
	for _, f := range model.BarFields {
		set(f.Name, f.Ref(&b))
	}
	for _, f := range model.FlowFields {
		set(f.Name, f.Ref(&b))
	}
	for _, f := range model.IndicatorFields {
		set(f.Name, f.Ref(&b.Ind))
	}
	return b, errs, nil
}

// ConformSector builds a schema-complete sector bar from raw.
func ConformSector(raw RawRow) (model.SectorBar, []FieldError, error) {
	cols := Sector.Resolve(raw)
	date, err := Date(cols["date"])
	if err != nil {
		return model.SectorBar{}, nil, err
	}
	b := model.NewSectorBar(NormalizeSectorCode(String(cols["code"])), date)
	b.Name = String(cols["name"])
	b.Category = String(cols["type"])
	var errs []FieldError
	set := func(name string, dst *float64) {
		v, ok := cols[name]
		if !ok {
			return
		}
		f, err := Float(v)
		if err != nil {
			errs = append(errs, FieldError{Column: name, Value: v, Err: err})
		}
		*dst = f
	}
	for _, f := range model.SectorFields {
		set(f.Name, f.Ref(&b))
	}
	flows := b.Flow.Refs()
	for i, f := range model.FlowFields {
		set(f.Name, flows[i])
	}
	return b, errs, nil
}

// NormalizeSectorCode strips the market and BK prefixes ("90.BK0425" -> "0425").
func NormalizeSectorCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '.'); i >= 0 && strings.HasPrefix(strings.ToUpper(code[i+1:]), "BK") {
		code = code[i+1:]
	}
	if len(code) > 2 && strings.EqualFold(code[:2], "BK") {
		code = code[2:]
	}
	return code
}

// DateKey formats t the way every table stores dates.
func DateKey(t time.Time) string { return t.Format(model.DateLayout) }
