package schema

import "cn-data/internal/model"

// Version is bumped whenever a column is added, removed, renamed or retyped.
// It is stamped into the key/value metadata of every parquet file we write.
const Version = "1"

// VersionKey is the parquet metadata key carrying Version.
const VersionKey = "cn-data.schema_version"

// Type is the declared type of a registry column.
type Type int

const (
	TypeString Type = iota
	TypeDate
	TypeFloat64
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeFloat64:
		return "float64"
	default:
		return "unknown"
	}
}

// Column is one ordered registry entry.
type Column struct {
	Name string
	Type Type
}

// Kind is a record kind with a fixed, ordered column set.
type Kind struct {
	name    string
	columns []Column
	aliases map[string]string
}

// Name returns the record kind name ("daily", "sector").
func (k Kind) Name() string { return k.name }

// Columns returns the ordered column list. Callers must not modify it.
func (k Kind) Columns() []Column { return k.columns }

// Names returns the ordered column names.
func (k Kind) Names() []string {
	out := make([]string, len(k.columns))
	for i, c := range k.columns {
		out[i] = c.Name
	}
	return out
}

// Lookup returns the column with the given name.
func (k Kind) Lookup(name string) (Column, bool) {
	for _, c := range k.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

var (
	// Daily is the entity record kind. Weekly and monthly tables share it.
	Daily = Kind{name: "daily", columns: dailyColumns(), aliases: dailyAliases}
	// Sector is the sector price-bar record kind.
	Sector = Kind{name: "sector", columns: sectorColumns(), aliases: sectorAliases}
)

func dailyColumns() []Column {
	cols := []Column{{"date", TypeDate}, {"code", TypeString}}
	for _, f := range model.BarFields {
		cols = append(cols, Column{f.Name, TypeFloat64})
	}
	for _, f := range model.FlowFields {
		cols = append(cols, Column{f.Name, TypeFloat64})
	}
	for _, f := range model.IndicatorFields {
		cols = append(cols, Column{f.Name, TypeFloat64})
	}
	return cols
}

func sectorColumns() []Column {
	cols := []Column{{"date", TypeDate}, {"code", TypeString}, {"name", TypeString}, {"type", TypeString}}
	for _, f := range model.SectorFields {
		cols = append(cols, Column{f.Name, TypeFloat64})
	}
	for _, f := range model.FlowFields {
		cols = append(cols, Column{f.Name, TypeFloat64})
	}
	return cols
}

// Producer-specific column names mapped onto registry names. Keys are lower case.
var dailyAliases = map[string]string{
	"t":             "date",
	"timestamp":     "date",
	"opendate":      "date",
	"trade_date":    "date",
	"symbol":        "code",
	"ticker":        "code",
	"o":             "open",
	"h":             "high",
	"l":             "low",
	"c":             "close",
	"v":             "volume",
	"vol":           "volume",
	"turnover":      "turn",
	"pct_chg":       "pctChg",
	"pe_ttm":        "peTTM",
	"pb_mrq":        "pbMRQ",
	"adjust_factor": "adjustFactor",
	"mktcap":        "mkt_cap",
	"netamount":     "net_flow_amount",
	"r0_net":        "main_net_flow",
	"r1_net":        "super_large_net_flow",
	"r2_net":        "large_net_flow",
	"r3_net":        "medium_small_net_flow",
}

var sectorAliases = map[string]string{
	"f12":      "code",
	"f14":      "name",
	"category": "type",
	"turn":     "turnover",
	"opendate": "date",
	"t":        "date",
}
