package sector

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"cn-data/internal/model"
	"cn-data/internal/schema"
	"cn-data/internal/shard"
)

var (
	sectorColumns = []string{"sector_code", "sector", "board", "bk_code", "block"}
	memberColumns = []string{"code", "member", "stock_code", "symbol"}
)

// LoadMembership reads (sector, member) pairs. YAML files map a sector code
// to its member codes; parquet, csv and json files hold one pair per row.
// Sector codes are normalized and duplicate pairs dropped.
func LoadMembership(path string) ([]model.Membership, error) {
	var pairs []model.Membership
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var m map[string][]string
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("membership %s: %w", filepath.Base(path), err)
		}
		for s, codes := range m {
			for _, c := range codes {
				pairs = append(pairs, model.Membership{Sector: s, Code: c})
			}
		}
	default:
		rows, err := shard.Load(path)
		if err != nil {
			return nil, err
		}
		for i, raw := range rows {
			s, okS := pick(raw, sectorColumns)
			c, okC := pick(raw, memberColumns)
			if !okS || !okC {
				return nil, fmt.Errorf("membership %s row %d: need a sector and a member column", filepath.Base(path), i)
			}
			pairs = append(pairs, model.Membership{Sector: s, Code: c})
		}
	}
	return dedup(pairs), nil
}

func pick(raw schema.RawRow, names []string) (string, bool) {
	for _, n := range names {
		for k, v := range raw {
			if strings.EqualFold(strings.TrimSpace(k), n) {
				if s := schema.String(v); s != "" {
					return s, true
				}
			}
		}
	}
	return "", false
}

func dedup(pairs []model.Membership) []model.Membership {
	seen := make(map[model.Membership]struct{}, len(pairs))
	out := make([]model.Membership, 0, len(pairs))
	for _, p := range pairs {
		p.Sector = schema.NormalizeSectorCode(p.Sector)
		p.Code = strings.TrimSpace(p.Code)
		if p.Sector == "" || p.Code == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sector != out[j].Sector {
			return out[i].Sector < out[j].Sector
		}
		return out[i].Code < out[j].Code
	})
	return out
}

var exchanges = []string{"sh", "sz", "bj"}

// MemberKey normalizes an entity code to "{exchange}.{digits}", lower case:
// "sz.000001", "SZ000001" and "000001.SZ" all become "sz.000001". Codes
// without a known exchange are returned lower-cased.
func MemberKey(code string) string {
	exch, digits := splitCode(code)
	if exch == "" {
		return digits
	}
	return exch + "." + digits
}

// splitCode returns the exchange and the rest of code. exchange is "" when
// code carries none.
func splitCode(code string) (exchange, rest string) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, e := range exchanges {
		if r, ok := strings.CutPrefix(code, e); ok {
			r = strings.TrimPrefix(r, ".")
			if isDigits(r) {
				return e, r
			}
		}
		if d, ok := strings.CutSuffix(code, "."+e); ok && isDigits(d) {
			return e, d
		}
	}
	return "", code
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// memberIndex holds membership keyed for the join. Entries with an exchange
// match exactly; bare-digit entries are kept aside until the daily codes are
// known.
type memberIndex struct {
	exact map[string][]string // "sz.000001" -> sectors
	bare  map[string][]string // "000001" -> sectors
}

func newMemberIndex(pairs []model.Membership) *memberIndex {
	ix := &memberIndex{exact: make(map[string][]string), bare: make(map[string][]string)}
	for _, p := range pairs {
		exch, rest := splitCode(p.Code)
		m, k := ix.exact, rest
		if exch != "" {
			k = exch + "." + rest
		} else if isDigits(rest) {
			m = ix.bare
		}
		m[k] = appendSector(m[k], p.Sector)
	}
	return ix
}

func appendSector(list []string, sector string) []string {
	if slices.Contains(list, sector) {
		return list
	}
	return append(list, sector)
}

// resolve maps daily entity keys to their sectors. A bare-digit entry joins
// the one entity with those digits; when several exchanges share them the
// entry is ambiguous and skipped, and its digits are returned.
func (ix *memberIndex) resolve(entities []string) (map[string][]string, []string) {
	out := make(map[string][]string, len(ix.exact))
	for k, sectors := range ix.exact {
		out[k] = slices.Clone(sectors)
	}
	byDigits := make(map[string][]string)
	for _, e := range entities {
		if exch, rest := splitCode(e); exch != "" {
			byDigits[rest] = append(byDigits[rest], exch+"."+rest)
		}
	}
	var ambiguous []string
	for digits, sectors := range ix.bare {
		cands := byDigits[digits]
		switch len(cands) {
		case 0:
		case 1:
			for _, s := range sectors {
				out[cands[0]] = appendSector(out[cands[0]], s)
			}
		default:
			ambiguous = append(ambiguous, digits)
		}
	}
	sort.Strings(ambiguous)
	return out, ambiguous
}
