package sector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-data/internal/model"
	"cn-data/internal/schema"
	"cn-data/internal/writer"
)

type rawSector struct {
	Code   string  `parquet:"code"`
	Date   string  `parquet:"date"`
	Open   float64 `parquet:"open"`
	Close  float64 `parquet:"close"`
	Amount float64 `parquet:"amount"`
}

type rawListRow struct {
	Code string `parquet:"f12"`
	Name string `parquet:"f14"`
	Type string `parquet:"type"`
}

func f64(v float64) *float64 { return &v }

func dailyRow(code, date string, net, main *float64) schema.DailyRecord {
	return schema.DailyRecord{Code: code, Date: date, Close: f64(1), NetFlowAmount: net, MainNetFlow: main}
}

type fixture struct {
	dir     string
	cfg     Config
	outPath string
}

func newFixture(t *testing.T, membership string) fixture {
	t.Helper()
	dir := t.TempDir()
	sectors := filepath.Join(dir, "sector_full_raw.parquet")
	require.NoError(t, parquet.WriteFile(sectors, []rawSector{
		{Code: "BK0425", Date: "2024-01-03", Open: 1, Close: 2, Amount: 10},
		{Code: "0425", Date: "2024-01-02", Open: 1, Close: 1, Amount: 10},
		{Code: "0500", Date: "2024-01-02", Open: 3, Close: 3, Amount: 30},
	}))

	daily := filepath.Join(dir, "stock_2024.parquet")
	require.NoError(t, writer.WriteFile(daily, []schema.DailyRecord{
		dailyRow("sz.000001", "2024-01-02", f64(100), f64(50)),
		dailyRow("sz.000001", "2024-01-05", f64(999), nil), // no sector row that day
		dailyRow("sh.600000", "2024-01-02", f64(-40), nil),
		dailyRow("sh.600001", "2024-01-02", f64(7), f64(7)), // not a member anywhere
	}))

	memPath := filepath.Join(dir, "membership.yaml")
	require.NoError(t, os.WriteFile(memPath, []byte(membership), 0o644))

	out := filepath.Join(dir, "out", "sector_full.parquet")
	return fixture{dir: dir, outPath: out, cfg: Config{
		SectorFile:     sectors,
		MembershipFile: memPath,
		DailyFiles:     []string{daily},
		Output:         out,
	}}
}

func readOutput(t *testing.T, path string) []model.SectorBar {
	t.Helper()
	recs, err := writer.ReadFile[schema.SectorRecord](path)
	require.NoError(t, err)
	bars := make([]model.SectorBar, len(recs))
	for i := range recs {
		bars[i], err = schema.FromSectorRecord(&recs[i])
		require.NoError(t, err)
	}
	return bars
}

const membershipYAML = `
BK0425:
  - sz.000001
  - "600000"
"0500": []
`

func TestRollupSumsMemberFlows(t *testing.T) {
	fx := newFixture(t, membershipYAML)
	st, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Sectors)
	assert.Equal(t, 3, st.Rows)
	assert.Equal(t, 2, st.Members)
	assert.Equal(t, 2, st.ZeroFilled)
	assert.Equal(t, int64(3), st.Contributions)

	bars := readOutput(t, fx.outPath)
	require.Len(t, bars, 3)
	assert.Equal(t, "0425", bars[0].Code)
	assert.Equal(t, "2024-01-02", schema.DateKey(bars[0].Date))
	assert.Equal(t, 60.0, bars[0].Flow.NetFlowAmount)
	assert.Equal(t, 50.0, bars[0].Flow.MainNetFlow)
	assert.Equal(t, 0.0, bars[0].Flow.LargeNetFlow, "missing member values contribute nothing")
	assert.Equal(t, 10.0, bars[0].Amount, "price columns pass through")

	// no member flow that day: zero-filled, never missing
	assert.Equal(t, "2024-01-03", schema.DateKey(bars[1].Date))
	for _, p := range bars[1].Flow.Refs() {
		assert.Equal(t, 0.0, *p)
	}
	assert.Equal(t, "0500", bars[2].Code)
	assert.Equal(t, 0.0, bars[2].Flow.NetFlowAmount)
}

func TestRollupEnrichesFromSectorList(t *testing.T) {
	fx := newFixture(t, membershipYAML)
	list := filepath.Join(fx.dir, "sector_list.parquet")
	require.NoError(t, parquet.WriteFile(list, []rawListRow{{Code: "0425", Name: "银行", Type: "行业"}}))
	fx.cfg.SectorListFile = list

	_, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	bars := readOutput(t, fx.outPath)
	assert.Equal(t, "银行", bars[0].Name)
	assert.Equal(t, "行业", bars[0].Category)
	assert.Equal(t, "", bars[2].Name)
}

func TestRollupCanceled(t *testing.T) {
	fx := newFixture(t, membershipYAML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(fx.cfg, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(fx.outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadMembershipRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "members.csv")
	require.NoError(t, os.WriteFile(path, []byte("sector_code,stock_code\nBK0425,sz.000001\n0425,sz.000001\n0425,sh.600000\n"), 0o644))

	pairs, err := LoadMembership(path)
	require.NoError(t, err)
	assert.Equal(t, []model.Membership{
		{Sector: "0425", Code: "sh.600000"},
		{Sector: "0425", Code: "sz.000001"},
	}, pairs)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("x,y\n1,2\n"), 0o644))
	_, err = LoadMembership(bad)
	assert.Error(t, err)
}

func TestMemberKey(t *testing.T) {
	for in, want := range map[string]string{
		"sz.000001": "sz.000001",
		"SZ000001":  "sz.000001",
		"000001.SZ": "sz.000001",
		"SH600000":  "sh.600000",
		"600000":    "600000",
		"bj.830799": "bj.830799",
		"shanghai":  "shanghai",
	} {
		assert.Equal(t, want, MemberKey(in), in)
	}
}

func TestRollupKeepsExchangesApart(t *testing.T) {
	fx := newFixture(t, `
BK0425:
  - 000001.SZ
"0500":
  - "000001"
`)
	// the SSE index shares digits with the bank
	daily := filepath.Join(fx.dir, "stock_2024_sh.parquet")
	require.NoError(t, writer.WriteFile(daily, []schema.DailyRecord{
		dailyRow("sh.000001", "2024-01-02", f64(5000), f64(5000)),
	}))
	fx.cfg.DailyFiles = append(fx.cfg.DailyFiles, daily)

	st, err := New(fx.cfg, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Ambiguous)

	bars := readOutput(t, fx.outPath)
	require.Len(t, bars, 3)
	assert.Equal(t, 100.0, bars[0].Flow.NetFlowAmount)
	assert.Equal(t, 50.0, bars[0].Flow.MainNetFlow)
	assert.Equal(t, "0500", bars[2].Code)
	assert.Equal(t, 0.0, bars[2].Flow.NetFlowAmount, "bare code matching two exchanges joins nothing")
}

func TestMemberIndexResolve(t *testing.T) {
	ix := newMemberIndex([]model.Membership{
		{Sector: "0425", Code: "sz.000001"},
		{Sector: "0425", Code: "SZ000001"},
		{Sector: "0425", Code: "600000"},
		{Sector: "0500", Code: "600000"},
		{Sector: "0500", Code: "000002"},
	})
	got, ambiguous := ix.resolve([]string{"sz.000001", "sh.600000", "sz.000002", "sh.000002"})
	assert.Equal(t, []string{"0425"}, got["sz.000001"])
	assert.ElementsMatch(t, []string{"0425", "0500"}, got["sh.600000"])
	assert.Empty(t, got["sz.000002"])
	assert.Equal(t, []string{"000002"}, ambiguous)
}
