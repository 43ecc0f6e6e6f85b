package writer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cn-data/internal/schema"
)

func f64(v float64) *float64 { return &v }

func rec(code, date string, close float64) schema.DailyRecord {
	return schema.DailyRecord{Code: code, Date: date, Close: f64(close)}
}

func keys(rows []schema.DailyRecord) []string {
	out := make([]string, len(rows))
	for i := range rows {
		out[i] = rows[i].Code + "@" + rows[i].Date
	}
	return out
}

func TestAccumulatorBound(t *testing.T) {
	dir := t.TempDir()
	acc := NewAccumulator[schema.DailyRecord](dir, "daily", "run1", 3, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxSeen := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			code := fmt.Sprintf("sz.%06d", i)
			assert.NoError(t, acc.Add(code, []schema.DailyRecord{rec(code, "2024-01-03", 1), rec(code, "2024-01-02", 1)}))
			mu.Lock()
			if n := acc.Entities(); n > maxSeen {
				maxSeen = n
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	assert.Less(t, maxSeen, 3, "a full buffer is flushed inside Add")
	assert.Equal(t, 1, acc.Entities())
	require.NoError(t, acc.Close())
	assert.Equal(t, 0, acc.Entities())

	chunks := acc.Chunks()
	require.Len(t, chunks, 4)
	assert.Equal(t, int64(20), acc.Rows())
	for _, c := range chunks {
		assert.Regexp(t, `daily-run1-\d{5}\.parquet$`, filepath.Base(c))
		rows, err := ReadFile[schema.DailyRecord](c)
		require.NoError(t, err)
		for i := 1; i < len(rows); i++ {
			assert.True(t, less[schema.DailyRecord](&rows[i-1], &rows[i]), "chunk %s sorted", c)
		}
	}

	assert.Error(t, acc.Add("late", []schema.DailyRecord{rec("late", "2024-01-02", 1)}))
}

func TestChunkCarriesSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.parquet")
	require.NoError(t, WriteFile(path, []schema.DailyRecord{rec("a", "2024-01-02", 1)}))

	f, pf, err := openParquet(path)
	require.NoError(t, err)
	defer f.Close()
	v, ok := pf.Lookup(schema.VersionKey)
	require.True(t, ok)
	assert.Equal(t, schema.Version, v)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMergeOrdersAcrossChunks(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.parquet")
	b := filepath.Join(dir, "b.parquet")
	require.NoError(t, WriteFile(a, []schema.DailyRecord{
		rec("A", "2024-01-02", 1), rec("C", "2024-01-02", 1), rec("C", "2024-01-03", 1),
	}))
	require.NoError(t, WriteFile(b, []schema.DailyRecord{
		rec("A", "2024-01-02", 9), rec("B", "2023-05-05", 1), rec("D", "2020-01-01", 1),
	}))

	var got []schema.DailyRecord
	dups, err := merge[schema.DailyRecord]([]string{b, a}, func(r *schema.DailyRecord) error {
		got = append(got, *r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dups)
	assert.Equal(t, []string{"A@2024-01-02", "B@2023-05-05", "C@2024-01-02", "C@2024-01-03", "D@2020-01-01"}, keys(got))
	assert.Equal(t, 1.0, *got[0].Close, "earlier chunk wins a repeated key")
}

func TestDailyArchiveWriteOnceHotRewrite(t *testing.T) {
	work, out, cache := t.TempDir(), t.TempDir(), t.TempDir()
	layout := Layout{OutputDir: out, CacheDir: cache, Year: 2024}
	comp := NewCompactor(layout, nil)

	first := filepath.Join(work, "daily-r1-00000.parquet")
	require.NoError(t, WriteFile(first, []schema.DailyRecord{
		rec("A", "2023-12-29", 1), rec("A", "2024-01-02", 2), rec("B", "2023-06-01", 3), rec("B", "2025-01-02", 4),
	}))
	sum, err := comp.Daily([]string{first})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Files[layout.DailyPath(2023)])
	assert.Equal(t, int64(2), sum.Files[layout.DailyPath(2024)], "later dates land in the hot file")
	assert.ElementsMatch(t, []string{layout.CachePath(2023), layout.CachePath(2024)}, sum.Cached)

	second := filepath.Join(work, "daily-r2-00000.parquet")
	require.NoError(t, WriteFile(second, []schema.DailyRecord{
		rec("A", "2023-12-29", 100), rec("A", "2024-01-02", 200), rec("A", "2024-01-03", 300),
	}))
	sum, err = comp.Daily([]string{second})
	require.NoError(t, err)
	assert.Equal(t, []string{layout.DailyPath(2023)}, sum.Kept)
	assert.Equal(t, int64(1), sum.Discarded)
	assert.Equal(t, []string{layout.CachePath(2024)}, sum.Cached)

	archive, err := ReadFile[schema.DailyRecord](layout.DailyPath(2023))
	require.NoError(t, err)
	assert.Equal(t, []string{"A@2023-12-29", "B@2023-06-01"}, keys(archive))
	assert.Equal(t, 1.0, *archive[0].Close, "archive is never rewritten")

	hot, err := ReadFile[schema.DailyRecord](layout.DailyPath(2024))
	require.NoError(t, err)
	assert.Equal(t, []string{"A@2024-01-02", "A@2024-01-03"}, keys(hot))
	assert.Equal(t, 200.0, *hot[0].Close)

	cached, err := ReadFile[schema.DailyRecord](layout.CachePath(2024))
	require.NoError(t, err)
	assert.Equal(t, keys(hot), keys(cached))
}

func TestTableAndErrors(t *testing.T) {
	work, out := t.TempDir(), t.TempDir()
	comp := NewCompactor(Layout{OutputDir: out, Year: 2024}, nil)

	_, err := comp.Table(nil, "stock_weekly.parquet")
	assert.ErrorIs(t, err, ErrNoChunks)
	_, err = comp.Daily(nil)
	assert.ErrorIs(t, err, ErrNoChunks)

	c := filepath.Join(work, "weekly-r-00000.parquet")
	require.NoError(t, WriteFile(c, []schema.DailyRecord{rec("B", "2024-01-05", 1), rec("A", "2024-01-05", 1)}))
	sum, err := comp.Table([]string{c}, "stock_weekly.parquet")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Files[filepath.Join(out, "stock_weekly.parquet")])

	bad := filepath.Join(work, "weekly-r-00001.parquet")
	require.NoError(t, os.WriteFile(bad, []byte("not parquet"), 0o644))
	_, err = comp.Table([]string{c, bad}, "stock_monthly.parquet")
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(out, "stock_monthly.parquet"))
	assert.True(t, os.IsNotExist(statErr), "failed compaction leaves no output")

	require.NoError(t, Cleanup([]string{c, bad, filepath.Join(work, "gone")}))
	_, statErr = os.Stat(c)
	assert.True(t, os.IsNotExist(statErr))
}

func TestReadFileKeepsNulls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.parquet")
	require.NoError(t, parquet.WriteFile(path, []schema.DailyRecord{{Code: "A", Date: "2024-01-02"}}))
	rows, err := ReadFile[schema.DailyRecord](path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Close)
}
