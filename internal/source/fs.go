package source

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cn-data/internal/schema"
	"cn-data/internal/shard"
)

// Layout names the directories an FSCatalog scans. Empty entries are skipped.
type Layout struct {
	ColdDir  string // compacted history from the previous run (*.parquet)
	KlineDir string // increment price shards
	FlowDir  string // fund-flow shards
}

// FSCatalog is a Provider backed by local directories.
//
// Shards are matched to codes by file name: {code}.{ext} anywhere below the
// directory, or the crawler packet layout {code}/{code}_{range}.{ext}.
type FSCatalog struct {
	layout     Layout
	cold       *ColdIndex
	increments map[string][]string
	flows      map[string][]string
	codes      []string
}

// NewFSCatalog scans the layout once. Missing directories are treated as empty.
func NewFSCatalog(layout Layout) (*FSCatalog, error) {
	c := &FSCatalog{layout: layout}

	coldFiles, err := listFiles(layout.ColdDir, false, "parquet")
	if err != nil {
		return nil, err
	}
	c.cold = BuildColdIndex(coldFiles)
	for p, err := range c.cold.Failed {
		slog.Warn("cold file skipped", "path", p, "error", err)
	}

	if c.increments, err = scanShards(layout.KlineDir); err != nil {
		return nil, err
	}
	if c.flows, err = scanShards(layout.FlowDir); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, code := range c.cold.Codes() {
		seen[code] = true
	}
	for code := range c.increments {
		seen[code] = true
	}
	for code := range seen {
		if code != "" {
			c.codes = append(c.codes, code)
		}
	}
	sort.Strings(c.codes)
	return c, nil
}

// GetName returns provider name
func (c *FSCatalog) GetName() string { return "fs" }

// Codes returns every entity seen in cold or increment shards.
func (c *FSCatalog) Codes() []string { return c.codes }

// Sources returns the entity's shard set in load order.
func (c *FSCatalog) Sources(code string) Sources {
	return Sources{
		Code:      code,
		Cold:      c.cold.Slices(code),
		Increment: c.increments[code],
		Flow:      c.flows[code],
	}
}

// ReadCold reads one cold slice.
func (c *FSCatalog) ReadCold(s ColdSlice) ([]schema.DailyRecord, error) { return c.cold.Read(s) }

// ColdFiles returns the cold files that were indexed.
func (c *FSCatalog) ColdFiles() []string { return c.cold.Files() }

// Stats returns shard counts for logging.
func (c *FSCatalog) Stats() (cold, increments, flows int) {
	for _, v := range c.increments {
		increments += len(v)
	}
	for _, v := range c.flows {
		flows += len(v)
	}
	return len(c.cold.Files()), increments, flows
}

// Close releases cold file handles.
func (c *FSCatalog) Close() error { return c.cold.Close() }

func scanShards(dir string) (map[string][]string, error) {
	out := make(map[string][]string)
	files, err := listFiles(dir, true, shard.Extensions()...)
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		code := CodeFromPath(p)
		if code == "" {
			continue
		}
		out[code] = append(out[code], p)
	}
	return out, nil
}

// CodeFromPath derives the entity code a shard belongs to.
func CodeFromPath(p string) string {
	base := filepath.Base(p)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parent := filepath.Base(filepath.Dir(p))
	if parent != "" && strings.HasPrefix(strings.ToLower(stem), strings.ToLower(parent)+"_") {
		return parent
	}
	return stem
}

// listFiles returns files under dir with one of exts, sorted by path.
func listFiles(dir string, recursive bool, exts ...string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	want := make(map[string]bool, len(exts))
	for _, e := range exts {
		want["."+e] = true
	}
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !want[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		out = append(out, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
