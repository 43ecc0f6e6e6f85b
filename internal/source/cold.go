package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/parquet-go/parquet-go"

	"cn-data/internal/schema"
)

// codeOnly projects a cold file onto its code column.
type codeOnly struct {
	Code string `parquet:"code"`
}

type coldFile struct {
	path string
	f    *os.File
	pf   *parquet.File
}

// ColdIndex maps each code to the row slices it occupies in the cold files.
// Cold files are compaction outputs, so each code is normally one slice per file.
type ColdIndex struct {
	mu     sync.Mutex
	files  map[string]*coldFile
	order  []string
	slices map[string][]ColdSlice
	Failed map[string]error
}

// BuildColdIndex opens every file and scans only the code column. A file that
// cannot be opened or scanned is recorded in Failed and left out.
func BuildColdIndex(paths []string) *ColdIndex {
	idx := &ColdIndex{
		files:  make(map[string]*coldFile),
		slices: make(map[string][]ColdSlice),
		Failed: make(map[string]error),
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		cf, runs, err := scanColdFile(p)
		if err != nil {
			idx.Failed[p] = err
			continue
		}
		idx.files[p] = cf
		idx.order = append(idx.order, p)
		for _, r := range runs {
			idx.slices[r.code] = append(idx.slices[r.code], r.ColdSlice)
		}
	}
	return idx
}

type codeRun struct {
	code string
	ColdSlice
}

func scanColdFile(path string) (*coldFile, []codeRun, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("open cold %s: %w", path, err)
	}

	r := parquet.NewGenericReader[codeOnly](pf)
	defer r.Close()
	var runs []codeRun
	var row int64
	buf := make([]codeOnly, 4096)
	for {
		n, err := r.Read(buf)
		for _, c := range buf[:n] {
			if k := len(runs) - 1; k >= 0 && runs[k].code == c.Code {
				runs[k].Count++
			} else {
				runs = append(runs, codeRun{code: c.Code, ColdSlice: ColdSlice{File: path, Offset: row, Count: 1}})
			}
			row++
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("scan cold %s: %w", path, err)
		}
	}
	return &coldFile{path: path, f: f, pf: pf}, runs, nil
}

// Codes returns every code present in the index.
func (idx *ColdIndex) Codes() []string {
	out := make([]string, 0, len(idx.slices))
	for c := range idx.slices {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Slices returns the code's slices in file order.
func (idx *ColdIndex) Slices(code string) []ColdSlice {
	return idx.slices[code]
}

// Files returns the indexed file paths in load order.
func (idx *ColdIndex) Files() []string { return idx.order }

// Read returns the records of one slice.
func (idx *ColdIndex) Read(s ColdSlice) ([]schema.DailyRecord, error) {
	idx.mu.Lock()
	cf, ok := idx.files[s.File]
	idx.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("cold file %s not indexed", s.File)
	}

	r := parquet.NewGenericReader[schema.DailyRecord](cf.pf)
	defer r.Close()
	if err := r.SeekToRow(s.Offset); err != nil {
		return nil, fmt.Errorf("seek %s@%d: %w", s.File, s.Offset, err)
	}
	out := make([]schema.DailyRecord, s.Count)
	read := 0
	for read < len(out) {
		n, err := r.Read(out[read:])
		read += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s@%d: %w", s.File, s.Offset, err)
		}
	}
	return out[:read], nil
}

// Close releases every open cold file.
func (idx *ColdIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	var errs []error
	for _, cf := range idx.files {
		if err := cf.f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	idx.files = map[string]*coldFile{}
	return errors.Join(errs...)
}
