package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"cn-data/internal/schema"
)

// Record is a stored row type whose pointer exposes the (code, date) key.
type Record[T any] interface {
	*T
	RecordKey() (code, date string)
}

func less[T any, P Record[T]](a, b *T) bool {
	ac, ad := P(a).RecordKey()
	bc, bd := P(b).RecordKey()
	if ac != bc {
		return ac < bc
	}
	return ad < bd
}

func writerOptions() []parquet.WriterOption {
	return []parquet.WriterOption{
		parquet.Compression(&zstd.Codec{}),
		parquet.KeyValueMetadata(schema.VersionKey, schema.Version),
	}
}

// sink writes rows to path.tmp and renames it over path on Commit, so readers
// never observe a half-written file.
type sink[T any] struct {
	path string
	tmp  string
	f    *os.File
	w    *parquet.GenericWriter[T]
	rows int64
}

func createSink[T any](path string) (*sink[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &sink[T]{path: path, tmp: tmp, f: f, w: parquet.NewGenericWriter[T](f, writerOptions()...)}, nil
}

func (s *sink[T]) Write(rows []T) error {
	n, err := s.w.Write(rows)
	s.rows += int64(n)
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func (s *sink[T]) Commit() error {
	if err := s.w.Close(); err != nil {
		s.f.Close()
		os.Remove(s.tmp)
		return fmt.Errorf("close writer %s: %w", s.path, err)
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		os.Remove(s.tmp)
		return fmt.Errorf("sync %s: %w", s.path, err)
	}
	if err := s.f.Close(); err != nil {
		os.Remove(s.tmp)
		return err
	}
	return os.Rename(s.tmp, s.path)
}

func (s *sink[T]) Abort() {
	s.f.Close()
	os.Remove(s.tmp)
}

// WriteFile writes rows to path atomically with the chunk writer options.
func WriteFile[T any](path string, rows []T) error {
	s, err := createSink[T](path)
	if err != nil {
		return err
	}
	if err := s.Write(rows); err != nil {
		s.Abort()
		return err
	}
	return s.Commit()
}

// ReadFile loads every row of a parquet file.
func ReadFile[T any](path string) ([]T, error) {
	f, pf, err := openParquet(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := parquet.NewGenericReader[T](pf)
	defer r.Close()

	// read into fresh slots; the reader may reuse pointees of a recycled buffer
	out := make([]T, 0, r.NumRows()+1)
	for {
		if len(out) == cap(out) {
			out = append(out, make([]T, 1024)...)[:len(out)]
		}
		n, err := r.Read(out[len(out):cap(out)])
		out = out[:len(out)+n]
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
}

// Scan streams the rows of a parquet file to fn in batches. T may be a
// projection of the file schema; columns it does not name are not decoded.
func Scan[T any](path string, batch int, fn func(rows []T) error) error {
	f, pf, err := openParquet(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r := parquet.NewGenericReader[T](pf)
	defer r.Close()
	for {
		buf := make([]T, batch)
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := fn(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
	}
}

func openParquet(path string) (*os.File, *parquet.File, error) {
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
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, pf, nil
}

// copyFile copies src to dst through a temp file and rename.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
