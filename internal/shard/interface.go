package shard

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cn-data/internal/schema"
)

// ErrUnsupportedFormat is returned for a shard extension with no loader.
var ErrUnsupportedFormat = errors.New("unsupported shard format")

// Loader reads one raw shard file into untyped rows. Column names and value
// types are whatever the producer wrote; conformance happens in schema.
type Loader interface {
	Load(path string) ([]schema.RawRow, error)
	Extension() string
}

// NewLoader returns the loader for a format (csv, parquet, json), or nil.
func NewLoader(format string) Loader {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVLoader{}
	case "parquet":
		return ParquetLoader{}
	case "json":
		return JSONLoader{}
	default:
		return nil
	}
}

// Extensions lists the shard extensions a loader exists for.
func Extensions() []string { return []string{"parquet", "csv", "json"} }

// Load picks the loader by file extension and reads path.
func Load(path string) ([]schema.RawRow, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	l := NewLoader(ext)
	if l == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	rows, err := l.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}
