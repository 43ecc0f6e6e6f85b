package shard

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"cn-data/internal/schema"
)

// ParquetLoader reads any flat parquet file column-by-name, without
// assuming the producer's schema.
type ParquetLoader struct{}

func (ParquetLoader) Extension() string { return "parquet" }

func (ParquetLoader) Load(path string) ([]schema.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, err
	}

	leaves := pf.Schema().Columns()
	names := make([]string, len(leaves))
	for i, path := range leaves {
		names[i] = strings.Join(path, ".")
	}

	out := make([]schema.RawRow, 0, pf.NumRows())
	buf := make([]parquet.Row, 512)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				raw := make(schema.RawRow, len(names))
				for _, v := range row {
					if c := v.Column(); c >= 0 && c < len(names) {
						raw[names[c]] = goValue(v)
					}
				}
				out = append(out, raw)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, err
			}
		}
		if err := rows.Close(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// julian day of 1970-01-01, used by legacy INT96 timestamps
const unixJulianDay = 2440588

func goValue(v parquet.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return v.Int32()
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return v.Float()
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	case parquet.Int96:
		i96 := v.Int96()
		nanos := int64(uint64(i96[1])<<32 | uint64(i96[0]))
		days := int64(i96[2]) - unixJulianDay
		return time.Unix(days*86400, nanos).UTC()
	default:
		return nil
	}
}
