package shard

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"cn-data/internal/schema"
)

// CSVLoader reads a headed CSV shard. Every value stays a string and is
// coerced later.
type CSVLoader struct{}

func (CSVLoader) Extension() string { return "csv" }

func (CSVLoader) Load(path string) ([]schema.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	var out []schema.RawRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		raw := make(schema.RawRow, len(header))
		for i, name := range header {
			if i < len(rec) {
				raw[name] = rec[i]
			}
		}
		out = append(out, raw)
	}
	return out, nil
}

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
