package shard

import (
	"encoding/json"
	"os"

	"cn-data/internal/schema"
)

// JSONLoader reads a JSON array of objects (the layout the crawler's packet
// saver writes). Numbers are kept as json.Number.
type JSONLoader struct{}

func (JSONLoader) Extension() string { return "json" }

func (JSONLoader) Load(path string) ([]schema.RawRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.UseNumber()

	var objs []map[string]any
	if err := dec.Decode(&objs); err != nil {
		return nil, err
	}
	out := make([]schema.RawRow, len(objs))
	for i, o := range objs {
		out[i] = schema.RawRow(o)
	}
	return out, nil
}
