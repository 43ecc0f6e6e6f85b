package source

import "cn-data/internal/schema"

// Provider is the abstraction the pipeline uses to discover entities and
// their shard sets. Implementations own their file handles.
type Provider interface {
	GetName() string
	Codes() []string
	Sources(code string) Sources
	ReadCold(slice ColdSlice) ([]schema.DailyRecord, error)
	Close() error
}

// Sources is everything known about one entity for this run, in load order.
type Sources struct {
	Code      string
	Cold      []ColdSlice
	Increment []string
	Flow      []string
}

// Empty reports whether no shard references the entity.
func (s Sources) Empty() bool {
	return len(s.Cold) == 0 && len(s.Increment) == 0
}

// ColdSlice is a contiguous run of one code's rows inside a cold file.
type ColdSlice struct {
	File   string
	Offset int64
	Count  int64
}
