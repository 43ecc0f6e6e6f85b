package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnparseable marks a value that cannot be coerced to its column type.
	ErrUnparseable = errors.New("unparseable value")
	// ErrNoDate marks a row whose date key is absent or unparseable.
	ErrNoDate = errors.New("row has no usable date")
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// textual markers producers use for "no value"
var nullTokens = map[string]struct{}{
	"": {}, "-": {}, "--": {}, "nan": {}, "null": {}, "none": {}, "n/a": {},
}

// Float coerces v to float64. Nil and null tokens yield NaN without error;
// anything else that does not parse yields NaN and ErrUnparseable.
func Float(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return finite(x), nil
	case float32:
		return finite(float64(x)), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return math.NaN(), fmt.Errorf("%w: %q", ErrUnparseable, x.String())
		}
		return finite(f), nil
	case []byte:
		return Float(string(x))
	case string:
		s := strings.TrimSpace(x)
		if _, ok := nullTokens[strings.ToLower(s)]; ok {
			return math.NaN(), nil
		}
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
		if err != nil {
			return math.NaN(), fmt.Errorf("%w: %q", ErrUnparseable, x)
		}
		return finite(f), nil
	default:
		return math.NaN(), fmt.Errorf("%w: %T", ErrUnparseable, v)
	}
}

func finite(f float64) float64 {
	if math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

// String coerces v to a trimmed string. Nil becomes "".
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// Date normalizes any supported date representation to UTC midnight.
//
// Strings are tried against dateLayouts. Integers are read as yyyymmdd when
// they fall in that range, as epoch days when small, and otherwise as epoch
// seconds, millis, micros or nanos depending on magnitude.
func Date(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, ErrNoDate
	case time.Time:
		if x.IsZero() {
			return time.Time{}, ErrNoDate
		}
		return day(x.UTC()), nil
	case string:
		return parseDateString(x)
	case []byte:
		return parseDateString(string(x))
	case int32:
		return dateFromInt(int64(x))
	case int64:
		return dateFromInt(x)
	case int:
		return dateFromInt(int64(x))
	case float64:
		if x != math.Trunc(x) || math.IsNaN(x) {
			return time.Time{}, fmt.Errorf("%w: %v", ErrNoDate, x)
		}
		return dateFromInt(int64(x))
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return parseDateString(x.String())
		}
		return dateFromInt(n)
	default:
		return time.Time{}, fmt.Errorf("%w: %T", ErrNoDate, v)
	}
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return day(t.UTC()), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return dateFromInt(n)
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrNoDate, s)
}

func dateFromInt(n int64) (time.Time, error) {
	switch {
	case n >= 19000101 && n <= 29991231:
		y, m, d := int(n/10000), time.Month(n/100%100), int(n%100)
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if t.Month() != m || t.Day() != d {
			return time.Time{}, fmt.Errorf("%w: %d", ErrNoDate, n)
		}
		return t, nil
	case n < 0:
		return time.Time{}, fmt.Errorf("%w: %d", ErrNoDate, n)
	case n < 100_000:
		return time.Unix(0, 0).UTC().AddDate(0, 0, int(n)), nil
	case n < 100_000_000_000:
		return day(time.Unix(n, 0).UTC()), nil
	case n < 100_000_000_000_000:
		return day(time.UnixMilli(n).UTC()), nil
	case n < 100_000_000_000_000_000:
		return day(time.UnixMicro(n).UTC()), nil
	default:
		return day(time.Unix(0, n).UTC()), nil
	}
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
