package expiry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned when a value cannot be turned into an instant.
var ErrInvalidDate = errors.New("invalid date")

// --------------------------------------------------------------------------
// Source encodings
// --------------------------------------------------------------------------

// Converter is any value that knows how to turn itself into an instant,
// e.g. a document-store timestamp type.
type Converter interface {
	ToDate() (time.Time, error)
}

// Timestamp is the {seconds, nanoseconds} shape stored by document databases.
type Timestamp struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int64 `json:"nanoseconds,omitempty"`
}

// ToDate implements Converter.
func (ts Timestamp) ToDate() (time.Time, error) {
	return time.Unix(ts.Seconds, ts.Nanoseconds), nil
}

// ISO is an ISO-8601 date or date-time string.
type ISO string

// Raw is the fallback variant for any other value. It is parsed last.
type Raw struct {
	Value any
}

// Layouts accepted by the generic parser. Layouts without a zone are
// interpreted in time.Local.
var isoLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02 15:04:05", false},
	{time.DateOnly, false},
}

// Normalize converts a supported date representation into an instant.
//
// Checks run in a fixed order and the first match wins:
//  1. native instant (time.Time, *time.Time)
//  2. Converter
//  3. a numeric "seconds" field (Timestamp or decoded JSON object)
//  4. generic parse of the raw value (ISO-8601 strings, epoch milliseconds)
//
// Any failure wraps ErrInvalidDate.
func Normalize(v any) (time.Time, error) {
	t, err := normalize(v)
	if err != nil {
		return time.Time{}, err
	}
	if t.IsZero() || t.Year() < 1 || t.Year() > 9999 {
		return time.Time{}, fmt.Errorf("%w: %v is out of range", ErrInvalidDate, v)
	}
	return t, nil
}

func normalize(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, fmt.Errorf("%w: nil", ErrInvalidDate)
		}
		return *x, nil
	}

	if c, ok := v.(Converter); ok {
		t, err := c.ToDate()
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, err)
		}
		return t, nil
	}

	if secs, ok := secondsField(v); ok {
		return time.Unix(secs, 0), nil
	}

	return parseRaw(v)
}

// secondsField extracts an integral "seconds" field from decoded JSON.
func secondsField(v any) (int64, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, false
	}
	switch s := m["seconds"].(type) {
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return 0, false
		}
		return int64(s), true
	case int64:
		return s, true
	case int:
		return int64(s), true
	case json.Number:
		n, err := s.Int64()
		return n, err == nil
	}
	return 0, false
}

func parseRaw(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("%w: nil", ErrInvalidDate)
	case Raw:
		if _, nested := x.Value.(Raw); nested {
			return time.Time{}, fmt.Errorf("%w: nested raw value", ErrInvalidDate)
		}
		return normalize(x.Value)
	case ISO:
		return parseString(string(x))
	case string:
		return parseString(x)
	case json.Number:
		return parseString(x.String())
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidDate, x)
		}
		return time.UnixMilli(int64(x)), nil
	case int64:
		return time.UnixMilli(x), nil
	case int:
		return time.UnixMilli(int64(x)), nil
	}
	return time.Time{}, fmt.Errorf("%w: unsupported value %T", ErrInvalidDate, v)
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty string", ErrInvalidDate)
	}
	for _, l := range isoLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, time.Local)
		}
		if err == nil {
			return t, nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// --------------------------------------------------------------------------
// Day
// --------------------------------------------------------------------------

// Day is a calendar date with no time of day and no zone.
type Day struct {
	t time.Time // midnight UTC
}

// DayOf returns the calendar date of t in t's own location.
func DayOf(t time.Time) Day {
	return Day{t: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// NewDay builds a Day from its components.
func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses an ISO "YYYY-MM-DD" date.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Day{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Day{t: t}, nil
}

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d.t.IsZero() }

// Equal reports whether both days are the same calendar date.
func (d Day) Equal(o Day) bool { return d.t.Equal(o.t) }

// Sub returns the number of whole days from o to d.
func (d Day) Sub(o Day) int {
	return int(d.t.Sub(o.t).Hours() / 24)
}

// AddDays returns d shifted by n calendar days.
func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

// Midnight returns the start of the day in loc.
func (d Day) Midnight(loc *time.Location) time.Time {
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), 0, 0, 0, 0, loc)
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(time.DateOnly)
}

// MarshalText implements encoding.TextMarshaler.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
