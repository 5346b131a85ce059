package cloudspending

import (
	"fmt"
	"strings"
	"time"

	cerrors "cost-dashboard/internal/errors"
)

// DateLayout is the calendar date format used on the wire and in the store.
const DateLayout = "2006-01-02"

// ParseDate coerces a scanned date column into a UTC calendar date.
// nil yields the zero time.
func ParseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return TruncateDate(d), nil
	case []byte:
		return parseDateString(string(d))
	case string:
		return parseDateString(d)
	default:
		return time.Time{}, cerrors.DataIntegrity(fmt.Sprintf("unsupported date value of type %T", v), nil)
	}
}

func parseDateString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, cerrors.DataIntegrity(fmt.Sprintf("malformed date %q", s), err)
	}
	return TruncateDate(t), nil
}

// TruncateDate drops the time of day, keeping the calendar date as seen in t's location.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
