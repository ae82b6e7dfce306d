package job

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// epochSecondDigits is the widest integer still read as epoch seconds.
const epochSecondDigits = 10

// Epoch values outside the timestamptz range are rejected.
var (
	minEpochMillis = time.Date(-4712, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxEpochMillis = time.Date(294276, time.December, 31, 23, 59, 59, 0, time.UTC).UnixMilli()
)

// isoLayout matches the millisecond-precision UTC form used on the wire.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006",
}

// ParseDate converts a posted-date value to a UTC instant. Integers with more
// than ten digits are epoch milliseconds, shorter ones epoch seconds. Values
// that cannot be read, or fall outside the storable range, log a warning and
// yield nil.
func (n *Normalizer) ParseDate(v any) *time.Time {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		if isInteger(s) {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				if t := fromEpoch(float64(i), len(strings.TrimPrefix(s, "-"))); t != nil {
					return t
				}
			}
			break
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				t = t.UTC()
				return &t
			}
		}
	default:
		if f, ok := toFloat(val); ok {
			if t := fromEpoch(f, integerDigits(f)); t != nil {
				return t
			}
		}
	}
	n.logger.Warn("unparseable date", zap.Any("value", v))
	return nil
}

// FormatDate renders t as an ISO-8601 UTC string, or nil.
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(isoLayout)
	return &s
}

// fromEpoch returns nil when f does not land inside the storable range.
func fromEpoch(f float64, digits int) *time.Time {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	ms := math.Trunc(f)
	if digits <= epochSecondDigits {
		ms = math.Round(f * 1000)
	}
	if ms < float64(minEpochMillis) || ms > float64(maxEpochMillis) {
		return nil
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t
}

func integerDigits(f float64) int {
	return len(strconv.FormatFloat(math.Trunc(math.Abs(f)), 'f', 0, 64))
}

// isInteger reports whether s is an optionally negative run of digits.
func isInteger(s string) bool {
	s = strings.TrimPrefix(s, "-")
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
