package reconcile

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Fantasim/paysync/internal/models"
)

// asString accepts only string values, trimmed and non-empty.
func asString(raw any) (string, bool) {
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// asDecimal accepts JSON numbers and numeric strings. Strings are parsed with
// a decimal point only ("12.50"); locale forms such as "12,50" are rejected.
func asDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return asDecimal(float64(v))
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case json.Number:
		return parseDecimal(string(v))
	case string:
		return parseDecimal(v)
	default:
		return decimal.Decimal{}, false
	}
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func asNumber(raw any) (float64, bool) {
	d, ok := asDecimal(raw)
	if !ok {
		return 0, false
	}
	return d.InexactFloat64(), true
}

// asInteger accepts whole numeric values only ("2", 2, 2.0).
func asInteger(raw any) (int64, bool) {
	d, ok := asDecimal(raw)
	if !ok || !d.IsInteger() {
		return 0, false
	}
	if d.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || d.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, false
	}
	return d.IntPart(), true
}

// asObject returns raw as a JSON object when it is one.
func asObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case map[string]any:
		return v, true
	case models.Snapshot:
		return v, true
	default:
		return nil, false
	}
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
const epochMillisThreshold = 1e12

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseTimestamp reads a Core timestamp: RFC3339, a zone-less ISO form
// (taken as UTC), or unix epoch seconds/milliseconds as a number or a numeric
// string. Unparsable or non-positive values report false.
func ParseTimestamp(raw any) (time.Time, bool) {
	if s, ok := asString(raw); ok {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}

	d, ok := asDecimal(raw)
	if !ok || !d.IsPositive() {
		return time.Time{}, false
	}
	if d.GreaterThanOrEqual(decimal.NewFromFloat(epochMillisThreshold)) {
		return time.UnixMilli(d.IntPart()).UTC(), true
	}
	return time.Unix(d.IntPart(), 0).UTC(), true
}
