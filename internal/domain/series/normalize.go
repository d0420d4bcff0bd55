// Package series turns raw history records into a canonical Series.
package series

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/okian/revforecast/internal/domain/model"
)

// Record field names.
const (
	DateField  = "date"
	ValueField = "revenue"
)

// dateLayouts are tried in order; the first match wins.
var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
}

// Normalize parses every record and returns the observations stable-sorted by
// date. Records sharing a date keep their input order. Any record with an
// unusable date or value fails the whole batch with ErrMalformedInput.
func Normalize(records []model.Record) (model.Series, error) {
	out := make(model.Series, 0, len(records))
	for i, rec := range records {
		date, err := ParseDate(rec[DateField])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedInput, i, err)
		}
		value, err := ParseValue(rec[ValueField])
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrMalformedInput, i, err)
		}
		out = append(out, model.Observation{Date: date, Value: value})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

// ParseDate converts a raw date field to a calendar date at UTC midnight.
func ParseDate(raw any) (time.Time, error) {
	s, ok := raw.(string)
	if !ok {
		if raw == nil {
			return time.Time{}, fmt.Errorf("missing %q field", DateField)
		}
		return time.Time{}, fmt.Errorf("date %v: expected a string, got %T", raw, raw)
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("parse date %q: not a valid calendar date", s)
}

// ParseValue coerces a raw revenue field to float64. A missing or null value
// is NaN, an unobserved day.
func ParseValue(raw any) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseDecimal(v.String())
	case string:
		return parseDecimal(v)
	default:
		return 0, fmt.Errorf("value %v: expected a number, got %T", raw, raw)
	}
}

func parseDecimal(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %v", s, err)
	}
	f, _ := d.Float64()
	if math.IsInf(f, 0) {
		return 0, fmt.Errorf("parse value %q: out of range", s)
	}
	return f, nil
}
