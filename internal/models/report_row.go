package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DatetimeField is the report column holding the reading timestamp, or a
// summary marker on statistics rows.
const DatetimeField = "datetime"

// ErrInvalidFormat is returned for timestamps that are not DD-MM-YYYY HH:MM
// or do not form a real calendar date.
var ErrInvalidFormat = errors.New("invalid datetime format")

// SummaryMarkers are substrings that identify report summary rows.
var SummaryMarkers = []string{
	"Summary", "Minimum", "MinDate", "MinTime",
	"Maximum", "MaxDate", "MaxTime", "Avg", "Num",
	"DataPrecent", "STD", "Count",
}

// MissingValueTokens are the literal cell values meaning "no reading".
// An absent or JSON null cell is treated the same way.
var MissingValueTokens = []string{"", "-", "----", "N/A", "NaN"}

var datetimePattern = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4}) (\d{2}):(\d{2})$`)

// RawRow is one decoded element of a report export.
type RawRow map[string]interface{}

// DatetimeText renders the row's datetime cell as text. Missing and null
// cells render as the empty string.
func (r RawRow) DatetimeText() string {
	v, ok := r[DatetimeField]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// IsValidMeasurementRow reports whether the row carries a real reading: its
// datetime has no summary marker and matches DD-MM-YYYY HH:MM exactly.
func IsValidMeasurementRow(row RawRow) bool {
	text := row.DatetimeText()
	for _, marker := range SummaryMarkers {
		if strings.Contains(text, marker) {
			return false
		}
	}
	return datetimePattern.MatchString(text)
}

// NormalizeDatetime parses DD-MM-YYYY HH:MM into a UTC timestamp. Hour 24
// means midnight of the following day with the minutes preserved.
func NormalizeDatetime(s string) (time.Time, error) {
	m := datetimePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, &ValidationError{
			Field:   DatetimeField,
			Value:   s,
			Message: "expected DD-MM-YYYY HH:MM",
			Err:     ErrInvalidFormat,
		}
	}

	// the pattern guarantees plain digits, Atoi cannot fail
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])

	rollover := hour == 24
	if rollover {
		hour = 0
	}

	if year < 1 || month < 1 || month > 12 || hour > 23 || minute > 59 {
		return time.Time{}, &ValidationError{
			Field:   DatetimeField,
			Value:   s,
			Message: "date or time component out of range",
			Err:     ErrInvalidFormat,
		}
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	// time.Date normalizes overflow (31-02 becomes 02-03); reject it instead
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, &ValidationError{
			Field:   DatetimeField,
			Value:   s,
			Message: "day out of range for month",
			Err:     ErrInvalidFormat,
		}
	}

	if rollover {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

// IsMissingValueToken reports whether s is one of MissingValueTokens.
func IsMissingValueToken(s string) bool {
	for _, tok := range MissingValueTokens {
		if s == tok {
			return true
		}
	}
	return false
}

// CoerceValue converts a report cell to a reading. Booleans read as 1 and 0.
// Missing-value tokens, unparseable text, other non-numeric JSON values, NaN
// and infinities all yield nil.
func CoerceValue(v interface{}) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if IsMissingValueToken(t) {
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case json.Number:
		parsed, err := strconv.ParseFloat(t.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case bool:
		if t {
			f = 1
		}
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
