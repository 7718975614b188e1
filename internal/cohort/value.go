package cohort

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Value is a sealed interface over the cell types a cohort table can hold.
// Only Null, String, Int, Float, Bool, and Date implement it.
//
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in the matching engine.
type Value interface {
	cohortValue() // Sealed - only types in this package implement it
}

// Null represents a missing value (SQL NULL, R NA, empty CSV cell).
type Null struct{}

func (Null) cohortValue() {}

// String represents a text value.
//
// Strings are NFC-normalized at construction via NewString. Exact-equality
// matching on free-text columns (names, site codes) must not depend on
// the Unicode representation the source system happened to emit.
type String string

func (String) cohortValue() {}

// Int represents an integer value.
type Int int64

func (Int) cohortValue() {}

// Float represents a floating-point value (ages, lab measurements).
type Float float64

func (Float) cohortValue() {}

// Bool represents a boolean value.
type Bool bool

func (Bool) cohortValue() {}

// Date represents a civil date with day precision.
// Time-of-day and timezone are intentionally absent: index and event
// dates in observational cohorts are calendar dates.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (Date) cohortValue() {}

// DateLayout is the accepted textual date format (ISO-8601 calendar date).
const DateLayout = "2006-01-02"

// NewString creates a String value in Unicode NFC form.
func NewString(s string) String {
	return String(norm.NFC.String(s))
}

// NewDate creates a Date value.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses an ISO-8601 calendar date ("2020-01-10").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String renders the date in ISO-8601 form.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time returns the date as a time.Time at UTC midnight.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d Date) After(other Date) bool {
	return other.Before(d)
}

// IsNull reports whether v is a missing value.
// A nil Value is treated as missing for robustness against sparse rows.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal reports exact equality between two values.
//
// Rules:
//   - Null equals only Null (and nil, which reads as Null).
//   - Int and Float cross-compare numerically, since source tables are
//     inconsistent about whether e.g. a year of birth arrives as INTEGER
//     or REAL.
//   - Everything else requires matching type and value.
//
// This is the equality used for match-variable constraints: no fuzzy or
// range matching.
func Equal(a, b Value) bool {
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}

	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return Float(av) == bv
		}
		return false
	case Float:
		switch bv := b.(type) {
		case Float:
			return av == bv
		case Int:
			return av == Float(bv)
		}
		return false
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Date:
		bv, ok := b.(Date)
		return ok && av == bv
	default:
		return false
	}
}

// Compare orders two values: -1 if a < b, 0 if equal, +1 if a > b.
// Defined for numeric pairs, string pairs, and date pairs only.
// Returns an error for null operands or mismatched types - ordering a
// null is a caller bug, not a silent false.
func Compare(a, b Value) (int, error) {
	if IsNull(a) || IsNull(b) {
		return 0, fmt.Errorf("cannot order null values")
	}

	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return compareInt64(int64(av), int64(bv)), nil
		case Float:
			return compareFloat64(float64(av), float64(bv)), nil
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return compareFloat64(float64(av), float64(bv)), nil
		case Float:
			return compareFloat64(float64(av), float64(bv)), nil
		}
	case String:
		if bv, ok := b.(String); ok {
			switch {
			case av < bv:
				return -1, nil
			case av > bv:
				return 1, nil
			default:
				return 0, nil
			}
		}
	case Date:
		if bv, ok := b.(Date); ok {
			switch {
			case av.Before(bv):
				return -1, nil
			case av.After(bv):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}

	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// AsDate coerces a value to a Date. String values are parsed with
// DateLayout; Date values pass through. Everything else fails.
func AsDate(v Value) (Date, error) {
	switch val := v.(type) {
	case Date:
		return val, nil
	case String:
		return ParseDate(string(val))
	default:
		return Date{}, fmt.Errorf("cannot interpret %T as date", v)
	}
}

// Render formats a value for display and export.
// Nulls render as the empty string, dates as ISO-8601.
func Render(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return ""
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Date:
		return val.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
