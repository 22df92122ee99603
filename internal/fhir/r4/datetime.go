package r4

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Precision is the granularity a FHIR date or dateTime was recorded at.
type Precision int

const (
	PrecisionYear Precision = iota + 1
	PrecisionMonth
	PrecisionDay
	PrecisionTime
)

var dateLayouts = []struct {
	layout    string
	precision Precision
}{
	{"2006", PrecisionYear},
	{"2006-01", PrecisionMonth},
	{"2006-01-02", PrecisionDay},
	{time.RFC3339Nano, PrecisionTime},
	{"2006-01-02T15:04:05", PrecisionTime},
	{"2006-01-02T15:04Z07:00", PrecisionTime},
	{"2006-01-02T15:04", PrecisionTime},
}

// DateTime is a FHIR date/dateTime that remembers the precision it was sent with,
// so partial dates such as "2019" or "2019-03" are never widened into invented days.
type DateTime struct {
	Time      time.Time
	Precision Precision
	// Raw holds a value that could not be parsed. The DateTime is then zero.
	Raw string
}

// ParseDateTime parses any of the FHIR date, dateTime or instant forms.
func ParseDateTime(s string) (DateTime, error) {
	for _, l := range dateLayouts {
		if len(l.layout) < 16 && len(s) != len(l.layout) {
			continue
		}
		t, err := time.Parse(l.layout, s)
		if err == nil {
			return DateTime{Time: t, Precision: l.precision}, nil
		}
	}
	return DateTime{}, fmt.Errorf("invalid FHIR date %q", s)
}

// MustDateTime is ParseDateTime for literals in tests and fixtures.
func MustDateTime(s string) *DateTime {
	d, err := ParseDateTime(s)
	if err != nil {
		panic(err)
	}
	return &d
}

// IsZero reports whether the value is absent.
func (d *DateTime) IsZero() bool {
	return d == nil || d.Precision == 0
}

// Unparsed returns the source text of a value that was not a FHIR date.
func (d *DateTime) Unparsed() string {
	if d == nil {
		return ""
	}
	return d.Raw
}

// Date renders the value at its own precision, never finer than a day.
func (d *DateTime) Date() string {
	if d.IsZero() {
		return ""
	}
	switch d.Precision {
	case PrecisionYear:
		return d.Time.Format("2006")
	case PrecisionMonth:
		return d.Time.Format("2006-01")
	default:
		return d.Time.Format("2006-01-02")
	}
}

// String renders the value at its own precision.
func (d *DateTime) String() string {
	if d.IsZero() {
		return ""
	}
	if d.Precision == PrecisionTime {
		return d.Time.Format(time.RFC3339)
	}
	return d.Date()
}

// After reports whether d is strictly later than o. Absent values sort first.
func (d *DateTime) After(o *DateTime) bool {
	if d.IsZero() {
		return false
	}
	if o.IsZero() {
		return true
	}
	return d.Time.After(o.Time)
}

// UnmarshalJSON implements json.Unmarshaler. Dates are optional everywhere
// they appear, so a value that is not a FHIR date decodes to a zero DateTime
// keeping the text in Raw instead of failing the record.
func (d *DateTime) UnmarshalJSON(b []byte) error {
	*d = DateTime{}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		d.Raw = string(b)
		return nil
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		d.Raw = s
		return nil
	}
	*d = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d DateTime) MarshalJSON() ([]byte, error) {
	if d.IsZero() && d.Raw != "" {
		return json.Marshal(d.Raw)
	}
	return json.Marshal(d.String())
}
