package r4

import (
	"encoding/json"
	"testing"
)

func TestParseDateTimePrecision(t *testing.T) {
	tests := []struct {
		in   string
		prec Precision
		date string
	}{
		{"1970", PrecisionYear, "1970"},
		{"1970-04", PrecisionMonth, "1970-04"},
		{"1970-04-12", PrecisionDay, "1970-04-12"},
		{"2019-03-01T10:00:00-05:00", PrecisionTime, "2019-03-01"},
		{"2019-03-01T23:30:00.123Z", PrecisionTime, "2019-03-01"},
		{"2019-03-01T10:00Z", PrecisionTime, "2019-03-01"},
		{"2019-03-01T10:00-05:00", PrecisionTime, "2019-03-01"},
	}
	for _, tt := range tests {
		d, err := ParseDateTime(tt.in)
		if err != nil {
			t.Fatalf("ParseDateTime(%q) failed: %v", tt.in, err)
		}
		if d.Precision != tt.prec {
			t.Errorf("%q: expected precision %d, got %d", tt.in, tt.prec, d.Precision)
		}
		if got := d.Date(); got != tt.date {
			t.Errorf("%q: Date() = %q, want %q", tt.in, got, tt.date)
		}
	}

	if _, err := ParseDateTime("03/01/2019"); err == nil {
		t.Error("expected error for non-FHIR date")
	}
}

func TestDateTimeJSON(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`{"resourceType":"Condition","id":"c1","onsetDateTime":"2019-03"}`), &c); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if c.Onset().String() != "2019-03" {
		t.Errorf("expected month precision to survive, got %s", c.Onset().String())
	}

	out, err := json.Marshal(c.OnsetDateTime)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `"2019-03"` {
		t.Errorf("expected \"2019-03\", got %s", out)
	}
}

func TestDateTimeLenientDecode(t *testing.T) {
	var c Condition
	if err := json.Unmarshal([]byte(`{"resourceType":"Condition","id":"c1","onsetDateTime":"sometime in 2019","recordedDate":20190301}`), &c); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if !c.OnsetDateTime.IsZero() || c.Onset() != nil {
		t.Error("unparseable onset should decode as absent")
	}
	if got := c.OnsetDateTime.Unparsed(); got != "sometime in 2019" {
		t.Errorf("Unparsed() = %q", got)
	}
	if got := c.RecordedDate.Unparsed(); got != "20190301" {
		t.Errorf("non-string Unparsed() = %q", got)
	}
	out, _ := json.Marshal(c.OnsetDateTime)
	if string(out) != `"sometime in 2019"` {
		t.Errorf("raw text should round trip, got %s", out)
	}
}

func TestIntegerTolerance(t *testing.T) {
	tests := []struct {
		in   string
		want Integer
	}{
		{`2`, 2},
		{`2.0`, 2},
		{`2.7`, 2},
		{`"3"`, 3},
		{`"often"`, 0},
		{`null`, 0},
	}
	for _, tt := range tests {
		var r TimingRepeat
		if err := json.Unmarshal([]byte(`{"frequency":`+tt.in+`}`), &r); err != nil {
			t.Fatalf("%s: unmarshal failed: %v", tt.in, err)
		}
		if r.Frequency != tt.want {
			t.Errorf("%s: Frequency = %d, want %d", tt.in, r.Frequency, tt.want)
		}
	}
}

func TestDateTimeAfter(t *testing.T) {
	a := MustDateTime("2020-01-01")
	b := MustDateTime("2021-01-01")
	if !b.After(a) || a.After(b) {
		t.Error("After ordering wrong")
	}
	var missing *DateTime
	if missing.After(a) || !a.After(missing) {
		t.Error("absent dates must sort first")
	}
}

func TestQuantityString(t *testing.T) {
	var q Quantity
	if err := json.Unmarshal([]byte(`{"value": 1.0, "unit": "mg"}`), &q); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if q.String() != "1 mg" {
		t.Errorf("expected trailing zeros trimmed, got %q", q.String())
	}
}
