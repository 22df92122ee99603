package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// DosageNotSpecified is rendered when a request carries no usable instruction.
const DosageNotSpecified = "dosage not specified"

// HumanizeDosage renders dosage instructions as a sig such as
// "500 mg by mouth twice daily". Structured dose and timing win; free text is
// the fallback. Several instructions are joined with " / ".
func HumanizeDosage(dosages []r4.Dosage) string {
	parts := make([]string, 0, len(dosages))
	for i := range dosages {
		if s := humanizeOne(&dosages[i]); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return DosageNotSpecified
	}
	return strings.Join(parts, " / ")
}

func humanizeOne(d *r4.Dosage) string {
	dose := describeDose(d.DoseAndRate)
	timing := describeTiming(d.Timing)
	route := describeRoute(d.Route)
	asNeeded := describeAsNeeded(d)

	if dose == "" && timing == "" {
		if text := oneLine(d.Text); text != "" {
			return text
		}
		if text := oneLine(d.PatientInstruction); text != "" {
			return text
		}
	}

	var words []string
	for _, w := range []string{dose, route, timing, asNeeded} {
		if w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

func describeDose(drs []r4.DoseAndRate) string {
	for _, dr := range drs {
		if q := dr.DoseQuantity; q != nil && q.Value != nil {
			if q.Unit == "" && q.Code == "" {
				if q.Value.Equal(decimal.NewFromInt(1)) {
					return "1 dose"
				}
				return q.Value.String() + " doses"
			}
			return q.String()
		}
		if s := dr.DoseRange.String(); s != "" {
			return s
		}
	}
	return ""
}

func describeRoute(cc *r4.CodeableConcept) string {
	c := coding.Route.BindCodeable(cc)
	if c.IsBound() {
		return c.Label()
	}
	if text := oneLine(c.Label()); text != "" {
		return "via " + strings.ToLower(text)
	}
	return ""
}

func describeAsNeeded(d *r4.Dosage) string {
	if reason := oneLine(coding.Readable(d.AsNeededCodeableConcept)); reason != "" {
		return "as needed for " + strings.ToLower(reason)
	}
	if d.AsNeededBoolean != nil && *d.AsNeededBoolean {
		return "as needed"
	}
	return ""
}

func describeTiming(t *r4.Timing) string {
	if t == nil {
		return ""
	}
	if t.Repeat != nil {
		if s := describeFrequency(t.Repeat); s != "" {
			return s
		}
	}
	if t.Code != nil {
		c := coding.TimingAbbreviation.BindCodeable(t.Code)
		if c.IsBound() {
			return c.Label()
		}
		return oneLine(coding.Readable(t.Code))
	}
	return ""
}

var periodUnits = map[string]string{
	"s":   "second",
	"min": "minute",
	"h":   "hour",
	"d":   "day",
	"wk":  "week",
	"mo":  "month",
	"a":   "year",
}

func describeFrequency(r *r4.TimingRepeat) string {
	unit, ok := periodUnits[r.PeriodUnit]
	if !ok || r.Period <= 0 {
		return ""
	}
	freq := int(r.Frequency)
	if freq <= 0 {
		freq = 1
	}
	p := r.Period

	switch {
	case (r.PeriodUnit == "d" && p == 1) || (r.PeriodUnit == "h" && p == 24):
		return times(freq) + " daily"
	case r.PeriodUnit == "wk" && p == 1:
		return times(freq) + " weekly"
	case r.PeriodUnit == "mo" && p == 1:
		return times(freq) + " monthly"
	case freq == 1 && p == 1:
		return "every " + unit
	case freq == 1:
		return "every " + formatNumber(p) + " " + unit + "s"
	case p == 1:
		return times(freq) + " per " + unit
	}
	return times(freq) + " every " + formatNumber(p) + " " + unit + "s"
}

func times(n int) string {
	switch n {
	case 1:
		return "once"
	case 2:
		return "twice"
	case 3:
		return "three times"
	case 4:
		return "four times"
	}
	return fmt.Sprintf("%d times", n)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
