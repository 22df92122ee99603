package adapter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// fragment joins a head with the non-empty details: "head; a; b".
func fragment(head string, details ...string) string {
	var b strings.Builder
	b.WriteString(head)
	for _, d := range details {
		if d == "" {
			continue
		}
		b.WriteString("; ")
		b.WriteString(d)
	}
	return b.String()
}

// named renders "label: name (codes)".
func named(label, name, codes string) string {
	if codes == "" {
		return label + ": " + name
	}
	return label + ": " + name + " (" + codes + ")"
}

// detail renders "key value", or "" when value is empty.
func detail(key, value string) string {
	if value == "" {
		return ""
	}
	return key + " " + value
}

// oneLine collapses runs of whitespace, including newlines, into one space.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// capitalize upper-cases the first letter.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// nameOf picks the readable text of cc, falling back to its first code.
func nameOf(cc *r4.CodeableConcept, fallback string) string {
	if name := oneLine(coding.Readable(cc)); name != "" {
		return name
	}
	if c := coding.FromCodeable(cc); c.Code != "" {
		return c.Code
	}
	return fallback
}

// labels renders the labels of several concepts joined with ", ".
func labels(cs []coding.Concept) string {
	parts := make([]string, 0, len(cs))
	for _, c := range cs {
		if l := c.Label(); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, ", ")
}

// period renders "start to end", "start to ongoing" or "until end".
func period(p *r4.Period) string {
	if p == nil {
		return ""
	}
	start, end := p.Start.Date(), p.End.Date()
	switch {
	case start != "" && end != "":
		if start == end {
			return start
		}
		return start + " to " + end
	case start != "":
		return start + " to ongoing"
	case end != "":
		return "until " + end
	}
	return ""
}
