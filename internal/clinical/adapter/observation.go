package adapter

import (
	"strconv"
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Observation is a measurement or assertion: vital signs, lab results, survey scores.
type Observation struct {
	base
	status         coding.Concept
	categories     []coding.Concept
	code           coding.Concept
	name           string
	codeText       string
	value          string
	interpretation string
	effective      *r4.DateTime
}

// ParseObservation decodes and adapts an Observation record.
func ParseObservation(data []byte) (*Observation, error) {
	rec, err := decode[r4.Observation](KindObservation, data)
	if err != nil {
		return nil, err
	}
	return NewObservation(rec)
}

// NewObservation adapts an Observation record.
func NewObservation(rec *r4.Observation) (*Observation, error) {
	if rec == nil {
		return nil, nilRecord(KindObservation)
	}
	if err := checkIdentity(KindObservation, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	o := &Observation{
		base:           base{id: rec.ID},
		status:         coding.ObservationStatus.BindCode(rec.Status),
		code:           coding.FromCodeable(rec.Code),
		name:           nameOf(rec.Code, "Unnamed observation"),
		codeText:       coding.FormatCodes(rec.Code),
		interpretation: oneLine(coding.ReadableAll(rec.Interpretation)),
		effective:      rec.Effective(),
		value:          observationValue(rec),
	}
	for i := range rec.Category {
		if c := coding.ObservationCategory.BindCodeable(&rec.Category[i]); !c.IsZero() {
			o.categories = append(o.categories, c)
		}
	}
	return o, nil
}

func observationValue(rec *r4.Observation) string {
	v := formatValue(rec.ValueQuantity, rec.ValueCodeableConcept, rec.ValueString, rec.ValueBoolean, rec.ValueInteger)
	if v == "" {
		v = rec.ValueRange.String()
	}
	if v == "" {
		v = rec.ValueDateTime.String()
	}
	if v != "" {
		return v
	}

	parts := make([]string, 0, len(rec.Component))
	for i := range rec.Component {
		comp := &rec.Component[i]
		cv := formatValue(comp.ValueQuantity, comp.ValueCodeableConcept, comp.ValueString, comp.ValueBoolean, comp.ValueInteger)
		if cv == "" {
			continue
		}
		parts = append(parts, nameOf(&comp.Code, "Component")+": "+cv)
	}
	return strings.Join(parts, ", ")
}

func formatValue(q *r4.Quantity, cc *r4.CodeableConcept, s *string, b *bool, n *r4.Integer) string {
	switch {
	case q != nil && q.Value != nil:
		return q.String()
	case cc != nil:
		return oneLine(coding.Readable(cc))
	case s != nil:
		return oneLine(*s)
	case b != nil:
		if *b {
			return "yes"
		}
		return "no"
	case n != nil:
		return strconv.Itoa(int(*n))
	}
	return ""
}

func (o *Observation) Kind() Kind { return KindObservation }

// Status returns the bound observation status.
func (o *Observation) Status() coding.Concept { return o.status }

// Categories returns the bound categories.
func (o *Observation) Categories() []coding.Concept { return o.categories }

// Code returns the observation code.
func (o *Observation) Code() coding.Concept { return o.code }

// Name returns the readable observation name.
func (o *Observation) Name() string { return o.name }

// Value returns the rendered value, or "" when none was recorded.
func (o *Observation) Value() string { return o.value }

// Effective returns the observation date, or nil.
func (o *Observation) Effective() *r4.DateTime { return o.effective }

func (o *Observation) InteractionDate() *r4.DateTime { return o.effective }

// PromptText renders e.g. "Observation: Body Weight (LOINC 29463-7): 80.5 kg; category vital signs; status final".
func (o *Observation) PromptText() string {
	value := o.value
	if value == "" {
		value = "no value recorded"
	}
	return fragment(named("Observation", o.name, o.codeText)+": "+value,
		detail("interpretation", o.interpretation),
		detail("category", labels(o.categories)),
		detail("status", o.status.Label()),
		detail("effective", o.effective.Date()),
	)
}
