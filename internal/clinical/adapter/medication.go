package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Medication is a medication definition, usually the target of a
// MedicationRequest.medicationReference.
type Medication struct {
	base
	status   coding.Concept
	code     coding.Concept
	name     string
	codes    []coding.CodeRef
	codeText string
	form     string
}

// ParseMedication decodes and adapts a Medication record.
func ParseMedication(data []byte) (*Medication, error) {
	rec, err := decode[r4.Medication](KindMedication, data)
	if err != nil {
		return nil, err
	}
	return NewMedication(rec)
}

// NewMedication adapts a Medication record.
func NewMedication(rec *r4.Medication) (*Medication, error) {
	if rec == nil {
		return nil, nilRecord(KindMedication)
	}
	if err := checkIdentity(KindMedication, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	return &Medication{
		base:     base{id: rec.ID},
		status:   coding.MedicationStatus.BindCode(rec.Status),
		code:     coding.FromCodeable(rec.Code),
		name:     nameOf(rec.Code, "Unknown medication"),
		codes:    coding.Codes(rec.Code),
		codeText: coding.FormatCodes(rec.Code),
		form:     oneLine(coding.Readable(rec.Form)),
	}, nil
}

func (m *Medication) Kind() Kind { return KindMedication }

// Status returns the bound medication status.
func (m *Medication) Status() coding.Concept { return m.status }

// Code returns the medication code.
func (m *Medication) Code() coding.Concept { return m.code }

// Name returns the readable medication name.
func (m *Medication) Name() string { return m.name }

// Codes returns the medication codes.
func (m *Medication) Codes() []coding.CodeRef { return m.codes }

// Form returns the dose form, or "".
func (m *Medication) Form() string { return m.form }

// PromptText renders e.g. "Medication record: Metformin 500 MG Oral Tablet (RxNorm 860975); form tablet".
func (m *Medication) PromptText() string {
	return fragment(named("Medication record", m.name, m.codeText),
		detail("form", m.form),
		detail("status", m.status.Label()),
	)
}
