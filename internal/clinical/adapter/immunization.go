package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Immunization is an administered, or explicitly not administered, vaccine.
type Immunization struct {
	base
	status       coding.Concept
	statusReason string
	vaccine      string
	codeText     string
	occurrence   *r4.DateTime
	occurredText string
}

// ParseImmunization decodes and adapts an Immunization record.
func ParseImmunization(data []byte) (*Immunization, error) {
	rec, err := decode[r4.Immunization](KindImmunization, data)
	if err != nil {
		return nil, err
	}
	return NewImmunization(rec)
}

// NewImmunization adapts an Immunization record.
func NewImmunization(rec *r4.Immunization) (*Immunization, error) {
	if rec == nil {
		return nil, nilRecord(KindImmunization)
	}
	if err := checkIdentity(KindImmunization, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	return &Immunization{
		base:         base{id: rec.ID},
		status:       coding.ImmunizationStatus.BindCode(rec.Status),
		statusReason: oneLine(coding.Readable(rec.StatusReason)),
		vaccine:      nameOf(rec.VaccineCode, "Unknown vaccine"),
		codeText:     coding.FormatCodes(rec.VaccineCode),
		occurrence:   rec.OccurrenceDateTime,
		occurredText: oneLine(rec.OccurrenceString),
	}, nil
}

func (i *Immunization) Kind() Kind { return KindImmunization }

// Status returns the bound immunization status.
func (i *Immunization) Status() coding.Concept { return i.status }

// Vaccine returns the readable vaccine name.
func (i *Immunization) Vaccine() string { return i.vaccine }

// Occurrence returns the administration date, or nil.
func (i *Immunization) Occurrence() *r4.DateTime { return i.occurrence }

// PromptText renders e.g. "Immunization: Influenza, seasonal, injectable (CVX 140); status completed; administered 2021-10-01".
func (i *Immunization) PromptText() string {
	administered := i.occurrence.Date()
	if administered == "" {
		administered = i.occurredText
	}
	return fragment(named("Immunization", i.vaccine, i.codeText),
		detail("status", i.status.Label()),
		detail("reason", i.statusReason),
		detail("administered", administered),
	)
}
