package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// MedicationRequest is a prescription or medication order.
type MedicationRequest struct {
	base
	status     coding.Concept
	intent     coding.Concept
	name       string
	codeText   string
	refID      string
	refDisplay string
	dosage     string
	authoredOn *r4.DateTime
	reasons    string
}

// ParseMedicationRequest decodes and adapts a MedicationRequest record.
func ParseMedicationRequest(data []byte) (*MedicationRequest, error) {
	rec, err := decode[r4.MedicationRequest](KindMedicationRequest, data)
	if err != nil {
		return nil, err
	}
	return NewMedicationRequest(rec)
}

// NewMedicationRequest adapts a MedicationRequest record. A referenced
// Medication is not resolved here; see PromptTextWith.
func NewMedicationRequest(rec *r4.MedicationRequest) (*MedicationRequest, error) {
	if rec == nil {
		return nil, nilRecord(KindMedicationRequest)
	}
	if err := checkIdentity(KindMedicationRequest, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	m := &MedicationRequest{
		base:       base{id: rec.ID},
		status:     coding.MedicationRequestStatus.BindCode(rec.Status),
		intent:     coding.MedicationRequestIntent.BindCode(rec.Intent),
		dosage:     HumanizeDosage(rec.DosageInstruction),
		authoredOn: rec.AuthoredOn,
		reasons:    oneLine(coding.ReadableAll(rec.ReasonCode)),
	}
	if rec.MedicationCodeableConcept != nil {
		m.name = nameOf(rec.MedicationCodeableConcept, "")
		m.codeText = coding.FormatCodes(rec.MedicationCodeableConcept)
	}
	if rec.MedicationReference != nil {
		m.refID = rec.MedicationReference.ID()
		m.refDisplay = oneLine(rec.MedicationReference.Display)
	}
	return m, nil
}

func (m *MedicationRequest) Kind() Kind { return KindMedicationRequest }

// Status returns the bound request status.
func (m *MedicationRequest) Status() coding.Concept { return m.status }

// Intent returns the bound request intent.
func (m *MedicationRequest) Intent() coding.Concept { return m.intent }

// MedicationReferenceID returns the id of the referenced Medication, or "".
func (m *MedicationRequest) MedicationReferenceID() string { return m.refID }

// Dosage returns the humanized dosage instructions.
func (m *MedicationRequest) Dosage() string { return m.dosage }

// AuthoredOn returns when the request was written, or nil.
func (m *MedicationRequest) AuthoredOn() *r4.DateTime { return m.authoredOn }

// IsActive reports an active request.
func (m *MedicationRequest) IsActive() bool { return m.status.Is(coding.Active) }

func (m *MedicationRequest) InteractionDate() *r4.DateTime { return m.authoredOn }

// Name returns the medication name without resolving references.
func (m *MedicationRequest) Name() string {
	name, _ := m.medication(nil)
	return name
}

func (m *MedicationRequest) medication(med *Medication) (name, codes string) {
	switch {
	case med != nil:
		return med.name, med.codeText
	case m.name != "":
		return m.name, m.codeText
	case m.refDisplay != "":
		return m.refDisplay, ""
	}
	return "Unknown medication", ""
}

// PromptText renders the request using its inline medication.
func (m *MedicationRequest) PromptText() string {
	return m.PromptTextWith(nil)
}

// PromptTextWith renders the request naming med, the Medication its reference
// resolved to. A nil med falls back to the inline concept, then the reference display.
func (m *MedicationRequest) PromptTextWith(med *Medication) string {
	name, codes := m.medication(med)
	dosage := detail("dosage", m.dosage)
	if m.dosage == DosageNotSpecified {
		dosage = DosageNotSpecified
	}
	return fragment(named("Medication", name, codes),
		dosage,
		detail("status", m.status.Label()),
		detail("intent", m.intent.Label()),
		detail("authored", m.authoredOn.Date()),
		detail("reason", m.reasons),
	)
}
