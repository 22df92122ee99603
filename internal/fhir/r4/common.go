// Package r4 provides the FHIR R4 data structures read from the clinical data source.
//
// Only the elements the clinical context layer consumes are modelled. Unknown
// elements are ignored on decode; optional elements are pointers or empty slices.
package r4

import (
	"bytes"
	"strings"

	"github.com/shopspring/decimal"
)

// Integer is a FHIR integer that tolerates sender drift such as 2.0 or "2".
// Fractions are truncated; anything that is not a number decodes as 0.
type Integer int

// UnmarshalJSON implements json.Unmarshaler.
func (i *Integer) UnmarshalJSON(b []byte) error {
	*i = 0
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var v decimal.Decimal
	if err := v.UnmarshalJSON(b); err != nil {
		return nil
	}
	*i = Integer(v.IntPart())
	return nil
}

// Meta contains metadata about a resource.
type Meta struct {
	VersionID   string    `json:"versionId,omitempty"`
	LastUpdated *DateTime `json:"lastUpdated,omitempty"`
	Source      string    `json:"source,omitempty"`
	Profile     []string  `json:"profile,omitempty"`
	Tag         []Coding  `json:"tag,omitempty"`
}

// Identifier represents a FHIR Identifier.
type Identifier struct {
	Use    string           `json:"use,omitempty"` // usual | official | temp | secondary | old
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
	Period *Period          `json:"period,omitempty"`
}

// CodeableConcept represents a concept with text and codings.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Coding represents a code from a terminology system.
type Coding struct {
	System       string `json:"system,omitempty"`
	Version      string `json:"version,omitempty"`
	Code         string `json:"code,omitempty"`
	Display      string `json:"display,omitempty"`
	UserSelected bool   `json:"userSelected,omitempty"`
}

// Reference represents a reference to another resource.
type Reference struct {
	Reference  string      `json:"reference,omitempty"`
	Type       string      `json:"type,omitempty"`
	Identifier *Identifier `json:"identifier,omitempty"`
	Display    string      `json:"display,omitempty"`
}

// ID returns the logical id part of the reference ("Medication/123" -> "123").
func (r *Reference) ID() string {
	if r == nil {
		return ""
	}
	return extractIDFromReference(r.Reference)
}

// Period represents a time period. Either bound may be absent.
type Period struct {
	Start *DateTime `json:"start,omitempty"`
	End   *DateTime `json:"end,omitempty"`
}

// Quantity represents a measured amount. Value keeps the decimal exactly as sent.
type Quantity struct {
	Value      *decimal.Decimal `json:"value,omitempty"`
	Comparator string           `json:"comparator,omitempty"` // < | <= | >= | >
	Unit       string           `json:"unit,omitempty"`
	System     string           `json:"system,omitempty"`
	Code       string           `json:"code,omitempty"`
}

// String renders the quantity as "<comparator><value> <unit>", falling back to the
// unit code when no human unit is present. A quantity without a value renders empty.
func (q *Quantity) String() string {
	if q == nil || q.Value == nil {
		return ""
	}
	unit := q.Unit
	if unit == "" {
		unit = q.Code
	}
	s := q.Comparator + q.Value.String()
	if unit != "" && unit != "1" {
		s += " " + unit
	}
	return s
}

// Range represents a range of values.
type Range struct {
	Low  *Quantity `json:"low,omitempty"`
	High *Quantity `json:"high,omitempty"`
}

// String renders the range as "low-high unit".
func (r *Range) String() string {
	if r == nil {
		return ""
	}
	low, high := r.Low.String(), r.High.String()
	switch {
	case low != "" && high != "":
		if r.Low.Value != nil && r.Low.Unit == r.High.Unit {
			return r.Low.Value.String() + "-" + high
		}
		return low + "-" + high
	case low != "":
		return "at least " + low
	case high != "":
		return "up to " + high
	}
	return ""
}

// Ratio represents a ratio between two quantities.
type Ratio struct {
	Numerator   *Quantity `json:"numerator,omitempty"`
	Denominator *Quantity `json:"denominator,omitempty"`
}

// Annotation represents a note or comment.
type Annotation struct {
	AuthorReference *Reference `json:"authorReference,omitempty"`
	AuthorString    string     `json:"authorString,omitempty"`
	Time            *DateTime  `json:"time,omitempty"`
	Text            string     `json:"text"`
}

// HumanName represents a human name.
type HumanName struct {
	Use    string   `json:"use,omitempty"` // usual | official | temp | nickname | anonymous | old | maiden
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Prefix []string `json:"prefix,omitempty"`
	Suffix []string `json:"suffix,omitempty"`
	Period *Period  `json:"period,omitempty"`
}

// Format returns "Given Family", or the text form when present.
func (n *HumanName) Format() string {
	if n == nil {
		return ""
	}
	if n.Text != "" {
		return n.Text
	}
	parts := make([]string, 0, len(n.Given)+1)
	parts = append(parts, n.Given...)
	if n.Family != "" {
		parts = append(parts, n.Family)
	}
	return strings.Join(parts, " ")
}

// Address represents a postal address.
type Address struct {
	Use        string   `json:"use,omitempty"` // home | work | temp | old | billing
	Text       string   `json:"text,omitempty"`
	Line       []string `json:"line,omitempty"`
	City       string   `json:"city,omitempty"`
	State      string   `json:"state,omitempty"`
	PostalCode string   `json:"postalCode,omitempty"`
	Country    string   `json:"country,omitempty"`
}

// ContactPoint represents a contact detail.
type ContactPoint struct {
	System string `json:"system,omitempty"` // phone | fax | email | pager | url | sms | other
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"` // home | work | temp | old | mobile
}

// Attachment carries inline or referenced content. Data is base64 encoded.
type Attachment struct {
	ContentType string    `json:"contentType,omitempty"`
	Language    string    `json:"language,omitempty"`
	Data        string    `json:"data,omitempty"`
	URL         string    `json:"url,omitempty"`
	Size        Integer   `json:"size,omitempty"`
	Hash        string    `json:"hash,omitempty"`
	Title       string    `json:"title,omitempty"`
	Creation    *DateTime `json:"creation,omitempty"`
}

// MediaType returns the content type without parameters, lower-cased
// ("text/plain; charset=utf-8" -> "text/plain").
func (a *Attachment) MediaType() string {
	ct := a.ContentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// OperationOutcome represents errors and warnings from FHIR operations.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

// OperationOutcomeIssue represents a single issue in an OperationOutcome.
type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"` // fatal | error | warning | information
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// NewErrorOutcome creates an OperationOutcome with a single error issue.
func NewErrorOutcome(code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{{
			Severity:    "error",
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// Summary joins the diagnostics of all issues.
func (o *OperationOutcome) Summary() string {
	if o == nil {
		return ""
	}
	msgs := make([]string, 0, len(o.Issue))
	for _, issue := range o.Issue {
		switch {
		case issue.Diagnostics != "":
			msgs = append(msgs, issue.Diagnostics)
		case issue.Details != nil && issue.Details.Text != "":
			msgs = append(msgs, issue.Details.Text)
		default:
			msgs = append(msgs, issue.Severity+" "+issue.Code)
		}
	}
	return strings.Join(msgs, "; ")
}

// Common code systems
const (
	SystemRxNorm = "http://www.nlm.nih.gov/research/umls/rxnorm"
	SystemNDC    = "http://hl7.org/fhir/sid/ndc"
	SystemSNOMED = "http://snomed.info/sct"
	SystemLOINC  = "http://loinc.org"
	SystemUCUM   = "http://unitsofmeasure.org"
	SystemCVX    = "http://hl7.org/fhir/sid/cvx"
	SystemICD10  = "http://hl7.org/fhir/sid/icd-10-cm"
	SystemV2     = "http://terminology.hl7.org/CodeSystem/v2-0203"
	SystemURI    = "urn:ietf:rfc:3986"
)

// Resource type names handled by the clinical context layer.
const (
	TypePatient            = "Patient"
	TypeCondition          = "Condition"
	TypeAllergyIntolerance = "AllergyIntolerance"
	TypeCarePlan           = "CarePlan"
	TypeProcedure          = "Procedure"
	TypeDevice             = "Device"
	TypeDiagnosticReport   = "DiagnosticReport"
	TypeDocumentReference  = "DocumentReference"
	TypeObservation        = "Observation"
	TypeImmunization       = "Immunization"
	TypeMedication         = "Medication"
	TypeMedicationRequest  = "MedicationRequest"
	TypeBundle             = "Bundle"
	TypeOperationOutcome   = "OperationOutcome"
)

// extractIDFromReference extracts the ID from a FHIR reference string.
func extractIDFromReference(ref string) string {
	// Handle references like "Patient/123" or "urn:uuid:123"
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '/' || ref[i] == ':' {
			return ref[i+1:]
		}
	}
	return ref
}
