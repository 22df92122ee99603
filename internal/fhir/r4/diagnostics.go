package r4

// DiagnosticReport represents a FHIR R4 DiagnosticReport resource.
type DiagnosticReport struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id,omitempty"`
	Meta              *Meta             `json:"meta,omitempty"`
	Status            string            `json:"status"` // registered | partial | preliminary | final | amended | corrected | appended | cancelled | entered-in-error | unknown
	Category          []CodeableConcept `json:"category,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	Subject           *Reference        `json:"subject,omitempty"`
	Encounter         *Reference        `json:"encounter,omitempty"`
	EffectiveDateTime *DateTime         `json:"effectiveDateTime,omitempty"`
	EffectivePeriod   *Period           `json:"effectivePeriod,omitempty"`
	Issued            *DateTime         `json:"issued,omitempty"`
	Performer         []Reference       `json:"performer,omitempty"`
	Result            []Reference       `json:"result,omitempty"`
	Conclusion        string            `json:"conclusion,omitempty"`
	ConclusionCode    []CodeableConcept `json:"conclusionCode,omitempty"`
	PresentedForm     []Attachment      `json:"presentedForm,omitempty"`
}

// Effective returns effectiveDateTime, the start of effectivePeriod, or issued.
func (d *DiagnosticReport) Effective() *DateTime {
	if !d.EffectiveDateTime.IsZero() {
		return d.EffectiveDateTime
	}
	if d.EffectivePeriod != nil && !d.EffectivePeriod.Start.IsZero() {
		return d.EffectivePeriod.Start
	}
	if !d.Issued.IsZero() {
		return d.Issued
	}
	return nil
}

// DocumentReference represents a FHIR R4 DocumentReference resource.
type DocumentReference struct {
	ResourceType     string                     `json:"resourceType"`
	ID               string                     `json:"id,omitempty"`
	Meta             *Meta                      `json:"meta,omitempty"`
	MasterIdentifier *Identifier                `json:"masterIdentifier,omitempty"`
	Status           string                     `json:"status"`              // current | superseded | entered-in-error
	DocStatus        string                     `json:"docStatus,omitempty"` // preliminary | final | amended | entered-in-error
	Type             *CodeableConcept           `json:"type,omitempty"`
	Category         []CodeableConcept          `json:"category,omitempty"`
	Subject          *Reference                 `json:"subject,omitempty"`
	Date             *DateTime                  `json:"date,omitempty"`
	Author           []Reference                `json:"author,omitempty"`
	Custodian        *Reference                 `json:"custodian,omitempty"`
	Description      string                     `json:"description,omitempty"`
	Content          []DocumentReferenceContent `json:"content"`
	Context          *DocumentReferenceContext  `json:"context,omitempty"`
}

// DocumentReferenceContent is one rendition of the document.
type DocumentReferenceContent struct {
	Attachment Attachment `json:"attachment"`
	Format     *Coding    `json:"format,omitempty"`
}

// DocumentReferenceContext describes the clinical context of the document.
type DocumentReferenceContext struct {
	Encounter []Reference `json:"encounter,omitempty"`
	Period    *Period     `json:"period,omitempty"`
}

// Observation represents a FHIR R4 Observation resource.
type Observation struct {
	ResourceType         string                 `json:"resourceType"`
	ID                   string                 `json:"id,omitempty"`
	Meta                 *Meta                  `json:"meta,omitempty"`
	Status               string                 `json:"status"` // registered | preliminary | final | amended | corrected | cancelled | entered-in-error | unknown
	Category             []CodeableConcept      `json:"category,omitempty"`
	Code                 *CodeableConcept       `json:"code,omitempty"`
	Subject              *Reference             `json:"subject,omitempty"`
	Encounter            *Reference             `json:"encounter,omitempty"`
	EffectiveDateTime    *DateTime              `json:"effectiveDateTime,omitempty"`
	EffectivePeriod      *Period                `json:"effectivePeriod,omitempty"`
	Issued               *DateTime              `json:"issued,omitempty"`
	ValueQuantity        *Quantity              `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept       `json:"valueCodeableConcept,omitempty"`
	ValueString          *string                `json:"valueString,omitempty"`
	ValueBoolean         *bool                  `json:"valueBoolean,omitempty"`
	ValueInteger         *Integer               `json:"valueInteger,omitempty"`
	ValueRange           *Range                 `json:"valueRange,omitempty"`
	ValueDateTime        *DateTime              `json:"valueDateTime,omitempty"`
	DataAbsentReason     *CodeableConcept       `json:"dataAbsentReason,omitempty"`
	Interpretation       []CodeableConcept      `json:"interpretation,omitempty"`
	Component            []ObservationComponent `json:"component,omitempty"`
}

// ObservationComponent is one component result, e.g. a blood pressure part.
type ObservationComponent struct {
	Code                 CodeableConcept  `json:"code"`
	ValueQuantity        *Quantity        `json:"valueQuantity,omitempty"`
	ValueCodeableConcept *CodeableConcept `json:"valueCodeableConcept,omitempty"`
	ValueString          *string          `json:"valueString,omitempty"`
	ValueBoolean         *bool            `json:"valueBoolean,omitempty"`
	ValueInteger         *Integer         `json:"valueInteger,omitempty"`
	DataAbsentReason     *CodeableConcept `json:"dataAbsentReason,omitempty"`
}

// Effective returns effectiveDateTime, the start of effectivePeriod, or issued.
func (o *Observation) Effective() *DateTime {
	if !o.EffectiveDateTime.IsZero() {
		return o.EffectiveDateTime
	}
	if o.EffectivePeriod != nil && !o.EffectivePeriod.Start.IsZero() {
		return o.EffectivePeriod.Start
	}
	if !o.Issued.IsZero() {
		return o.Issued
	}
	return nil
}
