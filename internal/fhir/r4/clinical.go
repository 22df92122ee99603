package r4

// Condition represents a FHIR R4 Condition resource.
type Condition struct {
	ResourceType       string            `json:"resourceType"`
	ID                 string            `json:"id,omitempty"`
	Meta               *Meta             `json:"meta,omitempty"`
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`     // active | recurrence | relapse | inactive | remission | resolved
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"` // unconfirmed | provisional | differential | confirmed | refuted | entered-in-error
	Category           []CodeableConcept `json:"category,omitempty"`
	Severity           *CodeableConcept  `json:"severity,omitempty"`
	Code               *CodeableConcept  `json:"code,omitempty"`
	BodySite           []CodeableConcept `json:"bodySite,omitempty"`
	Subject            Reference         `json:"subject"`
	Encounter          *Reference        `json:"encounter,omitempty"`
	OnsetDateTime      *DateTime         `json:"onsetDateTime,omitempty"`
	OnsetPeriod        *Period           `json:"onsetPeriod,omitempty"`
	OnsetString        string            `json:"onsetString,omitempty"`
	AbatementDateTime  *DateTime         `json:"abatementDateTime,omitempty"`
	AbatementString    string            `json:"abatementString,omitempty"`
	RecordedDate       *DateTime         `json:"recordedDate,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}

// Onset returns the onset date, from onsetDateTime or the start of onsetPeriod.
func (c *Condition) Onset() *DateTime {
	if !c.OnsetDateTime.IsZero() {
		return c.OnsetDateTime
	}
	if c.OnsetPeriod != nil && !c.OnsetPeriod.Start.IsZero() {
		return c.OnsetPeriod.Start
	}
	return nil
}

// AllergyIntolerance represents a FHIR R4 AllergyIntolerance resource.
type AllergyIntolerance struct {
	ResourceType       string            `json:"resourceType"`
	ID                 string            `json:"id,omitempty"`
	Meta               *Meta             `json:"meta,omitempty"`
	ClinicalStatus     *CodeableConcept  `json:"clinicalStatus,omitempty"`     // active | inactive | resolved
	VerificationStatus *CodeableConcept  `json:"verificationStatus,omitempty"` // unconfirmed | confirmed | refuted | entered-in-error
	Type               string            `json:"type,omitempty"`               // allergy | intolerance
	Category           []string          `json:"category,omitempty"`           // food | medication | environment | biologic
	Criticality        string            `json:"criticality,omitempty"`        // low | high | unable-to-assess
	Code               *CodeableConcept  `json:"code,omitempty"`
	Patient            Reference         `json:"patient"`
	OnsetDateTime      *DateTime         `json:"onsetDateTime,omitempty"`
	RecordedDate       *DateTime         `json:"recordedDate,omitempty"`
	Reaction           []AllergyReaction `json:"reaction,omitempty"`
	Note               []Annotation      `json:"note,omitempty"`
}

// AllergyReaction describes an adverse reaction event.
type AllergyReaction struct {
	Substance     *CodeableConcept  `json:"substance,omitempty"`
	Manifestation []CodeableConcept `json:"manifestation"`
	Description   string            `json:"description,omitempty"`
	Severity      string            `json:"severity,omitempty"` // mild | moderate | severe
}

// CarePlan represents a FHIR R4 CarePlan resource.
type CarePlan struct {
	ResourceType string             `json:"resourceType"`
	ID           string             `json:"id,omitempty"`
	Meta         *Meta              `json:"meta,omitempty"`
	Status       string             `json:"status"` // draft | active | on-hold | revoked | completed | entered-in-error | unknown
	Intent       string             `json:"intent"` // proposal | plan | order | option
	Category     []CodeableConcept  `json:"category,omitempty"`
	Title        string             `json:"title,omitempty"`
	Description  string             `json:"description,omitempty"`
	Subject      Reference          `json:"subject"`
	Period       *Period            `json:"period,omitempty"`
	Addresses    []Reference        `json:"addresses,omitempty"`
	Activity     []CarePlanActivity `json:"activity,omitempty"`
}

// CarePlanActivity is one planned action of a care plan.
type CarePlanActivity struct {
	Detail *CarePlanActivityDetail `json:"detail,omitempty"`
}

// CarePlanActivityDetail is the inline definition of an activity.
type CarePlanActivityDetail struct {
	Kind        string           `json:"kind,omitempty"`
	Code        *CodeableConcept `json:"code,omitempty"`
	Status      string           `json:"status"` // not-started | scheduled | in-progress | on-hold | completed | cancelled | stopped | unknown | entered-in-error
	Location    *Reference       `json:"location,omitempty"`
	Description string           `json:"description,omitempty"`
}

// Procedure represents a FHIR R4 Procedure resource.
type Procedure struct {
	ResourceType      string            `json:"resourceType"`
	ID                string            `json:"id,omitempty"`
	Meta              *Meta             `json:"meta,omitempty"`
	Status            string            `json:"status"` // preparation | in-progress | not-done | on-hold | stopped | completed | entered-in-error | unknown
	Category          *CodeableConcept  `json:"category,omitempty"`
	Code              *CodeableConcept  `json:"code,omitempty"`
	Subject           Reference         `json:"subject"`
	Encounter         *Reference        `json:"encounter,omitempty"`
	PerformedDateTime *DateTime         `json:"performedDateTime,omitempty"`
	PerformedPeriod   *Period           `json:"performedPeriod,omitempty"`
	ReasonCode        []CodeableConcept `json:"reasonCode,omitempty"`
	BodySite          []CodeableConcept `json:"bodySite,omitempty"`
}

// Performed returns the start and end of the procedure. End is nil for a
// single point in time.
func (p *Procedure) Performed() (start, end *DateTime) {
	if !p.PerformedDateTime.IsZero() {
		return p.PerformedDateTime, nil
	}
	if p.PerformedPeriod != nil {
		return p.PerformedPeriod.Start, p.PerformedPeriod.End
	}
	return nil, nil
}

// Device represents a FHIR R4 Device resource.
type Device struct {
	ResourceType    string             `json:"resourceType"`
	ID              string             `json:"id,omitempty"`
	Meta            *Meta              `json:"meta,omitempty"`
	UDICarrier      []DeviceUDICarrier `json:"udiCarrier,omitempty"`
	Status          string             `json:"status,omitempty"` // active | inactive | entered-in-error | unknown
	DistinctID      string             `json:"distinctIdentifier,omitempty"`
	ManufactureDate *DateTime          `json:"manufactureDate,omitempty"`
	ExpirationDate  *DateTime          `json:"expirationDate,omitempty"`
	LotNumber       string             `json:"lotNumber,omitempty"`
	SerialNumber    string             `json:"serialNumber,omitempty"`
	DeviceName      []DeviceName       `json:"deviceName,omitempty"`
	Type            *CodeableConcept   `json:"type,omitempty"`
	Patient         *Reference         `json:"patient,omitempty"`
}

// DeviceUDICarrier holds the unique device identifier.
type DeviceUDICarrier struct {
	DeviceIdentifier string `json:"deviceIdentifier,omitempty"`
	CarrierHRF       string `json:"carrierHRF,omitempty"`
}

// DeviceName is a name given to the device.
type DeviceName struct {
	Name string `json:"name"`
	Type string `json:"type"` // udi-label-name | user-friendly-name | patient-reported-name | manufacturer-name | model-name | other
}
