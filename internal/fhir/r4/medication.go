package r4

// Medication represents a FHIR R4 Medication resource.
type Medication struct {
	ResourceType string                 `json:"resourceType"`
	ID           string                 `json:"id,omitempty"`
	Meta         *Meta                  `json:"meta,omitempty"`
	Code         *CodeableConcept       `json:"code,omitempty"`
	Status       string                 `json:"status,omitempty"` // active | inactive | entered-in-error
	Form         *CodeableConcept       `json:"form,omitempty"`
	Ingredient   []MedicationIngredient `json:"ingredient,omitempty"`
}

// MedicationIngredient is an active or inactive ingredient.
type MedicationIngredient struct {
	ItemCodeableConcept *CodeableConcept `json:"itemCodeableConcept,omitempty"`
	ItemReference       *Reference       `json:"itemReference,omitempty"`
	IsActive            *bool            `json:"isActive,omitempty"`
	Strength            *Ratio           `json:"strength,omitempty"`
}

// MedicationRequest represents a FHIR R4 MedicationRequest resource.
type MedicationRequest struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
	Meta         *Meta  `json:"meta,omitempty"`

	// Status of the prescription
	Status       string           `json:"status"` // active | on-hold | cancelled | completed | entered-in-error | stopped | draft | unknown
	StatusReason *CodeableConcept `json:"statusReason,omitempty"`

	// Intent of the request
	Intent string `json:"intent"` // proposal | plan | order | original-order | reflex-order | filler-order | instance-order | option

	Category []CodeableConcept `json:"category,omitempty"`
	Priority string            `json:"priority,omitempty"` // routine | urgent | asap | stat

	// Medication is either an inline concept or a reference to a Medication resource.
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept,omitempty"`
	MedicationReference       *Reference       `json:"medicationReference,omitempty"`

	Subject    Reference         `json:"subject"`
	Encounter  *Reference        `json:"encounter,omitempty"`
	AuthoredOn *DateTime         `json:"authoredOn,omitempty"`
	Requester  *Reference        `json:"requester,omitempty"`
	ReasonCode []CodeableConcept `json:"reasonCode,omitempty"`
	Note       []Annotation      `json:"note,omitempty"`

	DosageInstruction []Dosage `json:"dosageInstruction,omitempty"`
}

// GetPatientID extracts the patient ID from the Subject reference.
func (m *MedicationRequest) GetPatientID() string {
	return m.Subject.ID()
}

// Dosage contains dosage instructions for the medication.
type Dosage struct {
	Sequence                 Integer           `json:"sequence,omitempty"`
	Text                     string            `json:"text,omitempty"`
	AdditionalInstruction    []CodeableConcept `json:"additionalInstruction,omitempty"`
	PatientInstruction       string            `json:"patientInstruction,omitempty"`
	Timing                   *Timing           `json:"timing,omitempty"`
	AsNeededBoolean          *bool             `json:"asNeededBoolean,omitempty"`
	AsNeededCodeableConcept  *CodeableConcept  `json:"asNeededCodeableConcept,omitempty"`
	Site                     *CodeableConcept  `json:"site,omitempty"`
	Route                    *CodeableConcept  `json:"route,omitempty"`
	Method                   *CodeableConcept  `json:"method,omitempty"`
	DoseAndRate              []DoseAndRate     `json:"doseAndRate,omitempty"`
	MaxDosePerAdministration *Quantity         `json:"maxDosePerAdministration,omitempty"`
}

// DoseAndRate contains dose/rate information.
type DoseAndRate struct {
	Type         *CodeableConcept `json:"type,omitempty"`
	DoseRange    *Range           `json:"doseRange,omitempty"`
	DoseQuantity *Quantity        `json:"doseQuantity,omitempty"`
	RateRatio    *Ratio           `json:"rateRatio,omitempty"`
	RateQuantity *Quantity        `json:"rateQuantity,omitempty"`
}

// Timing contains timing information for dosage.
type Timing struct {
	Event  []DateTime       `json:"event,omitempty"`
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"` // BID | TID | QID | AM | PM | QD | QOD | ...
}

// TimingRepeat contains repeat details for timing.
type TimingRepeat struct {
	BoundsPeriod *Period  `json:"boundsPeriod,omitempty"`
	Count        Integer  `json:"count,omitempty"`
	Duration     float64  `json:"duration,omitempty"`
	DurationUnit string   `json:"durationUnit,omitempty"`
	Frequency    Integer  `json:"frequency,omitempty"`
	FrequencyMax Integer  `json:"frequencyMax,omitempty"`
	Period       float64  `json:"period,omitempty"`
	PeriodMax    float64  `json:"periodMax,omitempty"`
	PeriodUnit   string   `json:"periodUnit,omitempty"` // s | min | h | d | wk | mo | a
	DayOfWeek    []string `json:"dayOfWeek,omitempty"`
	TimeOfDay    []string `json:"timeOfDay,omitempty"`
	When         []string `json:"when,omitempty"`
}

// Immunization represents a FHIR R4 Immunization resource.
type Immunization struct {
	ResourceType       string           `json:"resourceType"`
	ID                 string           `json:"id,omitempty"`
	Meta               *Meta            `json:"meta,omitempty"`
	Status             string           `json:"status"` // completed | entered-in-error | not-done
	StatusReason       *CodeableConcept `json:"statusReason,omitempty"`
	VaccineCode        *CodeableConcept `json:"vaccineCode,omitempty"`
	Patient            Reference        `json:"patient"`
	Encounter          *Reference       `json:"encounter,omitempty"`
	OccurrenceDateTime *DateTime        `json:"occurrenceDateTime,omitempty"`
	OccurrenceString   string           `json:"occurrenceString,omitempty"`
	PrimarySource      *bool            `json:"primarySource,omitempty"`
	LotNumber          string           `json:"lotNumber,omitempty"`
	Site               *CodeableConcept `json:"site,omitempty"`
	Route              *CodeableConcept `json:"route,omitempty"`
	DoseQuantity       *Quantity        `json:"doseQuantity,omitempty"`
}
