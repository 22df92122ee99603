package coding

import "github.com/drfirst/go-clinctx/internal/fhir/r4"

// Value set systems bound by the tables below.
const (
	SystemConditionClinical     = "http://terminology.hl7.org/CodeSystem/condition-clinical"
	SystemConditionVerification = "http://terminology.hl7.org/CodeSystem/condition-ver-status"
	SystemConditionCategory     = "http://terminology.hl7.org/CodeSystem/condition-category"
	SystemAllergyClinical       = "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical"
	SystemAllergyVerification   = "http://terminology.hl7.org/CodeSystem/allergyintolerance-verification"
	SystemAllergyType           = "http://hl7.org/fhir/allergy-intolerance-type"
	SystemAllergyCategory       = "http://hl7.org/fhir/allergy-intolerance-category"
	SystemAllergyCriticality    = "http://hl7.org/fhir/allergy-intolerance-criticality"
	SystemRequestStatus         = "http://hl7.org/fhir/request-status"
	SystemCarePlanIntent        = "http://hl7.org/fhir/request-intent"
	SystemCarePlanActivity      = "http://hl7.org/fhir/care-plan-activity-status"
	SystemEventStatus           = "http://hl7.org/fhir/event-status"
	SystemDeviceStatus          = "http://hl7.org/fhir/device-status"
	SystemReportStatus          = "http://hl7.org/fhir/diagnostic-report-status"
	SystemDocumentStatus        = "http://hl7.org/fhir/document-reference-status"
	SystemObservationStatus     = "http://hl7.org/fhir/observation-status"
	SystemObservationCategory   = "http://terminology.hl7.org/CodeSystem/observation-category"
	SystemMedicationStatus      = "http://hl7.org/fhir/CodeSystem/medication-status"
	SystemMedRequestStatus      = "http://hl7.org/fhir/CodeSystem/medicationrequest-status"
	SystemMedRequestIntent      = "http://hl7.org/fhir/CodeSystem/medicationrequest-intent"
	SystemGender                = "http://hl7.org/fhir/administrative-gender"
)

// Symbols the adapters branch on.
const (
	Active         Symbol = "active"
	Inactive       Symbol = "inactive"
	Recurrence     Symbol = "recurrence"
	Relapse        Symbol = "relapse"
	Remission      Symbol = "remission"
	Resolved       Symbol = "resolved"
	Unconfirmed    Symbol = "unconfirmed"
	Provisional    Symbol = "provisional"
	Differential   Symbol = "differential"
	Confirmed      Symbol = "confirmed"
	Refuted        Symbol = "refuted"
	EnteredInError Symbol = "entered-in-error"
	Unknown        Symbol = "unknown"

	Allergy     Symbol = "allergy"
	Intolerance Symbol = "intolerance"

	CriticalityLow  Symbol = "low"
	CriticalityHigh Symbol = "high"

	Oral Symbol = "oral"
)

// Condition value sets.
var (
	ConditionClinicalStatus = NewTable("condition-clinical", SystemConditionClinical,
		Entry{Code: "active", Label: "active"},
		Entry{Code: "recurrence", Label: "recurrent"},
		Entry{Code: "relapse", Label: "relapsed"},
		Entry{Code: "inactive", Label: "inactive"},
		Entry{Code: "remission", Label: "in remission"},
		Entry{Code: "resolved", Label: "resolved"},
	)

	ConditionVerificationStatus = NewTable("condition-ver-status", SystemConditionVerification,
		Entry{Code: "unconfirmed", Label: "unconfirmed"},
		Entry{Code: "provisional", Label: "provisional"},
		Entry{Code: "differential", Label: "differential"},
		Entry{Code: "confirmed", Label: "confirmed"},
		Entry{Code: "refuted", Label: "refuted"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)

	ConditionCategory = NewTable("condition-category", SystemConditionCategory,
		Entry{Code: "problem-list-item", Label: "problem list item"},
		Entry{Code: "encounter-diagnosis", Label: "encounter diagnosis"},
		Entry{System: r4.SystemSNOMED, Code: "439401001", Symbol: "diagnosis", Label: "diagnosis"},
	)
)

// AllergyIntolerance value sets.
var (
	AllergyClinicalStatus = NewTable("allergyintolerance-clinical", SystemAllergyClinical,
		Entry{Code: "active", Label: "active"},
		Entry{Code: "inactive", Label: "inactive"},
		Entry{Code: "resolved", Label: "resolved"},
	)

	AllergyVerificationStatus = NewTable("allergyintolerance-verification", SystemAllergyVerification,
		Entry{Code: "unconfirmed", Label: "unconfirmed"},
		Entry{Code: "confirmed", Label: "confirmed"},
		Entry{Code: "refuted", Label: "refuted"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)

	AllergyType = NewTable("allergy-intolerance-type", SystemAllergyType,
		Entry{Code: "allergy", Label: "allergy"},
		Entry{Code: "intolerance", Label: "intolerance"},
	)

	AllergyCategory = NewTable("allergy-intolerance-category", SystemAllergyCategory,
		Entry{Code: "food", Label: "food"},
		Entry{Code: "medication", Label: "medication"},
		Entry{Code: "environment", Label: "environment"},
		Entry{Code: "biologic", Label: "biologic"},
	)

	AllergyCriticality = NewTable("allergy-intolerance-criticality", SystemAllergyCriticality,
		Entry{Code: "low", Label: "low"},
		Entry{Code: "high", Label: "high"},
		Entry{Code: "unable-to-assess", Label: "unable to assess"},
	)
)

// CarePlan value sets.
var (
	CarePlanStatus = NewTable("request-status", SystemRequestStatus,
		Entry{Code: "draft", Label: "draft"},
		Entry{Code: "active", Label: "active"},
		Entry{Code: "on-hold", Label: "on hold"},
		Entry{Code: "revoked", Label: "revoked"},
		Entry{Code: "completed", Label: "completed"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
		Entry{Code: "unknown", Label: "unknown"},
	)

	CarePlanIntent = NewTable("care-plan-intent", SystemCarePlanIntent,
		Entry{Code: "proposal", Label: "proposal"},
		Entry{Code: "plan", Label: "plan"},
		Entry{Code: "order", Label: "order"},
		Entry{Code: "option", Label: "option"},
	)

	CarePlanActivityStatus = NewTable("care-plan-activity-status", SystemCarePlanActivity,
		Entry{Code: "not-started", Label: "not started"},
		Entry{Code: "scheduled", Label: "scheduled"},
		Entry{Code: "in-progress", Label: "in progress"},
		Entry{Code: "on-hold", Label: "on hold"},
		Entry{Code: "completed", Label: "completed"},
		Entry{Code: "cancelled", Label: "cancelled"},
		Entry{Code: "stopped", Label: "stopped"},
		Entry{Code: "unknown", Label: "unknown"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)
)

// ProcedureStatus and ImmunizationStatus share the event-status code system.
var (
	ProcedureStatus = NewTable("event-status", SystemEventStatus,
		Entry{Code: "preparation", Label: "in preparation"},
		Entry{Code: "in-progress", Label: "in progress"},
		Entry{Code: "not-done", Label: "not done"},
		Entry{Code: "on-hold", Label: "on hold"},
		Entry{Code: "stopped", Label: "stopped"},
		Entry{Code: "completed", Label: "completed"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
		Entry{Code: "unknown", Label: "unknown"},
	)

	ImmunizationStatus = NewTable("immunization-status", SystemEventStatus,
		Entry{Code: "completed", Label: "completed"},
		Entry{Code: "not-done", Label: "not done"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)
)

// DeviceStatus binds FHIR device status. Implant state is derived from it.
var DeviceStatus = NewTable("device-status", SystemDeviceStatus,
	Entry{Code: "active", Label: "currently implanted"},
	Entry{Code: "inactive", Label: "removed or inactive"},
	Entry{Code: "entered-in-error", Label: "entered in error"},
	Entry{Code: "unknown", Label: "unknown"},
)

// Diagnostic value sets.
var (
	DiagnosticReportStatus = NewTable("diagnostic-report-status", SystemReportStatus,
		Entry{Code: "registered", Label: "registered"},
		Entry{Code: "partial", Label: "partial"},
		Entry{Code: "preliminary", Label: "preliminary"},
		Entry{Code: "final", Label: "final"},
		Entry{Code: "amended", Label: "amended"},
		Entry{Code: "corrected", Label: "corrected"},
		Entry{Code: "appended", Label: "appended"},
		Entry{Code: "cancelled", Label: "cancelled"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
		Entry{Code: "unknown", Label: "unknown"},
	)

	DocumentReferenceStatus = NewTable("document-reference-status", SystemDocumentStatus,
		Entry{Code: "current", Label: "current"},
		Entry{Code: "superseded", Label: "superseded"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)

	ObservationStatus = NewTable("observation-status", SystemObservationStatus,
		Entry{Code: "registered", Label: "registered"},
		Entry{Code: "preliminary", Label: "preliminary"},
		Entry{Code: "final", Label: "final"},
		Entry{Code: "amended", Label: "amended"},
		Entry{Code: "corrected", Label: "corrected"},
		Entry{Code: "cancelled", Label: "cancelled"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
		Entry{Code: "unknown", Label: "unknown"},
	)

	ObservationCategory = NewTable("observation-category", SystemObservationCategory,
		Entry{Code: "social-history", Label: "social history"},
		Entry{Code: "vital-signs", Label: "vital signs"},
		Entry{Code: "imaging", Label: "imaging"},
		Entry{Code: "laboratory", Label: "laboratory"},
		Entry{Code: "procedure", Label: "procedure"},
		Entry{Code: "survey", Label: "survey"},
		Entry{Code: "exam", Label: "exam"},
		Entry{Code: "therapy", Label: "therapy"},
		Entry{Code: "activity", Label: "activity"},
	)
)

// Medication value sets.
var (
	MedicationStatus = NewTable("medication-status", SystemMedicationStatus,
		Entry{Code: "active", Label: "active"},
		Entry{Code: "inactive", Label: "inactive"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
	)

	MedicationRequestStatus = NewTable("medicationrequest-status", SystemMedRequestStatus,
		Entry{Code: "active", Label: "active"},
		Entry{Code: "on-hold", Label: "on hold"},
		Entry{Code: "cancelled", Label: "cancelled"},
		Entry{Code: "completed", Label: "completed"},
		Entry{Code: "entered-in-error", Label: "entered in error"},
		Entry{Code: "stopped", Label: "stopped"},
		Entry{Code: "draft", Label: "draft"},
		Entry{Code: "unknown", Label: "unknown"},
	)

	MedicationRequestIntent = NewTable("medicationrequest-intent", SystemMedRequestIntent,
		Entry{Code: "proposal", Label: "proposal"},
		Entry{Code: "plan", Label: "plan"},
		Entry{Code: "order", Label: "order"},
		Entry{Code: "original-order", Label: "original order"},
		Entry{Code: "reflex-order", Label: "reflex order"},
		Entry{Code: "filler-order", Label: "filler order"},
		Entry{Code: "instance-order", Label: "instance order"},
		Entry{Code: "option", Label: "option"},
	)

	// Route labels read as the tail of a sig: "500 mg by mouth".
	Route = NewTable("route-codes", r4.SystemSNOMED,
		Entry{Code: "26643006", Symbol: Oral, Label: "by mouth"},
		Entry{Code: "37839007", Symbol: "sublingual", Label: "sublingually"},
		Entry{Code: "47625008", Symbol: "intravenous", Label: "intravenously"},
		Entry{Code: "78421000", Symbol: "intramuscular", Label: "intramuscularly"},
		Entry{Code: "34206005", Symbol: "subcutaneous", Label: "subcutaneously"},
		Entry{Code: "6064005", Symbol: "topical", Label: "topically"},
		Entry{Code: "46713006", Symbol: "nasal", Label: "nasally"},
		Entry{Code: "447694001", Symbol: "respiratory", Label: "by inhalation"},
		Entry{Code: "18679011000001101", Symbol: "inhalation", Label: "by inhalation"},
		Entry{Code: "37161004", Symbol: "rectal", Label: "rectally"},
		Entry{Code: "45890007", Symbol: "transdermal", Label: "transdermally"},
		Entry{Code: "54485002", Symbol: "ophthalmic", Label: "in the eye"},
	)
)

// Gender binds administrative gender.
var Gender = NewTable("administrative-gender", SystemGender,
	Entry{Code: "male", Label: "male"},
	Entry{Code: "female", Label: "female"},
	Entry{Code: "other", Label: "other"},
	Entry{Code: "unknown", Label: "unknown"},
)

// TimingAbbreviation binds the common sig abbreviations carried in Timing.code.
var TimingAbbreviation = NewTable("timing-abbreviation", "http://terminology.hl7.org/CodeSystem/v3-GTSAbbreviation",
	Entry{Code: "QD", Label: "once daily"},
	Entry{Code: "BID", Label: "twice daily"},
	Entry{Code: "TID", Label: "three times daily"},
	Entry{Code: "QID", Label: "four times daily"},
	Entry{Code: "AM", Label: "every morning"},
	Entry{Code: "PM", Label: "every evening"},
	Entry{Code: "QOD", Label: "every other day"},
	Entry{Code: "Q4H", Label: "every 4 hours"},
	Entry{Code: "Q6H", Label: "every 6 hours"},
	Entry{Code: "Q8H", Label: "every 8 hours"},
	Entry{Code: "WK", Label: "weekly"},
	Entry{Code: "MO", Label: "monthly"},
)
