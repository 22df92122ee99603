// Package patientcontext aggregates adapted clinical records for one patient
// into a deterministic, sectioned text context.
//
// A PatientContext belongs to a single session and performs no I/O.
package patientcontext

import (
	"fmt"

	"github.com/drfirst/go-clinctx/internal/clinical/adapter"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// PatientContext holds a patient's demographics and one ordered collection per
// resource kind. Collections keep insertion order and are never de-duplicated.
type PatientContext struct {
	demographics Demographics

	conditions         []*adapter.Condition
	medications        []*adapter.Medication
	medicationRequests []*adapter.MedicationRequest
	observations       []*adapter.Observation
	allergies          []*adapter.AllergyIntolerance
	procedures         []*adapter.Procedure
	immunizations      []*adapter.Immunization
	devices            []*adapter.Device
	carePlans          []*adapter.CarePlan
	reports            []*adapter.DiagnosticReport
	documents          []*adapter.DocumentReference
}

// New creates an empty context for the given demographics.
func New(d Demographics) *PatientContext {
	return &PatientContext{demographics: d}
}

// FromPatient creates an empty context from a Patient record.
func FromPatient(p *r4.Patient) *PatientContext {
	return New(DemographicsFromPatient(p))
}

// Demographics returns the context demographics.
func (c *PatientContext) Demographics() Demographics { return c.demographics }

// PatientID returns the patient id, or "".
func (c *PatientContext) PatientID() string { return c.demographics.PatientID }

// Add appends r to the collection for its own kind.
func (c *PatientContext) Add(r adapter.Resource) error {
	if r == nil {
		return ErrNilResource
	}
	return c.AddResource(r.Kind(), r)
}

// AddResource appends r to the collection for kind. The adapter must be the
// variant kind names.
func (c *PatientContext) AddResource(kind adapter.Kind, r adapter.Resource) error {
	if r == nil {
		return ErrNilResource
	}
	ok := false
	switch kind {
	case adapter.KindCondition:
		var v *adapter.Condition
		if v, ok = r.(*adapter.Condition); ok {
			c.conditions = append(c.conditions, v)
		}
	case adapter.KindMedication:
		var v *adapter.Medication
		if v, ok = r.(*adapter.Medication); ok {
			c.medications = append(c.medications, v)
		}
	case adapter.KindMedicationRequest:
		var v *adapter.MedicationRequest
		if v, ok = r.(*adapter.MedicationRequest); ok {
			c.medicationRequests = append(c.medicationRequests, v)
		}
	case adapter.KindObservation:
		var v *adapter.Observation
		if v, ok = r.(*adapter.Observation); ok {
			c.observations = append(c.observations, v)
		}
	case adapter.KindAllergyIntolerance:
		var v *adapter.AllergyIntolerance
		if v, ok = r.(*adapter.AllergyIntolerance); ok {
			c.allergies = append(c.allergies, v)
		}
	case adapter.KindProcedure:
		var v *adapter.Procedure
		if v, ok = r.(*adapter.Procedure); ok {
			c.procedures = append(c.procedures, v)
		}
	case adapter.KindImmunization:
		var v *adapter.Immunization
		if v, ok = r.(*adapter.Immunization); ok {
			c.immunizations = append(c.immunizations, v)
		}
	case adapter.KindDevice:
		var v *adapter.Device
		if v, ok = r.(*adapter.Device); ok {
			c.devices = append(c.devices, v)
		}
	case adapter.KindCarePlan:
		var v *adapter.CarePlan
		if v, ok = r.(*adapter.CarePlan); ok {
			c.carePlans = append(c.carePlans, v)
		}
	case adapter.KindDiagnosticReport:
		var v *adapter.DiagnosticReport
		if v, ok = r.(*adapter.DiagnosticReport); ok {
			c.reports = append(c.reports, v)
		}
	case adapter.KindDocumentReference:
		var v *adapter.DocumentReference
		if v, ok = r.(*adapter.DocumentReference); ok {
			c.documents = append(c.documents, v)
		}
	}
	if !ok {
		return fmt.Errorf("%w: cannot add %s as %s", ErrKindMismatch, r.Kind(), kind)
	}
	return nil
}

// Counts returns the number of records held per kind.
func (c *PatientContext) Counts() map[adapter.Kind]int {
	return map[adapter.Kind]int{
		adapter.KindCondition:          len(c.conditions),
		adapter.KindMedication:         len(c.medications),
		adapter.KindMedicationRequest:  len(c.medicationRequests),
		adapter.KindObservation:        len(c.observations),
		adapter.KindAllergyIntolerance: len(c.allergies),
		adapter.KindProcedure:          len(c.procedures),
		adapter.KindImmunization:       len(c.immunizations),
		adapter.KindDevice:             len(c.devices),
		adapter.KindCarePlan:           len(c.carePlans),
		adapter.KindDiagnosticReport:   len(c.reports),
		adapter.KindDocumentReference:  len(c.documents),
	}
}

// Len returns the total number of records held.
func (c *PatientContext) Len() int {
	n := 0
	for _, v := range c.Counts() {
		n += v
	}
	return n
}

// Medication returns the Medication with the given id, or nil.
func (c *PatientContext) Medication(id string) *adapter.Medication {
	if id == "" {
		return nil
	}
	for _, m := range c.medications {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// LastInteractionDate returns the most recent clinical date among reports,
// observations, procedures, medication requests and condition onsets, or nil.
func (c *PatientContext) LastInteractionDate() *r4.DateTime {
	var latest *r4.DateTime
	consider := func(d adapter.Dated) {
		if at := d.InteractionDate(); at.After(latest) {
			latest = at
		}
	}
	for _, r := range c.reports {
		consider(r)
	}
	for _, o := range c.observations {
		consider(o)
	}
	for _, p := range c.procedures {
		consider(p)
	}
	for _, m := range c.medicationRequests {
		consider(m)
	}
	for _, cond := range c.conditions {
		consider(cond)
	}
	return latest
}

// DecodeErrors returns the payload decode errors carried by report and
// document adapters, in collection order.
func (c *PatientContext) DecodeErrors() []error {
	var errs []error
	for _, r := range c.reports {
		if err := r.DecodeErr(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, d := range c.documents {
		if err := d.DecodeErr(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
