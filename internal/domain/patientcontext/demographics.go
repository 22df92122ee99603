package patientcontext

import (
	"strconv"
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Demographics is the identifying part of a patient context.
type Demographics struct {
	PatientID  string
	Name       string
	BirthDate  *r4.DateTime
	Gender     coding.Concept
	MRN        string
	Deceased   bool
	DeceasedAt *r4.DateTime
}

// DemographicsFromPatient extracts demographics from a Patient record.
// A nil patient yields empty demographics.
func DemographicsFromPatient(p *r4.Patient) Demographics {
	if p == nil {
		return Demographics{}
	}
	return Demographics{
		PatientID:  p.ID,
		Name:       strings.Join(strings.Fields(p.GetFullName()), " "),
		BirthDate:  p.BirthDate,
		Gender:     coding.Gender.BindCode(p.Gender),
		MRN:        p.GetMRN(),
		Deceased:   p.IsDeceased(),
		DeceasedAt: p.DeceasedDateTime,
	}
}

// IsEmpty reports whether no demographic element is available at all.
func (d Demographics) IsEmpty() bool {
	return d.PatientID == "" &&
		d.Name == "" &&
		d.BirthDate.IsZero() &&
		d.Gender.IsZero() &&
		d.MRN == "" &&
		!d.Deceased
}

// AgeAt returns the age in whole years at ref. ok is false when either date is
// missing or ref precedes the birth date.
func (d Demographics) AgeAt(ref *r4.DateTime) (age int, ok bool) {
	if d.BirthDate.IsZero() || ref.IsZero() {
		return 0, false
	}
	b, r := d.BirthDate.Time, ref.Time
	age = r.Year() - b.Year()
	if r.Month() < b.Month() || (r.Month() == b.Month() && r.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// line renders the demographics fragment. asOf is the last interaction date
// the age is computed against; it may be nil.
func (d Demographics) line(asOf *r4.DateTime) string {
	name := d.Name
	if name == "" {
		name = "name not recorded"
	}
	parts := []string{"Patient: " + name}
	if d.PatientID != "" {
		parts = append(parts, "id "+d.PatientID)
	}
	if d.MRN != "" {
		parts = append(parts, "MRN "+d.MRN)
	}
	if sex := d.Gender.Label(); sex != "" {
		parts = append(parts, "sex "+sex)
	}
	if born := d.BirthDate.Date(); born != "" {
		parts = append(parts, "born "+born)
	}
	switch {
	case !d.DeceasedAt.IsZero():
		if age, ok := d.AgeAt(d.DeceasedAt); ok {
			parts = append(parts, "age "+strconv.Itoa(age)+" at death")
		}
	case !d.Deceased:
		if age, ok := d.AgeAt(asOf); ok {
			parts = append(parts, "age "+strconv.Itoa(age)+" as of "+asOf.Date())
		}
	}
	if d.Deceased {
		if at := d.DeceasedAt.Date(); at != "" {
			parts = append(parts, "deceased "+at)
		} else {
			parts = append(parts, "deceased")
		}
	}
	return strings.Join(parts, "; ")
}
