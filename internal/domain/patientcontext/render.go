package patientcontext

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/adapter"
)

// Section titles, in rendering order.
const (
	SectionDemographics      = "Demographics"
	SectionProblems          = "Problems"
	SectionMedications       = "Medications"
	SectionAllergies         = "Allergies"
	SectionObservations      = "Observations"
	SectionProcedures        = "Procedures"
	SectionImmunizations     = "Immunizations"
	SectionDevices           = "Devices"
	SectionCarePlans         = "Care Plans"
	SectionDiagnosticReports = "Diagnostic Reports"
	SectionDocuments         = "Documents"
)

type section struct {
	title string
	lines func(c *PatientContext) []string
}

var sections = []section{
	{SectionDemographics, func(c *PatientContext) []string {
		return []string{c.demographics.line(c.LastInteractionDate())}
	}},
	{SectionProblems, func(c *PatientContext) []string { return render(c.conditions) }},
	{SectionMedications, (*PatientContext).medicationLines},
	{SectionAllergies, func(c *PatientContext) []string { return render(c.allergies) }},
	{SectionObservations, func(c *PatientContext) []string { return render(c.observations) }},
	{SectionProcedures, func(c *PatientContext) []string { return render(c.procedures) }},
	{SectionImmunizations, func(c *PatientContext) []string { return render(c.immunizations) }},
	{SectionDevices, func(c *PatientContext) []string { return render(c.devices) }},
	{SectionCarePlans, func(c *PatientContext) []string { return render(c.carePlans) }},
	{SectionDiagnosticReports, func(c *PatientContext) []string { return render(c.reports) }},
	{SectionDocuments, func(c *PatientContext) []string { return render(c.documents) }},
}

func render[T adapter.Resource](rs []T) []string {
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = r.PromptText()
	}
	return lines
}

// medicationLines renders each request, naming the Medication its reference
// resolves to, then every Medication no request refers to.
func (c *PatientContext) medicationLines() []string {
	lines := make([]string, 0, len(c.medicationRequests)+len(c.medications))
	referenced := make(map[string]bool)
	for _, req := range c.medicationRequests {
		med := c.Medication(req.MedicationReferenceID())
		if med != nil {
			referenced[med.ID()] = true
		}
		lines = append(lines, req.PromptTextWith(med))
	}
	for _, m := range c.medications {
		if !referenced[m.ID()] {
			lines = append(lines, m.PromptText())
		}
	}
	return lines
}

// GenerateClinicalContext renders the context as plain text. Sections appear
// in a fixed order; a section's title is written only when it has records, and
// each record contributes one "- " line in insertion order. Repeated calls on
// an unchanged context return identical text.
func (c *PatientContext) GenerateClinicalContext() (string, error) {
	if c.demographics.IsEmpty() {
		return "", &EmptyContextError{
			Field:   "demographics",
			Code:    "EMPTY_CONTEXT",
			Message: "patient demographics are unavailable",
		}
	}

	var b strings.Builder
	for _, s := range sections {
		lines := s.lines(c)
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.title)
		b.WriteString("\n")
		for _, line := range lines {
			b.WriteString("- ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

// Digest returns the hex SHA-256 of the generated context. It identifies a
// context for caching and de-duplication.
func (c *PatientContext) Digest() (string, error) {
	text, err := c.GenerateClinicalContext()
	if err != nil {
		return "", err
	}
	return DigestText(text), nil
}

// DigestText returns the hex SHA-256 of rendered context text.
func DigestText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
