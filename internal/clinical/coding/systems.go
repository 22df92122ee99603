package coding

import (
	"strings"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// CodeRef is a code paired with the short name of its system.
type CodeRef struct {
	System string
	Code   string
}

// String renders "SNOMED 44054006".
func (c CodeRef) String() string {
	return c.System + " " + c.Code
}

var systemNames = []struct {
	fragment string
	name     string
}{
	{"snomed", "SNOMED"},
	{"loinc", "LOINC"},
	{"rxnorm", "RxNorm"},
	{"icd-9", "ICD-9"},
	{"icd-10", "ICD-10"},
	{"unitsofmeasure", "UCUM"},
	{"ucum", "UCUM"},
	{"cvx", "CVX"},
	{"ndc", "NDC"},
	{"cpt", "CPT"},
}

// SystemName shortens well-known code system URIs. Unknown URIs are returned
// unchanged.
func SystemName(uri string) string {
	lower := strings.ToLower(uri)
	for _, s := range systemNames {
		if strings.Contains(lower, s.fragment) {
			return s.name
		}
	}
	return uri
}

// Codes lists the codings of cc that carry both a system and a code, in
// source order.
func Codes(cc *r4.CodeableConcept) []CodeRef {
	if cc == nil {
		return nil
	}
	var refs []CodeRef
	for _, c := range cc.Coding {
		if c.System == "" || c.Code == "" {
			continue
		}
		refs = append(refs, CodeRef{System: SystemName(c.System), Code: c.Code})
	}
	return refs
}

// FormatCodes renders the codes of cc as "SNOMED 1, LOINC 2", or "".
func FormatCodes(cc *r4.CodeableConcept) string {
	refs := Codes(cc)
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
