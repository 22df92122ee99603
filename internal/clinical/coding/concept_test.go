package coding

import (
	"testing"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

func TestBindKnownCode(t *testing.T) {
	c := ConditionClinicalStatus.Bind(SystemConditionClinical, "active", "Active")
	if !c.Is(Active) {
		t.Fatalf("expected bound to active, got %+v", c)
	}
	if c.Label() != "active" {
		t.Errorf("expected table label, got %q", c.Label())
	}
}

func TestBindUnknownCodeKeepsDisplay(t *testing.T) {
	c := ConditionClinicalStatus.Bind(SystemConditionClinical, "smouldering", "Smouldering (local)")
	if c.IsBound() {
		t.Fatalf("expected unbound concept, got %+v", c)
	}
	if c.Display != "Smouldering (local)" {
		t.Errorf("raw display not preserved: %q", c.Display)
	}

	c = ConditionClinicalStatus.Bind("", "xyz", "")
	if c.Label() != "xyz" {
		t.Errorf("expected code as label, got %q", c.Label())
	}
}

func TestBindWrongSystemIsUnbound(t *testing.T) {
	c := ConditionClinicalStatus.Bind("http://example.org/other", "active", "Active")
	if c.IsBound() {
		t.Fatalf("code from a foreign system must not bind: %+v", c)
	}
}

func TestBindCodeFoldsCase(t *testing.T) {
	c := MedicationRequestStatus.BindCode("On-Hold")
	if c.Bound != "on-hold" {
		t.Fatalf("expected on-hold, got %+v", c)
	}
	if c.Label() != "on hold" {
		t.Errorf("unexpected label %q", c.Label())
	}
}

func TestBindEmpty(t *testing.T) {
	if c := DeviceStatus.BindCode(""); !c.IsZero() {
		t.Fatalf("expected zero concept, got %+v", c)
	}
	if c := DeviceStatus.BindCodeable(nil); !c.IsZero() {
		t.Fatalf("expected zero concept for nil codeable, got %+v", c)
	}
}

func TestBindCodeable(t *testing.T) {
	cc := &r4.CodeableConcept{
		Coding: []r4.Coding{
			{System: "http://example.org/local", Code: "A"},
			{System: SystemConditionVerification, Code: "confirmed"},
		},
	}
	c := ConditionVerificationStatus.BindCodeable(cc)
	if !c.Is(Confirmed) {
		t.Fatalf("expected second coding to bind, got %+v", c)
	}

	cc = &r4.CodeableConcept{
		Text:   "Local status",
		Coding: []r4.Coding{{System: "http://example.org/local", Code: "A", Display: "Alpha"}},
	}
	c = ConditionVerificationStatus.BindCodeable(cc)
	if c.IsBound() || c.Display != "Local status" || c.Code != "A" {
		t.Fatalf("unexpected fallback concept %+v", c)
	}
}

func TestReadable(t *testing.T) {
	tests := []struct {
		name string
		cc   *r4.CodeableConcept
		want string
	}{
		{"nil", nil, ""},
		{"text wins", &r4.CodeableConcept{Text: "Asthma", Coding: []r4.Coding{{Display: "Other"}}}, "Asthma"},
		{"first display", &r4.CodeableConcept{Coding: []r4.Coding{{Code: "1"}, {Display: "Second"}}}, "Second"},
		{"nothing", &r4.CodeableConcept{Coding: []r4.Coding{{Code: "1"}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Readable(tt.cc); got != tt.want {
				t.Errorf("Readable() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSystemName(t *testing.T) {
	tests := map[string]string{
		r4.SystemSNOMED:                   "SNOMED",
		r4.SystemLOINC:                    "LOINC",
		r4.SystemRxNorm:                   "RxNorm",
		r4.SystemCVX:                      "CVX",
		r4.SystemUCUM:                     "UCUM",
		r4.SystemICD10:                    "ICD-10",
		"http://www.ama-assn.org/go/cpt":  "CPT",
		"http://example.org/custom-codes": "http://example.org/custom-codes",
	}
	for uri, want := range tests {
		if got := SystemName(uri); got != want {
			t.Errorf("SystemName(%q) = %q, want %q", uri, got, want)
		}
	}
}

func TestFormatCodesSkipsIncompleteCodings(t *testing.T) {
	cc := &r4.CodeableConcept{Coding: []r4.Coding{
		{System: r4.SystemSNOMED, Code: "44054006"},
		{Code: "no-system"},
		{System: r4.SystemICD10, Code: "E11.9"},
	}}
	if got := FormatCodes(cc); got != "SNOMED 44054006, ICD-10 E11.9" {
		t.Errorf("FormatCodes() = %q", got)
	}
}
