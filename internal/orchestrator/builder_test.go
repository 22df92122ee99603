package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/drfirst/go-clinctx/internal/clinical/adapter"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/domain/summary"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
	"github.com/drfirst/go-clinctx/internal/infrastructure/fhirserver"
)

const (
	conditionJSON = `{"resourceType": "Condition", "id": "c1",
		"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/condition-clinical", "code": "active"}]},
		"code": {"coding": [{"system": "http://snomed.info/sct", "code": "38341003", "display": "Hypertension"}]},
		"onsetDateTime": "2012-04-01"}`

	requestJSON = `{"resourceType": "MedicationRequest", "id": "mr1", "status": "active", "intent": "order",
		"medicationReference": {"reference": "Medication/med-1"},
		"authoredOn": "2024-01-10",
		"dosageInstruction": [{"text": "one tablet daily"}]}`

	medicationJSON = `{"resourceType": "Medication", "id": "med-1",
		"code": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "314076", "display": "lisinopril 10 MG Oral Tablet"}]}}`
)

func testPatient() *r4.Patient {
	return &r4.Patient{
		ResourceType: r4.TypePatient,
		ID:           "p1",
		Name:         []r4.HumanName{{Use: "official", Given: []string{"Ann"}, Family: "Lee"}},
		Gender:       "female",
		BirthDate:    r4.MustDateTime("1960-01-01"),
	}
}

func testSource() *fakeSource {
	return &fakeSource{
		patient: testPatient(),
		records: map[string][]string{
			r4.TypeCondition: {conditionJSON, `{"resourceType": "Condition"}`},
			// the include can repeat across pages
			r4.TypeMedicationRequest: {requestJSON, medicationJSON, medicationJSON},
		},
	}
}

func TestBuildAggregatesAndSkipsMalformed(t *testing.T) {
	src := testSource()
	b := NewBuilder(src, nil, 2, nil)

	built, err := b.Build(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(built.Skipped) != 1 || built.Skipped[0].Code != adapter.CodeMissingID {
		t.Fatalf("Skipped = %v, want one missing-id record", built.Skipped)
	}
	counts := built.SectionCounts()
	if counts[r4.TypeCondition] != 1 || counts[r4.TypeMedicationRequest] != 1 || counts[r4.TypeMedication] != 1 {
		t.Errorf("SectionCounts() = %v", counts)
	}
	if _, ok := counts[r4.TypeAllergyIntolerance]; ok {
		t.Error("empty kinds should be omitted from counts")
	}

	if !strings.Contains(built.Text, "lisinopril 10 MG Oral Tablet") {
		t.Errorf("medication reference not resolved:\n%s", built.Text)
	}
	if strings.Contains(built.Text, "Allergies") {
		t.Errorf("empty section rendered:\n%s", built.Text)
	}
	sum := sha256.Sum256([]byte(built.Text))
	if want := hex.EncodeToString(sum[:]); built.Digest != want {
		t.Errorf("Digest = %q, want SHA-256 of Text %q", built.Digest, want)
	}

	if got := src.searched[r4.TypeMedicationRequest].Get("_include"); got != "MedicationRequest:medication" {
		t.Errorf("MedicationRequest _include = %q", got)
	}
	if _, ok := src.searched[r4.TypeMedication]; ok {
		t.Error("Medication must not be searched by patient")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(testSource(), nil, 4, nil)
	first, err := b.Build(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.Build(context.Background(), "p1")
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if again.Text != first.Text || again.Digest != first.Digest {
			t.Fatalf("run %d produced a different context", i)
		}
	}
}

func TestBuildReportsRefusedKinds(t *testing.T) {
	src := testSource()
	src.errs = map[string]error{
		r4.TypeDevice: &fhirserver.StatusError{StatusCode: http.StatusBadRequest},
	}

	built, err := NewBuilder(src, nil, 0, nil).Build(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(built.Unavailable) != 1 || built.Unavailable[0] != adapter.KindDevice {
		t.Errorf("Unavailable = %v", built.Unavailable)
	}
}

func TestBuildFailsOnServerError(t *testing.T) {
	src := testSource()
	src.errs = map[string]error{
		r4.TypeObservation: &fhirserver.StatusError{StatusCode: http.StatusBadGateway},
	}

	_, err := NewBuilder(src, nil, 0, nil).Build(context.Background(), "p1")
	if StageOf(err) != summary.StageFetch {
		t.Fatalf("error = %v, want fetch stage", err)
	}
	if IsPermanent(err) {
		t.Error("502 should be retryable")
	}
}

func TestBuildMissingPatient(t *testing.T) {
	src := testSource()
	src.patientErr = &fhirserver.StatusError{StatusCode: http.StatusNotFound}

	_, err := NewBuilder(src, nil, 0, nil).Build(context.Background(), "nope")
	if !fhirserver.IsNotFound(err) {
		t.Fatalf("error = %v, want not found", err)
	}
	if !IsPermanent(err) {
		t.Error("missing patient should be permanent")
	}
}

func TestBuildEmptyDemographics(t *testing.T) {
	src := testSource()
	src.patient = &r4.Patient{ResourceType: r4.TypePatient}
	src.records = nil

	_, err := NewBuilder(src, nil, 0, nil).Build(context.Background(), "p1")
	if !errors.Is(err, patientcontext.ErrEmptyContext) {
		t.Fatalf("error = %v, want ErrEmptyContext", err)
	}
	if StageOf(err) != summary.StageContext {
		t.Errorf("stage = %q", StageOf(err))
	}
}
