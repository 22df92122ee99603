package adapter

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const diabetesCondition = `{
	"resourceType": "Condition",
	"id": "cond-1",
	"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/condition-clinical", "code": "active"}]},
	"code": {"coding": [{"system": "http://snomed.info/sct", "code": "44054006", "display": "Type 2 diabetes mellitus"}]},
	"subject": {"reference": "Patient/p1"}
}`

func TestConditionPromptText(t *testing.T) {
	c, err := ParseCondition([]byte(diabetesCondition))
	if err != nil {
		t.Fatalf("ParseCondition failed: %v", err)
	}

	want := "Active condition: Type 2 diabetes mellitus (SNOMED 44054006)"
	if got := c.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
	if !c.IsActive() {
		t.Error("expected active condition")
	}
	if c.ID() != "cond-1" {
		t.Errorf("expected id cond-1, got %s", c.ID())
	}
}

func TestConditionOptionalFields(t *testing.T) {
	c, err := ParseCondition([]byte(`{
		"resourceType": "Condition",
		"id": "cond-2",
		"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/condition-clinical", "code": "resolved"}]},
		"verificationStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/condition-ver-status", "code": "unconfirmed"}]},
		"code": {"text": "Acute bronchitis"},
		"onsetDateTime": "2019-03",
		"abatementDateTime": "2019-04-02T10:00:00-05:00"
	}`))
	if err != nil {
		t.Fatalf("ParseCondition failed: %v", err)
	}

	want := "Resolved condition: Acute bronchitis; verification unconfirmed; onset 2019-03; abated 2019-04-02"
	if got := c.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
}

func TestConditionWithoutStatusOrCode(t *testing.T) {
	c, err := ParseCondition([]byte(`{"resourceType": "Condition", "id": "cond-3"}`))
	if err != nil {
		t.Fatalf("ParseCondition failed: %v", err)
	}
	if got := c.PromptText(); got != "Condition: Unknown condition" {
		t.Errorf("unexpected fragment %q", got)
	}
	if c.Onset() != nil {
		t.Error("onset must not be fabricated")
	}
}

func TestSloppyOptionalFieldsDegrade(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "free text onset",
			data: `{"resourceType": "Condition", "id": "c9", "code": {"text": "Asthma"}, "onsetDateTime": "sometime in 2019"}`,
			want: "Condition: Asthma; onset sometime in 2019",
		},
		{
			name: "minute precision with zone",
			data: `{"resourceType": "Condition", "id": "c10", "code": {"text": "Asthma"}, "onsetDateTime": "2019-03-01T10:00Z"}`,
			want: "Condition: Asthma; onset 2019-03-01",
		},
		{
			name: "numeric date",
			data: `{"resourceType": "Condition", "id": "c11", "code": {"text": "Resolved diabetes"}, "abatementDateTime": 2019}`,
			want: "Condition: Resolved diabetes; abated 2019",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseCondition([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseCondition failed: %v", err)
			}
			if got := c.PromptText(); got != tt.want {
				t.Errorf("PromptText() = %q, want %q", got, tt.want)
			}
		})
	}

	req, err := ParseMedicationRequest([]byte(`{
		"resourceType": "MedicationRequest",
		"id": "mr-9",
		"status": "active",
		"medicationCodeableConcept": {"text": "albuterol"},
		"authoredOn": "last spring",
		"dosageInstruction": [{"timing": {"repeat": {"frequency": 2.0, "period": 1, "periodUnit": "d"}}}]
	}`))
	if err != nil {
		t.Fatalf("ParseMedicationRequest failed: %v", err)
	}
	got := req.PromptText()
	if !strings.Contains(got, "twice daily") {
		t.Errorf("frequency 2.0 not rendered: %q", got)
	}
	if strings.Contains(got, "authored") {
		t.Errorf("unparseable authoredOn should be omitted: %q", got)
	}
}

func TestMalformedRecords(t *testing.T) {
	tests := []struct {
		name string
		data string
		code string
	}{
		{"missing id", `{"resourceType": "Condition"}`, CodeMissingID},
		{"wrong type", `{"resourceType": "Observation", "id": "x"}`, CodeTypeMismatch},
		{"not json", `{"resourceType": `, CodeInvalidJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCondition([]byte(tt.data))
			if !errors.Is(err, ErrMalformedRecord) {
				t.Fatalf("expected malformed record error, got %v", err)
			}
			var mre *MalformedRecordError
			if !errors.As(err, &mre) {
				t.Fatalf("expected *MalformedRecordError, got %T", err)
			}
			if mre.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, mre.Code)
			}
		})
	}

	if _, err := NewCondition(nil); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected malformed record for nil input, got %v", err)
	}
}

func TestParseDispatch(t *testing.T) {
	r, err := Parse([]byte(diabetesCondition))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if r.Kind() != KindCondition {
		t.Errorf("expected Condition kind, got %s", r.Kind())
	}
	if _, ok := r.(*Condition); !ok {
		t.Errorf("expected *Condition, got %T", r)
	}

	_, err = Parse([]byte(`{"resourceType": "Encounter", "id": "e1"}`))
	var mre *MalformedRecordError
	if !errors.As(err, &mre) || mre.Code != CodeUnsupportedKind {
		t.Errorf("expected unsupported kind error, got %v", err)
	}
}

func TestPromptTextIsDeterministic(t *testing.T) {
	records := []string{
		diabetesCondition,
		`{"resourceType": "Observation", "id": "o1", "status": "final",
		  "code": {"text": "Heart rate"}, "valueQuantity": {"value": 72, "unit": "/min"}}`,
		`{"resourceType": "CarePlan", "id": "cp1", "status": "active", "intent": "plan",
		  "activity": [{"detail": {"code": {"text": "Exercise"}, "status": "in-progress"}}]}`,
	}
	for _, data := range records {
		r, err := Parse([]byte(data))
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		first := r.PromptText()
		for i := 0; i < 5; i++ {
			if got := r.PromptText(); got != first {
				t.Fatalf("PromptText not deterministic: %q vs %q", first, got)
			}
		}
		if strings.Contains(first, "\n") {
			t.Errorf("fragment spans lines: %q", first)
		}
	}
}

func TestAllergyHighRisk(t *testing.T) {
	a, err := ParseAllergyIntolerance([]byte(`{
		"resourceType": "AllergyIntolerance",
		"id": "al-1",
		"clinicalStatus": {"coding": [{"system": "http://terminology.hl7.org/CodeSystem/allergyintolerance-clinical", "code": "active"}]},
		"type": "allergy",
		"category": ["medication"],
		"criticality": "high",
		"code": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "7984", "display": "Penicillin V"}]},
		"reaction": [{"manifestation": [{"text": "Hives"}], "severity": "moderate"}]
	}`))
	if err != nil {
		t.Fatalf("ParseAllergyIntolerance failed: %v", err)
	}

	want := "Allergy to Penicillin V (RxNorm 7984); category medication; criticality high (HIGH RISK); clinical status active; reactions Hives (moderate)"
	if got := a.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
	if !a.IsHighRisk() {
		t.Error("expected high risk")
	}
}

func TestCarePlanActivitiesDeduplicated(t *testing.T) {
	p, err := ParseCarePlan([]byte(`{
		"resourceType": "CarePlan",
		"id": "cp-1",
		"status": "active",
		"intent": "order",
		"category": [
			{"coding": [{"system": "http://snomed.info/sct", "code": "734163000", "display": "Care plan"}]},
			{"coding": [{"system": "http://snomed.info/sct", "code": "698360004", "display": "Diabetes self management plan"}], "text": "Diabetes self management plan"}
		],
		"period": {"start": "2020-01-01"},
		"activity": [
			{"detail": {"code": {"coding": [{"system": "http://snomed.info/sct", "code": "160670007", "display": "Diabetic diet"}]}, "status": "in-progress"}},
			{"detail": {"code": {"coding": [{"system": "http://snomed.info/sct", "code": "160670007", "display": "Diabetic diet"}]}, "status": "in-progress"}},
			{"detail": {"code": {"text": "Exercise"}, "status": "unknown-local"}}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseCarePlan failed: %v", err)
	}

	want := "Care plan: Diabetes self management plan (SNOMED 698360004); status active; intent order; " +
		"period 2020-01-01 to ongoing; activities Diabetic diet (SNOMED 160670007, in progress), Exercise (unknown-local)"
	if got := p.PromptText(); got != want {
		t.Errorf("PromptText() =\n%q\nwant\n%q", got, want)
	}
	if len(p.Activities()) != 2 {
		t.Errorf("expected 2 activities, got %d", len(p.Activities()))
	}
}

func TestProcedurePeriod(t *testing.T) {
	p, err := ParseProcedure([]byte(`{
		"resourceType": "Procedure",
		"id": "pr-1",
		"status": "completed",
		"code": {"coding": [{"system": "http://snomed.info/sct", "code": "80146002", "display": "Appendectomy"}]},
		"performedPeriod": {"start": "2019-06-01T08:00:00Z", "end": "2019-06-02T09:00:00Z"}
	}`))
	if err != nil {
		t.Fatalf("ParseProcedure failed: %v", err)
	}

	want := "Procedure: Appendectomy (SNOMED 80146002); status completed; performed 2019-06-01 to 2019-06-02"
	if got := p.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
	if got := p.InteractionDate().Date(); got != "2019-06-02" {
		t.Errorf("expected end as interaction date, got %s", got)
	}
}

func TestDeviceImplantStatus(t *testing.T) {
	tests := []struct {
		name   string
		status string
		want   string
	}{
		{"active", `"status": "active",`, "implant status: currently implanted"},
		{"inactive", `"status": "inactive",`, "implant status: removed or inactive"},
		{"missing", ``, "implant status: unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseDevice([]byte(`{
				"resourceType": "Device",
				"id": "dev-1",
				` + tt.status + `
				"deviceName": [{"name": "Xience", "type": "user-friendly-name"}],
				"type": {"coding": [{"system": "http://snomed.info/sct", "code": "705643001", "display": "Coronary artery stent"}]}
			}`))
			if err != nil {
				t.Fatalf("ParseDevice failed: %v", err)
			}
			text := d.PromptText()
			if !strings.HasPrefix(text, "Device: Coronary artery stent (Xience) (SNOMED 705643001)") {
				t.Errorf("unexpected head: %q", text)
			}
			if !strings.Contains(text, tt.want) {
				t.Errorf("expected %q in %q", tt.want, text)
			}
		})
	}
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestDiagnosticReportDecodesPresentedForm(t *testing.T) {
	note := "Chief complaint: cough\n\n  Assessment: bronchitis \nAssessment: bronchitis\nPlan: rest\n"
	r, err := ParseDiagnosticReport([]byte(`{
		"resourceType": "DiagnosticReport",
		"id": "dr-1",
		"status": "final",
		"code": {"coding": [{"system": "http://loinc.org", "code": "34117-2", "display": "History and physical note"}]},
		"effectiveDateTime": "2021-02-03T10:00:00Z",
		"presentedForm": [
			{"contentType": "application/pdf", "data": "JVBERi0="},
			{"contentType": "text/plain; charset=utf-8", "data": "` + b64(note) + `"}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseDiagnosticReport failed: %v", err)
	}
	if r.DecodeErr() != nil {
		t.Fatalf("unexpected decode error: %v", r.DecodeErr())
	}

	want := "Diagnostic report: History and physical note (LOINC 34117-2); status final; effective 2021-02-03; " +
		"text Chief complaint: cough | Assessment: bronchitis | Plan: rest"
	if got := r.PromptText(); got != want {
		t.Errorf("PromptText() =\n%q\nwant\n%q", got, want)
	}
}

func TestDiagnosticReportConclusionWins(t *testing.T) {
	r, err := ParseDiagnosticReport([]byte(`{
		"resourceType": "DiagnosticReport",
		"id": "dr-2",
		"status": "final",
		"code": {"text": "Lipid panel"},
		"conclusion": "LDL elevated",
		"presentedForm": [{"contentType": "text/plain", "data": "` + b64("ignored") + `"}]
	}`))
	if err != nil {
		t.Fatalf("ParseDiagnosticReport failed: %v", err)
	}
	if r.Text() != "LDL elevated" {
		t.Errorf("expected conclusion text, got %q", r.Text())
	}
}

func TestUndecodablePayloadUsesPlaceholder(t *testing.T) {
	r, err := ParseDiagnosticReport([]byte(`{
		"resourceType": "DiagnosticReport",
		"id": "dr-3",
		"status": "final",
		"code": {"text": "Progress note"},
		"presentedForm": [{"contentType": "text/plain", "data": "%%%not-base64%%%"}]
	}`))
	if err != nil {
		t.Fatalf("construction must not fail on a bad payload: %v", err)
	}
	if !errors.Is(r.DecodeErr(), ErrPayloadDecode) {
		t.Fatalf("expected payload decode error, got %v", r.DecodeErr())
	}
	if !strings.Contains(r.PromptText(), "content unavailable") {
		t.Errorf("expected placeholder in %q", r.PromptText())
	}

	d, err := ParseDocumentReference([]byte(`{
		"resourceType": "DocumentReference",
		"id": "doc-1",
		"status": "current",
		"content": [{"attachment": {"contentType": "text/plain", "data": "` +
		base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd}) + `"}}]
	}`))
	if err != nil {
		t.Fatalf("ParseDocumentReference failed: %v", err)
	}
	var pde *PayloadDecodeError
	if !errors.As(d.DecodeErr(), &pde) || pde.Code != CodeNotText {
		t.Fatalf("expected NOT_TEXT payload error, got %v", d.DecodeErr())
	}
	if d.Text() != ContentUnavailable {
		t.Errorf("expected placeholder text, got %q", d.Text())
	}
}

func TestDocumentReference(t *testing.T) {
	d, err := ParseDocumentReference([]byte(`{
		"resourceType": "DocumentReference",
		"id": "doc-2",
		"status": "current",
		"type": {"coding": [{"system": "http://loinc.org", "code": "34117-2", "display": "History and physical note"}]},
		"date": "2020-05-05T12:00:00Z",
		"content": [{"attachment": {"contentType": "text/plain", "data": "` + b64("Patient doing well.") + `"}}]
	}`))
	if err != nil {
		t.Fatalf("ParseDocumentReference failed: %v", err)
	}
	want := "Document: History and physical note (LOINC 34117-2); status current; date 2020-05-05; text Patient doing well."
	if got := d.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
}

func TestObservationValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{
			name: "quantity",
			data: `{"resourceType": "Observation", "id": "o1", "status": "final",
				"category": [{"coding": [{"system": "http://terminology.hl7.org/CodeSystem/observation-category", "code": "vital-signs"}]}],
				"code": {"coding": [{"system": "http://loinc.org", "code": "29463-7", "display": "Body Weight"}]},
				"effectiveDateTime": "2020-01-01T09:30:00Z",
				"valueQuantity": {"value": 80.50, "unit": "kg"}}`,
			want: "Observation: Body Weight (LOINC 29463-7): 80.5 kg; category vital signs; status final; effective 2020-01-01",
		},
		{
			name: "components",
			data: `{"resourceType": "Observation", "id": "o2", "status": "final",
				"code": {"text": "Blood pressure panel"},
				"component": [
					{"code": {"text": "Systolic blood pressure"}, "valueQuantity": {"value": 120, "unit": "mm[Hg]"}},
					{"code": {"text": "Diastolic blood pressure"}, "valueQuantity": {"value": 80, "unit": "mm[Hg]"}}
				]}`,
			want: "Observation: Blood pressure panel: Systolic blood pressure: 120 mm[Hg], Diastolic blood pressure: 80 mm[Hg]; status final",
		},
		{
			name: "coded",
			data: `{"resourceType": "Observation", "id": "o3", "status": "final",
				"code": {"text": "Tobacco smoking status"},
				"valueCodeableConcept": {"text": "Never smoker"}}`,
			want: "Observation: Tobacco smoking status: Never smoker; status final",
		},
		{
			name: "no value",
			data: `{"resourceType": "Observation", "id": "o4", "code": {"text": "Pain severity"}}`,
			want: "Observation: Pain severity: no value recorded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ParseObservation([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseObservation failed: %v", err)
			}
			if got := o.PromptText(); got != tt.want {
				t.Errorf("PromptText() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestImmunization(t *testing.T) {
	i, err := ParseImmunization([]byte(`{
		"resourceType": "Immunization",
		"id": "im-1",
		"status": "completed",
		"vaccineCode": {"coding": [{"system": "http://hl7.org/fhir/sid/cvx", "code": "140", "display": "Influenza, seasonal, injectable, preservative free"}]},
		"occurrenceDateTime": "2021-10-01T10:00:00Z"
	}`))
	if err != nil {
		t.Fatalf("ParseImmunization failed: %v", err)
	}
	want := "Immunization: Influenza, seasonal, injectable, preservative free (CVX 140); status completed; administered 2021-10-01"
	if got := i.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}
}

func TestMedicationRequestResolution(t *testing.T) {
	req, err := ParseMedicationRequest([]byte(`{
		"resourceType": "MedicationRequest",
		"id": "mr-1",
		"status": "active",
		"intent": "order",
		"medicationReference": {"reference": "Medication/med-1", "display": "metformin"},
		"authoredOn": "2020-02-01T08:00:00Z",
		"dosageInstruction": [{"text": "take with food"}]
	}`))
	if err != nil {
		t.Fatalf("ParseMedicationRequest failed: %v", err)
	}
	if req.MedicationReferenceID() != "med-1" {
		t.Fatalf("expected reference id med-1, got %s", req.MedicationReferenceID())
	}

	want := "Medication: metformin; dosage take with food; status active; intent order; authored 2020-02-01"
	if got := req.PromptText(); got != want {
		t.Errorf("PromptText() = %q, want %q", got, want)
	}

	med, err := ParseMedication([]byte(`{
		"resourceType": "Medication",
		"id": "med-1",
		"code": {"coding": [{"system": "http://www.nlm.nih.gov/research/umls/rxnorm", "code": "860975", "display": "24 HR Metformin hydrochloride 500 MG Extended Release Oral Tablet"}]}
	}`))
	if err != nil {
		t.Fatalf("ParseMedication failed: %v", err)
	}
	want = "Medication: 24 HR Metformin hydrochloride 500 MG Extended Release Oral Tablet (RxNorm 860975); " +
		"dosage take with food; status active; intent order; authored 2020-02-01"
	if got := req.PromptTextWith(med); got != want {
		t.Errorf("PromptTextWith() =\n%q\nwant\n%q", got, want)
	}
}
