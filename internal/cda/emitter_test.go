package cda

import (
	"encoding/base64"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

func testEmitter() *Emitter {
	e := NewEmitter("General Hospital", "2.16.840.1.113883.3.9999", "")
	e.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return e
}

func testNote() Note {
	return Note{
		DocumentID: "doc-1",
		Question:   "Any drug interactions?",
		Narrative:  "No major interactions.\nMonitor potassium.\n\nFollow up in 3 months.",
		Context:    "Patient: Ann Lee, id p1\n\nMedications:\n- Lisinopril 10 MG Oral Tablet",
		Model:      "gpt-4o-mini",
		Demographics: patientcontext.Demographics{
			PatientID: "p1",
			Name:      "Ann Lee",
			BirthDate: r4.MustDateTime("1970-03-15"),
			Gender:    coding.Gender.BindCode("female"),
			MRN:       "MRN-42",
		},
	}
}

func TestEmitBuildsConsultNote(t *testing.T) {
	doc, err := testEmitter().Emit(testNote())
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if doc.ID != "doc-1" || doc.PatientID != "p1" || doc.Title != DefaultTitle {
		t.Errorf("document = %+v", doc)
	}

	text := string(doc.XML)
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<realmCode code="US"></realmCode>`,
		`extension="POCD_HD000040"`,
		`<templateId root="2.16.840.1.113883.10.20.22.1.1"></templateId>`,
		`code="11488-4"`,
		`<effectiveTime value="20240506070809+0000"></effectiveTime>`,
		`<confidentialityCode code="N"`,
		`<id root="2.16.840.1.113883.3.9999" extension="p1"></id>`,
		`<name>Ann Lee</name>`,
		`<administrativeGenderCode code="F"`,
		`<birthTime value="19700315"></birthTime>`,
		`<manufacturerModelName>gpt-4o-mini</manufacturerModelName>`,
		`<name>General Hospital</name>`,
		`<paragraph>No major interactions. Monitor potassium.</paragraph>`,
		`<paragraph>Follow up in 3 months.</paragraph>`,
		`<paragraph>- Lisinopril 10 MG Oral Tablet</paragraph>`,
		`<title>Reason for consultation</title>`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("XML missing %s", want)
		}
	}

	var parsed ClinicalDocument
	if err := xml.Unmarshal(doc.XML, &parsed); err != nil {
		t.Fatalf("emitted XML does not parse: %v", err)
	}
	if got := len(parsed.Component.StructuredBody.Components); got != 3 {
		t.Errorf("sections = %d, want 3", got)
	}
}

func TestEmitEscapesModelOutput(t *testing.T) {
	n := testNote()
	n.Narrative = "K+ < 3.5 & falling </text><evil/>"

	doc, err := testEmitter().Emit(n)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	if strings.Contains(string(doc.XML), "<evil/>") {
		t.Error("model output was not escaped")
	}
	var parsed ClinicalDocument
	if err := xml.Unmarshal(doc.XML, &parsed); err != nil {
		t.Fatalf("emitted XML does not parse: %v", err)
	}
}

func TestEmitWithoutQuestionOrName(t *testing.T) {
	n := testNote()
	n.Question = ""
	n.Demographics.Name = ""
	n.Demographics.BirthDate = nil
	n.Demographics.Gender = coding.Concept{}

	doc, err := testEmitter().Emit(n)
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	text := string(doc.XML)
	if strings.Contains(text, "Reason for consultation") {
		t.Error("question section emitted without a question")
	}
	if !strings.Contains(text, `<name nullFlavor="UNK"></name>`) {
		t.Error("missing name should be null-flavored")
	}
	if !strings.Contains(text, `<administrativeGenderCode nullFlavor="UNK">`) {
		t.Error("missing gender should be null-flavored")
	}
}

func TestEmitRequiresPatient(t *testing.T) {
	n := testNote()
	n.Demographics.PatientID = ""
	if _, err := testEmitter().Emit(n); err != ErrNoPatient {
		t.Errorf("error = %v, want ErrNoPatient", err)
	}
}

func TestEmitDocumentReference(t *testing.T) {
	e := testEmitter()
	doc, err := e.Emit(testNote())
	if err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	ref := e.EmitDocumentReference(doc)
	if ref.ResourceType != r4.TypeDocumentReference || ref.Status != "current" {
		t.Errorf("resource = %s/%s", ref.ResourceType, ref.Status)
	}
	if ref.Type.Text != "AI Consultation Note" {
		t.Errorf("type text = %q", ref.Type.Text)
	}
	if ref.Subject.Reference != "Patient/p1" {
		t.Errorf("subject = %q", ref.Subject.Reference)
	}
	if mi := ref.MasterIdentifier; mi == nil || mi.System != r4.SystemURI || mi.Value != "urn:uuid:doc-1" {
		t.Errorf("master identifier = %+v", mi)
	}

	att := ref.Content[0].Attachment
	if att.ContentType != "text/xml" {
		t.Errorf("content type = %q", att.ContentType)
	}
	decoded, err := base64.StdEncoding.DecodeString(att.Data)
	if err != nil {
		t.Fatalf("attachment is not base64: %v", err)
	}
	if string(decoded) != string(doc.XML) {
		t.Error("attachment does not round-trip the document")
	}
}

func TestDocumentIDIsStablePerSummary(t *testing.T) {
	a, b := DocumentID("sum-1"), DocumentID("sum-1")
	if a != b {
		t.Fatalf("DocumentID not stable: %q %q", a, b)
	}
	if a == DocumentID("sum-2") {
		t.Fatal("different summaries share a document id")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("DocumentID %q is not a UUID: %v", a, err)
	}
}
