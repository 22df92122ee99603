// Package cda renders consultation notes as HL7 CDA R2 documents and wraps
// them in FHIR DocumentReference resources.
package cda

import (
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/domain/patientcontext"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// DefaultTitle is used when a note has no title.
const DefaultTitle = "AI Consultation Note"

// MediaType of emitted documents.
const MediaType = "text/xml"

var ErrNoPatient = errors.New("cda: patient id is required")

// Note is the content of one consultation note
type Note struct {
	DocumentID   string
	Title        string
	Question     string
	Narrative    string
	Context      string
	Model        string
	Demographics patientcontext.Demographics
}

// Document is a rendered CDA document
type Document struct {
	ID        string
	PatientID string
	Title     string
	XML       []byte
	CreatedAt time.Time
}

// Emitter builds CDA documents. It holds only immutable configuration and
// is safe for concurrent use.
type Emitter struct {
	orgName  string
	orgOID   string
	software string
	now      func() time.Time
}

// NewEmitter creates an emitter for the custodian organization
func NewEmitter(orgName, orgOID, software string) *Emitter {
	if software == "" {
		software = "clinctx"
	}
	return &Emitter{
		orgName:  orgName,
		orgOID:   orgOID,
		software: software,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Emit renders the note as a CDA XML document
func (e *Emitter) Emit(n Note) (*Document, error) {
	if n.Demographics.PatientID == "" {
		return nil, ErrNoPatient
	}
	if n.DocumentID == "" {
		n.DocumentID = uuid.New().String()
	}
	if n.Title == "" {
		n.Title = DefaultTitle
	}

	now := e.now()
	doc := e.build(n, now)

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cda: marshal: %w", err)
	}

	data := make([]byte, 0, len(xml.Header)+len(out))
	data = append(data, xml.Header...)
	data = append(data, out...)

	return &Document{
		ID:        n.DocumentID,
		PatientID: n.Demographics.PatientID,
		Title:     n.Title,
		XML:       data,
		CreatedAt: now,
	}, nil
}

func (e *Emitter) build(n Note, now time.Time) *ClinicalDocument {
	doc := &ClinicalDocument{
		XSI:       XSINamespace,
		RealmCode: &Code{Code: "US"},
		TypeID: &TypeID{
			Root:      OIDTypeID,
			Extension: "POCD_HD000040",
		},
		TemplateIDs: []TemplateID{{Root: OIDUSRealmHeader}},
		ID:          &InstanceID{Root: e.rootOID(), Extension: n.DocumentID},
		Code: &Code{
			Code:           LOINCConsultNote,
			CodeSystem:     OIDLOINC,
			CodeSystemName: "LOINC",
			DisplayName:    "Consult note",
		},
		Title:         n.Title,
		EffectiveTime: &TimeValue{Value: formatHL7Time(now)},
		ConfidentialityCode: &Code{
			Code:       "N",
			CodeSystem: OIDConfidentiality,
		},
		LanguageCode: &Code{Code: "en-US"},
		RecordTarget: buildRecordTarget(e.rootOID(), n.Demographics),
		Author:       e.buildAuthor(n.Model, now),
		Custodian: &Custodian{
			AssignedCustodian: &AssignedCustodian{
				RepresentedCustodianOrganization: e.organization(),
			},
		},
	}

	var sections []SectionComponent
	if q := strings.TrimSpace(n.Question); q != "" {
		sections = append(sections, section(LOINCReasonReferral, "Reason for consultation", paragraphs(q, false)))
	}
	sections = append(sections,
		section(LOINCAssessment, "Assessment", paragraphs(n.Narrative, false)),
		section(LOINCHistoryGeneral, "Clinical context", paragraphs(n.Context, true)),
	)
	doc.Component = &Component{StructuredBody: &StructuredBody{Components: sections}}

	return doc
}

func (e *Emitter) rootOID() string {
	if e.orgOID != "" {
		return e.orgOID
	}
	return "2.25"
}

func (e *Emitter) organization() *Organization {
	org := &Organization{IDs: []InstanceID{{Root: e.rootOID()}}}
	if e.orgName != "" {
		org.Names = []string{e.orgName}
	}
	return org
}

func (e *Emitter) buildAuthor(model string, now time.Time) *Author {
	return &Author{
		Time: &TimeValue{Value: formatHL7Time(now)},
		AssignedAuthor: &AssignedAuthor{
			ID: &InstanceID{Root: e.rootOID(), Extension: e.software},
			AssignedAuthoringDevice: &AuthoringDevice{
				ManufacturerModelName: model,
				SoftwareName:          e.software,
			},
			RepresentedOrganization: e.organization(),
		},
	}
}

func buildRecordTarget(root string, d patientcontext.Demographics) *RecordTarget {
	role := &PatientRole{IDs: []InstanceID{{Root: root, Extension: d.PatientID}}}
	if d.MRN != "" {
		role.IDs = append(role.IDs, InstanceID{Root: root + ".1", Extension: d.MRN})
	}

	p := &Patient{
		Name:                     &Name{Text: d.Name},
		AdministrativeGenderCode: genderCode(d.Gender),
		BirthTime:                &TimeValue{Value: formatHL7Date(d.BirthDate)},
	}
	if d.Name == "" {
		p.Name = &Name{NullFlavor: "UNK"}
	}
	if p.BirthTime.Value == "" {
		p.BirthTime = &TimeValue{NullFlavor: "UNK"}
	}
	role.Patient = p

	return &RecordTarget{PatientRole: role}
}

func genderCode(g coding.Concept) *Code {
	code := &Code{CodeSystem: OIDAdminGender}
	switch g.Bound {
	case "male":
		code.Code, code.DisplayName = "M", "Male"
	case "female":
		code.Code, code.DisplayName = "F", "Female"
	case "other", "unknown":
		code.Code, code.DisplayName = "UN", "Undifferentiated"
	default:
		return &Code{NullFlavor: "UNK"}
	}
	return code
}

func section(loinc, title string, text *Narrative) SectionComponent {
	return SectionComponent{Section: &Section{
		Code:  &Code{Code: loinc, CodeSystem: OIDLOINC, CodeSystemName: "LOINC"},
		Title: title,
		Text:  text,
	}}
}

// paragraphs splits text into paragraphs. With perLine each non-blank line
// is its own paragraph; otherwise blank lines separate paragraphs.
func paragraphs(text string, perLine bool) *Narrative {
	var out []string
	if perLine {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				out = append(out, line)
			}
		}
	} else {
		var cur []string
		flush := func() {
			if len(cur) > 0 {
				out = append(out, strings.Join(cur, " "))
				cur = cur[:0]
			}
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				flush()
				continue
			}
			cur = append(cur, line)
		}
		flush()
	}
	if len(out) == 0 {
		out = []string{"No information available."}
	}
	return &Narrative{Paragraphs: out}
}

func formatHL7Time(t time.Time) string {
	return t.UTC().Format("20060102150405") + "+0000"
}

func formatHL7Date(d *r4.DateTime) string {
	if d.IsZero() {
		return ""
	}
	switch d.Precision {
	case r4.PrecisionYear:
		return d.Time.Format("2006")
	case r4.PrecisionMonth:
		return d.Time.Format("200601")
	default:
		return d.Time.Format("20060102")
	}
}

// DocumentIdentifier is the master identifier of the DocumentReference for a
// document id.
func DocumentIdentifier(documentID string) *r4.Identifier {
	return &r4.Identifier{System: r4.SystemURI, Value: "urn:uuid:" + documentID}
}

// DocumentID derives a stable document id from the summary it belongs to, so
// every attempt at a summary emits under the same id.
func DocumentID(summaryID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:clinctx:summary:"+summaryID)).String()
}

// EmitDocumentReference wraps a rendered document into a DocumentReference
// whose single attachment carries the XML base64-encoded.
func (e *Emitter) EmitDocumentReference(doc *Document) *r4.DocumentReference {
	created := &r4.DateTime{Time: doc.CreatedAt, Precision: r4.PrecisionTime}
	return &r4.DocumentReference{
		ResourceType:     r4.TypeDocumentReference,
		MasterIdentifier: DocumentIdentifier(doc.ID),
		Status:           "current",
		DocStatus:        "final",
		Type: &r4.CodeableConcept{
			Coding: []r4.Coding{{System: r4.SystemLOINC, Code: LOINCConsultNote, Display: "Consult note"}},
			Text:   DefaultTitle,
		},
		Subject:     &r4.Reference{Reference: "Patient/" + doc.PatientID},
		Date:        created,
		Description: doc.Title,
		Content: []r4.DocumentReferenceContent{{
			Attachment: r4.Attachment{
				ContentType: MediaType,
				Data:        base64.StdEncoding.EncodeToString(doc.XML),
				Size:        r4.Integer(len(doc.XML)),
				Title:       doc.Title + ".xml",
				Creation:    created,
			},
		}},
	}
}
