package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// DiagnosticReport is a report with an optional narrative, such as a lab panel
// or a clinical note rendered as text/plain.
type DiagnosticReport struct {
	base
	status    coding.Concept
	category  string
	name      string
	codeText  string
	effective *r4.DateTime
	text      string
	decodeErr error
}

// ParseDiagnosticReport decodes and adapts a DiagnosticReport record.
func ParseDiagnosticReport(data []byte) (*DiagnosticReport, error) {
	rec, err := decode[r4.DiagnosticReport](KindDiagnosticReport, data)
	if err != nil {
		return nil, err
	}
	return NewDiagnosticReport(rec)
}

// NewDiagnosticReport adapts a DiagnosticReport record. The narrative comes from
// the conclusion, else from the first decodable text/plain presentedForm.
// An undecodable payload does not fail construction; see DecodeErr.
func NewDiagnosticReport(rec *r4.DiagnosticReport) (*DiagnosticReport, error) {
	if rec == nil {
		return nil, nilRecord(KindDiagnosticReport)
	}
	if err := checkIdentity(KindDiagnosticReport, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	r := &DiagnosticReport{
		base:      base{id: rec.ID},
		status:    coding.DiagnosticReportStatus.BindCode(rec.Status),
		category:  oneLine(coding.ReadableAll(rec.Category)),
		name:      nameOf(rec.Code, "Unspecified report"),
		codeText:  coding.FormatCodes(rec.Code),
		effective: rec.Effective(),
	}
	if conclusion := cleanText(rec.Conclusion); conclusion != "" {
		r.text = conclusion
	} else {
		r.text, r.decodeErr = embeddedText(KindDiagnosticReport, rec.ID, rec.PresentedForm, isPlainText)
	}
	return r, nil
}

func (r *DiagnosticReport) Kind() Kind { return KindDiagnosticReport }

// Status returns the bound report status.
func (r *DiagnosticReport) Status() coding.Concept { return r.status }

// Name returns the readable report name.
func (r *DiagnosticReport) Name() string { return r.name }

// Effective returns the clinically relevant date, or nil.
func (r *DiagnosticReport) Effective() *r4.DateTime { return r.effective }

// Text returns the cleaned narrative, the placeholder, or "".
func (r *DiagnosticReport) Text() string { return r.text }

// DecodeErr returns the *PayloadDecodeError hit while decoding the narrative.
func (r *DiagnosticReport) DecodeErr() error { return r.decodeErr }

func (r *DiagnosticReport) InteractionDate() *r4.DateTime { return r.effective }

// PromptText renders the report header details followed by its narrative.
func (r *DiagnosticReport) PromptText() string {
	return fragment(named("Diagnostic report", r.name, r.codeText),
		detail("status", r.status.Label()),
		detail("category", r.category),
		detail("effective", r.effective.Date()),
		detail("text", r.text),
	)
}
