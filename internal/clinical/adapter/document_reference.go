package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// DocumentReference is a clinical document with embedded text content.
type DocumentReference struct {
	base
	status      coding.Concept
	name        string
	codeText    string
	description string
	date        *r4.DateTime
	text        string
	decodeErr   error
}

// ParseDocumentReference decodes and adapts a DocumentReference record.
func ParseDocumentReference(data []byte) (*DocumentReference, error) {
	rec, err := decode[r4.DocumentReference](KindDocumentReference, data)
	if err != nil {
		return nil, err
	}
	return NewDocumentReference(rec)
}

// NewDocumentReference adapts a DocumentReference record. Text comes from the
// first decodable text/* attachment.
func NewDocumentReference(rec *r4.DocumentReference) (*DocumentReference, error) {
	if rec == nil {
		return nil, nilRecord(KindDocumentReference)
	}
	if err := checkIdentity(KindDocumentReference, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	d := &DocumentReference{
		base:        base{id: rec.ID},
		status:      coding.DocumentReferenceStatus.BindCode(rec.Status),
		description: oneLine(rec.Description),
		date:        rec.Date,
	}
	switch {
	case coding.Readable(rec.Type) != "":
		d.name = oneLine(coding.Readable(rec.Type))
		d.codeText = coding.FormatCodes(rec.Type)
	case coding.ReadableAll(rec.Category) != "":
		d.name = oneLine(coding.ReadableAll(rec.Category))
	case d.description != "":
		d.name = d.description
		d.description = ""
	default:
		d.name = "Clinical document"
	}

	atts := make([]r4.Attachment, len(rec.Content))
	for i := range rec.Content {
		atts[i] = rec.Content[i].Attachment
	}
	d.text, d.decodeErr = embeddedText(KindDocumentReference, rec.ID, atts, isText)
	return d, nil
}

func (d *DocumentReference) Kind() Kind { return KindDocumentReference }

// Status returns the bound document status.
func (d *DocumentReference) Status() coding.Concept { return d.status }

// Name returns the document type or title.
func (d *DocumentReference) Name() string { return d.name }

// Date returns the document date, or nil.
func (d *DocumentReference) Date() *r4.DateTime { return d.date }

// Text returns the cleaned text, the placeholder, or "".
func (d *DocumentReference) Text() string { return d.text }

// DecodeErr returns the *PayloadDecodeError hit while decoding the content.
func (d *DocumentReference) DecodeErr() error { return d.decodeErr }

// PromptText renders the document with its decoded text.
func (d *DocumentReference) PromptText() string {
	return fragment(named("Document", d.name, d.codeText),
		detail("status", d.status.Label()),
		detail("date", d.date.Date()),
		detail("description", d.description),
		detail("text", d.text),
	)
}
