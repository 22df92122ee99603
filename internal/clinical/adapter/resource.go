// Package adapter turns raw FHIR R4 records into immutable, typed views that
// render deterministic one-line prompt fragments.
//
// Every adapter validates its record on construction. Clinically optional
// elements may be absent; only a missing identity or a foreign resource type
// makes a record malformed.
package adapter

import (
	"encoding/json"
	"strings"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Kind identifies the resource variant an adapter wraps.
type Kind string

const (
	KindCondition          Kind = r4.TypeCondition
	KindAllergyIntolerance Kind = r4.TypeAllergyIntolerance
	KindCarePlan           Kind = r4.TypeCarePlan
	KindProcedure          Kind = r4.TypeProcedure
	KindDevice             Kind = r4.TypeDevice
	KindDiagnosticReport   Kind = r4.TypeDiagnosticReport
	KindDocumentReference  Kind = r4.TypeDocumentReference
	KindObservation        Kind = r4.TypeObservation
	KindImmunization       Kind = r4.TypeImmunization
	KindMedication         Kind = r4.TypeMedication
	KindMedicationRequest  Kind = r4.TypeMedicationRequest
)

// Kinds lists every supported kind in search order.
var Kinds = []Kind{
	KindCondition,
	KindMedicationRequest,
	KindMedication,
	KindAllergyIntolerance,
	KindObservation,
	KindProcedure,
	KindImmunization,
	KindDevice,
	KindCarePlan,
	KindDiagnosticReport,
	KindDocumentReference,
}

// ParseKind maps a FHIR resourceType onto a Kind.
func ParseKind(resourceType string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == resourceType {
			return k, true
		}
	}
	return "", false
}

// Resource is implemented by every adapter in this package and nowhere else.
type Resource interface {
	Kind() Kind
	ID() string
	PromptText() string
	sealed()
}

// Dated is implemented by adapters whose records mark a patient interaction.
type Dated interface {
	InteractionDate() *r4.DateTime
}

// PayloadCarrier is implemented by adapters that decode embedded attachments.
type PayloadCarrier interface {
	DecodeErr() error
}

type base struct {
	id string
}

func (b base) ID() string {
	return b.id
}

func (base) sealed() {}

// Parse decodes a raw resource and builds the adapter for its resourceType.
func Parse(data []byte) (Resource, error) {
	h, err := r4.PeekHeader(data)
	if err != nil {
		return nil, &MalformedRecordError{Field: "resourceType", Code: CodeInvalidJSON, Message: "record is not valid JSON", Cause: err}
	}
	kind, ok := ParseKind(h.ResourceType)
	if !ok {
		return nil, &MalformedRecordError{
			Kind:    Kind(h.ResourceType),
			ID:      h.ID,
			Field:   "resourceType",
			Code:    CodeUnsupportedKind,
			Message: "unsupported resource type",
		}
	}
	switch kind {
	case KindCondition:
		return ParseCondition(data)
	case KindAllergyIntolerance:
		return ParseAllergyIntolerance(data)
	case KindCarePlan:
		return ParseCarePlan(data)
	case KindProcedure:
		return ParseProcedure(data)
	case KindDevice:
		return ParseDevice(data)
	case KindDiagnosticReport:
		return ParseDiagnosticReport(data)
	case KindDocumentReference:
		return ParseDocumentReference(data)
	case KindObservation:
		return ParseObservation(data)
	case KindImmunization:
		return ParseImmunization(data)
	case KindMedication:
		return ParseMedication(data)
	default:
		return ParseMedicationRequest(data)
	}
}

func decode[T any](kind Kind, data []byte) (*T, error) {
	var rec T
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &MalformedRecordError{Kind: kind, Code: CodeInvalidJSON, Field: string(kind), Message: "record is not valid JSON", Cause: err}
	}
	return &rec, nil
}

func nilRecord(kind Kind) error {
	return &MalformedRecordError{Kind: kind, Field: string(kind), Code: CodeNullInput, Message: "record is required"}
}

// checkIdentity validates the envelope shared by all records.
func checkIdentity(kind Kind, resourceType, id string) error {
	if resourceType != "" && resourceType != string(kind) {
		return &MalformedRecordError{
			Kind:    kind,
			ID:      id,
			Field:   "resourceType",
			Code:    CodeTypeMismatch,
			Message: "expected " + string(kind) + ", got " + resourceType,
		}
	}
	if strings.TrimSpace(id) == "" {
		return &MalformedRecordError{Kind: kind, Field: "id", Code: CodeMissingID, Message: "id is required"}
	}
	return nil
}
