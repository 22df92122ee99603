package adapter

import (
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// AllergyIntolerance is a recorded allergy or intolerance to a substance.
type AllergyIntolerance struct {
	base
	clinicalStatus coding.Concept
	verification   coding.Concept
	allergyType    coding.Concept
	categories     []coding.Concept
	criticality    coding.Concept
	substance      string
	codes          []coding.CodeRef
	codeText       string
	reactions      []string
	onset          *r4.DateTime
	recorded       *r4.DateTime
}

// ParseAllergyIntolerance decodes and adapts an AllergyIntolerance record.
func ParseAllergyIntolerance(data []byte) (*AllergyIntolerance, error) {
	rec, err := decode[r4.AllergyIntolerance](KindAllergyIntolerance, data)
	if err != nil {
		return nil, err
	}
	return NewAllergyIntolerance(rec)
}

// NewAllergyIntolerance adapts an AllergyIntolerance record.
func NewAllergyIntolerance(rec *r4.AllergyIntolerance) (*AllergyIntolerance, error) {
	if rec == nil {
		return nil, nilRecord(KindAllergyIntolerance)
	}
	if err := checkIdentity(KindAllergyIntolerance, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	a := &AllergyIntolerance{
		base:           base{id: rec.ID},
		clinicalStatus: coding.AllergyClinicalStatus.BindCodeable(rec.ClinicalStatus),
		verification:   coding.AllergyVerificationStatus.BindCodeable(rec.VerificationStatus),
		allergyType:    coding.AllergyType.BindCode(rec.Type),
		criticality:    coding.AllergyCriticality.BindCode(rec.Criticality),
		substance:      nameOf(rec.Code, "unknown substance"),
		codes:          coding.Codes(rec.Code),
		codeText:       coding.FormatCodes(rec.Code),
		onset:          rec.OnsetDateTime,
		recorded:       rec.RecordedDate,
	}
	for _, cat := range rec.Category {
		if c := coding.AllergyCategory.BindCode(cat); !c.IsZero() {
			a.categories = append(a.categories, c)
		}
	}
	for _, r := range rec.Reaction {
		text := oneLine(coding.ReadableAll(r.Manifestation))
		if text == "" {
			text = oneLine(r.Description)
		}
		if text == "" {
			continue
		}
		if r.Severity != "" {
			text += " (" + r.Severity + ")"
		}
		a.reactions = append(a.reactions, text)
	}
	return a, nil
}

func (a *AllergyIntolerance) Kind() Kind { return KindAllergyIntolerance }

// ClinicalStatus returns the bound clinical status.
func (a *AllergyIntolerance) ClinicalStatus() coding.Concept { return a.clinicalStatus }

// VerificationStatus returns the bound verification status.
func (a *AllergyIntolerance) VerificationStatus() coding.Concept { return a.verification }

// Type returns allergy or intolerance.
func (a *AllergyIntolerance) Type() coding.Concept { return a.allergyType }

// Categories returns the bound categories.
func (a *AllergyIntolerance) Categories() []coding.Concept { return a.categories }

// Criticality returns the bound criticality.
func (a *AllergyIntolerance) Criticality() coding.Concept { return a.criticality }

// Substance returns the readable substance name.
func (a *AllergyIntolerance) Substance() string { return a.substance }

// Codes returns the substance codes.
func (a *AllergyIntolerance) Codes() []coding.CodeRef { return a.codes }

// Reactions returns the rendered reactions.
func (a *AllergyIntolerance) Reactions() []string { return a.reactions }

// IsHighRisk reports high criticality.
func (a *AllergyIntolerance) IsHighRisk() bool { return a.criticality.Is(coding.CriticalityHigh) }

// PromptText renders e.g. "Allergy to Penicillin V (RxNorm 7984); criticality high (HIGH RISK)".
func (a *AllergyIntolerance) PromptText() string {
	var head string
	switch {
	case a.allergyType.Is(coding.Allergy):
		head = "Allergy to " + a.substance
	case a.allergyType.Is(coding.Intolerance):
		head = "Intolerance to " + a.substance
	default:
		head = "Allergy or intolerance to " + a.substance
	}
	if a.codeText != "" {
		head += " (" + a.codeText + ")"
	}

	criticality := a.criticality.Label()
	if a.IsHighRisk() {
		criticality += " (HIGH RISK)"
	}

	return fragment(head,
		detail("category", labels(a.categories)),
		detail("criticality", criticality),
		detail("clinical status", a.clinicalStatus.Label()),
		detail("verification", a.verification.Label()),
		detail("reactions", strings.Join(a.reactions, ", ")),
		detail("onset", a.onset.Date()),
		detail("recorded", a.recorded.Date()),
	)
}
