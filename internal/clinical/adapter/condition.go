package adapter

import (
	"cmp"
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Condition is a problem, diagnosis or health concern.
type Condition struct {
	base
	clinicalStatus coding.Concept
	verification   coding.Concept
	categories     []coding.Concept
	severity       string
	code           coding.Concept
	name           string
	codes          []coding.CodeRef
	codeText       string
	onset          *r4.DateTime
	onsetText      string
	abatement      *r4.DateTime
	abatementText  string
	recorded       *r4.DateTime
}

// ParseCondition decodes and adapts a Condition record.
func ParseCondition(data []byte) (*Condition, error) {
	rec, err := decode[r4.Condition](KindCondition, data)
	if err != nil {
		return nil, err
	}
	return NewCondition(rec)
}

// NewCondition adapts a Condition record.
func NewCondition(rec *r4.Condition) (*Condition, error) {
	if rec == nil {
		return nil, nilRecord(KindCondition)
	}
	if err := checkIdentity(KindCondition, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	c := &Condition{
		base:           base{id: rec.ID},
		clinicalStatus: coding.ConditionClinicalStatus.BindCodeable(rec.ClinicalStatus),
		verification:   coding.ConditionVerificationStatus.BindCodeable(rec.VerificationStatus),
		severity:       oneLine(coding.Readable(rec.Severity)),
		code:           coding.FromCodeable(rec.Code),
		name:           nameOf(rec.Code, "Unknown condition"),
		codes:          coding.Codes(rec.Code),
		codeText:       coding.FormatCodes(rec.Code),
		onset:          rec.Onset(),
		onsetText:      oneLine(cmp.Or(rec.OnsetString, rec.OnsetDateTime.Unparsed())),
		abatement:      rec.AbatementDateTime,
		abatementText:  oneLine(cmp.Or(rec.AbatementString, rec.AbatementDateTime.Unparsed())),
		recorded:       rec.RecordedDate,
	}
	for i := range rec.Category {
		if cat := coding.ConditionCategory.BindCodeable(&rec.Category[i]); !cat.IsZero() {
			c.categories = append(c.categories, cat)
		}
	}
	return c, nil
}

func (c *Condition) Kind() Kind { return KindCondition }

// ClinicalStatus returns the bound clinical status; zero when not recorded.
func (c *Condition) ClinicalStatus() coding.Concept { return c.clinicalStatus }

// VerificationStatus returns the bound verification status.
func (c *Condition) VerificationStatus() coding.Concept { return c.verification }

// Categories returns the bound categories in source order.
func (c *Condition) Categories() []coding.Concept { return c.categories }

// Code returns the clinical code of the condition.
func (c *Condition) Code() coding.Concept { return c.code }

// Name returns the readable condition name.
func (c *Condition) Name() string { return c.name }

// Codes returns the system/code pairs of the condition code.
func (c *Condition) Codes() []coding.CodeRef { return c.codes }

// Onset returns the onset date, or nil when not recorded.
func (c *Condition) Onset() *r4.DateTime { return c.onset }

// Abatement returns the abatement date, or nil.
func (c *Condition) Abatement() *r4.DateTime { return c.abatement }

// RecordedDate returns when the condition was recorded, or nil.
func (c *Condition) RecordedDate() *r4.DateTime { return c.recorded }

// IsActive reports an active, recurrent or relapsed condition.
func (c *Condition) IsActive() bool {
	return c.clinicalStatus.Is(coding.Active) || c.clinicalStatus.Is(coding.Recurrence) || c.clinicalStatus.Is(coding.Relapse)
}

func (c *Condition) InteractionDate() *r4.DateTime { return c.onset }

// PromptText renders e.g. "Active condition: Type 2 diabetes mellitus (SNOMED 44054006)".
func (c *Condition) PromptText() string {
	head := "Condition"
	if status := c.clinicalStatus.Label(); status != "" {
		if strings.ContainsRune(status, ' ') {
			head = "Condition (" + status + ")"
		} else {
			head = capitalize(status) + " condition"
		}
	}

	onset := c.onset.Date()
	if onset == "" {
		onset = c.onsetText
	}
	abated := c.abatement.Date()
	if abated == "" {
		abated = c.abatementText
	}

	return fragment(named(head, c.name, c.codeText),
		detail("verification", c.verification.Label()),
		detail("category", labels(c.categories)),
		detail("severity", c.severity),
		detail("onset", onset),
		detail("abated", abated),
	)
}
