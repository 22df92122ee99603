package adapter

import (
	"strings"

	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// CarePlan is a plan of care with its planned activities.
type CarePlan struct {
	base
	status     coding.Concept
	intent     coding.Concept
	name       string
	codeText   string
	period     *r4.Period
	activities []CarePlanActivity
}

// CarePlanActivity is one planned activity of a care plan.
type CarePlanActivity struct {
	Name   string
	Codes  string
	Status coding.Concept
}

func (a CarePlanActivity) String() string {
	var extras []string
	if a.Codes != "" {
		extras = append(extras, a.Codes)
	}
	if s := a.Status.Label(); s != "" {
		extras = append(extras, s)
	}
	if len(extras) == 0 {
		return a.Name
	}
	return a.Name + " (" + strings.Join(extras, ", ") + ")"
}

// ParseCarePlan decodes and adapts a CarePlan record.
func ParseCarePlan(data []byte) (*CarePlan, error) {
	rec, err := decode[r4.CarePlan](KindCarePlan, data)
	if err != nil {
		return nil, err
	}
	return NewCarePlan(rec)
}

// NewCarePlan adapts a CarePlan record.
func NewCarePlan(rec *r4.CarePlan) (*CarePlan, error) {
	if rec == nil {
		return nil, nilRecord(KindCarePlan)
	}
	if err := checkIdentity(KindCarePlan, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	p := &CarePlan{
		base:   base{id: rec.ID},
		status: coding.CarePlanStatus.BindCode(rec.Status),
		intent: coding.CarePlanIntent.BindCode(rec.Intent),
		period: rec.Period,
	}

	// Synthea lists the generic "Care plan" category first and the specific
	// plan last, so the last readable category names the plan.
	var category *r4.CodeableConcept
	for i := range rec.Category {
		if coding.Readable(&rec.Category[i]) != "" {
			category = &rec.Category[i]
		}
	}
	switch {
	case strings.TrimSpace(rec.Title) != "":
		p.name = oneLine(rec.Title)
	case category != nil:
		p.name = oneLine(coding.Readable(category))
		p.codeText = coding.FormatCodes(category)
	case strings.TrimSpace(rec.Description) != "":
		p.name = oneLine(rec.Description)
	default:
		p.name = "General care plan"
	}

	seen := make(map[string]bool)
	for _, act := range rec.Activity {
		if act.Detail == nil {
			continue
		}
		name := oneLine(coding.Readable(act.Detail.Code))
		if name == "" {
			name = oneLine(act.Detail.Description)
		}
		if name == "" {
			continue
		}
		a := CarePlanActivity{
			Name:   name,
			Codes:  coding.FormatCodes(act.Detail.Code),
			Status: coding.CarePlanActivityStatus.BindCode(act.Detail.Status),
		}
		key := a.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		p.activities = append(p.activities, a)
	}
	return p, nil
}

func (p *CarePlan) Kind() Kind { return KindCarePlan }

// Status returns the bound plan status.
func (p *CarePlan) Status() coding.Concept { return p.status }

// Intent returns the bound plan intent.
func (p *CarePlan) Intent() coding.Concept { return p.intent }

// Name returns the plan name.
func (p *CarePlan) Name() string { return p.name }

// Period returns the plan period, or nil.
func (p *CarePlan) Period() *r4.Period { return p.period }

// Activities returns the distinct activities in source order.
func (p *CarePlan) Activities() []CarePlanActivity { return p.activities }

// PromptText renders the plan with its activities on one line.
func (p *CarePlan) PromptText() string {
	acts := make([]string, len(p.activities))
	for i, a := range p.activities {
		acts[i] = a.String()
	}
	return fragment(named("Care plan", p.name, p.codeText),
		detail("status", p.status.Label()),
		detail("intent", p.intent.Label()),
		detail("period", period(p.period)),
		detail("activities", strings.Join(acts, ", ")),
	)
}
