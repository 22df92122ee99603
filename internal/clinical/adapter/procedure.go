package adapter

import (
	"github.com/drfirst/go-clinctx/internal/clinical/coding"
	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Procedure is an action performed on or for the patient.
type Procedure struct {
	base
	status   coding.Concept
	category string
	code     coding.Concept
	name     string
	codeText string
	reasons  string
	start    *r4.DateTime
	end      *r4.DateTime
}

// ParseProcedure decodes and adapts a Procedure record.
func ParseProcedure(data []byte) (*Procedure, error) {
	rec, err := decode[r4.Procedure](KindProcedure, data)
	if err != nil {
		return nil, err
	}
	return NewProcedure(rec)
}

// NewProcedure adapts a Procedure record.
func NewProcedure(rec *r4.Procedure) (*Procedure, error) {
	if rec == nil {
		return nil, nilRecord(KindProcedure)
	}
	if err := checkIdentity(KindProcedure, rec.ResourceType, rec.ID); err != nil {
		return nil, err
	}
	start, end := rec.Performed()
	return &Procedure{
		base:     base{id: rec.ID},
		status:   coding.ProcedureStatus.BindCode(rec.Status),
		category: oneLine(coding.Readable(rec.Category)),
		code:     coding.FromCodeable(rec.Code),
		name:     nameOf(rec.Code, "Unknown procedure"),
		codeText: coding.FormatCodes(rec.Code),
		reasons:  oneLine(coding.ReadableAll(rec.ReasonCode)),
		start:    start,
		end:      end,
	}, nil
}

func (p *Procedure) Kind() Kind { return KindProcedure }

// Status returns the bound procedure status.
func (p *Procedure) Status() coding.Concept { return p.status }

// Code returns the procedure code.
func (p *Procedure) Code() coding.Concept { return p.code }

// Name returns the readable procedure name.
func (p *Procedure) Name() string { return p.name }

// Performed returns when the procedure started and, for a period, ended.
func (p *Procedure) Performed() (start, end *r4.DateTime) { return p.start, p.end }

// InteractionDate prefers the end of the procedure over its start.
func (p *Procedure) InteractionDate() *r4.DateTime {
	if !p.end.IsZero() {
		return p.end
	}
	return p.start
}

// PromptText renders e.g. "Procedure: Appendectomy (SNOMED 80146002); status completed; performed 2019-06-01".
func (p *Procedure) PromptText() string {
	performed := p.start.Date()
	if end := p.end.Date(); end != "" && end != performed {
		if performed == "" {
			performed = "until " + end
		} else {
			performed += " to " + end
		}
	}
	return fragment(named("Procedure", p.name, p.codeText),
		detail("status", p.status.Label()),
		detail("category", p.category),
		detail("performed", performed),
		detail("reason", p.reasons),
	)
}
