// Package coding binds FHIR coded values to canonical symbols and human labels.
//
// Each FHIR value set the clinical context layer interprets has a static Table.
// Binding never fails: a code missing from its table keeps its raw display.
package coding

import (
	"strings"

	"github.com/drfirst/go-clinctx/internal/fhir/r4"
)

// Symbol is the canonical value a (system, code) pair binds to.
type Symbol string

// Concept is a coded value after binding. Bound is empty when the table did
// not recognise the pair; Display then holds the source display verbatim.
type Concept struct {
	System  string
	Code    string
	Display string
	Bound   Symbol
}

// IsBound reports whether the concept resolved to a known symbol.
func (c Concept) IsBound() bool {
	return c.Bound != ""
}

// IsZero reports whether nothing was recorded.
func (c Concept) IsZero() bool {
	return c.Code == "" && c.Display == ""
}

// Is reports whether the concept is bound to s.
func (c Concept) Is(s Symbol) bool {
	return c.Bound == s
}

// Label returns the display text, falling back to the bare code.
func (c Concept) Label() string {
	if c.Display != "" {
		return c.Display
	}
	return c.Code
}

// Entry is one row of a binding table. System defaults to the table system
// and Symbol defaults to Code.
type Entry struct {
	System string
	Code   string
	Symbol Symbol
	Label  string
}

type key struct {
	system string
	code   string
}

// Table is an immutable binding table for one value set.
type Table struct {
	name    string
	system  string
	entries map[key]Entry
}

// NewTable builds a table. Codes are matched exactly and then case-folded.
func NewTable(name, system string, entries ...Entry) *Table {
	t := &Table{
		name:    name,
		system:  system,
		entries: make(map[key]Entry, len(entries)*2),
	}
	for _, e := range entries {
		if e.System == "" {
			e.System = system
		}
		if e.Symbol == "" {
			e.Symbol = Symbol(e.Code)
		}
		t.entries[key{e.System, e.Code}] = e
		lower := key{e.System, strings.ToLower(e.Code)}
		if _, exists := t.entries[lower]; !exists {
			t.entries[lower] = e
		}
	}
	return t
}

// Name returns the value set name the table was registered under.
func (t *Table) Name() string {
	return t.name
}

// System returns the default code system of the table.
func (t *Table) System() string {
	return t.system
}

func (t *Table) lookup(system, code string) (Entry, bool) {
	if system == "" {
		system = t.system
	}
	if e, ok := t.entries[key{system, code}]; ok {
		return e, true
	}
	e, ok := t.entries[key{system, strings.ToLower(code)}]
	return e, ok
}

// Bind resolves a single coded value. An empty system means the table's own
// system, which is how plain FHIR code elements (status, intent) arrive.
func (t *Table) Bind(system, code, display string) Concept {
	code = strings.TrimSpace(code)
	if code == "" && display == "" {
		return Concept{}
	}
	if e, ok := t.lookup(system, code); ok && code != "" {
		return Concept{System: e.System, Code: code, Display: e.Label, Bound: e.Symbol}
	}
	if display == "" {
		display = code
	}
	return Concept{System: system, Code: code, Display: display}
}

// BindCode binds a plain FHIR code element.
func (t *Table) BindCode(code string) Concept {
	return t.Bind("", code, "")
}

// BindCodeable binds the first coding the table recognises. When none is
// recognised the first coding is kept with the concept's readable text.
func (t *Table) BindCodeable(cc *r4.CodeableConcept) Concept {
	if cc == nil {
		return Concept{}
	}
	for _, c := range cc.Coding {
		if c.Code == "" {
			continue
		}
		if e, ok := t.lookup(c.System, c.Code); ok {
			return Concept{System: e.System, Code: c.Code, Display: e.Label, Bound: e.Symbol}
		}
	}
	return FromCodeable(cc)
}

// FromCodeable keeps a clinical code unbound: the first coding together with
// the concept's readable text.
func FromCodeable(cc *r4.CodeableConcept) Concept {
	if cc == nil {
		return Concept{}
	}
	text := Readable(cc)
	if len(cc.Coding) == 0 {
		return Concept{Display: text}
	}
	first := cc.Coding[0]
	if text == "" {
		text = first.Code
	}
	return Concept{System: first.System, Code: first.Code, Display: text}
}

// Readable returns the concept text, else the first coding display.
func Readable(cc *r4.CodeableConcept) string {
	if cc == nil {
		return ""
	}
	if t := strings.TrimSpace(cc.Text); t != "" {
		return t
	}
	for _, c := range cc.Coding {
		if d := strings.TrimSpace(c.Display); d != "" {
			return d
		}
	}
	return ""
}

// ReadableAll joins the readable text of several concepts with ", ",
// skipping empty ones.
func ReadableAll(ccs []r4.CodeableConcept) string {
	parts := make([]string, 0, len(ccs))
	for i := range ccs {
		if t := Readable(&ccs[i]); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}
