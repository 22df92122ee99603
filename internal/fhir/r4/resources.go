package r4

import "encoding/json"

// Patient represents a FHIR R4 Patient resource.
type Patient struct {
	ResourceType         string           `json:"resourceType"`
	ID                   string           `json:"id,omitempty"`
	Meta                 *Meta            `json:"meta,omitempty"`
	Identifier           []Identifier     `json:"identifier,omitempty"`
	Active               *bool            `json:"active,omitempty"`
	Name                 []HumanName      `json:"name,omitempty"`
	Telecom              []ContactPoint   `json:"telecom,omitempty"`
	Gender               string           `json:"gender,omitempty"` // male | female | other | unknown
	BirthDate            *DateTime        `json:"birthDate,omitempty"`
	DeceasedBoolean      *bool            `json:"deceasedBoolean,omitempty"`
	DeceasedDateTime     *DateTime        `json:"deceasedDateTime,omitempty"`
	Address              []Address        `json:"address,omitempty"`
	MaritalStatus        *CodeableConcept `json:"maritalStatus,omitempty"`
	ManagingOrganization *Reference       `json:"managingOrganization,omitempty"`
}

// GetOfficialName returns the patient's official name, or first available.
func (p *Patient) GetOfficialName() *HumanName {
	for i := range p.Name {
		if p.Name[i].Use == "official" {
			return &p.Name[i]
		}
	}
	if len(p.Name) > 0 {
		return &p.Name[0]
	}
	return nil
}

// GetFullName returns the patient's full name as a string.
func (p *Patient) GetFullName() string {
	return p.GetOfficialName().Format()
}

// GetMRN returns the patient's medical record number.
func (p *Patient) GetMRN() string {
	for _, id := range p.Identifier {
		if id.Type != nil {
			for _, coding := range id.Type.Coding {
				if coding.Code == "MR" {
					return id.Value
				}
			}
		}
	}
	return ""
}

// IsDeceased reports a deceased flag or a recorded date of death.
func (p *Patient) IsDeceased() bool {
	if p.DeceasedBoolean != nil {
		return *p.DeceasedBoolean
	}
	return !p.DeceasedDateTime.IsZero()
}

// Bundle is a FHIR R4 Bundle. Entries keep their resources undecoded so each can
// be dispatched on its own resourceType.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type,omitempty"` // searchset | transaction | batch | collection | ...
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

// BundleLink is a paging link of a search result.
type BundleLink struct {
	Relation string `json:"relation"` // self | next | previous
	URL      string `json:"url"`
}

// BundleEntry is one entry of a bundle.
type BundleEntry struct {
	FullURL  string              `json:"fullUrl,omitempty"`
	Resource json.RawMessage     `json:"resource,omitempty"`
	Request  *BundleEntryRequest `json:"request,omitempty"`
	Search   *BundleEntrySearch  `json:"search,omitempty"`
}

// BundleEntryRequest describes the transaction action for an entry.
type BundleEntryRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// BundleEntrySearch carries search metadata for an entry.
type BundleEntrySearch struct {
	Mode string `json:"mode,omitempty"` // match | include | outcome
}

// NextLink returns the URL of the next search page, or "".
func (b *Bundle) NextLink() string {
	for _, l := range b.Link {
		if l.Relation == "next" {
			return l.URL
		}
	}
	return ""
}

// ResourceHeader is the minimal envelope used to dispatch raw resources.
type ResourceHeader struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

// PeekHeader decodes only resourceType and id.
func PeekHeader(data []byte) (ResourceHeader, error) {
	var h ResourceHeader
	err := json.Unmarshal(data, &h)
	return h, err
}
