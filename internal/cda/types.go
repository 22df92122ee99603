package cda

import "encoding/xml"

// CDA namespaces and identifiers used by the consultation note.
const (
	Namespace    = "urn:hl7-org:v3"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"

	OIDTypeID          = "2.16.840.1.113883.1.3"
	OIDUSRealmHeader   = "2.16.840.1.113883.10.20.22.1.1"
	OIDLOINC           = "2.16.840.1.113883.6.1"
	OIDConfidentiality = "2.16.840.1.113883.5.25"
	OIDAdminGender     = "2.16.840.1.113883.5.1"

	LOINCConsultNote    = "11488-4"
	LOINCAssessment     = "51848-0"
	LOINCHistoryGeneral = "11329-0"
	LOINCReasonReferral = "42349-1"
)

// ClinicalDocument is the root element of a CDA R2 document.
type ClinicalDocument struct {
	XMLName             xml.Name      `xml:"urn:hl7-org:v3 ClinicalDocument"`
	XSI                 string        `xml:"xmlns:xsi,attr"`
	RealmCode           *Code         `xml:"realmCode,omitempty"`
	TypeID              *TypeID       `xml:"typeId,omitempty"`
	TemplateIDs         []TemplateID  `xml:"templateId,omitempty"`
	ID                  *InstanceID   `xml:"id,omitempty"`
	Code                *Code         `xml:"code,omitempty"`
	Title               string        `xml:"title,omitempty"`
	EffectiveTime       *TimeValue    `xml:"effectiveTime,omitempty"`
	ConfidentialityCode *Code         `xml:"confidentialityCode,omitempty"`
	LanguageCode        *Code         `xml:"languageCode,omitempty"`
	RecordTarget        *RecordTarget `xml:"recordTarget,omitempty"`
	Author              *Author       `xml:"author,omitempty"`
	Custodian           *Custodian    `xml:"custodian,omitempty"`
	Component           *Component    `xml:"component,omitempty"`
}

// TypeID identifies the CDA R2 schema.
type TypeID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

// TemplateID is a template identifier.
type TemplateID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// InstanceID is a unique instance identifier.
type InstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr,omitempty"`
}

// Code is a coded value.
type Code struct {
	Code           string `xml:"code,attr,omitempty"`
	CodeSystem     string `xml:"codeSystem,attr,omitempty"`
	CodeSystemName string `xml:"codeSystemName,attr,omitempty"`
	DisplayName    string `xml:"displayName,attr,omitempty"`
	NullFlavor     string `xml:"nullFlavor,attr,omitempty"`
}

// TimeValue holds a time stamp in HL7 format.
type TimeValue struct {
	Value      string `xml:"value,attr,omitempty"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
}

type RecordTarget struct {
	PatientRole *PatientRole `xml:"patientRole,omitempty"`
}

type PatientRole struct {
	IDs     []InstanceID `xml:"id,omitempty"`
	Patient *Patient     `xml:"patient,omitempty"`
}

type Patient struct {
	Name                     *Name      `xml:"name,omitempty"`
	AdministrativeGenderCode *Code      `xml:"administrativeGenderCode,omitempty"`
	BirthTime                *TimeValue `xml:"birthTime,omitempty"`
}

// Name is a free-text person name.
type Name struct {
	Text       string `xml:",chardata"`
	NullFlavor string `xml:"nullFlavor,attr,omitempty"`
}

type Author struct {
	Time           *TimeValue      `xml:"time,omitempty"`
	AssignedAuthor *AssignedAuthor `xml:"assignedAuthor,omitempty"`
}

type AssignedAuthor struct {
	ID                      *InstanceID      `xml:"id,omitempty"`
	AssignedAuthoringDevice *AuthoringDevice `xml:"assignedAuthoringDevice,omitempty"`
	RepresentedOrganization *Organization    `xml:"representedOrganization,omitempty"`
}

type AuthoringDevice struct {
	ManufacturerModelName string `xml:"manufacturerModelName,omitempty"`
	SoftwareName          string `xml:"softwareName,omitempty"`
}

type Organization struct {
	IDs   []InstanceID `xml:"id,omitempty"`
	Names []string     `xml:"name,omitempty"`
}

type Custodian struct {
	AssignedCustodian *AssignedCustodian `xml:"assignedCustodian,omitempty"`
}

type AssignedCustodian struct {
	RepresentedCustodianOrganization *Organization `xml:"representedCustodianOrganization,omitempty"`
}

type Component struct {
	StructuredBody *StructuredBody `xml:"structuredBody,omitempty"`
}

type StructuredBody struct {
	Components []SectionComponent `xml:"component,omitempty"`
}

type SectionComponent struct {
	Section *Section `xml:"section,omitempty"`
}

// Section is a narrative-only CDA section.
type Section struct {
	Code  *Code      `xml:"code,omitempty"`
	Title string     `xml:"title,omitempty"`
	Text  *Narrative `xml:"text,omitempty"`
}

// Narrative is the human-readable block of a section.
type Narrative struct {
	Paragraphs []string `xml:"paragraph,omitempty"`
	List       *List    `xml:"list,omitempty"`
}

type List struct {
	Items []string `xml:"item"`
}
