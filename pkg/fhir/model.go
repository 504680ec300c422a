// Package fhir holds the small slice of the FHIR R4/R5 JSON model this service
// reads and writes. It is not a general FHIR implementation: unknown elements
// are dropped when a resource is decoded into these types.
package fhir

import "encoding/json"

const (
	TypePatient          = "Patient"
	TypeImagingStudy     = "ImagingStudy"
	TypeBundle           = "Bundle"
	TypeOperationOutcome = "OperationOutcome"
)

// EnrollmentExtensionURL identifies the extension holding a subject's
// provider pseudonym.
const EnrollmentExtensionURL = "https://example.com/extensions#pseudonym"

// ContentType is the media type used for FHIR JSON responses.
const ContentType = "application/fhir+json"

// Resource is implemented by every typed resource in this package.
type Resource interface {
	GetResourceType() string
	GetID() string
}

type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Profile     []string `json:"profile,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
	Use    string `json:"use,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Patient is the subject record.
type Patient struct {
	ResourceType      string       `json:"resourceType"`
	ID                string       `json:"id,omitempty"`
	Meta              *Meta        `json:"meta,omitempty"`
	Extension         []Extension  `json:"extension,omitempty"`
	ModifierExtension []Extension  `json:"modifierExtension,omitempty"`
	Identifier        []Identifier `json:"identifier,omitempty"`
	Active            *bool        `json:"active,omitempty"`
	Name              []HumanName  `json:"name,omitempty"`
	Gender            string       `json:"gender,omitempty"`
	BirthDate         string       `json:"birthDate,omitempty"`
}

func (p *Patient) GetResourceType() string { return TypePatient }
func (p *Patient) GetID() string           { return p.ID }

// Clone returns a deep copy; no slice or pointer is shared with p.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	out := *p
	if p.Meta != nil {
		m := *p.Meta
		m.Profile = append([]string(nil), p.Meta.Profile...)
		out.Meta = &m
	}
	out.Extension = cloneExtensions(p.Extension)
	out.ModifierExtension = cloneExtensions(p.ModifierExtension)
	out.Identifier = append([]Identifier(nil), p.Identifier...)
	if p.Active != nil {
		a := *p.Active
		out.Active = &a
	}
	if p.Name != nil {
		out.Name = make([]HumanName, len(p.Name))
		for i, n := range p.Name {
			n.Given = append([]string(nil), n.Given...)
			out.Name[i] = n
		}
	}
	return &out
}

// ImagingStudy is the dependent record type aggregated per subject.
type ImagingStudy struct {
	ResourceType   string       `json:"resourceType"`
	ID             string       `json:"id,omitempty"`
	Meta           *Meta        `json:"meta,omitempty"`
	Identifier     []Identifier `json:"identifier,omitempty"`
	Status         string       `json:"status,omitempty"`
	Modality       []Coding     `json:"modality,omitempty"`
	Subject        Reference    `json:"subject"`
	Started        string       `json:"started,omitempty"`
	NumberOfSeries int          `json:"numberOfSeries,omitempty"`
	Description    string       `json:"description,omitempty"`
}

func (s *ImagingStudy) GetResourceType() string { return TypeImagingStudy }
func (s *ImagingStudy) GetID() string           { return s.ID }

// Clone returns a deep copy; no slice or pointer is shared with s.
func (s *ImagingStudy) Clone() *ImagingStudy {
	if s == nil {
		return nil
	}
	out := *s
	if s.Meta != nil {
		m := *s.Meta
		m.Profile = append([]string(nil), s.Meta.Profile...)
		out.Meta = &m
	}
	out.Identifier = append([]Identifier(nil), s.Identifier...)
	out.Modality = append([]Coding(nil), s.Modality...)
	return &out
}

type OperationOutcome struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

type Issue struct {
	Severity    string `json:"severity"`
	Code        string `json:"code"`
	Diagnostics string `json:"diagnostics,omitempty"`
}

func (o *OperationOutcome) GetResourceType() string { return TypeOperationOutcome }
func (o *OperationOutcome) GetID() string           { return "" }

// NewOperationOutcome builds a single-issue error outcome.
func NewOperationOutcome(code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: TypeOperationOutcome,
		Issue: []Issue{{
			Severity:    "error",
			Code:        code,
			Diagnostics: diagnostics,
		}},
	}
}

// PeekResourceType reads the top-level resourceType of a JSON document.
// It returns "" when the document is not a JSON object or has no type.
func PeekResourceType(raw []byte) string {
	var head struct {
		ResourceType string `json:"resourceType"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ResourceType
}
