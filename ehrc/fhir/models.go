// fhir package contains structs representing FHIR data plus the parsers that
// turn raw resource payloads into the typed records the rest of the app uses.
// The wire models are a lighter weight definition containing only the fields
// the parsers read; everything else passes through untouched as raw JSON.
package fhir

import "encoding/json"

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total"`
	Links        []BundleLink  `json:"link"`
	Entries      []BundleEntry `json:"entry"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// BundleEntry keeps the contained resource raw so each entry can be
// dispatched on its resourceType without committing to a schema up front.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl"`
	Resource json.RawMessage `json:"resource"`
}

// resourceHeader is the minimal envelope every resource shares.
type resourceHeader struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type HumanName struct {
	Use    string   `json:"use,omitempty"`
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Dosage struct {
	Text               string `json:"text,omitempty"`
	PatientInstruction string `json:"patientInstruction,omitempty"`
}

type patientResource struct {
	resourceHeader
	Identifiers []Identifier `json:"identifier"`
	Names       []HumanName  `json:"name"`
	Gender      string       `json:"gender"`
	BirthDate   string       `json:"birthDate"`
}

type conditionResource struct {
	resourceHeader
	// clinicalStatus is a bare code in older API versions and a
	// CodeableConcept in newer ones; both occur upstream.
	ClinicalStatus json.RawMessage  `json:"clinicalStatus"`
	Code           *CodeableConcept `json:"code"`
	Subject        *Reference       `json:"subject"`
	OnsetDateTime  string           `json:"onsetDateTime"`
	RecordedDate   string           `json:"recordedDate"`
}

type medicationRequestResource struct {
	resourceHeader
	Status                    string           `json:"status"`
	Intent                    string           `json:"intent"`
	MedicationCodeableConcept *CodeableConcept `json:"medicationCodeableConcept"`
	MedicationReference       *Reference       `json:"medicationReference"`
	Subject                   *Reference       `json:"subject"`
	AuthoredOn                string           `json:"authoredOn"`
	DosageInstructions        []Dosage         `json:"dosageInstruction"`
}

type encounterResource struct {
	resourceHeader
	Status string `json:"status"`
	// class is a Coding in most API versions and a CodeableConcept list in
	// the newest; keep it raw and sort it out during parsing.
	Class           json.RawMessage   `json:"class"`
	Types           []CodeableConcept `json:"type"`
	Period          *Period           `json:"period"`
	Locations       []encounterLoc    `json:"location"`
	ServiceProvider *Reference        `json:"serviceProvider"`
}

type encounterLoc struct {
	Location *Reference `json:"location"`
}
