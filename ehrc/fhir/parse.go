package fhir

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
)

// Parsed records are immutable value objects created fresh per response.
// Every parser prefers a best-effort record with fallback values over
// failing: upstream data is not under our control and partial information is
// still clinically useful. A ParseError only means the payload was not the
// expected resource at all.

type Patient struct {
	ID        string   `json:"id"`
	MRN       string   `json:"mrn"`
	MRNSystem string   `json:"mrn_system,omitempty"`
	Given     []string `json:"given,omitempty"`
	Family    string   `json:"family,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	BirthDate string   `json:"birth_date,omitempty"`
}

// FullName joins the given names and family name for display.
func (p *Patient) FullName() string {
	parts := make([]string, 0, len(p.Given)+1)
	parts = append(parts, p.Given...)
	if p.Family != "" {
		parts = append(parts, p.Family)
	}
	return strings.Join(parts, " ")
}

type Condition struct {
	ID            string `json:"id"`
	ICD10Code     string `json:"icd10_code,omitempty"`
	ICD10Display  string `json:"icd10_display,omitempty"`
	SNOMEDCode    string `json:"snomed_code,omitempty"`
	SNOMEDDisplay string `json:"snomed_display,omitempty"`
	// Code/CodeSystem hold the best available coding: ICD-10 when present,
	// else SNOMED, else the first coding regardless of system.
	Code           string `json:"code,omitempty"`
	CodeSystem     string `json:"code_system,omitempty"`
	Display        string `json:"display,omitempty"`
	ClinicalStatus string `json:"clinical_status"`
	OnsetDate      string `json:"onset_date,omitempty"`
	RecordedDate   string `json:"recorded_date,omitempty"`
}

type Medication struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Code       string `json:"code,omitempty"`
	CodeSystem string `json:"code_system,omitempty"`
	Status     string `json:"status,omitempty"`
	DosageText string `json:"dosage_text,omitempty"`
	AuthoredOn string `json:"authored_on,omitempty"`
}

type Encounter struct {
	ID        string `json:"id"`
	Status    string `json:"status,omitempty"`
	Type      string `json:"type,omitempty"`
	ClassCode string `json:"class_code,omitempty"`
	Location  string `json:"location,omitempty"`
	Start     string `json:"start,omitempty"`
	End       string `json:"end,omitempty"`
}

// ParseBundle decodes a search response envelope. Entries stay raw; use the
// extractor functions to turn them into typed records.
func ParseBundle(raw []byte) (*Bundle, error) {
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, &customErrors.ParseError{Err: err, ResourceType: "Bundle"}
	}
	if !strings.EqualFold(bundle.ResourceType, "Bundle") {
		return nil, &customErrors.ParseError{
			Err:          errors.Errorf("expected resourceType Bundle, got %q", bundle.ResourceType),
			ResourceType: "Bundle",
		}
	}
	return &bundle, nil
}

// ParsePatient extracts a Patient record. Identifier precedence: an entry
// typed MR, then an entry on the configured MRN system, then the first
// identifier in list order. Name precedence: the official entry, then the
// first entry; missing names leave the fields empty.
func ParsePatient(raw json.RawMessage) (*Patient, error) {
	var resource patientResource
	if err := decodeResource(raw, "Patient", &resource); err != nil {
		return nil, err
	}

	patient := Patient{
		ID:        resource.ID,
		Gender:    resource.Gender,
		BirthDate: resource.BirthDate,
	}

	if id := pickMRN(resource.Identifiers); id != nil {
		patient.MRN = id.Value
		patient.MRNSystem = id.System
	}

	if name := pickName(resource.Names); name != nil {
		patient.Given = append(patient.Given, name.Given...)
		patient.Family = name.Family
	}

	return &patient, nil
}

func pickMRN(identifiers []Identifier) *Identifier {
	for i := range identifiers {
		id := identifiers[i]
		if id.Type == nil {
			continue
		}
		for _, coding := range id.Type.Coding {
			if coding.Code == constants.MRNTypeCode {
				return &identifiers[i]
			}
		}
	}
	for i := range identifiers {
		if identifiers[i].System == constants.MRNSystem {
			return &identifiers[i]
		}
	}
	if len(identifiers) > 0 {
		return &identifiers[0]
	}
	return nil
}

func pickName(names []HumanName) *HumanName {
	for i := range names {
		if names[i].Use == "official" {
			return &names[i]
		}
	}
	if len(names) > 0 {
		return &names[0]
	}
	return nil
}

// ParseCondition extracts a Condition record. ICD-10 and SNOMED codings are
// scanned independently; a resource may carry both, one, or neither. When
// neither labeled system is present the first coding wins regardless of
// system. Clinical status defaults to "unknown".
func ParseCondition(raw json.RawMessage) (*Condition, error) {
	var resource conditionResource
	if err := decodeResource(raw, "Condition", &resource); err != nil {
		return nil, err
	}

	condition := Condition{
		ID:             resource.ID,
		ClinicalStatus: decodeStatus(resource.ClinicalStatus),
		OnsetDate:      resource.OnsetDateTime,
		RecordedDate:   resource.RecordedDate,
	}

	var codings []Coding
	if resource.Code != nil {
		codings = resource.Code.Coding
		condition.Display = resource.Code.Text
	}

	for _, coding := range codings {
		switch {
		case condition.ICD10Code == "" && isSystem(coding.System, constants.ICD10System, "icd-10"):
			condition.ICD10Code = coding.Code
			condition.ICD10Display = coding.Display
		case condition.SNOMEDCode == "" && isSystem(coding.System, constants.SNOMEDSystem, "snomed"):
			condition.SNOMEDCode = coding.Code
			condition.SNOMEDDisplay = coding.Display
		}
	}

	switch {
	case condition.ICD10Code != "":
		condition.Code = condition.ICD10Code
		condition.CodeSystem = constants.ICD10System
	case condition.SNOMEDCode != "":
		condition.Code = condition.SNOMEDCode
		condition.CodeSystem = constants.SNOMEDSystem
	case len(codings) > 0:
		condition.Code = codings[0].Code
		condition.CodeSystem = codings[0].System
		if condition.Display == "" {
			condition.Display = codings[0].Display
		}
	}

	if condition.Display == "" {
		switch {
		case condition.ICD10Display != "":
			condition.Display = condition.ICD10Display
		case condition.SNOMEDDisplay != "":
			condition.Display = condition.SNOMEDDisplay
		case len(codings) > 0:
			condition.Display = codings[0].Display
		}
	}

	return &condition, nil
}

// ParseMedication extracts a Medication record from a MedicationRequest.
// Name precedence: concept text, coded display, reference display, then the
// "Unknown Medication" fallback. Dosage text comes from the first
// instruction entry when one exists.
func ParseMedication(raw json.RawMessage) (*Medication, error) {
	var resource medicationRequestResource
	if err := decodeResource(raw, "MedicationRequest", &resource); err != nil {
		return nil, err
	}

	medication := Medication{
		ID:         resource.ID,
		Status:     resource.Status,
		AuthoredOn: resource.AuthoredOn,
	}

	if concept := resource.MedicationCodeableConcept; concept != nil {
		medication.Name = concept.Text
		for _, coding := range concept.Coding {
			if medication.Code == "" && isSystem(coding.System, constants.RxNormSystem, "rxnorm") {
				medication.Code = coding.Code
				medication.CodeSystem = coding.System
			}
			if medication.Name == "" && coding.Display != "" {
				medication.Name = coding.Display
			}
		}
		if medication.Code == "" && len(concept.Coding) > 0 {
			medication.Code = concept.Coding[0].Code
			medication.CodeSystem = concept.Coding[0].System
		}
	}

	if medication.Name == "" && resource.MedicationReference != nil {
		medication.Name = resource.MedicationReference.Display
	}
	if medication.Name == "" {
		medication.Name = constants.UnknownMedication
	}

	if len(resource.DosageInstructions) > 0 {
		dosage := resource.DosageInstructions[0]
		medication.DosageText = dosage.Text
		if medication.DosageText == "" {
			medication.DosageText = dosage.PatientInstruction
		}
	}

	return &medication, nil
}

// ParseEncounter extracts an Encounter record. Type and location prefer
// human-readable display text and fall back to the raw class code or
// location reference. Start/end are optional.
func ParseEncounter(raw json.RawMessage) (*Encounter, error) {
	var resource encounterResource
	if err := decodeResource(raw, "Encounter", &resource); err != nil {
		return nil, err
	}

	encounter := Encounter{
		ID:     resource.ID,
		Status: resource.Status,
	}

	classCode, classDisplay := decodeClass(resource.Class)
	encounter.ClassCode = classCode

	for _, t := range resource.Types {
		if t.Text != "" {
			encounter.Type = t.Text
			break
		}
		for _, coding := range t.Coding {
			if coding.Display != "" {
				encounter.Type = coding.Display
				break
			}
		}
		if encounter.Type != "" {
			break
		}
	}
	if encounter.Type == "" {
		encounter.Type = classDisplay
	}
	if encounter.Type == "" {
		encounter.Type = classCode
	}

	for _, loc := range resource.Locations {
		if loc.Location == nil {
			continue
		}
		if loc.Location.Display != "" {
			encounter.Location = loc.Location.Display
			break
		}
		if encounter.Location == "" {
			encounter.Location = loc.Location.Reference
		}
	}
	if encounter.Location == "" && resource.ServiceProvider != nil {
		encounter.Location = resource.ServiceProvider.Display
	}

	if resource.Period != nil {
		encounter.Start = resource.Period.Start
		encounter.End = resource.Period.End
	}

	return &encounter, nil
}

// Patients walks a bundle and parses every Patient entry. Entries that fail
// even fallback extraction are skipped; the count of skips is returned so
// the caller can log it.
func Patients(bundle *Bundle) ([]Patient, int) {
	patients := make([]Patient, 0)
	skipped := forEachResource(bundle, "Patient", func(raw json.RawMessage) bool {
		patient, err := ParsePatient(raw)
		if err != nil {
			return false
		}
		patients = append(patients, *patient)
		return true
	})
	return patients, skipped
}

// Conditions walks a bundle and parses every Condition entry.
func Conditions(bundle *Bundle) ([]Condition, int) {
	conditions := make([]Condition, 0)
	skipped := forEachResource(bundle, "Condition", func(raw json.RawMessage) bool {
		condition, err := ParseCondition(raw)
		if err != nil {
			return false
		}
		conditions = append(conditions, *condition)
		return true
	})
	return conditions, skipped
}

// Medications walks a bundle and parses every MedicationRequest entry.
func Medications(bundle *Bundle) ([]Medication, int) {
	medications := make([]Medication, 0)
	skipped := forEachResource(bundle, "MedicationRequest", func(raw json.RawMessage) bool {
		medication, err := ParseMedication(raw)
		if err != nil {
			return false
		}
		medications = append(medications, *medication)
		return true
	})
	return medications, skipped
}

// Encounters walks a bundle and parses every Encounter entry.
func Encounters(bundle *Bundle) ([]Encounter, int) {
	encounters := make([]Encounter, 0)
	skipped := forEachResource(bundle, "Encounter", func(raw json.RawMessage) bool {
		encounter, err := ParseEncounter(raw)
		if err != nil {
			return false
		}
		encounters = append(encounters, *encounter)
		return true
	})
	return encounters, skipped
}

// forEachResource invokes fn for each entry of the requested type and
// returns how many entries were skipped, counting both entries whose
// envelope could not be decoded and entries fn rejected.
func forEachResource(bundle *Bundle, resourceType string, fn func(json.RawMessage) bool) int {
	if bundle == nil {
		return 0
	}
	skipped := 0
	for _, entry := range bundle.Entries {
		if len(entry.Resource) == 0 {
			continue
		}
		var header resourceHeader
		if err := json.Unmarshal(entry.Resource, &header); err != nil {
			skipped++
			continue
		}
		if !strings.EqualFold(header.ResourceType, resourceType) {
			continue
		}
		if !fn(entry.Resource) {
			skipped++
		}
	}
	return skipped
}

func decodeResource(raw json.RawMessage, resourceType string, out interface{}) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return &customErrors.ParseError{Err: err, ResourceType: resourceType}
	}
	header := headerOf(out)
	if !strings.EqualFold(header.ResourceType, resourceType) {
		return &customErrors.ParseError{
			Err:          errors.Errorf("expected resourceType %s, got %q", resourceType, header.ResourceType),
			ResourceType: resourceType,
		}
	}
	return nil
}

func headerOf(resource interface{}) resourceHeader {
	switch r := resource.(type) {
	case *patientResource:
		return r.resourceHeader
	case *conditionResource:
		return r.resourceHeader
	case *medicationRequestResource:
		return r.resourceHeader
	case *encounterResource:
		return r.resourceHeader
	}
	return resourceHeader{}
}

// decodeStatus accepts clinicalStatus as either a bare code or a
// CodeableConcept and normalizes to a lowercase code, "unknown" when absent.
func decodeStatus(raw json.RawMessage) string {
	if len(raw) == 0 {
		return constants.StatusUnknown
	}

	var code string
	if err := json.Unmarshal(raw, &code); err == nil && code != "" {
		return strings.ToLower(code)
	}

	var concept CodeableConcept
	if err := json.Unmarshal(raw, &concept); err == nil {
		for _, coding := range concept.Coding {
			if coding.Code != "" {
				return strings.ToLower(coding.Code)
			}
		}
		if concept.Text != "" {
			return strings.ToLower(concept.Text)
		}
	}

	return constants.StatusUnknown
}

// decodeClass accepts class as either a Coding or a CodeableConcept (single
// or list) and returns the first code and display found.
func decodeClass(raw json.RawMessage) (code, display string) {
	if len(raw) == 0 {
		return "", ""
	}

	var coding Coding
	if err := json.Unmarshal(raw, &coding); err == nil && coding.Code != "" {
		return coding.Code, coding.Display
	}

	var concept CodeableConcept
	if err := json.Unmarshal(raw, &concept); err == nil && len(concept.Coding) > 0 {
		return concept.Coding[0].Code, concept.Coding[0].Display
	}

	var concepts []CodeableConcept
	if err := json.Unmarshal(raw, &concepts); err == nil {
		for _, c := range concepts {
			if len(c.Coding) > 0 {
				return c.Coding[0].Code, c.Coding[0].Display
			}
		}
	}

	return "", ""
}

func isSystem(system, canonical, fragment string) bool {
	if system == canonical {
		return true
	}
	return fragment != "" && strings.Contains(strings.ToLower(system), fragment)
}
