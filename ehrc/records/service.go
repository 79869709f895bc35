// Package records is the task-level surface consumed by document and wizard
// workflows. Callers receive parsed clinical records or typed errors; the
// wire client, token handling, and raw payload shapes stay hidden.
package records

import (
	"context"
	"encoding/base64"
	"encoding/json"
	goerrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/client"
	"github.com/carenexus/ehrc-app/ehrc/constants"
	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/log"
)

// DefaultEncounterCount bounds GetRecentEncounters when the caller passes
// no explicit limit.
const DefaultEncounterCount = 5

// Ensure service satisfies the interface
var _ Service = &service{}

// Service contains the facade operations over the clinical records API.
type Service interface {
	GetPatientByIdentifier(ctx context.Context, identifier string) (*fhir.Patient, error)

	GetActiveConditions(ctx context.Context, patientID string) ([]fhir.Condition, error)

	GetActiveMedications(ctx context.Context, patientID string) ([]fhir.Medication, error)

	GetRecentEncounters(ctx context.Context, patientID string, limit int) ([]fhir.Encounter, error)

	SubmitDocument(ctx context.Context, encounterID string, content []byte, format string) error

	Stats() client.StatsSnapshot
}

type service struct {
	client client.Client
	logger logrus.FieldLogger
}

func NewService(c client.Client) Service {
	return &service{
		client: c,
		logger: log.EHR,
	}
}

// GetPatientByIdentifier searches by MRN. The identifier is sent
// system-qualified so a record under another identifier system with the
// same value cannot shadow the MRN match.
func (s *service) GetPatientByIdentifier(ctx context.Context, identifier string) (*fhir.Patient, error) {
	if identifier == "" {
		return nil, &customErrors.NotFoundError{Err: goerrors.New("empty identifier"), ResourceType: "Patient", Identifier: identifier}
	}

	params := url.Values{}
	params.Set("identifier", constants.MRNSystem+"|"+identifier)

	payload, err := s.client.Get(ctx, "/Patient", params)
	if err != nil {
		return nil, asNotFound(err, "Patient", identifier)
	}

	bundle, err := fhir.ParseBundle(payload)
	if err != nil {
		return nil, err
	}

	patients, skipped := fhir.Patients(bundle)
	s.logSkipped("Patient", skipped)
	if len(patients) == 0 {
		return nil, &customErrors.NotFoundError{Err: goerrors.New("no matching resource"), ResourceType: "Patient", Identifier: identifier}
	}

	return &patients[0], nil
}

// GetActiveConditions returns the patient's active problem list. A patient
// with nothing active yields an empty list.
func (s *service) GetActiveConditions(ctx context.Context, patientID string) ([]fhir.Condition, error) {
	params := url.Values{}
	params.Set("patient", patientID)
	params.Set("clinical-status", constants.StatusActive)

	payload, err := s.client.Get(ctx, "/Condition", params)
	if err != nil {
		return nil, asNotFound(err, "Condition", patientID)
	}

	bundle, err := fhir.ParseBundle(payload)
	if err != nil {
		return nil, err
	}

	conditions, skipped := fhir.Conditions(bundle)
	s.logSkipped("Condition", skipped)
	return conditions, nil
}

// GetActiveMedications returns the patient's active medication orders.
func (s *service) GetActiveMedications(ctx context.Context, patientID string) ([]fhir.Medication, error) {
	params := url.Values{}
	params.Set("patient", patientID)
	params.Set("status", constants.StatusActive)

	payload, err := s.client.Get(ctx, "/MedicationRequest", params)
	if err != nil {
		return nil, asNotFound(err, "MedicationRequest", patientID)
	}

	bundle, err := fhir.ParseBundle(payload)
	if err != nil {
		return nil, err
	}

	medications, skipped := fhir.Medications(bundle)
	s.logSkipped("MedicationRequest", skipped)
	return medications, nil
}

// GetRecentEncounters returns up to limit encounters, most recent first.
func (s *service) GetRecentEncounters(ctx context.Context, patientID string, limit int) ([]fhir.Encounter, error) {
	if limit < 1 {
		limit = DefaultEncounterCount
	}

	params := url.Values{}
	params.Set("patient", patientID)
	params.Set("_sort", "-date")
	params.Set("_count", strconv.Itoa(limit))

	payload, err := s.client.Get(ctx, "/Encounter", params)
	if err != nil {
		return nil, asNotFound(err, "Encounter", patientID)
	}

	bundle, err := fhir.ParseBundle(payload)
	if err != nil {
		return nil, err
	}

	encounters, skipped := fhir.Encounters(bundle)
	s.logSkipped("Encounter", skipped)
	if len(encounters) > limit {
		encounters = encounters[:limit]
	}
	return encounters, nil
}

type documentReference struct {
	ResourceType string            `json:"resourceType"`
	Status       string            `json:"status"`
	Date         string            `json:"date"`
	Context      *documentContext  `json:"context,omitempty"`
	Content      []documentContent `json:"content"`
}

type documentContext struct {
	Encounter []fhir.Reference `json:"encounter,omitempty"`
}

type documentContent struct {
	Attachment documentAttachment `json:"attachment"`
}

type documentAttachment struct {
	ContentType string `json:"contentType,omitempty"`
	Data        string `json:"data,omitempty"`
}

// SubmitDocument posts a finished document against an encounter. Success is
// determined entirely by the wire outcome; the response body is not parsed.
func (s *service) SubmitDocument(ctx context.Context, encounterID string, content []byte, format string) error {
	if encounterID == "" {
		return errors.New("encounter id is required")
	}
	if len(content) == 0 {
		return errors.New("document content is required")
	}

	doc := documentReference{
		ResourceType: "DocumentReference",
		Status:       "current",
		Date:         time.Now().UTC().Format(time.RFC3339),
		Context: &documentContext{
			Encounter: []fhir.Reference{{Reference: "Encounter/" + encounterID}},
		},
		Content: []documentContent{{
			Attachment: documentAttachment{
				ContentType: format,
				Data:        base64.StdEncoding.EncodeToString(content),
			},
		}},
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "marshaling document reference")
	}

	if _, err := s.client.Post(ctx, "/DocumentReference", body); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"op":           "submit_document",
		"encounter_id": encounterID,
		"bytes":        len(content),
	}).Info("document submitted")
	return nil
}

func (s *service) Stats() client.StatsSnapshot {
	return s.client.Stats()
}

// asNotFound translates a wire-level 404 into the facade's NotFoundError.
// Every other error passes through unchanged.
func asNotFound(err error, resourceType, identifier string) error {
	var clientErr *customErrors.ClientError
	if goerrors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
		return &customErrors.NotFoundError{Err: clientErr, ResourceType: resourceType, Identifier: identifier}
	}
	return err
}

func (s *service) logSkipped(resourceType string, skipped int) {
	if skipped == 0 {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"resource_type": resourceType,
		"skipped":       skipped,
	}).Warn("skipped undecodable bundle entries")
}
