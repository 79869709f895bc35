package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/client"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/ehrc/records"
)

var (
	apiHost, proto, clientID, clientSecret, mrn, documentPath string
	timeout                                                   int
)

func init() {
	flag.StringVar(&clientID, "clientID", "", "client id for retrieving an access token")
	flag.StringVar(&clientSecret, "clientSecret", "", "client secret for retrieving an access token")
	flag.StringVar(&apiHost, "host", "localhost:3000", "host to send requests to")
	flag.StringVar(&proto, "proto", "http", "protocol to use")
	flag.StringVar(&mrn, "mrn", "12345678", "medical record number to look up")
	flag.StringVar(&documentPath, "document", "", "path of a visit summary to submit; skipped when empty")
	flag.IntVar(&timeout, "timeout", 60, "amount of time to wait for the full round trip to finish.")
	flag.Parse()

	log.SetReportCaller(true)
}

func main() {
	cfg := &client.Config{
		BaseURL:          fmt.Sprintf("%s://%s", proto, apiHost),
		TokenURL:         fmt.Sprintf("%s://%s/auth/token", proto, apiHost),
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		Scope:            "system/*.read",
		TimeoutSec:       30,
		MaxAttempts:      3,
		BackoffBaseMS:    500,
		TokenMarginSec:   60,
		TokenLifetimeSec: 300,
	}

	svc := records.NewService(client.NewEHRClient(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	log.Infof("record lookup on %s://%s for MRN %s", proto, apiHost, mrn)

	patient, err := svc.GetPatientByIdentifier(ctx, mrn)
	if err != nil {
		log.Errorf("Failed to fetch patient %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Found patient %s (%s)", patient.ID, patient.FullName())

	conditions, err := svc.GetActiveConditions(ctx, patient.ID)
	if err != nil {
		log.Errorf("Failed to fetch active conditions %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Patient has %d active conditions", len(conditions))

	medications, err := svc.GetActiveMedications(ctx, patient.ID)
	if err != nil {
		log.Errorf("Failed to fetch active medications %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Patient has %d active medication orders", len(medications))

	encounters, err := svc.GetRecentEncounters(ctx, patient.ID, records.DefaultEncounterCount)
	if err != nil {
		log.Errorf("Failed to fetch recent encounters %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Patient has %d recent encounters", len(encounters))

	if documentPath != "" {
		if len(encounters) == 0 {
			log.Error("No encounter available to attach the document to")
			os.Exit(1)
		}
		content, err := ioutil.ReadFile(filepath.Clean(documentPath))
		if err != nil {
			log.Errorf("Failed to read document %s", err.Error())
			os.Exit(1)
		}
		if err := svc.SubmitDocument(ctx, encounters[0].ID, content, "application/pdf"); err != nil {
			log.Errorf("Failed to submit document %s", err.Error())
			os.Exit(1)
		}
		log.Infof("Submitted document for encounter %s", encounters[0].ID)
	}

	if mrn == "12345678" {
		if err := validateBuiltinPatient(patient.Family, conditions); err != nil {
			log.Errorf("Failed to validate builtin records %s", err.Error())
			os.Exit(1)
		}
		log.Info("Finished validating builtin records")
	}

	out, err := json.Marshal(svc.Stats())
	if err != nil {
		log.Errorf("Failed to marshal client statistics %s", err.Error())
		os.Exit(1)
	}
	log.Infof("Client statistics %s", out)
}

// validateBuiltinPatient checks the well-known patient a fixture server ships
// with, so a smoke run exercises the full decode path and not just transport.
func validateBuiltinPatient(family string, conditions []fhir.Condition) error {
	if family != "Smith" {
		return fmt.Errorf("expected family name Smith, got '%s'", family)
	}
	if len(conditions) != 2 {
		return fmt.Errorf("expected 2 active conditions, got %d", len(conditions))
	}
	for _, c := range conditions {
		if c.ICD10Code == "E11.9" {
			return nil
		}
	}
	return errors.New("expected an active condition coded E11.9")
}
