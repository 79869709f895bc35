package fixture

import (
	"encoding/json"
	"fmt"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/pkg/errors"

	"github.com/carenexus/ehrc-app/ehrc/constants"
)

// Pools for generated records. Codes are real ICD-10 / SNOMED / RxNorm values
// so generated data survives the same parsing as curated data.
var syntheticConditions = []struct {
	ICD10   string
	SNOMED  string
	Display string
}{
	{"E11.9", "44054006", "Type 2 diabetes mellitus without complications"},
	{"I10", "38341003", "Essential (primary) hypertension"},
	{"J45.909", "195967001", "Unspecified asthma, uncomplicated"},
	{"M54.5", "279039007", "Low back pain"},
	{"F41.1", "21897009", "Generalized anxiety disorder"},
	{"K21.9", "235595009", "Gastro-esophageal reflux disease without esophagitis"},
}

var syntheticMedications = []struct {
	Code    string
	Display string
}{
	{"860975", "24 HR metFORMIN hydrochloride 500 MG Extended Release Oral Tablet"},
	{"314076", "lisinopril 10 MG Oral Tablet"},
	{"617312", "atorvastatin 20 MG Oral Tablet"},
	{"197361", "amLODIPine 5 MG Oral Tablet"},
	{"310965", "ibuprofen 200 MG Oral Tablet"},
	{"197806", "omeprazole 20 MG Delayed Release Oral Capsule"},
}

var syntheticEncounterTypes = []string{
	"Annual physical",
	"Urgent care visit",
	"Telehealth follow-up",
	"Specialist consult",
	"Medication review",
}

// SyntheticBundle generates a collection bundle with n patients, each linked
// to a handful of conditions, medication requests, and encounters. Useful for
// load testing and for demos that need more than the builtin pair.
func SyntheticBundle(n int) ([]byte, error) {
	if n < 1 {
		return nil, errors.New("patient count must be at least 1")
	}

	entries := make([]map[string]interface{}, 0, n*4)
	for i := 0; i < n; i++ {
		mrn := randomdata.StringNumberExt(1, "", 8)
		patientID := fmt.Sprintf("syn-%s", mrn)
		entries = append(entries, entry(syntheticPatient(patientID, mrn)))

		for c := 0; c < 1+randomdata.Number(3); c++ {
			entries = append(entries, entry(syntheticCondition(patientID, i*10+c)))
		}
		for m := 0; m < 1+randomdata.Number(2); m++ {
			entries = append(entries, entry(syntheticMedication(patientID, i*10+m)))
		}
		for e := 0; e < 1+randomdata.Number(2); e++ {
			entries = append(entries, entry(syntheticEncounter(patientID, i*10+e)))
		}
	}

	bundle := map[string]interface{}{
		"resourceType": "Bundle",
		"type":         "collection",
		"entry":        entries,
	}
	return json.Marshal(bundle)
}

func entry(resource map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"resource": resource}
}

func syntheticPatient(id, mrn string) map[string]interface{} {
	return map[string]interface{}{
		"resourceType": "Patient",
		"id":           id,
		"identifier": []interface{}{
			map[string]interface{}{
				"use": "usual",
				"type": map[string]interface{}{
					"coding": []interface{}{
						map[string]interface{}{
							"system": constants.IdentifierTypeSystem,
							"code":   constants.MRNTypeCode,
						},
					},
				},
				"system": constants.MRNSystem,
				"value":  mrn,
			},
		},
		"name": []interface{}{
			map[string]interface{}{
				"use":    "official",
				"family": randomdata.LastName(),
				"given":  []interface{}{randomdata.FirstName(randomdata.RandomGender)},
			},
		},
		"gender":    randomdata.StringSample("male", "female"),
		"birthDate": randomDate(1940, 2005),
	}
}

func syntheticCondition(patientID string, seq int) map[string]interface{} {
	pick := syntheticConditions[randomdata.Number(len(syntheticConditions))]
	return map[string]interface{}{
		"resourceType":   "Condition",
		"id":             fmt.Sprintf("%s-cond-%d", patientID, seq),
		"clinicalStatus": randomdata.StringSample("active", "active", "active", "resolved"),
		"code": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{
					"system":  constants.ICD10System,
					"code":    pick.ICD10,
					"display": pick.Display,
				},
				map[string]interface{}{
					"system":  constants.SNOMEDSystem,
					"code":    pick.SNOMED,
					"display": pick.Display,
				},
			},
			"text": pick.Display,
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + patientID,
		},
		"onsetDateTime": randomDate(2015, 2026),
	}
}

func syntheticMedication(patientID string, seq int) map[string]interface{} {
	pick := syntheticMedications[randomdata.Number(len(syntheticMedications))]
	return map[string]interface{}{
		"resourceType": "MedicationRequest",
		"id":           fmt.Sprintf("%s-med-%d", patientID, seq),
		"status":       randomdata.StringSample("active", "active", "stopped"),
		"intent":       "order",
		"medicationCodeableConcept": map[string]interface{}{
			"coding": []interface{}{
				map[string]interface{}{
					"system":  constants.RxNormSystem,
					"code":    pick.Code,
					"display": pick.Display,
				},
			},
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + patientID,
		},
		"authoredOn": randomDate(2020, 2026),
		"dosageInstruction": []interface{}{
			map[string]interface{}{
				"text": fmt.Sprintf("Take %d tablet(s) by mouth daily.", 1+randomdata.Number(2)),
			},
		},
	}
}

func syntheticEncounter(patientID string, seq int) map[string]interface{} {
	start := randomDate(2024, 2026)
	return map[string]interface{}{
		"resourceType": "Encounter",
		"id":           fmt.Sprintf("%s-enc-%d", patientID, seq),
		"status":       "finished",
		"class": map[string]interface{}{
			"system":  "http://hl7.org/fhir/v3/ActCode",
			"code":    "AMB",
			"display": "ambulatory",
		},
		"type": []interface{}{
			map[string]interface{}{
				"text": syntheticEncounterTypes[randomdata.Number(len(syntheticEncounterTypes))],
			},
		},
		"subject": map[string]interface{}{
			"reference": "Patient/" + patientID,
		},
		"period": map[string]interface{}{
			"start": start + "T09:00:00Z",
			"end":   start + "T09:45:00Z",
		},
	}
}

func randomDate(minYear, maxYear int) string {
	min := time.Date(minYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(maxYear, time.December, 31, 0, 0, 0, 0, time.UTC)
	d := randomdata.FullDateInRange(min.Format(randomdata.DateInputLayout),
		max.Format(randomdata.DateInputLayout))
	t, err := time.Parse(randomdata.DateOutputLayout, d)
	// Same output format on both sides, so this should never occur
	if err != nil {
		return min.Format("2006-01-02")
	}
	return t.Format("2006-01-02")
}
