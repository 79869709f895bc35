package fixture

// builtinBundle seeds the fixture with two patients and enough linked
// resources to exercise every search the client performs. Served resources
// are STU3 shaped: bare-code clinicalStatus, Coding-valued encounter class.
const builtinBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {
      "fullUrl": "urn:fixture:Patient/pat-10001",
      "resource": {
        "resourceType": "Patient",
        "id": "pat-10001",
        "identifier": [
          {
            "use": "usual",
            "type": {
              "coding": [
                {
                  "system": "http://terminology.hl7.org/CodeSystem/v2-0203",
                  "code": "MR",
                  "display": "Medical record number"
                }
              ]
            },
            "system": "http://hospital.carenexus.org/mrn",
            "value": "12345678"
          },
          {
            "use": "secondary",
            "system": "http://hospital.carenexus.org/legacy-id",
            "value": "Z-4417"
          }
        ],
        "name": [
          {
            "use": "official",
            "family": "Smith",
            "given": ["Jane", "Ellen"]
          },
          {
            "use": "nickname",
            "given": ["Janie"]
          }
        ],
        "gender": "female",
        "birthDate": "1985-03-22"
      }
    },
    {
      "fullUrl": "urn:fixture:Patient/pat-10002",
      "resource": {
        "resourceType": "Patient",
        "id": "pat-10002",
        "identifier": [
          {
            "use": "usual",
            "type": {
              "coding": [
                {
                  "system": "http://terminology.hl7.org/CodeSystem/v2-0203",
                  "code": "MR",
                  "display": "Medical record number"
                }
              ]
            },
            "system": "http://hospital.carenexus.org/mrn",
            "value": "87651234"
          }
        ],
        "name": [
          {
            "use": "official",
            "family": "Jones",
            "given": ["Robert"]
          }
        ],
        "gender": "male",
        "birthDate": "1972-11-08"
      }
    },
    {
      "fullUrl": "urn:fixture:Condition/cond-20001",
      "resource": {
        "resourceType": "Condition",
        "id": "cond-20001",
        "clinicalStatus": "active",
        "verificationStatus": "confirmed",
        "code": {
          "coding": [
            {
              "system": "http://hl7.org/fhir/sid/icd-10",
              "code": "E11.9",
              "display": "Type 2 diabetes mellitus without complications"
            },
            {
              "system": "http://snomed.info/sct",
              "code": "44054006",
              "display": "Diabetes mellitus type 2"
            }
          ],
          "text": "Type 2 diabetes mellitus"
        },
        "subject": {
          "reference": "Patient/pat-10001",
          "display": "Jane Smith"
        },
        "onsetDateTime": "2019-06-14",
        "recordedDate": "2019-06-20"
      }
    },
    {
      "fullUrl": "urn:fixture:Condition/cond-20002",
      "resource": {
        "resourceType": "Condition",
        "id": "cond-20002",
        "clinicalStatus": "active",
        "verificationStatus": "confirmed",
        "code": {
          "coding": [
            {
              "system": "http://snomed.info/sct",
              "code": "38341003",
              "display": "Hypertensive disorder, systemic arterial"
            }
          ]
        },
        "subject": {
          "reference": "Patient/pat-10001",
          "display": "Jane Smith"
        },
        "onsetDateTime": "2021-02-03"
      }
    },
    {
      "fullUrl": "urn:fixture:Condition/cond-20003",
      "resource": {
        "resourceType": "Condition",
        "id": "cond-20003",
        "clinicalStatus": "resolved",
        "verificationStatus": "confirmed",
        "code": {
          "coding": [
            {
              "system": "http://hl7.org/fhir/sid/icd-10",
              "code": "J45.909",
              "display": "Unspecified asthma, uncomplicated"
            }
          ],
          "text": "Childhood asthma"
        },
        "subject": {
          "reference": "Patient/pat-10001",
          "display": "Jane Smith"
        },
        "onsetDateTime": "1994-09-01"
      }
    },
    {
      "fullUrl": "urn:fixture:Condition/cond-20004",
      "resource": {
        "resourceType": "Condition",
        "id": "cond-20004",
        "clinicalStatus": "active",
        "verificationStatus": "confirmed",
        "code": {
          "coding": [
            {
              "system": "http://hl7.org/fhir/sid/icd-10",
              "code": "I10",
              "display": "Essential (primary) hypertension"
            }
          ]
        },
        "subject": {
          "reference": "Patient/pat-10002",
          "display": "Robert Jones"
        },
        "onsetDateTime": "2018-12-01"
      }
    },
    {
      "fullUrl": "urn:fixture:MedicationRequest/med-30001",
      "resource": {
        "resourceType": "MedicationRequest",
        "id": "med-30001",
        "status": "active",
        "intent": "order",
        "medicationCodeableConcept": {
          "coding": [
            {
              "system": "http://www.nlm.nih.gov/research/umls/rxnorm",
              "code": "860975",
              "display": "24 HR metFORMIN hydrochloride 500 MG Extended Release Oral Tablet"
            }
          ],
          "text": "Metformin 500mg ER"
        },
        "subject": {
          "reference": "Patient/pat-10001"
        },
        "authoredOn": "2024-02-10",
        "dosageInstruction": [
          {
            "text": "Take one tablet by mouth twice daily with meals."
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:MedicationRequest/med-30002",
      "resource": {
        "resourceType": "MedicationRequest",
        "id": "med-30002",
        "status": "active",
        "intent": "order",
        "medicationCodeableConcept": {
          "coding": [
            {
              "system": "http://www.nlm.nih.gov/research/umls/rxnorm",
              "code": "314076",
              "display": "lisinopril 10 MG Oral Tablet"
            }
          ],
          "text": "Lisinopril 10mg"
        },
        "subject": {
          "reference": "Patient/pat-10001"
        },
        "authoredOn": "2023-08-17",
        "dosageInstruction": [
          {
            "text": "Take one tablet by mouth once daily."
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:MedicationRequest/med-30003",
      "resource": {
        "resourceType": "MedicationRequest",
        "id": "med-30003",
        "status": "stopped",
        "intent": "order",
        "medicationCodeableConcept": {
          "coding": [
            {
              "system": "http://www.nlm.nih.gov/research/umls/rxnorm",
              "code": "617312",
              "display": "atorvastatin 20 MG Oral Tablet"
            }
          ],
          "text": "Atorvastatin 20mg"
        },
        "subject": {
          "reference": "Patient/pat-10001"
        },
        "authoredOn": "2022-05-30",
        "dosageInstruction": [
          {
            "text": "Take one tablet by mouth at bedtime."
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:MedicationRequest/med-30004",
      "resource": {
        "resourceType": "MedicationRequest",
        "id": "med-30004",
        "status": "active",
        "intent": "order",
        "medicationCodeableConcept": {
          "coding": [
            {
              "system": "http://www.nlm.nih.gov/research/umls/rxnorm",
              "code": "197361",
              "display": "amLODIPine 5 MG Oral Tablet"
            }
          ],
          "text": "Amlodipine 5mg"
        },
        "subject": {
          "reference": "Patient/pat-10002"
        },
        "authoredOn": "2024-11-05",
        "dosageInstruction": [
          {
            "text": "Take one tablet by mouth every morning."
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:Encounter/enc-40001",
      "resource": {
        "resourceType": "Encounter",
        "id": "enc-40001",
        "status": "finished",
        "class": {
          "system": "http://hl7.org/fhir/v3/ActCode",
          "code": "AMB",
          "display": "ambulatory"
        },
        "type": [
          {
            "text": "Endocrinology follow-up"
          }
        ],
        "subject": {
          "reference": "Patient/pat-10001"
        },
        "period": {
          "start": "2026-07-15T09:30:00Z",
          "end": "2026-07-15T10:05:00Z"
        },
        "location": [
          {
            "location": {
              "reference": "Location/loc-100",
              "display": "CareNexus Endocrinology Clinic"
            }
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:Encounter/enc-40002",
      "resource": {
        "resourceType": "Encounter",
        "id": "enc-40002",
        "status": "finished",
        "class": {
          "system": "http://hl7.org/fhir/v3/ActCode",
          "code": "AMB",
          "display": "ambulatory"
        },
        "type": [
          {
            "text": "Annual physical"
          }
        ],
        "subject": {
          "reference": "Patient/pat-10001"
        },
        "period": {
          "start": "2026-01-20T14:00:00Z",
          "end": "2026-01-20T14:45:00Z"
        },
        "location": [
          {
            "location": {
              "reference": "Location/loc-200",
              "display": "CareNexus Primary Care"
            }
          }
        ]
      }
    },
    {
      "fullUrl": "urn:fixture:Encounter/enc-40003",
      "resource": {
        "resourceType": "Encounter",
        "id": "enc-40003",
        "status": "finished",
        "class": {
          "system": "http://hl7.org/fhir/v3/ActCode",
          "code": "IMP",
          "display": "inpatient encounter"
        },
        "type": [
          {
            "text": "Cardiology consult"
          }
        ],
        "subject": {
          "reference": "Patient/pat-10002"
        },
        "period": {
          "start": "2026-05-02T08:15:00Z",
          "end": "2026-05-04T11:00:00Z"
        },
        "location": [
          {
            "location": {
              "reference": "Location/loc-300",
              "display": "CareNexus Cardiology Ward"
            }
          }
        ]
      }
    }
  ]
}`
