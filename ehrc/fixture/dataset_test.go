package fixture

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/ehrc/testUtils"
)

type DatasetTestSuite struct {
	suite.Suite
	dataset *Dataset
}

func (s *DatasetTestSuite) SetupTest() {
	var err error
	s.dataset, err = NewDataset(true, "")
	require.Nil(s.T(), err)
}

func (s *DatasetTestSuite) TestBuiltinCounts() {
	counts := s.dataset.Counts()
	assert.Equal(s.T(), 2, counts.Patients)
	assert.Equal(s.T(), 4, counts.Conditions)
	assert.Equal(s.T(), 4, counts.Medications)
	assert.Equal(s.T(), 3, counts.Encounters)
	assert.Equal(s.T(), 0, counts.Documents)
}

func (s *DatasetTestSuite) TestPatientLookup() {
	raw, ok := s.dataset.PatientByMRN("12345678")
	require.True(s.T(), ok)

	patient, err := fhir.ParsePatient(raw)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "pat-10001", patient.ID)
	assert.Equal(s.T(), "Smith", patient.Family)
	assert.Equal(s.T(), "12345678", patient.MRN)

	_, ok = s.dataset.PatientByID("pat-10002")
	assert.True(s.T(), ok)

	_, ok = s.dataset.PatientByMRN("00000000")
	assert.False(s.T(), ok)
}

func (s *DatasetTestSuite) TestConditionStatusFilter() {
	active := s.dataset.ConditionsFor("pat-10001", "active")
	assert.Len(s.T(), active, 2)

	all := s.dataset.ConditionsFor("pat-10001", "")
	assert.Len(s.T(), all, 3)

	resolved := s.dataset.ConditionsFor("pat-10001", "resolved")
	require.Len(s.T(), resolved, 1)
	condition, err := fhir.ParseCondition(resolved[0])
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "J45.909", condition.ICD10Code)

	unknown := s.dataset.ConditionsFor("pat-99999", "active")
	assert.NotNil(s.T(), unknown)
	assert.Empty(s.T(), unknown)
}

func (s *DatasetTestSuite) TestMedicationStatusFilter() {
	active := s.dataset.MedicationsFor("pat-10001", "active")
	assert.Len(s.T(), active, 2)

	all := s.dataset.MedicationsFor("pat-10001", "")
	assert.Len(s.T(), all, 3)
}

func (s *DatasetTestSuite) TestEncounterOrderingAndLimit() {
	encounters := s.dataset.EncountersFor("pat-10001", 0, true)
	require.Len(s.T(), encounters, 2)
	assert.Equal(s.T(), "enc-40001", resourceID(s.T(), encounters[0]))
	assert.Equal(s.T(), "enc-40002", resourceID(s.T(), encounters[1]))

	limited := s.dataset.EncountersFor("pat-10001", 1, true)
	require.Len(s.T(), limited, 1)
	assert.Equal(s.T(), "enc-40001", resourceID(s.T(), limited[0]))
}

func (s *DatasetTestSuite) TestAddDocument() {
	id, err := s.dataset.AddDocument([]byte(`{
		"resourceType": "DocumentReference",
		"status": "current",
		"context": {"encounter": [{"reference": "Encounter/enc-40001"}]}
	}`))
	require.Nil(s.T(), err)
	assert.NotEmpty(s.T(), id)
	assert.Len(s.T(), s.dataset.Documents(), 1)
	assert.Equal(s.T(), 1, s.dataset.Counts().Documents)
}

func (s *DatasetTestSuite) TestAddDocumentRejectsWrongType() {
	_, err := s.dataset.AddDocument([]byte(`{"resourceType": "Patient"}`))
	assert.Contains(s.T(), err.Error(), "expected resourceType DocumentReference")

	_, err = s.dataset.AddDocument([]byte(`not json`))
	assert.NotNil(s.T(), err)
}

func (s *DatasetTestSuite) TestEntriesWithoutLinksAreSkipped() {
	before := s.dataset.Counts()
	err := s.dataset.AddBundle([]byte(`{
		"resourceType": "Bundle",
		"type": "collection",
		"entry": [
			{"resource": {"resourceType": "Condition", "id": "orphan", "clinicalStatus": "active"}},
			{"resource": {"resourceType": "Patient"}}
		]
	}`))
	require.Nil(s.T(), err)
	assert.Equal(s.T(), before, s.dataset.Counts())
}

func (s *DatasetTestSuite) TestLoadDirectory() {
	dir, err := ioutil.TempDir("", "ehrc-dataset")
	require.Nil(s.T(), err)
	defer func() { _ = os.RemoveAll(dir) }()

	require.Nil(s.T(), ioutil.WriteFile(filepath.Join(dir, "good.json"), []byte(jonesOnlyBundle), 0600))
	require.Nil(s.T(), ioutil.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"resourceType": "Patient"}`), 0600))
	require.Nil(s.T(), ioutil.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0600))

	dataset, err := NewDataset(false, dir)
	require.Nil(s.T(), err)

	counts := dataset.Counts()
	assert.Equal(s.T(), 1, counts.Patients)
	assert.Equal(s.T(), 1, counts.Conditions)

	_, ok := dataset.PatientByMRN("87651234")
	assert.True(s.T(), ok)

	// A second file appears, a reload picks it up.
	require.Nil(s.T(), ioutil.WriteFile(filepath.Join(dir, "more.json"), []byte(smithOnlyBundle), 0600))
	require.Nil(s.T(), dataset.Reload())
	assert.Equal(s.T(), 2, dataset.Counts().Patients)
}

func (s *DatasetTestSuite) TestLoadSharedFixtureData() {
	dir, cleanup := testUtils.CopyToTemporaryDirectory(s.T(), "../../shared_files/fixture_data")
	defer cleanup()

	dataset, err := NewDataset(false, dir)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), 2, dataset.Counts().Patients)

	raw, ok := dataset.PatientByMRN("44442222")
	require.True(s.T(), ok)
	patient, err := fhir.ParsePatient(raw)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), "Nguyen", patient.Family)

	// Removing a file from the copy must not touch the checked-in data.
	require.Nil(s.T(), os.Remove(filepath.Join(dir, "cardiology.json")))
	require.Nil(s.T(), dataset.Reload())
	assert.Equal(s.T(), 1, dataset.Counts().Patients)

	_, err = os.Stat("../../shared_files/fixture_data/cardiology.json")
	assert.Nil(s.T(), err)
}

func (s *DatasetTestSuite) TestWatchReloadsOnChange() {
	dir, err := ioutil.TempDir("", "ehrc-watch")
	require.Nil(s.T(), err)
	defer func() { _ = os.RemoveAll(dir) }()

	dataset, err := NewDataset(false, dir)
	require.Nil(s.T(), err)
	assert.Equal(s.T(), 0, dataset.Counts().Patients)

	stop, err := dataset.Watch()
	require.Nil(s.T(), err)
	defer stop()

	require.Nil(s.T(), ioutil.WriteFile(filepath.Join(dir, "new.json"), []byte(smithOnlyBundle), 0600))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if dataset.Counts().Patients == 1 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	assert.Equal(s.T(), 1, dataset.Counts().Patients)
}

func (s *DatasetTestSuite) TestWatchRequiresDirectory() {
	_, err := s.dataset.Watch()
	assert.EqualError(s.T(), err, "no dataset directory to watch")
}

func resourceID(t *testing.T, raw json.RawMessage) string {
	var header struct {
		ID string `json:"id"`
	}
	require.Nil(t, json.Unmarshal(raw, &header))
	return header.ID
}

const jonesOnlyBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {
      "resource": {
        "resourceType": "Patient",
        "id": "pat-20001",
        "identifier": [{"system": "http://hospital.carenexus.org/mrn", "value": "87651234"}],
        "name": [{"use": "official", "family": "Jones", "given": ["Robert"]}]
      }
    },
    {
      "resource": {
        "resourceType": "Condition",
        "id": "cond-50001",
        "clinicalStatus": "active",
        "code": {"coding": [{"system": "http://hl7.org/fhir/sid/icd-10", "code": "I10"}]},
        "subject": {"reference": "Patient/pat-20001"}
      }
    }
  ]
}`

const smithOnlyBundle = `{
  "resourceType": "Bundle",
  "type": "collection",
  "entry": [
    {
      "resource": {
        "resourceType": "Patient",
        "id": "pat-20002",
        "identifier": [{"system": "http://hospital.carenexus.org/mrn", "value": "55556666"}],
        "name": [{"use": "official", "family": "Smith", "given": ["Alice"]}]
      }
    }
  ]
}`

func TestDatasetTestSuite(t *testing.T) {
	suite.Run(t, new(DatasetTestSuite))
}
