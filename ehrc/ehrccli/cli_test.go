package ehrccli

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/urfave/cli"

	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
	"github.com/carenexus/ehrc-app/ehrc/fixture"
	"github.com/carenexus/ehrc-app/ehrc/testUtils"
)

type CLITestSuite struct {
	suite.Suite
	testApp *cli.App

	dataset *fixture.Dataset
	server  *fixture.Server
	ts      *httptest.Server
	restore []func()
}

func (s *CLITestSuite) SetupSuite() {
	var err error
	s.dataset, err = fixture.NewDataset(true, "")
	require.Nil(s.T(), err)
	s.server, err = fixture.NewServer(s.dataset)
	require.Nil(s.T(), err)
	require.Nil(s.T(), s.server.Register("cli-client", "cli-secret"))
	s.ts = httptest.NewServer(s.server.Router())

	s.restore = []func(){
		testUtils.SetAndRestoreEnvKey("EHRC_API_BASE_URL", s.ts.URL),
		testUtils.SetAndRestoreEnvKey("EHRC_TOKEN_URL", s.ts.URL+"/auth/token"),
		testUtils.SetAndRestoreEnvKey("EHRC_CLIENT_ID", "cli-client"),
		testUtils.SetAndRestoreEnvKey("EHRC_CLIENT_SECRET", "cli-secret"),
		testUtils.SetAndRestoreEnvKey("EHRC_RETRY_BACKOFF_BASE_MS", "25"),
		testUtils.SetAndRestoreEnvKey("DEPLOYMENT_TARGET", ""),
	}
}

func (s *CLITestSuite) TearDownSuite() {
	for _, restore := range s.restore {
		restore()
	}
	s.ts.Close()
}

func (s *CLITestSuite) SetupTest() {
	s.testApp = GetApp()
}

func TestCLITestSuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (s *CLITestSuite) TestSetup() {
	app := setUpApp()
	assert.Equal(s.T(), app.Name, Name)
	assert.Equal(s.T(), app.Usage, Usage)
}

func (s *CLITestSuite) TestCreateFixtureCredentials() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "create-fixture-credentials"})
	assert.Nil(s.T(), err)

	var creds fixture.Credentials
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &creds))
	assert.NotEmpty(s.T(), creds.ClientID)
	assert.Len(s.T(), creds.ClientSecret, 80)
}

func (s *CLITestSuite) TestGetPatient() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "get-patient", "--identifier", "12345678"})
	assert.Nil(s.T(), err)

	var patient struct {
		fhir.Patient
		FullName string `json:"full_name"`
	}
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &patient))
	assert.Equal(s.T(), "pat-10001", patient.ID)
	assert.Equal(s.T(), "Smith", patient.Family)
	assert.Equal(s.T(), "Jane Ellen Smith", patient.FullName)
}

func (s *CLITestSuite) TestGetPatientByScan() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "get-patient", "--scan", "^MRN^87651234^JONES^ROBERT^"})
	assert.Nil(s.T(), err)

	var patient fhir.Patient
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &patient))
	assert.Equal(s.T(), "pat-10002", patient.ID)
	assert.Equal(s.T(), "Jones", patient.Family)
}

func (s *CLITestSuite) TestGetPatientNotFound() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "get-patient", "--identifier", "00000000"})

	var notFound *customErrors.NotFoundError
	assert.ErrorAs(s.T(), err, &notFound)
	assert.Empty(s.T(), buf.String())
}

func (s *CLITestSuite) TestGetPatientRequiresIdentifier() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "get-patient"})
	assert.EqualError(s.T(), err, "an identifier (--identifier) or scan (--scan) is required")
	assert.Empty(s.T(), buf.String())
}

func (s *CLITestSuite) TestActiveConditions() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "active-conditions", "--patient", "pat-10001"})
	assert.Nil(s.T(), err)

	var conditions []fhir.Condition
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &conditions))
	require.Len(s.T(), conditions, 2)

	codes := []string{conditions[0].Code, conditions[1].Code}
	assert.Contains(s.T(), codes, "E11.9")
	assert.Contains(s.T(), codes, "38341003")
}

func (s *CLITestSuite) TestActiveConditionsRequiresPatient() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "active-conditions"})
	assert.EqualError(s.T(), err, "a patient id (--patient) is required")
	assert.Empty(s.T(), buf.String())
}

func (s *CLITestSuite) TestActiveMedications() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "active-medications", "--patient", "pat-10001"})
	assert.Nil(s.T(), err)

	var medications []fhir.Medication
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &medications))
	require.Len(s.T(), medications, 2)

	names := []string{medications[0].Name, medications[1].Name}
	assert.Contains(s.T(), names, "Metformin 500mg ER")
	assert.Contains(s.T(), names, "Lisinopril 10mg")
}

func (s *CLITestSuite) TestRecentEncountersHonorsLimit() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "recent-encounters", "--patient", "pat-10001", "--limit", "1"})
	assert.Nil(s.T(), err)

	var encounters []fhir.Encounter
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &encounters))
	require.Len(s.T(), encounters, 1)
	assert.Equal(s.T(), "enc-40001", encounters[0].ID)
	assert.Equal(s.T(), "Endocrinology follow-up", encounters[0].Type)
}

func (s *CLITestSuite) TestSubmitDocument() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	dir, err := ioutil.TempDir("", "ehrc-doc")
	require.Nil(s.T(), err)
	defer func() { _ = os.RemoveAll(dir) }()

	docPath := filepath.Join(dir, "note.txt")
	require.Nil(s.T(), ioutil.WriteFile(docPath, []byte("Discharge note."), 0600))

	before := len(s.dataset.Documents())
	err = s.testApp.Run([]string{"ehrc", "submit-document",
		"--encounter", "enc-40001", "--file", docPath, "--format", "text/plain"})
	assert.Nil(s.T(), err)
	assert.Contains(s.T(), buf.String(), "Submitted document for encounter enc-40001")
	assert.Len(s.T(), s.dataset.Documents(), before+1)
}

func (s *CLITestSuite) TestSubmitDocumentRequiresFile() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "submit-document", "--encounter", "enc-40001"})
	assert.EqualError(s.T(), err, "a document file (--file) is required")
}

func (s *CLITestSuite) TestDecodeScan() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "decode-scan", "--value", "^MRN^12345678^NAME^SMITH^"})
	assert.Nil(s.T(), err)

	var decoded struct {
		Identifier string `json:"identifier"`
		Format     string `json:"format"`
	}
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(s.T(), "12345678", decoded.Identifier)
	assert.Equal(s.T(), "delimited", decoded.Format)
}

func (s *CLITestSuite) TestDecodeScanFromFile() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	dir, err := ioutil.TempDir("", "ehrc-scan")
	require.Nil(s.T(), err)
	defer func() { _ = os.RemoveAll(dir) }()

	scanPath := filepath.Join(dir, "scan.bin")
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("MRN: 12345678\r\n")...)
	require.Nil(s.T(), ioutil.WriteFile(scanPath, raw, 0600))

	err = s.testApp.Run([]string{"ehrc", "decode-scan", "--file", scanPath})
	assert.Nil(s.T(), err)

	var decoded struct {
		Identifier string `json:"identifier"`
		Format     string `json:"format"`
	}
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(s.T(), "12345678", decoded.Identifier)
	assert.Equal(s.T(), "labeled", decoded.Format)
}

func (s *CLITestSuite) TestHealth() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "health"})
	assert.Nil(s.T(), err)

	var report struct {
		EHRReachable bool   `json:"ehr_reachable"`
		EHRDetail    string `json:"ehr_detail"`
		AuthOK       bool   `json:"auth_ok"`
		TokenValid   bool   `json:"token_valid"`
	}
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &report))
	assert.True(s.T(), report.EHRReachable)
	assert.Equal(s.T(), "ok", report.EHRDetail)
	assert.True(s.T(), report.AuthOK)
	assert.True(s.T(), report.TokenValid)
}

func (s *CLITestSuite) TestPing() {
	buf := new(bytes.Buffer)
	s.testApp.Writer = buf

	err := s.testApp.Run([]string{"ehrc", "ping"})
	assert.Nil(s.T(), err)

	var snapshot struct {
		TotalAttempts uint64 `json:"total_attempts"`
		ErrorCount    uint64 `json:"error_count"`
		TokenValid    bool   `json:"token_valid"`
	}
	require.Nil(s.T(), json.Unmarshal(buf.Bytes(), &snapshot))
	assert.EqualValues(s.T(), 1, snapshot.TotalAttempts)
	assert.EqualValues(s.T(), 0, snapshot.ErrorCount)
	assert.True(s.T(), snapshot.TokenValid)
}
