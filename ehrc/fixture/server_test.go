package fixture

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	"github.com/carenexus/ehrc-app/ehrc/fhir"
)

type ServerTestSuite struct {
	suite.Suite
	dataset *Dataset
	server  *Server
	ts      *httptest.Server
	token   string
}

func (s *ServerTestSuite) SetupSuite() {
	var err error
	s.dataset, err = NewDataset(true, "")
	require.Nil(s.T(), err)

	s.server, err = NewServer(s.dataset)
	require.Nil(s.T(), err)
	require.Nil(s.T(), s.server.Register("fixture-client", "fixture-secret"))

	s.ts = httptest.NewServer(s.server.Router())
	s.token = s.fetchToken("fixture-client", "fixture-secret")
}

func (s *ServerTestSuite) TearDownSuite() {
	s.ts.Close()
}

func (s *ServerTestSuite) SetupTest() {
	s.server.scripts.Clear()
}

func (s *ServerTestSuite) fetchToken(clientID, secret string) string {
	resp := s.postToken(clientID, secret, "client_credentials")
	defer func() { _ = resp.Body.Close() }()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var tr tokenResponse
	require.Nil(s.T(), json.NewDecoder(resp.Body).Decode(&tr))
	require.NotEmpty(s.T(), tr.AccessToken)
	return tr.AccessToken
}

func (s *ServerTestSuite) postToken(clientID, secret, grantType string) *http.Response {
	body := "grant_type=" + grantType + "&scope=system/*.read"
	req, err := http.NewRequest("POST", s.ts.URL+"/auth/token", strings.NewReader(body))
	require.Nil(s.T(), err)
	req.SetBasicAuth(clientID, secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	require.Nil(s.T(), err)
	return resp
}

func (s *ServerTestSuite) authedGet(path string) *http.Response {
	req, err := http.NewRequest("GET", s.ts.URL+path, nil)
	require.Nil(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	require.Nil(s.T(), err)
	return resp
}

func (s *ServerTestSuite) decodeBundle(resp *http.Response) *fhir.Bundle {
	defer func() { _ = resp.Body.Close() }()
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.Nil(s.T(), err)

	bundle, err := fhir.ParseBundle(buf.Bytes())
	require.Nil(s.T(), err)
	return bundle
}

func (s *ServerTestSuite) TestTokenResponseShape() {
	resp := s.postToken("fixture-client", "fixture-secret", "client_credentials")
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(s.T(), "no-cache", resp.Header.Get("Pragma"))

	var tr tokenResponse
	require.Nil(s.T(), json.NewDecoder(resp.Body).Decode(&tr))
	assert.NotEmpty(s.T(), tr.AccessToken)
	assert.Equal(s.T(), "bearer", tr.TokenType)
	assert.Equal(s.T(), "1200", tr.ExpiresIn)
}

func (s *ServerTestSuite) TestTokenInvalidCredentials() {
	resp := s.postToken("fixture-client", "wrong-secret", "client_credentials")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *ServerTestSuite) TestTokenUnknownClient() {
	resp := s.postToken("who-dis", "fixture-secret", "client_credentials")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *ServerTestSuite) TestTokenRejectsWrongGrantType() {
	resp := s.postToken("fixture-client", "fixture-secret", "password")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)

	var body map[string]string
	require.Nil(s.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(s.T(), "unsupported_grant_type", body["error"])
}

func (s *ServerTestSuite) TestTokenMissingBasicAuth() {
	resp, err := http.Post(s.ts.URL+"/auth/token", "application/x-www-form-urlencoded",
		strings.NewReader("grant_type=client_credentials"))
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestResourceRequiresToken() {
	resp, err := http.Get(s.ts.URL + "/Patient?identifier=12345678")
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(s.T(), constants.FHIRJsonContentType, resp.Header.Get("Content-Type"))
}

func (s *ServerTestSuite) TestResourceRejectsGarbageToken() {
	req, err := http.NewRequest("GET", s.ts.URL+"/Patient?identifier=12345678", nil)
	require.Nil(s.T(), err)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	resp, err := http.DefaultClient.Do(req)
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusUnauthorized, resp.StatusCode)
}

func (s *ServerTestSuite) TestPatientSearch() {
	resp := s.authedGet("/Patient?identifier=12345678")
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	assert.Equal(s.T(), constants.FHIRJsonContentType, resp.Header.Get("Content-Type"))
	assert.NotEmpty(s.T(), resp.Header.Get(constants.TransactionIDHeader))

	bundle := s.decodeBundle(resp)
	assert.Equal(s.T(), "searchset", bundle.Type)
	require.NotNil(s.T(), bundle.Total)
	assert.Equal(s.T(), 1, *bundle.Total)

	patients, skipped := fhir.Patients(bundle)
	assert.Zero(s.T(), skipped)
	require.Len(s.T(), patients, 1)
	assert.Equal(s.T(), "Smith", patients[0].Family)
}

func (s *ServerTestSuite) TestPatientSearchSystemQualified() {
	resp := s.authedGet("/Patient?identifier=" + "http%3A%2F%2Fhospital.carenexus.org%2Fmrn%7C12345678")
	bundle := s.decodeBundle(resp)
	require.NotNil(s.T(), bundle.Total)
	assert.Equal(s.T(), 1, *bundle.Total)
}

func (s *ServerTestSuite) TestPatientSearchNoMatch() {
	resp := s.authedGet("/Patient?identifier=00000000")
	bundle := s.decodeBundle(resp)
	require.NotNil(s.T(), bundle.Total)
	assert.Equal(s.T(), 0, *bundle.Total)
	assert.Empty(s.T(), bundle.Entries)
}

func (s *ServerTestSuite) TestPatientSearchRequiresIdentifier() {
	resp := s.authedGet("/Patient")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestConditionSearch() {
	resp := s.authedGet("/Condition?patient=pat-10001&clinical-status=active")
	bundle := s.decodeBundle(resp)

	conditions, skipped := fhir.Conditions(bundle)
	assert.Zero(s.T(), skipped)
	require.Len(s.T(), conditions, 2)

	codes := []string{conditions[0].Code, conditions[1].Code}
	assert.Contains(s.T(), codes, "E11.9")
	assert.Contains(s.T(), codes, "38341003")
}

func (s *ServerTestSuite) TestConditionSearchRequiresPatient() {
	resp := s.authedGet("/Condition?clinical-status=active")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestMedicationSearch() {
	resp := s.authedGet("/MedicationRequest?patient=pat-10001&status=active")
	bundle := s.decodeBundle(resp)

	medications, skipped := fhir.Medications(bundle)
	assert.Zero(s.T(), skipped)
	assert.Len(s.T(), medications, 2)
}

func (s *ServerTestSuite) TestEncounterSearch() {
	resp := s.authedGet("/Encounter?patient=pat-10001&_sort=-date&_count=1")
	bundle := s.decodeBundle(resp)

	encounters, skipped := fhir.Encounters(bundle)
	assert.Zero(s.T(), skipped)
	require.Len(s.T(), encounters, 1)
	assert.Equal(s.T(), "enc-40001", encounters[0].ID)
}

func (s *ServerTestSuite) TestEncounterSearchRejectsBadCount() {
	resp := s.authedGet("/Encounter?patient=pat-10001&_count=zero")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestDocumentCreate() {
	before := len(s.dataset.Documents())

	doc := `{
		"resourceType": "DocumentReference",
		"status": "current",
		"context": {"encounter": [{"reference": "Encounter/enc-40001"}]},
		"content": [{"attachment": {"contentType": "text/plain", "data": "aGVsbG8="}}]
	}`
	req, err := http.NewRequest("POST", s.ts.URL+"/DocumentReference", strings.NewReader(doc))
	require.Nil(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", constants.FHIRJsonContentType)

	resp, err := http.DefaultClient.Do(req)
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(s.T(), http.StatusCreated, resp.StatusCode)
	assert.True(s.T(), strings.HasPrefix(resp.Header.Get("Location"), "/DocumentReference/"))
	assert.Len(s.T(), s.dataset.Documents(), before+1)
}

func (s *ServerTestSuite) TestDocumentCreateRejectsWrongType() {
	req, err := http.NewRequest("POST", s.ts.URL+"/DocumentReference",
		strings.NewReader(`{"resourceType": "Patient"}`))
	require.Nil(s.T(), err)
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := http.DefaultClient.Do(req)
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestScriptedResponses() {
	payload := `{"path": "/Condition", "statuses": [429, 500]}`
	resp, err := http.Post(s.ts.URL+"/__fixture/script", "application/json", strings.NewReader(payload))
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusAccepted, resp.StatusCode)

	first := s.authedGet("/Condition?patient=pat-10001&clinical-status=active")
	defer func() { _ = first.Body.Close() }()
	assert.Equal(s.T(), http.StatusTooManyRequests, first.StatusCode)
	assert.Equal(s.T(), "1", first.Header.Get("Retry-After"))

	second := s.authedGet("/Condition?patient=pat-10001&clinical-status=active")
	defer func() { _ = second.Body.Close() }()
	assert.Equal(s.T(), http.StatusInternalServerError, second.StatusCode)

	third := s.authedGet("/Condition?patient=pat-10001&clinical-status=active")
	assert.Equal(s.T(), http.StatusOK, third.StatusCode)
	bundle := s.decodeBundle(third)
	require.NotNil(s.T(), bundle.Total)
	assert.Equal(s.T(), 2, *bundle.Total)
}

func (s *ServerTestSuite) TestScriptedPassThrough() {
	s.server.Script("/Patient", http.StatusOK)

	resp := s.authedGet("/Patient?identifier=12345678")
	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)
	bundle := s.decodeBundle(resp)
	require.NotNil(s.T(), bundle.Total)
	assert.Equal(s.T(), 1, *bundle.Total)
	assert.Zero(s.T(), s.server.scripts.Pending("/Patient"))
}

func (s *ServerTestSuite) TestScriptRejectsEmptyRequest() {
	resp, err := http.Post(s.ts.URL+"/__fixture/script", "application/json", strings.NewReader(`{}`))
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *ServerTestSuite) TestMetadata() {
	resp, err := http.Get(s.ts.URL + "/metadata")
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.Nil(s.T(), err)
	assert.Contains(s.T(), buf.String(), "CapabilityStatement")
	assert.Contains(s.T(), buf.String(), "/auth/token")
}

func (s *ServerTestSuite) TestHealth() {
	resp, err := http.Get(s.ts.URL + "/_health")
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string        `json:"status"`
		Dataset DatasetCounts `json:"dataset"`
	}
	require.Nil(s.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(s.T(), "ok", body.Status)
	assert.Equal(s.T(), 2, body.Dataset.Patients)
}

func (s *ServerTestSuite) TestVersion() {
	resp, err := http.Get(s.ts.URL + "/_version")
	require.Nil(s.T(), err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.Nil(s.T(), json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(s.T(), constants.Version, body["version"])
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}
