package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type CredentialsTestSuite struct {
	suite.Suite
	store *credentialStore
}

func (s *CredentialsTestSuite) SetupTest() {
	s.store = newCredentialStore()
}

func (s *CredentialsTestSuite) TestRegisterAndVerify() {
	err := s.store.Register("fixture-client", "fixture-secret")
	assert.Nil(s.T(), err)

	assert.True(s.T(), s.store.Verify("fixture-client", "fixture-secret"))
	assert.False(s.T(), s.store.Verify("fixture-client", "wrong-secret"))
	assert.False(s.T(), s.store.Verify("unknown-client", "fixture-secret"))
}

func (s *CredentialsTestSuite) TestRegisterRequiresClientID() {
	err := s.store.Register("", "some-secret")
	assert.EqualError(s.T(), err, "client id is required")
}

func (s *CredentialsTestSuite) TestRegisterReplacesSecret() {
	assert.Nil(s.T(), s.store.Register("fixture-client", "first-secret"))
	assert.Nil(s.T(), s.store.Register("fixture-client", "second-secret"))

	assert.False(s.T(), s.store.Verify("fixture-client", "first-secret"))
	assert.True(s.T(), s.store.Verify("fixture-client", "second-secret"))
}

func (s *CredentialsTestSuite) TestGenerateCredentials() {
	creds, err := s.store.GenerateCredentials()
	assert.Nil(s.T(), err)
	assert.NotEmpty(s.T(), creds.ClientID)
	assert.Len(s.T(), creds.ClientSecret, 80)
	assert.True(s.T(), s.store.Verify(creds.ClientID, creds.ClientSecret))
}

func TestCredentialsTestSuite(t *testing.T) {
	suite.Run(t, new(CredentialsTestSuite))
}
