package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/ehrc/testUtils"
)

type ConfigTestSuite struct {
	suite.Suite
	cleanup []func()
}

func (s *ConfigTestSuite) SetupTest() {
	s.cleanup = []func(){
		testUtils.SetAndRestoreEnvKey("EHRC_API_BASE_URL", "https://ehr.example.com/api/FHIR/STU3"),
		testUtils.SetAndRestoreEnvKey("EHRC_TOKEN_URL", "https://ehr.example.com/oauth2/token"),
		testUtils.SetAndRestoreEnvKey("EHRC_CLIENT_ID", "test-client"),
		testUtils.SetAndRestoreEnvKey("EHRC_CLIENT_SECRET", "test-secret"),
	}
}

func (s *ConfigTestSuite) TearDownTest() {
	for _, restore := range s.cleanup {
		restore()
	}
	s.cleanup = nil
}

func (s *ConfigTestSuite) setEnv(key, value string) {
	s.cleanup = append(s.cleanup, testUtils.SetAndRestoreEnvKey(key, value))
}

func (s *ConfigTestSuite) TestLoadConfigReadsEnvironment() {
	s.setEnv("EHRC_RETRY_MAX_ATTEMPTS", "5")
	s.setEnv("EHRC_REQUEST_TIMEOUT_SECONDS", "10")

	cfg, err := LoadConfig()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "https://ehr.example.com/api/FHIR/STU3", cfg.BaseURL)
	assert.Equal(s.T(), "https://ehr.example.com/oauth2/token", cfg.TokenURL)
	assert.Equal(s.T(), "test-client", cfg.ClientID)
	assert.Equal(s.T(), 5, cfg.MaxAttempts)
	assert.Equal(s.T(), 10*time.Second, cfg.Timeout())
}

func (s *ConfigTestSuite) TestLoadConfigAppliesDefaults() {
	s.setEnv("EHRC_RETRY_MAX_ATTEMPTS", "")
	s.setEnv("EHRC_RETRY_BACKOFF_BASE_MS", "")
	s.setEnv("EHRC_TOKEN_EXPIRY_MARGIN_SECONDS", "")
	s.setEnv("EHRC_API_SCOPE", "")

	cfg, err := LoadConfig()
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 3, cfg.MaxAttempts)
	assert.Equal(s.T(), 500*time.Millisecond, cfg.BackoffBase())
	assert.Equal(s.T(), 60*time.Second, cfg.TokenMargin())
	assert.Equal(s.T(), "system/*.read", cfg.Scope)
}

func (s *ConfigTestSuite) TestLoadConfigRequiresCredentials() {
	s.setEnv("EHRC_CLIENT_SECRET", "")

	_, err := LoadConfig()
	var cfgErr *customErrors.ConfigError
	require.ErrorAs(s.T(), err, &cfgErr)
	assert.Contains(s.T(), cfgErr.Error(), "ClientSecret must be set")
}

func (s *ConfigTestSuite) TestLoadConfigRejectsZeroAttempts() {
	s.setEnv("EHRC_RETRY_MAX_ATTEMPTS", "0")

	_, err := LoadConfig()
	var cfgErr *customErrors.ConfigError
	require.ErrorAs(s.T(), err, &cfgErr)
	assert.Contains(s.T(), cfgErr.Error(), "MaxAttempts must be at least 1")
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
