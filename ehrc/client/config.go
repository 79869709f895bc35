package client

import (
	"errors"
	"time"

	"github.com/carenexus/ehrc-app/conf"
	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/log"
)

// Config carries everything needed to reach the clinical records API.
// Credentials are issued per deployment; the retry and token knobs have
// defaults that match the upstream vendor's published limits.
type Config struct {
	BaseURL      string `conf:"EHRC_API_BASE_URL"`
	TokenURL     string `conf:"EHRC_TOKEN_URL"`
	ClientID     string `conf:"EHRC_CLIENT_ID"`
	ClientSecret string `conf:"EHRC_CLIENT_SECRET"`
	Scope        string `conf:"EHRC_API_SCOPE" conf_default:"system/*.read"`

	TimeoutSec    int `conf:"EHRC_REQUEST_TIMEOUT_SECONDS" conf_default:"30"`
	MaxAttempts   int `conf:"EHRC_RETRY_MAX_ATTEMPTS" conf_default:"3"`
	BackoffBaseMS int `conf:"EHRC_RETRY_BACKOFF_BASE_MS" conf_default:"500"`

	TokenMarginSec   int `conf:"EHRC_TOKEN_EXPIRY_MARGIN_SECONDS" conf_default:"60"`
	TokenLifetimeSec int `conf:"EHRC_TOKEN_DEFAULT_LIFETIME_SECONDS" conf_default:"300"`
}

func LoadConfig() (cfg *Config, err error) {
	cfg = &Config{}
	if err := conf.Checkout(cfg); err != nil {
		return nil, &customErrors.ConfigError{Err: err, Msg: "unable to read client configuration"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.EHR.Info("Successfully loaded configuration for EHR client.")

	return cfg, nil
}

func (c *Config) validate() error {
	required := []struct {
		name, value string
	}{
		{"BaseURL", c.BaseURL},
		{"TokenURL", c.TokenURL},
		{"ClientID", c.ClientID},
		{"ClientSecret", c.ClientSecret},
	}
	for _, r := range required {
		if r.value == "" {
			return &customErrors.ConfigError{Err: errors.New("missing value"), Msg: "invalid config, " + r.name + " must be set"}
		}
	}

	if c.TimeoutSec <= 0 {
		return &customErrors.ConfigError{Err: errors.New("non-positive timeout"), Msg: "invalid config, TimeoutSec must be greater than zero"}
	}
	if c.MaxAttempts < 1 {
		return &customErrors.ConfigError{Err: errors.New("no attempts permitted"), Msg: "invalid config, MaxAttempts must be at least 1"}
	}
	if c.BackoffBaseMS <= 0 {
		return &customErrors.ConfigError{Err: errors.New("non-positive backoff"), Msg: "invalid config, BackoffBaseMS must be greater than zero"}
	}
	if c.TokenMarginSec < 0 {
		return &customErrors.ConfigError{Err: errors.New("negative margin"), Msg: "invalid config, TokenMarginSec must not be negative"}
	}

	return nil
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

func (c *Config) TokenMargin() time.Duration {
	return time.Duration(c.TokenMarginSec) * time.Second
}

func (c *Config) DefaultTokenLifetime() time.Duration {
	return time.Duration(c.TokenLifetimeSec) * time.Second
}
