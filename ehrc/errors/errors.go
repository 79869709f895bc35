package errors

import "fmt"

// AuthenticationError covers a failed client-credentials exchange: non-2xx
// from the token endpoint or a token response we could not use.
type AuthenticationError struct {
	Err      error
	Endpoint string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed against %s: %s", e.Endpoint, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RateLimitedError is returned when a request still sees HTTP 429 after all
// attempts are spent.
type RateLimitedError struct {
	Err      error
	Attempts int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited after %d attempts: %s", e.Attempts, e.Err)
}

func (e *RateLimitedError) Unwrap() error {
	return e.Err
}

// ServerError is returned when a request still sees HTTP 5xx after all
// attempts are spent.
type ServerError struct {
	Err        error
	StatusCode int // 500, 502, etc
	Attempts   int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d after %d attempts: %s", e.StatusCode, e.Attempts, e.Err)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// ClientError covers 4xx statuses other than 429. Not retryable.
type ClientError struct {
	Err        error
	StatusCode int // 400, 404, etc
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("client error %d: %s", e.StatusCode, e.Err)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// NetworkError covers timeouts and connection failures.
type NetworkError struct {
	Err      error
	Attempts int
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error after %d attempts: %s", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ParseError is reserved for payloads that are not resource-shaped at all.
// Missing optional fields never produce one.
type ParseError struct {
	Err          error
	ResourceType string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse %s resource: %s", e.ResourceType, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NotFoundError is facade-level: no resource matched the lookup.
type NotFoundError struct {
	Err          error
	ResourceType string
	Identifier   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s found for identifier %s: %s", e.ResourceType, e.Identifier, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// ConfigError is returned when client configuration fails validation at
// construction time.
type ConfigError struct {
	Err error
	Msg string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration. Msg: %s, Err: %s", e.Msg, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
