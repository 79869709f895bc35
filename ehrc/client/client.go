package client

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/carenexus/ehrc-app/ehrc/constants"
	customErrors "github.com/carenexus/ehrc-app/ehrc/errors"
	"github.com/carenexus/ehrc-app/log"
)

// Client is the wire-level surface consumed by the records facade. Paths
// are relative to the API base URL; payloads are raw FHIR JSON.
type Client interface {
	Get(ctx context.Context, path string, params url.Values) ([]byte, error)
	Post(ctx context.Context, path string, body []byte) ([]byte, error)
	Stats() StatsSnapshot
}

// requestState tracks where a request is in its retry lifecycle. Every
// request ends in stateSucceeded or stateFailedTerminal.
type requestState uint8

const (
	stateAttempting requestState = iota
	stateBackoff
	stateSucceeded
	stateFailedTerminal
)

func (s requestState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateBackoff:
		return "backoff"
	case stateSucceeded:
		return "succeeded"
	case stateFailedTerminal:
		return "failed"
	default:
		return "invalid"
	}
}

// EHRClient talks to the clinical records API. One instance is safe for
// concurrent use; all requests share the same token cache and counters.
type EHRClient struct {
	cfg        *Config
	tokens     *TokenManager
	httpClient *http.Client
	stats      *Statistics
}

var _ Client = &EHRClient{}

func NewEHRClient(cfg *Config) *EHRClient {
	tokens := NewTokenManager(cfg)
	return &EHRClient{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		stats:      NewStatistics(tokens.Valid),
	}
}

func (c *EHRClient) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.execute(ctx, "GET", path, params, nil)
}

func (c *EHRClient) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.execute(ctx, "POST", path, nil, body)
}

func (c *EHRClient) Stats() StatsSnapshot {
	return c.stats.Snapshot()
}

// execute drives one request through the retry state machine. The attempt
// counter is the only loop variable; transitions depend solely on the
// classified outcome and the number of attempts already made.
func (c *EHRClient) execute(ctx context.Context, method, path string, params url.Values, body []byte) ([]byte, error) {
	requestID := uuid.NewRandom()
	delays := newDelaySource(c.cfg.BackoffBase())

	var (
		state       = stateAttempting
		attempts    int
		lastOutcome constants.AttemptOutcome
		lastStatus  int
		lastErr     error
		payload     []byte
	)

	for {
		switch state {
		case stateAttempting:
			token, err := c.tokens.Token(ctx)
			if err != nil {
				// Credential failures are never retried here; the token
				// manager already owns that interaction.
				return nil, err
			}
			payload, lastStatus, lastOutcome, lastErr = c.attempt(ctx, token, method, path, params, body, requestID, attempts)
			attempts++
			state = nextState(lastOutcome, attempts, c.cfg.MaxAttempts)
		case stateBackoff:
			delay := delays.NextBackOff()
			log.EHR.WithFields(logrus.Fields{
				"request_id": requestID,
				"path":       path,
				"attempts":   attempts,
				"delay_ms":   delay.Milliseconds(),
			}).Info("backing off before retry")
			select {
			case <-time.After(delay):
				state = stateAttempting
			case <-ctx.Done():
				return nil, &customErrors.NetworkError{Err: ctx.Err(), Attempts: attempts}
			}
		case stateSucceeded:
			return payload, nil
		case stateFailedTerminal:
			return nil, terminalError(lastOutcome, lastStatus, lastErr, attempts)
		}
	}
}

// attempt performs exactly one wire exchange and classifies what came back.
// Statistics are recorded for every attempt, success or not.
func (c *EHRClient) attempt(ctx context.Context, token, method, path string, params url.Values, body []byte, requestID uuid.UUID, number int) ([]byte, int, constants.AttemptOutcome, error) {
	req, err := c.newRequest(ctx, token, method, path, params, body, requestID)
	if err != nil {
		return nil, 0, constants.OutcomeClientError, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	outcome := classify(resp, err)

	var (
		status  int
		payload []byte
	)
	switch {
	case err != nil:
		// no response to read or drain
	case outcome == constants.OutcomeSuccess:
		status = resp.StatusCode
		payload, err = ioutil.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			outcome = constants.OutcomeNetworkError
			payload = nil
			err = errors.Wrap(err, "reading response body")
		}
	default:
		status = resp.StatusCode
		err = errors.New(resp.Status)
		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
		}
		drainBody(resp)
	}

	a := RequestAttempt{
		Method:     method,
		Path:       path,
		Number:     number,
		Outcome:    outcome,
		StatusCode: status,
		Duration:   duration,
		At:         start,
	}
	c.stats.Record(a)
	logAttempt(requestID, a)

	return payload, status, outcome, err
}

func (c *EHRClient) newRequest(ctx context.Context, token, method, path string, params url.Values, body []byte, requestID uuid.UUID) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(c.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}

	req.Header.Set(constants.Authorization, "Bearer "+token)
	req.Header.Set("Accept", constants.FHIRJsonContentType)
	req.Header.Set("User-Agent", constants.UserAgent+"/"+constants.Version)
	req.Header.Set(constants.TransactionIDHeader, requestID.String())
	if body != nil {
		req.Header.Set(constants.ContentType, constants.FHIRJsonContentType)
	}

	return req, nil
}

// classify buckets one attempt's result. Transport errors, including
// timeouts, all count as network failures.
func classify(resp *http.Response, err error) constants.AttemptOutcome {
	if err != nil {
		return constants.OutcomeNetworkError
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return constants.OutcomeRateLimited
	case resp.StatusCode >= 500:
		return constants.OutcomeServerError
	case resp.StatusCode >= 400:
		return constants.OutcomeClientError
	default:
		return constants.OutcomeSuccess
	}
}

// nextState decides the transition after an attempt. Only retryable
// outcomes with remaining attempt budget reach stateBackoff.
func nextState(outcome constants.AttemptOutcome, attemptsMade, maxAttempts int) requestState {
	if outcome == constants.OutcomeSuccess {
		return stateSucceeded
	}
	if outcome.Retryable() && attemptsMade < maxAttempts {
		return stateBackoff
	}
	return stateFailedTerminal
}

// newDelaySource yields the retry delays: base, then doubling per retry.
// Randomization is off so the sequence is strictly increasing.
func newDelaySource(base time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func terminalError(outcome constants.AttemptOutcome, status int, lastErr error, attempts int) error {
	switch outcome {
	case constants.OutcomeRateLimited:
		return &customErrors.RateLimitedError{Err: lastErr, Attempts: attempts}
	case constants.OutcomeServerError:
		return &customErrors.ServerError{Err: lastErr, StatusCode: status, Attempts: attempts}
	case constants.OutcomeNetworkError:
		return &customErrors.NetworkError{Err: lastErr, Attempts: attempts}
	default:
		return &customErrors.ClientError{Err: lastErr, StatusCode: status}
	}
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

func logAttempt(requestID uuid.UUID, a RequestAttempt) {
	log.EHR.WithFields(logrus.Fields{
		"request_id":  requestID,
		"method":      a.Method,
		"path":        a.Path,
		"attempt":     a.Number,
		"outcome":     a.Outcome.String(),
		"status":      a.StatusCode,
		"duration_ms": a.Duration.Milliseconds(),
	}).Info("clinical records request attempt")
}
