package health

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/carenexus/ehrc-app/ehrc/client"
	"github.com/carenexus/ehrc-app/log"
)

// probeCache keeps the last probe outcome so health endpoints polled by
// schedulers do not hammer the upstream API.
type probeCache struct {
	result    string
	ok        bool
	timestamp time.Time
	mu        sync.RWMutex
}

type HealthChecker struct {
	cfg           *client.Config
	tokens        *client.TokenManager
	http          *retryablehttp.Client
	metadataCache *probeCache
}

const probeCacheTTL = 30 * time.Second

func NewHealthChecker(cfg *client.Config) HealthChecker {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 250 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = cfg.Timeout()
	rc.Logger = nil

	return HealthChecker{
		cfg:           cfg,
		tokens:        client.NewTokenManager(cfg),
		http:          rc,
		metadataCache: &probeCache{},
	}
}

// IsEHRReachable probes the unauthenticated metadata endpoint. Outcomes are
// cached for a short window.
func (h HealthChecker) IsEHRReachable() (result string, ok bool) {
	// Check cache first
	h.metadataCache.mu.RLock()
	if h.metadataCache.timestamp.Add(probeCacheTTL).After(time.Now()) {
		result := h.metadataCache.result
		ok := h.metadataCache.ok
		h.metadataCache.mu.RUnlock()
		return result, ok
	}
	h.metadataCache.mu.RUnlock()

	// Cache expired or missing, perform actual probe
	h.metadataCache.mu.Lock()
	defer h.metadataCache.mu.Unlock()

	// Double-check after acquiring write lock
	if h.metadataCache.timestamp.Add(probeCacheTTL).After(time.Now()) {
		return h.metadataCache.result, h.metadataCache.ok
	}

	result, ok = h.probeMetadata()
	h.metadataCache.result = result
	h.metadataCache.ok = ok
	h.metadataCache.timestamp = time.Now()
	return result, ok
}

func (h HealthChecker) probeMetadata() (result string, ok bool) {
	resp, err := h.http.Get(strings.TrimSuffix(h.cfg.BaseURL, "/") + "/metadata")
	if err != nil {
		log.EHR.Error("Health check: EHR metadata probe error: ", err.Error())
		return "cannot connect to EHR API", false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		log.EHR.Error("Health check: EHR metadata probe returned ", resp.Status)
		return "EHR API returned " + resp.Status, false
	}

	return "ok", true
}

// IsAuthOK verifies an access token can be obtained. The token manager caches
// tokens, so repeated checks cost one exchange per token lifetime.
func (h HealthChecker) IsAuthOK(ctx context.Context) (result string, ok bool) {
	if _, err := h.tokens.Token(ctx); err != nil {
		log.Auth.Error("Health check: token exchange error: ", err.Error())
		return "cannot obtain access token", false
	}
	return "ok", true
}

// HasValidToken reports whether a usable cached token is held right now.
func (h HealthChecker) HasValidToken() bool {
	return h.tokens.Valid()
}
