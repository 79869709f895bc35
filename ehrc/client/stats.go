package client

import (
	"sync"
	"time"

	"github.com/carenexus/ehrc-app/ehrc/constants"
)

// RequestAttempt describes one wire attempt inside a retry loop. Attempts
// are aggregated into Statistics and then discarded; nothing retains them.
type RequestAttempt struct {
	Method     string
	Path       string
	Number     int
	Outcome    constants.AttemptOutcome
	StatusCode int
	Duration   time.Duration
	At         time.Time
}

// Statistics accumulates attempt counters across the life of a client.
// Token validity is read live from the token cache, never stored.
type Statistics struct {
	mu          sync.Mutex
	attempts    uint64
	errors      uint64
	lastAttempt time.Time

	tokenValid func() bool
}

func NewStatistics(tokenValid func() bool) *Statistics {
	if tokenValid == nil {
		tokenValid = func() bool { return false }
	}
	return &Statistics{tokenValid: tokenValid}
}

func (s *Statistics) Record(a RequestAttempt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts++
	if a.Outcome != constants.OutcomeSuccess {
		s.errors++
	}
	if a.At.After(s.lastAttempt) {
		s.lastAttempt = a.At
	}
}

// StatsSnapshot is a point-in-time copy handed to callers.
type StatsSnapshot struct {
	TotalAttempts uint64    `json:"total_attempts"`
	ErrorCount    uint64    `json:"error_count"`
	ErrorRate     float64   `json:"error_rate"`
	TokenValid    bool      `json:"token_valid"`
	LastAttempt   time.Time `json:"last_attempt"`
}

func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		TotalAttempts: s.attempts,
		ErrorCount:    s.errors,
		TokenValid:    s.tokenValid(),
		LastAttempt:   s.lastAttempt,
	}
	if s.attempts > 0 {
		snap.ErrorRate = float64(s.errors) / float64(s.attempts)
	}
	return snap
}
