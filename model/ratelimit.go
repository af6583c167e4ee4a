package model

import "time"

// RateLimitPolicy describes one sliding-window budget.
type RateLimitPolicy struct {
	Name        string
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

// Key returns the store key holding the window for identifier.
func (p RateLimitPolicy) Key(identifier string) string {
	return p.KeyPrefix + ":" + identifier
}

// RetryAfterSeconds is the window length rounded up to whole seconds.
func (p RateLimitPolicy) RetryAfterSeconds() int {
	return int((p.Window + time.Second - 1) / time.Second)
}

// RateLimitOutcome tags why a decision was produced.
type RateLimitOutcome int

const (
	OutcomeAllowed RateLimitOutcome = iota
	OutcomeRejected
	// OutcomeStoreError means the store could not be consulted and the
	// decision was produced by the fail-open fallback.
	OutcomeStoreError
)

func (o RateLimitOutcome) String() string {
	switch o {
	case OutcomeAllowed:
		return "allowed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeStoreError:
		return "store_error"
	}
	return "unknown"
}

// RateLimitDecision is the governor's answer for one request.
type RateLimitDecision struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
	// RetryAfter is set in seconds only when the request was rejected.
	RetryAfter int              `json:"retryAfter,omitempty"`
	Outcome    RateLimitOutcome `json:"-"`
}
