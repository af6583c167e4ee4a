package service

import "errors"

var (
	// ErrAuthInvalid covers bad credentials and bad, expired, forged, replayed
	// or revoked tokens. Callers must not be able to tell these apart.
	ErrAuthInvalid = errors.New("invalid credentials")
	// ErrAccountInactive may be surfaced as-is: it is not a guessing oracle.
	ErrAccountInactive = errors.New("account is inactive")
	// ErrStoreUnavailable means the coordination store failed during a token
	// operation. Token operations fail closed on it.
	ErrStoreUnavailable = errors.New("token store unavailable")
	// ErrInvalidPolicy is returned by the rate governor when it is called with
	// a policy or identifier it cannot evaluate.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
)
