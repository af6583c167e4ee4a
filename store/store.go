// Package store defines the shared coordination store used by the token
// authority and the rate governor. All state that must be consistent across
// process instances lives behind this interface.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or expired.
	ErrNotFound = errors.New("key not found")
	// ErrUnavailable wraps every transport, timeout or server error.
	ErrUnavailable = errors.New("coordination store unavailable")
)

// WindowEvent describes one marker to add to a sliding window.
type WindowEvent struct {
	// WindowStart is the oldest score, in unix milliseconds, that is kept.
	WindowStart int64
	// Score is the event time in unix milliseconds.
	Score int64
	// Member must be unique per event: sorted sets de-duplicate by member.
	Member string
	// TTL is applied to the whole window key after the insert.
	TTL time.Duration
}

// Store is the capability set the gates need from the key-value store.
type Store interface {
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	// Delete removes keys and reports how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)
	// DeleteByPattern removes every key matching a glob pattern.
	DeleteByPattern(ctx context.Context, pattern string) (int64, error)
	// RecordEvent atomically purges markers older than WindowStart, counts the
	// remaining ones, inserts the new marker and refreshes the key TTL. The
	// returned count excludes the new marker.
	RecordEvent(ctx context.Context, key string, event WindowEvent) (int64, error)
	// CountEvents purges markers older than windowStart and counts the rest.
	CountEvents(ctx context.Context, key string, windowStart int64) (int64, error)
}
