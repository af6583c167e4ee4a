package service

import (
	"context"
	"fmt"
	"time"

	"go-bank-gate/logger"
	"go-bank-gate/model"
	"go-bank-gate/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RateLimitService is a sliding-window rate governor. It counts the exact
// number of events in the trailing window, so a burst straddling a window
// boundary cannot double the effective rate.
//
// It fails open: when the store cannot be reached the request is allowed and
// the decision is tagged model.OutcomeStoreError.
type RateLimitService struct {
	store   store.Store
	general model.RateLimitPolicy
	auth    model.RateLimitPolicy
	now     func() time.Time
}

type RateLimitOption func(*RateLimitService)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) RateLimitOption {
	return func(s *RateLimitService) {
		s.now = now
	}
}

func NewRateLimitService(st store.Store, general, auth model.RateLimitPolicy, opts ...RateLimitOption) *RateLimitService {
	s := &RateLimitService{
		store:   st,
		general: general,
		auth:    auth,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RateLimitService) GeneralPolicy() model.RateLimitPolicy { return s.general }
func (s *RateLimitService) AuthPolicy() model.RateLimitPolicy    { return s.auth }

// CheckGeneral applies the general policy, keyed by user id or client IP.
func (s *RateLimitService) CheckGeneral(ctx context.Context, identifier string) (model.RateLimitDecision, error) {
	return s.CheckRateLimit(ctx, identifier, s.general)
}

// CheckAuth applies the authentication policy, always keyed by client IP.
func (s *RateLimitService) CheckAuth(ctx context.Context, ip string) (model.RateLimitDecision, error) {
	return s.CheckRateLimit(ctx, ip, s.auth)
}

func validate(identifier string, policy model.RateLimitPolicy) error {
	switch {
	case identifier == "":
		return fmt.Errorf("%w: empty identifier", ErrInvalidPolicy)
	case policy.MaxRequests <= 0:
		return fmt.Errorf("%w: max requests must be positive", ErrInvalidPolicy)
	case policy.Window <= 0:
		return fmt.Errorf("%w: window must be positive", ErrInvalidPolicy)
	case policy.KeyPrefix == "":
		return fmt.Errorf("%w: empty key prefix", ErrInvalidPolicy)
	}
	return nil
}

// CheckRateLimit records one event for identifier and decides whether it is
// within policy. The returned error is non-nil only for an unusable policy or
// identifier; store failures are absorbed into an allowing decision.
func (s *RateLimitService) CheckRateLimit(ctx context.Context, identifier string, policy model.RateLimitPolicy) (model.RateLimitDecision, error) {
	if err := validate(identifier, policy); err != nil {
		return model.RateLimitDecision{}, err
	}

	now := s.now()
	nowMs := now.UnixMilli()
	event := store.WindowEvent{
		WindowStart: nowMs - policy.Window.Milliseconds(),
		Score:       nowMs,
		Member:      fmt.Sprintf("%d-%s", nowMs, uuid.NewString()),
		TTL:         time.Duration(policy.RetryAfterSeconds()) * time.Second,
	}

	count, err := s.store.RecordEvent(ctx, policy.Key(identifier), event)
	if err != nil {
		return s.failOpen(identifier, policy, now, err, "Rate limit check failed"), nil
	}

	decision := s.decide(policy, now, int(count), 1)
	if !decision.Allowed {
		logger.Log.WithFields(logrus.Fields{
			"identifier": identifier,
			"policy":     policy.Name,
			"count":      count,
		}).Debug("Rate limit exceeded")
	}
	return decision, nil
}

// GetStatus reports the current window without recording an event.
func (s *RateLimitService) GetStatus(ctx context.Context, identifier string, policy model.RateLimitPolicy) (model.RateLimitDecision, error) {
	if err := validate(identifier, policy); err != nil {
		return model.RateLimitDecision{}, err
	}

	now := s.now()
	windowStart := now.UnixMilli() - policy.Window.Milliseconds()

	count, err := s.store.CountEvents(ctx, policy.Key(identifier), windowStart)
	if err != nil {
		return s.failOpen(identifier, policy, now, err, "Failed to get rate limit status"), nil
	}
	return s.decide(policy, now, int(count), 0), nil
}

// ResetLimit drops the identifier's window. Failures are logged only.
func (s *RateLimitService) ResetLimit(ctx context.Context, identifier string, policy model.RateLimitPolicy) {
	log := logger.Log.WithFields(logrus.Fields{
		"identifier": identifier,
		"policy":     policy.Name,
	})
	if _, err := s.store.Delete(ctx, policy.Key(identifier)); err != nil {
		log.WithError(err).Error("Failed to reset rate limit")
		return
	}
	log.Info("Rate limit reset")
}

// decide builds a decision from the count of events already in the window;
// pending is 1 when the current request has just been recorded.
func (s *RateLimitService) decide(policy model.RateLimitPolicy, now time.Time, count, pending int) model.RateLimitDecision {
	d := model.RateLimitDecision{
		Allowed:   count < policy.MaxRequests,
		Limit:     policy.MaxRequests,
		Remaining: max(0, policy.MaxRequests-count-pending),
		ResetTime: now.Add(policy.Window),
		Outcome:   model.OutcomeAllowed,
	}
	if !d.Allowed {
		d.RetryAfter = policy.RetryAfterSeconds()
		d.Outcome = model.OutcomeRejected
	}
	return d
}

func (s *RateLimitService) failOpen(identifier string, policy model.RateLimitPolicy, now time.Time, err error, msg string) model.RateLimitDecision {
	// Under a store outage the auth policy stops protecting login against
	// brute force. Alert on fail_open=true.
	logger.Log.WithError(err).WithFields(logrus.Fields{
		"identifier": identifier,
		"policy":     policy.Name,
		"fail_open":  true,
	}).Error(msg)

	return model.RateLimitDecision{
		Allowed:   true,
		Limit:     policy.MaxRequests,
		Remaining: policy.MaxRequests,
		ResetTime: now.Add(policy.Window),
		Outcome:   model.OutcomeStoreError,
	}
}
