package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go-bank-gate/model"
	"go-bank-gate/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testGeneral = model.RateLimitPolicy{
	Name:        "general",
	MaxRequests: 5,
	Window:      time.Minute,
	KeyPrefix:   "rate_limit",
}

var testAuth = model.RateLimitPolicy{
	Name:        "auth",
	MaxRequests: 3,
	Window:      15 * time.Minute,
	KeyPrefix:   "auth_rate_limit",
}

func newRateLimitTestService(t *testing.T) (*RateLimitService, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewRateLimitService(store.NewRedisStore(rdb, time.Second), testGeneral, testAuth, WithClock(clock.Now))
	return svc, mr, clock
}

func TestRateLimitService_BudgetThenReject(t *testing.T) {
	svc, _, clock := newRateLimitTestService(t)
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		d, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, want, d.Remaining)
		assert.Equal(t, model.OutcomeAllowed, d.Outcome)
		assert.Equal(t, clock.Now().Add(time.Minute), d.ResetTime)
		assert.Zero(t, d.RetryAfter)
		clock.Advance(time.Second)
	}

	d, err := svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, 60, d.RetryAfter)
	assert.Equal(t, model.OutcomeRejected, d.Outcome)
}

func TestRateLimitService_IdentifiersAreIndependent(t *testing.T) {
	svc, _, _ := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	d, err := svc.CheckGeneral(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestRateLimitService_ExactlyMaxAllowedWithinWindow(t *testing.T) {
	svc, _, clock := newRateLimitTestService(t)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 20; i++ {
		d, err := svc.CheckGeneral(ctx, "10.0.0.1")
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		}
		clock.Advance(2 * time.Second)
	}
	assert.Equal(t, 5, allowed)
}

func TestRateLimitService_RecoversAfterWindow(t *testing.T) {
	svc, _, clock := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	clock.Advance(61 * time.Second)

	d, err := svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
}

func TestRateLimitService_NoDoubleBurstAtBoundary(t *testing.T) {
	svc, _, clock := newRateLimitTestService(t)
	ctx := context.Background()

	// Five requests at the very end of one fixed minute...
	clock.Advance(59 * time.Second)
	for i := 0; i < 5; i++ {
		d, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	// ...and five more just after it must still be refused.
	clock.Advance(2 * time.Second)
	for i := 0; i < 5; i++ {
		d, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
	}
}

func TestRateLimitService_MarkerAtWindowStartStillCounts(t *testing.T) {
	svc, _, clock := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	d, err := svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "markers exactly one window old are still inside it")

	clock.Advance(time.Millisecond)
	d, err = svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRateLimitService_RejectedRequestsAreRecorded(t *testing.T) {
	svc, mr, _ := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	members, err := mr.ZMembers(testGeneral.Key("user-1"))
	require.NoError(t, err)
	assert.Len(t, members, 8, "same-millisecond events must not collapse into one marker")
}

func TestRateLimitService_KeyExpiresWithWindow(t *testing.T) {
	svc, mr, _ := newRateLimitTestService(t)

	_, err := svc.CheckGeneral(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("rate_limit:user-1"))

	_, err = svc.CheckAuth(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, mr.TTL("auth_rate_limit:10.0.0.1"))
}

func TestRateLimitService_AuthPolicy(t *testing.T) {
	svc, _, _ := newRateLimitTestService(t)
	ctx := context.Background()

	for _, want := range []int{2, 1, 0} {
		d, err := svc.CheckAuth(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, want, d.Remaining)
	}

	d, err := svc.CheckAuth(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 900, d.RetryAfter)
}

func TestRateLimitService_FailsOpen(t *testing.T) {
	svc, mr, _ := newRateLimitTestService(t)
	ctx := context.Background()
	mr.Close()

	for i := 0; i < 10; i++ {
		d, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5, d.Remaining)
		assert.Equal(t, model.OutcomeStoreError, d.Outcome)
	}

	d, err := svc.GetStatus(ctx, "user-1", svc.GeneralPolicy())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, model.OutcomeStoreError, d.Outcome)
}

func TestRateLimitService_GetStatusDoesNotRecord(t *testing.T) {
	svc, _, _ := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		d, err := svc.GetStatus(ctx, "user-1", svc.GeneralPolicy())
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 3, d.Remaining)
	}

	d, err := svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, d.Remaining)
}

func TestRateLimitService_ResetLimit(t *testing.T) {
	svc, mr, _ := newRateLimitTestService(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := svc.CheckGeneral(ctx, "user-1")
		require.NoError(t, err)
	}

	svc.ResetLimit(ctx, "user-1", svc.GeneralPolicy())
	assert.False(t, mr.Exists("rate_limit:user-1"))

	d, err := svc.CheckGeneral(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)

	mr.Close()
	assert.NotPanics(t, func() { svc.ResetLimit(ctx, "user-1", svc.GeneralPolicy()) })
}

func TestRateLimitService_InvalidPolicy(t *testing.T) {
	svc, _, _ := newRateLimitTestService(t)
	ctx := context.Background()

	tests := map[string]struct {
		identifier string
		policy     model.RateLimitPolicy
	}{
		"empty identifier": {"", testGeneral},
		"zero max":         {"user-1", model.RateLimitPolicy{Name: "x", Window: time.Minute, KeyPrefix: "x"}},
		"zero window":      {"user-1", model.RateLimitPolicy{Name: "x", MaxRequests: 1, KeyPrefix: "x"}},
		"empty prefix":     {"user-1", model.RateLimitPolicy{Name: "x", MaxRequests: 1, Window: time.Minute}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CheckRateLimit(ctx, tc.identifier, tc.policy)
			assert.ErrorIs(t, err, ErrInvalidPolicy)

			_, err = svc.GetStatus(ctx, tc.identifier, tc.policy)
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

func TestRateLimitService_ConcurrentRequestsCountExactly(t *testing.T) {
	svc, _, _ := newRateLimitTestService(t)

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := svc.CheckGeneral(context.Background(), "user-1")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, allowed)
}
