package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/refund-approval/internal/domain/entity"
	"github.com/garyjia/refund-approval/internal/infrastructure/retry"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeDirectory struct {
	mu        sync.Mutex
	users     map[string]string
	failures  map[string]int
	calls     map[string]int
	inFlight  int32
	maxFlight int32
	delay     time.Duration
}

func (f *fakeDirectory) LookupByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxFlight)
		if n <= max || atomic.CompareAndSwapInt32(&f.maxFlight, max, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[email]++
	if f.failures[email] > 0 {
		f.failures[email]--
		return nil, fmt.Errorf("directory: %w", entity.ErrUpstreamUnavailable)
	}
	id, ok := f.users[email]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", email, entity.ErrNotFound)
	}
	return &entity.Identity{Email: email, UserID: id}, nil
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:    map[string]string{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

var fastRetry = retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}

func TestLookup_RetriesTransientFailures(t *testing.T) {
	dir := newDirectory()
	dir.users["jo@example.com"] = "ou_1"
	dir.failures["jo@example.com"] = 2

	svc := NewIdentityService(dir, fastRetry, 2, nopLogger{})
	identity, err := svc.Lookup(context.Background(), " Jo@Example.com ")

	require.NoError(t, err)
	assert.Equal(t, "ou_1", identity.UserID)
	assert.Equal(t, 3, dir.calls["jo@example.com"])
}

func TestLookup_NotFoundIsNotRetried(t *testing.T) {
	dir := newDirectory()

	svc := NewIdentityService(dir, fastRetry, 2, nopLogger{})
	_, err := svc.Lookup(context.Background(), "ghost@example.com")

	assert.True(t, errors.Is(err, entity.ErrNotFound))
	assert.Equal(t, 1, dir.calls["ghost@example.com"])
}

func TestLookupMany_BoundedAndUnordered(t *testing.T) {
	dir := newDirectory()
	dir.delay = 5 * time.Millisecond
	var emails []string
	for i := 0; i < 20; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		emails = append(emails, email)
		if i%4 != 0 {
			dir.users[email] = fmt.Sprintf("ou_%d", i)
		}
	}
	emails = append(emails, "USER1@example.com", "")

	svc := NewIdentityService(dir, fastRetry, 3, nopLogger{})
	result, err := svc.LookupMany(context.Background(), emails)

	require.NoError(t, err)
	assert.Len(t, result, 15)
	assert.Equal(t, "ou_1", result["user1@example.com"].UserID)
	assert.LessOrEqual(t, atomic.LoadInt32(&dir.maxFlight), int32(3))
	assert.Equal(t, 1, dir.calls["user1@example.com"])
}

func TestNewIdentityService_DefaultConcurrency(t *testing.T) {
	svc := NewIdentityService(newDirectory(), retry.Policy{MaxAttempts: 1}, 0, nopLogger{})
	assert.Equal(t, DefaultLookupConcurrency, svc.concurrency)
}
