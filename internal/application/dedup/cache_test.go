package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/refund-approval/internal/domain/entity"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestKey_Normalization(t *testing.T) {
	a := Key("#1001", "Jane@Example.com ", entity.RefundKindRefund)
	b := Key(" 1001", "jane@example.com", entity.RefundKindRefund)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Key("1001", "jane@example.com", entity.RefundKindCredit))
	assert.NotEqual(t, a, Key("1002", "jane@example.com", entity.RefundKindRefund))
}

func TestCache_SuppressesWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(300 * time.Second).WithClock(clock.Now)
	key := Key("1001", "a@b.com", entity.RefundKindRefund)

	assert.False(t, cache.CheckAndInsert(key))

	clock.Advance(10 * time.Second)
	assert.True(t, cache.CheckAndInsert(key))

	clock.Advance(289 * time.Second)
	assert.True(t, cache.CheckAndInsert(key), "duplicate must not extend the window")

	clock.Advance(time.Second)
	assert.False(t, cache.CheckAndInsert(key))
}

func TestCache_SweepDropsExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewCache(time.Minute).WithClock(clock.Now)

	cache.CheckAndInsert("a")
	cache.CheckAndInsert("b")
	assert.Equal(t, 2, cache.Len())

	clock.Advance(2 * time.Minute)
	cache.Sweep()
	assert.Equal(t, 0, cache.Len())
}

func TestCache_Forget(t *testing.T) {
	cache := NewCache(time.Minute)

	assert.False(t, cache.CheckAndInsert("k"))
	cache.Forget("k")
	assert.False(t, cache.CheckAndInsert("k"))
}

func TestCache_ConcurrentInsertAdmitsOne(t *testing.T) {
	cache := NewCache(time.Minute)
	var admitted int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !cache.CheckAndInsert("same") {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted)
}
