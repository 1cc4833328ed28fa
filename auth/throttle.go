package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle is a per-identifier token bucket bounding login attempts, so a
// burst of password verifications (CPU-bound bcrypt work) cannot stall the
// process.
type throttle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*throttleBucket
	now     func() time.Time
}

type throttleBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

func newThrottle(perMinute, burst int, now func() time.Time) *throttle {
	if perMinute <= 0 || burst <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	return &throttle{
		limit:   rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*throttleBucket),
		now:     now,
	}
}

func (t *throttle) allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.sweepLocked(now)
	b, ok := t.buckets[key]
	if !ok {
		b = &throttleBucket{lim: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// sweepLocked drops buckets idle past the ttl once the map grows.
func (t *throttle) sweepLocked(now time.Time) {
	if len(t.buckets) < 1024 {
		return
	}
	for k, b := range t.buckets {
		if now.Sub(b.seen) > t.ttl {
			delete(t.buckets, k)
		}
	}
}
