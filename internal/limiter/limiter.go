// Package limiter throttles expensive commands per caller.
package limiter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter decides whether a caller may run one more guarded command.
type Limiter interface {
	// Allow consumes one token for key. When no token is available it reports
	// false and how long the caller should wait.
	Allow(key string) (bool, time.Duration)
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Memory keeps one token bucket per key in process memory. Buckets idle for
// longer than the idle window are dropped during later calls.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

// NewMemory allows burst commands per key and refills one token per interval.
func NewMemory(burst int, interval time.Duration) *Memory {
	if burst <= 0 {
		burst = 1
	}
	idle := time.Duration(burst) * interval
	if idle < time.Minute {
		idle = time.Minute
	}
	return &Memory{
		buckets: make(map[string]*bucket),
		every:   rate.Every(interval),
		burst:   burst,
		idle:    idle,
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (m *Memory) Allow(key string) (bool, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.every, m.burst)}
		m.buckets[key] = b
	}
	b.lastSeen = now

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// sweep drops idle buckets at most once per idle window. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.swept) < m.idle {
		return
	}
	m.swept = now
	for k, b := range m.buckets {
		if now.Sub(b.lastSeen) > m.idle {
			delete(m.buckets, k)
		}
	}
}
