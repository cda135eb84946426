package ws

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default per-user limits.
const (
	DefaultRPS   = 5
	DefaultBurst = 10
)

// Limiter is a pool of token buckets, one per user id.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*entry
	rps   rate.Limit
	burst int
	idle  time.Duration
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter creates a Limiter. Non-positive values select the defaults.
func NewLimiter(rps float64, burst int) *Limiter {
	if rps <= 0 {
		rps = DefaultRPS
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	return &Limiter{
		m:     make(map[string]*entry),
		rps:   rate.Limit(rps),
		burst: burst,
		idle:  10 * time.Minute,
	}
}

// Allow reports whether key may send one more event now.
func (l *Limiter) Allow(key string) bool {
	return l.get(key, time.Now()).Allow()
}

func (l *Limiter) get(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.m[key]; ok {
		e.seen = now
		return e.lim
	}
	e := &entry{lim: rate.NewLimiter(l.rps, l.burst), seen: now}
	l.m[key] = e
	return e.lim
}

// Sweep drops buckets not used for the idle period and returns how many
// remain. A dropped bucket starts full again on the next event.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.m {
		if now.Sub(e.seen) > l.idle {
			delete(l.m, k)
		}
	}
	return len(l.m)
}

// SetLimit changes the rate of every bucket, existing and future.
// Non-positive values select the defaults.
func (l *Limiter) SetLimit(rps float64, burst int) {
	if rps <= 0 {
		rps = DefaultRPS
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps, l.burst = rate.Limit(rps), burst
	now := time.Now()
	for _, e := range l.m {
		e.lim.SetLimitAt(now, l.rps)
		e.lim.SetBurstAt(now, burst)
	}
}
