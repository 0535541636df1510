package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter keeps one token bucket per client key. Buckets idle for longer
// than the idle TTL are dropped by Sweep.
type Limiter struct {
	mu      sync.Mutex
	m       map[string]*entry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		m:       make(map[string]*entry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = e
	}
	e.seen = now
	l.mu.Unlock()
	return e.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle past the TTL and returns how many were removed.
func (l *Limiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.m {
		if e.seen.Before(cutoff) {
			delete(l.m, k)
			n++
		}
	}
	return n
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
