package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

const (
	defaultLimitRPS   = 5
	defaultLimitBurst = 10
)

// clientLimiters keeps one token bucket per caller key (API key, or client
// IP for unauthenticated requests). Buckets are created lazily and live for
// the process lifetime.
type clientLimiters struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	cfg     SecConfig
}

func (cl *clientLimiters) bucket(key string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.buckets == nil {
		cl.buckets = make(map[string]*rate.Limiter)
	}
	if b, ok := cl.buckets[key]; ok {
		return b
	}
	rps := cl.cfg.RPS
	if rps <= 0 {
		rps = defaultLimitRPS
	}
	burst := cl.cfg.Burst
	if burst <= 0 {
		burst = defaultLimitBurst
	}
	b := rate.NewLimiter(rate.Limit(rps), burst)
	cl.buckets[key] = b
	return b
}

func (cl *clientLimiters) Allow(key string) bool {
	return cl.bucket(key).Allow()
}
