package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultRateCleanupInterval = 5 * time.Minute
	defaultRateEntryTTL        = 10 * time.Minute
	defaultRateMaxHosts        = 10000
)

type hostEntry struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64
}

// hostLimiter paces outgoing requests with one token bucket per host. Idle
// hosts are forgotten after defaultRateEntryTTL.
type hostLimiter struct {
	limit    rate.Limit
	burst    int
	maxHosts int

	mu       sync.Mutex
	entries  map[string]*hostEntry
	lastScan time.Time
}

func newHostLimiter(requestsPerSecond float64, burst int) *hostLimiter {
	if burst <= 0 {
		burst = max(1, int(requestsPerSecond))
	}
	return &hostLimiter{
		limit:    rate.Limit(requestsPerSecond),
		burst:    burst,
		maxHosts: defaultRateMaxHosts,
		entries:  make(map[string]*hostEntry),
		lastScan: time.Now(),
	}
}

// Wait blocks until a request to host may be sent or ctx is done.
func (h *hostLimiter) Wait(ctx context.Context, host string) error {
	return h.entry(host).limiter.Wait(ctx)
}

// Len returns the number of tracked hosts.
func (h *hostLimiter) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *hostLimiter) entry(host string) *hostEntry {
	if host == "" {
		host = "unknown"
	}
	now := time.Now()

	h.mu.Lock()
	defer h.mu.Unlock()

	if now.Sub(h.lastScan) >= defaultRateCleanupInterval {
		h.expireLocked(now)
	}

	e, found := h.entries[host]
	if !found {
		e = &hostEntry{limiter: rate.NewLimiter(h.limit, h.burst)}
		h.entries[host] = e
	}
	e.lastAccess.Store(now.UnixNano())
	if !found {
		h.evictIfNeededLocked(host)
	}
	return e
}

func (h *hostLimiter) expireLocked(now time.Time) {
	h.lastScan = now
	cutoff := now.Add(-defaultRateEntryTTL).UnixNano()
	for host, e := range h.entries {
		if e.lastAccess.Load() < cutoff {
			delete(h.entries, host)
		}
	}
}

// evictIfNeededLocked drops the least recently used hosts over maxHosts,
// never keep.
func (h *hostLimiter) evictIfNeededLocked(keep string) {
	for len(h.entries) > h.maxHosts {
		oldestHost := ""
		oldest := time.Now().UnixNano()
		for host, e := range h.entries {
			if host == keep {
				continue
			}
			if last := e.lastAccess.Load(); last <= oldest {
				oldest = last
				oldestHost = host
			}
		}
		if oldestHost == "" {
			return
		}
		delete(h.entries, oldestHost)
	}
}
