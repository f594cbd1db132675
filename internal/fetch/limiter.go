package fetch

import (
	"context"
	"net/url"
	"sync"
)

const perHostLimit = 2

// HostLimiter caps in-flight requests to perHostLimit per remote host.
// Semaphores are created lazily and live for the process lifetime
// (spec.md §5, §9 "Host-bucket lifetime"); grounded on
// original_source/cordfeeder/poller.py's _get_host_semaphore, translated
// from asyncio.Semaphore to a buffered channel.
type HostLimiter struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewHostLimiter() *HostLimiter {
	return &HostLimiter{sems: make(map[string]chan struct{})}
}

// Acquire blocks until a slot for host is free or ctx is cancelled. The
// returned release func must be called exactly once. Hostnames that fail to
// parse hash into the shared ""-keyed bucket rather than skipping the
// limiter entirely.
func (h *HostLimiter) Acquire(ctx context.Context, host string) (release func(), err error) {
	sem := h.semFor(host)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *HostLimiter) semFor(host string) chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sems[host]; ok {
		return s
	}
	s := make(chan struct{}, perHostLimit)
	h.sems[host] = s
	return s
}

// hostFromURL extracts the hostname a URL's semaphore should be keyed on.
// An unparseable URL or one with no hostname maps to the empty string, a
// single shared bucket for all such URLs.
func hostFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
