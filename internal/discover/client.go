package discover

import (
	"net/http"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
)

type userAgentRoundTripper struct {
	transport http.RoundTripper
	userAgent string
}

func (rt userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rt.userAgent)
	// Leave Accept-Encoding unset so the underlying Transport negotiates and
	// transparently decompresses gzip itself; setting it explicitly would
	// hand the raw compressed bytes to the caller instead.
	return rt.transport.RoundTrip(req)
}

// NewClient builds the HTTP client used for discovery probes. The command
// facade's one-shot preview/subscribe fetches of the resolved feed URL go
// through fetch.Fetcher, not this client. Grounded directly on
// services/rssbot/rssbot.go's init(): an LRU-backed httpcache transport
// wrapped by a User-Agent-setting RoundTripper, so repeated probes of the
// same page during a single discovery run are cheap.
func NewClient(userAgent string) *http.Client {
	lru := lrucache.New(1024*1024*20, 0) // 20 MB cache, no max-age
	return &http.Client{
		Transport: userAgentRoundTripper{
			transport: httpcache.NewTransport(lru),
			userAgent: userAgent,
		},
	}
}
