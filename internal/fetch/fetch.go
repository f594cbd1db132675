package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matrix-org/feedbot/internal/feedparse"
	"github.com/matrix-org/feedbot/internal/metrics"
)

const (
	maxBodyBytes = 10 * 1024 * 1024
	fetchTimeout = 30 * time.Second
)

var errPayloadTooLarge = errors.New("fetch: body exceeds size cap")

// Fetcher performs the conditional-GET request and parse for one feed.
// Safe for concurrent use: the underlying *http.Client and HostLimiter are
// shared across workers, per spec.md §5.
type Fetcher struct {
	client    *http.Client
	limiter   *HostLimiter
	userAgent string
}

// New builds a Fetcher with its own HTTP client, wrapped the same way
// services/rssbot/rssbot.go wraps its cachingClient: a RoundTripper that
// injects the User-Agent header on every request.
func New(userAgent string) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Transport: userAgentRoundTripper{
				transport: http.DefaultTransport,
				userAgent: userAgent,
			},
		},
		limiter:   NewHostLimiter(),
		userAgent: userAgent,
	}
}

type userAgentRoundTripper struct {
	transport http.RoundTripper
	userAgent string
}

func (rt userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", rt.userAgent)
	// Leave Accept-Encoding unset so Transport negotiates and transparently
	// decompresses gzip itself; setting it explicitly would hand the raw
	// compressed bytes to the caller instead.
	return rt.transport.RoundTrip(req)
}

// Fetch runs the conditional GET against feedURL, using etag/lastModified
// as the saved validators, and classifies the result per spec.md §4.4.
func (f *Fetcher) Fetch(ctx context.Context, feedURL, etag, lastModified string) (outcome Outcome) {
	start := time.Now()
	defer func() {
		metrics.ObserveFetchDuration(outcome.Kind.String(), time.Since(start).Seconds())
	}()

	release, err := f.limiter.Acquire(ctx, hostFromURL(feedURL))
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}
	defer release()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastModified != "" {
		req.Header.Set("If-Modified-Since", lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return Outcome{Kind: NotModified}
	case resp.StatusCode == http.StatusGone:
		return Outcome{Kind: PermanentGone, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return Outcome{Kind: RateLimited, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Status: resp.StatusCode}
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return Outcome{Kind: ServerError, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return Outcome{Kind: HttpError, Status: resp.StatusCode}
	}

	body, err := readCapped(resp.Body, maxBodyBytes)
	if err != nil {
		if errors.Is(err, errPayloadTooLarge) {
			return Outcome{Kind: PayloadTooLarge}
		}
		return Outcome{Kind: NetworkError, Err: err}
	}

	meta, items, err := feedparse.ParseFeed(body)
	if err != nil {
		return Outcome{Kind: ParseError, Err: err}
	}

	return Outcome{
		Kind:         Fresh,
		Metadata:     meta,
		Items:        items,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
}

// readCapped reads at most limit bytes, failing with errPayloadTooLarge if
// the stream has at least one byte beyond it.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errPayloadTooLarge
	}
	return data, nil
}

// parseRetryAfter parses Retry-After as an integer count of seconds only;
// an absent, non-numeric, or HTTP-date value yields a nil pointer rather
// than attempting HTTP-date parsing (spec.md §4.4).
func parseRetryAfter(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &n
}
