package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const minimalRSS = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title><link>https://example.com</link>
<item><title>One</title><link>https://example.com/1</link><guid>1</guid><description>%s</description></item>
</channel></rss>`

func rssOfExactSize(n int) string {
	prefixLen := len(fmtSprintf(minimalRSS, ""))
	fillerLen := n - prefixLen
	if fillerLen < 0 {
		fillerLen = 0
	}
	return fmtSprintf(minimalRSS, strings.Repeat("x", fillerLen))
}

// fmtSprintf avoids importing fmt just for one call site used twice.
func fmtSprintf(format, arg string) string {
	return strings.Replace(format, "%s", arg, 1)
}

func newServer(t *testing.T, status int, headers map[string]string, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestFetchNotModified(t *testing.T) {
	srv := newServer(t, http.StatusNotModified, nil, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "some-etag", "")
	if out.Kind != NotModified {
		t.Fatalf("Kind = %v, want NotModified", out.Kind)
	}
}

func TestFetchFreshParsesBody(t *testing.T) {
	srv := newServer(t, http.StatusOK, map[string]string{"ETag": `"abc"`, "Last-Modified": "Tue, 01 Jan 2026 00:00:00 GMT"}, fmtSprintf(minimalRSS, "hello"))
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != Fresh {
		t.Fatalf("Kind = %v, want Fresh (err=%v)", out.Kind, out.Err)
	}
	if out.ETag != `"abc"` {
		t.Errorf("ETag = %q", out.ETag)
	}
	if len(out.Items) != 1 {
		t.Fatalf("len(Items) = %d, want 1", len(out.Items))
	}
}

func TestFetchPermanentGone(t *testing.T) {
	srv := newServer(t, http.StatusGone, nil, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != PermanentGone {
		t.Fatalf("Kind = %v, want PermanentGone", out.Kind)
	}
}

func TestFetchRateLimitedParsesRetryAfter(t *testing.T) {
	srv := newServer(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "120"}, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != RateLimited {
		t.Fatalf("Kind = %v, want RateLimited", out.Kind)
	}
	if out.RetryAfter == nil || *out.RetryAfter != 120 {
		t.Errorf("RetryAfter = %v, want 120", out.RetryAfter)
	}
}

func TestFetchRateLimitedIgnoresHTTPDateRetryAfter(t *testing.T) {
	srv := newServer(t, http.StatusForbidden, map[string]string{"Retry-After": "Wed, 21 Oct 2026 07:28:00 GMT"}, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != RateLimited {
		t.Fatalf("Kind = %v, want RateLimited", out.Kind)
	}
	if out.RetryAfter != nil {
		t.Errorf("RetryAfter = %v, want nil for HTTP-date value", *out.RetryAfter)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := newServer(t, http.StatusBadGateway, nil, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != ServerError || out.Status != http.StatusBadGateway {
		t.Fatalf("Kind=%v Status=%d, want ServerError/502", out.Kind, out.Status)
	}
}

func TestFetchHttpError(t *testing.T) {
	srv := newServer(t, http.StatusTeapot, nil, "")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != HttpError || out.Status != http.StatusTeapot {
		t.Fatalf("Kind=%v Status=%d, want HttpError/418", out.Kind, out.Status)
	}
}

func TestFetchPayloadExactCapSucceeds(t *testing.T) {
	body := rssOfExactSize(maxBodyBytes)
	if len(body) != maxBodyBytes {
		t.Fatalf("test fixture is %d bytes, want exactly %d", len(body), maxBodyBytes)
	}
	srv := newServer(t, http.StatusOK, nil, body)
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != Fresh {
		t.Fatalf("Kind = %v, want Fresh at exactly the cap (err=%v)", out.Kind, out.Err)
	}
}

func TestFetchPayloadOverCapFails(t *testing.T) {
	body := rssOfExactSize(maxBodyBytes + 1)
	srv := newServer(t, http.StatusOK, nil, body)
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != PayloadTooLarge {
		t.Fatalf("Kind = %v, want PayloadTooLarge", out.Kind)
	}
}

func TestFetchParseError(t *testing.T) {
	srv := newServer(t, http.StatusOK, nil, "not a feed document and not html either")
	defer srv.Close()

	f := New("feedbot-test/1.0")
	out := f.Fetch(context.Background(), srv.URL, "", "")
	if out.Kind != ParseError {
		t.Fatalf("Kind = %v, want ParseError", out.Kind)
	}
}
