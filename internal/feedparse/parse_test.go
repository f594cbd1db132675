package feedparse

import (
	"strings"
	"testing"
)

const rssFixture = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Blog</title>
<link>https://example.com</link>
<description>An example blog</description>
<item>
  <title>First Post</title>
  <link>https://example.com/1</link>
  <guid>urn:uuid:1</guid>
  <author>jane@example.com (Jane Doe)</author>
  <description>Hello world, this is the first post.</description>
</item>
<item>
  <title>Second Post</title>
  <link>https://example.com/2</link>
  <guid>urn:uuid:2</guid>
  <description>Another update from the team.</description>
</item>
</channel></rss>`

const atomFixture = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Example Atom Feed</title>
<link href="https://example.com"/>
<entry>
  <title>Atom Entry</title>
  <link href="https://example.com/atom/1"/>
  <id>tag:example.com,2026:1</id>
  <author><name>Jane Doe</name></author>
  <summary>An atom entry summary.</summary>
</entry>
</feed>`

func TestParseFeedRSSRoundTrip(t *testing.T) {
	meta, items, err := ParseFeed([]byte(rssFixture))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if meta.Title != "Example Blog" {
		t.Errorf("meta.Title = %q", meta.Title)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	if items[0].Title != "First Post" || items[0].Link != "https://example.com/1" || items[0].GUID != "urn:uuid:1" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if !strings.Contains(items[0].Author, "Jane Doe") {
		t.Errorf("items[0].Author = %q", items[0].Author)
	}
	if items[1].GUID != "urn:uuid:2" {
		t.Errorf("items[1].GUID = %q", items[1].GUID)
	}
}

func TestParseFeedAtomRoundTrip(t *testing.T) {
	meta, items, err := ParseFeed([]byte(atomFixture))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if meta.Title != "Example Atom Feed" {
		t.Errorf("meta.Title = %q", meta.Title)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	it := items[0]
	if it.Title != "Atom Entry" || it.GUID != "tag:example.com,2026:1" || it.Author != "Jane Doe" {
		t.Errorf("items[0] = %+v", it)
	}
	if it.Summary != "An atom entry summary." {
		t.Errorf("items[0].Summary = %q", it.Summary)
	}
}

func TestParseFeedUnparseable(t *testing.T) {
	_, _, err := ParseFeed([]byte("this is just plain text, not a feed and not html"))
	if err != ErrUnparseable {
		t.Fatalf("err = %v, want ErrUnparseable", err)
	}
}

func TestParseFeedGUIDFallsBackToLink(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>T</title><link>https://example.com</link>
<item><title>No GUID</title><link>https://example.com/no-guid</link><description>x</description></item>
</channel></rss>`
	_, items, err := ParseFeed([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFeed: %v", err)
	}
	if items[0].GUID != "https://example.com/no-guid" {
		t.Errorf("GUID = %q, want fallback to link", items[0].GUID)
	}
}

func TestSummaryTruncationBoundary(t *testing.T) {
	exact := strings.Repeat("a", 300)
	if got := truncateAtWordBoundary(exact, 300); got != exact {
		t.Errorf("300-char summary was truncated: %q", got)
	}

	over := strings.Repeat("a", 299) + " b"
	got := truncateAtWordBoundary(over, 300)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("301-char summary not truncated with ellipsis: %q", got)
	}
	if strings.Contains(got, " b") {
		t.Errorf("truncation did not cut at word boundary: %q", got)
	}
}

func TestTrimBoilerplatePrefixAndSuffix(t *testing.T) {
	summaries := []string{
		"BREAKING NEWS UPDATE: story one continues. Read more at example.com.",
		"BREAKING NEWS UPDATE: story two continues. Read more at example.com.",
		"BREAKING NEWS UPDATE: story three continues. Read more at example.com.",
	}
	trimmed := trimBoilerplate(summaries)
	for i, s := range trimmed {
		if strings.Contains(s, "BREAKING NEWS UPDATE") {
			t.Errorf("trimmed[%d] still has prefix boilerplate: %q", i, s)
		}
		if strings.Contains(s, "Read more at example.com") {
			t.Errorf("trimmed[%d] still has suffix boilerplate: %q", i, s)
		}
	}
}

func TestTrimBoilerplateIdempotent(t *testing.T) {
	summaries := []string{
		"SPONSORED CONTENT BROUGHT TO YOU BY ACME: alpha release notes here.",
		"SPONSORED CONTENT BROUGHT TO YOU BY ACME: beta release notes here.",
		"SPONSORED CONTENT BROUGHT TO YOU BY ACME: gamma release notes here.",
	}
	once := trimBoilerplate(summaries)
	twice := trimBoilerplate(once)
	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("trim not idempotent at %d: once=%q twice=%q", i, once[i], twice[i])
		}
	}
}

func TestTrimBoilerplateRequiresTwoItems(t *testing.T) {
	single := []string{"BREAKING NEWS UPDATE: the only story here today."}
	got := trimBoilerplate(single)
	if got[0] != single[0] {
		t.Errorf("single-item input was modified: %q", got[0])
	}
}

func TestStripHTMLRemovesBareURLAnchor(t *testing.T) {
	plain, _ := stripHTML(`Check this out: <a href="https://example.com/x">https://example.com/x</a> neat huh`)
	if strings.Contains(plain, "https://example.com/x") {
		t.Errorf("bare URL anchor text not stripped: %q", plain)
	}
	if strings.Contains(plain, "  ") {
		t.Errorf("consecutive spaces not collapsed: %q", plain)
	}
}

func TestStripHTMLExtractsFirstImage(t *testing.T) {
	_, img := stripHTML(`<p>intro</p><img src="https://example.com/pic.png"><img src="https://example.com/other.png">`)
	if img != "https://example.com/pic.png" {
		t.Errorf("img = %q", img)
	}
}
