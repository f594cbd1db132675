package feedparse

import (
	"bytes"
	"strings"

	"github.com/mmcdole/gofeed"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// ParseFeed turns a raw feed document into feed-level metadata and an
// ordered item list, in document order (spec.md §4.2). Grounded on
// services/rssbot/rssbot.go's use of gofeed as the parser and
// ensureItemsHaveGUIDs/html.UnescapeString for entity handling, generalized
// to the full per-item extraction contract this spec requires.
func ParseFeed(data []byte) (FeedMetadata, []FeedItem, error) {
	parser := gofeed.NewParser()
	feed, err := parser.Parse(bytes.NewReader(data))
	if feed == nil || (err != nil && len(feed.Items) == 0) {
		return FeedMetadata{}, nil, ErrUnparseable
	}

	meta := FeedMetadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
	}
	if feed.Image != nil {
		meta.ImageURL = feed.Image.URL
	}

	items := make([]FeedItem, len(feed.Items))
	rawSummaries := make([]string, len(feed.Items))
	for i, it := range feed.Items {
		fi, raw := extractItem(it)
		items[i] = fi
		rawSummaries[i] = raw
	}

	cleaned := make([]string, len(items))
	for i, it := range items {
		cleaned[i] = it.Summary
	}
	cleaned = trimBoilerplate(cleaned)
	for i := range items {
		items[i].Summary = cleaned[i]
		if items[i].Title == "" {
			items[i].Title = truncateAtWordBoundary(cleaned[i], 80)
		}
		items[i].Summary = truncateAtWordBoundary(items[i].Summary, 300)
	}

	return meta, items, nil
}

// extractItem builds a FeedItem from one gofeed.Item, returning the
// HTML-stripped (but not yet boilerplate-trimmed or truncated) summary
// alongside it so the caller can run the cross-item boilerplate pass.
func extractItem(it *gofeed.Item) (FeedItem, string) {
	fi := FeedItem{
		Title:           it.Title,
		Link:            it.Link,
		GUID:            it.GUID,
		Published:       it.Published,
		PublishedParsed: it.PublishedParsed,
	}
	if fi.GUID == "" {
		fi.GUID = fi.Link
	}
	if it.Author != nil {
		fi.Author = it.Author.Name
	} else if len(it.Authors) > 0 && it.Authors[0] != nil {
		fi.Author = it.Authors[0].Name
	}

	// "first non-empty of {summary, description, content}": gofeed already
	// folds <summary>/<description> into Description and <content:encoded>/
	// <content> into Content for both RSS and Atom documents.
	raw := it.Description
	if strings.TrimSpace(raw) == "" {
		raw = it.Content
	}
	plain, imgFromSummary := stripHTML(raw)
	fi.Summary = plain

	fi.ImageURL = extractImageURL(it, raw, imgFromSummary)

	return fi, raw
}

func extractImageURL(it *gofeed.Item, raw, imgFromSummary string) string {
	if url := firstMediaImage(it, "content"); url != "" {
		return url
	}
	if url := firstMediaImage(it, "thumbnail"); url != "" {
		return url
	}
	for _, enc := range it.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image") {
			return enc.URL
		}
	}
	if imgFromSummary != "" {
		return imgFromSummary
	}
	if strings.TrimSpace(it.Content) != "" && it.Content != raw {
		if _, img := stripHTML(it.Content); img != "" {
			return img
		}
	}
	return ""
}

func firstMediaImage(it *gofeed.Item, element string) string {
	if it.Extensions == nil {
		return ""
	}
	media, ok := it.Extensions["media"]
	if !ok {
		return ""
	}
	for _, e := range media[element] {
		url := e.Attrs["url"]
		if url == "" {
			continue
		}
		if element == "thumbnail" {
			return url
		}
		medium := strings.ToLower(e.Attrs["medium"])
		mtype := strings.ToLower(e.Attrs["type"])
		if medium == "image" || strings.HasPrefix(mtype, "image") || hasImageExtension(url) {
			return url
		}
	}
	return ""
}

func hasImageExtension(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
