package feedparse

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"
)

// stripHTML strips tags from raw HTML, returning the plain-text content plus
// the src of the first <img> tag found (if any). An <a> tag whose visible
// text is the same bare URL as its href is blanked before extraction so it
// doesn't show up twice in the plain text, per spec.md §4.2. Grounded on
// services/wikipedia/wikipedia.go's use of jaytaylor/html2text for the actual
// HTML-to-text conversion; goquery (also in the teacher's go.mod) is used
// first to walk the tree for the bare-link cleanup and the <img> src pull,
// since html2text itself has no hook for either.
func stripHTML(raw string) (plain string, imgSrc string) {
	if strings.TrimSpace(raw) == "" {
		return "", ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		text, textErr := html2text.FromString(raw, html2text.Options{OmitLinks: true})
		if textErr != nil {
			return collapseSpaces(html.UnescapeString(raw)), ""
		}
		return collapseSpaces(text), ""
	}

	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		text := strings.TrimSpace(a.Text())
		if text == href || text == strings.TrimSuffix(href, "/") {
			a.SetText("")
		}
	})

	if src, ok := doc.Find("img").First().Attr("src"); ok {
		imgSrc = src
	}

	body, err := doc.Find("body").Html()
	if err != nil || strings.TrimSpace(body) == "" {
		body, _ = doc.Html()
	}
	text, err := html2text.FromString(body, html2text.Options{OmitLinks: true})
	if err != nil {
		return collapseSpaces(doc.Find("body").Text()), imgSrc
	}
	return collapseSpaces(text), imgSrc
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
