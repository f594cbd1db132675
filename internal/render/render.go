package render

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/matrix-org/feedbot/internal/feedparse"
)

// Message is the rendered form of one feed item, ready to hand to a
// publish.Sink: a plain-text body for clients/fallbacks that don't render
// HTML, and a Matrix-flavored formatted body for clients that do. Shaped
// after the mevt.MessageEventContent split between Body and FormattedBody in
// services/rssbot/rssbot.go's itemToHTML.
type Message struct {
	PlainBody     string
	FormattedBody string
}

// Item renders one feed item for posting under feedName (the subscription's
// display name). now is passed in explicitly so date formatting is
// deterministic in tests.
func Item(feedName string, item feedparse.FeedItem, now time.Time) Message {
	safeName := stripNewlines(neutralizeMentions(feedName))

	safeTitle := stripNewlines(neutralizeMentions(escapeMarkdown(item.Title)))
	if safeTitle == "" {
		safeTitle = safeName
	}

	safeSummary := ""
	if item.Summary != "" {
		safeSummary = neutralizeMentions(item.Summary)
	}

	safeLink := sanitizeURL(item.Link)

	safeImage := ""
	if item.ImageURL != "" {
		safeImage = sanitizeURL(item.ImageURL)
	}

	dateStr := ""
	if item.PublishedParsed != nil {
		dateStr = formatRelative(*item.PublishedParsed, now)
	} else if item.Published != "" {
		dateStr = formatDate(item.Published, now)
	}

	// text_primary: show the image inline only when the summary is short
	// enough that the image is the point, per
	// original_source/cordfeeder/formatter.py's format_item_message.
	textPrimary := safeSummary != "" && len([]rune(item.Summary)) > 100

	plain := plainHeader(safeName, safeTitle, safeLink, dateStr)
	rendered := htmlHeader(safeName, safeTitle, safeLink, dateStr)

	switch {
	case safeImage != "" && !textPrimary:
		plain += "\n" + safeImage
		rendered += fmt.Sprintf(`<br><img src="%s">`, html.EscapeString(safeImage))
	case safeSummary != "":
		plain += "\n" + quoteLines(safeSummary)
		rendered += "<br><blockquote>" + html.EscapeString(safeSummary) + "</blockquote>"
	}

	return Message{PlainBody: plain, FormattedBody: rendered}
}

func plainHeader(name, title, link, date string) string {
	parts := []string{"**" + name + "**"}
	if link != "" {
		parts = append(parts, fmt.Sprintf("%s (%s)", title, link))
	} else {
		parts = append(parts, title)
	}
	if date != "" {
		parts = append(parts, date)
	}
	return strings.Join(parts, " · ")
}

func htmlHeader(name, title, link, date string) string {
	header := fmt.Sprintf("<strong>%s</strong>: ", html.EscapeString(name))
	if link != "" {
		header += fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(link), html.EscapeString(title))
	} else {
		header += html.EscapeString(title)
	}
	if date != "" {
		header += " · " + html.EscapeString(date)
	}
	return header
}

func quoteLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// Removed notifies a channel that a subscription was auto-removed, mirroring
// the notify-then-remove step spec.md §7 requires on a PermanentGone
// disposition.
func Removed(feedName, reason string) Message {
	safeName := stripNewlines(neutralizeMentions(feedName))
	safeReason := stripNewlines(neutralizeMentions(reason))
	plain := fmt.Sprintf("**%s** was removed: %s", safeName, safeReason)
	rendered := fmt.Sprintf("<strong>%s</strong> was removed: %s", html.EscapeString(safeName), html.EscapeString(safeReason))
	return Message{PlainBody: plain, FormattedBody: rendered}
}
