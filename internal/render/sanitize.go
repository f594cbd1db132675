// Package render turns a parsed feed item into the plain-text and
// Matrix-flavored HTML bodies handed to the publisher sink. It is the
// concrete (optional, swappable) implementation of the "chat-message
// rendering template" collaborator spec.md leaves abstract, grounded on
// original_source/cordfeeder/formatter.py (mention neutralization, markdown
// escaping, URL sanitization, relative-date formatting, image-primary
// heuristic) and on services/rssbot/rssbot.go's itemToHTML for the
// Matrix-specific HTML shape actually wired into internal/publish.
package render

import (
	"regexp"
	"strings"
)

// mentionPattern matches platform mention syntaxes this system has seen in
// the wild: Discord's @everyone/@here and <@id>/<@!id>/<@&id>. Neutralizing
// these in rendered output satisfies spec.md §8 (S8) regardless of which
// chat platform ultimately consumes the rendered message.
var mentionPattern = regexp.MustCompile(`@(everyone|here)|<@[!&]?\d+>`)

// neutralizeMentions inserts a zero-width space after the '@' of any
// recognised mention syntax, breaking it without visibly altering the text.
func neutralizeMentions(s string) string {
	return mentionPattern.ReplaceAllStringFunc(s, func(m string) string {
		return strings.Replace(m, "@", "@​", 1)
	})
}

var markdownSpecial = map[rune]bool{
	'*': true, '_': true, '~': true, '`': true,
	'|': true, '>': true, '[': true, ']': true,
}

// escapeMarkdown backslash-escapes characters with special meaning in
// common chat-markdown dialects, so untrusted feed text can't reformat the
// surrounding message.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if markdownSpecial[r] {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sanitizeURL truncates at the first whitespace, encodes '>' to prevent
// breakout from a <url> wrapper, and rejects any non-http(s) scheme,
// returning "" when nothing safe remains.
func sanitizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if fields := strings.Fields(raw); len(fields) > 0 {
		raw = fields[0]
	}
	raw = strings.ReplaceAll(raw, ">", "%3E")
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return ""
	}
	return raw
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", " ", "\r", "").Replace(s)
}
