package services

import (
	"html"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"
)

const excerptRunes = 200

var excerptBase = &url.URL{Scheme: "http", Host: "newsdesk.local", Path: "/"}

// makeExcerpt summarises article text. Readability picks the lead
// paragraph; short or unparsable text falls back to a plain prefix.
func makeExcerpt(text string) string {
	var b strings.Builder
	b.WriteString("<html><body><article>")
	for _, para := range strings.Split(text, "\n") {
		if para = strings.TrimSpace(para); para != "" {
			b.WriteString("<p>" + html.EscapeString(para) + "</p>")
		}
	}
	b.WriteString("</article></body></html>")

	if art, err := readability.FromReader(strings.NewReader(b.String()), excerptBase); err == nil {
		if ex := strings.TrimSpace(art.Excerpt); ex != "" {
			return truncateRunes(strings.Join(strings.Fields(ex), " "), excerptRunes)
		}
	}
	return truncateRunes(strings.Join(strings.Fields(text), " "), excerptRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
