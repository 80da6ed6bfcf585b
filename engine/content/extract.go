package content

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const paragraphSelector = ".se-module-text .se-text-paragraph span"

// ExtractText joins the editor's paragraph spans with single spaces.
// Markup without that structure yields "".
func ExtractText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find(paragraphSelector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Truncate cuts s to at most n runes. n <= 0 leaves s unchanged.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
