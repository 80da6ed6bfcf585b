package domain

import (
	"net/url"
	"regexp"
	"strings"
)

var articlePathRe = regexp.MustCompile(`cafe\.naver\.com/([^/?#]+)/(\d+)`)

// NormalizeURL prefixes https:// when raw has no scheme.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return "https://" + strings.TrimPrefix(raw, "//")
}

// ParseArticleURL extracts the cafe alias and article id from a post URL.
// Both are empty when the URL does not follow the cafe article pattern.
func ParseArticleURL(raw string) (cafeID, articleID string) {
	m := articlePathRe.FindStringSubmatch(raw)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

// SignedParam returns the "art" query parameter carried by some search result links.
func SignedParam(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("art")
}
