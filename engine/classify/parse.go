package classify

import (
	"regexp"
	"strings"

	"github.com/cafescout/cafescout/engine/domain"
)

// ParseBatch reads one verdict per line. Only lines that are exactly "true"
// or "false" after trimming and lowercasing count; the result is padded with
// false or truncated so its length is always n.
func ParseBatch(text string, n int) []bool {
	out := make([]bool, 0, n)
	for _, line := range strings.Split(text, "\n") {
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "true":
			out = append(out, true)
		case "false":
			out = append(out, false)
		}
	}
	if len(out) > n {
		return out[:n]
	}
	for len(out) < n {
		out = append(out, false)
	}
	return out
}

var listMarker = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s*`)

// ParseSingle reads the relevance/keywords/rationale lines. Missing or
// malformed lines leave the corresponding field at its negative default.
func ParseSingle(text string) domain.Classification {
	c := domain.Classification{MatchedKeywords: []string{}}
	for _, line := range strings.Split(text, "\n") {
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		switch label {
		case "relevance", "관련성":
			c.IsRelevant = strings.HasPrefix(strings.ToLower(value), "true")
		case "keywords", "키워드", "매칭된 키워드":
			c.MatchedKeywords = splitKeywords(value)
		case "rationale", "분석", "근거":
			c.Rationale = value
		}
	}
	return c
}

func splitLabel(line string) (label, value string, ok bool) {
	line = listMarker.ReplaceAllString(strings.TrimSpace(line), "")
	line = strings.Replace(line, "：", ":", 1)
	label, value, ok = strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), "*"))
	value = strings.TrimSpace(value)
	value = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(value, "["), "]"))
	return label, value, true
}

func splitKeywords(v string) []string {
	out := []string{}
	for _, k := range strings.Split(v, ",") {
		k = strings.TrimSpace(k)
		switch strings.ToLower(k) {
		case "", "없음", "none", "-":
			continue
		}
		out = append(out, k)
	}
	return out
}
