package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidateQuery checks a SearchQuery before any network call.
func ValidateQuery(q SearchQuery) error {
	if strings.TrimSpace(q.Keyword) == "" {
		return ErrMissingKeyword
	}
	switch q.Scope {
	case ScopeAll, ScopeTrade, ScopeGeneral, ScopeCafeName:
	default:
		return NewValidationError("scope", string(q.Scope), ErrInvalidQuery)
	}
	switch q.Sort {
	case SortRelevance, SortRecency:
	default:
		return NewValidationError("sort", string(q.Sort), ErrInvalidQuery)
	}
	if !validRecency(q.Recency) {
		return NewValidationError("recency_window", string(q.Recency), ErrInvalidQuery)
	}
	if q.MaxItems <= 0 {
		return NewValidationError("max_items", strconv.Itoa(q.MaxItems), ErrInvalidQuery)
	}
	if q.PageDelay < 0 {
		return NewValidationError("inter_page_delay_seconds", fmt.Sprint(q.PageDelay), ErrInvalidQuery)
	}
	return nil
}

func validRecency(r RecencyWindow) bool {
	for _, w := range RecencyWindows {
		if w == r {
			return true
		}
	}
	return false
}

// ValidateFilter checks a FilterSpec.
func ValidateFilter(f FilterSpec) error {
	if f.BatchSize <= 0 {
		return NewValidationError("ai_batch_size", strconv.Itoa(f.BatchSize), ErrInvalidFilter)
	}
	for _, k := range f.Keywords {
		if k == "" {
			return NewValidationError("keyword_filters", k, ErrInvalidFilter)
		}
	}
	return nil
}

// ValidateHeaders requires at least one non-empty auth header.
func ValidateHeaders(h map[string]string) error {
	for k, v := range h {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			return nil
		}
	}
	return ErrMissingHeaders
}

// NormalizeKeywords trims each keyword and drops blanks and repeats, keeping order.
func NormalizeKeywords(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
