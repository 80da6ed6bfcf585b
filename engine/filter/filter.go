// Package filter implements the deterministic keyword stage.
package filter

import (
	"strings"

	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/pkg/fn"
)

// Matches reports whether any keyword occurs, case-sensitively, in the
// record's title or body (the fetched body when present, else the snippet).
// An empty keyword set disables the stage and matches everything.
func Matches(rec domain.PostRecord, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	body := rec.Body()
	for _, k := range keywords {
		if strings.Contains(rec.Title, k) || strings.Contains(body, k) {
			return true
		}
	}
	return false
}

// MatchedKeywords returns the keywords found in rec, in keyword order.
func MatchedKeywords(rec domain.PostRecord, keywords []string) []string {
	body := rec.Body()
	var out []string
	for _, k := range keywords {
		if strings.Contains(rec.Title, k) || strings.Contains(body, k) {
			out = append(out, k)
		}
	}
	return out
}

// Partition splits recs into keyword matches and the remainder, preserving
// order. With no keywords nothing is matched and every record is returned
// in rest, untouched, for the next stage.
func Partition(recs []domain.PostRecord, keywords []string) (matched, rest []domain.PostRecord) {
	if len(keywords) == 0 {
		return nil, recs
	}
	return fn.Partition(recs, func(r domain.PostRecord) bool { return Matches(r, keywords) })
}
