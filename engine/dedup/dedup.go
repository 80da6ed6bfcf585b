// Package dedup suppresses posts already emitted in this run or already
// shown to the user before it.
//
// Matching is by exact title, or by (cafe, title) pair. Title-only matching
// is coarse: distinct posts sharing a title in different cafes are treated
// as one.
package dedup

import "github.com/cafescout/cafescout/engine/domain"

type pair struct {
	cafe  string
	title string
}

// Index holds titles and (cafe, title) pairs. The zero value is not usable;
// call NewIndex. An Index is not safe for concurrent mutation.
type Index struct {
	titles map[string]struct{}
	pairs  map[pair]struct{}
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		titles: make(map[string]struct{}),
		pairs:  make(map[pair]struct{}),
	}
}

// Register records rec as emitted. Call it only when rec is actually emitted.
func (x *Index) Register(rec domain.PostRecord) {
	x.titles[rec.Title] = struct{}{}
	x.pairs[pair{rec.CafeID, rec.Title}] = struct{}{}
}

// AddTitle records a bare title, e.g. one loaded from an earlier run.
func (x *Index) AddTitle(title string) {
	x.titles[title] = struct{}{}
}

// AddPair records a (cafe, title) pair without its title.
func (x *Index) AddPair(cafeID, title string) {
	x.pairs[pair{cafeID, title}] = struct{}{}
}

// Contains reports whether rec's title or (cafe, title) pair is present.
func (x *Index) Contains(rec domain.PostRecord) bool {
	if x == nil {
		return false
	}
	if _, ok := x.titles[rec.Title]; ok {
		return true
	}
	_, ok := x.pairs[pair{rec.CafeID, rec.Title}]
	return ok
}

// Len returns the number of distinct titles.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.titles)
}

// IsDuplicate reports whether rec was seen in this run or is already displayed.
// existing may be nil.
func IsDuplicate(rec domain.PostRecord, seen, existing *Index) bool {
	return seen.Contains(rec) || existing.Contains(rec)
}
