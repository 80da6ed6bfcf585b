// Package domain defines the records, query descriptors and validation shared
// by every stage of the cafescout pipeline. It acts as the validation gate at
// run start.
package domain

// PostRecord is one discovered cafe post. It is created by the search client,
// enriched by the content fetcher, annotated by the classifier and treated as
// immutable once emitted.
type PostRecord struct {
	Title          string          `json:"title"`
	BodySnippet    string          `json:"body_snippet"`
	URL            string          `json:"url"`
	CafeID         string          `json:"source_cafe_id"`
	ArticleID      string          `json:"article_id"`
	Author         string          `json:"author_display_name"`
	AuthorURL      string          `json:"author_url,omitempty"`
	PostedAt       string          `json:"posted_at"`
	Comments       []string        `json:"comments"`
	FullBody       *string         `json:"full_body,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}

// Body returns the fetched body when present, otherwise the snippet.
func (p PostRecord) Body() string {
	if p.FullBody != nil {
		return *p.FullBody
	}
	return p.BodySnippet
}

// Classification is the classifier's verdict on a single post.
type Classification struct {
	IsRelevant      bool     `json:"is_relevant"`
	MatchedKeywords []string `json:"matched_keywords"`
	Rationale       string   `json:"rationale"`
}

// Scope selects which part of the cafe index is searched.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeTrade    Scope = "trade"
	ScopeGeneral  Scope = "general"
	ScopeCafeName Scope = "cafe-name"
)

// Sort orders search results.
type Sort string

const (
	SortRelevance Sort = "relevance"
	SortRecency   Sort = "recency"
)

// RecencyWindow limits how old results may be.
type RecencyWindow string

const (
	RecencyAll RecencyWindow = "all"
	Recency1h  RecencyWindow = "1h"
	Recency1d  RecencyWindow = "1d"
	Recency1w  RecencyWindow = "1w"
	Recency1m  RecencyWindow = "1m"
	Recency3m  RecencyWindow = "3m"
	Recency6m  RecencyWindow = "6m"
	Recency1y  RecencyWindow = "1y"
)

// RecencyWindows lists every window in ascending age order.
var RecencyWindows = []RecencyWindow{
	RecencyAll, Recency1h, Recency1d, Recency1w, Recency1m, Recency3m, Recency6m, Recency1y,
}

// SearchQuery describes what to search for.
type SearchQuery struct {
	Keyword   string        `json:"keyword"`
	Scope     Scope         `json:"scope"`
	Sort      Sort          `json:"sort"`
	Recency   RecencyWindow `json:"recency_window"`
	MaxItems  int           `json:"max_items"`
	PageDelay float64       `json:"inter_page_delay_seconds"`
}

// FilterSpec configures both filter stages.
type FilterSpec struct {
	Keywords  []string `json:"keyword_filters"`
	AICommand string   `json:"ai_command,omitempty"`
	BatchSize int      `json:"ai_batch_size"`
}

// Phase names a pipeline stage in progress reports.
type Phase string

const (
	PhaseSearching        Phase = "searching"
	PhaseFetching         Phase = "fetching"
	PhaseKeywordFiltering Phase = "keyword-filtering"
	PhaseAIFiltering      Phase = "ai-filtering"
	PhaseDone             Phase = "done"
)

// ProgressEvent is a progress snapshot at a stage checkpoint.
type ProgressEvent struct {
	Phase   Phase `json:"phase"`
	Current int   `json:"current_unit"`
	Total   int   `json:"total_units"`
	Percent int   `json:"percent"`
}

// NewProgress computes Percent from current/total, clamped to 0..100.
func NewProgress(phase Phase, current, total int) ProgressEvent {
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return ProgressEvent{Phase: phase, Current: current, Total: total, Percent: pct}
}
