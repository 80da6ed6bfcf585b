// Package search pages through the cafe search surface and parses result
// cards into post records.
package search

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/domain"
)

// DefaultBaseURL is the cafe search endpoint.
const DefaultBaseURL = "https://search.naver.com/search.naver"

// PageSize is the number of result cards the provider returns per page.
const PageSize = 30

// Status is the terminal state of one Search call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// Result holds the collected items. On StatusError Items is the partial set
// gathered before the failing page.
type Result struct {
	Items  []domain.PostRecord
	Status Status
	Pages  int
}

// Options carries per-call hooks.
type Options struct {
	// Running is polled before each page fetch and during the inter-page delay.
	// Nil means always running.
	Running func() bool
	// OnProgress is called before each fetch and once at the end with inProgress=false.
	OnProgress func(page, accumulated int, inProgress bool)
}

// Config controls client behavior.
type Config struct {
	BaseURL string
	// Headers are sent on every request and override the browser defaults.
	Headers    map[string]string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

var defaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language": "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
	"Referer":         "https://search.naver.com",
}

var cafeWhere = map[domain.Scope]string{
	domain.ScopeAll:      "article",
	domain.ScopeTrade:    "articlec",
	domain.ScopeGeneral:  "articleg",
	domain.ScopeCafeName: "cafe",
}

var sortCode = map[domain.Sort]string{
	domain.SortRelevance: "r",
	domain.SortRecency:   "dd",
}

var sortParam = map[domain.Sort]string{
	domain.SortRelevance: "rel",
	domain.SortRecency:   "date",
}
