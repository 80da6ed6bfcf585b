// Package pipeline runs one search-filter-classify-emit pass and enforces a
// single active run at a time.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/archive"
	"github.com/cafescout/cafescout/engine/classify"
	"github.com/cafescout/cafescout/engine/dedup"
	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/engine/events"
	"github.com/cafescout/cafescout/engine/search"
)

// Searcher collects result cards. Implemented by *search.Client.
type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery, opts search.Options) (search.Result, error)
}

// Enricher fills a record's full body. Implemented by *content.Fetcher.
type Enricher interface {
	Enrich(ctx context.Context, rec *domain.PostRecord) (fellBack bool)
}

// Judge is the AI relevance stage. Implemented by *classify.Classifier.
type Judge interface {
	ValidateCredentials(ctx context.Context) classify.CredentialCheck
	ClassifySingle(ctx context.Context, title, body, command string) domain.Classification
	ClassifyBatch(ctx context.Context, posts []classify.Post, command string, batchSize int, opts classify.BatchOptions) []bool
	// ChunkDelay is the pause between consecutive model calls.
	ChunkDelay() time.Duration
}

// Archiver persists emitted posts. Implemented by *archive.Store.
type Archiver interface {
	Save(ctx context.Context, e archive.Entry) error
}

// Deps holds the external dependencies of a Worker.
type Deps struct {
	Search  Searcher
	Content Enricher
	Judge   Judge
	// Archive is optional.
	Archive Archiver
	// Headers is the auth material the search and content clients were built with.
	Headers map[string]string
	Events  events.Publisher
	Metrics *Metrics
	Logger  *zap.Logger
}

// Request describes one run.
type Request struct {
	// RunID stamps every event. Empty gets a fresh uuid.
	RunID  string
	Query  domain.SearchQuery
	Filter domain.FilterSpec
	// Existing holds posts already shown to the user. May be nil.
	Existing *dedup.Index
}

// Status is how a run ended.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusFailed    Status = "failed"
)

// Outcome summarizes a finished run.
type Outcome struct {
	RunID     string
	Status    Status
	Collected int
	Pages     int
	Emitted   int
	Err       error
	Duration  time.Duration
}

// Normal reports whether the run went to completion.
func (o Outcome) Normal() bool { return o.Status == StatusCompleted }

// RunState is owned by the worker goroutine of one run. Only the stop flag
// and the emitted count may be read from elsewhere.
type RunState struct {
	running  atomic.Bool
	emitted  atomic.Int64
	seen     *dedup.Index
	existing *dedup.Index
}

// NewRunState returns a fresh state with the run flag set.
func NewRunState(existing *dedup.Index) *RunState {
	s := &RunState{seen: dedup.NewIndex(), existing: existing}
	s.running.Store(true)
	return s
}

// Running reports whether the run flag is still set.
func (s *RunState) Running() bool { return s.running.Load() }

// RequestStop clears the run flag. The worker notices at its next checkpoint.
func (s *RunState) RequestStop() { s.running.Store(false) }

// Emitted returns how many posts have been emitted so far.
func (s *RunState) Emitted() int { return int(s.emitted.Load()) }
