package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/archive"
	"github.com/cafescout/cafescout/engine/classify"
	"github.com/cafescout/cafescout/engine/content"
	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/engine/events"
	"github.com/cafescout/cafescout/engine/pipeline"
	"github.com/cafescout/cafescout/engine/search"
	"github.com/cafescout/cafescout/pkg/config"
	"github.com/cafescout/cafescout/pkg/mid"
	"github.com/cafescout/cafescout/pkg/natsutil"
	"github.com/cafescout/cafescout/pkg/resilience"
)

// stack is everything a run needs, built from configuration.
type stack struct {
	search     *search.Client
	content    *content.Fetcher
	classifier *classify.Classifier
	archive    *archive.Store
	nc         *nats.Conn
	closers    []func(context.Context) error
	// notify reaches the active run's event stream once a runner exists.
	notify func(events.Severity, string) bool
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second, Transport: mid.Transport(nil)}
}

func newClassifier(cfg *config.Config, log *zap.Logger, onBreaker func(from, to resilience.State)) *classify.Classifier {
	llm := classify.NewCompleter(cfg.AI.Provider, classify.Settings{
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		BaseURL:    cfg.AI.BaseURL,
		HTTPClient: httpClient(),
	})
	return classify.New(llm, classify.Config{
		Timeout:    cfg.AI.BatchTimeout,
		ChunkDelay:      cfg.AI.ChunkDelay,
		OnBreakerChange: onBreaker,
		Logger:          log,
	})
}

// buildStack wires clients from cfg. Neo4j and NATS are optional; a failure
// to reach either is logged and the run continues without it.
func buildStack(ctx context.Context, cfg *config.Config, log *zap.Logger) *stack {
	headers := cfg.Auth.HTTPHeaders()
	s := &stack{
		search: search.NewClient(search.Config{
			Headers:    headers,
			HTTPClient: httpClient(),
			Logger:     log,
		}),
		content: content.NewFetcher(content.Config{
			Headers:           headers,
			HTTPClient:        httpClient(),
			Logger:            log,
			RetryBackoff:      cfg.Content.RetryBackoff,
			RequestsPerSecond: cfg.Content.RequestsPerSecond,
			MaxBodyRunes:      cfg.Filter.MaxBodyRunes,
		}),
	}
	s.classifier = newClassifier(cfg, log, s.breakerChanged)

	if cfg.Neo4j.URL != "" {
		store, closeFn, err := archive.Open(ctx, cfg.Neo4j.URL, cfg.Neo4j.User, cfg.Neo4j.Pass, cfg.Neo4j.Database)
		if err != nil {
			log.Warn("archive disabled", zap.Error(err))
		} else {
			s.archive = store
			s.closers = append(s.closers, closeFn)
		}
	}
	if cfg.NATS.URL != "" {
		nc, err := natsutil.Connect(cfg.NATS.URL, "cafescout")
		if err != nil {
			log.Warn("event forwarding disabled", zap.Error(err))
		} else {
			s.nc = nc
			s.closers = append(s.closers, func(context.Context) error { nc.Close(); return nil })
		}
	}
	return s
}

// breakerChanged surfaces provider breaker transitions on the run's stream.
func (s *stack) breakerChanged(from, to resilience.State) {
	if s.notify == nil {
		return
	}
	switch to {
	case resilience.StateOpen:
		s.notify(events.SeverityWarning, "AI provider is rejecting requests; remaining posts are marked irrelevant")
	case resilience.StateClosed:
		s.notify(events.SeverityInfo, fmt.Sprintf("AI provider recovered (%s -> %s)", from, to))
	}
}

func (s *stack) close(ctx context.Context, log *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			log.Warn("close", zap.Error(err))
		}
	}
}

// deps returns the worker dependencies. A nil archive must stay a nil
// interface, not a typed nil.
func (s *stack) deps(cfg *config.Config) pipeline.Deps {
	d := pipeline.Deps{
		Search:  s.search,
		Content: s.content,
		Judge:   s.classifier,
		Headers: cfg.Auth.HTTPHeaders(),
	}
	if s.archive != nil {
		d.Archive = s.archive
	}
	return d
}

// requestFromConfig maps configuration onto a run request.
func requestFromConfig(cfg *config.Config) pipeline.Request {
	return pipeline.Request{
		Query: domain.SearchQuery{
			Keyword:   cfg.Search.Keyword,
			Scope:     domain.Scope(cfg.Search.Scope),
			Sort:      domain.Sort(cfg.Search.Sort),
			Recency:   domain.RecencyWindow(cfg.Search.Recency),
			MaxItems:  cfg.Search.MaxItems,
			PageDelay: cfg.Search.PageDelay.Seconds(),
		},
		Filter: domain.FilterSpec{
			Keywords:  cfg.Filter.Keywords,
			AICommand: cfg.Filter.AICommand,
			BatchSize: cfg.Filter.BatchSize,
		},
	}
}
