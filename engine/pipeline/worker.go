package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/archive"
	"github.com/cafescout/cafescout/engine/classify"
	"github.com/cafescout/cafescout/engine/dedup"
	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/engine/events"
	"github.com/cafescout/cafescout/engine/filter"
	"github.com/cafescout/cafescout/engine/search"
	"github.com/cafescout/cafescout/pkg/fn"
)

var tracer = otel.Tracer("github.com/cafescout/cafescout/engine/pipeline")

// ErrStopped is the Outcome error of a run that observed its stop flag.
var ErrStopped = errors.New("run stopped")

// fetchMilestone is how many fetched posts pass between progress reports.
const fetchMilestone = 10

// Worker executes runs sequentially. A Worker is not safe for concurrent
// runs; Runner serializes them.
type Worker struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

// NewWorker creates a Worker.
func NewWorker(deps Deps) *Worker {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Events == nil {
		deps.Events = discard{}
	}
	return &Worker{deps: deps, log: log.Named("pipeline"), now: time.Now}
}

type discard struct{}

func (discard) Publish(events.Event) {}

// Run executes req with a fresh RunState.
func (w *Worker) Run(ctx context.Context, req Request) Outcome {
	return w.run(ctx, NewRunState(req.Existing), req)
}

// run carries one request through the stages. It never panics and always
// ends with a done progress snapshot and a completion event.
func (w *Worker) run(ctx context.Context, st *RunState, req Request) (out Outcome) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	em := events.NewEmitter(w.deps.Events, req.RunID)
	log := w.log.With(zap.String("run_id", req.RunID))
	start := w.now()

	ctx, span := tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	w.deps.Metrics.runStarted()
	defer func() {
		if r := recover(); r != nil {
			log.Error("run panicked", zap.Any("panic", r), zap.Stack("stack"))
			em.Log(events.SeverityError, fmt.Sprintf("unexpected error: %v", r))
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		st.running.Store(false)

		out.RunID = req.RunID
		out.Emitted = st.Emitted()
		out.Duration = w.now().Sub(start)
		if out.Status == "" {
			out.Status = StatusCompleted
		}
		if out.Err != nil && !errors.Is(out.Err, ErrStopped) {
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.SetAttributes(attribute.String("pipeline.status", string(out.Status)), attribute.Int("pipeline.emitted", out.Emitted))

		if out.Status == StatusCompleted {
			em.Log(events.SeveritySuccess, fmt.Sprintf("done: %d posts emitted", out.Emitted))
		}
		em.Progress(domain.NewProgress(domain.PhaseDone, 0, 0))
		c := events.Completed{Normal: out.Normal(), Outcome: string(out.Status), Emitted: out.Emitted}
		if out.Err != nil {
			c.Reason = out.Err.Error()
		}
		em.Completed(c)
		w.deps.Metrics.runFinished(out.Status, out.Duration)
		log.Info("run finished", zap.String("status", string(out.Status)), zap.Int("emitted", out.Emitted),
			zap.Duration("duration", out.Duration), zap.Error(out.Err))
	}()

	running := func() bool { return st.Running() && ctx.Err() == nil }

	if err := w.preconditions(ctx, em, req); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	q := req.Query
	f := req.Filter
	f.Keywords = domain.NormalizeKeywords(f.Keywords)
	f.AICommand = strings.TrimSpace(f.AICommand)

	// Search.
	em.Log(events.SeverityInfo, fmt.Sprintf("searching for %q (up to %d posts)", q.Keyword, q.MaxItems))
	res, err := w.search(ctx, em, q, running)
	out = Outcome{Collected: len(res.Items), Pages: res.Pages}
	w.deps.Metrics.pagesFetched(res.Pages)
	if err != nil {
		em.Log(events.SeverityError, fmt.Sprintf("search failed: %v", err))
		out.Status, out.Err = StatusFailed, err
		return out
	}
	if res.Status == search.StatusStopped || !running() {
		return w.stopped(em, out, "search")
	}
	em.Log(events.SeverityInfo, fmt.Sprintf("collected %d posts from %d pages", len(res.Items), res.Pages))

	// Keyword filter.
	em.Progress(domain.NewProgress(domain.PhaseKeywordFiltering, 0, len(res.Items)))
	matched, rest := filter.Partition(res.Items, f.Keywords)
	var candidates []domain.PostRecord
	if len(f.Keywords) == 0 {
		candidates = rest
	} else {
		em.Log(events.SeverityInfo, fmt.Sprintf("%d of %d posts match keywords %s", len(matched), len(res.Items), strings.Join(f.Keywords, ", ")))
		for _, rec := range matched {
			if !running() {
				return w.stopped(em, out, "keyword filter")
			}
			rec.Classification = &domain.Classification{
				IsRelevant:      true,
				MatchedKeywords: filter.MatchedKeywords(rec, f.Keywords),
				Rationale:       "keyword match",
			}
			w.guard(em, rec, func() { w.emit(ctx, em, st, req.RunID, rec, stageKeyword) })
		}
		if f.AICommand != "" {
			candidates = rest
		} else {
			w.deps.Metrics.postDropped(dropKeyword, len(rest))
		}
	}
	em.Progress(domain.NewProgress(domain.PhaseKeywordFiltering, len(res.Items), len(res.Items)))

	if len(candidates) == 0 {
		return out
	}
	if f.AICommand == "" {
		for _, rec := range candidates {
			if !running() {
				return w.stopped(em, out, "emit")
			}
			w.guard(em, rec, func() { w.emit(ctx, em, st, req.RunID, rec, stagePassthrough) })
		}
		return out
	}

	// Content fetch for AI candidates only.
	fetched, ok := w.fetch(ctx, em, candidates, running)
	if !ok {
		return w.stopped(em, out, "content fetch")
	}

	// AI classification.
	if f.BatchSize == 1 {
		ok = w.classifyEach(ctx, em, st, req.RunID, fetched, f.AICommand, running)
	} else {
		ok = w.classifyBatches(ctx, em, st, req.RunID, fetched, f, running)
	}
	if !ok {
		return w.stopped(em, out, "AI filter")
	}
	return out
}

// preconditions checks, in order, auth headers, the keyword, the AI
// credential, and the query and filter shapes. Nothing touches the search
// or content providers before they pass.
func (w *Worker) preconditions(ctx context.Context, em *events.Emitter, req Request) error {
	fail := func(msg string, err error) error {
		em.Log(events.SeverityError, msg)
		return err
	}
	if err := domain.ValidateHeaders(w.deps.Headers); err != nil {
		return fail("no login session: sign in before searching", err)
	}
	if strings.TrimSpace(req.Query.Keyword) == "" {
		return fail("enter a search keyword", domain.ErrMissingKeyword)
	}

	em.Log(events.SeverityInfo, "checking AI credential")
	check := w.deps.Judge.ValidateCredentials(ctx)
	if !check.OK {
		switch check.Kind {
		case classify.KindMissingCredential:
			return fail("no AI API key configured", domain.ErrMissingAIKey)
		case classify.KindAuthRejected:
			return fail("AI API key was rejected: check the key", domain.ErrAIAuthRejected)
		case classify.KindQuotaExceeded:
			return fail("AI quota exceeded: check billing or try later", domain.ErrAIQuotaExceeded)
		}
		err := check.Err
		if err == nil {
			err = fmt.Errorf("AI credential check: %s", check.Reason)
		}
		return fail("AI credential check failed: "+check.Reason, err)
	}
	em.Log(events.SeveritySuccess, "AI credential accepted")

	if err := domain.ValidateQuery(req.Query); err != nil {
		return fail(fmt.Sprintf("invalid search settings: %v", err), err)
	}
	if err := domain.ValidateFilter(req.Filter); err != nil {
		return fail(fmt.Sprintf("invalid filter settings: %v", err), err)
	}
	return nil
}

func (w *Worker) search(ctx context.Context, em *events.Emitter, q domain.SearchQuery, running func() bool) (search.Result, error) {
	ctx, span := tracer.Start(ctx, "pipeline.search")
	defer span.End()

	res, err := w.deps.Search.Search(ctx, q, search.Options{
		Running: running,
		OnProgress: func(page, accumulated int, inProgress bool) {
			em.Progress(domain.NewProgress(domain.PhaseSearching, accumulated, q.MaxItems))
			if inProgress {
				em.Log(events.SeverityDebug, fmt.Sprintf("fetching page %d (%d collected)", page, accumulated))
			}
		},
	})
	span.SetAttributes(attribute.Int("search.pages", res.Pages), attribute.Int("search.items", len(res.Items)))
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// fetch enriches candidates in order. A post whose enrichment panics is
// skipped. ok is false when the run stopped.
func (w *Worker) fetch(ctx context.Context, em *events.Emitter, candidates []domain.PostRecord, running func() bool) (fetched []domain.PostRecord, ok bool) {
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	em.Log(events.SeverityInfo, fmt.Sprintf("fetching content of %d posts for AI analysis", len(candidates)))
	em.Progress(domain.NewProgress(domain.PhaseFetching, 0, len(candidates)))
	fetched = make([]domain.PostRecord, 0, len(candidates))
	fallbacks := 0
	for i := range candidates {
		if !running() {
			return fetched, false
		}
		rec := candidates[i]
		if w.guard(em, rec, func() {
			if w.deps.Content.Enrich(ctx, &rec) {
				fallbacks++
				w.deps.Metrics.contentFallback()
			}
		}) {
			fetched = append(fetched, rec)
		}
		if n := i + 1; n%fetchMilestone == 0 || n == len(candidates) {
			em.Progress(domain.NewProgress(domain.PhaseFetching, n, len(candidates)))
		}
	}
	span.SetAttributes(attribute.Int("content.fetched", len(fetched)), attribute.Int("content.fallbacks", fallbacks))
	if fallbacks > 0 {
		em.Log(events.SeverityWarning, fmt.Sprintf("%d posts analysed from their search snippet", fallbacks))
	}
	return fetched, true
}

// classifyEach asks the model about one post at a time.
func (w *Worker) classifyEach(ctx context.Context, em *events.Emitter, st *RunState, runID string, posts []domain.PostRecord, command string, running func() bool) bool {
	ctx, span := tracer.Start(ctx, "pipeline.classifyEach")
	defer span.End()

	delay := w.deps.Judge.ChunkDelay()
	em.Progress(domain.NewProgress(domain.PhaseAIFiltering, 0, len(posts)))
	for i, rec := range posts {
		if i > 0 && delay > 0 {
			pause(ctx, delay)
		}
		if !running() {
			w.deps.Metrics.postDropped(dropStopped, len(posts)-i)
			return false
		}
		w.guard(em, rec, func() {
			cl := w.deps.Judge.ClassifySingle(ctx, rec.Title, rec.Body(), command)
			rec.Classification = &cl
			if cl.IsRelevant {
				em.Log(events.SeverityInfo, fmt.Sprintf("relevant: %s [%s] %s", rec.Title, strings.Join(cl.MatchedKeywords, ", "), cl.Rationale))
				w.emit(ctx, em, st, runID, rec, stageAI)
				return
			}
			em.Log(events.SeverityDebug, fmt.Sprintf("not relevant: %s (%s)", rec.Title, cl.Rationale))
			w.deps.Metrics.postDropped(dropAIRejected, 1)
		})
		em.Progress(domain.NewProgress(domain.PhaseAIFiltering, i+1, len(posts)))
	}
	return true
}

// pause sleeps for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// classifyBatches classifies posts in chunks, then walks the aligned verdicts.
func (w *Worker) classifyBatches(ctx context.Context, em *events.Emitter, st *RunState, runID string, posts []domain.PostRecord, f domain.FilterSpec, running func() bool) bool {
	ctx, span := tracer.Start(ctx, "pipeline.classifyBatches")
	defer span.End()

	input := fn.Map(posts, func(r domain.PostRecord) classify.Post {
		return classify.Post{Title: r.Title, Body: r.Body()}
	})
	em.Log(events.SeverityInfo, fmt.Sprintf("AI analysis of %d posts in batches of %d", len(posts), f.BatchSize))
	verdicts := w.deps.Judge.ClassifyBatch(ctx, input, f.AICommand, f.BatchSize, classify.BatchOptions{
		Running: running,
		OnProgress: func(chunk, chunks int, processing bool) {
			done := chunk
			if processing {
				done = chunk - 1
			}
			em.Progress(domain.NewProgress(domain.PhaseAIFiltering, done, chunks))
		},
		OnChunk: func(chunk int, v []bool, err error) {
			w.deps.Metrics.chunkDone(err)
			if err != nil {
				em.Log(events.SeverityWarning, fmt.Sprintf("AI batch %d failed, its posts are treated as not relevant: %v", chunk, err))
			}
		},
	})

	for i, rec := range posts {
		if !running() {
			w.deps.Metrics.postDropped(dropStopped, len(posts)-i)
			return false
		}
		ok := i < len(verdicts) && verdicts[i]
		if !ok {
			em.Log(events.SeverityDebug, "not relevant: "+rec.Title)
			w.deps.Metrics.postDropped(dropAIRejected, 1)
			continue
		}
		rec.Classification = &domain.Classification{IsRelevant: true, MatchedKeywords: []string{}}
		w.guard(em, rec, func() { w.emit(ctx, em, st, runID, rec, stageAI) })
	}
	return true
}

// emit announces rec unless it was already seen in this run or shown before.
func (w *Worker) emit(ctx context.Context, em *events.Emitter, st *RunState, runID string, rec domain.PostRecord, stage string) bool {
	rec.URL = domain.NormalizeURL(rec.URL)
	if dedup.IsDuplicate(rec, st.seen, st.existing) {
		w.log.Debug("duplicate suppressed", zap.String("title", rec.Title), zap.String("cafe", rec.CafeID))
		w.deps.Metrics.postDropped(dropDuplicate, 1)
		return false
	}
	st.seen.Register(rec)
	no := int(st.emitted.Add(1))
	em.Post(events.PostFound{No: no, SourceID: rec.CafeID, Title: rec.Title, URL: rec.URL, Record: rec})
	w.deps.Metrics.postEmitted(stage)

	if w.deps.Archive != nil {
		if err := w.deps.Archive.Save(ctx, archive.Entry{RunID: runID, ArchivedAt: w.now(), Post: rec}); err != nil {
			w.log.Warn("archive save failed", zap.String("url", rec.URL), zap.Error(err))
		}
	}
	return true
}

// guard runs f for one post and reports whether it finished. A panic is
// logged and the post is skipped.
func (w *Worker) guard(em *events.Emitter, rec domain.PostRecord, f func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("post processing panicked", zap.String("url", rec.URL), zap.Any("panic", r), zap.Stack("stack"))
			em.Log(events.SeverityWarning, fmt.Sprintf("skipped %q: %v", rec.Title, r))
			w.deps.Metrics.postDropped(dropError, 1)
			ok = false
		}
	}()
	f()
	return true
}

func (w *Worker) stopped(em *events.Emitter, out Outcome, stage string) Outcome {
	em.Log(events.SeverityWarning, "stopped during "+stage)
	out.Status, out.Err = StatusStopped, ErrStopped
	return out
}
