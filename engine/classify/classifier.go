package classify

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/pkg/fn"
	"github.com/cafescout/cafescout/pkg/resilience"
)

var tracer = otel.Tracer("github.com/cafescout/cafescout/engine/classify")

// Config controls classifier pacing.
type Config struct {
	// Timeout bounds each model call.
	Timeout time.Duration
	// ChunkDelay is slept between batch chunks whatever the chunk's outcome.
	ChunkDelay time.Duration
	// Breaker guards the provider. Nil builds one that trips only on
	// rejected credentials or exhausted quota.
	Breaker *resilience.Breaker
	// OnBreakerChange is called after each transition of the default breaker.
	OnBreakerChange func(from, to resilience.State)
	Logger          *zap.Logger
}

// Classifier wraps a Completer with prompts, parsing and fail-closed handling.
type Classifier struct {
	llm     Completer
	cfg     Config
	breaker *resilience.Breaker
	log     *zap.Logger
}

// New creates a Classifier.
func New(llm Completer, cfg Config) *Classifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("classify")
	b := cfg.Breaker
	if b == nil {
		b = resilience.NewBreaker(resilience.BreakerOpts{
			IsFailure: tripsBreaker,
			OnStateChange: func(from, to resilience.State) {
				log.Warn("provider breaker changed state", zap.Stringer("from", from), zap.Stringer("to", to))
				if cfg.OnBreakerChange != nil {
					cfg.OnBreakerChange(from, to)
				}
			},
		})
	}
	return &Classifier{llm: llm, cfg: cfg, breaker: b, log: log}
}

// tripsBreaker reports whether err means later calls will fail too. Timeouts
// and transient provider errors only cost the chunk they hit.
func tripsBreaker(err error) bool {
	switch KindOf(err) {
	case KindAuthRejected, KindQuotaExceeded:
		return true
	}
	return false
}

// ChunkDelay is the pause between consecutive model calls.
func (c *Classifier) ChunkDelay() time.Duration { return c.cfg.ChunkDelay }

// CredentialCheck is the outcome of a credential check request.
type CredentialCheck struct {
	OK     bool
	Kind   ErrorKind
	Reason string
	// Err is a domain sentinel for the kinds that have one.
	Err error
}

// ValidateCredentials sends a minimal completion and classifies the failure.
func (c *Classifier) ValidateCredentials(ctx context.Context) (check CredentialCheck) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("credential check panicked", zap.Any("panic", r), zap.Stack("stack"))
			check = CredentialCheck{Kind: KindOther, Reason: fmt.Sprintf("unexpected failure: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	_, err := c.llm.Complete(ctx, credentialPrompt())
	if err == nil {
		return CredentialCheck{OK: true, Reason: "credential accepted"}
	}
	kind := KindOf(err)
	check = CredentialCheck{Kind: kind}
	switch kind {
	case KindMissingCredential:
		check.Reason, check.Err = "credential not provided", domain.ErrMissingAIKey
	case KindAuthRejected:
		check.Reason, check.Err = "credential rejected by provider", domain.ErrAIAuthRejected
	case KindQuotaExceeded:
		check.Reason, check.Err = "provider quota exceeded", domain.ErrAIQuotaExceeded
	case KindTimeout:
		check.Reason = "provider did not answer in time"
	default:
		check.Reason = fmt.Sprintf("validation failed: %v", err)
	}
	c.log.Warn("credential check failed", zap.String("kind", string(kind)), zap.Error(err))
	return check
}

func (c *Classifier) complete(ctx context.Context, p Prompt) fn.Result[string] {
	return resilience.CallResult(c.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return fn.FromPair(c.llm.Complete(ctx, p))
	})
}

// ClassifySingle judges one post. Provider failures and parse gaps yield a
// negative verdict whose rationale names the failure.
func (c *Classifier) ClassifySingle(ctx context.Context, title, body, command string) (cl domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("single classification panicked", zap.Any("panic", r), zap.Stack("stack"))
			cl = domain.Classification{MatchedKeywords: []string{}, Rationale: fmt.Sprintf("analysis failed: %v", r)}
		}
	}()
	ctx, span := tracer.Start(ctx, "classify.Single")
	defer span.End()

	text, err := c.complete(ctx, singlePrompt(title, body, command)).Unwrap()
	if err != nil {
		c.log.Warn("single classification failed", zap.String("title", title), zap.Error(err))
		span.RecordError(err)
		return domain.Classification{MatchedKeywords: []string{}, Rationale: fmt.Sprintf("analysis failed: %v", err)}
	}
	cl = ParseSingle(text)
	span.SetAttributes(attribute.Bool("classify.relevant", cl.IsRelevant))
	return cl
}

// BatchOptions carries per-call hooks for ClassifyBatch.
type BatchOptions struct {
	// OnProgress is called before (processing=true) and after each chunk.
	OnProgress func(chunk, chunks int, processing bool)
	// OnChunk reports each finished chunk; err is nil on success.
	OnChunk func(chunk int, verdicts []bool, err error)
	// Running is polled before each chunk. Nil means always running.
	Running func() bool
}

// ClassifyBatch returns one verdict per post, aligned with posts. Each chunk
// of batchSize posts is one model call; a failed or timed-out chunk is all
// false. Chunks never started because the run stopped are false too.
func (c *Classifier) ClassifyBatch(ctx context.Context, posts []Post, command string, batchSize int, opts BatchOptions) (out []bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("batch classification panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = make([]bool, len(posts))
		}
	}()
	ctx, span := tracer.Start(ctx, "classify.Batch")
	defer span.End()

	out = make([]bool, len(posts))
	if batchSize <= 0 {
		batchSize = 1
	}
	running := opts.Running
	if running == nil {
		running = func() bool { return true }
	}

	chunks := fn.Chunk(posts, batchSize)
	span.SetAttributes(attribute.Int("classify.posts", len(posts)), attribute.Int("classify.chunks", len(chunks)))

	for i, chunk := range chunks {
		if !running() || ctx.Err() != nil {
			c.log.Info("batch classification stopped", zap.Int("chunk", i+1), zap.Int("chunks", len(chunks)))
			break
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(chunks), true)
		}

		text, err := c.complete(ctx, batchPrompt(chunk, command)).Unwrap()
		verdicts := make([]bool, len(chunk))
		if err != nil {
			c.log.Warn("chunk classification failed", zap.Int("chunk", i+1), zap.String("kind", string(KindOf(err))), zap.Error(err))
		} else {
			verdicts = ParseBatch(text, len(chunk))
		}
		copy(out[i*batchSize:], verdicts)

		if opts.OnChunk != nil {
			opts.OnChunk(i+1, verdicts, err)
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(chunks), false)
		}

		if i < len(chunks)-1 && c.cfg.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(c.cfg.ChunkDelay):
			}
		}
	}
	return out
}
