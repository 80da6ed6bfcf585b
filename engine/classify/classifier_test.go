package classify

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/pkg/resilience"
)

func newTestClassifier(llm Completer) *Classifier {
	return New(llm, Config{Timeout: 50 * time.Millisecond})
}

func TestClassifyBatchChunkTimeoutFailsClosed(t *testing.T) {
	var calls atomic.Int32
	llm := CompleterFunc(func(ctx context.Context, p Prompt) (string, error) {
		if calls.Add(1) == 1 {
			require.Contains(t, p.User, "제목: a")
			require.Contains(t, p.User, "제목: b")
			return "true\nfalse", nil
		}
		<-ctx.Done()
		return "", ctx.Err()
	})

	posts := []Post{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	got := newTestClassifier(llm).ClassifyBatch(context.Background(), posts, "cmd", 2, BatchOptions{})
	assert.Equal(t, []bool{true, false, false}, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassifyBatchAlignment(t *testing.T) {
	responses := []string{"true\ntrue\ntrue\ntrue\ntrue", "", "false\ntrue"}
	var i atomic.Int32
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) {
		return responses[i.Add(1)-1], nil
	})
	posts := make([]Post, 7)
	got := newTestClassifier(llm).ClassifyBatch(context.Background(), posts, "cmd", 3, BatchOptions{})
	require.Len(t, got, 7)
	assert.Equal(t, []bool{true, true, true, false, false, false, false}, got)
}

func TestClassifyBatchProgressAndChunkHooks(t *testing.T) {
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) { return "", errors.New("boom") })
	type tick struct {
		chunk, total int
		processing   bool
	}
	var ticks []tick
	var chunkErrs int
	got := newTestClassifier(llm).ClassifyBatch(context.Background(), make([]Post, 3), "cmd", 2, BatchOptions{
		OnProgress: func(c, n int, p bool) { ticks = append(ticks, tick{c, n, p}) },
		OnChunk: func(_ int, v []bool, err error) {
			if err != nil {
				chunkErrs++
			}
		},
	})
	assert.Equal(t, []bool{false, false, false}, got)
	assert.Equal(t, []tick{{1, 2, true}, {1, 2, false}, {2, 2, true}, {2, 2, false}}, ticks)
	assert.Equal(t, 2, chunkErrs)
}

func TestClassifyBatchStopsBetweenChunks(t *testing.T) {
	var running atomic.Bool
	running.Store(true)
	var calls atomic.Int32
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) {
		calls.Add(1)
		running.Store(false)
		return "true", nil
	})
	got := newTestClassifier(llm).ClassifyBatch(context.Background(), make([]Post, 3), "cmd", 1, BatchOptions{Running: running.Load})
	assert.Equal(t, []bool{true, false, false}, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyBatchRecoversPanic(t *testing.T) {
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) { panic("provider bug") })
	core, logs := observer.New(zap.ErrorLevel)
	c := New(llm, Config{Logger: zap.New(core)})
	got := c.ClassifyBatch(context.Background(), make([]Post, 2), "cmd", 5, BatchOptions{})
	assert.Equal(t, []bool{false, false}, got)
	assert.Equal(t, 1, logs.FilterMessage("batch classification panicked").Len())
}

func TestClassifyBatchOpenBreakerFailsClosed(t *testing.T) {
	var calls atomic.Int32
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) {
		calls.Add(1)
		return "", errors.New("down")
	})
	b := resilience.NewBreaker(resilience.BreakerOpts{FailThreshold: 1, Timeout: time.Hour})
	c := New(llm, Config{Breaker: b})
	got := c.ClassifyBatch(context.Background(), make([]Post, 3), "cmd", 1, BatchOptions{})
	assert.Equal(t, []bool{false, false, false}, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClassifyBatchTransientFailuresKeepCalling(t *testing.T) {
	var calls atomic.Int32
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) {
		if calls.Add(1) <= 5 {
			return "", errors.New("upstream 502")
		}
		return "true", nil
	})
	got := newTestClassifier(llm).ClassifyBatch(context.Background(), make([]Post, 8), "cmd", 1, BatchOptions{})
	assert.Equal(t, []bool{false, false, false, false, false, true, true, true}, got)
	assert.Equal(t, int32(8), calls.Load())
}

func TestClassifyBatchTimeoutsKeepCalling(t *testing.T) {
	var calls atomic.Int32
	llm := CompleterFunc(func(ctx context.Context, _ Prompt) (string, error) {
		if calls.Add(1) <= 6 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "true", nil
	})
	c := New(llm, Config{Timeout: 5 * time.Millisecond})
	got := c.ClassifyBatch(context.Background(), make([]Post, 7), "cmd", 1, BatchOptions{})
	assert.Equal(t, []bool{false, false, false, false, false, false, true}, got)
	assert.Equal(t, int32(7), calls.Load())
}

func TestClassifyBatchAuthRejectionOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) {
		calls.Add(1)
		return "", &ProviderError{Kind: KindAuthRejected, Err: errors.New("401")}
	})
	core, logs := observer.New(zap.WarnLevel)
	var changes []string
	c := New(llm, Config{
		Logger: zap.New(core),
		OnBreakerChange: func(from, to resilience.State) {
			changes = append(changes, from.String()+"->"+to.String())
		},
	})
	got := c.ClassifyBatch(context.Background(), make([]Post, 8), "cmd", 1, BatchOptions{})
	assert.Equal(t, make([]bool, 8), got)
	assert.Equal(t, int32(resilience.DefaultBreakerOpts.FailThreshold), calls.Load())
	assert.Equal(t, []string{"closed->open"}, changes)

	entries := logs.FilterMessage("provider breaker changed state").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "open", entries[0].ContextMap()["to"])
}

func TestTripsBreaker(t *testing.T) {
	assert.True(t, tripsBreaker(&ProviderError{Kind: KindAuthRejected, Err: errors.New("x")}))
	assert.True(t, tripsBreaker(&ProviderError{Kind: KindQuotaExceeded, Err: errors.New("x")}))
	assert.False(t, tripsBreaker(&ProviderError{Kind: KindOther, Err: errors.New("x")}))
	assert.False(t, tripsBreaker(context.DeadlineExceeded))
	assert.False(t, tripsBreaker(context.Canceled))
	assert.False(t, tripsBreaker(errors.New("boom")))
}

func TestClassifyBatchChunkDelay(t *testing.T) {
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) { return "true", nil })
	c := New(llm, Config{ChunkDelay: 30 * time.Millisecond})
	start := time.Now()
	c.ClassifyBatch(context.Background(), make([]Post, 3), "cmd", 1, BatchOptions{})
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 30*time.Millisecond, c.ChunkDelay())
}

func TestClassifySingle(t *testing.T) {
	llm := CompleterFunc(func(_ context.Context, p Prompt) (string, error) {
		assert.Equal(t, 0.1, p.Temperature)
		assert.Contains(t, p.User, "명령: 피해자 글만")
		return "relevance: true\nkeywords: 사고\nrationale: 피해 사실 서술", nil
	})
	got := newTestClassifier(llm).ClassifySingle(context.Background(), "사고 당했어요", "본문", "피해자 글만")
	assert.Equal(t, domain.Classification{IsRelevant: true, MatchedKeywords: []string{"사고"}, Rationale: "피해 사실 서술"}, got)
}

func TestClassifySingleFailureIsNegative(t *testing.T) {
	llm := CompleterFunc(func(context.Context, Prompt) (string, error) { return "", errors.New("boom") })
	got := newTestClassifier(llm).ClassifySingle(context.Background(), "t", "b", "c")
	assert.False(t, got.IsRelevant)
	assert.True(t, strings.HasPrefix(got.Rationale, "analysis failed"))

	panicky := CompleterFunc(func(context.Context, Prompt) (string, error) { panic("x") })
	got = newTestClassifier(panicky).ClassifySingle(context.Background(), "t", "b", "c")
	assert.False(t, got.IsRelevant)
}

func TestValidateCredentials(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
		want error
	}{
		{"missing", &ProviderError{Kind: KindMissingCredential, Err: errors.New("no key")}, KindMissingCredential, domain.ErrMissingAIKey},
		{"rejected", &ProviderError{Kind: KindAuthRejected, Err: errors.New("401")}, KindAuthRejected, domain.ErrAIAuthRejected},
		{"quota", &ProviderError{Kind: KindQuotaExceeded, Err: errors.New("429")}, KindQuotaExceeded, domain.ErrAIQuotaExceeded},
		{"timeout", context.DeadlineExceeded, KindTimeout, nil},
		{"other", errors.New("dns"), KindOther, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := CompleterFunc(func(_ context.Context, p Prompt) (string, error) {
				assert.Equal(t, "test", p.User)
				assert.Equal(t, 5, p.MaxTokens)
				return "", tt.err
			})
			check := newTestClassifier(llm).ValidateCredentials(context.Background())
			assert.False(t, check.OK)
			assert.Equal(t, tt.kind, check.Kind)
			assert.Equal(t, tt.want, check.Err)
			assert.NotEmpty(t, check.Reason)
		})
	}

	ok := newTestClassifier(CompleterFunc(func(context.Context, Prompt) (string, error) { return "hi", nil }))
	assert.True(t, ok.ValidateCredentials(context.Background()).OK)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindTimeout, KindOf(&ProviderError{Kind: KindOther, Err: context.DeadlineExceeded}))
	assert.Equal(t, KindQuotaExceeded, KindOf(&ProviderError{Kind: KindQuotaExceeded, Err: errors.New("x")}))
	assert.Equal(t, KindOther, KindOf(errors.New("x")))
}
