package content

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cafescout/cafescout/engine/domain"
)

const articleHTML = `<div class="se-main-container">
<div class="se-module-text"><p class="se-text-paragraph"><span>어제 </span><span>사고가 났어요</span></p></div>
<div class="se-module-image"><p class="se-text-paragraph"><span>이미지 캡션</span></p></div>
<div class="se-module-text"><p class="se-text-paragraph"><span>블랙박스 있습니다</span></p></div>
</div>`

type provider struct {
	cafeHits    atomic.Int32
	articleHits atomic.Int32
	lastQuery   atomic.Value
}

func newProvider(t *testing.T, p *provider) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/cafe/carcafe", func(w http.ResponseWriter, r *http.Request) {
		p.cafeHits.Add(1)
		assert.Equal(t, "NID_AUT=1", r.Header.Get("Cookie"))
		fmt.Fprint(w, `<html><form><input type="hidden" name="clubid" value="31234"/></form></html>`)
	})
	mux.HandleFunc("/cafe/noid", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html></html>`)
	})
	mux.HandleFunc("/api/cafes/31234/articles/77", func(w http.ResponseWriter, r *http.Request) {
		p.articleHits.Add(1)
		p.lastQuery.Store(r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"result":{"article":{"contentHtml":%q}}}`, articleHTML)
	})
	return httptest.NewServer(mux)
}

func newTestFetcher(srvURL string, client *http.Client) *Fetcher {
	return NewFetcher(Config{
		CafeBaseURL:    srvURL + "/cafe",
		ArticleBaseURL: srvURL + "/api",
		Headers:        map[string]string{"Cookie": "NID_AUT=1"},
		HTTPClient:     client,
		RetryBackoff:   time.Millisecond,
	})
}

func TestEnrich(t *testing.T) {
	p := &provider{}
	srv := newProvider(t, p)
	defer srv.Close()

	f := newTestFetcher(srv.URL, nil)
	rec := domain.PostRecord{
		URL:         "https://cafe.naver.com/carcafe/77?art=signed",
		CafeID:      "carcafe",
		ArticleID:   "77",
		BodySnippet: "snippet",
	}
	assert.False(t, f.Enrich(context.Background(), &rec))
	require.NotNil(t, rec.FullBody)
	assert.Equal(t, "어제 사고가 났어요 블랙박스 있습니다", *rec.FullBody)
	assert.Contains(t, p.lastQuery.Load().(string), "art=signed")
	assert.Contains(t, p.lastQuery.Load().(string), "useCafeId=true")
	assert.Contains(t, p.lastQuery.Load().(string), "requestFrom=A")

	second := domain.PostRecord{CafeID: "carcafe", ArticleID: "77"}
	f.Enrich(context.Background(), &second)
	assert.Equal(t, int32(1), p.cafeHits.Load(), "cafe id should be cached")
	assert.Equal(t, int32(2), p.articleHits.Load())
}

func TestEnrichFallsBackWithoutIDs(t *testing.T) {
	f := NewFetcher(Config{})
	rec := domain.PostRecord{BodySnippet: "짧은 내용"}
	assert.True(t, f.Enrich(context.Background(), &rec))
	assert.Equal(t, "짧은 내용", *rec.FullBody)
}

func TestEnrichFallsBackWhenCafeUnresolvable(t *testing.T) {
	srv := newProvider(t, &provider{})
	defer srv.Close()

	rec := domain.PostRecord{CafeID: "noid", ArticleID: "1", BodySnippet: "s"}
	assert.True(t, newTestFetcher(srv.URL, nil).Enrich(context.Background(), &rec))
	assert.Equal(t, "s", *rec.FullBody)
}

type flakyTransport struct {
	failures int32
	calls    atomic.Int32
	next     http.RoundTripper
}

func (t *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.calls.Add(1) <= t.failures {
		return nil, fmt.Errorf("read tcp: %w", syscall.ECONNRESET)
	}
	return t.next.RoundTrip(r)
}

func TestEnrichRetriesOnceOnReset(t *testing.T) {
	srv := newProvider(t, &provider{})
	defer srv.Close()

	tr := &flakyTransport{failures: 1, next: http.DefaultTransport}
	rec := domain.PostRecord{CafeID: "31234", ArticleID: "77", BodySnippet: "s"}
	assert.False(t, newTestFetcher(srv.URL, &http.Client{Transport: tr}).Enrich(context.Background(), &rec))
	assert.Equal(t, int32(2), tr.calls.Load())
}

func TestEnrichLogsRetry(t *testing.T) {
	srv := newProvider(t, &provider{})
	defer srv.Close()

	core, logs := observer.New(zap.InfoLevel)
	f := NewFetcher(Config{
		CafeBaseURL:    srv.URL + "/cafe",
		ArticleBaseURL: srv.URL + "/api",
		HTTPClient:     &http.Client{Transport: &flakyTransport{failures: 1, next: http.DefaultTransport}},
		RetryBackoff:   time.Millisecond,
		Logger:         zap.New(core),
	})
	rec := domain.PostRecord{URL: "https://cafe.naver.com/carcafe/77", CafeID: "31234", ArticleID: "77", BodySnippet: "s"}
	assert.False(t, f.Enrich(context.Background(), &rec))

	entries := logs.FilterMessage("retrying article fetch").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, 1, fields["attempt"])
	assert.Equal(t, rec.URL, fields["url"])
	assert.Contains(t, fields["error"], "connection reset")
}

func TestEnrichGivesUpAfterSecondReset(t *testing.T) {
	srv := newProvider(t, &provider{})
	defer srv.Close()

	tr := &flakyTransport{failures: 5, next: http.DefaultTransport}
	rec := domain.PostRecord{CafeID: "31234", ArticleID: "77", BodySnippet: "s"}
	assert.True(t, newTestFetcher(srv.URL, &http.Client{Transport: tr}).Enrich(context.Background(), &rec))
	assert.Equal(t, int32(2), tr.calls.Load())
	assert.Equal(t, "s", *rec.FullBody)
}

func TestEnrichDoesNotRetryOtherErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rec := domain.PostRecord{CafeID: "31234", ArticleID: "77", BodySnippet: "s"}
	assert.True(t, newTestFetcher(srv.URL, nil).Enrich(context.Background(), &rec))
	assert.Equal(t, int32(1), hits.Load())
}

func TestEnrichTruncates(t *testing.T) {
	srv := newProvider(t, &provider{})
	defer srv.Close()

	f := NewFetcher(Config{CafeBaseURL: srv.URL + "/cafe", ArticleBaseURL: srv.URL + "/api", MaxBodyRunes: 5})
	rec := domain.PostRecord{CafeID: "31234", ArticleID: "77"}
	f.Enrich(context.Background(), &rec)
	assert.Equal(t, "어제 사고", *rec.FullBody)
}

func TestExtractText(t *testing.T) {
	assert.Equal(t, "어제 사고가 났어요 블랙박스 있습니다", ExtractText(articleHTML))
	assert.Equal(t, "", ExtractText("<p>plain</p>"))
	assert.Equal(t, "", ExtractText(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "가나", Truncate("가나다", 2))
	assert.Equal(t, "가나다", Truncate("가나다", 0))
	assert.Equal(t, "ab", Truncate("ab", 10))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("x: %w", syscall.ECONNREFUSED)))
	assert.True(t, IsTransient(syscall.ECONNABORTED))
	assert.False(t, IsTransient(fmt.Errorf("unexpected status 500")))
	assert.False(t, IsTransient(nil))
}

func TestResolveNumericAlias(t *testing.T) {
	id, err := NewFetcher(Config{}).ResolveCafeID(context.Background(), "10050146")
	require.NoError(t, err)
	assert.Equal(t, "10050146", id)
}
