// Package content retrieves full post bodies from the cafe article API and
// reduces their markup to plain text.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cafescout/cafescout/engine/domain"
	"github.com/cafescout/cafescout/pkg/fn"
)

const (
	DefaultCafeBaseURL    = "https://cafe.naver.com"
	DefaultArticleBaseURL = "https://apis.naver.com/cafe-web/cafe-articleapi/v2.1"
)

var tracer = otel.Tracer("github.com/cafescout/cafescout/engine/content")

var numericID = regexp.MustCompile(`^\d+$`)

// Config controls fetcher behavior.
type Config struct {
	CafeBaseURL    string
	ArticleBaseURL string
	Headers        map[string]string
	HTTPClient     *http.Client
	Logger         *zap.Logger
	// RetryBackoff is the wait before the single retry on a dropped connection.
	RetryBackoff time.Duration
	// RequestsPerSecond paces outbound requests. Zero disables pacing.
	RequestsPerSecond float64
	// MaxBodyRunes truncates extracted text. Zero keeps everything.
	MaxBodyRunes int
}

// Fetcher resolves cafe ids and downloads article bodies.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	log     *zap.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	cafeIDs map[string]string
}

// NewFetcher creates a Fetcher with the given config.
func NewFetcher(cfg Config) *Fetcher {
	if cfg.CafeBaseURL == "" {
		cfg.CafeBaseURL = DefaultCafeBaseURL
	}
	if cfg.ArticleBaseURL == "" {
		cfg.ArticleBaseURL = DefaultArticleBaseURL
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		log:     log.Named("content"),
		limiter: rate.NewLimiter(limit, 1),
		cafeIDs: make(map[string]string),
	}
}

// IsTransient reports whether err is a dropped or refused connection.
func IsTransient(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ECONNREFUSED)
}

// Enrich fills rec.FullBody with the article text, falling back to the search
// snippet when the article cannot be fetched or has no text. It never fails;
// the return value reports whether the fallback was used.
func (f *Fetcher) Enrich(ctx context.Context, rec *domain.PostRecord) (fellBack bool) {
	ctx, span := tracer.Start(ctx, "content.Enrich")
	defer span.End()
	span.SetAttributes(attribute.String("cafe.alias", rec.CafeID), attribute.String("cafe.article", rec.ArticleID))

	fallback := func(reason string, err error) bool {
		f.log.Debug("using snippet", zap.String("url", rec.URL), zap.String("reason", reason), zap.Error(err))
		body := rec.BodySnippet
		rec.FullBody = &body
		span.SetAttributes(attribute.Bool("content.fallback", true))
		return true
	}

	if rec.CafeID == "" || rec.ArticleID == "" {
		return fallback("no article id", nil)
	}

	art := domain.SignedParam(rec.URL)
	opts := fn.Once(f.cfg.RetryBackoff, IsTransient)
	opts.OnRetry = func(attempt int, err error, wait time.Duration) {
		f.log.Info("retrying article fetch",
			zap.String("url", rec.URL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	res := fn.Retry(ctx, opts, func(ctx context.Context) fn.Result[string] {
		return fn.FromPair(f.fetch(ctx, rec.CafeID, rec.ArticleID, art))
	})
	html, err := res.Unwrap()
	if err != nil {
		f.log.Warn("article fetch failed", zap.String("url", rec.URL), zap.Error(err))
		return fallback("fetch failed", err)
	}

	text := Truncate(ExtractText(html), f.cfg.MaxBodyRunes)
	if text == "" {
		return fallback("empty body", nil)
	}
	rec.FullBody = &text
	return false
}

func (f *Fetcher) fetch(ctx context.Context, alias, articleID, art string) (string, error) {
	cafeID, err := f.ResolveCafeID(ctx, alias)
	if err != nil {
		return "", err
	}
	return f.FetchBody(ctx, cafeID, articleID, art)
}

// ResolveCafeID maps a public cafe alias to its internal numeric id.
// Numeric aliases are returned as-is; resolved ids are cached.
func (f *Fetcher) ResolveCafeID(ctx context.Context, alias string) (string, error) {
	if numericID.MatchString(alias) {
		return alias, nil
	}
	f.mu.Lock()
	id, ok := f.cafeIDs[alias]
	f.mu.Unlock()
	if ok {
		return id, nil
	}

	body, err := f.httpGet(ctx, f.cfg.CafeBaseURL+"/"+url.PathEscape(alias))
	if err != nil {
		return "", fmt.Errorf("cafe %s: %w", alias, err)
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("cafe %s: parse: %w", alias, err)
	}
	id, _ = doc.Find(`input[name="clubid"]`).First().Attr("value")
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("cafe %s: clubid not found", alias)
	}

	f.mu.Lock()
	f.cafeIDs[alias] = id
	f.mu.Unlock()
	return id, nil
}

type articleResponse struct {
	Result struct {
		Article struct {
			ContentHTML string `json:"contentHtml"`
		} `json:"article"`
	} `json:"result"`
}

// FetchBody downloads the article's HTML fragment.
func (f *Fetcher) FetchBody(ctx context.Context, cafeID, articleID, art string) (string, error) {
	q := url.Values{}
	q.Set("useCafeId", "true")
	q.Set("requestFrom", "A")
	if art != "" {
		q.Set("art", art)
	}
	u := fmt.Sprintf("%s/cafes/%s/articles/%s?%s", f.cfg.ArticleBaseURL, url.PathEscape(cafeID), url.PathEscape(articleID), q.Encode())

	body, err := f.httpGet(ctx, u)
	if err != nil {
		return "", fmt.Errorf("article %s/%s: %w", cafeID, articleID, err)
	}
	defer body.Close()

	var resp articleResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("article %s/%s: decode: %w", cafeID, articleID, err)
	}
	return resp.Result.Article.ContentHTML, nil
}

func (f *Fetcher) httpGet(ctx context.Context, u string) (io.ReadCloser, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
