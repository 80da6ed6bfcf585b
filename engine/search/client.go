package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/domain"
)

var tracer = otel.Tracer("github.com/cafescout/cafescout/engine/search")

// delayTick bounds how long a stop request can go unnoticed during the page delay.
const delayTick = 100 * time.Millisecond

// Client fetches and parses cafe search pages.
type Client struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// NewClient creates a Client with the given config.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, client: client, log: log.Named("search")}
}

// Search pages through results until MaxItems is reached, a page comes back
// empty, or opts.Running reports false. A failed page aborts the search and
// returns the items gathered so far with StatusError and the cause.
func (c *Client) Search(ctx context.Context, q domain.SearchQuery, opts Options) (Result, error) {
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("search.scope", string(q.Scope)),
		attribute.Int("search.max_items", q.MaxItems),
	)

	running := opts.Running
	if running == nil {
		running = func() bool { return true }
	}
	progress := opts.OnProgress
	if progress == nil {
		progress = func(int, int, bool) {}
	}

	var items []domain.PostRecord
	page := 1
	res := Result{Status: StatusSuccess}
	var searchErr error

	for {
		if !running() || ctx.Err() != nil {
			res.Status = StatusStopped
			break
		}

		progress(page, len(items), true)
		pageItems, err := c.fetchPage(ctx, q, page)
		if err != nil {
			c.log.Warn("search page failed", zap.Int("page", page), zap.Error(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			res.Status = StatusError
			searchErr = fmt.Errorf("search page %d: %w", page, err)
			break
		}
		res.Pages++
		c.log.Debug("search page parsed", zap.Int("page", page), zap.Int("items", len(pageItems)))

		if len(pageItems) == 0 {
			break
		}
		items = append(items, pageItems...)
		if len(items) >= q.MaxItems {
			items = items[:q.MaxItems]
			break
		}

		page++
		if !c.pause(ctx, time.Duration(q.PageDelay*float64(time.Second)), running) {
			res.Status = StatusStopped
			break
		}
	}

	progress(page, len(items), false)
	res.Items = items
	span.SetAttributes(attribute.Int("search.items", len(items)), attribute.Int("search.pages", res.Pages))
	return res, searchErr
}

// pause sleeps d in short ticks and reports whether the run is still going.
func (c *Client) pause(ctx context.Context, d time.Duration, running func() bool) bool {
	deadline := time.Now().Add(d)
	for {
		if !running() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > delayTick {
			remaining = delayTick
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(remaining):
		}
	}
}

func (c *Client) fetchPage(ctx context.Context, q domain.SearchQuery, page int) ([]domain.PostRecord, error) {
	u := c.cfg.BaseURL + "?" + Params(q, page).Encode()
	body, err := c.httpGet(ctx, u)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return parseSearchResults(body)
}

// Params builds the provider query string for one page.
func Params(q domain.SearchQuery, page int) url.Values {
	start := (page-1)*PageSize + 1
	dateOption := 0
	for i, w := range domain.RecencyWindows {
		if w == q.Recency {
			dateOption = i
		}
	}
	so := sortCode[q.Sort]
	if so == "" {
		so = "r"
	}
	st := sortParam[q.Sort]
	if st == "" {
		st = "rel"
	}
	period := string(q.Recency)
	if period == "" {
		period = string(domain.RecencyAll)
	}
	where := cafeWhere[q.Scope]
	if where == "" {
		where = cafeWhere[domain.ScopeGeneral]
	}

	v := url.Values{}
	v.Set("cafe_where", where)
	v.Set("date_option", strconv.Itoa(dateOption))
	v.Set("nso_open", "1")
	v.Set("prdtype", "0")
	v.Set("query", q.Keyword)
	v.Set("sm", "mtb_opt")
	v.Set("ssc", "tab.cafe.all")
	v.Set("st", st)
	v.Set("stnm", "rel")
	v.Set("opt_tab", "0")
	v.Set("nso", fmt.Sprintf("so:%s,p:%s", so, period))
	v.Set("start", strconv.Itoa(start))
	return v
}

func (c *Client) httpGet(ctx context.Context, u string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
