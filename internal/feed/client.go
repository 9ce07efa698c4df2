package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"volowatch/internal/activity"
	logx "volowatch/pkg/logx"
)

const (
	DefaultURL       = "https://volosports.com/hapi/v1/graphql"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodyBytes = 8 << 20
)

// Config configures the feed client. Zero fields take defaults.
type Config struct {
	URL       string
	Filter    Filter
	PageSize  int           // default 100
	MaxPages  int           // default 20
	Timeout   time.Duration // per request, default 30s
	UserAgent string
}

// Client fetches raw activity rows. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
	now  func() time.Time
}

func New(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.URL) == "" {
		cfg.URL = DefaultURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if strings.TrimSpace(cfg.Filter.Organization) == "" {
		cfg.Filter.Organization = "San Diego"
	}
	if len(cfg.Filter.ProgramTypes) == 0 {
		cfg.Filter.ProgramTypes = []string{"PICKUP", "PRACTICE", "CLINIC", "DROPIN"}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
		now:  time.Now,
	}
}

type gqlRequest struct {
	OperationName string `json:"operationName"`
	Variables     m      `json:"variables"`
	Query         string `json:"query"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data *struct {
		DiscoverDaily []activity.Raw `json:"discover_daily"`
		Aggregate     struct {
			Aggregate struct {
				Count int `json:"count"`
			} `json:"aggregate"`
		} `json:"discover_daily_aggregate"`
	} `json:"data"`
	Errors []gqlError `json:"errors"`
}

// Fetch returns every matching row in feed order, following pages until
// the aggregate count is reached. Any failure discards the partial result.
func (c *Client) Fetch(ctx context.Context) ([]activity.Raw, error) {
	start := time.Now()
	now := c.now()

	var (
		out   []activity.Raw
		total int
	)
	for page := 0; page < c.cfg.MaxPages; page++ {
		rows, count, err := c.fetchPage(ctx, now, len(out))
		if err != nil {
			return nil, err
		}
		total = count
		out = append(out, rows...)
		if len(rows) < c.cfg.PageSize || len(out) >= total {
			break
		}
		if page == c.cfg.MaxPages-1 {
			c.log.Warn("feed page cap reached; result truncated",
				logx.Int("max_pages", c.cfg.MaxPages), logx.Int("fetched", len(out)), logx.Int("total", total))
		}
	}

	c.log.Debug("feed fetched",
		logx.Int("activities", len(out)),
		logx.Int("total", total),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, now time.Time, offset int) ([]activity.Raw, int, error) {
	body, err := json.Marshal(gqlRequest{
		OperationName: "DiscoverDaily",
		Variables:     buildVariables(c.cfg.Filter, now, c.cfg.PageSize, offset),
		Query:         discoverDailyQuery,
	})
	if err != nil {
		return nil, 0, &FetchError{Stage: "request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, 0, &FetchError{Stage: "request", Err: err}
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("origin", "https://www.volosports.com")
	req.Header.Set("referer", "https://www.volosports.com/")
	req.Header.Set("user-agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &FetchError{Stage: "request", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, &FetchError{Stage: "request", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, 0, &FetchError{Stage: "status", Status: resp.StatusCode, Err: errors.New(snippet(raw))}
	}

	var gr gqlResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return nil, 0, &FetchError{Stage: "decode", Err: err}
	}
	if len(gr.Errors) > 0 {
		msgs := make([]string, 0, len(gr.Errors))
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, 0, &FetchError{Stage: "graphql", Err: errors.New(strings.Join(msgs, "; "))}
	}
	if gr.Data == nil {
		return nil, 0, &FetchError{Stage: "decode", Err: fmt.Errorf("response has no data")}
	}
	return gr.Data.DiscoverDaily, gr.Data.Aggregate.Aggregate.Count, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:197] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
