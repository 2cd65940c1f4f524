package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/catalyst/api"
	"github.com/agentic-research/catalyst/internal/analyze"
	"github.com/ohler55/ojg/oj"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds every catalog request.
const DefaultTimeout = 30 * time.Second

// ClientConfig configures a catalog Client.
type ClientConfig struct {
	BaseURL      string        // e.g. http://localhost:8000/api
	Timeout      time.Duration // per request (default 30s)
	RowsSelector string        // JSONPath of the row array (default $.data[*])
	Limit        int           // rows requested per dataset, 0 = server default
	Analysis     analyze.Config
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

// Client reads dataset metadata and rows from a catalog service.
//
//	GET {base}/datasets            -> [Dataset]
//	GET {base}/datasets/{id}       -> Dataset
//	GET {base}/datasets/{id}/data  -> {dataset_id, columns, data, ...}
type Client struct {
	base  *url.URL
	limit int
	http  *http.Client
	ex    *extractor
	log   zerolog.Logger
}

// NewClient validates cfg and returns a client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("catalog base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("catalog base url %q: scheme must be http or https", cfg.BaseURL)
	}
	ex, err := newExtractor(cfg.RowsSelector, cfg.Analysis)
	if err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:  base,
		limit: cfg.Limit,
		http:  hc,
		ex:    ex,
		log:   cfg.Logger.With().Str("component", "catalog").Logger(),
	}, nil
}

// List returns every dataset the catalog offers.
func (c *Client) List(ctx context.Context) ([]api.Dataset, error) {
	var out []api.Dataset
	body, err := c.get(ctx, c.endpoint(nil, "datasets"))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode dataset list: %w", err)
	}
	return out, nil
}

// Get returns the metadata record of one dataset.
func (c *Client) Get(ctx context.Context, id string) (api.Dataset, error) {
	var out api.Dataset
	body, err := c.get(ctx, c.endpoint(nil, "datasets", id))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode dataset %s: %w", id, err)
	}
	return out, nil
}

// Fetch downloads a dataset's rows and metadata. It implements the lifecycle
// controller's Source.
func (c *Client) Fetch(ctx context.Context, id string) (*api.DatasetPayload, error) {
	var q url.Values
	if c.limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(c.limit)}}
	}
	start := time.Now()
	body, err := c.get(ctx, c.endpoint(q, "datasets", id, "data"))
	if err != nil {
		return nil, err
	}
	root, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", id, err)
	}
	p, err := c.ex.payload(id, root)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	c.log.Info().
		Str("dataset", id).
		Int("rows", len(p.Rows)).
		Int("bytes", len(body)).
		Dur("took", time.Since(start)).
		Msg("fetched dataset")
	return p, nil
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := *c.base
	for _, s := range segments {
		u.Path += "/" + url.PathEscape(s)
	}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug().Str("url", target).Msg("catalog request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }() // safe to ignore

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("GET %s: %w", target, ErrNotFound)
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("GET %s: %s: %s", target, resp.Status, snippet(body))
	}
	return body, nil
}

func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
