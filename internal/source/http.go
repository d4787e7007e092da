package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/httpclient"
	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/normalizer"
)

const (
	defaultPerPage  = 100
	defaultMaxPages = 10
)

// page is the paginated envelope of a feed. A bare JSON array is accepted as
// a single page.
type page struct {
	Items   []normalizer.RawPayload `json:"items"`
	Page    int                     `json:"page"`
	Pages   int                     `json:"pages"`
	PerPage int                     `json:"per_page"`
}

// HTTP reads a JSON feed, following pages until the last one or MaxPages.
type HTTP struct {
	name     string
	kind     lead.Source
	url      string
	token    string
	perPage  int
	maxPages int
	client   *httpclient.Client
	logger   *zap.Logger
}

func NewHTTP(name string, kind lead.Source, rawURL, token string, perPage, maxPages int, client *httpclient.Client, logger *zap.Logger) *HTTP {
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if client == nil {
		client = httpclient.New(30*time.Second, "", logger)
	}
	return &HTTP{
		name:     name,
		kind:     kind,
		url:      rawURL,
		token:    token,
		perPage:  perPage,
		maxPages: maxPages,
		client:   client,
		logger:   logger,
	}
}

func (h *HTTP) Name() string      { return h.name }
func (h *HTTP) Kind() lead.Source { return h.kind }

func (h *HTTP) Fetch(ctx context.Context, since time.Time) ([]normalizer.RawPayload, error) {
	var headers map[string]string
	if h.token != "" {
		headers = map[string]string{"Authorization": fmt.Sprintf("Bearer %s", h.token)}
	}

	var items []normalizer.RawPayload
	for n := 0; n < h.maxPages; n++ {
		q := url.Values{"page": {strconv.Itoa(n)}, "per_page": {strconv.Itoa(h.perPage)}}
		if !since.IsZero() {
			q.Set("since", since.UTC().Format(time.RFC3339))
		}

		body, err := h.client.Get(ctx, h.url, q, headers)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", h.name, err)
		}

		resp, err := decodePage(body)
		if err != nil {
			return nil, fmt.Errorf("source %s: decoding page %d: %w", h.name, n, err)
		}
		items = append(items, resp.Items...)

		h.logger.Debug("got page", zap.String("source", h.name), zap.Int("page", resp.Page), zap.Int("pages", resp.Pages), zap.Int("items", len(resp.Items)))
		if resp.Page >= resp.Pages-1 || len(resp.Items) == 0 {
			break
		}
	}

	return after(items, since), nil
}

func decodePage(body []byte) (*page, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var items []normalizer.RawPayload
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, err
		}
		return &page{Items: items, Pages: 1}, nil
	}

	var p page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
