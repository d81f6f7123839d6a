package cfpb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/complaints/internal/metrics"
	"stealthcompany.com/complaints/internal/retry"
)

const (
	// DefaultBaseURL is the public CFPB complaint search endpoint.
	DefaultBaseURL = "https://www.consumerfinance.gov/data-research/consumer-complaints/search/api/v1/"

	DefaultTimeout  = 30 * time.Second
	DefaultPageSize = 100

	// maxPageSize caps a single page request regardless of configuration.
	maxPageSize = 1000

	dateLayout = "2006-01-02"
)

// Query is the filter set for one fetch. Zero-valued filters are omitted from
// the request; the provider combines the rest with logical AND.
type Query struct {
	Company          string
	Product          string
	State            string
	CompanyResponse  string
	Timely           string
	ConsumerDisputed string
	SubmittedVia     string

	DateMin time.Time
	DateMax time.Time

	// MaxRecords caps the materialized result. Zero means no cap.
	MaxRecords int
}

// Client fetches complaint records from the paginated search API. Page
// requests that fail transiently are retried under the configured policy.
type Client struct {
	http     *resty.Client
	pageSize int
	policy   retry.Policy

	closeOnce sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithPageSize sets the page size used for pagination, clamped to the
// provider cap.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithRetryPolicy replaces the default page retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient creates a search API client. An empty baseURL selects the public
// endpoint; a non-positive timeout selects the default.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
		pageSize: DefaultPageSize,
		policy:   retry.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pageSize > maxPageSize {
		c.pageSize = maxPageSize
	}

	log.Debug().
		Str("base_url", baseURL).
		Int("page_size", c.pageSize).
		Msg("Complaint search client initialized")
	return c
}

// Fetch retrieves every record matching q as a fully materialized slice.
// Pagination stops on a short page, an empty page, or once MaxRecords is
// reached. Records are merged by complaint_id so an overlapping page after a
// retry cannot introduce duplicates. An empty date range returns nil without
// touching the network.
func (c *Client) Fetch(ctx context.Context, q Query) ([]Record, error) {
	if !q.DateMin.IsZero() && !q.DateMax.IsZero() && q.DateMin.After(q.DateMax) {
		return nil, nil
	}

	var out []Record
	seen := make(map[string]struct{})
	frm := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		size := c.pageSize
		if q.MaxRecords > 0 {
			if remaining := q.MaxRecords - len(out); remaining < size {
				size = remaining
			}
		}

		page, err := c.fetchPage(ctx, q, size, frm)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		metrics.RecordFetchedRecords(len(page))

		for _, rec := range page {
			if rec.ComplaintID != "" {
				if _, dup := seen[rec.ComplaintID]; dup {
					continue
				}
				seen[rec.ComplaintID] = struct{}{}
			}
			out = append(out, rec)
		}

		if q.MaxRecords > 0 && len(out) >= q.MaxRecords {
			out = out[:q.MaxRecords]
			break
		}
		if len(page) < size {
			break
		}
		frm += len(page)
	}

	return out, nil
}

// FetchByCompany fetches all complaints against one company in a date range.
func (c *Client) FetchByCompany(ctx context.Context, company string, dateMin, dateMax time.Time, maxRecords int) ([]Record, error) {
	return c.Fetch(ctx, Query{
		Company:    company,
		DateMin:    dateMin,
		DateMax:    dateMax,
		MaxRecords: maxRecords,
	})
}

// FetchDateRange fetches all complaints in a date range, unfiltered.
func (c *Client) FetchDateRange(ctx context.Context, dateMin, dateMax time.Time) ([]Record, error) {
	return c.Fetch(ctx, Query{DateMin: dateMin, DateMax: dateMax})
}

// FetchLastNDays fetches all complaints received in the trailing n days.
func (c *Client) FetchLastNDays(ctx context.Context, days int) ([]Record, error) {
	now := time.Now().UTC()
	return c.Fetch(ctx, Query{DateMin: now.AddDate(0, 0, -days), DateMax: now})
}

// Close releases idle network connections. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.http.GetClient().CloseIdleConnections()
	})
}

// fetchPage requests one page under the retry policy.
func (c *Client) fetchPage(ctx context.Context, q Query, size, frm int) ([]Record, error) {
	var page []Record
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		page, err = c.requestPage(ctx, q, size, frm)
		return err
	})
	return page, err
}

func (c *Client) requestPage(ctx context.Context, q Query, size, frm int) ([]Record, error) {
	params := map[string]string{
		"size":    strconv.Itoa(size),
		"frm":     strconv.Itoa(frm),
		"sort":    "created_date_desc",
		"no_aggs": "true",
	}
	if !q.DateMin.IsZero() {
		params["date_received_min"] = q.DateMin.Format(dateLayout)
	}
	if !q.DateMax.IsZero() {
		params["date_received_max"] = q.DateMax.Format(dateLayout)
	}
	if q.Company != "" {
		params["search_term"] = q.Company
		params["field"] = "company"
	}
	if q.Product != "" {
		params["product"] = q.Product
	}
	if q.State != "" {
		params["state"] = q.State
	}
	if q.CompanyResponse != "" {
		params["company_response"] = q.CompanyResponse
	}
	if q.Timely != "" {
		params["timely"] = q.Timely
	}
	if q.ConsumerDisputed != "" {
		params["consumer_disputed"] = q.ConsumerDisputed
	}
	if q.SubmittedVia != "" {
		params["submitted_via"] = q.SubmittedVia
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("")
	duration := time.Since(start)

	if err != nil {
		metrics.RecordAPICall("error", duration)
		return nil, retry.Transient(fmt.Errorf("search request failed: %w", err))
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusOK:
		// fall through to decoding below
	case status == http.StatusTooManyRequests:
		metrics.RecordAPICall("rate_limited", duration)
		hint := parseRetryAfter(resp.Header().Get("Retry-After"))
		return nil, retry.TransientAfter(&RateLimitError{RetryAfter: hint}, hint)
	case status >= 500:
		metrics.RecordAPICall("error", duration)
		return nil, retry.Transient(&ServerError{StatusCode: status})
	default:
		metrics.RecordAPICall("error", duration)
		return nil, &RequestError{StatusCode: status, Body: truncateBody(resp.Body())}
	}

	records, err := decodeHits(resp.Body())
	if err != nil {
		metrics.RecordAPICall("error", duration)
		return nil, err
	}

	metrics.RecordAPICall("success", duration)
	log.Debug().
		Int("frm", frm).
		Int("size", size).
		Int("records", len(records)).
		Msg("Fetched search page")
	return records, nil
}

// decodeHits handles both response shapes the provider emits: a bare hit list
// and the {hits:{hits:[...]}} envelope.
func decodeHits(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)

	var hits []searchHit
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &hits); err != nil {
			return nil, fmt.Errorf("failed to decode search hits: %w", err)
		}
	} else {
		var env searchEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("failed to decode search envelope: %w", err)
		}
		hits = env.Hits.Hits
	}

	records := make([]Record, 0, len(hits))
	for _, h := range hits {
		var rec Record
		if len(h.Source) > 0 {
			if err := json.Unmarshal(h.Source, &rec); err != nil {
				return nil, fmt.Errorf("failed to decode complaint record: %w", err)
			}
		}
		if rec.ComplaintID == "" {
			rec.ComplaintID = h.ID
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

func truncateBody(body []byte) string {
	const limit = 512
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > limit {
		trimmed = trimmed[:limit]
	}
	return string(trimmed)
}
