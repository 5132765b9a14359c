// Package datadog provides a client for the Datadog metrics and spans APIs.
package datadog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/halverson/scout-sre-agent/internal/httpkit"
)

// Client is a Datadog REST API client covering the v1 metrics query
// endpoint and the v2 spans search endpoint.
type Client struct {
	apiKey     string
	appKey     string
	site       string
	httpClient *http.Client
}

// NewClient creates a new Datadog client for the given site
// (e.g. "datadoghq.com", "datadoghq.eu").
func NewClient(apiKey, appKey, site string, logger *slog.Logger) *Client {
	if site == "" {
		site = "datadoghq.com"
	}
	return &Client{
		apiKey: apiKey,
		appKey: appKey,
		site:   site,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// Site returns the configured Datadog site, used to build app URLs.
func (c *Client) Site() string {
	return c.site
}

func (c *Client) baseURL() string {
	return "https://api." + c.site
}

// MetricSeries is one timeseries from a v1 metrics query. Points are
// [timestamp_ms, value] pairs; the value may be null for gaps.
type MetricSeries struct {
	Metric    string       `json:"metric"`
	Scope     string       `json:"scope"`
	PointList [][]*float64 `json:"pointlist"`
	Unit      []MetricUnit `json:"unit"`
}

// MetricUnit describes the unit of a metric series.
type MetricUnit struct {
	Name string `json:"name"`
}

// Values returns the non-null point values in order.
func (s MetricSeries) Values() []float64 {
	var vals []float64
	for _, p := range s.PointList {
		if len(p) == 2 && p[1] != nil {
			vals = append(vals, *p[1])
		}
	}
	return vals
}

// MetricsResponse is the v1 /api/v1/query response.
type MetricsResponse struct {
	Status string         `json:"status"`
	Series []MetricSeries `json:"series"`
	Error  string         `json:"error"`
}

// QueryMetrics runs a metrics query over [from, to] (unix seconds).
func (c *Client) QueryMetrics(ctx context.Context, query string, from, to int64) (*MetricsResponse, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var result MetricsResponse
	if err := c.get(ctx, "/api/v1/query?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	if result.Error != "" {
		return nil, fmt.Errorf("metrics query: %s", result.Error)
	}
	return &result, nil
}

// Span is one span event from the v2 spans search endpoint.
type Span struct {
	ID         string         `json:"id"`
	Attributes SpanAttributes `json:"attributes"`
}

// SpanAttributes holds the indexed span fields plus the free-form
// attribute map (trace_id, duration, status, error tags and so on).
type SpanAttributes struct {
	Service   string         `json:"service"`
	Resource  string         `json:"resource_name"`
	Host      string         `json:"host"`
	Timestamp string         `json:"start_timestamp"`
	Custom    map[string]any `json:"attributes"`
}

// Str returns a string value from the span's attribute map.
func (a SpanAttributes) Str(key string) string {
	if v, ok := a.Custom[key].(string); ok {
		return v
	}
	return ""
}

// Num returns a numeric value from the span's attribute map, with ok
// false when the key is missing or not a number.
func (a SpanAttributes) Num(key string) (float64, bool) {
	v, ok := a.Custom[key].(float64)
	return v, ok
}

type spansSearchRequest struct {
	Data spansSearchData `json:"data"`
}

type spansSearchData struct {
	Type       string                `json:"type"`
	Attributes spansSearchAttributes `json:"attributes"`
}

type spansSearchAttributes struct {
	Filter spansSearchFilter `json:"filter"`
	Sort   string            `json:"sort,omitempty"`
	Page   spansSearchPage   `json:"page"`
}

type spansSearchFilter struct {
	Query string `json:"query"`
	From  string `json:"from"`
	To    string `json:"to"`
}

type spansSearchPage struct {
	Limit int `json:"limit"`
}

type spansSearchResponse struct {
	Data []Span `json:"data"`
}

// SearchSpans searches indexed spans. from and to accept Datadog time
// tokens like "now-15m" as well as timestamps.
func (c *Client) SearchSpans(ctx context.Context, query, from, to string, limit int) ([]Span, error) {
	body := spansSearchRequest{
		Data: spansSearchData{
			Type: "search_request",
			Attributes: spansSearchAttributes{
				Filter: spansSearchFilter{Query: query, From: from, To: to},
				Sort:   "-timestamp",
				Page:   spansSearchPage{Limit: limit},
			},
		},
	}

	var result spansSearchResponse
	if err := c.post(ctx, "/api/v2/spans/events/search", body, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req, path, result)
}

func (c *Client) post(ctx context.Context, path string, data any, result any) error {
	reqBody, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req, path, result)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("DD-API-KEY", c.apiKey)
	req.Header.Set("DD-APPLICATION-KEY", c.appKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, path string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	// Drain and close to ensure connection reuse even when result is nil.
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, body)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// friendlyError rewrites authentication and permission failures into
// actionable messages; everything else keeps its original text.
func friendlyError(err error, operation string) string {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(msg, "401") || strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication"):
		return "Datadog authentication failed. Please check that your API keys are valid."
	case strings.Contains(msg, "403") || strings.Contains(lower, "forbidden"):
		return "Datadog permission denied. Please check that your API keys have the required permissions."
	}
	return fmt.Sprintf("failed to %s: %s", operation, msg)
}
