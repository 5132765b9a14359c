package datadog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/halverson/scout-sre-agent/internal/tools"
)

// envAliases maps common environment shorthand to the tags actually
// used in Datadog.
var envAliases = map[string]string{
	"prod":        "production",
	"prd":         "production",
	"stage":       "stg",
	"staging":     "stg",
	"development": "dev",
}

// resolveEnv maps an environment alias to its canonical tag value.
func resolveEnv(env string) string {
	if env == "" {
		return ""
	}
	if actual, ok := envAliases[strings.ToLower(env)]; ok {
		return actual
	}
	return env
}

// APM metric names vary by framework; these cover the common ones.
var spanTypes = []string{
	"web.request",
	"servlet.request",
	"http.request",
	"flask.request",
	"grpc.request",
	"graphql.request",
}

// discoverSpanTypes is a wider list used when probing which metric
// prefix a single service reports under.
var discoverSpanTypes = []string{
	"web.request",
	"servlet.request",
	"http.request",
	"flask.request",
	"django.request",
	"express.request",
	"fastapi.request",
	"grpc.request",
	"graphql.request",
	"aws.lambda",
}

// parseTimeToken converts a relative time token ("now", "now-15m",
// "now-4h", "now-1d") or a unix timestamp string to unix seconds.
func parseTimeToken(t string, now time.Time) (int64, error) {
	nowSec := now.Unix()
	if t == "now" {
		return nowSec, nil
	}
	if delta, ok := strings.CutPrefix(t, "now-"); ok && len(delta) >= 2 {
		n, err := strconv.Atoi(delta[:len(delta)-1])
		if err == nil {
			switch delta[len(delta)-1] {
			case 'm':
				return nowSec - int64(n)*60, nil
			case 'h':
				return nowSec - int64(n)*3600, nil
			case 'd':
				return nowSec - int64(n)*86400, nil
			}
		}
	}
	if ts, err := strconv.ParseInt(t, 10, 64); err == nil {
		return ts, nil
	}
	return 0, fmt.Errorf("invalid time %q (use 'now', 'now-15m', 'now-1h', 'now-1d' or a unix timestamp)", t)
}

// serviceFromScope extracts the service name from a series scope like
// "service:checkout,env:production".
func serviceFromScope(scope string) string {
	for _, part := range strings.Split(scope, ",") {
		if name, ok := strings.CutPrefix(part, "service:"); ok {
			return name
		}
	}
	return ""
}

// seriesStats summarizes the non-null values of a series.
type seriesStats struct {
	Avg    float64
	Min    float64
	Max    float64
	Latest float64
}

func summarize(values []float64) (seriesStats, bool) {
	if len(values) == 0 {
		return seriesStats{}, false
	}
	s := seriesStats{Min: values[0], Max: values[0], Latest: values[len(values)-1]}
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Avg = sum / float64(len(values))
	return s, true
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int) int {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}

// Tools returns the Datadog APM tool set backed by the given client.
func Tools(c *Client, logger *slog.Logger) []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "datadog_get_apm_services",
			Description: "List APM services with request counts. Use this to see all instrumented services and their traffic levels.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"env": map[string]any{
						"type":        "string",
						"description": "Filter by environment (e.g., 'prod', 'staging')",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum services to return (default: 50)",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.getAPMServices(ctx, stringArg(args, "env"), intArg(args, "limit", 50), logger)
			},
		},
		{
			Name:        "datadog_get_service_stats",
			Description: "Get APM statistics for a specific service including latency (avg, p95, p99), throughput, and error rate. Use this to investigate service performance or diagnose latency issues.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service": map[string]any{
						"type":        "string",
						"description": "Service name to get stats for",
					},
					"env": map[string]any{
						"type":        "string",
						"description": "Environment filter (e.g., 'prod')",
					},
					"from_time": map[string]any{
						"type":        "string",
						"description": "Start time (e.g., 'now-1h', 'now-4h'). Default: 'now-1h'",
					},
					"to_time": map[string]any{
						"type":        "string",
						"description": "End time. Default: 'now'",
					},
				},
				"required": []string{"service"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				fromTime := stringArg(args, "from_time")
				if fromTime == "" {
					fromTime = "now-1h"
				}
				toTime := stringArg(args, "to_time")
				if toTime == "" {
					toTime = "now"
				}
				return c.getServiceStats(ctx, stringArg(args, "service"), stringArg(args, "env"), fromTime, toTime, logger)
			},
		},
		{
			Name:        "datadog_search_traces",
			Description: "Search APM traces by service, duration, status, or errors. Use this to find slow requests, errors, or investigate specific endpoints.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Trace search query (e.g., 'service:api', 'service:api @duration:>1s', 'service:api status:error')",
					},
					"from_time": map[string]any{
						"type":        "string",
						"description": "Start time (e.g., 'now-15m', 'now-1h'). Default: 'now-15m'",
					},
					"to_time": map[string]any{
						"type":        "string",
						"description": "End time. Default: 'now'",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum traces to return (default: 50)",
					},
				},
				"required": []string{"query"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				fromTime := stringArg(args, "from_time")
				if fromTime == "" {
					fromTime = "now-15m"
				}
				toTime := stringArg(args, "to_time")
				if toTime == "" {
					toTime = "now"
				}
				return c.searchTraces(ctx, stringArg(args, "query"), fromTime, toTime, intArg(args, "limit", 50))
			},
		},
		{
			Name:        "datadog_get_trace_details",
			Description: "Get detailed information about a specific trace including all spans, durations, and errors. Use this to drill down into a specific request to identify bottlenecks.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"trace_id": map[string]any{
						"type":        "string",
						"description": "The trace ID to get details for",
					},
				},
				"required": []string{"trace_id"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				return c.getTraceDetails(ctx, stringArg(args, "trace_id"))
			},
		},
	}
}

func (c *Client) getAPMServices(ctx context.Context, env string, limit int, logger *slog.Logger) (any, error) {
	now := time.Now()
	fromTS := now.Unix() - 3600
	toTS := now.Unix()

	envFilter := ""
	if actual := resolveEnv(env); actual != "" {
		envFilter = ",env:" + actual
	}

	type serviceEntry struct {
		Service   string   `json:"service"`
		Requests  int64    `json:"requests_last_hour"`
		SpanTypes []string `json:"span_types"`
	}

	services := map[string]*serviceEntry{}

	for _, spanType := range spanTypes {
		query := fmt.Sprintf("sum:trace.%s.hits{*%s} by {service}.as_count()", spanType, envFilter)
		resp, err := c.QueryMetrics(ctx, query, fromTS, toTS)
		if err != nil {
			// One span type failing should not sink the whole discovery,
			// but auth failures will repeat for every query.
			if isAuthError(err) {
				return nil, errors.New(friendlyError(err, "fetch APM services"))
			}
			logger.Debug("apm discovery query failed", "span_type", spanType, "error", err)
			continue
		}

		for _, series := range resp.Series {
			name := serviceFromScope(series.Scope)
			if name == "" {
				continue
			}
			var hits float64
			for _, v := range series.Values() {
				hits += v
			}
			if hits <= 0 {
				continue
			}
			entry := services[name]
			if entry == nil {
				entry = &serviceEntry{Service: name}
				services[name] = entry
			}
			entry.Requests += int64(hits)
			entry.SpanTypes = append(entry.SpanTypes, spanType)
		}
	}

	list := make([]serviceEntry, 0, len(services))
	for _, entry := range services {
		list = append(list, *entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Requests > list[j].Requests })

	total := len(list)
	if len(list) > limit {
		list = list[:limit]
	}

	return map[string]any{
		"services":         list,
		"count":            len(list),
		"total_discovered": total,
		"env_filter":       env,
	}, nil
}

// discoverSpanType probes the last 15 minutes for the metric prefix a
// service reports under. Returns "" when no prefix has data.
func (c *Client) discoverSpanType(ctx context.Context, service, envFilter string) string {
	now := time.Now().Unix()
	fromTS := now - 900

	for _, spanType := range discoverSpanTypes {
		query := fmt.Sprintf("sum:trace.%s.hits{service:%s%s}.as_count()", spanType, service, envFilter)
		resp, err := c.QueryMetrics(ctx, query, fromTS, now)
		if err != nil || len(resp.Series) == 0 {
			continue
		}
		for _, v := range resp.Series[0].Values() {
			if v > 0 {
				return spanType
			}
		}
	}
	return ""
}

func (c *Client) getServiceStats(ctx context.Context, service, env, fromTime, toTime string, logger *slog.Logger) (any, error) {
	now := time.Now()
	fromTS, err := parseTimeToken(fromTime, now)
	if err != nil {
		return nil, err
	}
	toTS, err := parseTimeToken(toTime, now)
	if err != nil {
		return nil, err
	}

	actualEnv := resolveEnv(env)
	envFilter := ""
	if actualEnv != "" {
		envFilter = ",env:" + actualEnv
	}

	candidates := spanTypes
	if discovered := c.discoverSpanType(ctx, service, envFilter); discovered != "" {
		candidates = append([]string{discovered}, spanTypes...)
	}

	var (
		results  map[string]seriesStats
		spanType string
	)

	seen := map[string]bool{}
	for _, st := range candidates {
		if seen[st] {
			continue
		}
		seen[st] = true

		// Percentile metrics use the duration.by.service.<p>p naming and
		// report seconds, while plain duration reports milliseconds.
		queries := map[string]string{
			"latency_avg": fmt.Sprintf("avg:trace.%s.duration{service:%s%s}", st, service, envFilter),
			"latency_p95": fmt.Sprintf("avg:trace.%s.duration.by.service.95p{service:%s%s}", st, service, envFilter),
			"latency_p99": fmt.Sprintf("avg:trace.%s.duration.by.service.99p{service:%s%s}", st, service, envFilter),
			"requests":    fmt.Sprintf("sum:trace.%s.hits{service:%s%s}.as_rate()", st, service, envFilter),
			"errors":      fmt.Sprintf("sum:trace.%s.errors{service:%s%s}.as_rate()", st, service, envFilter),
		}

		attempt := map[string]seriesStats{}
		for name, query := range queries {
			resp, err := c.QueryMetrics(ctx, query, fromTS, toTS)
			if err != nil {
				if isAuthError(err) {
					return nil, errors.New(friendlyError(err, "fetch service stats"))
				}
				logger.Debug("service stats query failed", "metric", name, "error", err)
				continue
			}
			if len(resp.Series) == 0 {
				continue
			}
			if stats, ok := summarize(resp.Series[0].Values()); ok {
				attempt[name] = stats
			}
		}

		if len(attempt) > 0 {
			results = attempt
			spanType = st
			break
		}
	}

	latency := map[string]any{"avg_ms": nil, "p95_ms": nil, "p99_ms": nil}
	if s, ok := results["latency_avg"]; ok {
		latency["avg_ms"] = round3(s.Avg)
	}
	if s, ok := results["latency_p95"]; ok {
		latency["p95_ms"] = round3(s.Avg * 1000)
	}
	if s, ok := results["latency_p99"]; ok {
		latency["p99_ms"] = round3(s.Avg * 1000)
	}

	throughput := map[string]any{"requests_per_sec": nil, "peak_requests_per_sec": nil}
	if s, ok := results["requests"]; ok {
		throughput["requests_per_sec"] = s.Avg
		throughput["peak_requests_per_sec"] = s.Max
	}

	errorsOut := map[string]any{"errors_per_sec": nil, "error_rate_percent": nil}
	if s, ok := results["errors"]; ok {
		errorsOut["errors_per_sec"] = s.Avg
		if req, ok := results["requests"]; ok && req.Avg > 0 {
			errorsOut["error_rate_percent"] = (s.Avg / req.Avg) * 100
		}
	}

	envOut := env
	if actualEnv != "" {
		envOut = actualEnv
	}

	result := map[string]any{
		"service":       service,
		"env":           envOut,
		"env_requested": env,
		"from":          fromTime,
		"to":            toTime,
		"latency":       latency,
		"throughput":    throughput,
		"errors":        errorsOut,
		"url":           fmt.Sprintf("https://app.%s/apm/service/%s", c.site, service),
	}

	if spanType != "" {
		result["span_type"] = spanType
		result["metric_prefix"] = "trace." + spanType
	} else {
		warning := fmt.Sprintf("No APM data found for service %q", service)
		if env != "" {
			warning += fmt.Sprintf(" in env %q", env)
		}
		warning += ". The service may not be instrumented, may use a different name in Datadog, or there may be no recent traffic."
		result["warning"] = warning
	}

	return result, nil
}

func (c *Client) searchTraces(ctx context.Context, query, fromTime, toTime string, limit int) (any, error) {
	spans, err := c.SearchSpans(ctx, query, fromTime, toTime, limit)
	if err != nil {
		return nil, errors.New(friendlyError(err, "search traces"))
	}

	var traces []map[string]any
	seenTraces := map[string]bool{}

	for _, span := range spans {
		attrs := span.Attributes
		traceID := attrs.Str("trace_id")
		if traceID != "" {
			if seenTraces[traceID] {
				continue
			}
			seenTraces[traceID] = true
		}

		entry := map[string]any{
			"span_id":   span.ID,
			"trace_id":  traceID,
			"service":   attrs.Service,
			"resource":  attrs.Resource,
			"operation": attrs.Str("operation_name"),
			"status":    attrs.Str("status"),
			"error":     attrs.Custom["error"],
			"timestamp": attrs.Timestamp,
			"host":      attrs.Host,
		}
		if durNS, ok := attrs.Num("duration"); ok {
			entry["duration_ns"] = durNS
			entry["duration_ms"] = durNS / 1e6
		}
		traces = append(traces, entry)
	}

	return map[string]any{
		"query":  query,
		"from":   fromTime,
		"to":     toTime,
		"traces": traces,
		"count":  len(traces),
	}, nil
}

func (c *Client) getTraceDetails(ctx context.Context, traceID string) (any, error) {
	spans, err := c.SearchSpans(ctx, "trace_id:"+traceID, "now-24h", "now", 100)
	if err != nil {
		return nil, errors.New(friendlyError(err, "fetch trace details"))
	}

	var (
		out           []map[string]any
		totalDuration float64
		hasError      bool
	)
	serviceSet := map[string]bool{}

	for _, span := range spans {
		attrs := span.Attributes
		if attrs.Service != "" {
			serviceSet[attrs.Service] = true
		}
		if attrs.Custom["error"] != nil {
			hasError = true
		}

		entry := map[string]any{
			"span_id":       span.ID,
			"parent_id":     attrs.Str("parent_id"),
			"service":       attrs.Service,
			"resource":      attrs.Resource,
			"operation":     attrs.Str("operation_name"),
			"status":        attrs.Str("status"),
			"error":         attrs.Custom["error"],
			"error_message": attrs.Str("error.message"),
			"http_method":   attrs.Str("http.method"),
			"http_url":      attrs.Str("http.url"),
			"http_status":   attrs.Custom["http.status_code"],
		}
		if durNS, ok := attrs.Num("duration"); ok {
			entry["duration_ms"] = durNS / 1e6
			totalDuration = math.Max(totalDuration, durNS)
		}
		out = append(out, entry)
	}

	// Slowest spans first.
	sort.Slice(out, func(i, j int) bool {
		di, _ := out[i]["duration_ms"].(float64)
		dj, _ := out[j]["duration_ms"].(float64)
		return di > dj
	})

	services := make([]string, 0, len(serviceSet))
	for s := range serviceSet {
		services = append(services, s)
	}
	sort.Strings(services)

	result := map[string]any{
		"trace_id":   traceID,
		"span_count": len(out),
		"services":   services,
		"has_error":  hasError,
		"spans":      out,
		"url":        fmt.Sprintf("https://app.%s/apm/trace/%s", c.site, traceID),
	}
	if totalDuration > 0 {
		result["total_duration_ms"] = totalDuration / 1e6
	}
	return result, nil
}

func isAuthError(err error) bool {
	msg := err.Error()
	lower := strings.ToLower(msg)
	return strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "forbidden")
}
