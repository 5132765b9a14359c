// Package pagerduty provides a client for the PagerDuty REST API v2.
package pagerduty

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

const (
	apiBaseURL = "https://api.pagerduty.com"

	// Required on mutating requests; identifies the acting user.
	defaultFrom = "scout@localhost"
)

// Client is a PagerDuty REST API v2 client using token authentication.
type Client struct {
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new PagerDuty client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(30*time.Second),
			httpkit.WithRetry(3, 2*time.Second),
			httpkit.WithLogger(logger),
		),
	}
}

// Reference is a PagerDuty resource reference embedded in other objects.
type Reference struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
	HTMLURL string `json:"html_url"`
}

// Assignment links an incident to an assigned user.
type Assignment struct {
	Assignee Reference `json:"assignee"`
}

// Incident is a PagerDuty incident.
type Incident struct {
	ID               string       `json:"id"`
	IncidentNumber   int          `json:"incident_number"`
	Title            string       `json:"title"`
	Status           string       `json:"status"`
	Urgency          string       `json:"urgency"`
	CreatedAt        string       `json:"created_at"`
	ResolvedAt       string       `json:"resolved_at"`
	Description      string       `json:"description"`
	Service          Reference    `json:"service"`
	Assignments      []Assignment `json:"assignments"`
	EscalationPolicy Reference    `json:"escalation_policy"`
	HTMLURL          string       `json:"html_url"`
}

// Note is a note attached to an incident.
type Note struct {
	Content   string    `json:"content"`
	CreatedAt string    `json:"created_at"`
	User      Reference `json:"user"`
}

// LogEntry is one entry in an incident or account timeline.
type LogEntry struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	CreatedAt string     `json:"created_at"`
	Summary   string     `json:"summary"`
	Agent     Reference  `json:"agent"`
	Service   Reference  `json:"service"`
	Incident  *Reference `json:"incident"`
}

// OncallUser is the user half of an on-call entry.
type OncallUser struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Email   string `json:"email"`
}

// Oncall is one entry from the oncalls listing.
type Oncall struct {
	User             OncallUser `json:"user"`
	Schedule         Reference  `json:"schedule"`
	EscalationPolicy Reference  `json:"escalation_policy"`
	EscalationLevel  int        `json:"escalation_level"`
	Start            string     `json:"start"`
	End              string     `json:"end"`
}

// Service is a PagerDuty service.
type Service struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Status              string    `json:"status"`
	EscalationPolicy    Reference `json:"escalation_policy"`
	CreatedAt           string    `json:"created_at"`
	HTMLURL             string    `json:"html_url"`
	IncidentUrgencyRule struct {
		Type string `json:"type"`
	} `json:"incident_urgency_rule"`
}

// IncidentFilter narrows ListIncidents results.
type IncidentFilter struct {
	Statuses   []string
	Urgency    string
	ServiceIDs []string
	Limit      int
}

// ListIncidents lists incidents matching the filter. Statuses defaults
// to the active ones (triggered, acknowledged) when empty.
func (c *Client) ListIncidents(ctx context.Context, filter IncidentFilter) ([]Incident, error) {
	q := url.Values{}
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = []string{"triggered", "acknowledged"}
	}
	for _, s := range statuses {
		q.Add("statuses[]", s)
	}
	if filter.Urgency != "" {
		q.Add("urgencies[]", filter.Urgency)
	}
	for _, id := range filter.ServiceIDs {
		q.Add("service_ids[]", id)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}

	var result struct {
		Incidents []Incident `json:"incidents"`
	}
	if err := c.get(ctx, "/incidents?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.Incidents, nil
}

// GetIncident retrieves a single incident by ID.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (*Incident, error) {
	var result struct {
		Incident Incident `json:"incident"`
	}
	if err := c.get(ctx, "/incidents/"+incidentID, &result); err != nil {
		return nil, err
	}
	return &result.Incident, nil
}

// ListNotes lists the notes attached to an incident.
func (c *Client) ListNotes(ctx context.Context, incidentID string) ([]Note, error) {
	var result struct {
		Notes []Note `json:"notes"`
	}
	if err := c.get(ctx, "/incidents/"+incidentID+"/notes", &result); err != nil {
		return nil, err
	}
	return result.Notes, nil
}

// ListIncidentLogEntries lists the timeline entries for an incident.
func (c *Client) ListIncidentLogEntries(ctx context.Context, incidentID string, limit int) ([]LogEntry, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	var result struct {
		LogEntries []LogEntry `json:"log_entries"`
	}
	if err := c.get(ctx, "/incidents/"+incidentID+"/log_entries?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.LogEntries, nil
}

// ListOncalls lists current on-call entries, optionally filtered.
func (c *Client) ListOncalls(ctx context.Context, scheduleIDs, escalationPolicyIDs []string) ([]Oncall, error) {
	q := url.Values{}
	for _, id := range scheduleIDs {
		q.Add("schedule_ids[]", id)
	}
	for _, id := range escalationPolicyIDs {
		q.Add("escalation_policy_ids[]", id)
	}
	path := "/oncalls"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Oncalls []Oncall `json:"oncalls"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Oncalls, nil
}

// ListServices lists services, optionally filtered by a name query.
func (c *Client) ListServices(ctx context.Context, query string, limit int) ([]Service, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/services"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Services []Service `json:"services"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Services, nil
}

// ListLogEntries lists account-wide log entries since the given time.
// Overview mode keeps only the most important entry types.
func (c *Client) ListLogEntries(ctx context.Context, serviceID string, since time.Time, limit int) ([]LogEntry, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339))
	q.Set("limit", strconv.Itoa(limit))

	path := "/log_entries"
	if serviceID != "" {
		path = "/services/" + serviceID + "/log_entries"
	} else {
		q.Set("is_overview", "true")
	}

	var result struct {
		LogEntries []LogEntry `json:"log_entries"`
	}
	if err := c.get(ctx, path+"?"+q.Encode(), &result); err != nil {
		return nil, err
	}
	return result.LogEntries, nil
}

type incidentUpdate struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	Resolution string `json:"resolution,omitempty"`
}

// UpdateIncidentStatus transitions an incident to the given status
// ("acknowledged" or "resolved") with an optional resolution note.
func (c *Client) UpdateIncidentStatus(ctx context.Context, incidentID, status, resolution string) (*Incident, error) {
	body := map[string]incidentUpdate{
		"incident": {
			Type:       "incident_reference",
			Status:     status,
			Resolution: resolution,
		},
	}

	var result struct {
		Incident Incident `json:"incident"`
	}
	if err := c.put(ctx, "/incidents/"+incidentID, body, &result); err != nil {
		return nil, err
	}
	return &result.Incident, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)

	return c.do(req, path, result)
}

func (c *Client) put(ctx context.Context, path string, data any, result any) error {
	reqBody, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, apiBaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("From", defaultFrom)

	return c.do(req, path, result)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token token="+c.apiKey)
	req.Header.Set("Accept", "application/vnd.pagerduty+json;version=2")
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, path string, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
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
		return "PagerDuty authentication failed. Please check that your API key is valid."
	case strings.Contains(msg, "403") || strings.Contains(lower, "forbidden"):
		return "PagerDuty permission denied. Please check that your API key has the required permissions."
	}
	return fmt.Sprintf("failed to %s: %s", operation, msg)
}
