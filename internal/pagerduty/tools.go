package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halverson/scout-sre-agent/internal/tools"
)

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

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Tools returns the PagerDuty tool set backed by the given client.
func Tools(c *Client, logger *slog.Logger) []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "pagerduty_get_incidents",
			Description: "List PagerDuty incidents. Use this to check active incidents, their urgency, and assignments.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"statuses": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Filter by status: 'triggered', 'acknowledged', 'resolved'. Default: ['triggered', 'acknowledged']",
					},
					"urgency": map[string]any{
						"type":        "string",
						"enum":        []string{"high", "low"},
						"description": "Filter by urgency level",
					},
					"service_ids": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Filter by service IDs",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum incidents to return (default: 25)",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				limit := intArg(args, "limit", 25)
				incidents, err := c.ListIncidents(ctx, IncidentFilter{
					Statuses:   stringSliceArg(args, "statuses"),
					Urgency:    stringArg(args, "urgency"),
					ServiceIDs: stringSliceArg(args, "service_ids"),
					Limit:      limit,
				})
				if err != nil {
					return nil, errors.New(friendlyError(err, "fetch incidents"))
				}
				return shapeIncidentList(incidents, limit), nil
			},
		},
		{
			Name:        "pagerduty_get_incident_details",
			Description: "Get detailed information about a specific PagerDuty incident including timeline and notes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"incident_id": map[string]any{
						"type":        "string",
						"description": "PagerDuty incident ID",
					},
				},
				"required": []string{"incident_id"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				incidentID := stringArg(args, "incident_id")
				incident, err := c.GetIncident(ctx, incidentID)
				if err != nil {
					return nil, errors.New(friendlyError(err, "fetch incident details"))
				}

				// Notes and timeline are best-effort extras.
				var notes []map[string]any
				if list, err := c.ListNotes(ctx, incidentID); err != nil {
					logger.Debug("incident notes fetch failed", "incident_id", incidentID, "error", err)
				} else {
					for _, n := range list {
						if len(notes) >= 10 {
							break
						}
						notes = append(notes, map[string]any{
							"content":    n.Content,
							"created_at": n.CreatedAt,
							"user":       n.User.Summary,
						})
					}
				}

				var timeline []map[string]any
				if entries, err := c.ListIncidentLogEntries(ctx, incidentID, 20); err != nil {
					logger.Debug("incident timeline fetch failed", "incident_id", incidentID, "error", err)
				} else {
					for _, e := range entries {
						if len(timeline) >= 20 {
							break
						}
						timeline = append(timeline, map[string]any{
							"type":       e.Type,
							"created_at": e.CreatedAt,
							"summary":    e.Summary,
							"agent":      e.Agent.Summary,
						})
					}
				}

				result := shapeIncident(*incident)
				result["resolved_at"] = incident.ResolvedAt
				result["description"] = incident.Description
				result["notes"] = notes
				result["timeline"] = timeline
				return result, nil
			},
		},
		{
			Name:        "pagerduty_get_oncall",
			Description: "Get current on-call users. Use this to find who is responsible for incidents or services.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"schedule_ids": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Filter by schedule IDs",
					},
					"escalation_policy_ids": map[string]any{
						"type":        "array",
						"items":       map[string]any{"type": "string"},
						"description": "Filter by escalation policy IDs",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				oncalls, err := c.ListOncalls(ctx,
					stringSliceArg(args, "schedule_ids"),
					stringSliceArg(args, "escalation_policy_ids"))
				if err != nil {
					return nil, errors.New(friendlyError(err, "fetch on-call information"))
				}
				results := dedupeOncalls(oncalls)
				return map[string]any{
					"oncalls": results,
					"count":   len(results),
				}, nil
			},
		},
		{
			Name:        "pagerduty_get_services",
			Description: "List PagerDuty services and their current status.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name_filter": map[string]any{
						"type":        "string",
						"description": "Filter services by name (substring match)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum services to return (default: 50)",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				limit := intArg(args, "limit", 50)
				services, err := c.ListServices(ctx, stringArg(args, "name_filter"), limit)
				if err != nil {
					return nil, errors.New(friendlyError(err, "fetch services"))
				}
				return shapeServiceList(services, limit), nil
			},
		},
		{
			Name:        "pagerduty_acknowledge_incident",
			Description: "Acknowledge a PagerDuty incident. Use this when starting to work on an incident.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"incident_id": map[string]any{
						"type":        "string",
						"description": "PagerDuty incident ID to acknowledge",
					},
				},
				"required": []string{"incident_id"},
			},
			Mutating: true,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				incidentID := stringArg(args, "incident_id")
				updated, err := c.UpdateIncidentStatus(ctx, incidentID, "acknowledged", "")
				if err != nil {
					return nil, errors.New(friendlyError(err, "acknowledge incident"))
				}
				return map[string]any{
					"success":     true,
					"incident_id": incidentID,
					"new_status":  updated.Status,
					"message":     fmt.Sprintf("Incident %s acknowledged", incidentID),
				}, nil
			},
		},
		{
			Name:        "pagerduty_resolve_incident",
			Description: "Resolve a PagerDuty incident. Use this when an incident is fixed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"incident_id": map[string]any{
						"type":        "string",
						"description": "PagerDuty incident ID to resolve",
					},
					"resolution": map[string]any{
						"type":        "string",
						"description": "Optional resolution note describing the fix",
					},
				},
				"required": []string{"incident_id"},
			},
			Mutating: true,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				incidentID := stringArg(args, "incident_id")
				updated, err := c.UpdateIncidentStatus(ctx, incidentID, "resolved", stringArg(args, "resolution"))
				if err != nil {
					return nil, errors.New(friendlyError(err, "resolve incident"))
				}
				return map[string]any{
					"success":     true,
					"incident_id": incidentID,
					"new_status":  updated.Status,
					"message":     fmt.Sprintf("Incident %s resolved", incidentID),
				}, nil
			},
		},
		{
			Name:        "pagerduty_get_recent_alerts",
			Description: "Get recent alerts/triggers from PagerDuty. Use this to see what alerts have fired recently.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"service_id": map[string]any{
						"type":        "string",
						"description": "Filter by service ID",
					},
					"since_hours": map[string]any{
						"type":        "integer",
						"description": "Look back this many hours (default: 24)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum alerts to return (default: 50)",
					},
				},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				sinceHours := intArg(args, "since_hours", 24)
				limit := intArg(args, "limit", 50)
				since := time.Now().Add(-time.Duration(sinceHours) * time.Hour)

				entries, err := c.ListLogEntries(ctx, stringArg(args, "service_id"), since, limit)
				if err != nil {
					return nil, errors.New(friendlyError(err, "fetch alerts"))
				}

				alerts := filterAlertEntries(entries, limit)
				return map[string]any{
					"alerts": alerts,
					"count":  len(alerts),
					"since":  since.UTC().Format(time.RFC3339),
				}, nil
			},
		},
	}
}

func shapeIncident(inc Incident) map[string]any {
	assigned := make([]string, 0, len(inc.Assignments))
	for _, a := range inc.Assignments {
		assigned = append(assigned, a.Assignee.Summary)
	}
	return map[string]any{
		"id":              inc.ID,
		"incident_number": inc.IncidentNumber,
		"title":           inc.Title,
		"status":          inc.Status,
		"urgency":         inc.Urgency,
		"created_at":      inc.CreatedAt,
		"service": map[string]any{
			"id":   inc.Service.ID,
			"name": inc.Service.Summary,
		},
		"assigned_to":       assigned,
		"escalation_policy": inc.EscalationPolicy.Summary,
		"html_url":          inc.HTMLURL,
	}
}

func shapeIncidentList(incidents []Incident, limit int) map[string]any {
	statusCounts := map[string]int{"triggered": 0, "acknowledged": 0, "resolved": 0}
	results := make([]map[string]any, 0, len(incidents))

	for _, inc := range incidents {
		if len(results) >= limit {
			break
		}
		if _, ok := statusCounts[inc.Status]; ok {
			statusCounts[inc.Status]++
		}
		results = append(results, shapeIncident(inc))
	}

	return map[string]any{
		"incidents":      results,
		"total_count":    len(results),
		"status_summary": statusCounts,
	}
}

// dedupeOncalls collapses duplicate user/schedule/level triples that
// the oncalls endpoint returns across overlapping escalation policies.
func dedupeOncalls(oncalls []Oncall) []map[string]any {
	results := make([]map[string]any, 0, len(oncalls))
	seen := map[string]bool{}

	for _, oc := range oncalls {
		key := fmt.Sprintf("%s:%s:%d", oc.User.ID, oc.Schedule.ID, oc.EscalationLevel)
		if seen[key] {
			continue
		}
		seen[key] = true

		entry := map[string]any{
			"user": map[string]any{
				"id":    oc.User.ID,
				"name":  oc.User.Summary,
				"email": oc.User.Email,
			},
			"escalation_level": oc.EscalationLevel,
			"start":            oc.Start,
			"end":              oc.End,
		}
		if oc.Schedule.ID != "" {
			entry["schedule"] = map[string]any{
				"id":   oc.Schedule.ID,
				"name": oc.Schedule.Summary,
			}
		}
		if oc.EscalationPolicy.ID != "" {
			entry["escalation_policy"] = map[string]any{
				"id":   oc.EscalationPolicy.ID,
				"name": oc.EscalationPolicy.Summary,
			}
		}
		results = append(results, entry)
	}

	return results
}

func shapeServiceList(services []Service, limit int) map[string]any {
	statusCounts := map[string]int{"active": 0, "warning": 0, "critical": 0, "maintenance": 0, "disabled": 0}
	results := make([]map[string]any, 0, len(services))

	for _, svc := range services {
		if len(results) >= limit {
			break
		}
		if _, ok := statusCounts[svc.Status]; ok {
			statusCounts[svc.Status]++
		}

		desc := svc.Description
		if len(desc) > 200 {
			desc = desc[:200]
		}
		results = append(results, map[string]any{
			"id":                    svc.ID,
			"name":                  svc.Name,
			"description":           desc,
			"status":                svc.Status,
			"escalation_policy":     svc.EscalationPolicy.Summary,
			"created_at":            svc.CreatedAt,
			"html_url":              svc.HTMLURL,
			"incident_urgency_rule": svc.IncidentUrgencyRule.Type,
		})
	}

	return map[string]any{
		"services":       results,
		"total_count":    len(results),
		"status_summary": statusCounts,
	}
}

// filterAlertEntries keeps only the trigger and alert log entry types.
func filterAlertEntries(entries []LogEntry, limit int) []map[string]any {
	alerts := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if e.Type != "trigger_log_entry" && e.Type != "alert_log_entry" {
			continue
		}
		entry := map[string]any{
			"id":         e.ID,
			"type":       e.Type,
			"created_at": e.CreatedAt,
			"summary":    e.Summary,
			"service":    e.Service.Summary,
		}
		if e.Incident != nil {
			entry["incident"] = map[string]any{
				"id":      e.Incident.ID,
				"summary": e.Incident.Summary,
			}
		}
		alerts = append(alerts, entry)
		if len(alerts) >= limit {
			break
		}
	}
	return alerts
}
