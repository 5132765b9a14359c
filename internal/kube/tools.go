package kube

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/halverson/scout-sre-agent/internal/tools"
)

const maxTailLines = 10000

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, def int64) int64 {
	if v, ok := args[key].(float64); ok && v > 0 {
		return int64(v)
	}
	return def
}

// Tools returns the Kubernetes tool set backed by the given client.
func Tools(c *Client, logger *slog.Logger) []*tools.Tool {
	return []*tools.Tool{
		{
			Name:        "k8s_get_contexts",
			Description: "List available Kubernetes cluster contexts from local kubeconfig. Use to see which clusters are available.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				contexts, current, err := c.Contexts()
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"contexts":        contexts,
					"count":           len(contexts),
					"current_context": current,
				}, nil
			},
		},
		{
			Name:        "k8s_get_namespaces",
			Description: "List namespaces in a Kubernetes cluster. Use after selecting a cluster context to see available namespaces.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "Kubernetes context name",
					},
				},
				"required": []string{"context"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				contextName := stringArg(args, "context")
				namespaces, err := c.Namespaces(ctx, contextName)
				if err != nil {
					return nil, err
				}
				return map[string]any{
					"context":    contextName,
					"namespaces": namespaces,
					"count":      len(namespaces),
				}, nil
			},
		},
		{
			Name:        "k8s_list_pods",
			Description: "List all pods in a namespace with their status, restarts, and age. Use this to see what pods are running before fetching logs.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "Kubernetes context name",
					},
					"namespace": map[string]any{
						"type":        "string",
						"description": "Namespace name",
					},
				},
				"required": []string{"context", "namespace"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				contextName := stringArg(args, "context")
				namespace := stringArg(args, "namespace")
				pods, err := c.ListPods(ctx, contextName, namespace)
				if err != nil {
					return nil, err
				}

				statusCounts := map[string]int{}
				for _, p := range pods {
					statusCounts[p.Status]++
				}

				return map[string]any{
					"context":        contextName,
					"namespace":      namespace,
					"pods":           pods,
					"count":          len(pods),
					"status_summary": statusCounts,
				}, nil
			},
		},
		{
			Name:        "k8s_get_pod_logs",
			Description: "Fetch logs from a pod in real-time (no Datadog lag). For crashed pods, use previous=true. For multi-container pods, specify container_name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"context": map[string]any{
						"type":        "string",
						"description": "Kubernetes context name",
					},
					"namespace": map[string]any{
						"type":        "string",
						"description": "Namespace name",
					},
					"pod_name": map[string]any{
						"type":        "string",
						"description": "Pod name",
					},
					"container_name": map[string]any{
						"type":        "string",
						"description": "Container name (required for multi-container pods)",
					},
					"tail_lines": map[string]any{
						"type":        "integer",
						"description": "Number of lines to retrieve (default: 100, max: 10000)",
					},
					"since_seconds": map[string]any{
						"type":        "integer",
						"description": "Only return logs newer than N seconds",
					},
					"previous": map[string]any{
						"type":        "boolean",
						"description": "If true, get logs from previous container (for crashed pods)",
					},
				},
				"required": []string{"context", "namespace", "pod_name"},
			},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				contextName := stringArg(args, "context")
				namespace := stringArg(args, "namespace")
				podName := stringArg(args, "pod_name")
				previous, _ := args["previous"].(bool)

				opts := LogOptions{
					Container:    stringArg(args, "container_name"),
					TailLines:    clampTailLines(intArg(args, "tail_lines", 100)),
					SinceSeconds: intArg(args, "since_seconds", 0),
					Previous:     previous,
				}

				logs, err := c.PodLogs(ctx, contextName, namespace, podName, opts)
				if err != nil {
					return nil, err
				}

				result := map[string]any{
					"context":    contextName,
					"namespace":  namespace,
					"pod":        podName,
					"previous":   previous,
					"tail_lines": opts.TailLines,
					"line_count": countLines(logs),
					"logs":       logs,
				}
				if opts.Container != "" {
					result["container"] = opts.Container
				}
				if logs == "" {
					result["note"] = fmt.Sprintf("No log output for pod %q. The container may have just started or logs may have rotated.", podName)
				}
				return result, nil
			},
		},
	}
}

func clampTailLines(n int64) int64 {
	if n > maxTailLines {
		return maxTailLines
	}
	return n
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(s, "\n"), "\n") + 1
}
