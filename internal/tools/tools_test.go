package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func echoTool() *Tool {
	return &Tool{
		Name:        "echo",
		Description: "returns its arguments",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer"},
			},
			"required": []string{"text"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"text": args["text"]}, nil
		},
	}
}

func TestExecute(t *testing.T) {
	r := NewRegistry([]*Tool{echoTool()})

	got := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"})
	if got != `{"text":"hi"}` {
		t.Errorf("Execute = %s", got)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry(nil)

	got := r.Execute(context.Background(), "nope", nil)
	if got != `{"error":"unknown tool: nope"}` {
		t.Errorf("Execute = %s", got)
	}
}

func TestExecuteMissingRequired(t *testing.T) {
	r := NewRegistry([]*Tool{echoTool()})

	got := r.Execute(context.Background(), "echo", map[string]any{})
	if !strings.Contains(got, `"error"`) || !strings.Contains(got, "missing required parameter: text") {
		t.Errorf("Execute = %s", got)
	}
}

func TestExecuteWrongType(t *testing.T) {
	r := NewRegistry([]*Tool{echoTool()})

	got := r.Execute(context.Background(), "echo", map[string]any{"text": "hi", "count": "three"})
	if !strings.Contains(got, `"error"`) || !strings.Contains(got, "parameter count") {
		t.Errorf("Execute = %s", got)
	}

	// JSON numbers decode as float64; whole values pass an integer check.
	got = r.Execute(context.Background(), "echo", map[string]any{"text": "hi", "count": float64(3)})
	if strings.Contains(got, `"error"`) {
		t.Errorf("Execute = %s", got)
	}

	got = r.Execute(context.Background(), "echo", map[string]any{"text": "hi", "count": 3.5})
	if !strings.Contains(got, `"error"`) {
		t.Errorf("fractional integer accepted: %s", got)
	}
}

func TestExecuteHandlerErrorAbsorbed(t *testing.T) {
	r := NewRegistry([]*Tool{{
		Name:       "fail",
		Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	}})

	got := r.Execute(context.Background(), "fail", nil)
	if got != `{"error":"backend down"}` {
		t.Errorf("Execute = %s", got)
	}
}

func TestSwap(t *testing.T) {
	r := NewRegistry([]*Tool{echoTool()})
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}

	r.Swap(nil)
	if r.Len() != 0 {
		t.Errorf("Len after Swap = %d", r.Len())
	}
	if got := r.Execute(context.Background(), "echo", map[string]any{"text": "hi"}); !strings.Contains(got, "unknown tool") {
		t.Errorf("Execute after Swap = %s", got)
	}
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry([]*Tool{
		{Name: "zeta", Handler: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }},
		{Name: "alpha", Handler: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }},
	})

	names := r.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zeta" {
		t.Errorf("Names = %v", names)
	}
}

func TestListFunctionFormat(t *testing.T) {
	r := NewRegistry([]*Tool{echoTool()})

	defs := r.List()
	if len(defs) != 1 {
		t.Fatalf("len(defs) = %d", len(defs))
	}
	if defs[0]["type"] != "function" {
		t.Errorf("type = %v", defs[0]["type"])
	}
	fn, ok := defs[0]["function"].(map[string]any)
	if !ok || fn["name"] != "echo" {
		t.Errorf("function = %v", defs[0]["function"])
	}
}
