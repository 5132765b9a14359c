package llm

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardClient() *AnthropicClient {
	return NewAnthropicClient("sk-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestConvertToAnthropicExtractsSystem(t *testing.T) {
	msgs := []Message{
		{Role: "system", Content: "You are an SRE assistant."},
		{Role: "user", Content: "hello"},
	}

	converted, system := convertToAnthropic(msgs)
	if system != "You are an SRE assistant." {
		t.Errorf("system = %q", system)
	}
	if len(converted) != 1 {
		t.Fatalf("len = %d, want system message excluded", len(converted))
	}
	if converted[0].Role != "user" || converted[0].Content != "hello" {
		t.Errorf("converted[0] = %+v", converted[0])
	}
}

func TestConvertToAnthropicToolCalls(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "who is on call?"},
		{
			Role:    "assistant",
			Content: "Let me check.",
			ToolCalls: []ToolCall{
				{ID: "toolu_01", Function: FunctionCall{Name: "pagerduty_get_oncall", Arguments: map[string]any{}}},
			},
		},
		{Role: "tool", Content: `{"oncalls":[]}`, ToolCallID: "toolu_01"},
	}

	converted, _ := convertToAnthropic(msgs)
	if len(converted) != 3 {
		t.Fatalf("len = %d", len(converted))
	}

	// Assistant message with tool calls becomes content blocks.
	blocks, ok := converted[1].Content.([]anthropicContent)
	if !ok {
		t.Fatalf("assistant content is %T, want blocks", converted[1].Content)
	}
	if len(blocks) != 2 || blocks[0].Type != "text" || blocks[1].Type != "tool_use" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if blocks[1].ID != "toolu_01" || blocks[1].Name != "pagerduty_get_oncall" {
		t.Errorf("tool_use block = %+v", blocks[1])
	}

	// Tool results become user messages with tool_result blocks.
	if converted[2].Role != "user" {
		t.Errorf("tool message role = %q", converted[2].Role)
	}
	resultBlocks, ok := converted[2].Content.([]anthropicContent)
	if !ok || len(resultBlocks) != 1 {
		t.Fatalf("tool content = %+v", converted[2].Content)
	}
	if resultBlocks[0].Type != "tool_result" || resultBlocks[0].ToolUseID != "toolu_01" {
		t.Errorf("tool_result block = %+v", resultBlocks[0])
	}
}

func TestConvertToolsToAnthropic(t *testing.T) {
	defs := []map[string]any{
		{
			"type": "function",
			"function": map[string]any{
				"name":        "k8s_list_pods",
				"description": "list pods",
				"parameters": map[string]any{
					"type":       "object",
					"properties": map[string]any{"namespace": map[string]any{"type": "string"}},
				},
			},
		},
	}

	converted := convertToolsToAnthropic(defs)
	if len(converted) != 1 {
		t.Fatalf("len = %d", len(converted))
	}
	if converted[0].Name != "k8s_list_pods" || converted[0].Description != "list pods" {
		t.Errorf("converted[0] = %+v", converted[0])
	}
	if converted[0].InputSchema == nil {
		t.Error("input schema missing")
	}

	if got := convertToolsToAnthropic(nil); got != nil {
		t.Errorf("nil tools = %v", got)
	}
}

func TestConvertFromAnthropic(t *testing.T) {
	resp := &anthropicResponse{
		Role:  "assistant",
		Model: "claude-sonnet-4-20250514",
		Content: []anthropicContent{
			{Type: "text", Text: "Checking "},
			{Type: "text", Text: "now."},
			{Type: "tool_use", ID: "toolu_02", Name: "datadog_search_traces", Input: map[string]any{"query": "service:api"}},
		},
		Usage: anthropicUsage{InputTokens: 10, OutputTokens: 5},
	}

	got := convertFromAnthropic(resp)
	if got.Message.Content != "Checking now." {
		t.Errorf("content = %q", got.Message.Content)
	}
	if len(got.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(got.Message.ToolCalls))
	}
	tc := got.Message.ToolCalls[0]
	if tc.ID != "toolu_02" || tc.Function.Name != "datadog_search_traces" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments["query"] != "service:api" {
		t.Errorf("arguments = %v", tc.Function.Arguments)
	}
	if got.InputTokens != 10 || got.OutputTokens != 5 {
		t.Errorf("usage = %d/%d", got.InputTokens, got.OutputTokens)
	}
}

func TestHandleStreaming(t *testing.T) {
	stream := strings.Join([]string{
		`event: message_start`,
		`data: {"type":"message_start","message":{"model":"claude-sonnet-4-20250514","usage":{"input_tokens":25,"output_tokens":1}}}`,
		``,
		`event: content_block_delta`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		``,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`,
		``,
		`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_03","name":"sqs_list_queues"}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"prefix\":"}}`,
		``,
		`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"orders\"}"}}`,
		``,
		`data: {"type":"content_block_stop","index":1}`,
		``,
		`data: {"type":"message_delta","usage":{"output_tokens":12}}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	var tokens []string
	c := discardClient()
	resp, err := c.handleStreaming(context.Background(), strings.NewReader(stream), func(ev StreamEvent) {
		if ev.Kind == KindToken {
			tokens = append(tokens, ev.Token)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if resp.Message.Content != "Hello there" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if strings.Join(tokens, "") != "Hello there" {
		t.Errorf("tokens = %v", tokens)
	}
	if resp.Model != "claude-sonnet-4-20250514" {
		t.Errorf("model = %q", resp.Model)
	}
	if resp.InputTokens != 25 || resp.OutputTokens != 12 {
		t.Errorf("usage = %d/%d", resp.InputTokens, resp.OutputTokens)
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.ID != "toolu_03" || tc.Function.Name != "sqs_list_queues" {
		t.Errorf("tool call = %+v", tc)
	}
	if tc.Function.Arguments["prefix"] != "orders" {
		t.Errorf("arguments = %v", tc.Function.Arguments)
	}
}

func TestHandleStreamingMalformedToolJSON(t *testing.T) {
	stream := strings.Join([]string{
		`data: {"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"toolu_04","name":"broken"}}`,
		`data: {"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"not json"}}`,
		`data: {"type":"content_block_stop","index":0}`,
	}, "\n")

	c := discardClient()
	resp, err := c.handleStreaming(context.Background(), strings.NewReader(stream), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.Message.ToolCalls))
	}
	if resp.Message.ToolCalls[0].Function.Arguments["_raw"] != "not json" {
		t.Errorf("arguments = %v", resp.Message.ToolCalls[0].Function.Arguments)
	}
}
