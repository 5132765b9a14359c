// Package agent runs the conversational turn loop: decide with the
// model, execute requested tools, feed results back, repeat until the
// model answers in plain text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/halverson/scout-sre-agent/internal/archive"
	"github.com/halverson/scout-sre-agent/internal/llm"
	"github.com/halverson/scout-sre-agent/internal/memory"
	"github.com/halverson/scout-sre-agent/internal/tools"
)

const (
	notConfiguredMessage  = "Error: Agent not properly configured. Please check your API keys."
	emptyResponseFallback = "I apologize, but I couldn't generate a response. Please try again."

	// conversationLimitMessage is a sentinel the front-end recognizes
	// to prompt the user to start a fresh session.
	conversationLimitMessage = "CONVERSATION_LIMIT_EXCEEDED"

	// DefaultMaxRounds bounds decide/execute iterations within one turn.
	DefaultMaxRounds = 25
)

// State is the terminal state of a turn.
type State string

const (
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Outcome summarizes one completed turn. Text is always presentable,
// including on failure.
type Outcome struct {
	SessionID    string
	Text         string
	State        State
	Rounds       int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
}

// Controller coordinates the model, the tool registry, and the
// conversation store for a turn.
type Controller struct {
	llm       llm.Client
	model     string
	registry  *tools.Registry
	store     *memory.Store
	archive   *archive.Store
	maxRounds int
	logger    *slog.Logger
}

// NewController creates a turn controller. client may be nil when the
// model backbone is not configured; arch may be nil to disable the
// audit trail.
func NewController(client llm.Client, model string, registry *tools.Registry, store *memory.Store, arch *archive.Store, maxRounds int, logger *slog.Logger) *Controller {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Controller{
		llm:       client,
		model:     model,
		registry:  registry,
		store:     store,
		archive:   arch,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Store exposes the conversation store for history queries.
func (c *Controller) Store() *memory.Store {
	return c.store
}

// Configured reports whether a model backbone is available.
func (c *Controller) Configured() bool {
	return c.llm != nil
}

// Submit runs one full turn and returns when the model produces a
// final text answer or the turn fails.
func (c *Controller) Submit(ctx context.Context, sessionID, userMessage string) *Outcome {
	return c.run(ctx, sessionID, userMessage, nil)
}

// SubmitStream runs one full turn, forwarding text tokens and tool
// lifecycle events to cb as they happen. The returned Outcome carries
// the same final text a Submit call would have produced.
func (c *Controller) SubmitStream(ctx context.Context, sessionID, userMessage string, cb llm.StreamCallback) *Outcome {
	return c.run(ctx, sessionID, userMessage, cb)
}

func (c *Controller) run(ctx context.Context, sessionID, userMessage string, cb llm.StreamCallback) *Outcome {
	started := time.Now()

	if sessionID == "" {
		sessionID = newSessionID()
	}
	out := &Outcome{SessionID: sessionID, State: StateFailed}

	if c.llm == nil {
		out.Text = notConfiguredMessage
		emitText(cb, out.Text)
		return out
	}

	c.injectSystemPrompt(sessionID)
	c.store.Append(sessionID, memory.Message{Role: "user", Content: userMessage})

	turnID := newSessionID()

	// Forward only incremental tokens; tool lifecycle events and the
	// final Done are emitted by this loop, not per model call.
	var tokenCB llm.StreamCallback
	if cb != nil {
		tokenCB = func(ev llm.StreamEvent) {
			if ev.Kind == llm.KindToken {
				cb(ev)
			}
		}
	}

	for round := 1; round <= c.maxRounds; round++ {
		out.Rounds = round

		history := c.llmMessages(sessionID)
		defs := c.registry.List()

		var (
			resp *llm.ChatResponse
			err  error
		)
		if tokenCB != nil {
			resp, err = c.llm.ChatStream(ctx, c.model, history, defs, tokenCB)
		} else {
			resp, err = c.llm.Chat(ctx, c.model, history, defs)
		}
		if err != nil {
			c.logger.Error("model call failed", "session_id", sessionID, "round", round, "error", err)
			out.Text = classifyError(err)
			emitText(cb, out.Text)
			c.archiveTurn(turnID, sessionID, userMessage, out, err.Error(), started)
			return out
		}

		out.InputTokens += resp.InputTokens
		out.OutputTokens += resp.OutputTokens

		c.store.Append(sessionID, memory.Message{
			Role:      "assistant",
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
		})

		if len(resp.Message.ToolCalls) == 0 {
			out.State = StateDone
			out.Text = resp.Message.Content
			if strings.TrimSpace(out.Text) == "" {
				out.Text = emptyResponseFallback
				emitText(cb, out.Text)
			}
			c.archiveTurn(turnID, sessionID, userMessage, out, "", started)
			return out
		}

		for _, tc := range resp.Message.ToolCalls {
			name := tc.Function.Name
			if cb != nil {
				cb(llm.StreamEvent{Kind: llm.KindToolCallStart, ToolCall: &tc})
			}

			callStart := time.Now()
			result := c.registry.Execute(ctx, name, tc.Function.Arguments)
			out.ToolCalls++

			c.logger.Debug("tool executed",
				"session_id", sessionID,
				"tool", name,
				"round", round,
				"result_bytes", len(result),
				"duration", time.Since(callStart))

			c.archiveToolCall(turnID, sessionID, name, tc.Function.Arguments, result, callStart)

			c.store.Append(sessionID, memory.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
			})

			if cb != nil {
				cb(llm.StreamEvent{Kind: llm.KindToolCallDone, ToolName: name, ToolResult: result})
			}
		}
	}

	// Loop exhausted without a plain-text answer. History keeps the
	// partial work so the session stays usable.
	out.Text = fmt.Sprintf("Error: conversation exceeded %d tool rounds without completing. Please try a more specific request.", c.maxRounds)
	emitText(cb, out.Text)
	c.archiveTurn(turnID, sessionID, userMessage, out, "tool round limit reached", started)
	return out
}

// injectSystemPrompt places the system prompt at the head of a fresh
// session. Sessions that already have it are left alone.
func (c *Controller) injectSystemPrompt(sessionID string) {
	msgs := c.store.Messages(sessionID)
	if len(msgs) > 0 && msgs[0].Role == "system" {
		return
	}
	c.store.Append(sessionID, memory.Message{Role: "system", Content: systemPrompt})
}

func (c *Controller) llmMessages(sessionID string) []llm.Message {
	stored := c.store.Messages(sessionID)
	msgs := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		msgs = append(msgs, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return msgs
}

func (c *Controller) archiveTurn(turnID, sessionID, userMessage string, out *Outcome, errText string, started time.Time) {
	if c.archive == nil {
		return
	}
	now := time.Now()
	rec := &archive.TurnRecord{
		ID:           turnID,
		SessionID:    sessionID,
		UserMessage:  userMessage,
		FinalText:    out.Text,
		State:        string(out.State),
		Rounds:       out.Rounds,
		ToolCalls:    out.ToolCalls,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
		Error:        errText,
		StartedAt:    started,
		CompletedAt:  now,
		DurationMs:   now.Sub(started).Milliseconds(),
	}
	if err := c.archive.RecordTurn(rec); err != nil {
		c.logger.Warn("turn archive write failed", "session_id", sessionID, "error", err)
	}
}

func (c *Controller) archiveToolCall(turnID, sessionID, name string, args map[string]any, result string, started time.Time) {
	if c.archive == nil {
		return
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		argsJSON = []byte("{}")
	}
	rec := &archive.ToolCallRecord{
		ID:         newSessionID(),
		TurnID:     turnID,
		SessionID:  sessionID,
		ToolName:   name,
		Arguments:  string(argsJSON),
		ResultSize: len(result),
		IsError:    strings.HasPrefix(result, `{"error"`),
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err := c.archive.RecordToolCall(rec); err != nil {
		c.logger.Warn("tool call archive write failed", "session_id", sessionID, "error", err)
	}
}

// classifyError maps a model failure to the text returned to the user.
// Context-window exhaustion gets a sentinel; everything else is passed
// through with an Error prefix.
func classifyError(err error) string {
	msg := err.Error()
	if isContextLimit(msg) {
		return conversationLimitMessage
	}
	return "Error: " + msg
}

// isContextLimit detects provider context-window errors by message
// text. There is no structured error code for this on the wire.
func isContextLimit(msg string) bool {
	if strings.Contains(msg, "prompt is too long") {
		return true
	}
	return strings.Contains(msg, "tokens") && strings.Contains(msg, "maximum")
}

func emitText(cb llm.StreamCallback, text string) {
	if cb != nil && text != "" {
		cb(llm.StreamEvent{Kind: llm.KindToken, Token: text})
	}
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
