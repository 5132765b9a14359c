// Package api implements the HTTP front-end for the assistant.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/halverson/scout-sre-agent/internal/agent"
	"github.com/halverson/scout-sre-agent/internal/buildinfo"
	"github.com/halverson/scout-sre-agent/internal/catalog"
	"github.com/halverson/scout-sre-agent/internal/config"
	"github.com/halverson/scout-sre-agent/internal/llm"
	"github.com/halverson/scout-sre-agent/internal/tools"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// TurnStats tracks request and token counters for the process lifetime.
type TurnStats struct {
	TotalTurns        int64 `json:"total_turns"`
	FailedTurns       int64 `json:"failed_turns"`
	TotalToolCalls    int64 `json:"total_tool_calls"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	mu                sync.Mutex
}

func (t *TurnStats) Record(out *agent.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TotalTurns++
	if out.State == agent.StateFailed {
		t.FailedTurns++
	}
	t.TotalToolCalls += int64(out.ToolCalls)
	t.TotalInputTokens += int64(out.InputTokens)
	t.TotalOutputTokens += int64(out.OutputTokens)
}

// TurnStatsSnapshot is a copy-safe snapshot of the counters.
type TurnStatsSnapshot struct {
	TotalTurns        int64 `json:"total_turns"`
	FailedTurns       int64 `json:"failed_turns"`
	TotalToolCalls    int64 `json:"total_tool_calls"`
	TotalInputTokens  int64 `json:"total_input_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
}

func (t *TurnStats) Snapshot() TurnStatsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TurnStatsSnapshot{
		TotalTurns:        t.TotalTurns,
		FailedTurns:       t.FailedTurns,
		TotalToolCalls:    t.TotalToolCalls,
		TotalInputTokens:  t.TotalInputTokens,
		TotalOutputTokens: t.TotalOutputTokens,
	}
}

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	controller *agent.Controller
	registry   *tools.Registry
	cfg        *config.Config
	logger     *slog.Logger
	server     *http.Server
	stats      *TurnStats
}

// NewServer creates a new API server.
func NewServer(address string, port int, ctrl *agent.Controller, registry *tools.Registry, cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		address:    address,
		port:       port,
		controller: ctrl,
		registry:   registry,
		cfg:        cfg,
		logger:     logger,
		stats:      &TurnStats{},
	}
}

// Stats exposes the request counters for status reporting.
func (s *Server) Stats() *TurnStats {
	return s.stats
}

// Handler builds the route table. Split out from Start so tests can
// drive it through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("POST /v1/sessions/clear", s.handleSessionClear)
	mux.HandleFunc("POST /v1/refresh", s.handleRefresh)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Scout",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.cfg.Status()

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"claude_configured":     status[string(config.IntegrationAnthropic)],
		"claude_model":          s.cfg.Anthropic.Model,
		"datadog_configured":    status[string(config.IntegrationDatadog)],
		"pagerduty_configured":  status[string(config.IntegrationPagerDuty)],
		"kubernetes_configured": status[string(config.IntegrationKubernetes)],
		"sqs_configured":        status[string(config.IntegrationSQS)],
		"available_tools":       s.registry.Len(),
		"active_sessions":       s.controller.Store().Len(),
		"stats":                 s.stats.Snapshot(),
	}, s.logger)
}

// ChatRequest is the body for both chat endpoints. SessionID is
// optional; a fresh session is created when it is empty.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	SessionID    string `json:"session_id"`
	Response     string `json:"response"`
	State        string `json:"state"`
	Rounds       int    `json:"rounds"`
	ToolCalls    int    `json:"tool_calls"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	out := s.controller.Submit(r.Context(), req.SessionID, req.Message)
	s.stats.Record(out)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		SessionID:    out.SessionID,
		Response:     out.Text,
		State:        string(out.State),
		Rounds:       out.Rounds,
		ToolCalls:    out.ToolCalls,
		InputTokens:  out.InputTokens,
		OutputTokens: out.OutputTokens,
	}, s.logger)
}

// streamChunk is the SSE payload for incremental output.
type streamChunk struct {
	Token string `json:"token,omitempty"`
	Tool  string `json:"tool,omitempty"`
}

// streamFinal is the SSE payload sent before the [DONE] marker.
type streamFinal struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	Rounds    int    `json:"rounds"`
	ToolCalls int    `json:"tool_calls"`
	Done      bool   `json:"done"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)

	streamed := false
	callback := func(event llm.StreamEvent) {
		switch event.Kind {
		case llm.KindToken:
			streamed = true
			s.writeSSE(w, streamChunk{Token: event.Token})
			flusher.Flush()

		case llm.KindToolCallStart:
			// Surface tool activity to the client and keep the
			// connection warm while the call runs.
			name := ""
			if event.ToolCall != nil {
				name = event.ToolCall.Function.Name
			}
			s.writeSSE(w, streamChunk{
				Token: fmt.Sprintf("*Using %s...*\n", name),
				Tool:  name,
			})
			flusher.Flush()

		case llm.KindToolCallDone:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}

		// Reset the write deadline after every event so long tool
		// loops do not trip the server write timeout.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	out := s.controller.SubmitStream(r.Context(), req.SessionID, req.Message, callback)
	s.stats.Record(out)

	// Failure text and fixed answers are produced without token events.
	// Emit them so the client always sees the final text.
	if !streamed && out.Text != "" {
		s.writeSSE(w, streamChunk{Token: out.Text})
		flusher.Flush()
	}

	s.writeSSE(w, streamFinal{
		SessionID: out.SessionID,
		State:     string(out.State),
		Rounds:    out.Rounds,
		ToolCalls: out.ToolCalls,
		Done:      true,
	})
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Debug("failed to marshal SSE chunk", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE chunk", "error", err)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "session parameter is required")
		return
	}

	messages := s.controller.Store().Messages(sessionID)

	// Display history is user/assistant text only. System prompts and
	// tool traffic stay internal.
	type historyMessage struct {
		Role      string `json:"role"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}

	filtered := make([]historyMessage, 0, len(messages))
	for _, m := range messages {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		if m.Content == "" {
			continue
		}
		filtered = append(filtered, historyMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": sessionID,
		"messages":   filtered,
		"count":      len(filtered),
	}, s.logger)
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		s.errorResponse(w, http.StatusBadRequest, "session_id is required")
		return
	}

	s.controller.Store().Clear(req.SessionID)
	s.logger.Info("session cleared via API", "session_id", req.SessionID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "ok", "message": "session cleared"}, s.logger)
}

// handleRefresh rebuilds the tool registry from the current
// configuration. Useful after rotating credentials or enabling an
// integration without restarting the process.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rebuilt := catalog.Build(r.Context(), s.cfg, s.logger)
	s.registry.Swap(rebuilt)
	s.logger.Info("tool registry refreshed", "tools", len(rebuilt))

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":          "ok",
		"available_tools": len(rebuilt),
		"tool_names":      s.registry.Names(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
