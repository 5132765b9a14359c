// Package memory provides in-memory conversation storage.
package memory

import (
	"sync"
	"time"

	"github.com/halverson/scout-sre-agent/internal/llm"
)

// Message is one entry in a session's history. Ordering is significant
// and append-only; once appended, a message is immutable.
type Message struct {
	Role       string         `json:"role"` // system, user, assistant, tool
	Content    string         `json:"content"`
	ToolCalls  []llm.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Session holds the ordered message history for one conversation.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store maps session ids to message histories. Sessions live for the
// duration of the process; there is no eviction — growth is bounded
// externally by the context-limit detection in the turn controller.
// Concurrent access to different sessions is independent; a single
// in-flight turn per session is assumed.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
	}
}

// Append adds a message to a session, creating the session on first use.
func (s *Store) Append(sessionID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		now := time.Now()
		sess = &Session{
			ID:        sessionID,
			CreatedAt: now,
		}
		s.sessions[sessionID] = sess
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	sess.Messages = append(sess.Messages, msg)
	sess.UpdatedAt = time.Now()
}

// Messages returns a copy of a session's history, empty if unseen.
func (s *Store) Messages(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return []Message{}
	}

	msgs := make([]Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return msgs
}

// Snapshot returns a copy of the full session, or nil if unseen.
func (s *Store) Snapshot(sessionID string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return sess.copy()
}

// Clear removes a session.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stats returns store statistics.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalMessages := 0
	for _, sess := range s.sessions {
		totalMessages += len(sess.Messages)
	}

	return map[string]any{
		"sessions": len(s.sessions),
		"messages": totalMessages,
	}
}

func (sess *Session) copy() *Session {
	msgs := make([]Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return &Session{
		ID:        sess.ID,
		Messages:  msgs,
		CreatedAt: sess.CreatedAt,
		UpdatedAt: sess.UpdatedAt,
	}
}
