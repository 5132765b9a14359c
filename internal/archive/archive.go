// Package archive persists a durable audit of completed turns and tool
// calls to SQLite. The conversation store stays in-memory; this is an
// audit log, not a store of record.
package archive

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is a SQLite-backed turn and tool-call archive.
type Store struct {
	db *sql.DB
}

// TurnRecord describes one completed (or failed) turn.
type TurnRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	UserMessage  string    `json:"user_message"`
	FinalText    string    `json:"final_text"`
	State        string    `json:"state"` // done, failed
	Rounds       int       `json:"rounds"`
	ToolCalls    int       `json:"tool_calls"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Error        string    `json:"error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`
}

// ToolCallRecord describes one tool execution inside a turn.
type ToolCallRecord struct {
	ID         string    `json:"id"`
	TurnID     string    `json:"turn_id"`
	SessionID  string    `json:"session_id"`
	ToolName   string    `json:"tool_name"`
	Arguments  string    `json:"arguments"`
	ResultSize int       `json:"result_size"`
	IsError    bool      `json:"is_error"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NewStore opens (or creates) the archive database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		user_message TEXT NOT NULL,
		final_text TEXT,
		state TEXT NOT NULL,
		rounds INTEGER DEFAULT 0,
		tool_calls INTEGER DEFAULT 0,
		input_tokens INTEGER DEFAULT 0,
		output_tokens INTEGER DEFAULT 0,
		error TEXT,
		started_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NOT NULL,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, started_at);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id TEXT PRIMARY KEY,
		turn_id TEXT,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		arguments TEXT NOT NULL,
		result_size INTEGER DEFAULT 0,
		is_error BOOLEAN DEFAULT FALSE,
		started_at TIMESTAMP NOT NULL,
		duration_ms INTEGER,
		FOREIGN KEY (turn_id) REFERENCES turns(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_session ON tool_calls(session_id, started_at);
	CREATE INDEX IF NOT EXISTS idx_tool_calls_tool ON tool_calls(tool_name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordTurn persists a turn record, assigning an id when absent.
func (s *Store) RecordTurn(rec *TurnRecord) error {
	if rec.ID == "" {
		id, _ := uuid.NewV7()
		rec.ID = id.String()
	}

	_, err := s.db.Exec(`
		INSERT INTO turns (id, session_id, user_message, final_text, state,
			rounds, tool_calls, input_tokens, output_tokens, error,
			started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, rec.UserMessage, rec.FinalText, rec.State,
		rec.Rounds, rec.ToolCalls, rec.InputTokens, rec.OutputTokens, rec.Error,
		rec.StartedAt, rec.CompletedAt, rec.DurationMs)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecordToolCall persists a tool-call record, assigning an id when absent.
func (s *Store) RecordToolCall(rec *ToolCallRecord) error {
	if rec.ID == "" {
		id, _ := uuid.NewV7()
		rec.ID = id.String()
	}

	_, err := s.db.Exec(`
		INSERT INTO tool_calls (id, turn_id, session_id, tool_name,
			arguments, result_size, is_error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TurnID, rec.SessionID, rec.ToolName,
		rec.Arguments, rec.ResultSize, rec.IsError, rec.StartedAt, rec.DurationMs)
	if err != nil {
		return fmt.Errorf("insert tool call: %w", err)
	}
	return nil
}

// RecentTurns returns the most recent turns, optionally filtered by session.
func (s *Store) RecentTurns(sessionID string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session_id, user_message, final_text, state, rounds,
		tool_calls, input_tokens, output_tokens, COALESCE(error, ''),
		started_at, completed_at, COALESCE(duration_ms, 0)
		FROM turns`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []TurnRecord
	for rows.Next() {
		var t TurnRecord
		if err := rows.Scan(&t.ID, &t.SessionID, &t.UserMessage, &t.FinalText,
			&t.State, &t.Rounds, &t.ToolCalls, &t.InputTokens, &t.OutputTokens,
			&t.Error, &t.StartedAt, &t.CompletedAt, &t.DurationMs); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// ToolCallStats returns per-tool invocation counts and error counts.
func (s *Store) ToolCallStats() (map[string]any, error) {
	rows, err := s.db.Query(`
		SELECT tool_name, COUNT(*),
			SUM(CASE WHEN is_error THEN 1 ELSE 0 END),
			COALESCE(AVG(duration_ms), 0)
		FROM tool_calls
		GROUP BY tool_name
		ORDER BY COUNT(*) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tool stats: %w", err)
	}
	defer rows.Close()

	type toolStat struct {
		Calls         int     `json:"calls"`
		Errors        int     `json:"errors"`
		AvgDurationMs float64 `json:"avg_duration_ms"`
	}

	stats := make(map[string]any)
	total := 0
	for rows.Next() {
		var name string
		var st toolStat
		if err := rows.Scan(&name, &st.Calls, &st.Errors, &st.AvgDurationMs); err != nil {
			return nil, fmt.Errorf("scan tool stat: %w", err)
		}
		stats[name] = st
		total += st.Calls
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return map[string]any{
		"tools":       stats,
		"total_calls": total,
	}, nil
}
