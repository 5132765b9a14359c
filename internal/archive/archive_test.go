package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecentTurns(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	first := &TurnRecord{
		SessionID:   "s1",
		UserMessage: "any incidents?",
		FinalText:   "All quiet.",
		State:       "done",
		Rounds:      1,
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: now.Add(-time.Minute + 2*time.Second),
		DurationMs:  2000,
	}
	if err := s.RecordTurn(first); err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Error("RecordTurn did not assign an id")
	}

	second := &TurnRecord{
		SessionID:   "s1",
		UserMessage: "what about latency?",
		State:       "failed",
		Error:       "model call failed",
		StartedAt:   now,
		CompletedAt: now.Add(time.Second),
		DurationMs:  1000,
	}
	if err := s.RecordTurn(second); err != nil {
		t.Fatal(err)
	}

	turns, err := s.RecentTurns("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("len = %d", len(turns))
	}
	// Newest first.
	if turns[0].UserMessage != "what about latency?" {
		t.Errorf("turns[0] = %q", turns[0].UserMessage)
	}
	if turns[0].State != "failed" || turns[0].Error != "model call failed" {
		t.Errorf("turns[0] state/error = %q/%q", turns[0].State, turns[0].Error)
	}
	if turns[1].FinalText != "All quiet." {
		t.Errorf("turns[1].FinalText = %q", turns[1].FinalText)
	}
}

func TestRecentTurnsSessionFilter(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	for _, session := range []string{"s1", "s2", "s1"} {
		err := s.RecordTurn(&TurnRecord{
			SessionID:   session,
			UserMessage: "q",
			State:       "done",
			StartedAt:   now,
			CompletedAt: now,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.RecentTurns("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Errorf("s1 turns = %d", len(turns))
	}

	all, err := s.RecentTurns("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all turns = %d", len(all))
	}
}

func TestToolCallStats(t *testing.T) {
	s := newTestStore(t)

	now := time.Now()
	records := []ToolCallRecord{
		{SessionID: "s1", ToolName: "datadog_get_apm_services", Arguments: "{}", DurationMs: 100, StartedAt: now},
		{SessionID: "s1", ToolName: "datadog_get_apm_services", Arguments: "{}", DurationMs: 300, StartedAt: now},
		{SessionID: "s1", ToolName: "k8s_list_pods", Arguments: "{}", IsError: true, DurationMs: 50, StartedAt: now},
	}
	for i := range records {
		if err := s.RecordToolCall(&records[i]); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.ToolCallStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats["total_calls"] != 3 {
		t.Errorf("total_calls = %v", stats["total_calls"])
	}

	tools, ok := stats["tools"].(map[string]any)
	if !ok {
		t.Fatalf("tools = %T", stats["tools"])
	}
	if len(tools) != 2 {
		t.Errorf("len(tools) = %d", len(tools))
	}
}
