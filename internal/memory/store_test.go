package memory

import (
	"testing"
)

func TestAppendPreservesOrder(t *testing.T) {
	s := NewStore()
	s.Append("s1", Message{Role: "user", Content: "first"})
	s.Append("s1", Message{Role: "assistant", Content: "second"})
	s.Append("s1", Message{Role: "user", Content: "third"})

	msgs := s.Messages("s1")
	if len(msgs) != 3 {
		t.Fatalf("len = %d", len(msgs))
	}
	for i, want := range []string{"first", "second", "third"} {
		if msgs[i].Content != want {
			t.Errorf("msgs[%d].Content = %q, want %q", i, msgs[i].Content, want)
		}
	}
	for _, m := range msgs {
		if m.Timestamp.IsZero() {
			t.Error("timestamp not set on append")
		}
	}
}

func TestMessagesCopyIsolation(t *testing.T) {
	s := NewStore()
	s.Append("s1", Message{Role: "user", Content: "original"})

	msgs := s.Messages("s1")
	msgs[0].Content = "mutated"

	if got := s.Messages("s1")[0].Content; got != "original" {
		t.Errorf("store content = %q, want original", got)
	}
}

func TestMessagesUnknownSession(t *testing.T) {
	s := NewStore()
	if msgs := s.Messages("nope"); len(msgs) != 0 {
		t.Errorf("len = %d, want 0", len(msgs))
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore()
	if s.Snapshot("nope") != nil {
		t.Error("snapshot of unseen session should be nil")
	}

	s.Append("s1", Message{Role: "user", Content: "hi"})
	snap := s.Snapshot("s1")
	if snap == nil || snap.ID != "s1" || len(snap.Messages) != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.CreatedAt.IsZero() || snap.UpdatedAt.IsZero() {
		t.Error("snapshot timestamps not set")
	}

	snap.Messages[0].Content = "mutated"
	if got := s.Messages("s1")[0].Content; got != "hi" {
		t.Errorf("store content = %q after snapshot mutation", got)
	}
}

func TestClearAndLen(t *testing.T) {
	s := NewStore()
	s.Append("s1", Message{Role: "user", Content: "hi"})
	s.Append("s2", Message{Role: "user", Content: "hi"})
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}

	s.Clear("s1")
	if s.Len() != 1 {
		t.Errorf("Len after Clear = %d", s.Len())
	}
	if len(s.Messages("s1")) != 0 {
		t.Error("cleared session still has messages")
	}

	// Clearing an unknown session is a no-op.
	s.Clear("nope")
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestStats(t *testing.T) {
	s := NewStore()
	s.Append("s1", Message{Role: "user", Content: "one"})
	s.Append("s1", Message{Role: "assistant", Content: "two"})
	s.Append("s2", Message{Role: "user", Content: "three"})

	stats := s.Stats()
	if stats["sessions"] != 2 {
		t.Errorf("sessions = %v", stats["sessions"])
	}
	if stats["messages"] != 3 {
		t.Errorf("messages = %v", stats["messages"])
	}
}
