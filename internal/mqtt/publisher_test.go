package mqtt

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/halverson/scout-sre-agent/internal/config"
)

type fakeStats struct{}

func (fakeStats) Uptime() time.Duration       { return 90 * time.Second }
func (fakeStats) Version() string             { return "1.2.3" }
func (fakeStats) Model() string               { return "claude-sonnet-4-20250514" }
func (fakeStats) ActiveSessions() int         { return 3 }
func (fakeStats) TurnTotals() (int64, int64)  { return 42, 2 }
func (fakeStats) TokenTotals() (int64, int64) { return 1000, 500 }

func newTestPublisher() *Publisher {
	cfg := config.MQTTConfig{
		Broker:     "mqtt://broker:1883",
		DeviceName: "scout-prod",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, fakeStats{}, logger)
}

func TestTopics(t *testing.T) {
	p := newTestPublisher()

	if got := p.availabilityTopic(); got != "scout/scout-prod/availability" {
		t.Errorf("availabilityTopic = %q", got)
	}
	if got := p.stateTopic("uptime"); got != "scout/scout-prod/uptime/state" {
		t.Errorf("stateTopic = %q", got)
	}
}

func TestBuildStates(t *testing.T) {
	p := newTestPublisher()

	states := p.buildStates()
	want := map[string]string{
		"uptime":          "1m30s",
		"version":         "1.2.3",
		"model":           "claude-sonnet-4-20250514",
		"active_sessions": "3",
		"turns_total":     "42",
		"turns_failed":    "2",
		"tokens_total":    "1500",
	}
	for k, v := range want {
		if states[k] != v {
			t.Errorf("states[%q] = %q, want %q", k, states[k], v)
		}
	}
	if len(states) != len(want) {
		t.Errorf("len(states) = %d, want %d", len(states), len(want))
	}
}
