package agentlog

import (
	"testing"
	"time"

	"github.com/pterm/pterm"
)

func TestParser_CanParse_Valid(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	line := `{"ts":"2026-08-29T10:15:00Z","agent_id":"agent-1","session_id":"s-42","kind":"usage","model":"sonnet","input_tokens":1200,"output_tokens":340,"cost_usd":0.0184}`

	if !parser.CanParse(line) {
		t.Error("Expected parser to accept a JSONL event line")
	}
}

func TestParser_CanParse_Invalid(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	tests := []string{
		"",
		"plain text line",
		`{"no_ts_field":true}`,
		`192.168.1.1 - some access log`,
	}

	for _, tc := range tests {
		if parser.CanParse(tc) {
			t.Errorf("Expected parser to reject line: %q", tc)
		}
	}
}

func TestParser_ParseUsage(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	line := `{"ts":"2026-08-29T10:15:00Z","agent_id":"agent-1","session_id":"s-42","kind":"usage","model":"sonnet","input_tokens":1200,"output_tokens":340,"cost_usd":0.0184,"message":"tool call"}`

	event, err := parser.Parse(line)
	if err != nil {
		t.Fatalf("Failed to parse usage event: %v", err)
	}

	if event.AgentID != "agent-1" {
		t.Errorf("Expected AgentID 'agent-1', got '%s'", event.AgentID)
	}
	if event.SessionID != "s-42" {
		t.Errorf("Expected SessionID 's-42', got '%s'", event.SessionID)
	}
	if event.Kind != "usage" {
		t.Errorf("Expected Kind 'usage', got '%s'", event.Kind)
	}
	if event.Model != "sonnet" {
		t.Errorf("Expected Model 'sonnet', got '%s'", event.Model)
	}
	if event.InputTokens != 1200 {
		t.Errorf("Expected InputTokens 1200, got %d", event.InputTokens)
	}
	if event.OutputTokens != 340 {
		t.Errorf("Expected OutputTokens 340, got %d", event.OutputTokens)
	}
	if event.CostUSD != 0.0184 {
		t.Errorf("Expected CostUSD 0.0184, got %f", event.CostUSD)
	}

	expected, _ := time.Parse(time.RFC3339, "2026-08-29T10:15:00Z")
	if !event.Timestamp.Equal(expected) {
		t.Errorf("Expected Timestamp %v, got %v", expected, event.Timestamp)
	}
}

func TestParser_ParseUnixMillisTimestamp(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	line := `{"ts":1787000000000,"agent_id":"agent-2","kind":"heartbeat"}`

	event, err := parser.Parse(line)
	if err != nil {
		t.Fatalf("Failed to parse heartbeat event: %v", err)
	}

	if !event.Timestamp.Equal(time.UnixMilli(1787000000000).UTC()) {
		t.Errorf("Expected unix-millis timestamp, got %v", event.Timestamp)
	}
	if event.Kind != "heartbeat" {
		t.Errorf("Expected Kind 'heartbeat', got '%s'", event.Kind)
	}
}

func TestParser_ParseErrors(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	tests := []struct {
		name string
		line string
	}{
		{name: "not json", line: `not json at all`},
		{name: "unknown kind", line: `{"ts":"2026-08-29T10:15:00Z","agent_id":"a","kind":"mystery"}`},
		{name: "missing ts", line: `{"agent_id":"a","kind":"usage"}`},
		{name: "bad ts", line: `{"ts":"yesterday","agent_id":"a","kind":"usage"}`},
		{name: "missing agent", line: `{"ts":"2026-08-29T10:15:00Z","kind":"usage"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parser.Parse(tc.line); err == nil {
				t.Errorf("Expected error for line: %q", tc.line)
			}
		})
	}
}

func TestParser_ParseDisconnect(t *testing.T) {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelTrace)
	parser := NewParser(logger)

	line := `{"ts":"2026-08-29T11:00:00Z","agent_id":"agent-3","session_id":"s-7","kind":"disconnect","message":"transport closed"}`

	event, err := parser.Parse(line)
	if err != nil {
		t.Fatalf("Failed to parse disconnect event: %v", err)
	}
	if event.Kind != "disconnect" {
		t.Errorf("Expected Kind 'disconnect', got '%s'", event.Kind)
	}
	if event.Message != "transport closed" {
		t.Errorf("Expected Message 'transport closed', got '%s'", event.Message)
	}
}
