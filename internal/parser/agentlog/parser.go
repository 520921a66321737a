package agentlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pterm/pterm"
)

// Event is one structured activity/cost record parsed from an agent
// session log line.
type Event struct {
	Timestamp    time.Time
	AgentID      string
	SessionID    string
	Kind         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	Message      string
}

// rawEvent mirrors the JSONL wire shape emitted by agent processes.
// Timestamps arrive as RFC3339 strings or unix milliseconds.
type rawEvent struct {
	TS           json.RawMessage `json:"ts"`
	AgentID      string          `json:"agent_id"`
	SessionID    string          `json:"session_id"`
	Kind         string          `json:"kind"`
	Model        string          `json:"model"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	CostUSD      float64         `json:"cost_usd"`
	Message      string          `json:"message"`
}

var validKinds = map[string]bool{
	"usage":      true,
	"error":      true,
	"disconnect": true,
	"heartbeat":  true,
}

// Parser parses agent session JSONL lines.
type Parser struct {
	logger *pterm.Logger
}

// NewParser creates a new agent log parser
func NewParser(logger *pterm.Logger) *Parser {
	return &Parser{logger: logger}
}

func (p *Parser) Name() string {
	return "agentlog"
}

// CanParse performs a cheap structural check without full decoding.
func (p *Parser) CanParse(line string) bool {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) < 2 || trimmed[0] != '{' {
		return false
	}
	return strings.Contains(trimmed, `"ts"`) && strings.Contains(trimmed, `"kind"`)
}

// Parse decodes a single JSONL event line. A malformed line returns an
// error; callers skip it and continue with the rest of the batch.
func (p *Parser) Parse(line string) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &raw); err != nil {
		return nil, fmt.Errorf("invalid event line: %w", err)
	}

	if !validKinds[raw.Kind] {
		return nil, fmt.Errorf("unknown event kind %q", raw.Kind)
	}

	ts, err := parseTimestamp(raw.TS)
	if err != nil {
		return nil, err
	}

	if raw.AgentID == "" {
		return nil, fmt.Errorf("event missing agent_id")
	}

	return &Event{
		Timestamp:    ts,
		AgentID:      raw.AgentID,
		SessionID:    raw.SessionID,
		Kind:         raw.Kind,
		Model:        raw.Model,
		InputTokens:  raw.InputTokens,
		OutputTokens: raw.OutputTokens,
		CostUSD:      raw.CostUSD,
		Message:      raw.Message,
	}, nil
}

// parseTimestamp accepts RFC3339 strings and unix-millisecond numbers.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("event missing ts")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		ts, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid ts %q: %w", str, err)
		}
		return ts, nil
	}

	var millis int64
	if err := json.Unmarshal(raw, &millis); err == nil && millis > 0 {
		return time.UnixMilli(millis).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("invalid ts value: %s", string(raw))
}
