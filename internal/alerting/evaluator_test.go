package alerting

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/pterm/pterm"
)

func newTestLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelError)
}

type fakeRuleStore struct {
	rules []*models.AlertRule
	err   error
}

func (s *fakeRuleStore) FindActive() ([]*models.AlertRule, error) {
	return s.rules, s.err
}

type fakeAlertWriter struct {
	fired []*models.Alert
	err   error
}

func (w *fakeAlertWriter) Fire(alert *models.Alert, rule *models.AlertRule, now time.Time) error {
	if w.err != nil {
		return w.err
	}
	rule.LastTriggeredAt = &now
	w.fired = append(w.fired, alert)
	return nil
}

type fakeMetrics struct {
	events      int64
	errorEvents int64
	disconnects int64
	maxSession  int64
	cost        float64
	tokens      int64
	kindErr     error
}

func (m *fakeMetrics) CountSince(since time.Time) (int64, error) { return m.events, nil }
func (m *fakeMetrics) CountKindSince(kind string, since time.Time) (int64, error) {
	if m.kindErr != nil {
		return 0, m.kindErr
	}
	switch kind {
	case models.EventKindError:
		return m.errorEvents, nil
	case models.EventKindDisconnect:
		return m.disconnects, nil
	}
	return 0, nil
}
func (m *fakeMetrics) SumCostSince(since time.Time) (float64, error) { return m.cost, nil }
func (m *fakeMetrics) SumTokensSince(since time.Time) (int64, error) { return m.tokens, nil }
func (m *fakeMetrics) MaxSessionEventsSince(since time.Time) (int64, error) {
	return m.maxSession, nil
}

type fakeHeartbeats struct {
	seen map[string]time.Time
}

func (h *fakeHeartbeats) LastSeen() map[string]time.Time { return h.seen }

func newTestEvaluator(rules *fakeRuleStore, alerts *fakeAlertWriter, metrics *fakeMetrics, hb *fakeHeartbeats) *Evaluator {
	if metrics == nil {
		metrics = &fakeMetrics{}
	}
	if hb == nil {
		hb = &fakeHeartbeats{seen: map[string]time.Time{}}
	}
	return NewEvaluator(rules, alerts, metrics, hb, newTestLogger(), time.Second)
}

func TestEvaluator_BudgetExceededFires(t *testing.T) {
	rule := &models.AlertRule{
		ID:            1,
		Name:          "daily budget",
		Type:          models.RuleBudgetExceeded,
		Threshold:     10,
		WindowMinutes: 1440,
		Severity:      models.SeverityCritical,
		Channels:      models.EncodeChannelIDs([]uint{3}),
		IsActive:      true,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{cost: 12.5}, nil)

	eval.EvaluateAll(time.Now())

	if len(alerts.fired) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.fired))
	}
	alert := alerts.fired[0]
	if alert.Severity != models.SeverityCritical {
		t.Errorf("Expected critical severity, got %s", alert.Severity)
	}
	if alert.RuleID != 1 {
		t.Errorf("Expected rule ID 1, got %d", alert.RuleID)
	}
	if alert.ID == "" {
		t.Error("Expected a generated alert ID")
	}
	if got := alert.ChannelIDs(); len(got) != 1 || got[0] != 3 {
		t.Errorf("Expected channel list [3], got %v", got)
	}
	if rule.LastTriggeredAt == nil {
		t.Error("Expected last_triggered_at to be stamped on fire")
	}
}

func TestEvaluator_BudgetUnderThresholdDoesNotFire(t *testing.T) {
	rule := &models.AlertRule{
		ID: 1, Name: "daily budget", Type: models.RuleBudgetExceeded,
		Threshold: 10, WindowMinutes: 1440, IsActive: true,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{cost: 9.99}, nil)

	eval.EvaluateAll(time.Now())

	if len(alerts.fired) != 0 {
		t.Fatalf("Expected no alerts, got %d", len(alerts.fired))
	}
}

func TestEvaluator_CooldownBlocksRefire(t *testing.T) {
	now := time.Now()
	recent := now.Add(-5 * time.Minute)
	rule := &models.AlertRule{
		ID: 1, Name: "daily budget", Type: models.RuleBudgetExceeded,
		Threshold: 10, WindowMinutes: 1440, CooldownMinutes: 10,
		IsActive: true, LastTriggeredAt: &recent,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{cost: 100}, nil)

	eval.EvaluateAll(now)
	if len(alerts.fired) != 0 {
		t.Fatalf("Rule fired during cooldown: %d alerts", len(alerts.fired))
	}

	// Past the cooldown the same condition fires again.
	expired := now.Add(-11 * time.Minute)
	rule.LastTriggeredAt = &expired
	eval.EvaluateAll(now)
	if len(alerts.fired) != 1 {
		t.Fatalf("Expected 1 alert after cooldown expiry, got %d", len(alerts.fired))
	}
}

func TestEvaluator_AgentOffline(t *testing.T) {
	now := time.Now()
	hb := &fakeHeartbeats{seen: map[string]time.Time{
		"agent-quiet": now.Add(-10 * time.Minute),
		"agent-busy":  now.Add(-30 * time.Second),
	}}
	rule := &models.AlertRule{
		ID: 2, Name: "offline watch", Type: models.RuleAgentOffline,
		WindowMinutes: 5, IsActive: true,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, nil, hb)

	eval.EvaluateAll(now)

	if len(alerts.fired) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.fired))
	}
	msg := alerts.fired[0].Message
	if !strings.Contains(msg, "agent-quiet") {
		t.Errorf("Expected offline agent in message, got %q", msg)
	}
	if strings.Contains(msg, "agent-busy") {
		t.Errorf("Healthy agent named in message: %q", msg)
	}
}

func TestEvaluator_MissingConfigIsNotMet(t *testing.T) {
	tests := []struct {
		name string
		rule *models.AlertRule
	}{
		{"budget without threshold", &models.AlertRule{
			Type: models.RuleBudgetExceeded, WindowMinutes: 60, IsActive: true,
		}},
		{"error spike without window", &models.AlertRule{
			Type: models.RuleErrorSpike, Threshold: 5, IsActive: true,
		}},
		{"custom threshold without comparison", &models.AlertRule{
			Type: models.RuleCustomThreshold, Metric: models.MetricCost,
			Threshold: 1, WindowMinutes: 60, IsActive: true,
		}},
		{"custom threshold with unknown metric", &models.AlertRule{
			Type: models.RuleCustomThreshold, Metric: "latency", Comparison: "gt",
			Threshold: 1, WindowMinutes: 60, IsActive: true,
		}},
		{"unrecognized rule type", &models.AlertRule{
			Type: "anomaly_zscore", Threshold: 1, WindowMinutes: 60, IsActive: true,
		}},
	}

	metrics := &fakeMetrics{cost: 1000, errorEvents: 1000, events: 1000}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			alerts := &fakeAlertWriter{}
			eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{tc.rule}}, alerts, metrics, nil)
			eval.EvaluateAll(time.Now())
			if len(alerts.fired) != 0 {
				t.Errorf("Misconfigured rule fired %d alerts", len(alerts.fired))
			}
		})
	}
}

func TestEvaluator_RuleErrorDoesNotAbortPass(t *testing.T) {
	spiky := &models.AlertRule{
		ID: 1, Name: "spike", Type: models.RuleErrorSpike,
		Threshold: 1, WindowMinutes: 5, IsActive: true,
	}
	budget := &models.AlertRule{
		ID: 2, Name: "budget", Type: models.RuleBudgetExceeded,
		Threshold: 10, WindowMinutes: 1440, IsActive: true,
	}
	alerts := &fakeAlertWriter{}
	metrics := &fakeMetrics{cost: 50, kindErr: errors.New("query timeout")}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{spiky, budget}}, alerts, metrics, nil)

	eval.EvaluateAll(time.Now())

	if len(alerts.fired) != 1 || alerts.fired[0].RuleID != 2 {
		t.Fatalf("Expected the budget rule to fire despite the spike rule erroring, got %v", alerts.fired)
	}
	status := eval.GetStatus()
	if status["rule_errors"].(int64) != 1 {
		t.Errorf("Expected 1 rule error, got %v", status["rule_errors"])
	}
}

func TestEvaluator_SessionLoop(t *testing.T) {
	rule := &models.AlertRule{
		ID: 1, Name: "loop guard", Type: models.RuleSessionLoop,
		Threshold: 100, WindowMinutes: 10, IsActive: true,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{maxSession: 150}, nil)

	eval.EvaluateAll(time.Now())

	if len(alerts.fired) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.fired))
	}
}

func TestEvaluator_ChannelDisconnectZeroThresholdFiresOnAny(t *testing.T) {
	tests := []struct {
		name        string
		threshold   float64
		disconnects int64
		wantFire    bool
	}{
		{"zero threshold, one disconnect", 0, 1, true},
		{"zero threshold, quiet", 0, 0, false},
		{"at threshold", 3, 3, true},
		{"below threshold", 3, 2, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := &models.AlertRule{
				ID: 1, Name: "link watch", Type: models.RuleChannelDisconnect,
				Threshold: tc.threshold, WindowMinutes: 15, IsActive: true,
			}
			alerts := &fakeAlertWriter{}
			eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{disconnects: tc.disconnects}, nil)
			eval.EvaluateAll(time.Now())

			fired := len(alerts.fired) == 1
			if fired != tc.wantFire {
				t.Errorf("Threshold %v with %d disconnects: fired=%v, want %v",
					tc.threshold, tc.disconnects, fired, tc.wantFire)
			}
		})
	}
}

func TestEvaluator_CustomThresholdComparisons(t *testing.T) {
	tests := []struct {
		name       string
		comparison string
		value      float64
		threshold  float64
		wantFire   bool
	}{
		{"gt above", "gt", 11, 10, true},
		{"gt equal", "gt", 10, 10, false},
		{"lt below", "lt", 5, 10, true},
		{"lt above", "lt", 15, 10, false},
		{"eq match", "eq", 10, 10, true},
		{"unknown comparison", "gte", 11, 10, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := &models.AlertRule{
				ID: 1, Name: "custom", Type: models.RuleCustomThreshold,
				Metric: models.MetricCost, Comparison: tc.comparison,
				Threshold: tc.threshold, WindowMinutes: 60, IsActive: true,
			}
			alerts := &fakeAlertWriter{}
			eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{cost: tc.value}, nil)
			eval.EvaluateAll(time.Now())

			fired := len(alerts.fired) == 1
			if fired != tc.wantFire {
				t.Errorf("Comparison %s %v vs %v: fired=%v, want %v",
					tc.comparison, tc.value, tc.threshold, fired, tc.wantFire)
			}
		})
	}
}

func TestEvaluator_InvalidSeverityDefaultsToWarning(t *testing.T) {
	rule := &models.AlertRule{
		ID: 1, Name: "budget", Type: models.RuleBudgetExceeded,
		Threshold: 10, WindowMinutes: 1440, Severity: "urgent", IsActive: true,
	}
	alerts := &fakeAlertWriter{}
	eval := newTestEvaluator(&fakeRuleStore{rules: []*models.AlertRule{rule}}, alerts, &fakeMetrics{cost: 50}, nil)

	eval.EvaluateAll(time.Now())

	if len(alerts.fired) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.fired))
	}
	if alerts.fired[0].Severity != models.SeverityWarning {
		t.Errorf("Expected warning fallback, got %s", alerts.fired[0].Severity)
	}
}
