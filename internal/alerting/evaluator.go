package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/karthik14478/clawwatch/internal/database/models"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
)

// RuleStore supplies the rules to evaluate.
type RuleStore interface {
	FindActive() ([]*models.AlertRule, error)
}

// AlertWriter persists a fired alert and stamps the rule's cooldown in
// one transaction.
type AlertWriter interface {
	Fire(alert *models.Alert, rule *models.AlertRule, now time.Time) error
}

// EventMetrics answers windowed aggregate queries over stored events.
type EventMetrics interface {
	CountSince(since time.Time) (int64, error)
	CountKindSince(kind string, since time.Time) (int64, error)
	SumCostSince(since time.Time) (float64, error)
	SumTokensSince(since time.Time) (int64, error)
	MaxSessionEventsSince(since time.Time) (int64, error)
}

// HeartbeatSource reports when each agent was last seen. Offline
// detection needs this because absence of events produces no rows to
// query.
type HeartbeatSource interface {
	LastSeen() map[string]time.Time
}

// Evaluator runs the rule evaluation loop. It is the single writer for
// rule firing: one pass evaluates every active rule sequentially, so a
// rule can never race itself into double-firing within a cooldown.
type Evaluator struct {
	rules      RuleStore
	alerts     AlertWriter
	metrics    EventMetrics
	heartbeats HeartbeatSource
	logger     *pterm.Logger
	interval   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	statsMu     sync.Mutex
	evaluations int64
	fired       int64
	ruleErrors  int64
}

// outcome is one rule's evaluation result.
type outcome struct {
	met     bool
	title   string
	message string
}

// NewEvaluator creates a new rule evaluator
func NewEvaluator(
	rules RuleStore,
	alerts AlertWriter,
	metrics EventMetrics,
	heartbeats HeartbeatSource,
	logger *pterm.Logger,
	interval time.Duration,
) *Evaluator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Evaluator{
		rules:      rules,
		alerts:     alerts,
		metrics:    metrics,
		heartbeats: heartbeats,
		logger:     logger,
		interval:   interval,
	}
}

// Start launches the evaluation loop.
func (e *Evaluator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		e.logger.Warn("Rule evaluator already running, skipping start")
		return
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.wg.Add(1)
	go e.loop()
	e.isRunning = true
	e.logger.Info("Rule evaluator started", e.logger.Args("interval", e.interval.String()))
}

// Stop stops the evaluation loop.
func (e *Evaluator) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.isRunning {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.isRunning = false
	e.logger.Info("Rule evaluator stopped")
}

func (e *Evaluator) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.EvaluateAll(now)
		}
	}
}

// EvaluateAll runs one evaluation pass over every active rule. A rule
// that errors or is misconfigured is skipped; the rest of the pass
// continues.
func (e *Evaluator) EvaluateAll(now time.Time) {
	rules, err := e.rules.FindActive()
	if err != nil {
		e.logger.WithCaller().Error("Failed to load alert rules",
			e.logger.Args("error", err))
		return
	}

	for _, rule := range rules {
		if rule.CoolingDown(now) {
			continue
		}

		res, err := e.evaluateRule(rule, now)

		e.statsMu.Lock()
		e.evaluations++
		e.statsMu.Unlock()

		if err != nil {
			e.statsMu.Lock()
			e.ruleErrors++
			e.statsMu.Unlock()
			e.logger.WithCaller().Error("Rule evaluation failed",
				e.logger.Args("rule", rule.Name, "type", rule.Type, "error", err))
			continue
		}
		if !res.met {
			continue
		}

		if err := e.fire(rule, res, now); err != nil {
			e.logger.WithCaller().Error("Failed to fire alert",
				e.logger.Args("rule", rule.Name, "error", err))
		}
	}
}

func (e *Evaluator) fire(rule *models.AlertRule, res outcome, now time.Time) error {
	severity := rule.Severity
	if !models.ValidSeverity(severity) {
		severity = models.SeverityWarning
	}

	alert := &models.Alert{
		ID:       uuid.New().String(),
		RuleID:   rule.ID,
		Severity: severity,
		Title:    res.title,
		Message:  res.message,
		Channels: rule.Channels,
	}

	if err := e.alerts.Fire(alert, rule, now); err != nil {
		return err
	}

	e.statsMu.Lock()
	e.fired++
	e.statsMu.Unlock()

	e.logger.Info("Alert fired",
		e.logger.Args("rule", rule.Name, "severity", severity, "alert_id", alert.ID))
	return nil
}

// evaluateRule dispatches on the rule type. Unknown types and missing
// required config evaluate to condition-not-met, never to an error that
// would disable the rule.
func (e *Evaluator) evaluateRule(rule *models.AlertRule, now time.Time) (outcome, error) {
	switch rule.Type {
	case models.RuleBudgetExceeded:
		return e.evalBudgetExceeded(rule, now)
	case models.RuleAgentOffline:
		return e.evalAgentOffline(rule, now)
	case models.RuleErrorSpike:
		return e.evalErrorSpike(rule, now)
	case models.RuleSessionLoop:
		return e.evalSessionLoop(rule, now)
	case models.RuleChannelDisconnect:
		return e.evalChannelDisconnect(rule, now)
	case models.RuleCustomThreshold:
		return e.evalCustomThreshold(rule, now)
	default:
		// A type this build does not know yet. Leave the rule active
		// for a future version that does.
		e.logger.Debug("Unrecognized rule type, treating as not met",
			e.logger.Args("rule", rule.Name, "type", rule.Type))
		return outcome{}, nil
	}
}

func (e *Evaluator) evalBudgetExceeded(rule *models.AlertRule, now time.Time) (outcome, error) {
	if rule.Threshold <= 0 {
		return outcome{}, nil
	}
	window := rule.Window()
	if window <= 0 {
		window = 24 * time.Hour
	}

	spend, err := e.metrics.SumCostSince(now.Add(-window))
	if err != nil {
		return outcome{}, err
	}
	if spend <= rule.Threshold {
		return outcome{}, nil
	}
	return outcome{
		met:   true,
		title: fmt.Sprintf("Budget exceeded: %s", rule.Name),
		message: fmt.Sprintf("Spend of $%.4f over the last %s exceeds the $%.2f budget",
			spend, window.String(), rule.Threshold),
	}, nil
}

func (e *Evaluator) evalAgentOffline(rule *models.AlertRule, now time.Time) (outcome, error) {
	window := rule.Window()
	if window <= 0 {
		return outcome{}, nil
	}

	cutoff := now.Add(-window)
	offline := []string{}
	for agent, seen := range e.heartbeats.LastSeen() {
		if seen.Before(cutoff) {
			offline = append(offline, agent)
		}
	}
	if len(offline) == 0 {
		return outcome{}, nil
	}
	sort.Strings(offline)
	return outcome{
		met:   true,
		title: fmt.Sprintf("Agent offline: %s", rule.Name),
		message: fmt.Sprintf("No events from %v within the last %s",
			offline, window.String()),
	}, nil
}

func (e *Evaluator) evalErrorSpike(rule *models.AlertRule, now time.Time) (outcome, error) {
	window := rule.Window()
	if window <= 0 || rule.Threshold <= 0 {
		return outcome{}, nil
	}

	count, err := e.metrics.CountKindSince(models.EventKindError, now.Add(-window))
	if err != nil {
		return outcome{}, err
	}
	if float64(count) <= rule.Threshold {
		return outcome{}, nil
	}
	return outcome{
		met:   true,
		title: fmt.Sprintf("Error spike: %s", rule.Name),
		message: fmt.Sprintf("%d error events in the last %s (threshold %.0f)",
			count, window.String(), rule.Threshold),
	}, nil
}

func (e *Evaluator) evalSessionLoop(rule *models.AlertRule, now time.Time) (outcome, error) {
	window := rule.Window()
	if window <= 0 || rule.Threshold <= 0 {
		return outcome{}, nil
	}

	peak, err := e.metrics.MaxSessionEventsSince(now.Add(-window))
	if err != nil {
		return outcome{}, err
	}
	if float64(peak) <= rule.Threshold {
		return outcome{}, nil
	}
	return outcome{
		met:   true,
		title: fmt.Sprintf("Session loop suspected: %s", rule.Name),
		message: fmt.Sprintf("A single session produced %d events in the last %s (threshold %.0f)",
			peak, window.String(), rule.Threshold),
	}, nil
}

func (e *Evaluator) evalChannelDisconnect(rule *models.AlertRule, now time.Time) (outcome, error) {
	window := rule.Window()
	if window <= 0 {
		return outcome{}, nil
	}

	// A zero threshold means any disconnect at all is worth an alert.
	needed := rule.Threshold
	if needed < 1 {
		needed = 1
	}

	count, err := e.metrics.CountKindSince(models.EventKindDisconnect, now.Add(-window))
	if err != nil {
		return outcome{}, err
	}
	if float64(count) < needed {
		return outcome{}, nil
	}
	return outcome{
		met:   true,
		title: fmt.Sprintf("Channel disconnect: %s", rule.Name),
		message: fmt.Sprintf("%d disconnect events in the last %s",
			count, window.String()),
	}, nil
}

func (e *Evaluator) evalCustomThreshold(rule *models.AlertRule, now time.Time) (outcome, error) {
	window := rule.Window()
	if window <= 0 || rule.Metric == "" || rule.Comparison == "" {
		return outcome{}, nil
	}

	value, ok, err := e.metricValue(rule.Metric, now.Add(-window))
	if err != nil {
		return outcome{}, err
	}
	if !ok || !compare(rule.Comparison, value, rule.Threshold) {
		return outcome{}, nil
	}
	return outcome{
		met:   true,
		title: fmt.Sprintf("Threshold crossed: %s", rule.Name),
		message: fmt.Sprintf("Metric %s is %.4f over the last %s (%s %.4f)",
			rule.Metric, value, window.String(), rule.Comparison, rule.Threshold),
	}, nil
}

// metricValue resolves a named metric over a window. An unknown metric
// name reports ok=false so the rule evaluates to not met.
func (e *Evaluator) metricValue(metric string, since time.Time) (float64, bool, error) {
	switch metric {
	case models.MetricCost:
		v, err := e.metrics.SumCostSince(since)
		return v, true, err
	case models.MetricEvents:
		v, err := e.metrics.CountSince(since)
		return float64(v), true, err
	case models.MetricErrors:
		v, err := e.metrics.CountKindSince(models.EventKindError, since)
		return float64(v), true, err
	case models.MetricTokens:
		v, err := e.metrics.SumTokensSince(since)
		return float64(v), true, err
	default:
		return 0, false, nil
	}
}

func compare(comparison string, value, threshold float64) bool {
	switch comparison {
	case "gt":
		return value > threshold
	case "lt":
		return value < threshold
	case "eq":
		return value == threshold
	default:
		return false
	}
}

// GetStatus returns evaluation counters for the status API.
func (e *Evaluator) GetStatus() map[string]interface{} {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return map[string]interface{}{
		"evaluations": e.evaluations,
		"fired":       e.fired,
		"rule_errors": e.ruleErrors,
	}
}
