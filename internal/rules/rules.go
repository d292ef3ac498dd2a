package rules

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"zonewatch/internal/config"
	"zonewatch/internal/residency"
)

// Alert is one rule that matched a completed residency.
type Alert struct {
	RuleID   string
	Severity string
	Res      residency.Residency
}

type compiledRule struct {
	cfg     config.RuleConfig
	program *vm.Program
}

// Engine evaluates configured alert expressions against completed
// residencies. Expressions see the fields of the residency and must yield a
// boolean; a true result raises the alert.
type Engine struct {
	rules  []compiledRule
	logger zerolog.Logger
}

// NewEngine compiles all rule expressions. A rule that does not compile is
// a configuration error.
func NewEngine(cfgs []config.RuleConfig, logger zerolog.Logger) (*Engine, error) {
	engine := &Engine{logger: logger.With().Str("component", "rules").Logger()}
	for _, cfg := range cfgs {
		if cfg.ID == "" {
			return nil, fmt.Errorf("rules: rule id must not be empty")
		}
		if strings.TrimSpace(cfg.Expression) == "" {
			return nil, fmt.Errorf("rules: rule %s: expression must not be empty", cfg.ID)
		}
		program, err := expr.Compile(cfg.Expression,
			expr.Env(envTemplate()),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("rules: rule %s: compile: %w", cfg.ID, err)
		}
		engine.rules = append(engine.rules, compiledRule{cfg: cfg, program: program})
	}
	return engine, nil
}

func envTemplate() map[string]interface{} {
	return map[string]interface{}{
		"object_id":       uint32(0),
		"dwell_seconds":   float64(0),
		"average_seconds": float64(0),
		"zone_id":         0,
		"zone_name":       "",
		"has_zone":        false,
	}
}

func environment(res residency.Residency) map[string]interface{} {
	return map[string]interface{}{
		"object_id":       res.ObjectID,
		"dwell_seconds":   res.Dwell,
		"average_seconds": res.Average,
		"zone_id":         res.ZoneID,
		"zone_name":       res.ZoneName,
		"has_zone":        res.HasZone,
	}
}

// Evaluate runs every rule against the residency, logs matches at the
// configured severity, and returns the raised alerts. Evaluation errors are
// logged per rule and do not stop the remaining rules.
func (e *Engine) Evaluate(res residency.Residency) []Alert {
	if e == nil || len(e.rules) == 0 {
		return nil
	}
	env := environment(res)
	var alerts []Alert
	for _, rule := range e.rules {
		result, err := vm.Run(rule.program, env)
		if err != nil {
			e.logger.Error().Err(err).Str("rule", rule.cfg.ID).Msg("rule evaluation failed")
			continue
		}
		matched, ok := result.(bool)
		if !ok || !matched {
			continue
		}
		severity := rule.cfg.Severity
		if severity == "" {
			severity = "warn"
		}
		e.logger.WithLevel(severityLevel(severity)).
			Str("rule", rule.cfg.ID).
			Uint32("object", res.ObjectID).
			Float64("dwell_seconds", res.Dwell).
			Str("zone", res.ZoneName).
			Msg("residency rule matched")
		alerts = append(alerts, Alert{RuleID: rule.cfg.ID, Severity: severity, Res: res})
	}
	return alerts
}

// Len returns the number of compiled rules.
func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}

func severityLevel(severity string) zerolog.Level {
	switch strings.ToLower(severity) {
	case "info":
		return zerolog.InfoLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
