// Package rules provides the CEL-Go engine for store override rules.
//
// Override rules run after the scoring engine and can only escalate the
// recommendation (PROCEED -> REVIEW -> BLOCK_COD). Score and tier are fixed
// by the scoring policy and are read-only inputs here.
package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/returnsx/returnsx/internal/domain"
)

// Engine compiles and evaluates store override rules.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledRule // keyed by rule ID
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.OverrideRule
	Program cel.Program
}

// NewEngine creates an override rule engine.
func NewEngine() (*Engine, error) {
	// CEL environment exposing the computed assessment and the raw profile
	// counters it was derived from.
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("recommendation", cel.StringType),
		cel.Variable("total_orders", cel.IntType),
		cel.Variable("failed_attempts", cel.IntType),
		cel.Variable("successful_deliveries", cel.IntType),
		cel.Variable("total_value", cel.DoubleType),
		cel.Variable("order_value", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.OverrideRule) error {
	if cfg == nil {
		return fmt.Errorf("override rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiled[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.OverrideRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiled = newRules
	return nil
}

// ReloadStoreRules replaces the loaded rules belonging to one store, leaving
// other stores' rules untouched.
func (e *Engine) ReloadStoreRules(storeID string, configs []*domain.OverrideRule) error {
	compiled := make([]*CompiledRule, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, rule := range e.compiled {
		if rule.Config.StoreID == storeID {
			delete(e.compiled, id)
		}
	}
	for _, c := range compiled {
		e.compiled[c.Config.ID] = c
	}
	return nil
}

// Apply evaluates all rules loaded for the assessment's store and returns the
// possibly-escalated recommendation plus the ID of the rule that set it.
// Evaluation errors in a single rule are skipped rather than failing the
// assessment; a broken override must not take checkout down.
func (e *Engine) Apply(a *domain.RiskAssessment, p *domain.CustomerProfile, orderValue float64) (domain.Recommendation, string) {
	e.mu.RLock()
	matching := make([]*CompiledRule, 0, len(e.compiled))
	for _, rule := range e.compiled {
		if rule.Config.StoreID == "" || rule.Config.StoreID == a.StoreID {
			matching = append(matching, rule)
		}
	}
	e.mu.RUnlock()

	if len(matching) == 0 {
		return a.Recommendation, ""
	}

	activation := map[string]any{
		"score":                 a.Score,
		"tier":                  string(a.Tier),
		"confidence":            a.Confidence,
		"recommendation":        string(a.Recommendation),
		"total_orders":          int64(p.TotalOrders),
		"failed_attempts":       int64(p.FailedAttempts),
		"successful_deliveries": int64(p.SuccessfulDeliveries),
		"total_value":           p.TotalValue,
		"order_value":           orderValue,
	}

	rec := a.Recommendation
	matchedID := ""

	for _, rule := range matching {
		out, _, err := rule.Program.Eval(activation)
		if err != nil {
			continue
		}
		hit, ok := out.(types.Bool)
		if !ok || !bool(hit) {
			continue
		}
		if rule.Config.Action.MoreSevere(rec) {
			rec = rule.Config.Action
			matchedID = rule.Config.ID
		}
	}

	return rec, matchedID
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.OverrideRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverrideRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.OverrideRule) (*CompiledRule, error) {
	switch cfg.Action {
	case domain.RecommendReview, domain.RecommendBlockCOD:
	default:
		return nil, fmt.Errorf("rule %s: action must be REVIEW or BLOCK_COD, got %q", cfg.ID, cfg.Action)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
