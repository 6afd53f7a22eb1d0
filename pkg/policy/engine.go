// Package policy evaluates user-defined alert rules against snapshot windows.
// Rules are expr-lang boolean expressions; a matching rule becomes an anomaly.
package policy

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"

	"intelligent-resource-analyzer/pkg/models"
)

// idNamespace scopes the name-based IDs of rule anomalies
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("intelligent-resource-analyzer/rule"))

// metricPrefix marks the metric name of rule anomalies
const metricPrefix = "rule:"

// RuleName returns the rule that produced an anomaly, if any
func RuleName(a models.Anomaly) (string, bool) {
	name, ok := strings.CutPrefix(a.MetricName, metricPrefix)
	if !ok {
		return "", false
	}
	return name, true
}

// Engine is the rule evaluation engine. It satisfies anomaly.RuleEvaluator.
type Engine struct {
	// rules contains all loaded rules in declaration order
	rules []Rule

	// compiledPrograms caches compiled expressions by condition text
	compiledPrograms map[string]*vm.Program

	// mu protects rules and compiledPrograms
	mu sync.RWMutex
}

// NewEngine creates an engine and compiles every rule. All invalid rules are
// reported together.
func NewEngine(rules []Rule) (*Engine, error) {
	e := &Engine{compiledPrograms: make(map[string]*vm.Program)}
	if err := e.setRules(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadRules replaces the rules with those of a YAML rule file
func (e *Engine) LoadRules(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read rule file: %w", err)
	}
	if err := e.LoadRulesFromBytes(data); err != nil {
		return err
	}
	klog.Infof("Loaded %d alert rules from %s", len(e.Rules()), filepath)
	return nil
}

// LoadRulesFromBytes replaces the rules with those of a YAML document
func (e *Engine) LoadRulesFromBytes(data []byte) error {
	var ruleSet RuleSet
	if err := yaml.UnmarshalStrict(data, &ruleSet); err != nil {
		return fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return e.setRules(ruleSet.Rules)
}

func (e *Engine) setRules(rules []Rule) error {
	var errs error
	validated := make([]Rule, 0, len(rules))
	programs := make(map[string]*vm.Program, len(rules))
	seen := make(map[string]bool, len(rules))

	for i, r := range rules {
		if r.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("rule at index %d has no name", i))
			continue
		}
		if seen[r.Name] {
			errs = multierr.Append(errs, fmt.Errorf("rule %s is declared twice", r.Name))
			continue
		}
		seen[r.Name] = true

		r = withDefaults(r)
		if err := validateRule(r); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		program, err := compile(r.Condition)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %s: %w", r.Name, err))
			continue
		}
		programs[r.Condition] = program
		validated = append(validated, r)
	}
	if errs != nil {
		return errs
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = validated
	e.compiledPrograms = programs
	return nil
}

// compile type-checks a condition against the shape of the environment
func compile(condition string) (*vm.Program, error) {
	program, err := expr.Compile(condition, expr.Env(EvaluationContext{}.ToExprEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", err)
	}
	return program, nil
}

// Evaluate runs every enabled rule against a chronological window and
// returns one anomaly per matching rule. Rules that fail to evaluate are
// skipped.
func (e *Engine) Evaluate(service string, snaps []models.Snapshot, at time.Time) []models.Anomaly {
	if len(snaps) == 0 {
		return nil
	}

	ctx := NewEvaluationContext(service, snaps, at)
	env := ctx.ToExprEnv()
	observed := snaps[len(snaps)-1].Timestamp.UTC().Format(time.RFC3339Nano)

	var anomalies []models.Anomaly
	for _, rule := range e.Rules() {
		if !rule.Enabled {
			continue
		}

		matches, err := e.evaluateCondition(rule.Condition, env)
		if err != nil {
			klog.Warningf("Failed to evaluate rule %s for %s: %v", rule.Name, service, err)
			continue
		}
		if !matches {
			continue
		}

		klog.V(2).Infof("Rule %s matched for service %s", rule.Name, service)
		actual, expected := observedValue(ctx, rule.MetricType)
		metricName := metricPrefix + rule.Name
		anomalies = append(anomalies, models.Anomaly{
			ID:            uuid.NewSHA1(idNamespace, []byte(service+"|"+metricName+"|"+observed)).String(),
			Service:       service,
			MetricType:    rule.MetricType,
			MetricName:    metricName,
			AnomalyType:   rule.AnomalyType,
			Severity:      rule.Severity,
			ActualValue:   actual,
			ExpectedValue: expected,
			DetectedAt:    at,
			Description:   fmt.Sprintf("Rule '%s' matched: %s", rule.Name, rule.Description),
		})
	}
	return anomalies
}

// evaluateCondition runs a cached program, compiling conditions that were
// never seen
func (e *Engine) evaluateCondition(condition string, env map[string]interface{}) (bool, error) {
	e.mu.RLock()
	program, exists := e.compiledPrograms[condition]
	e.mu.RUnlock()

	if !exists {
		compiled, err := compile(condition)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.compiledPrograms[condition] = compiled
		e.mu.Unlock()

		program = compiled
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate condition: %w", err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to boolean: %T", output)
	}
	return result, nil
}

// Rules returns the loaded rules
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rules
}
