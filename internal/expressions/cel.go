package expressions

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/rendis/flowbuilder/pkg/schema"
)

// CELEngine checks and evaluates edge condition expressions with Google's
// Common Expression Language. Conditions are usually stored wrapped as
// ${...} or #{...}; the wrapper is stripped before parsing.
// Thread-safe: compiled programs are cached and reused across goroutines.
type CELEngine struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEngine creates a CEL engine with an empty base environment. Variables
// are declared per evaluation from the keys of the supplied data.
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Name returns the engine identifier.
func (e *CELEngine) Name() string {
	return "cel"
}

// CheckCondition reports whether expression is syntactically valid CEL.
// Identifiers are not resolved, so conditions over process variables unknown
// to the editor still pass.
func (e *CELEngine) CheckCondition(expression string) error {
	body := UnwrapCondition(expression)
	if body == "" {
		return schema.NewError(schema.ErrCodeValidation, "empty condition expression")
	}
	if _, issues := e.env.Parse(body); issues != nil && issues.Err() != nil {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"CEL syntax error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": expression})
	}
	return nil
}

// Evaluate compiles (or retrieves from cache) a condition and evaluates it
// with every key of data declared as a dynamic variable.
func (e *CELEngine) Evaluate(ctx context.Context, expression string, data map[string]any) (any, error) {
	body := UnwrapCondition(expression)
	if body == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty CEL expression")
	}
	if data == nil {
		data = map[string]any{}
	}

	prg, err := e.getOrCompile(body, data)
	if err != nil {
		return nil, err
	}

	out, _, err := prg.ContextEval(ctx, data)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}
	return out.Value(), nil
}

// EvaluateBool evaluates a condition that must produce a boolean.
func (e *CELEngine) EvaluateBool(ctx context.Context, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeValidation,
			"condition %q produced %T, want bool", expression, out)
	}
	return b, nil
}

// getOrCompile returns a cached program for the expression and variable set.
func (e *CELEngine) getOrCompile(body string, data map[string]any) (cel.Program, error) {
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	slices.Sort(names)
	key := strings.Join(names, ",") + "|" + body

	e.mu.RLock()
	if prg, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := e.cache[key]; ok {
		return prg, nil
	}

	opts := make([]cel.EnvOption, 0, len(names))
	for _, n := range names {
		opts = append(opts, cel.Variable(n, cel.DynType))
	}
	env, err := e.env.Extend(opts...)
	if err != nil {
		return nil, fmt.Errorf("extend CEL environment: %w", err)
	}

	ast, issues := env.Compile(body)
	if issues != nil && issues.Err() != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL compile error in %q: %s", body, issues.Err().Error()).
			WithCause(issues.Err()).
			WithDetails(map[string]any{"expression": body})
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"CEL program error for %q: %s", body, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": body})
	}

	e.cache[key] = prg
	return prg, nil
}

// UnwrapCondition strips a ${...} or #{...} wrapper and surrounding space.
func UnwrapCondition(expression string) string {
	s := strings.TrimSpace(expression)
	for _, open := range []string{"${", "#{"} {
		if strings.HasPrefix(s, open) && strings.HasSuffix(s, "}") {
			return strings.TrimSpace(s[len(open) : len(s)-1])
		}
	}
	return s
}

var _ Engine = (*CELEngine)(nil)
