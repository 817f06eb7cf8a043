package celengine

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// NewEnv declares every name in vars as an int variable. Threshold predicates
// only ever compare counters.
func NewEnv(vars ...string) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(vars))
	for _, v := range vars {
		opts = append(opts, cel.Variable(v, cel.IntType))
	}
	return cel.NewEnv(opts...)
}

// Compile type-checks expr and requires it to yield a bool.
func Compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	return env.Program(ast)
}

func ValidateExpression(env *cel.Env, expr string) error {
	_, err := Compile(env, expr)
	return err
}

// Evaluate runs a compiled predicate against attrs.
func Evaluate(prg cel.Program, attrs map[string]any) (bool, error) {
	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}
