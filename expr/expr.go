// Package expr evaluates the textual transform expressions that map and
// filter nodes carry in their configuration. Expressions are user-supplied
// data, never code: they are compiled into a restricted expression VM with
// no I/O, no imports and no side effects, so a hostile or simply broken
// expression can at worst fail its own node.
//
// The expression sees two variables: x (the current upstream value) and
// i (the zero-based emission index within the subscription).
package expr

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/langhuihui/rxcraft/errors"
)

// Program is a compiled transform expression, safe for repeated evaluation
// across many subscriptions.
type Program struct {
	source  string
	program *vm.Program
}

// Compile parses and compiles an expression. Compilation failures are
// configuration errors (Invalid class); the caller degrades the node to a
// pass-through rather than failing the graph build.
func Compile(source string) (*Program, error) {
	if source == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: empty expression", errors.ErrInvalidExpr),
			"expr", "Compile", "compile expression")
	}

	program, err := exprlang.Compile(source)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrInvalidExpr, err),
			"expr", "Compile", "compile expression")
	}
	return &Program{source: source, program: program}, nil
}

// Source returns the original expression text
func (p *Program) Source() string {
	return p.source
}

// Eval runs the program against one value. Evaluation failures are runtime
// data errors: the caller surfaces them as an error lifecycle event on the
// owning subscription.
func (p *Program) Eval(x any, i int) (any, error) {
	out, err := exprlang.Run(p.program, map[string]any{"x": x, "i": i})
	if err != nil {
		return nil, errors.WrapTransient(
			fmt.Errorf("expression %q: %w", p.source, err),
			"expr", "Eval", "evaluate expression")
	}
	return out, nil
}

// EvalBool runs the program and coerces the result to a predicate outcome.
// Non-boolean results follow truthiness: nil and zero values are false.
func (p *Program) EvalBool(x any, i int) (bool, error) {
	out, err := p.Eval(x, i)
	if err != nil {
		return false, err
	}
	return Truthy(out), nil
}

// Truthy reports whether a value counts as true in a filter predicate
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case float32:
		return t != 0
	case uint:
		return t != 0
	case uint64:
		return t != 0
	default:
		return true
	}
}
