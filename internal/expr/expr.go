// Package expr implements the resolver expression IR and its evaluator
// (§4.D): a small recursive interpreter over context lookups, literals,
// logic, math, and IO nodes, parameterised by a concurrency Policy rather
// than having concurrency baked into the tree shape. Grounded on the
// teacher's executor package's field-completion recursion, generalized from
// "complete a GraphQL value" to "evaluate a resolver expression".
package expr

import (
	"context"
	"fmt"

	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/mustache"
)

// Policy selects how sibling sub-expressions are evaluated.
type Policy int

const (
	// Sequential awaits children in declaration order.
	Sequential Policy = iota
	// Parallel launches the children of And and Or together and waits for
	// all of them before picking a result in declaration order, so the
	// result never depends on which child finished first; if any child
	// fails, the first error in declaration order is returned. Cond and the
	// other nodes evaluate their children in order under either policy.
	Parallel
)

// Expression is one node of the resolver IR.
type Expression interface {
	Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error)
}

// Context reads the parent value, optionally walking a path into it.
type Context struct {
	Path []string // nil means the whole parent value
}

func (c Context) Eval(_ context.Context, fc *evalctx.FieldContext, _ Policy) (any, error) {
	if len(c.Path) == 0 {
		return fc.Value, nil
	}
	v, ok := fc.PathValue(append([]string{"value"}, c.Path...))
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Literal is a constant value baked in at compile time.
type Literal struct {
	Value any
}

func (l Literal) Eval(context.Context, *evalctx.FieldContext, Policy) (any, error) {
	return l.Value, nil
}

// Dynamic is a literal JSON shape whose leaves may be mustache templates
// resolved against the evaluation context.
type Dynamic struct {
	Value DynamicValue
}

// DynamicValue mirrors a JSON shape but allows any leaf (string position) to
// instead be a mustache-templated expression.
type DynamicValue interface {
	resolve(fc *evalctx.FieldContext) any
}

type DynString struct{ Tpl *mustache.Template }
type DynArray struct{ Items []DynamicValue }
type DynObject struct{ Fields map[string]DynamicValue }
type DynConst struct{ Value any }

func (d DynString) resolve(fc *evalctx.FieldContext) any { return d.Tpl.Render(fc) }
func (d DynConst) resolve(*evalctx.FieldContext) any     { return d.Value }
func (d DynArray) resolve(fc *evalctx.FieldContext) any {
	out := make([]any, len(d.Items))
	for i, item := range d.Items {
		out[i] = item.resolve(fc)
	}
	return out
}
func (d DynObject) resolve(fc *evalctx.FieldContext) any {
	out := make(map[string]any, len(d.Fields))
	for k, item := range d.Fields {
		out[k] = item.resolve(fc)
	}
	return out
}

func (d Dynamic) Eval(_ context.Context, fc *evalctx.FieldContext, _ Policy) (any, error) {
	return d.Value.resolve(fc), nil
}

// EqualTo compares the results of two sub-expressions for deep equality.
type EqualTo struct{ A, B Expression }

func (e EqualTo) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	a, b, err := evalPair(ctx, fc, policy, e.A, e.B)
	if err != nil {
		return nil, err
	}
	return deepEqual(a, b), nil
}

// Not negates the truthiness of its operand.
type Not struct{ Expr Expression }

func (n Not) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	v, err := n.Expr.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	return !Truthy(v), nil
}

// IsEmpty reports whether the operand's value is empty per §4.D's emptiness
// rules (numbers and booleans are never empty).
type IsEmpty struct{ Expr Expression }

func (e IsEmpty) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	v, err := e.Expr.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	return Empty(v), nil
}

// DefaultTo evaluates Expr, substituting Default when Expr's result is
// empty.
type DefaultTo struct{ Expr, Default Expression }

func (d DefaultTo) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	v, err := d.Expr.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	if Empty(v) {
		return d.Default.Eval(ctx, fc, policy)
	}
	return v, nil
}

// If evaluates Cond and dispatches to Then or Else.
type If struct{ Cond, Then, Else Expression }

func (i If) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	c, err := i.Cond.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	if Truthy(c) {
		return i.Then.Eval(ctx, fc, policy)
	}
	return i.Else.Eval(ctx, fc, policy)
}

// And evaluates every child; under Sequential it short-circuits on the
// first falsy result, returning it immediately.
type And struct{ Exprs []Expression }

func (a And) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	if policy == Sequential {
		var last any = true
		for _, e := range a.Exprs {
			v, err := e.Eval(ctx, fc, policy)
			if err != nil {
				return nil, err
			}
			last = v
			if !Truthy(v) {
				return v, nil
			}
		}
		return last, nil
	}
	results, err := evalAll(ctx, fc, policy, a.Exprs)
	if err != nil {
		return nil, err
	}
	var last any = true
	for _, v := range results {
		last = v
		if !Truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

// Or evaluates every child, returning the first truthy result.
type Or struct{ Exprs []Expression }

func (o Or) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	if policy == Sequential {
		var last any
		for _, e := range o.Exprs {
			v, err := e.Eval(ctx, fc, policy)
			if err != nil {
				return nil, err
			}
			last = v
			if Truthy(v) {
				return v, nil
			}
		}
		return last, nil
	}
	results, err := evalAll(ctx, fc, policy, o.Exprs)
	if err != nil {
		return nil, err
	}
	var last any
	for _, v := range results {
		last = v
		if Truthy(v) {
			return v, nil
		}
	}
	return last, nil
}

// CondBranch is one (condition, result) pair within a Cond expression.
type CondBranch struct{ Cond, Then Expression }

// Cond evaluates branches in order, returning the first whose condition is
// truthy, or Default if none match.
type Cond struct {
	Branches []CondBranch
	Default  Expression
}

func (c Cond) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	for _, branch := range c.Branches {
		cv, err := branch.Cond.Eval(ctx, fc, policy)
		if err != nil {
			return nil, err
		}
		if Truthy(cv) {
			return branch.Then.Eval(ctx, fc, policy)
		}
	}
	return c.Default.Eval(ctx, fc, policy)
}

// Input walks Path into the result of Inner — used to project a nested
// value out of an IO result, e.g. for @inline.
type Input struct {
	Inner Expression
	Path  []string
}

func (in Input) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	v, err := in.Inner.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	cur := v
	for _, seg := range in.Path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil, nil
		}
	}
	return cur, nil
}

func evalPair(ctx context.Context, fc *evalctx.FieldContext, policy Policy, a, b Expression) (any, any, error) {
	av, err := a.Eval(ctx, fc, policy)
	if err != nil {
		return nil, nil, err
	}
	bv, err := b.Eval(ctx, fc, policy)
	if err != nil {
		return nil, nil, err
	}
	return av, bv, nil
}

func evalAll(ctx context.Context, fc *evalctx.FieldContext, policy Policy, exprs []Expression) ([]any, error) {
	results := make([]any, len(exprs))
	errs := make([]error, len(exprs))
	done := make(chan int, len(exprs))
	for i, e := range exprs {
		go func(i int, e Expression) {
			v, err := e.Eval(ctx, fc, policy)
			results[i] = v
			errs[i] = err
			done <- i
		}(i, e)
	}
	for range exprs {
		<-done
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Truthy implements §4.D's truthiness rule: null, false, numeric zero,
// empty string, empty list, empty object are falsy; everything else is
// truthy.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		if n, ok := asFloat(x); ok {
			return n != 0
		}
		return true
	}
}

// Empty implements §4.D's emptiness rule for IsEmpty/DefaultTo: numbers and
// booleans are never empty.
func Empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case []byte:
		return len(x) == 0
	default:
		return false
	}
}

func deepEqual(a, b any) bool {
	return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
}
