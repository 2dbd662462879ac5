package expr

import (
	"context"

	"github.com/tailcallhq/tailcall-go/internal/evalctx"
	"github.com/tailcallhq/tailcall-go/internal/evalerr"
)

// MathOp names a binary/unary arithmetic operator, used only for error
// reporting (`OperationFailed(<op-name>)`).
type MathOp string

const (
	OpAdd MathOp = "add"
	OpSub MathOp = "sub"
	OpMul MathOp = "mul"
	OpDiv MathOp = "div"
	OpMod MathOp = "mod"
)

// Math is a binary arithmetic expression. Inc and Dec build a Math with a
// literal int64(1) as B; Neg is a separate node. A Math with B == nil is
// evaluated as unary, which only supports negation.
type Math struct {
	Op   MathOp
	A, B Expression
}

func (m Math) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	av, err := m.A.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	if m.B == nil {
		return unaryMath(m.Op, av)
	}
	bv, err := m.B.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	return binaryMath(m.Op, av, bv)
}

// Inc returns e + 1.
func Inc(e Expression) Expression { return Math{Op: OpAdd, A: e, B: Literal{Value: int64(1)}} }

// Dec returns e - 1.
func Dec(e Expression) Expression { return Math{Op: OpSub, A: e, B: Literal{Value: int64(1)}} }

// Neg returns -e.
type Neg struct{ Expr Expression }

func (n Neg) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	v, err := n.Expr.Eval(ctx, fc, policy)
	if err != nil {
		return nil, err
	}
	return unaryMath("neg", v)
}

// Sum folds a list of expressions left-to-right starting from 0.
type Sum struct{ Exprs []Expression }

func (s Sum) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	var acc any = int64(0)
	for _, e := range s.Exprs {
		v, err := e.Eval(ctx, fc, policy)
		if err != nil {
			return nil, err
		}
		acc, err = binaryMath(OpAdd, acc, v)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// Product folds a list of expressions left-to-right starting from 1.
type Product struct{ Exprs []Expression }

func (p Product) Eval(ctx context.Context, fc *evalctx.FieldContext, policy Policy) (any, error) {
	var acc any = int64(1)
	for _, e := range p.Exprs {
		v, err := e.Eval(ctx, fc, policy)
		if err != nil {
			return nil, err
		}
		acc, err = binaryMath(OpMul, acc, v)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func isFloatKind(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

func isUintKind(v any) bool {
	switch v.(type) {
	case uint, uint32, uint64:
		return true
	default:
		return false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asUint64(v any) (uint64, bool) {
	switch x := v.(type) {
	case uint:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case uint64:
		return x, true
	default:
		return 0, false
	}
}

// binaryMath implements §4.D's "narrowest common numeric representation"
// rule: f64 if either side is f64, else u64 if both sides are u64, else i64.
func binaryMath(op MathOp, a, b any) (any, error) {
	if isFloatKind(a) || isFloatKind(b) {
		af, aok := asFloat(a)
		bf, bok := asFloat(b)
		if !aok || !bok {
			return nil, evalerr.ExprEval(string(op), "operand is not numeric")
		}
		return applyFloat(op, af, bf)
	}
	if isUintKind(a) && isUintKind(b) {
		au, _ := asUint64(a)
		bu, _ := asUint64(b)
		return applyUint(op, au, bu)
	}
	ai, aok := asInt64(a)
	bi, bok := asInt64(b)
	if !aok || !bok {
		return nil, evalerr.ExprEval(string(op), "operand is not numeric")
	}
	return applyInt(op, ai, bi)
}

func unaryMath(op MathOp, v any) (any, error) {
	if isFloatKind(v) {
		f, _ := asFloat(v)
		if op == "neg" {
			return -f, nil
		}
	}
	i, ok := asInt64(v)
	if !ok {
		return nil, evalerr.ExprEval(string(op), "operand is not numeric")
	}
	if op == "neg" {
		return -i, nil
	}
	return nil, evalerr.ExprEval(string(op), "unsupported unary operator")
}

func applyFloat(op MathOp, a, b float64) (any, error) {
	switch op {
	case OpAdd:
		return a + b, nil
	case OpSub:
		return a - b, nil
	case OpMul:
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return mathMod(a, b), nil
	}
	return nil, evalerr.ExprEval(string(op), "unsupported operator")
}

func mathMod(a, b float64) float64 {
	m := a - b*float64(int64(a/b))
	return m
}

func applyUint(op MathOp, a, b uint64) (any, error) {
	switch op {
	case OpAdd:
		sum := a + b
		if sum < a {
			return nil, evalerr.ExprEval(string(op), "overflow")
		}
		return sum, nil
	case OpSub:
		if b > a {
			return nil, evalerr.ExprEval(string(op), "overflow")
		}
		return a - b, nil
	case OpMul:
		if a != 0 && b != 0 && a*b/a != b {
			return nil, evalerr.ExprEval(string(op), "overflow")
		}
		return a * b, nil
	case OpDiv:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return a % b, nil
	}
	return nil, evalerr.ExprEval(string(op), "unsupported operator")
}

func applyInt(op MathOp, a, b int64) (any, error) {
	switch op {
	case OpAdd:
		sum := a + b
		if (b > 0 && sum < a) || (b < 0 && sum > a) {
			return nil, evalerr.ExprEval(string(op), "overflow")
		}
		return sum, nil
	case OpSub:
		diff := a - b
		if (b < 0 && diff < a) || (b > 0 && diff > a) {
			return nil, evalerr.ExprEval(string(op), "overflow")
		}
		return diff, nil
	case OpMul:
		if a != 0 && b != 0 {
			p := a * b
			if p/a != b {
				return nil, evalerr.ExprEval(string(op), "overflow")
			}
			return p, nil
		}
		return int64(0), nil
	case OpDiv:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return a / b, nil
	case OpMod:
		if b == 0 {
			return nil, evalerr.ExprEval(string(op), "division by zero")
		}
		return a % b, nil
	}
	return nil, evalerr.ExprEval(string(op), "unsupported operator")
}
