package loki

// Evaluator interprets expressions in a result domain T. Operands are passed
// in reverse push order: the rightmost operand comes first.
type Evaluator[T any] interface {
	EvalOp0(e LinearExpr) T
	EvalOp1(x T, e LinearExpr) T
	EvalOp2(y, x T, e LinearExpr) T
	EvalOp3(z, y, x T, e LinearExpr) T
}

// Evaluate runs expr through ev on an explicit stack and returns the single
// remaining value. Panics if the expression does not reduce to one value.
func Evaluate[T any](ev Evaluator[T], expr Expr) T {
	stack := make([]T, 0, len(expr))
	pop := func() T {
		assert(len(stack) > 0, "stack underflow: %s", expr.Key())
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}

	for _, e := range expr {
		switch e.Arity() {
		case 0:
			stack = append(stack, ev.EvalOp0(e))
		case 1:
			x := pop()
			stack = append(stack, ev.EvalOp1(x, e))
		case 2:
			y := pop()
			x := pop()
			stack = append(stack, ev.EvalOp2(y, x, e))
		case 3:
			z := pop()
			y := pop()
			x := pop()
			stack = append(stack, ev.EvalOp3(z, y, x, e))
		default:
			panic("unreachable")
		}
	}
	assert(len(stack) == 1, "expression did not reduce to one value: stack=%d", len(stack))
	return stack[0]
}
