package lift

import (
	"fmt"

	"github.com/benbjohnson/loki"
)

// PostProcess rewrites lifted instructions into the operator subset the
// handler bank can execute and returns them in SSA form. Arguments narrower
// than 64 bits are masked on use, 1-bit comparisons are widened and reduced
// to their least-significant bit, and signed operations are computed on
// 64-bit sign extensions. A final assignment copies the result to the
// output register.
func PostProcess(instructions []loki.Assignment, arguments []string) []loki.Assignment {
	p := newPostProcessor(arguments)

	a := make([]loki.Assignment, 0, len(instructions))
	for _, instr := range instructions {
		a = append(a, p.rewriteAssignment(instr))
	}

	a = loki.FromAssignments(a)
	return appendOutput(a)
}

// postProcessor implements loki.Evaluator[loki.Expr].
type postProcessor struct {
	args map[string]struct{}
	seen map[string]struct{}
}

func newPostProcessor(arguments []string) *postProcessor {
	p := &postProcessor{
		args: make(map[string]struct{}),
		seen: make(map[string]struct{}),
	}
	for _, name := range arguments {
		p.args[name] = struct{}{}
		p.seen[name] = struct{}{}
	}
	return p
}

func (p *postProcessor) rewriteAssignment(a loki.Assignment) loki.Assignment {
	if !a.LHS.IsVar() {
		panic(fmt.Sprintf("assert: destination must be a register: %s", a))
	}

	rhs := a.RHS
	if !rhs.IsVar() && !rhs.IsConst() {
		rhs = loki.Evaluate[loki.Expr](p, rhs)
	}
	p.seen[a.LHS.Name()] = struct{}{}
	return loki.NewAssignment(a.LHS, rhs)
}

func (p *postProcessor) EvalOp0(e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpReg:
		if _, ok := p.args[e.Name]; ok && e.Width != loki.Width64 {
			return loki.SemanticDowncast(loki.Expr{e}, e.Width)
		} else if _, ok := p.seen[e.Name]; !ok {
			panic(fmt.Sprintf("assert: access to unknown variable: %s", e.Name))
		}
		return loki.Expr{e}
	case loki.OpConst:
		return loki.Expr{e}
	default:
		panic("assert: operator not supported by post-processor: " + e.Op.String())
	}
}

func (p *postProcessor) EvalOp1(x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpNot:
		return loki.Not(x, e.Width)
	case loki.OpNeg:
		return loki.Neg(x, e.Width)
	case loki.OpZeroExtend:
		return loki.ZeroExtend(x, e.Width)
	case loki.OpSignExtend:
		return loki.Slice(loki.SemanticSignExtension(x, loki.Width64), 0, uint8(e.Width-1))
	case loki.OpTrunc:
		return loki.Slice(x, 0, uint8(e.Width-1))
	case loki.OpLoad:
		return loki.Load(x, e.Width)
	case loki.OpAlloca:
		return loki.Alloc(x.ConstValue(), e.Width)
	case loki.OpBitCast:
		return bitCast(x, e.Width)
	default:
		panic("assert: operator not supported by post-processor: " + e.Op.String())
	}
}

func (p *postProcessor) EvalOp2(y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	// Comparisons producing a single bit are computed at operand width and
	// reduced to their least significant bit.
	var toLSB bool
	if e.Op.IsComparison() && e.Width == loki.WidthBool {
		e.Width, toLSB = x.Width(), true
	}
	checkOperandWidths(y, x, e)

	w := e.Width
	switch e.Op {
	case loki.OpAdd, loki.OpSub, loki.OpMul, loki.OpUdiv, loki.OpUrem,
		loki.OpAnd, loki.OpOr, loki.OpXor, loki.OpNand, loki.OpNor:
		return loki.Op2(x, y, e)
	case loki.OpSdiv:
		return signed(loki.Sdiv, x, y, w)
	case loki.OpSrem:
		return signed(loki.Srem, x, y, w)
	case loki.OpAshr:
		return signed(loki.AshrPlain, x, y, w)
	case loki.OpShl:
		return loki.ShlPlain(x, y, w)
	case loki.OpLshr:
		return loki.LshrPlain(x, y, w)
	case loki.OpUlt, loki.OpUle, loki.OpEqual:
		if toLSB {
			return loki.Lsb(loki.Op2(x, y, e))
		}
		return loki.Op2(x, y, e)
	case loki.OpSlt:
		if toLSB {
			return loki.Lsb(signedWide(loki.Slt, x, y))
		}
		return signed(loki.Slt, x, y, w)
	case loki.OpSle:
		if toLSB {
			return loki.Lsb(signedWide(loki.Sle, x, y))
		}
		return signed(loki.Sle, x, y, w)
	case loki.OpGEP:
		return loki.Add(x, y, w)
	case loki.OpStore:
		return loki.Store(x, y, w)
	default:
		panic("assert: operator not supported by post-processor: " + e.Op.String())
	}
}

func (p *postProcessor) EvalOp3(z, y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	if e.Op != loki.OpIte {
		panic("assert: operator not supported by post-processor: " + e.Op.String())
	}
	return loki.SemanticsIte(x, y, z)
}

// signedWide applies fn to the 64-bit sign extensions of x and y.
func signedWide(fn func(x, y loki.Expr, w uint) loki.Expr, x, y loki.Expr) loki.Expr {
	return fn(
		loki.SemanticSignExtension(x, loki.Width64),
		loki.SemanticSignExtension(y, loki.Width64),
		loki.Width64,
	)
}

// signed applies fn at 64 bits and slices the result back to w bits.
func signed(fn func(x, y loki.Expr, w uint) loki.Expr, x, y loki.Expr, w uint) loki.Expr {
	return loki.Slice(signedWide(fn, x, y), 0, uint8(w-1))
}

func bitCast(x loki.Expr, w uint) loki.Expr {
	switch {
	case x.Width() == w:
		return loki.Add(x, loki.Const(0, w), w)
	case x.Width() < w:
		return loki.ZeroExtend(x, w)
	default:
		panic(fmt.Sprintf("assert: narrowing bitcast: %d > %d", x.Width(), w))
	}
}

// checkOperandWidths panics if the operands of a binary operator disagree
// with each other or with the result. Stores take a 64-bit address and a
// value of the store width.
func checkOperandWidths(y, x loki.Expr, e loki.LinearExpr) {
	if e.Op == loki.OpStore {
		if x.Width() != loki.Width64 {
			panic(fmt.Sprintf("assert: memory address should be 64 bit: %s", x))
		} else if y.Width() != e.Width {
			panic(fmt.Sprintf("assert: memory write should match store size: %d != %d", y.Width(), e.Width))
		}
		return
	}

	if x.Width() != y.Width() || y.Width() != e.Width {
		panic(fmt.Sprintf("assert: %s width mismatch: %d, %d, %d", e.Op, x.Width(), y.Width(), e.Width))
	}
}

// appendOutput copies the destination of the last assignment into the
// output register.
func appendOutput(a []loki.Assignment) []loki.Assignment {
	last := a[len(a)-1]
	return append(a, loki.NewAssignment(loki.Reg(loki.OutputRegister, last.Width()), last.LHS))
}
