package lift

import (
	"fmt"

	"github.com/benbjohnson/loki"
)

// Preprocess rewrites lifted instructions for concrete emulation of the
// unprotected program. Stores become assignments to a memory destination,
// loads become memory reads and stack allocations become Alloc leaves.
// Unlike PostProcess, the result is not converted to SSA.
func Preprocess(instructions []loki.Assignment) []loki.Assignment {
	var p preprocessor
	a := make([]loki.Assignment, 0, len(instructions)+1)
	for _, instr := range instructions {
		a = append(a, p.rewriteAssignment(instr))
	}
	return appendOutput(a)
}

// preprocessor implements loki.Evaluator[loki.Expr].
type preprocessor struct{}

func (p *preprocessor) rewriteAssignment(a loki.Assignment) loki.Assignment {
	switch {
	case a.RHS.IsVar(), a.RHS.IsConst():
		return a
	case a.RHS.Op() == loki.OpStore:
		// Store the value to @w[address] instead of the instruction's register.
		addr := p.rewrite(a.RHS.Args()[0]).Simplify()
		return loki.NewAssignment(loki.Mem(addr, a.RHS.Width()), p.rewrite(a.RHS))
	default:
		return loki.NewAssignment(a.LHS, p.rewrite(a.RHS))
	}
}

func (p *preprocessor) rewrite(e loki.Expr) loki.Expr {
	return loki.Evaluate[loki.Expr](p, e)
}

func (p *preprocessor) EvalOp0(e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpReg, loki.OpConst:
		return loki.Expr{e}
	default:
		panic("assert: operator not supported by preprocessor: " + e.Op.String())
	}
}

func (p *preprocessor) EvalOp1(x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpNot:
		return loki.Not(x, e.Width)
	case loki.OpNeg:
		return loki.Neg(x, e.Width)
	case loki.OpZeroExtend:
		return loki.ZeroExtend(x, e.Width)
	case loki.OpSignExtend:
		return loki.SignExtend(x, e.Width)
	case loki.OpTrunc:
		return loki.Slice(x, 0, uint8(e.Width-1))
	case loki.OpLoad:
		if x.Width() != loki.Width64 {
			panic(fmt.Sprintf("assert: memory address should be 64 bit: %s", x))
		}
		return loki.Mem(x.Simplify(), e.Width)
	case loki.OpAlloca:
		return loki.Alloc(x.ConstValue(), e.Width)
	case loki.OpBitCast:
		return bitCast(x, e.Width)
	default:
		panic("assert: operator not supported by preprocessor: " + e.Op.String())
	}
}

func (p *preprocessor) EvalOp2(y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	var toLSB bool
	if e.Op.IsComparison() && e.Width == loki.WidthBool {
		e.Width, toLSB = x.Width(), true
	}
	checkOperandWidths(y, x, e)

	switch e.Op {
	case loki.OpAdd, loki.OpSub, loki.OpMul, loki.OpUdiv, loki.OpSdiv, loki.OpUrem, loki.OpSrem,
		loki.OpAnd, loki.OpOr, loki.OpXor, loki.OpNand, loki.OpNor,
		loki.OpShl, loki.OpLshr, loki.OpAshr:
		return loki.Op2(x, y, e)
	case loki.OpUlt, loki.OpSlt, loki.OpUle, loki.OpSle, loki.OpEqual:
		if toLSB {
			return loki.Lsb(loki.Op2(x, y, e))
		}
		return loki.Op2(x, y, e)
	case loki.OpGEP:
		return loki.Add(x, y, e.Width)
	case loki.OpStore:
		return y
	default:
		panic("assert: operator not supported by preprocessor: " + e.Op.String())
	}
}

func (p *preprocessor) EvalOp3(z, y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	if e.Op != loki.OpIte {
		panic("assert: operator not supported by preprocessor: " + e.Op.String())
	}
	return loki.Ite(x, y, z, e.Width)
}
