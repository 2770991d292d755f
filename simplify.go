package loki

// Simplifier evaluates expressions under a symbolic state, folding constants
// and applying algebraic identities. Implements Evaluator[Expr].
type Simplifier struct {
	State *SymbolicState
}

// NewSimplifier returns a simplifier over a reflexive state of symbols.
func NewSimplifier(symbols []LinearExpr) *Simplifier {
	return &Simplifier{State: NewSymbolicState(symbols)}
}

// Eval returns the simplified form of e under the current state.
func (s *Simplifier) Eval(e Expr) Expr {
	return Evaluate[Expr](s, e)
}

func (s *Simplifier) EvalOp0(e LinearExpr) Expr {
	switch e.Op {
	case OpConst, OpNop, OpE, OpAlloc:
		return Expr{e}
	case OpReg:
		return s.State.ReplaceArgument(Expr{e})
	default:
		panic("unreachable")
	}
}

func (s *Simplifier) EvalOp1(x Expr, e LinearExpr) Expr {
	switch e.Op {
	case OpZeroExtend, OpSignExtend, OpSlice, OpMem:
	default:
		assert(x.Width() == e.Width, "%s width mismatch: %d != %d", e.Op, x.Width(), e.Width)
	}

	switch e.Op {
	case OpMem:
		return s.load(x, e)
	case OpZeroExtend:
		return simplifyZeroExtend(x, e)
	case OpSignExtend:
		return simplifySignExtend(x, e)
	case OpSlice:
		return simplifySlice(x, e)
	case OpNot, OpNeg:
		return simplifyOp1(x, e)
	default:
		panic("assert: operator not supported by simplifier: " + e.Op.String())
	}
}

func (s *Simplifier) EvalOp2(y, x Expr, e LinearExpr) Expr {
	if e.Op != OpConcat {
		assert(x.Width() == y.Width(), "%s width mismatch: %d != %d", e.Op, x.Width(), y.Width())
		assert(x.Width() == e.Width, "%s result width mismatch: %d != %d", e.Op, x.Width(), e.Width)
	}

	switch e.Op {
	case OpAdd, OpOr, OpAnd, OpXor, OpNand, OpNor, OpMul, OpEqual:
		return simplifyCommutativeOp2(x, y, e)
	case OpSub, OpUdiv, OpSdiv, OpUrem, OpSrem, OpUlt, OpSlt, OpUle, OpSle, OpShl, OpLshr, OpAshr:
		return simplifyOp2(x, y, e)
	case OpConcat:
		return simplifyConcat(x, y, e)
	default:
		panic("assert: operator not supported by simplifier: " + e.Op.String())
	}
}

func (s *Simplifier) EvalOp3(z, y, x Expr, e LinearExpr) Expr {
	assert(e.Op == OpIte, "operator not supported by simplifier: %s", e.Op)
	assert(y.Width() == z.Width(), "ite branch width mismatch: %d != %d", y.Width(), z.Width())
	assert(z.Width() == e.Width, "ite width mismatch: %d != %d", z.Width(), e.Width)

	if x.IsConst() {
		if x.ConstValue() != 0 {
			return y
		}
		return z
	}

	// (_ ? y : y) => y
	if !y.IsNonTerminal() && y.Equal(z) {
		return y
	}
	return Op3(x, y, z, e)
}

// load reads a little-endian value from per-byte memory cells starting at
// addr. Expressions evaluated without any memory stay symbolic.
func (s *Simplifier) load(addr Expr, e LinearExpr) Expr {
	if s.State.MemoryLen() == 0 {
		return Op1(addr, e)
	}

	ret := s.readByte(addr)
	for i := uint(1); i < e.Width/8; i++ {
		next := Add(addr, Const(uint64(i), addr.Width()), addr.Width()).Simplify()
		ret = Concat(s.readByte(next), ret)
	}
	return ret.Simplify()
}

func (s *Simplifier) readByte(addr Expr) Expr {
	v, ok := s.State.Memory(addr)
	assert(ok, "memory address %s not in map", addr)
	assert(!v.IsMemoryOp(), "memory cell %s holds a memory op", addr)
	return v
}

func simplifyOp1(x Expr, e LinearExpr) Expr {
	if x.IsConst() {
		return Const(EvalConst1(e.Op, x.ConstValue(), x.Width()), x.Width())
	}

	switch {
	// - (- x) => x
	case e.Op == OpNeg && x.Op() == OpNeg:
		return x.Slice(0, len(x)-1)
	// ~ (~ x) => x
	case e.Op == OpNot && x.Op() == OpNot:
		return x.Slice(0, len(x)-1)
	}
	return Op1(x, e)
}

func simplifyOp2(x, y Expr, e LinearExpr) Expr {
	if x.IsConst() && y.IsConst() {
		return Const(EvalConst(e.Op, x.ConstValue(), y.ConstValue(), x.Width()), x.Width())
	}

	w := e.Width
	switch e.Op {
	case OpSub:
		switch {
		// x - x => 0
		case !x.IsNonTerminal() && x.Equal(y):
			return Const(0, w)
		// x - 0 => x
		case y.HasConst(0):
			return x
		// 0 - y => - y
		case x.HasConst(0):
			return Neg(y, y.Width())
		// x - (- y) => x + y
		case y.Op() == OpNeg:
			return Add(x, y.Slice(0, len(y)-1), w)
		// x - y => x + (- y)
		default:
			return Add(x, Neg(y, w), w)
		}

	case OpShl, OpLshr, OpAshr:
		switch {
		// x << 0 => x
		case y.HasConst(0):
			return x
		// 0 << y => 0
		case x.HasConst(0):
			return Const(0, w)
		}

	case OpUlt, OpSlt:
		// x < x => 0
		if !x.IsNonTerminal() && x.Equal(y) {
			return Const(0, w)
		}

	case OpUle, OpSle:
		// x <= x => 1
		if !x.IsNonTerminal() && x.Equal(y) {
			return Const(1, w)
		}
	}
	return Op2(x, y, e)
}

func simplifyCommutativeOp2(x, y Expr, e LinearExpr) Expr {
	x, y = normalize(x, y)
	w := e.Width

	// const op const => const
	if x.IsConst() && y.IsConst() {
		return Const(EvalConst(e.Op, x.ConstValue(), y.ConstValue(), x.Width()), x.Width())
	}

	same := !x.IsNonTerminal() && x.Equal(y)
	switch e.Op {
	case OpAdd:
		// x + 0 => x
		if y.HasConst(0) {
			return x
		}
		// x + (- x) => 0
		if !x.IsNonTerminal() && y.Op() == OpNeg && x.Equal(y[:len(y)-1]) {
			return Const(0, w)
		}
	case OpMul:
		// x * 0 => 0
		if y.HasConst(0) {
			return Const(0, w)
		}
		// x * 1 => x
		if y.HasConst(1) {
			return x
		}
	case OpOr:
		// x | x => x, x | 0 => x
		if same || y.HasConst(0) {
			return x
		}
	case OpAnd:
		// x & x => x
		if same {
			return x
		}
		// x & 0 => 0
		if y.HasConst(0) {
			return Const(0, w)
		}
	case OpXor:
		// x ^ x => 0
		if same {
			return Const(0, w)
		}
		// x ^ 0 => x
		if y.HasConst(0) {
			return x
		}
	case OpNand:
		// x NAND 0 => -1
		if y.HasConst(0) {
			return Neg(Const(1, w), w)
		}
		// x NAND x => ~x
		if same {
			return Not(x, w)
		}
	case OpNor:
		// x NOR 0 => ~x, x NOR x => ~x
		if y.HasConst(0) || same {
			return Not(x, w)
		}
	case OpEqual:
		// x == x => 1
		if same {
			return Const(1, w)
		}
	}

	// (u op c1) op c2 => u op (c1 op c2)
	if !x.IsConst() && y.IsConst() && x.Root() == e && e.Op.IsAssociative() {
		args := x.Args()
		assert(len(args) == 2, "expected two operands: %s", x)
		v, c := normalize(args[0], args[1])
		if !v.IsConst() && c.IsConst() {
			folded := Const(EvalConst(e.Op, y.ConstValue(), c.ConstValue(), y.Width()), y.Width())
			return Op2(v, folded, e)
		}
	}

	return Op2(x, y, e)
}

// normalize orders commutative operands with constants on the right.
// Operands containing a placeholder keep their original order.
func normalize(x, y Expr) (Expr, Expr) {
	if x.IsNonTerminal() || y.IsNonTerminal() {
		return x, y
	}

	switch xc, yc := x.IsConst(), y.IsConst(); {
	case !xc && yc:
		return x, y
	case xc && !yc:
		return y, x
	case Compare(x, y) <= 0:
		return x, y
	default:
		return y, x
	}
}

func simplifyZeroExtend(x Expr, e LinearExpr) Expr {
	assert(x.Width() <= e.Width, "zero extend narrows: %d > %d", x.Width(), e.Width)
	if x.IsConst() {
		return Const(x.ConstValue(), e.Width)
	} else if x.Width() == e.Width {
		return x
	}
	return Op1(x, e)
}

func simplifySignExtend(x Expr, e LinearExpr) Expr {
	assert(x.Width() <= e.Width, "sign extend narrows: %d > %d", x.Width(), e.Width)
	if x.IsConst() {
		return Const(SignExtendVal(x.ConstValue(), x.Width(), e.Width), e.Width)
	} else if x.Width() == e.Width {
		return x
	}
	return Op1(x, e)
}

func simplifySlice(x Expr, e LinearExpr) Expr {
	assert(e.Width == uint(e.End-e.Start)+1, "slice width mismatch: %d", e.Width)
	if x.IsConst() {
		return Const(SliceVal(x.ConstValue(), e.Start, e.End), e.Width)
	}
	return Op1(x, e)
}

func simplifyConcat(x, y Expr, e LinearExpr) Expr {
	if x.IsConst() && y.IsConst() {
		return Const(ConcatVal(x.ConstValue(), y.ConstValue(), y.Width()), e.Width)
	}
	return Op2(x, y, e)
}
