package loki

// Op0 returns a leaf expression.
func Op0(e LinearExpr) Expr {
	assert(e.Width > 0, "zero width: %s", e.Op)
	assert(e.Arity() == 0, "not a leaf: %s", e.Op)
	return Expr{e}
}

// Op1 returns a unary expression.
func Op1(x Expr, op LinearExpr) Expr {
	assert(op.Width > 0, "zero width: %s", op.Op)
	ret := make(Expr, 0, len(x)+1)
	ret = append(ret, x...)
	return append(ret, op)
}

// Op2 returns a binary expression. Operands must match the result width
// except for Concat and Store.
func Op2(x, y Expr, op LinearExpr) Expr {
	assert(op.Width > 0, "zero width: %s", op.Op)
	switch op.Op {
	case OpConcat, OpStore:
	default:
		assert(x.Width() == y.Width(), "%s width mismatch: %d != %d", op.Op, x.Width(), y.Width())
		assert(x.Width() == op.Width, "%s result width mismatch: %d != %d", op.Op, x.Width(), op.Width)
	}
	ret := make(Expr, 0, len(x)+len(y)+1)
	ret = append(ret, x...)
	ret = append(ret, y...)
	return append(ret, op)
}

// Op3 returns a ternary expression.
func Op3(x, y, z Expr, op LinearExpr) Expr {
	assert(op.Width > 0, "zero width: %s", op.Op)
	ret := make(Expr, 0, len(x)+len(y)+len(z)+1)
	ret = append(ret, x...)
	ret = append(ret, y...)
	ret = append(ret, z...)
	return append(ret, op)
}

// Const returns a constant masked to w bits.
func Const(v uint64, w uint) Expr {
	return Op0(LinearExpr{Op: OpConst, Width: w, Value: MaskToSize(v, w)})
}

// Const64 returns a 64-bit constant.
func Const64(v uint64) Expr { return Const(v, Width64) }

// Reg returns a named register.
func Reg(name string, w uint) Expr {
	return Op0(LinearExpr{Op: OpReg, Width: w, Name: name})
}

// Reg64 returns a 64-bit named register.
func Reg64(name string) Expr { return Reg(name, Width64) }

// NT returns the grammar placeholder register.
func NT(w uint) Expr { return Reg(NonTerminal, w) }

// Placeholder returns an empty subtree marker.
func Placeholder(w uint) Expr { return Op0(LinearExpr{Op: OpE, Width: w}) }

// Nop returns a no-op expression.
func Nop(w uint) Expr { return Op0(LinearExpr{Op: OpNop, Width: w}) }

// Alloc returns an allocation of n bytes.
func Alloc(n uint64, w uint) Expr {
	return Op0(LinearExpr{Op: OpAlloc, Width: w, Value: MaskToSize(n, w)})
}

// Assign returns an assignment expression.
func Assign(lhs, rhs Expr) Expr {
	return Op2(lhs, rhs, LinearExpr{Op: OpAssign, Width: lhs.Width()})
}

// Not returns ~x.
func Not(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpNot, Width: w}) }

// Neg returns -x.
func Neg(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpNeg, Width: w}) }

// Mem returns a w-bit memory read at address x.
func Mem(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpMem, Width: w}) }

// Load returns a w-bit load from pointer x.
func Load(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpLoad, Width: w}) }

// Alloca returns a stack allocation of x bytes.
func Alloca(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpAlloca, Width: w}) }

// BitCast returns x reinterpreted as w bits.
func BitCast(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpBitCast, Width: w}) }

// Trunc returns x truncated to w bits.
func Trunc(x Expr, w uint) Expr { return Op1(x, LinearExpr{Op: OpTrunc, Width: w}) }

// Add returns x + y.
func Add(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpAdd, Width: w}) }

// Sub returns x - y.
func Sub(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpSub, Width: w}) }

// Mul returns x * y.
func Mul(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpMul, Width: w}) }

// Udiv returns x / y as unsigned division.
func Udiv(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpUdiv, Width: w}) }

// Sdiv returns x / y as signed division.
func Sdiv(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpSdiv, Width: w}) }

// Urem returns x % y as unsigned remainder.
func Urem(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpUrem, Width: w}) }

// Srem returns x % y as signed remainder.
func Srem(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpSrem, Width: w}) }

// And returns x & y.
func And(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpAnd, Width: w}) }

// Or returns x | y.
func Or(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpOr, Width: w}) }

// Xor returns x ^ y.
func Xor(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpXor, Width: w}) }

// Nand returns ~(x & y).
func Nand(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpNand, Width: w}) }

// Nor returns ~(x | y).
func Nor(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpNor, Width: w}) }

// Ult returns 1 if x < y unsigned, else 0.
func Ult(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpUlt, Width: w}) }

// Slt returns 1 if x < y signed, else 0.
func Slt(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpSlt, Width: w}) }

// Ule returns 1 if x <= y unsigned, else 0.
func Ule(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpUle, Width: w}) }

// Sle returns 1 if x <= y signed, else 0.
func Sle(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpSle, Width: w}) }

// Equal returns 1 if x == y, else 0.
func Equal(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpEqual, Width: w}) }

// GEP returns the address x offset by y.
func GEP(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpGEP, Width: w}) }

// Store returns a store of y to address x.
func Store(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpStore, Width: w}) }

// ShlPlain returns x << y without masking the shift amount.
func ShlPlain(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpShl, Width: w}) }

// LshrPlain returns x >> y without masking the shift amount.
func LshrPlain(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpLshr, Width: w}) }

// AshrPlain returns x a>> y without masking the shift amount.
func AshrPlain(x, y Expr, w uint) Expr { return Op2(x, y, LinearExpr{Op: OpAshr, Width: w}) }

// Ugt returns x > y as an unsigned comparison.
func Ugt(x, y Expr, w uint) Expr { return Ult(y, x, w) }

// Uge returns x >= y as an unsigned comparison.
func Uge(x, y Expr, w uint) Expr { return Ule(y, x, w) }

// Sgt returns x > y as a signed comparison.
func Sgt(x, y Expr, w uint) Expr { return Slt(y, x, w) }

// Sge returns x >= y as a signed comparison.
func Sge(x, y Expr, w uint) Expr { return Sle(y, x, w) }

// reduceShift masks a shift amount to the width's shift range.
func reduceShift(y Expr, w uint) Expr {
	if w == Width64 {
		return And(y, Const(63, w), w)
	}
	return And(y, Const(31, w), w)
}

// Shl returns x << (y & mask).
func Shl(x, y Expr, w uint) Expr { return ShlPlain(x, reduceShift(y, w), w) }

// Lshr returns x >> (y & mask).
func Lshr(x, y Expr, w uint) Expr { return LshrPlain(x, reduceShift(y, w), w) }

// Ashr returns the arithmetic right shift x a>> (y & mask).
func Ashr(x, y Expr, w uint) Expr { return AshrPlain(x, reduceShift(y, w), w) }

// ZeroExtend returns x zero-extended to w bits.
func ZeroExtend(x Expr, w uint) Expr {
	assert(x.Width() <= w, "zero extend narrows: %d > %d", x.Width(), w)
	return Op1(x, LinearExpr{Op: OpZeroExtend, Width: w})
}

// SignExtend returns x sign-extended to w bits.
func SignExtend(x Expr, w uint) Expr {
	assert(x.Width() <= w, "sign extend narrows: %d > %d", x.Width(), w)
	return Op1(x, LinearExpr{Op: OpSignExtend, Width: w})
}

// Slice returns bits [start, end] of x.
func Slice(x Expr, start, end uint8) Expr {
	assert(start <= end, "invalid slice: %d > %d", start, end)
	return Op1(x, LinearExpr{Op: OpSlice, Width: uint(end-start) + 1, Start: start, End: end})
}

// Lsb returns the least significant bit of x.
func Lsb(x Expr) Expr { return Slice(x, 0, 0) }

// Concat returns x ++ y where y occupies the low bits.
func Concat(x, y Expr) Expr {
	return Op2(x, y, LinearExpr{Op: OpConcat, Width: x.Width() + y.Width()})
}

// Ite returns (x ? y : z).
func Ite(x, y, z Expr, w uint) Expr {
	assert(y.Width() == z.Width(), "ite branch width mismatch: %d != %d", y.Width(), z.Width())
	assert(w == z.Width(), "ite width mismatch: %d != %d", w, z.Width())
	return Op3(x, y, z, LinearExpr{Op: OpIte, Width: w})
}

// SemanticsSlice returns bits [start, end] of x computed with shifts and masks
// at width w.
func SemanticsSlice(x, start, end Expr, w uint) Expr {
	shift := Add(Sub(end, start, w), Const(1, w), w)
	mask := Sub(ShlPlain(Const(1, w), shift, w), Const(1, w), w)
	return And(mask, LshrPlain(x, start, w), w)
}

// CheckIfZero returns 1 if x is zero and 0 otherwise, without comparisons.
func CheckIfZero(x Expr, w uint) Expr {
	return Add(
		Not(Ashr(And(Not(x, w), Sub(x, Const(1, w), w), w), Const(63, w), w), w),
		Const(1, w),
		w,
	)
}

// SemanticDowncast masks e to its low w bits while keeping its width.
func SemanticDowncast(e Expr, w uint) Expr {
	switch w {
	case Width64:
		return e
	case WidthBool, Width8, Width16, Width32:
		return And(e, Const((uint64(1)<<w)-1, e.Width()), e.Width())
	default:
		panic("unreachable")
	}
}

// SemanticSignExtension sign-extends e to w bits using xor and subtraction.
func SemanticSignExtension(e Expr, w uint) Expr {
	ew := e.Width()
	m := Const(uint64(1)<<(ew-1), ew)
	return Sub(ZeroExtend(Xor(e, m, ew), w), ZeroExtend(m, w), w)
}

// SemanticsIte returns (x ? y : z) computed arithmetically.
func SemanticsIte(x, y, z Expr) Expr {
	w, xw := z.Width(), x.Width()
	cond := SemanticDowncast(Not(SemanticDowncast(Equal(x, Const(0, xw), xw), WidthBool), xw), WidthBool)
	return Add(
		Mul(ZeroExtend(cond, y.Width()), y, w),
		Mul(ZeroExtend(SemanticDowncast(Not(cond, cond.Width()), WidthBool), z.Width()), z, w),
		w,
	)
}
