package loki

// MaskToSize returns the low w bits of x.
func MaskToSize(x uint64, w uint) uint64 {
	if w >= 64 {
		return x
	}
	return x & ((uint64(1) << w) - 1)
}

// AllOnes returns a value with the low w bits set.
func AllOnes(w uint) uint64 {
	return MaskToSize(^uint64(0), w)
}

// IsNegative returns true if the sign bit of a w-bit value is set.
func IsNegative(x uint64, w uint) bool {
	return (MaskToSize(x, w) >> (w - 1)) != 0
}

// SliceVal returns bits [start, end] of v.
func SliceVal(v uint64, start, end uint8) uint64 {
	return MaskToSize(v>>start, uint(end-start)+1)
}

// ConcatVal returns x shifted above the w-bit value y.
func ConcatVal(x, y uint64, w uint) uint64 {
	if w >= 64 {
		return y
	}
	return (x << w) | y
}

// SignExtendVal sign-extends the from-bit value x to to bits.
func SignExtendVal(x uint64, from, to uint) uint64 {
	m := uint64(1) << (from - 1)
	return MaskToSize((MaskToSize(x, from)^m)-m, to)
}

// toSigned interprets the low w bits of x as a two's-complement integer.
func toSigned(x uint64, w uint) int64 {
	switch w {
	case 8:
		return int64(int8(x))
	case 16:
		return int64(int16(x))
	case 32:
		return int64(int32(x))
	case 64:
		return int64(x)
	default:
		return int64(SignExtendVal(x, w, 64))
	}
}

// ShlVal returns x << y. Shifts of 64 or more yield zero.
func ShlVal(x, y uint64, w uint) uint64 {
	if y >= 64 {
		return 0
	}
	return MaskToSize(x<<y, w)
}

// ShrVal returns x >> y. Shifts of 64 or more yield zero.
func ShrVal(x, y uint64, w uint) uint64 {
	if y >= 64 {
		return 0
	}
	return MaskToSize(x, w) >> y
}

// AshrVal returns the arithmetic right shift of a w-bit value.
// The shift amount is clamped to w-1.
func AshrVal(x, y uint64, w uint) uint64 {
	if y >= uint64(w) {
		y = uint64(w) - 1
	}
	return MaskToSize(uint64(toSigned(x, w)>>y), w)
}

// SdivVal returns the signed quotient of two w-bit values. Division by zero
// yields 1 for a negative dividend and all-ones otherwise.
func SdivVal(x, y uint64, w uint) uint64 {
	sx, sy := toSigned(x, w), toSigned(y, w)
	if sy == 0 {
		if sx < 0 {
			return 1
		}
		return AllOnes(w)
	}

	// Wraps on MinInt64 / -1 for all widths.
	if sy == -1 {
		return MaskToSize(uint64(-sx), w)
	}
	return MaskToSize(uint64(sx/sy), w)
}

// SremVal returns the signed remainder of two w-bit values. Division by zero
// yields the dividend.
func SremVal(x, y uint64, w uint) uint64 {
	if MaskToSize(y, w) == 0 {
		return x
	}
	sx, sy := toSigned(x, w), toSigned(y, w)
	if sy == -1 {
		return 0
	}
	return MaskToSize(uint64(sx%sy), w)
}

// UdivVal returns the unsigned quotient. Division by zero yields all-ones.
func UdivVal(x, y uint64, w uint) uint64 {
	if y == 0 {
		return AllOnes(w)
	}
	return x / y
}

// UremVal returns the unsigned remainder. Division by zero yields the dividend.
func UremVal(x, y uint64, w uint) uint64 {
	if y == 0 {
		return x
	}
	return x % y
}

// SltVal returns 1 if x < y as signed w-bit values.
func SltVal(x, y uint64, w uint) uint64 {
	return boolVal(toSigned(x, w) < toSigned(y, w))
}

// SleVal returns 1 if x <= y as signed w-bit values.
func SleVal(x, y uint64, w uint) uint64 {
	return boolVal(toSigned(x, w) <= toSigned(y, w))
}

func boolVal(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// EvalConst computes a binary operator over two w-bit constants. Operands
// and the result are masked to w.
func EvalConst(op Op, x, y uint64, w uint) uint64 {
	x, y = MaskToSize(x, w), MaskToSize(y, w)
	var v uint64
	switch op {
	case OpAdd:
		v = x + y
	case OpSub:
		v = x - y
	case OpMul:
		v = x * y
	case OpAnd:
		v = x & y
	case OpOr:
		v = x | y
	case OpXor:
		v = x ^ y
	case OpNand:
		v = ^(x & y)
	case OpNor:
		v = ^(x | y)
	case OpUdiv:
		v = UdivVal(x, y, w)
	case OpSdiv:
		v = SdivVal(x, y, w)
	case OpUrem:
		v = UremVal(x, y, w)
	case OpSrem:
		v = SremVal(x, y, w)
	case OpUlt:
		v = boolVal(x < y)
	case OpUle:
		v = boolVal(x <= y)
	case OpSlt:
		v = SltVal(x, y, w)
	case OpSle:
		v = SleVal(x, y, w)
	case OpEqual:
		v = boolVal(x == y)
	case OpShl:
		v = ShlVal(x, y, w)
	case OpLshr:
		v = ShrVal(x, y, w)
	case OpAshr:
		v = AshrVal(x, y, w)
	default:
		panic("unreachable")
	}
	return MaskToSize(v, w)
}

// EvalConst1 computes a unary operator over a w-bit constant.
func EvalConst1(op Op, x uint64, w uint) uint64 {
	x = MaskToSize(x, w)
	switch op {
	case OpNot:
		return MaskToSize(^x, w)
	case OpNeg:
		return MaskToSize(-x, w)
	default:
		panic("unreachable")
	}
}
