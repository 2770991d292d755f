package alu

import (
	"math/rand"

	"github.com/benbjohnson/loki"
)

// DecoyBuilder generates random handler semantics used to fill slots that
// carry no program semantics. Decoys read the same inputs as real slots and
// may contain key checks of their own.
type DecoyBuilder struct {
	rng *rand.Rand
}

// NewDecoyBuilder returns a new instance of DecoyBuilder.
func NewDecoyBuilder(rng *rand.Rand) *DecoyBuilder {
	return &DecoyBuilder{rng: rng}
}

// Generate returns n random decoy expressions.
func (b *DecoyBuilder) Generate(n int) []loki.Expr {
	a := make([]loki.Expr, n)
	for i := range a {
		a[i] = b.Random()
	}
	return a
}

// Random returns a decoy expression of one to three expansion steps.
func (b *DecoyBuilder) Random() loki.Expr {
	return b.expand(b.rng.Intn(3)+1, loki.Width64)
}

func (b *DecoyBuilder) expand(n int, w uint) loki.Expr {
	expr := b.production(w)
	for i := 0; i < n; i++ {
		indices := nonTerminalIndices(expr)
		if len(indices) == 0 {
			return expr
		}
		expr = expr.ReplaceAt(indices[b.rng.Intn(len(indices))], b.production(w))
	}

	// Terminals are single elements so remaining indices stay valid.
	for _, i := range nonTerminalIndices(expr) {
		expr = expr.ReplaceAt(i, b.terminal(w))
	}
	return expr
}

func (b *DecoyBuilder) production(w uint) loki.Expr {
	x, y, z := loki.NT(w), loki.NT(w), loki.NT(w)

	switch b.rng.Intn(14) {
	case 0:
		return loki.Add(x, y, w)
	case 1:
		return loki.Sub(x, y, w)
	case 2:
		return loki.Mul(x, y, w)
	case 3:
		return loki.ShlPlain(x, y, w)
	case 4:
		return loki.And(x, y, w)
	case 5:
		return loki.Or(x, y, w)
	case 6:
		return loki.Xor(x, y, w)
	case 7:
		return loki.Nand(x, y, w)
	case 8:
		return loki.Nor(x, y, w)
	case 9:
		return loki.Not(x, w)
	case 10:
		return loki.Neg(x, w)
	case 11:
		return loki.SemanticsIte(x, y, z)
	case 12:
		// Divisibility check of a random value by the low key half.
		return loki.CheckIfZero(
			loki.Urem(
				loki.Const(b.rng.Uint64(), w),
				loki.And(loki.Reg64(RegKey), loki.Const(1<<32-1, w), w),
				w,
			),
			loki.Width64,
		)
	default:
		// Equality check of the low 16 key bits.
		return loki.CheckIfZero(
			loki.Sub(
				loki.SemanticsSlice(loki.Reg64(RegKey), loki.Const64(0), loki.Const64(15), loki.Width64),
				loki.Const64(loki.SliceVal(b.rng.Uint64(), 0, 15)),
				loki.Width64,
			),
			loki.Width64,
		).Simplify()
	}
}

func (b *DecoyBuilder) terminal(w uint) loki.Expr {
	switch b.rng.Intn(6) {
	case 0:
		return loki.Reg(RegX, w)
	case 1:
		return loki.Reg(RegY, w)
	case 2:
		return loki.Reg(RegC, w)
	case 3:
		return loki.Reg(RegKey, w)
	case 4:
		return loki.Const(0, w)
	default:
		return loki.Const(1, w)
	}
}

func nonTerminalIndices(e loki.Expr) []int {
	var a []int
	for i, x := range e {
		if x.IsNonTerminal() {
			a = append(a, i)
		}
	}
	return a
}
