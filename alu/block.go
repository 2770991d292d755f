package alu

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/loki"
)

// Handler input registers.
const (
	RegX   = "x" // first operand
	RegY   = "y" // second operand
	RegC   = "c" // immediate
	RegKey = "k" // slot key
)

var inputNames = [...]string{RegX, RegY}

// Block represents a single lifted instruction prepared for a handler slot.
// Its inputs are renamed to x and y and its constant to c, so two
// instructions that differ only in registers and immediates share the same
// block expression.
type Block struct {
	Output    loki.Expr   `json:"output"`
	Inputs    []loki.Expr `json:"inputs"`
	Immediate uint64      `json:"immediate"`
	Expr      loki.Expr   `json:"expr"`
}

// NewBlock returns the block for an assignment. Panics if the right-hand
// side reads more than two distinct registers or holds more than one
// distinct constant.
func NewBlock(a loki.Assignment) *Block {
	inputs := a.RHS.UniqueVars()
	if len(inputs) > len(inputNames) {
		panic(fmt.Sprintf("assert: too many block inputs: %s", a))
	}

	expr := a.RHS.Clone()
	for i := range expr {
		if !expr[i].IsVar() {
			continue
		}
		for j, in := range inputs {
			if expr[i] == in.Root() {
				expr[i].Name = inputNames[j]
				break
			}
		}
	}

	b := &Block{Output: a.LHS, Inputs: inputs}

	values := make(map[uint64]struct{})
	for _, c := range expr.Constants() {
		values[c.ConstValue()] = struct{}{}
		b.Immediate = c.ConstValue()
	}
	if len(values) > 1 {
		panic(fmt.Sprintf("assert: too many block constants: %s", a))
	}
	for i := range expr {
		if expr[i].IsConst() {
			expr[i] = loki.LinearExpr{Op: loki.OpReg, Name: RegC, Width: expr[i].Width}
		}
	}

	// Memory handlers receive the access width or allocation size.
	switch root := expr.Root(); root.Op {
	case loki.OpLoad, loki.OpStore:
		b.Immediate = uint64(root.Width)
	case loki.OpAlloc:
		b.Immediate = root.Value
	}

	b.Expr = Lift(expr)
	return b
}

// NewBlocks returns one block per assignment.
func NewBlocks(a []loki.Assignment) []*Block {
	blocks := make([]*Block, len(a))
	for i := range a {
		blocks[i] = NewBlock(a[i])
	}
	return blocks
}

// IsMemoryOp returns true if the block is executed by the memory handler.
func (b *Block) IsMemoryOp() bool { return b.Expr.IsMemoryOp() }

// String returns a single-line description of the block.
func (b *Block) String() string {
	inputs := make([]string, len(b.Inputs))
	for i, in := range b.Inputs {
		inputs[i] = in.String()
	}
	return fmt.Sprintf("%s = %s [inputs=%s imm=%#x]", b.Output, b.Expr, strings.Join(inputs, ","), b.Immediate)
}

// Lift rewrites e to operate on 64-bit registers. Results narrower than 64
// bits are masked back to their width so a register always holds the
// zero-extended value.
func Lift(e loki.Expr) loki.Expr {
	return loki.Evaluate[loki.Expr](lifter{}, e)
}

// lifter implements loki.Evaluator[loki.Expr].
type lifter struct{}

func (lifter) EvalOp0(e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpReg:
		return loki.Reg64(e.Name)
	case loki.OpConst:
		return loki.Const64(e.Value)
	case loki.OpAlloc:
		return loki.Alloc(e.Value, e.Width)
	default:
		panic("assert: operator not supported by lifter: " + e.Op.String())
	}
}

func (lifter) EvalOp1(x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpNot:
		return loki.SemanticDowncast(loki.Not(x, loki.Width64), e.Width)
	case loki.OpNeg:
		return loki.SemanticDowncast(loki.Neg(x, loki.Width64), e.Width)
	case loki.OpZeroExtend:
		return loki.SemanticDowncast(loki.ZeroExtend(x, loki.Width64), e.Width)
	case loki.OpSlice:
		if e.Start != 0 {
			panic(fmt.Sprintf("assert: slice must start at bit 0: %d", e.Start))
		}
		return loki.SemanticDowncast(x, e.Width)
	case loki.OpLoad:
		return loki.Load(x, e.Width)
	case loki.OpMem:
		return loki.Mem(x, e.Width)
	default:
		panic("assert: operator not supported by lifter: " + e.Op.String())
	}
}

func (lifter) EvalOp2(y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpStore:
		return loki.Store(x, y, e.Width)
	case loki.OpAdd, loki.OpSub, loki.OpMul, loki.OpUdiv, loki.OpSdiv, loki.OpUrem, loki.OpSrem,
		loki.OpShl, loki.OpLshr, loki.OpAshr, loki.OpAnd, loki.OpOr, loki.OpXor, loki.OpNand, loki.OpNor,
		loki.OpUlt, loki.OpSlt, loki.OpUle, loki.OpSle, loki.OpEqual:
		// Ashr of a negative narrow value loses its sign when masked, so
		// lifted programs compute signed operations on explicit extensions.
		return loki.SemanticDowncast(loki.Op2(x, y, loki.LinearExpr{Op: e.Op, Width: loki.Width64}), e.Width)
	default:
		panic("assert: operator not supported by lifter: " + e.Op.String())
	}
}

func (lifter) EvalOp3(z, y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	panic("assert: operator not supported by lifter: " + e.Op.String())
}
