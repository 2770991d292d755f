package loki

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// String returns the infix representation of the expression.
func (e Expr) String() string {
	if len(e) == 0 {
		return "<empty>"
	}
	return Evaluate[string](stringer{}, e)
}

// stringer renders expressions as infix text.
type stringer struct{}

func (stringer) EvalOp0(e LinearExpr) string {
	switch e.Op {
	case OpConst:
		return fmt.Sprintf("0x%x", e.Value)
	case OpReg:
		return e.Name
	case OpE:
		return "E"
	case OpNop:
		return "NOP"
	case OpAlloc:
		return fmt.Sprintf("Alloc(%d)", e.Value)
	default:
		panic("unreachable")
	}
}

func (stringer) EvalOp1(x string, e LinearExpr) string {
	switch e.Op {
	case OpZeroExtend:
		return fmt.Sprintf("ZeroExtend(%s, %d)", x, e.Width)
	case OpSignExtend:
		return fmt.Sprintf("SignExtend(%s, %d)", x, e.Width)
	case OpTrunc:
		return fmt.Sprintf("Trunc(%s, %d)", x, e.Width)
	case OpNot:
		return fmt.Sprintf("(~ %s)", x)
	case OpNeg:
		return fmt.Sprintf("(- %s)", x)
	case OpMem:
		return fmt.Sprintf("@%d[%s]", e.Width, x)
	case OpSlice:
		return fmt.Sprintf("Slice(%s, %d, %d)", x, e.Start, e.End)
	case OpLoad:
		return fmt.Sprintf("Load(%s, %d)", x, e.Width)
	case OpBitCast:
		return fmt.Sprintf("BitCast(%s, %d)", x, e.Width)
	case OpAlloca:
		return fmt.Sprintf("Alloca(%s)", x)
	default:
		panic("unreachable")
	}
}

var infixSymbols = map[Op]string{
	OpAssign: "=",
	OpAdd:    "+",
	OpSub:    "-",
	OpAnd:    "&",
	OpOr:     "|",
	OpXor:    "^",
	OpNand:   "NAND",
	OpNor:    "NOR",
	OpMul:    "*",
	OpUdiv:   "/",
	OpSdiv:   "/s",
	OpUrem:   "%",
	OpSrem:   "%s",
	OpUlt:    "<",
	OpSlt:    "<s",
	OpUle:    "<=",
	OpSle:    "<=s",
	OpEqual:  "==",
	OpAshr:   "a>>",
	OpLshr:   ">>",
	OpShl:    "<<",
	OpConcat: "++",
}

func (stringer) EvalOp2(y, x string, e LinearExpr) string {
	switch e.Op {
	case OpGEP:
		return fmt.Sprintf("GEP(%s, %s)", x, y)
	case OpStore:
		return fmt.Sprintf("Store(%s, %s, %d)", x, y, e.Width)
	}

	sym, ok := infixSymbols[e.Op]
	assert(ok, "no infix symbol: %s", e.Op)
	return "(" + x + " " + sym + " " + y + ")"
}

func (stringer) EvalOp3(z, y, x string, e LinearExpr) string {
	assert(e.Op == OpIte, "unexpected ternary op: %s", e.Op)
	return fmt.Sprintf("(%s ? %s : %s)", x, y, z)
}

// Tree returns an indented tree rendering of the expression.
func (e Expr) Tree() string {
	tree := treeprint.NewWithRoot(treeLabel(e.Root()))
	for _, arg := range e.Args() {
		addTreeNode(tree, arg)
	}
	return tree.String()
}

func addTreeNode(tree treeprint.Tree, e Expr) {
	if e.Root().Arity() == 0 {
		tree.AddNode(treeLabel(e.Root()))
		return
	}
	branch := tree.AddBranch(treeLabel(e.Root()))
	for _, arg := range e.Args() {
		addTreeNode(branch, arg)
	}
}

func treeLabel(e LinearExpr) string {
	switch e.Op {
	case OpConst, OpAlloc:
		return fmt.Sprintf("%s 0x%x:%d", e.Op, e.Value, e.Width)
	case OpReg:
		return fmt.Sprintf("%s %s:%d", e.Op, e.Name, e.Width)
	case OpSlice:
		return fmt.Sprintf("%s [%d:%d]:%d", e.Op, e.Start, e.End, e.Width)
	default:
		return fmt.Sprintf("%s:%d", e.Op, e.Width)
	}
}
