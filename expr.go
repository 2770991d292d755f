package loki

import (
	"fmt"
	"strconv"
	"strings"
)

// LinearExpr represents a single operator within a postfix expression.
//
// Terminal operators carry a payload: Const and Alloc use Value, Reg uses
// Name, and Slice uses Start and End.
type LinearExpr struct {
	Op    Op     `json:"op"`
	Width uint   `json:"width"`
	Value uint64 `json:"value,omitempty"`
	Name  string `json:"name,omitempty"`
	Start uint8  `json:"start,omitempty"`
	End   uint8  `json:"end,omitempty"`
}

// Arity returns the number of operands consumed by the element.
func (e LinearExpr) Arity() int { return e.Op.Arity() }

// IsConst returns true if e is a constant leaf.
func (e LinearExpr) IsConst() bool { return e.Op == OpConst }

// IsVar returns true if e is a register leaf.
func (e LinearExpr) IsVar() bool { return e.Op == OpReg }

// IsNonTerminal returns true if e is the grammar placeholder register.
func (e LinearExpr) IsNonTerminal() bool { return e.Op == OpReg && e.Name == NonTerminal }

// CompareLinearExpr returns an integer comparing two elements.
// Elements are ordered by width, then operator, then payload.
func CompareLinearExpr(a, b LinearExpr) int {
	if a.Width < b.Width {
		return -1
	} else if a.Width > b.Width {
		return 1
	}

	if a.Op < b.Op {
		return -1
	} else if a.Op > b.Op {
		return 1
	}

	if a.Value < b.Value {
		return -1
	} else if a.Value > b.Value {
		return 1
	}

	if cmp := strings.Compare(a.Name, b.Name); cmp != 0 {
		return cmp
	}

	if a.Start < b.Start {
		return -1
	} else if a.Start > b.Start {
		return 1
	}

	if a.End < b.End {
		return -1
	} else if a.End > b.End {
		return 1
	}
	return 0
}

// Expr represents a bit-vector expression in postfix order. Every operator
// follows its operands so a subtree always occupies a contiguous range.
type Expr []LinearExpr

// Width returns the bit width of the expression.
func (e Expr) Width() uint {
	assert(len(e) > 0, "empty expression")
	return e[len(e)-1].Width
}

// Root returns the top-level operator of the expression.
func (e Expr) Root() LinearExpr {
	assert(len(e) > 0, "empty expression")
	return e[len(e)-1]
}

// Op returns the top-level operator tag.
func (e Expr) Op() Op { return e.Root().Op }

// Clone returns a copy of e that does not share its backing array.
func (e Expr) Clone() Expr {
	other := make(Expr, len(e))
	copy(other, e)
	return other
}

// IsConst returns true if e is a single constant leaf.
func (e Expr) IsConst() bool { return len(e) == 1 && e[0].Op == OpConst }

// IsVar returns true if e is a single register leaf.
func (e Expr) IsVar() bool { return len(e) == 1 && e[0].Op == OpReg }

// IsNop returns true if the top-level operator is a no-op.
func (e Expr) IsNop() bool { return e.Op() == OpNop }

// ConstValue returns the value of a constant expression.
func (e Expr) ConstValue() uint64 {
	assert(e.IsConst(), "not a constant: %s", e)
	return e[0].Value
}

// HasConst returns true if e is a constant with value v.
func (e Expr) HasConst(v uint64) bool {
	return e.IsConst() && e[0].Value == v
}

// Name returns the register name of a register expression.
func (e Expr) Name() string {
	assert(e.IsVar(), "not a register: %s", e)
	return e[0].Name
}

// IsNonTerminal returns true if any element is the grammar placeholder.
func (e Expr) IsNonTerminal() bool {
	for _, x := range e {
		if x.IsNonTerminal() {
			return true
		}
	}
	return false
}

// IsMemoryOp returns true if the top-level operator touches memory.
func (e Expr) IsMemoryOp() bool {
	switch e.Op() {
	case OpLoad, OpStore, OpAlloc, OpMem:
		return true
	default:
		return false
	}
}

// Depth returns the height of the expression tree. Placeholders count as zero.
func (e Expr) Depth() int {
	stack := make([]int, 0, len(e))
	for _, x := range e {
		if n := x.Arity(); n > 0 {
			depth := 0
			for i := 0; i < n; i++ {
				depth = max(depth, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, depth+1)
		} else if x.Op == OpE {
			stack = append(stack, 0)
		} else {
			stack = append(stack, 1)
		}
	}
	assert(len(stack) == 1, "malformed expression: stack=%d", len(stack))
	return stack[0]
}

// Sizes returns the length of the subtree rooted at each position.
// The subtree ending at index i occupies e[i+1-sizes[i] : i+1].
func (e Expr) Sizes() []int {
	ret := make([]int, 0, len(e))
	for i, x := range e {
		switch x.Arity() {
		case 0:
			ret = append(ret, 1)
		case 1:
			ret = append(ret, ret[i-1]+1)
		case 2:
			a := ret[i-1]
			b := ret[i-1-a]
			ret = append(ret, a+b+1)
		case 3:
			a := ret[i-1]
			b := ret[i-1-a]
			c := ret[i-1-a-b]
			ret = append(ret, a+b+c+1)
		default:
			panic("unreachable")
		}
	}
	return ret
}

// Slice returns a copy of the elements in [start, end).
func (e Expr) Slice(start, end int) Expr {
	return e[start:end].Clone()
}

// Args returns the operand subtrees of the top-level operator.
func (e Expr) Args() []Expr {
	var stack []Expr
	for _, x := range e[:len(e)-1] {
		n := x.Arity()
		args := stack[len(stack)-n:]
		stack = stack[:len(stack)-n]

		var sub Expr
		for _, arg := range args {
			sub = append(sub, arg...)
		}
		sub = append(sub, x)
		stack = append(stack, sub)
	}
	return stack
}

// ReplaceAt returns a copy of e with the single element at pos replaced by
// the expression other.
func (e Expr) ReplaceAt(pos int, other Expr) Expr {
	ret := make(Expr, 0, len(e)-1+len(other))
	ret = append(ret, e[:pos]...)
	ret = append(ret, other...)
	ret = append(ret, e[pos+1:]...)
	return ret
}

// ReplaceRange returns a copy of e with the elements in [start, end)
// replaced by the expression other.
func (e Expr) ReplaceRange(start, end int, other Expr) Expr {
	ret := make(Expr, 0, len(e)-(end-start)+len(other))
	ret = append(ret, e[:start]...)
	ret = append(ret, other...)
	ret = append(ret, e[end:]...)
	return ret
}

// RenameVar returns a copy of e with every register named old renamed to name.
func (e Expr) RenameVar(old, name string) Expr {
	ret := e.Clone()
	for i := range ret {
		if ret[i].Op == OpReg && ret[i].Name == old {
			ret[i].Name = name
		}
	}
	return ret
}

// BindVar returns a copy of e with every register named name replaced by a
// constant of the register's width.
func (e Expr) BindVar(name string, value uint64) Expr {
	ret := e.Clone()
	for i := range ret {
		if ret[i].Op == OpReg && ret[i].Name == name {
			ret[i] = LinearExpr{Op: OpConst, Width: ret[i].Width, Value: MaskToSize(value, ret[i].Width)}
		}
	}
	return ret
}

// ContainsVar returns true if e references a register named name.
func (e Expr) ContainsVar(name string) bool {
	for _, x := range e {
		if x.Op == OpReg && x.Name == name {
			return true
		}
	}
	return false
}

// Vars returns every register leaf in order of appearance.
func (e Expr) Vars() []Expr {
	var a []Expr
	for _, x := range e {
		if x.IsVar() {
			a = append(a, Expr{x})
		}
	}
	return a
}

// UniqueVars returns the distinct register leaves in order of first appearance.
func (e Expr) UniqueVars() []Expr {
	return uniqueLeaves(e, OpReg)
}

// Constants returns every constant leaf in order of appearance.
func (e Expr) Constants() []Expr {
	var a []Expr
	for _, x := range e {
		if x.IsConst() {
			a = append(a, Expr{x})
		}
	}
	return a
}

// UniqueConstants returns the distinct constant leaves in order of first appearance.
func (e Expr) UniqueConstants() []Expr {
	return uniqueLeaves(e, OpConst)
}

func uniqueLeaves(e Expr, op Op) []Expr {
	var a []Expr
	seen := make(map[LinearExpr]struct{})
	for _, x := range e {
		if x.Op != op {
			continue
		} else if _, ok := seen[x]; ok {
			continue
		}
		seen[x] = struct{}{}
		a = append(a, Expr{x})
	}
	return a
}

// Symbols returns the register leaves used to seed a reflexive state.
func (e Expr) Symbols() []LinearExpr {
	var a []LinearExpr
	for _, x := range e {
		if x.IsVar() {
			a = append(a, LinearExpr{Op: OpReg, Name: x.Name, Width: x.Width})
		}
	}
	return a
}

// Equal returns true if a and b contain identical elements.
func (e Expr) Equal(other Expr) bool {
	if len(e) != len(other) {
		return false
	}
	for i := range e {
		if e[i] != other[i] {
			return false
		}
	}
	return true
}

// Key returns a canonical string for e that is unique per expression.
func (e Expr) Key() string {
	var sb strings.Builder
	for i, x := range e {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(x.Op.String())
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(x.Width), 10))
		switch x.Op {
		case OpConst, OpAlloc:
			fmt.Fprintf(&sb, ":%x", x.Value)
		case OpReg:
			sb.WriteByte(':')
			sb.WriteString(x.Name)
		case OpSlice:
			fmt.Fprintf(&sb, ":%d:%d", x.Start, x.End)
		}
	}
	return sb.String()
}

// Compare returns an integer comparing two expressions.
// The result will be 0 if a==b, -1 if a < b, and +1 if a > b.
func Compare(a, b Expr) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if cmp := CompareLinearExpr(a[i], b[i]); cmp != 0 {
			return cmp
		}
	}

	if len(a) < len(b) {
		return -1
	} else if len(a) > len(b) {
		return 1
	}
	return 0
}

// Simplify repeatedly simplifies e under a reflexive state until it reaches
// a fixed point.
func (e Expr) Simplify() Expr {
	symbols := e.Symbols()
	before, current := e, NewSimplifier(symbols).Eval(e)
	for !before.Equal(current) {
		before, current = current, NewSimplifier(symbols).Eval(current)
	}
	return current
}

// exprComparer compares two expressions. Implements immutable.Comparer.
type exprComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not an Expr.
func (c *exprComparer) Compare(a, b interface{}) int {
	return Compare(a.(Expr), b.(Expr))
}
