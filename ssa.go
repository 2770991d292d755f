package loki

import (
	"strconv"
)

// TempName is the base name of SSA temporaries.
const TempName = "T"

// VersionSeparator joins a register name and its SSA version. It is not a
// valid register name character so versions never collide with input names.
const VersionSeparator = "."

// SSA converts assignments into single-assignment form. Every subexpression
// is bound to a temporary and each destination register receives a fresh
// version.
type SSA struct {
	versions map[string]int

	// Per-assignment state used while flattening.
	seen  map[string]Expr
	temps []Assignment
}

// NewSSA returns a new instance of SSA.
func NewSSA() *SSA {
	return &SSA{versions: make(map[string]int)}
}

// FromAssignments returns the SSA form of a. The destination of each
// assignment must be a register.
func FromAssignments(a []Assignment) []Assignment {
	return NewSSA().Convert(a)
}

// Convert flattens each assignment in order and binds its destination to a
// fresh register version.
func (s *SSA) Convert(a []Assignment) []Assignment {
	var ret []Assignment
	for _, x := range a {
		ret = append(ret, s.Flatten(x.RHS)...)

		lhs := s.define(x.LHS.Name(), x.Width())
		ret = append(ret, NewAssignment(lhs, s.use(TempName, x.Width())))
	}
	return ret
}

// Flatten returns one temporary assignment per distinct subexpression of e.
// The final assignment holds the value of e.
func (s *SSA) Flatten(e Expr) []Assignment {
	s.seen, s.temps = make(map[string]Expr), nil
	Evaluate[Expr](s, e)

	temps := s.temps
	s.seen, s.temps = nil, nil
	return temps
}

// define returns the next version of the register name.
func (s *SSA) define(name string, w uint) Expr {
	s.versions[name]++
	return Reg(versionName(name, s.versions[name]), w)
}

// use returns the current version of the register name.
func (s *SSA) use(name string, w uint) Expr {
	if n, ok := s.versions[name]; ok {
		return Reg(versionName(name, n), w)
	}
	return Reg(name, w)
}

func versionName(name string, n int) string {
	return name + VersionSeparator + strconv.Itoa(n)
}

// bind returns the temporary holding rhs, allocating one if needed.
func (s *SSA) bind(rhs Expr) Expr {
	key := rhs.Key()
	if tmp, ok := s.seen[key]; ok {
		return tmp
	}

	lhs := s.define(TempName, rhs.Width())
	s.temps = append(s.temps, NewAssignment(lhs, rhs))
	s.seen[key] = lhs
	return lhs
}

func (s *SSA) EvalOp0(e LinearExpr) Expr {
	switch e.Op {
	case OpReg:
		return s.bind(s.use(e.Name, e.Width))
	case OpConst, OpNop, OpAlloc:
		return s.bind(Expr{e})
	default:
		panic("unreachable")
	}
}

func (s *SSA) EvalOp1(x Expr, e LinearExpr) Expr {
	switch e.Op {
	case OpNot, OpNeg, OpSlice, OpZeroExtend, OpSignExtend, OpLoad, OpMem:
		return s.bind(Op1(x, e))
	default:
		panic("assert: operator not supported by SSA: " + e.Op.String())
	}
}

func (s *SSA) EvalOp2(y, x Expr, e LinearExpr) Expr {
	switch e.Op {
	case OpAssign, OpGEP:
		panic("assert: operator not supported by SSA: " + e.Op.String())
	}
	return s.bind(Op2(x, y, e))
}

func (s *SSA) EvalOp3(z, y, x Expr, e LinearExpr) Expr {
	assert(e.Op == OpIte, "operator not supported by SSA: %s", e.Op)
	return s.bind(Op3(x, y, z, e))
}
