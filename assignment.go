package loki

import (
	"fmt"
	"strings"
)

// Assignment represents a store of RHS into a register or memory LHS.
type Assignment struct {
	LHS Expr `json:"lhs"`
	RHS Expr `json:"rhs"`
}

// NewAssignment returns a new assignment. Panics if widths differ.
func NewAssignment(lhs, rhs Expr) Assignment {
	assert(lhs.Width() == rhs.Width(), "assignment width mismatch: %s (%d) = %s (%d)", lhs, lhs.Width(), rhs, rhs.Width())
	return Assignment{LHS: lhs, RHS: rhs}
}

// Width returns the bit width of the assignment.
func (a Assignment) Width() uint { return a.LHS.Width() }

// IsNop returns true if both sides are no-ops.
func (a Assignment) IsNop() bool { return a.LHS.IsNop() && a.RHS.IsNop() }

// Expr returns the assignment as a single expression.
func (a Assignment) Expr() Expr { return Assign(a.LHS, a.RHS) }

// String returns the string representation of the assignment.
func (a Assignment) String() string {
	return fmt.Sprintf("%s = %s", a.LHS, a.RHS)
}

// FormatAssignments returns one assignment per line.
func FormatAssignments(a []Assignment) string {
	var sb strings.Builder
	for _, x := range a {
		sb.WriteString(x.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// AssignmentSymbols returns every register used on either side of a.
func AssignmentSymbols(a []Assignment) []LinearExpr {
	var symbols []LinearExpr
	for _, x := range a {
		symbols = append(symbols, x.LHS.Symbols()...)
		symbols = append(symbols, x.RHS.Symbols()...)
	}
	return symbols
}

// AssignmentEvaluator symbolically executes assignments in order.
type AssignmentEvaluator struct {
	simplifier *Simplifier
}

// NewAssignmentEvaluator returns an evaluator with a reflexive state of symbols.
func NewAssignmentEvaluator(symbols []LinearExpr) *AssignmentEvaluator {
	return &AssignmentEvaluator{simplifier: NewSimplifier(symbols)}
}

// State returns the evaluator's current state.
func (ev *AssignmentEvaluator) State() *SymbolicState { return ev.simplifier.State }

// Eval evaluates the right-hand side of a and writes it to the left-hand
// side. Memory destinations are keyed by their address expression.
func (ev *AssignmentEvaluator) Eval(a Assignment) {
	rhs := ev.simplifier.Eval(a.RHS)

	tmp := NewSymbolicState(nil)
	tmp.Set(a.LHS, rhs)
	ev.simplifier.State.Update(tmp)
}

// EvalExpr returns the simplified value of e under the current state.
func (ev *AssignmentEvaluator) EvalExpr(e Expr) Expr {
	return ev.simplifier.Eval(e)
}

// Get returns the current value of a register or memory expression.
func (ev *AssignmentEvaluator) Get(k Expr) Expr {
	return ev.simplifier.State.Get(k)
}

// Reset restores the initial reflexive state.
func (ev *AssignmentEvaluator) Reset() {
	ev.simplifier.State.Reset()
}
