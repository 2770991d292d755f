package loki

import (
	"bytes"
	"fmt"

	"github.com/benbjohnson/immutable"
)

// SymbolicState maps variables and memory addresses to their current values.
//
// Both maps are persistent so a state can be snapshotted and restored in
// constant time.
type SymbolicState struct {
	variables *immutable.SortedMap
	memory    *immutable.SortedMap

	// Contents at construction time, restored by Reset().
	initVariables *immutable.SortedMap
	initMemory    *immutable.SortedMap
}

// NewSymbolicState returns a state where every symbol maps to itself.
func NewSymbolicState(symbols []LinearExpr) *SymbolicState {
	variables := immutable.NewSortedMap(&exprComparer{})
	for _, sym := range symbols {
		variables = variables.Set(Expr{sym}, Expr{sym})
	}
	memory := immutable.NewSortedMap(&exprComparer{})

	return &SymbolicState{
		variables:     variables,
		memory:        memory,
		initVariables: variables,
		initMemory:    memory,
	}
}

// Reset restores the state to its contents at construction.
func (s *SymbolicState) Reset() {
	s.variables, s.memory = s.initVariables, s.initMemory
}

// Clear removes all variables and memory.
func (s *SymbolicState) Clear() {
	s.variables = immutable.NewSortedMap(&exprComparer{})
	s.memory = immutable.NewSortedMap(&exprComparer{})
}

// Clone returns a snapshot of the state.
func (s *SymbolicState) Clone() *SymbolicState {
	other := *s
	return &other
}

// Update copies every variable and memory cell of other into s.
func (s *SymbolicState) Update(other *SymbolicState) {
	for itr := other.memory.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		s.memory = s.memory.Set(k, v)
	}
	for itr := other.variables.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		s.variables = s.variables.Set(k, v)
	}
}

// Variable returns the value bound to the register expression k.
func (s *SymbolicState) Variable(k Expr) (Expr, bool) {
	if v, ok := s.variables.Get(k); ok {
		return v.(Expr), true
	}
	return nil, false
}

// SetVariable binds the register expression k to v.
func (s *SymbolicState) SetVariable(k, v Expr) {
	s.variables = s.variables.Set(k.Clone(), v)
}

// Memory returns the value stored at addr.
func (s *SymbolicState) Memory(addr Expr) (Expr, bool) {
	if v, ok := s.memory.Get(addr); ok {
		return v.(Expr), true
	}
	return nil, false
}

// SetMemory stores v at addr.
func (s *SymbolicState) SetMemory(addr, v Expr) {
	s.memory = s.memory.Set(addr.Clone(), v)
}

// MemoryLen returns the number of written memory cells.
func (s *SymbolicState) MemoryLen() int { return s.memory.Len() }

// Get returns the value of a register or memory expression.
// Panics if k is unbound.
func (s *SymbolicState) Get(k Expr) Expr {
	var v Expr
	var ok bool
	switch k.Op() {
	case OpReg:
		v, ok = s.Variable(k)
	case OpMem:
		v, ok = s.Memory(k[:len(k)-1])
	default:
		panic(fmt.Sprintf("assert: not a variable or memory expression: %s", k))
	}
	assert(ok, "variable %s not in map", k)
	return v
}

// Set binds a register or stores to a memory expression's address.
func (s *SymbolicState) Set(k, v Expr) {
	switch k.Op() {
	case OpReg:
		s.SetVariable(k, v)
	case OpMem:
		s.SetMemory(k[:len(k)-1], v)
	case OpConst:
		// Constant destinations 0 and 1 are sinks for flags.
		assert(k.IsConst() && k[0].Value <= 1, "unsupported destination: %s", k)
		s.SetVariable(k, v)
	default:
		panic(fmt.Sprintf("assert: unsupported destination: %s", k))
	}
}

// ReplaceArgument returns the bound value of a single register expression.
// Any other expression, including the placeholder, is returned unchanged.
func (s *SymbolicState) ReplaceArgument(e Expr) Expr {
	if !e.IsVar() || e.IsNonTerminal() {
		return e
	}
	v, ok := s.Variable(e)
	assert(ok, "variable %s not in map", e)
	return v
}

// String returns a listing of all variables and memory cells.
func (s *SymbolicState) String() string {
	var buf bytes.Buffer
	for itr := s.variables.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		fmt.Fprintf(&buf, "%s = %s\n", k.(Expr), v.(Expr))
	}
	for itr := s.memory.Iterator(); !itr.Done(); {
		k, v := itr.Next()
		fmt.Fprintf(&buf, "@[%s] = %s\n", k.(Expr), v.(Expr))
	}
	return buf.String()
}
