package rewrite

import (
	"fmt"
	"math/rand"

	"github.com/benbjohnson/loki"
	"golang.org/x/exp/slices"
)

// Rewriter replaces random subexpressions with larger equivalent expressions
// drawn from a rule table. A Rewriter is read-only after construction and may
// be shared between goroutines as long as each caller passes its own random
// source.
type Rewriter struct {
	rules map[loki.LinearExpr][]loki.Expr
}

// NewRewriter returns a rewriter over the rules of t. A nil table returns a
// rewriter that leaves every expression unchanged.
func NewRewriter(t *Table) *Rewriter {
	r := &Rewriter{}
	if t != nil {
		r.rules = t.Rules()
	}
	return r
}

// Enabled returns true if the rewriter holds any rules.
func (r *Rewriter) Enabled() bool { return len(r.rules) > 0 }

// RuleN returns the total number of rules available.
func (r *Rewriter) RuleN() int {
	var n int
	for _, a := range r.rules {
		n += len(a)
	}
	return n
}

// Rewrite applies between 20 and 30 rounds of rule substitution to e and
// returns the simplified result. Early rounds favor the largest subtrees.
// Memory operations are returned unchanged.
func (r *Rewriter) Rewrite(rng *rand.Rand, e loki.Expr) loki.Expr {
	if !r.Enabled() || e.IsMemoryOp() {
		return e
	}

	n := 20 + rng.Intn(11)
	for i := 0; i < n; i++ {
		acceptance := 0.05
		if i < 2 {
			acceptance = 0.7
		}

		start, end, sub := randSubExpr(rng, e, acceptance)

		key := sub.Root()
		if sub.IsVar() || sub.IsConst() {
			key = loki.Reg("p0", sub.Width()).Root()
		}

		rule, ok := r.rule(rng, key)
		if !ok {
			continue
		}
		e = e.ReplaceRange(start, end, applyRule(rng, sub, rule))
	}
	return e.Simplify()
}

// RewriteTop applies a single rule at the root of e.
func (r *Rewriter) RewriteTop(rng *rand.Rand, e loki.Expr) loki.Expr {
	if !r.Enabled() || e.IsMemoryOp() {
		return e
	}

	if rule, ok := r.rule(rng, e.Root()); ok {
		e = applyRule(rng, e, rule)
	}
	return e.Simplify()
}

func (r *Rewriter) rule(rng *rand.Rand, key loki.LinearExpr) (loki.Expr, bool) {
	a := r.rules[key]
	if len(a) == 0 {
		return nil, false
	}
	return a[rng.Intn(len(a))], true
}

// randSubExpr picks a random subtree of e with more than one element, if
// possible. With probability acceptance the pick is restricted to the ten
// largest subtrees.
func randSubExpr(rng *rand.Rand, e loki.Expr, acceptance float64) (start, end int, sub loki.Expr) {
	sizes := e.Sizes()

	var index int
	if rng.Float64() <= acceptance {
		order := make([]int, len(sizes))
		for i := range order {
			order[i] = i
		}
		slices.SortStableFunc(order, func(a, b int) int { return sizes[b] - sizes[a] })
		index = order[rng.Intn(min(10, len(order)))]
	} else {
		index = rng.Intn(len(sizes))
	}

	for sizes[index] == 1 && len(sizes) > 1 {
		index = rng.Intn(len(sizes))
	}

	start, end = index+1-sizes[index], index+1
	return start, end, e.Slice(start, end)
}

// applyRule instantiates rule with the operands of e. Parameter p<i> is bound
// to the i-th child, or to e itself for leaves. Unbound p1 & p2 are padded
// with a downcast of one of the handler inputs.
func applyRule(rng *rand.Rand, e, rule loki.Expr) loki.Expr {
	ret := rule

	if e.Root().Arity() == 0 {
		ret = bindParam(ret, "p0", e)
	}

	args := e.Args()
	for i := len(args) - 1; i >= 0; i-- {
		ret = bindParam(ret, fmt.Sprintf("p%d", i), args[i])
	}

	ret = bindParam(ret, "p1", randVar(rng, ret.Width()))
	ret = bindParam(ret, "p2", randVar(rng, ret.Width()))
	return ret
}

func bindParam(e loki.Expr, name string, value loki.Expr) loki.Expr {
	return e.ReplaceSubexpr(loki.Reg(name, value.Width()), value)
}

// handlerInputs are the registers visible inside a handler.
var handlerInputs = []string{"x", "y", "c", "k"}

func randVar(rng *rand.Rand, w uint) loki.Expr {
	return loki.SemanticDowncast(loki.Reg64(handlerInputs[rng.Intn(len(handlerInputs))]), w)
}
