package lift

import (
	"context"
	"math/rand"
	"runtime"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/config"
	"golang.org/x/sync/errgroup"
)

// superoptimizeRounds is the number of inlining rounds per instruction.
const superoptimizeRounds = 100

// SuperOptimize merges SSA instructions into larger ones by inlining the
// definitions of randomly chosen registers. A merged instruction is kept only
// while it reads at most two distinct registers and one distinct constant so
// that it still fits a single handler slot. Instructions that are no longer
// referenced are removed afterward.
//
// Memory operations are never merged into other instructions.
func SuperOptimize(ctx context.Context, a []loki.Assignment, cfg config.Config, rng *rand.Rand) ([]loki.Assignment, error) {
	defs := definitions(a)

	seeds := make([]int64, len(a))
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	other := make([]loki.Assignment, len(a))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, instr := range a {
		if instr.RHS.IsMemoryOp() {
			other[i] = instr
			continue
		}

		i, instr := i, instr
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			other[i] = loki.NewAssignment(instr.LHS, superoptimize(rng, instr.RHS, defs, cfg))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return EliminateDeadCode(other), nil
}

func superoptimize(rng *rand.Rand, e loki.Expr, defs map[string]loki.Expr, cfg config.Config) loki.Expr {
	minLen := cfg.MinSuperhandlerDepth
	maxLen := minLen + rng.Intn(cfg.MaxSuperhandlerDepth-minLen+1)

	for i := 0; i < superoptimizeRounds; i++ {
		candidate := e
		for j := rng.Intn(5); j > 0; j-- {
			candidate = inlineRandomVar(rng, candidate, defs)
		}

		if len(candidate) >= minLen && len(candidate) <= maxLen &&
			len(candidate.UniqueVars()) <= 2 && len(candidate.UniqueConstants()) <= 1 {
			e = candidate
		}
	}
	return e
}

// inlineRandomVar replaces every use of a random register of e with its
// definition. Registers defined by memory operations are left in place.
func inlineRandomVar(rng *rand.Rand, e loki.Expr, defs map[string]loki.Expr) loki.Expr {
	vars := e.Vars()
	if len(vars) == 0 {
		return e
	}

	v := vars[rng.Intn(len(vars))]
	def, ok := defs[v.Key()]
	if !ok || def.IsMemoryOp() {
		return e
	}
	return e.ReplaceSubexpr(v, def)
}

// EliminateDeadCode returns the assignments that contribute to the final
// assignment or to a memory operation. Order is preserved.
func EliminateDeadCode(a []loki.Assignment) []loki.Assignment {
	if len(a) == 0 {
		return nil
	}
	defs := definitions(a)

	worklist := []loki.Expr{a[len(a)-1].LHS}
	for _, instr := range a {
		if instr.RHS.IsMemoryOp() {
			worklist = append(worklist, instr.LHS)
		}
	}

	used := make(map[string]struct{})
	for len(worklist) > 0 {
		v := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		key := v.Key()
		if _, ok := used[key]; ok {
			continue
		}
		used[key] = struct{}{}

		for _, dep := range defs[key].Vars() {
			if _, ok := defs[dep.Key()]; ok {
				worklist = append(worklist, dep)
			}
		}
	}

	var other []loki.Assignment
	for _, instr := range a {
		if _, ok := used[instr.LHS.Key()]; ok {
			other = append(other, instr)
		}
	}
	return other
}

// definitions maps each destination to its right-hand side.
func definitions(a []loki.Assignment) map[string]loki.Expr {
	m := make(map[string]loki.Expr, len(a))
	for _, instr := range a {
		m[instr.LHS.Key()] = instr.RHS
	}
	return m
}
