package rewrite_test

import (
	"math/rand"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/rewrite"
	"github.com/google/go-cmp/cmp"
)

func TestRewriter_Rewrite(t *testing.T) {
	x, y := loki.Reg64("x"), loki.Reg64("y")
	r := rewrite.NewRewriter(newMBATable())

	t.Run("Equivalent", func(t *testing.T) {
		e := loki.Add(x, loki.Mul(y, loki.Const64(3), 64), 64)
		for seed := int64(0); seed < 10; seed++ {
			rng := rand.New(rand.NewSource(seed))
			other := r.Rewrite(rng, e)
			if other.Equal(e) {
				t.Fatalf("seed %d: expression not rewritten", seed)
			}
			assertEquivalent(t, rng, e, other)
		}
	})

	t.Run("Leaf", func(t *testing.T) {
		rng := rand.New(rand.NewSource(0))
		assertEquivalent(t, rng, x, r.Rewrite(rng, x))
	})

	t.Run("MemoryOp", func(t *testing.T) {
		e := loki.Load(x, 64)
		if diff := cmp.Diff(e, r.Rewrite(rand.New(rand.NewSource(0)), e)); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Disabled", func(t *testing.T) {
		e := loki.Add(x, y, 64)
		r := rewrite.NewRewriter(nil)
		if r.Enabled() {
			t.Fatal("expected disabled")
		} else if diff := cmp.Diff(e, r.Rewrite(rand.New(rand.NewSource(0)), e)); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestRewriter_RewriteTop(t *testing.T) {
	x, y := loki.Reg64("x"), loki.Reg64("y")
	r := rewrite.NewRewriter(newMBATable())
	if n := r.RuleN(); n != 2 {
		t.Fatalf("unexpected rule count: %d", n)
	}

	rng := rand.New(rand.NewSource(0))
	e := loki.Add(loki.Not(x, 64), y, 64)
	other := r.RewriteTop(rng, e)
	if s := other.String(); s != "((((~ x) & y) * 0x2) + ((~ x) ^ y))" {
		t.Fatalf("unexpected expr: %s", s)
	}
	assertEquivalent(t, rng, e, other)
}

// newMBATable returns a small table of well-known identities.
func newMBATable() *rewrite.Table {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")

	tbl := rewrite.NewTable()
	tbl.Insert(p0, loki.Xor(loki.Xor(p0, p1, 64), p1, 64))
	tbl.Insert(loki.Add(p0, p1, 64),
		loki.Add(loki.Xor(p0, p1, 64), loki.Mul(loki.And(p0, p1, 64), loki.Const64(2), 64), 64),
	)
	return tbl
}

// assertEquivalent evaluates a & b on random handler inputs.
func assertEquivalent(tb testing.TB, rng *rand.Rand, a, b loki.Expr) {
	tb.Helper()
	for i := 0; i < 20; i++ {
		var av, bv loki.Expr = a, b
		for _, name := range []string{"x", "y", "c", "k"} {
			v := rng.Uint64()
			av, bv = av.BindVar(name, v), bv.BindVar(name, v)
		}
		if x, y := av.Simplify(), bv.Simplify(); !x.Equal(y) {
			tb.Fatalf("mismatch: %s=%s, %s=%s", a, x, b, y)
		}
	}
}
