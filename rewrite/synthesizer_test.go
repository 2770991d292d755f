package rewrite_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/rewrite"
)

func TestSynthesizer_Synthesize(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	basics := rewrite.BasicSemantics(8)

	s := rewrite.NewSynthesizer(rng, 100, 8)
	if err := s.InitWithSelection(context.Background(), basics); err != nil {
		t.Fatal(err)
	} else if err := s.Synthesize(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	tbl := s.Table(basics)
	if n := tbl.Len(); n != len(basics) {
		t.Fatalf("unexpected class count: %d", n)
	}

	// Every member computes the same function as its representative.
	for _, c := range tbl.Classes() {
		if len(c.Members) == 0 {
			t.Fatalf("empty class: %s", c.Representative)
		}
		for _, m := range c.Members {
			for i := 0; i < 50; i++ {
				p0, p1 := rng.Uint64(), rng.Uint64()
				want := c.Representative.BindVar("p0", p0).BindVar("p1", p1).Simplify()
				got := m.BindVar("p0", p0).BindVar("p1", p1).Simplify()
				if !want.Equal(got) {
					t.Fatalf("%s != %s for p0=%#x, p1=%#x", m, c.Representative, p0, p1)
				}
			}
		}
	}

	if c := tbl.Class(loki.Add(loki.Reg("p0", 8), loki.Reg("p1", 8), 8)); !containsExpr(c.Members, "(p0 + p1)") {
		t.Fatalf("missing representative in class: %v", c.Members)
	}
}

func TestSynthesizer_Fingerprint(t *testing.T) {
	s := rewrite.NewSynthesizer(rand.New(rand.NewSource(0)), 10, 64)
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")

	a := s.Fingerprint(loki.Add(p0, p1, 64))
	if b := s.Fingerprint(loki.Sub(p0, loki.Neg(p1, 64), 64)); a != b {
		t.Fatalf("expected equal fingerprints: %s != %s", a, b)
	} else if c := s.Fingerprint(loki.Sub(p0, p1, 64)); a == c {
		t.Fatal("expected distinct fingerprints")
	} else if len(a) != 64 {
		t.Fatalf("unexpected fingerprint length: %d", len(a))
	}
}

func TestPrune(t *testing.T) {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")
	rep := loki.Add(p0, p1, 64)
	good := loki.Sub(p0, loki.Neg(p1, 64), 64)
	bad := loki.Or(p0, p1, 64)
	slow := loki.Add(loki.Xor(p0, p1, 64), loki.Mul(loki.And(p0, p1, 64), loki.Const64(2), 64), 64)

	tbl := rewrite.NewTable()
	tbl.Insert(rep, good, bad, slow)

	prover := proverFunc(func(a, b loki.Expr) (bool, error) {
		switch {
		case b.Equal(good):
			return true, nil
		case b.Equal(slow):
			return false, loki.ErrSolverTimeout
		default:
			return false, nil
		}
	})

	other, err := rewrite.Prune(tbl, prover)
	if err != nil {
		t.Fatal(err)
	} else if members := other.Class(rep).Members; len(members) != 1 || !members[0].Equal(good) {
		t.Fatalf("unexpected members: %v", members)
	}

	t.Run("ErrProver", func(t *testing.T) {
		errMarker := errors.New("marker")
		if _, err := rewrite.Prune(tbl, proverFunc(func(a, b loki.Expr) (bool, error) {
			return false, errMarker
		})); !errors.Is(err, errMarker) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

type proverFunc func(a, b loki.Expr) (bool, error)

func (fn proverFunc) Equivalent(a, b loki.Expr) (bool, error) { return fn(a, b) }

func containsExpr(a []loki.Expr, s string) bool {
	for _, e := range a {
		if e.String() == s {
			return true
		}
	}
	return false
}
