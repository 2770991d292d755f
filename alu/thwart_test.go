package alu_test

import (
	"context"
	"math/rand"
	"testing"

	"github.com/benbjohnson/loki/alu"
)

func TestFactorizationCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	p1, p2 := alu.RandPrime(rng), alu.RandPrime(rng)
	e := alu.FactorizationCheck(p1 * p2)

	if v := e.BindVar(alu.RegKey, p1).Simplify(); !v.HasConst(1) {
		t.Fatalf("unexpected value for key: %s", v)
	} else if v := e.BindVar(alu.RegKey, p1+2).Simplify(); !v.HasConst(0) {
		t.Fatalf("unexpected value for other key: %s", v)
	}

	// The auxiliary prime selects the same slot. Keys never reuse it.
	if v := e.BindVar(alu.RegKey, p2).Simplify(); !v.HasConst(1) {
		t.Fatalf("unexpected value for auxiliary: %s", v)
	}

	// Only the low 32 bits of the key are checked.
	if v := e.BindVar(alu.RegKey, 0xdead<<32|p1).Simplify(); !v.HasConst(1) {
		t.Fatalf("unexpected value for aliased key: %s", v)
	}
}

func TestMultiRootCheck(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	for i := 0; i < 10; i++ {
		key := rng.Uint64()
		e := alu.MultiRootCheck(rng, key)

		if v := e.BindVar(alu.RegKey, key).Simplify(); !v.HasConst(1) {
			t.Fatalf("unexpected value for key: %s", v)
		}
		for _, other := range []uint64{key ^ 1, key ^ 1<<63, ^key} {
			if v := e.BindVar(alu.RegKey, other).Simplify(); !v.HasConst(0) {
				t.Fatalf("unexpected value for %#x: %s", other, v)
			}
		}
	}
}

func TestPointFunction(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	keys := alu.NewKeys()
	for i := 0; i < 3; i++ {
		keys.Push(rng.Uint64())
	}

	t.Run("OK", func(t *testing.T) {
		e, ok := alu.PointFunction(context.Background(), rng, keys, 1, 500)
		if !ok {
			t.Skip("no point function within budget")
		}
		for i := 0; i < keys.Len(); i++ {
			want := uint64(0)
			if i == 1 {
				want = 1
			}
			if v := e.BindVar(alu.RegKey, keys.Get(i)).Simplify(); !v.HasConst(want) {
				t.Fatalf("key %d: unexpected value: %s", i, v)
			}
		}
	})

	t.Run("NoBudget", func(t *testing.T) {
		if _, ok := alu.PointFunction(context.Background(), rng, keys, 0, 0); ok {
			t.Fatal("expected no point function")
		}
	})

	t.Run("Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, ok := alu.PointFunction(ctx, rng, keys, 0, 100); ok {
			t.Fatal("expected no point function")
		}
	})
}
