package alu_test

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/rewrite"
	"github.com/google/go-cmp/cmp"
)

func TestBuilder_Build(t *testing.T) {
	cfg := newTestConfig()
	cfg.MaxSemanticsPerALU = 5

	add, sub := newArithBlock(0), newArithBlock(1)
	entries := []alu.SemanticsEntry{
		{Slot: 0, Expr: add.Expr},
		{Slot: 3, Expr: sub.Expr},
	}

	t.Run("OK", func(t *testing.T) {
		rng := rand.New(rand.NewSource(0))
		h, err := alu.NewBuilder(cfg, nil).Build(context.Background(), rng, 2, entries)
		if err != nil {
			t.Fatal(err)
		} else if err := h.Verify(rng); err != nil {
			t.Fatal(err)
		}

		if n := h.Keys.Len(); n < 4 || n > 5 {
			t.Fatalf("unexpected slot count: %d", n)
		} else if len(h.Slots) != h.Keys.Len() {
			t.Fatalf("slot/key count mismatch: %d != %d", len(h.Slots), h.Keys.Len())
		}

		// Each key selects its slot on concrete inputs.
		for _, tt := range []struct {
			slot int
			want uint64
		}{
			{0, 30 + 12},
			{3, 30 - 12},
		} {
			v := h.Semantics.
				BindVar(alu.RegX, 30).
				BindVar(alu.RegY, 12).
				BindVar(alu.RegC, 0).
				BindVar(alu.RegKey, h.Keys.Get(tt.slot)).
				Simplify()
			if !v.HasConst(tt.want) {
				t.Fatalf("slot %d: unexpected value: %s", tt.slot, v)
			}
		}

		// An unknown key selects nothing.
		var unknown uint64 = 1
		for h.Keys.Contains(unknown) {
			unknown++
		}
		v := h.Semantics.BindVar(alu.RegX, 30).BindVar(alu.RegY, 12).BindVar(alu.RegC, 0).BindVar(alu.RegKey, unknown).Simplify()
		if !v.IsConst() {
			t.Fatalf("expected constant: %s", v)
		}
	})

	t.Run("Rewrite", func(t *testing.T) {
		p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")
		tbl := rewrite.NewTable()
		tbl.Insert(loki.Add(p0, p1, 64),
			loki.Add(loki.Xor(p0, p1, 64), loki.Mul(loki.And(p0, p1, 64), loki.Const64(2), 64), 64),
		)

		rng := rand.New(rand.NewSource(1))
		h, err := alu.NewBuilder(cfg, rewrite.NewRewriter(tbl)).Build(context.Background(), rng, 2, entries)
		if err != nil {
			t.Fatal(err)
		} else if err := h.Verify(rng); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("MemoryHandler", func(t *testing.T) {
		h, err := alu.NewBuilder(cfg, nil).Build(context.Background(), rand.New(rand.NewSource(0)), alu.MemoryHandler, nil)
		if err != nil {
			t.Fatal(err)
		} else if !h.IsMemoryHandler() {
			t.Fatal("expected memory handler")
		} else if diff := cmp.Diff([]uint64{alu.SlotLoad, alu.SlotStore, alu.SlotAlloc}, h.Keys.Slice()); diff != "" {
			t.Fatal(diff)
		} else if !h.Semantics.IsNop() {
			t.Fatalf("unexpected semantics: %s", h.Semantics)
		}
	})

	t.Run("ErrMismatch", func(t *testing.T) {
		rng := rand.New(rand.NewSource(0))
		h, err := alu.NewBuilder(cfg, nil).Build(context.Background(), rng, 2, entries)
		if err != nil {
			t.Fatal(err)
		}

		h.Slots[0] = loki.Add(h.Slots[0], loki.Const64(1), 64)
		if err := h.Verify(rng); !errors.Is(err, alu.ErrHandlerMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := alu.NewBuilder(cfg, nil).Build(ctx, rand.New(rand.NewSource(0)), 2, entries); !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestHandler_Verify(t *testing.T) {
	x, y := loki.Reg64(alu.RegX), loki.Reg64(alu.RegY)
	keys := alu.NewKeys()
	keys.Push(0x1234)

	// Differs from x + y only when x is zero.
	h := &alu.Handler{
		ID:        2,
		Keys:      keys,
		Semantics: loki.Add(loki.Add(x, y, 64), loki.CheckIfZero(x, 64), 64),
		Slots:     []loki.Expr{loki.Add(x, y, 64)},
	}
	if err := h.Verify(rand.New(rand.NewSource(0))); !errors.Is(err, alu.ErrHandlerMismatch) {
		t.Fatalf("unexpected error: %v", err)
	}

	h.Semantics = loki.Add(loki.Add(x, y, 64), loki.Mul(loki.CheckIfZero(x, 64), loki.Const64(0), 64), 64)
	if err := h.Verify(rand.New(rand.NewSource(0))); err != nil {
		t.Fatal(err)
	}
}

// stubProver rejects every equivalence query.
type stubProver struct{ n int }

func (p *stubProver) Equivalent(a, b loki.Expr) (bool, error) {
	p.n++
	return false, nil
}

func TestBuilder_Prover(t *testing.T) {
	cfg := newTestConfig()

	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")
	tbl := rewrite.NewTable()
	tbl.Insert(loki.Add(p0, p1, 64),
		loki.Add(loki.Xor(p0, p1, 64), loki.Mul(loki.And(p0, p1, 64), loki.Const64(2), 64), 64),
	)

	var prover stubProver
	b := alu.NewBuilder(cfg, rewrite.NewRewriter(tbl))
	b.Prover = &prover

	rng := rand.New(rand.NewSource(0))
	h, err := b.Build(context.Background(), rng, 2, []alu.SemanticsEntry{{Slot: 0, Expr: newArithBlock(0).Expr}})
	if err != nil {
		t.Fatal(err)
	} else if prover.n == 0 {
		t.Fatal("expected prover to be queried")
	} else if err := h.Verify(rng); err != nil {
		t.Fatal(err)
	}
}

func TestPostProcess(t *testing.T) {
	x, y := loki.Reg64("x"), loki.Reg64("y")
	for _, tt := range []struct {
		name string
		in   loki.Expr
		want loki.Expr
	}{
		{"Nand", loki.Nand(x, y, 64), loki.Not(loki.And(x, y, 64), 64)},
		{"Nor", loki.Nor(x, y, 64), loki.Not(loki.Or(x, y, 64), 64)},
		{"Shl", loki.ShlPlain(x, y, 64), loki.Shl(x, y, 64)},
		{"Lshr", loki.LshrPlain(x, y, 64), loki.LshrPlain(x, y, 64)},
		{"Add", loki.Add(x, y, 64), loki.Add(x, y, 64)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, alu.PostProcess(tt.in)); diff != "" {
				t.Fatal(diff)
			}
		})
	}

	t.Run("ErrUnsupported", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		alu.PostProcess(loki.Slice(x, 0, 7))
	})
}
