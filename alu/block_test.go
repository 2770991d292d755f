package alu_test

import (
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/google/go-cmp/cmp"
)

func TestNewBlock(t *testing.T) {
	t.Run("Arithmetic", func(t *testing.T) {
		b := alu.NewBlock(loki.NewAssignment(loki.Reg("z", 32), loki.Add(loki.Reg("a", 32), loki.Const(5, 32), 32)))
		if diff := cmp.Diff([]loki.Expr{loki.Reg("a", 32)}, b.Inputs); diff != "" {
			t.Fatal(diff)
		} else if b.Immediate != 5 {
			t.Fatalf("unexpected immediate: %d", b.Immediate)
		} else if got, want := b.Expr.String(), "((x + c) & 0xffffffff)"; got != want {
			t.Fatalf("Expr=%s, want %s", got, want)
		} else if b.IsMemoryOp() {
			t.Fatal("unexpected memory op")
		}
	})

	// Instructions differing only in registers & immediates share a block.
	t.Run("Shared", func(t *testing.T) {
		a := alu.NewBlock(loki.NewAssignment(loki.Reg64("z"), loki.Xor(loki.Reg64("a"), loki.Reg64("b"), 64)))
		b := alu.NewBlock(loki.NewAssignment(loki.Reg64("w"), loki.Xor(loki.Reg64("p"), loki.Reg64("q"), 64)))
		if a.Expr.Key() != b.Expr.Key() {
			t.Fatalf("expected shared block: %s != %s", a.Expr, b.Expr)
		}
	})

	// Inputs named like handler registers are renamed at once.
	t.Run("SwappedInputs", func(t *testing.T) {
		b := alu.NewBlock(loki.NewAssignment(loki.Reg64("z"), loki.Sub(loki.Reg64("y"), loki.Reg64("x"), 64)))
		if got, want := b.Expr.String(), "(x - y)"; got != want {
			t.Fatalf("Expr=%s, want %s", got, want)
		} else if diff := cmp.Diff([]loki.Expr{loki.Reg64("y"), loki.Reg64("x")}, b.Inputs); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Load", func(t *testing.T) {
		b := alu.NewBlock(loki.NewAssignment(loki.Reg("v", 32), loki.Load(loki.Reg64("p"), 32)))
		if !b.IsMemoryOp() {
			t.Fatal("expected memory op")
		} else if b.Immediate != 32 {
			t.Fatalf("unexpected immediate: %d", b.Immediate)
		}
	})

	t.Run("Alloc", func(t *testing.T) {
		b := alu.NewBlock(loki.NewAssignment(loki.Reg64("p"), loki.Alloc(16, 64)))
		if !b.IsMemoryOp() {
			t.Fatal("expected memory op")
		} else if b.Immediate != 16 {
			t.Fatalf("unexpected immediate: %d", b.Immediate)
		}
	})

	t.Run("ErrTooManyInputs", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		alu.NewBlock(loki.NewAssignment(loki.Reg64("z"), loki.Add(loki.Add(loki.Reg64("a"), loki.Reg64("b"), 64), loki.Reg64("c"), 64)))
	})

	t.Run("ErrTooManyConstants", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		alu.NewBlock(loki.NewAssignment(loki.Reg64("z"), loki.Add(loki.Const64(1), loki.Const64(2), 64)))
	})
}

func TestLift(t *testing.T) {
	x, y := loki.Reg("x", 8), loki.Reg("y", 8)

	// 8-bit results stay within their width after lifting.
	e := alu.Lift(loki.Mul(x, y, 8))
	if e.Width() != 64 {
		t.Fatalf("unexpected width: %d", e.Width())
	}
	v := e.BindVar("x", 0xff).BindVar("y", 0x02).Simplify()
	if !v.HasConst(0xfe) {
		t.Fatalf("unexpected value: %s", v)
	}
}
