package loki_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/google/go-cmp/cmp"
)

func TestOp_Arity(t *testing.T) {
	for _, tt := range []struct {
		op    loki.Op
		arity int
	}{
		{loki.OpConst, 0},
		{loki.OpReg, 0},
		{loki.OpAlloc, 0},
		{loki.OpNot, 1},
		{loki.OpSlice, 1},
		{loki.OpMem, 1},
		{loki.OpAdd, 2},
		{loki.OpConcat, 2},
		{loki.OpStore, 2},
		{loki.OpIte, 3},
	} {
		t.Run(tt.op.String(), func(t *testing.T) {
			if n := tt.op.Arity(); n != tt.arity {
				t.Fatalf("unexpected arity: %d", n)
			}
		})
	}
}

func TestParseOp(t *testing.T) {
	t.Run("OK", func(t *testing.T) {
		if op, err := loki.ParseOp("ZeroExtend"); err != nil {
			t.Fatal(err)
		} else if op != loki.OpZeroExtend {
			t.Fatalf("unexpected op: %s", op)
		}
	})
	t.Run("ErrUnknown", func(t *testing.T) {
		if _, err := loki.ParseOp("Frobnicate"); err == nil || err.Error() != `unknown op: "Frobnicate"` {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestExpr_Width(t *testing.T) {
	t.Run("Binary", func(t *testing.T) {
		if w := loki.Add(loki.Reg("x", 8), loki.Const(1, 8), 8).Width(); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Concat", func(t *testing.T) {
		if w := loki.Concat(loki.Reg("x", 8), loki.Reg("y", 16)).Width(); w != 24 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Slice", func(t *testing.T) {
		if w := loki.Slice(loki.Reg64("x"), 8, 15).Width(); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("ErrMismatch", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		loki.Add(loki.Reg("x", 8), loki.Reg("y", 16), 8)
	})
}

func TestExpr_Sizes(t *testing.T) {
	e := loki.Add(loki.Reg64("x"), loki.Not(loki.Const64(1), 64), 64)
	if diff := cmp.Diff([]int{1, 1, 2, 4}, e.Sizes()); diff != "" {
		t.Fatal(diff)
	}

	t.Run("Ite", func(t *testing.T) {
		e := loki.Ite(loki.Reg64("c"), loki.Neg(loki.Reg64("x"), 64), loki.Reg64("y"), 64)
		if diff := cmp.Diff([]int{1, 1, 2, 1, 5}, e.Sizes()); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestExpr_Depth(t *testing.T) {
	if d := loki.Add(loki.Reg64("x"), loki.Not(loki.Reg64("y"), 64), 64).Depth(); d != 3 {
		t.Fatalf("unexpected depth: %d", d)
	}
	if d := loki.Not(loki.Placeholder(64), 64).Depth(); d != 1 {
		t.Fatalf("unexpected placeholder depth: %d", d)
	}
}

func TestExpr_Args(t *testing.T) {
	x := loki.Mul(loki.Reg64("x"), loki.Reg64("y"), 64)
	y := loki.Neg(loki.Const64(3), 64)
	args := loki.Sub(x, y, 64).Args()
	if len(args) != 2 {
		t.Fatalf("unexpected arg count: %d", len(args))
	} else if diff := cmp.Diff(x, args[0]); diff != "" {
		t.Fatal(diff)
	} else if diff := cmp.Diff(y, args[1]); diff != "" {
		t.Fatal(diff)
	}
}

func TestExpr_ReplaceAt(t *testing.T) {
	e := loki.Add(loki.Placeholder(64), loki.Reg64("x"), 64)
	other := e.ReplaceAt(0, loki.Not(loki.Reg64("y"), 64))
	if s := other.String(); s != "((~ y) + x)" {
		t.Fatalf("unexpected expr: %s", s)
	} else if s := e.String(); s != "(E + x)" {
		t.Fatalf("original modified: %s", s)
	}
}

func TestExpr_ReplaceSubexpr(t *testing.T) {
	sub := loki.Add(loki.Reg64("x"), loki.Reg64("y"), 64)
	e := loki.Mul(sub, loki.Xor(sub, loki.Reg64("z"), 64), 64)
	other := e.ReplaceSubexpr(sub, loki.Reg64("t"))
	if s := other.String(); s != "(t * (t ^ z))" {
		t.Fatalf("unexpected expr: %s", s)
	}
}

func TestExpr_String(t *testing.T) {
	x, y := loki.Reg64("x"), loki.Reg64("y")
	for _, tt := range []struct {
		name string
		expr loki.Expr
		s    string
	}{
		{"Const", loki.Const(0xff, 8), "0xff"},
		{"Nop", loki.Nop(64), "NOP"},
		{"Alloc", loki.Alloc(16, 64), "Alloc(16)"},
		{"Not", loki.Not(x, 64), "(~ x)"},
		{"Mem", loki.Mem(x, 32), "@32[x]"},
		{"Slice", loki.Slice(x, 0, 7), "Slice(x, 0, 7)"},
		{"ZeroExtend", loki.ZeroExtend(loki.Reg("b", 8), 64), "ZeroExtend(b, 64)"},
		{"Sdiv", loki.Sdiv(x, y, 64), "(x /s y)"},
		{"Ashr", loki.AshrPlain(x, y, 64), "(x a>> y)"},
		{"Shl", loki.Shl(x, y, 64), "(x << (y & 0x3f))"},
		{"Concat", loki.Concat(loki.Reg("a", 8), loki.Reg("b", 8)), "(a ++ b)"},
		{"Store", loki.Store(x, loki.Reg("v", 32), 32), "Store(x, v, 32)"},
		{"Ite", loki.Ite(loki.Reg64("c"), x, y, 64), "(c ? x : y)"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if s := tt.expr.String(); s != tt.s {
				t.Fatalf("unexpected string: %s", s)
			}
		})
	}
}

func TestExpr_Tree(t *testing.T) {
	s := loki.Add(loki.Reg64("x"), loki.Const64(1), 64).Tree()
	for _, want := range []string{"Add:64", "Reg x:64", "Const 0x1:64"} {
		if !strings.Contains(s, want) {
			t.Fatalf("missing %q in tree:\n%s", want, s)
		}
	}
}

func TestCompare(t *testing.T) {
	t.Run("WidthFirst", func(t *testing.T) {
		if cmp := loki.Compare(loki.Const(5, 8), loki.Const(1, 64)); cmp != -1 {
			t.Fatalf("unexpected result: %d", cmp)
		}
	})
	t.Run("OpOrder", func(t *testing.T) {
		if cmp := loki.Compare(loki.Reg64("a"), loki.Const64(1)); cmp != 1 {
			t.Fatalf("unexpected result: %d", cmp)
		}
	})
	t.Run("Prefix", func(t *testing.T) {
		x := loki.Reg64("x")
		if cmp := loki.Compare(x, loki.Not(x, 64)); cmp != -1 {
			t.Fatalf("unexpected result: %d", cmp)
		}
	})
	t.Run("Equal", func(t *testing.T) {
		if cmp := loki.Compare(loki.Reg64("x"), loki.Reg64("x")); cmp != 0 {
			t.Fatalf("unexpected result: %d", cmp)
		}
	})
}

func TestExpr_UniqueVars(t *testing.T) {
	e := loki.Add(loki.Mul(loki.Reg64("x"), loki.Reg64("y"), 64), loki.Reg64("x"), 64)
	if n := len(e.Vars()); n != 3 {
		t.Fatalf("unexpected var count: %d", n)
	} else if diff := cmp.Diff([]loki.Expr{loki.Reg64("x"), loki.Reg64("y")}, e.UniqueVars()); diff != "" {
		t.Fatal(diff)
	}
}

func TestExpr_Key(t *testing.T) {
	if loki.Const(1, 8).Key() == loki.Const(1, 64).Key() {
		t.Fatal("expected widths to produce distinct keys")
	}
	if a, b := loki.Reg64("x").Key(), loki.Reg64("x").Key(); a != b {
		t.Fatalf("unexpected key mismatch: %s != %s", a, b)
	}
}

func TestExpr_MarshalJSON(t *testing.T) {
	buf, err := json.Marshal(loki.Add(loki.Reg64("x"), loki.Const64(1), 64))
	if err != nil {
		t.Fatal(err)
	} else if got, want := string(buf), `[{"op":"Reg","width":64,"name":"x"},{"op":"Const","width":64,"value":1},{"op":"Add","width":64}]`; got != want {
		t.Fatalf("unexpected json: %s", got)
	}

	var e loki.Expr
	if err := json.Unmarshal(buf, &e); err != nil {
		t.Fatal(err)
	} else if s := e.String(); s != "(x + 0x1)" {
		t.Fatalf("unexpected expr: %s", s)
	}
}
