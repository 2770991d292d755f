package rewrite_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/rewrite"
	"github.com/google/go-cmp/cmp"
)

func TestTable_Insert(t *testing.T) {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")
	rep := loki.Add(p0, p1, 64)
	mba := loki.Add(loki.Xor(p0, p1, 64), loki.Mul(loki.And(p0, p1, 64), loki.Const64(2), 64), 64)

	tbl := rewrite.NewTable()
	tbl.Insert(rep, rep, mba)
	tbl.Insert(rep.Clone(), mba.Clone())

	if n := tbl.Len(); n != 1 {
		t.Fatalf("unexpected class count: %d", n)
	} else if diff := cmp.Diff([]loki.Expr{rep, mba}, tbl.Class(rep).Members); diff != "" {
		t.Fatal(diff)
	}
}

func TestValidRepresentative(t *testing.T) {
	p0, p1, p2 := loki.Reg64("p0"), loki.Reg64("p1"), loki.Reg64("p2")
	for _, tt := range []struct {
		name string
		rep  loki.Expr
		want bool
	}{
		{"Param", p0, true},
		{"Binary", loki.Add(p0, p1, 64), true},
		{"Unary", loki.Not(p0, 64), true},
		{"MaskedShl", loki.Shl(p0, p1, 64), true},
		{"MaskedLshr", loki.Lshr(p0, p1, 64), true},
		{"Ite", loki.Ite(p0, p1, p2, 64), true},
		{"OtherParam", p1, false},
		{"Const", loki.Const64(1), false},
		{"SwappedParams", loki.Sub(p1, p0, 64), false},
		{"Deep", loki.Mul(loki.Add(p0, p1, 64), p2, 64), false},
		{"ConstOperand", loki.Add(p0, loki.Const64(1), 64), false},
		{"OtherMask", loki.ShlPlain(p0, loki.And(p1, loki.Const64(7), 64), 64), false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewrite.ValidRepresentative(tt.rep); got != tt.want {
				t.Fatalf("ValidRepresentative(%s)=%v, want %v", tt.rep, got, tt.want)
			}
		})
	}

	t.Run("ErrInsert", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		rewrite.NewTable().Insert(loki.Mul(loki.Add(p0, p1, 64), p2, 64), loki.Add(loki.Mul(p0, p2, 64), loki.Mul(p1, p2, 64), 64))
	})

	t.Run("ErrReadFile", func(t *testing.T) {
		buf, err := json.Marshal([]rewrite.Class{{
			Representative: loki.Mul(loki.Add(p0, p1, 64), p2, 64),
			Members:        []loki.Expr{loki.Add(loki.Mul(p0, p2, 64), loki.Mul(p1, p2, 64), 64)},
		}})
		if err != nil {
			t.Fatal(err)
		}

		path := filepath.Join(t.TempDir(), "rules.json")
		if err := os.WriteFile(path, buf, 0o666); err != nil {
			t.Fatal(err)
		}
		if _, err := rewrite.ReadFile(path); !errors.Is(err, rewrite.ErrRepresentative) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestTable_Rules(t *testing.T) {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")

	tbl := rewrite.NewTable()
	tbl.Insert(p0, loki.Xor(loki.Xor(p0, p1, 64), p1, 64))
	tbl.Insert(loki.Add(p0, p1, 64), loki.Sub(p0, loki.Neg(p1, 64), 64))
	tbl.Insert(loki.Not(p0, 64))

	rules := tbl.Rules()
	if n := len(rules); n != 2 {
		t.Fatalf("unexpected rule count: %d", n)
	} else if n := len(rules[loki.Reg64("p0").Root()]); n != 1 {
		t.Fatalf("unexpected p0 rules: %d", n)
	} else if n := len(rules[loki.LinearExpr{Op: loki.OpAdd, Width: 64}]); n != 1 {
		t.Fatalf("unexpected add rules: %d", n)
	}
}

func TestTable_WriteFile(t *testing.T) {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")

	for _, name := range []string{"rules.json", "rules.json.zst"} {
		t.Run(name, func(t *testing.T) {
			tbl := rewrite.NewTable()
			tbl.Insert(loki.Add(p0, p1, 64), loki.Sub(p0, loki.Neg(p1, 64), 64))
			tbl.Insert(loki.Not(p0, 64), loki.Sub(loki.Neg(p0, 64), loki.Const64(1), 64))

			path := filepath.Join(t.TempDir(), name)
			if err := tbl.WriteFile(path); err != nil {
				t.Fatal(err)
			}

			other, err := rewrite.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			} else if diff := cmp.Diff(tbl.String(), other.String()); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	p0, p1 := loki.Reg64("p0"), loki.Reg64("p1")
	rep := loki.Add(p0, p1, 64)
	dir := t.TempDir()

	a := rewrite.NewTable()
	a.Insert(rep, loki.Sub(p0, loki.Neg(p1, 64), 64))
	if err := a.WriteFile(filepath.Join(dir, "0000.json")); err != nil {
		t.Fatal(err)
	}

	b := rewrite.NewTable()
	b.Insert(rep, loki.Sub(p0, loki.Neg(p1, 64), 64), loki.Or(loki.Xor(p0, p1, 64), loki.And(p0, p1, 64), 64))
	b.Insert(loki.Neg(p0, 64), loki.Add(loki.Not(p0, 64), loki.Const64(1), 64))
	if err := b.WriteFile(filepath.Join(dir, "0001.json.zst")); err != nil {
		t.Fatal(err)
	}

	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o666); err != nil {
		t.Fatal(err)
	}

	tbl, err := rewrite.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	} else if n := tbl.Len(); n != 2 {
		t.Fatalf("unexpected class count: %d", n)
	} else if n := len(tbl.Class(rep).Members); n != 2 {
		t.Fatalf("unexpected member count: %d", n)
	}

	t.Run("ErrNotExist", func(t *testing.T) {
		if _, err := rewrite.LoadDir(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
