package emulator_test

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/bytecode"
	"github.com/benbjohnson/loki/emulator"
	"github.com/benbjohnson/loki/lift"
)

// newAddVerificator returns a verificator for "t = a + b" at width w
// executed by handler 2 with the given semantics.
func newAddVerificator(w uint, semantics loki.Expr) *emulator.Verificator {
	a, b := loki.Reg("a", w), loki.Reg("b", w)
	return &emulator.Verificator{
		Arguments: []loki.Expr{a, b},
		Emulator: lift.Preprocess([]loki.Assignment{
			loki.NewAssignment(loki.Reg("t", w), loki.Add(a, b, w)),
		}),
		Code:      bytecode.Program{{Handler: 2, Dest: bytecode.OutputRegister, Src1: 2, Src2: 3}},
		Semantics: map[int]loki.Expr{2: semantics},
		Registers: []uint16{2, 3},
	}
}

func TestVerificator_Verify(t *testing.T) {
	x, y := loki.Reg64(alu.RegX), loki.Reg64(alu.RegY)

	t.Run("OK", func(t *testing.T) {
		v := newAddVerificator(loki.Width64, loki.Add(x, y, loki.Width64))
		if err := v.Verify(context.Background(), rand.New(rand.NewSource(0)), 20); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("Narrow", func(t *testing.T) {
		v := newAddVerificator(loki.Width8, loki.SemanticDowncast(loki.Add(x, y, loki.Width64), loki.Width8))
		if err := v.Verify(context.Background(), rand.New(rand.NewSource(0)), 20); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("ErrMismatch", func(t *testing.T) {
		v := newAddVerificator(loki.Width64, loki.Xor(x, y, loki.Width64))
		if err := v.Verify(context.Background(), rand.New(rand.NewSource(0)), 20); !errors.Is(err, emulator.ErrMismatch) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrArgumentCount", func(t *testing.T) {
		v := newAddVerificator(loki.Width64, loki.Add(x, y, loki.Width64))
		v.Registers = v.Registers[:1]
		if err := v.Verify(context.Background(), rand.New(rand.NewSource(0)), 1); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("ErrUnsetMemory", func(t *testing.T) {
		a := loki.Reg64("a")
		v := &emulator.Verificator{
			Arguments: []loki.Expr{a},
			Emulator: lift.Preprocess([]loki.Assignment{
				loki.NewAssignment(loki.Reg64("l"), loki.Load(loki.Add(a, loki.Const64(emulator.ArgumentMemorySize), loki.Width64), loki.Width64)),
			}),
			Code:      bytecode.Program{{Handler: alu.MemoryHandler, Dest: bytecode.OutputRegister, Src1: 2, Src2: bytecode.PadRegister, Key: alu.SlotLoad, Imm: 64}},
			Semantics: map[int]loki.Expr{},
			Registers: []uint16{2},
		}
		if err := v.Verify(context.Background(), rand.New(rand.NewSource(0)), 4); err == nil || !strings.Contains(err.Error(), "read of unset memory") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrCanceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		v := newAddVerificator(loki.Width64, loki.Add(x, y, loki.Width64))
		if err := v.Verify(ctx, rand.New(rand.NewSource(0)), 4); !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
