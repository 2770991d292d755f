package emulator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/bytecode"
	"golang.org/x/sync/errgroup"
)

// ArgumentMemorySize is the number of random bytes behind each argument.
const ArgumentMemorySize = 256

// ErrMismatch is returned when the VM and the input emulator disagree.
var ErrMismatch = errors.New("verification mismatch")

// Verificator compares the VM against the input emulator on random inputs.
type Verificator struct {
	// Argument registers of the program as first read, in argument order.
	Arguments []loki.Expr

	// Preprocessed program evaluated by the input emulator.
	Emulator []loki.Assignment

	// Bytecode, its handler semantics and the VM register of each argument.
	Code      bytecode.Program
	Semantics map[int]loki.Expr
	Registers []uint16
}

// Verify runs iterations random executions in parallel. Each iteration
// derives its inputs from its own seed drawn from rng.
func (v *Verificator) Verify(ctx context.Context, rng *rand.Rand, iterations int) error {
	if len(v.Arguments) != len(v.Registers) {
		return fmt.Errorf("argument count mismatch: %d != %d", len(v.Arguments), len(v.Registers))
	}

	seeds := make([]int64, iterations)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := v.verifyOne(rand.New(rand.NewSource(seed))); err != nil {
				return fmt.Errorf("iteration %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("[verify] %d iterations ok", iterations)
	return nil
}

func (v *Verificator) verifyOne(rng *rand.Rand) error {
	var constraints []loki.Assignment
	args := make([]Argument, len(v.Arguments))
	for i, arg := range v.Arguments {
		w := arg.Width()
		value := loki.MaskToSize(rng.Uint64(), w)

		mem := make([]byte, ArgumentMemorySize)
		rng.Read(mem)

		constraints = append(constraints, loki.NewAssignment(arg, loki.Const(value, w)))
		for off, b := range mem {
			addr := loki.Add(loki.ZeroExtend(loki.Const(value, w), loki.Width64), loki.Const64(uint64(off)), loki.Width64).Simplify()
			constraints = append(constraints, loki.NewAssignment(loki.Mem(addr, 8), loki.Const(uint64(b), 8)))
		}

		args[i] = Argument{Register: v.Registers[i], Value: value, Memory: mem}
	}

	want, err := NewInput(v.Emulator).Run(constraints)
	if err != nil {
		return fmt.Errorf("input emulator: %w", err)
	}

	got, err := NewVM(v.Semantics).Run(v.Code, args)
	if err != nil {
		return fmt.Errorf("vm: %w", err)
	}

	if got != want {
		return fmt.Errorf("%w: args=%s vm=%#x emulator=%#x", ErrMismatch, formatArguments(args), got, want)
	}
	return nil
}

func formatArguments(args []Argument) string {
	var s string
	for i, arg := range args {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("r%d=%#x", arg.Register, arg.Value)
	}
	return s
}
