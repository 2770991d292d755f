package emulator

import (
	"fmt"

	"github.com/benbjohnson/loki"
)

// Input evaluates the emulation form of a program on concrete inputs. It
// serves as the reference the VM is verified against.
type Input struct {
	instructions []loki.Assignment
}

// NewInput returns an emulator for the given preprocessed instructions.
func NewInput(instructions []loki.Assignment) *Input {
	return &Input{instructions: instructions}
}

// Run evaluates the constraints and then every instruction, returning the
// value of the last destination. Constraints bind arguments to constants
// and memory cells to bytes.
func (in *Input) Run(constraints []loki.Assignment) (uint64, error) {
	if len(in.instructions) == 0 {
		return 0, fmt.Errorf("no instructions")
	}

	symbols := loki.AssignmentSymbols(constraints)
	symbols = append(symbols, loki.AssignmentSymbols(in.instructions)...)
	ev := loki.NewAssignmentEvaluator(symbols)

	for _, a := range constraints {
		ev.Eval(a)
	}

	allocBase := uint64(AllocBase)
	for i, a := range in.instructions {
		switch {
		case a.RHS.Op() == loki.OpAlloc:
			n := a.RHS.Root().Value
			for j := uint64(0); j < n; j++ {
				ev.Eval(loki.NewAssignment(memByte(allocBase+j), loki.Const(0, 8)))
			}
			ev.Eval(loki.NewAssignment(a.LHS, loki.Const(allocBase, a.Width())))
			allocBase += n

		case a.LHS.Op() == loki.OpMem:
			if err := checkLoads(ev, a.LHS[:len(a.LHS)-1]); err != nil {
				return 0, fmt.Errorf("instruction %d: %w", i, err)
			} else if err := checkLoads(ev, a.RHS); err != nil {
				return 0, fmt.Errorf("instruction %d: %w", i, err)
			}

			addr := ev.EvalExpr(a.LHS[:len(a.LHS)-1])
			if !addr.IsConst() || addr.Width() != loki.Width64 {
				return 0, fmt.Errorf("instruction %d: address is not a 64-bit constant: %s", i, addr)
			}

			rhs := ev.EvalExpr(a.RHS)
			for j := uint8(0); j < uint8(a.Width()/8); j++ {
				v := loki.Slice(rhs, 8*j, 8*j+7).Simplify()
				ev.Eval(loki.NewAssignment(memByte(addr.ConstValue()+uint64(j)), v))
			}

		default:
			if err := checkLoads(ev, a.RHS); err != nil {
				return 0, fmt.Errorf("instruction %d: %w", i, err)
			}
			ev.Eval(a)
		}
	}

	v := ev.Get(in.instructions[len(in.instructions)-1].LHS)
	if !v.IsConst() {
		return 0, fmt.Errorf("result is not constant: %s", v)
	}
	return v.ConstValue(), nil
}

// checkLoads returns an error if e reads a memory cell that holds no value.
// Loads are checked innermost first so every address can be evaluated.
func checkLoads(ev *loki.AssignmentEvaluator, e loki.Expr) error {
	sizes := e.Sizes()
	for i, x := range e {
		if x.Op != loki.OpMem {
			continue
		}

		addr := ev.EvalExpr(e.Slice(i+1-sizes[i], i))
		if !addr.IsConst() || addr.Width() != loki.Width64 {
			return fmt.Errorf("load address is not a 64-bit constant: %s", addr)
		}
		for j := uint64(0); j < uint64(x.Width/8); j++ {
			if _, ok := ev.State().Memory(loki.Const64(addr.ConstValue() + j)); !ok {
				return fmt.Errorf("read of unset memory: %#x", addr.ConstValue()+j)
			}
		}
	}
	return nil
}

// memByte returns the memory cell at a concrete address.
func memByte(addr uint64) loki.Expr {
	return loki.Mem(loki.Const64(addr), 8)
}
