package emulator

import (
	"fmt"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/bytecode"
)

// AllocBase is the address of the first stack allocation.
const AllocBase = 0x800

// Argument is an input register of a program and the memory it points to.
type Argument struct {
	Register uint16
	Value    uint64
	Memory   []byte // bytes starting at Value
}

// VM executes bytecode concretely on the handler semantics of a meta ALU.
type VM struct {
	semantics map[int]loki.Expr

	registers map[uint16]uint64
	memory    map[uint64]byte
	allocBase uint64
}

// NewVM returns a VM executing the given handler semantics.
func NewVM(semantics map[int]loki.Expr) *VM {
	return &VM{semantics: semantics}
}

// Run executes p on args and returns the value of the output register.
func (vm *VM) Run(p bytecode.Program, args []Argument) (uint64, error) {
	vm.registers = make(map[uint16]uint64)
	vm.memory = make(map[uint64]byte)
	vm.allocBase = AllocBase

	for _, arg := range args {
		vm.registers[arg.Register] = arg.Value
		for i, b := range arg.Memory {
			vm.memory[arg.Value+uint64(i)] = b
		}
	}

	for pc, ins := range p {
		if err := vm.step(ins); err != nil {
			return 0, fmt.Errorf("instruction %d (%s): %w", pc, ins, err)
		}
	}

	v, ok := vm.registers[bytecode.OutputRegister]
	if !ok {
		return 0, fmt.Errorf("output register not written")
	}
	return v, nil
}

func (vm *VM) step(ins bytecode.Instruction) error {
	x, y, err := vm.operands(ins)
	if err != nil {
		return err
	}

	switch ins.Handler {
	case 0:
		return fmt.Errorf("unexpected exit handler")
	case alu.MemoryHandler:
		return vm.stepMemory(ins)
	}

	e, ok := vm.semantics[int(ins.Handler)]
	if !ok {
		return fmt.Errorf("unknown handler: %d", ins.Handler)
	}

	v := e.BindVar(alu.RegX, x).
		BindVar(alu.RegY, y).
		BindVar(alu.RegC, ins.Imm).
		BindVar(alu.RegKey, ins.Key).
		Simplify()
	if !v.IsConst() {
		return fmt.Errorf("handler %d did not evaluate to a constant: %s", ins.Handler, v)
	}
	vm.registers[ins.Dest] = v.ConstValue()
	return nil
}

// operands returns the values of the source registers. The pad register
// reads as zero.
func (vm *VM) operands(ins bytecode.Instruction) (x, y uint64, err error) {
	if ins.Src1 != bytecode.PadRegister {
		if x, err = vm.register(ins.Src1); err != nil {
			return 0, 0, err
		}
	}
	if ins.Src2 != bytecode.PadRegister {
		if y, err = vm.register(ins.Src2); err != nil {
			return 0, 0, err
		}
	}
	return x, y, nil
}

func (vm *VM) register(r uint16) (uint64, error) {
	v, ok := vm.registers[r]
	if !ok {
		return 0, fmt.Errorf("read of unset register: r%d", r)
	}
	return v, nil
}

// stepMemory executes a load, store or allocation selected by the key.
// The immediate holds the access width in bits or the allocation size.
func (vm *VM) stepMemory(ins bytecode.Instruction) error {
	switch ins.Key {
	case alu.SlotLoad:
		addr, err := vm.register(ins.Src1)
		if err != nil {
			return err
		}

		var v uint64
		for i := uint64(0); i < ins.Imm/8; i++ {
			b, ok := vm.memory[addr+i]
			if !ok {
				return fmt.Errorf("read of unset memory: %#x", addr+i)
			}
			v |= uint64(b) << (8 * i)
		}
		vm.registers[ins.Dest] = v
		return nil

	case alu.SlotStore:
		addr, err := vm.register(ins.Src1)
		if err != nil {
			return err
		}
		v, err := vm.register(ins.Src2)
		if err != nil {
			return err
		}

		for i := uint64(0); i < ins.Imm/8; i++ {
			vm.memory[addr+i] = byte(loki.SliceVal(v, uint8(8*i), uint8(8*i+7)))
		}
		vm.registers[ins.Dest] = v
		return nil

	case alu.SlotAlloc:
		for i := uint64(0); i < ins.Imm; i++ {
			vm.memory[vm.allocBase+i] = 0
		}
		vm.registers[ins.Dest] = vm.allocBase
		vm.allocBase += ins.Imm
		return nil

	default:
		return fmt.Errorf("unknown memory operation: %d", ins.Key)
	}
}
