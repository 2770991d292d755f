package bytecode

import (
	"fmt"
	"log"
	"strings"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
)

// Reserved registers.
const (
	OutputRegister = 0 // result of the program
	PadRegister    = 1 // missing instruction operands
)

// Translator converts scheduled blocks into bytecode and assigns a VM
// register to every variable they use.
type Translator struct {
	arguments []string
	registers map[string]uint16
	order     []string // variable names in allocation order
}

// NewTranslator returns a translator for a program with the given arguments.
func NewTranslator(arguments []string) *Translator {
	return &Translator{
		arguments: arguments,
		registers: make(map[string]uint16),
	}
}

// Register returns the register of the named variable, allocating the next
// free register on first use. The output register is always 0.
func (t *Translator) Register(name string) uint16 {
	if name == loki.OutputRegister {
		return OutputRegister
	} else if r, ok := t.registers[name]; ok {
		return r
	}

	r := uint16(len(t.registers) + 2)
	t.registers[name] = r
	t.order = append(t.order, name)
	return r
}

// Translate returns one instruction per block. The handler and key of each
// block are looked up through its scheduled slot.
func (t *Translator) Translate(blocks []*alu.Block, keys alu.MetaKeys, schedule alu.SchedulerMap) (Program, error) {
	p := make(Program, len(blocks))
	for i, b := range blocks {
		idx, ok := schedule[i]
		if !ok {
			return nil, fmt.Errorf("block %d not scheduled", i)
		}
		key, err := keys.Key(idx)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}

		ins := Instruction{
			Handler: uint16(idx.Handler),
			Dest:    t.Register(b.Output.Name()),
			Src1:    PadRegister,
			Src2:    PadRegister,
			Imm:     b.Immediate,
			Key:     key,
		}
		switch len(b.Inputs) {
		case 2:
			ins.Src1, ins.Src2 = t.Register(b.Inputs[0].Name()), t.Register(b.Inputs[1].Name())
		case 1:
			ins.Src1 = t.Register(b.Inputs[0].Name())
		}
		p[i] = ins
	}

	log.Printf("[bytecode] %d instructions, %d registers", len(p), len(t.registers)+2)
	return p, nil
}

// ArgumentRegisters returns the register of each argument in argument
// order. Arguments never read by the program are allocated here.
func (t *Translator) ArgumentRegisters() []uint16 {
	a := make([]uint16, len(t.arguments))
	for i, name := range t.arguments {
		a[i] = t.Register(name)
	}
	return a
}

// VariableMap returns one "name 0xreg" line per argument.
func (t *Translator) VariableMap() string {
	var buf strings.Builder
	for i, r := range t.ArgumentRegisters() {
		fmt.Fprintf(&buf, "%s %#x\n", t.arguments[i], r)
	}
	return buf.String()
}

// Listing returns each instruction below the assignment it was translated
// from, followed by the register of every variable.
func (t *Translator) Listing(instructions []loki.Assignment, p Program) string {
	var buf strings.Builder
	for i, ins := range p {
		if i < len(instructions) {
			fmt.Fprintf(&buf, "%s\n", instructions[i])
		}

		b := Encode(ins)
		fmt.Fprintf(&buf, "%x %x %x %x %x %x\n", b[0:2], b[2:4], b[4:6], b[6:8], b[8:16], b[16:24])
	}

	buf.WriteString("\n\nvariable map:\n")
	for _, name := range t.order {
		fmt.Fprintf(&buf, "%s: %04x\n", name, t.registers[name])
	}
	return buf.String()
}
