package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// InstructionSize is the encoded size of an instruction, in bytes.
const InstructionSize = 24

// ErrShortInstruction is returned when decoding fewer than InstructionSize bytes.
var ErrShortInstruction = errors.New("short instruction")

// Instruction is a single bytecode instruction. Handler selects the ALU and
// Key selects the slot within it. Dest receives the result of applying the
// slot to Src1, Src2 and Imm.
type Instruction struct {
	Handler uint16 `json:"handler"`
	Dest    uint16 `json:"dest"`
	Src1    uint16 `json:"src1"`
	Src2    uint16 `json:"src2"`
	Imm     uint64 `json:"imm"`
	Key     uint64 `json:"key"`
}

// String returns a single-line description of the instruction.
func (ins Instruction) String() string {
	return fmt.Sprintf("ALU%d r%d, r%d, r%d, imm=%#x, key=%#x", ins.Handler, ins.Dest, ins.Src1, ins.Src2, ins.Imm, ins.Key)
}

// Encode returns the little-endian encoding of ins.
func Encode(ins Instruction) [InstructionSize]byte {
	var b [InstructionSize]byte
	binary.LittleEndian.PutUint16(b[0:2], ins.Handler)
	binary.LittleEndian.PutUint16(b[2:4], ins.Dest)
	binary.LittleEndian.PutUint16(b[4:6], ins.Src1)
	binary.LittleEndian.PutUint16(b[6:8], ins.Src2)
	binary.LittleEndian.PutUint64(b[8:16], ins.Imm)
	binary.LittleEndian.PutUint64(b[16:24], ins.Key)
	return b
}

// Decode decodes the instruction at the start of b.
func Decode(b []byte) (Instruction, error) {
	if len(b) < InstructionSize {
		return Instruction{}, ErrShortInstruction
	}
	return Instruction{
		Handler: binary.LittleEndian.Uint16(b[0:2]),
		Dest:    binary.LittleEndian.Uint16(b[2:4]),
		Src1:    binary.LittleEndian.Uint16(b[4:6]),
		Src2:    binary.LittleEndian.Uint16(b[6:8]),
		Imm:     binary.LittleEndian.Uint64(b[8:16]),
		Key:     binary.LittleEndian.Uint64(b[16:24]),
	}, nil
}

// Program is a sequence of instructions.
type Program []Instruction

// MarshalBinary returns the concatenated encoding of every instruction.
func (p Program) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, len(p)*InstructionSize)
	for _, ins := range p {
		b := Encode(ins)
		buf = append(buf, b[:]...)
	}
	return buf, nil
}

// UnmarshalBinary decodes a program. The length of data must be a multiple
// of InstructionSize.
func (p *Program) UnmarshalBinary(data []byte) error {
	if len(data)%InstructionSize != 0 {
		return fmt.Errorf("program size %d: %w", len(data), ErrShortInstruction)
	}

	other := make(Program, 0, len(data)/InstructionSize)
	for i := 0; i < len(data); i += InstructionSize {
		ins, err := Decode(data[i:])
		if err != nil {
			return err
		}
		other = append(other, ins)
	}
	*p = other
	return nil
}
