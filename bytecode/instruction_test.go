package bytecode_test

import (
	"errors"
	"testing"

	"github.com/benbjohnson/loki/bytecode"
	"github.com/google/go-cmp/cmp"
)

func TestEncode(t *testing.T) {
	ins := bytecode.Instruction{Handler: 0x0102, Dest: 0, Src1: 2, Src2: 1, Imm: 0x20, Key: 0x1122334455667788}

	b := bytecode.Encode(ins)
	if diff := cmp.Diff([]byte{
		0x02, 0x01,
		0x00, 0x00,
		0x02, 0x00,
		0x01, 0x00,
		0x20, 0, 0, 0, 0, 0, 0, 0,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}, b[:]); diff != "" {
		t.Fatal(diff)
	}

	other, err := bytecode.Decode(b[:])
	if err != nil {
		t.Fatal(err)
	} else if diff := cmp.Diff(ins, other); diff != "" {
		t.Fatal(diff)
	}
}

func TestDecode_ErrShortInstruction(t *testing.T) {
	if _, err := bytecode.Decode(make([]byte, bytecode.InstructionSize-1)); !errors.Is(err, bytecode.ErrShortInstruction) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProgram_MarshalBinary(t *testing.T) {
	p := bytecode.Program{
		{Handler: 2, Dest: 2, Src1: 3, Src2: 4, Key: 0xdeadbeef},
		{Handler: 1, Dest: 0, Src1: 2, Src2: 1, Imm: 64, Key: 0},
	}

	buf, err := p.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	} else if len(buf) != 2*bytecode.InstructionSize {
		t.Fatalf("unexpected size: %d", len(buf))
	}

	var other bytecode.Program
	if err := other.UnmarshalBinary(buf); err != nil {
		t.Fatal(err)
	} else if diff := cmp.Diff(p, other); diff != "" {
		t.Fatal(diff)
	}

	t.Run("ErrShortInstruction", func(t *testing.T) {
		if err := other.UnmarshalBinary(buf[:30]); !errors.Is(err, bytecode.ErrShortInstruction) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
