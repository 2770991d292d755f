package bytecode_test

import (
	"strings"
	"testing"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/alu"
	"github.com/benbjohnson/loki/bytecode"
	"github.com/google/go-cmp/cmp"
)

func TestTranslator_Translate(t *testing.T) {
	instrs := []loki.Assignment{
		loki.NewAssignment(loki.Reg64("t1"), loki.Add(loki.Reg64("a"), loki.Reg64("b"), 64)),
		loki.NewAssignment(loki.Reg64("t2"), loki.Not(loki.Reg64("t1"), 64)),
		loki.NewAssignment(loki.Reg64("t3"), loki.Const64(7)),
		loki.NewAssignment(loki.Reg64(loki.OutputRegister), loki.Reg64("t2")),
	}
	blocks := alu.NewBlocks(instrs)

	keys := alu.MetaKeys{2: alu.NewKeys(), 3: alu.NewKeys()}
	keys[2].Push(0xa0)
	keys[2].Push(0xa1)
	keys[3].Push(0xb0)
	schedule := alu.SchedulerMap{
		0: {Handler: 2, Slot: 1},
		1: {Handler: 3, Slot: 0},
		2: {Handler: 2, Slot: 0},
		3: {Handler: 2, Slot: 0},
	}

	tr := bytecode.NewTranslator([]string{"a", "b", "unused"})
	p, err := tr.Translate(blocks, keys, schedule)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(bytecode.Program{
		{Handler: 2, Dest: 2, Src1: 3, Src2: 4, Key: 0xa1},
		{Handler: 3, Dest: 5, Src1: 2, Src2: bytecode.PadRegister, Key: 0xb0},
		{Handler: 2, Dest: 6, Src1: bytecode.PadRegister, Src2: bytecode.PadRegister, Imm: 7, Key: 0xa0},
		{Handler: 2, Dest: bytecode.OutputRegister, Src1: 5, Src2: bytecode.PadRegister, Key: 0xa0},
	}, p); diff != "" {
		t.Fatal(diff)
	}

	// Unused arguments are allocated after every program variable.
	if diff := cmp.Diff([]uint16{3, 4, 7}, tr.ArgumentRegisters()); diff != "" {
		t.Fatal(diff)
	} else if diff := cmp.Diff("a 0x3\nb 0x4\nunused 0x7\n", tr.VariableMap()); diff != "" {
		t.Fatal(diff)
	}

	listing := tr.Listing(instrs, p)
	if !strings.HasPrefix(listing, "t1 = (a + b)\n0200 0200 0300 0400 0000000000000000 a100000000000000\n") {
		t.Fatalf("unexpected listing:\n%s", listing)
	} else if !strings.HasSuffix(listing, "variable map:\nt1: 0002\na: 0003\nb: 0004\nt2: 0005\nt3: 0006\nunused: 0007\n") {
		t.Fatalf("unexpected listing:\n%s", listing)
	}
}

func TestTranslator_Translate_ErrUnscheduled(t *testing.T) {
	blocks := alu.NewBlocks([]loki.Assignment{
		loki.NewAssignment(loki.Reg64("t1"), loki.Reg64("a")),
	})
	if _, err := bytecode.NewTranslator([]string{"a"}).Translate(blocks, alu.MetaKeys{}, alu.SchedulerMap{}); err == nil || err.Error() != "block 0 not scheduled" {
		t.Fatalf("unexpected error: %v", err)
	}
}
