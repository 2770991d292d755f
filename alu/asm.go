package alu

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/loki"
)

// EmitAsm returns the pseudo-assembly of a handler expression. Each line
// binds one temporary of the expression's SSA form:
//
//	T.1 = REG 64 x
//	T.2 = INT 64 0x1
//	T.3 = ADD 64 T.1 T.2
func EmitAsm(e loki.Expr) string {
	a := loki.FromAssignments([]loki.Assignment{loki.NewAssignment(loki.Reg64("r"), e)})

	// The last assignment binds the destination register.
	a = a[:len(a)-1]

	var buf strings.Builder
	for _, x := range a {
		fmt.Fprintf(&buf, "%s = %s\n", x.LHS.Name(), asmInstruction(x.RHS))
	}
	return buf.String()
}

// asmInstruction formats an SSA right-hand side whose operands are all
// temporaries.
func asmInstruction(e loki.Expr) string {
	root := e.Root()

	args := e.Args()
	names := make([]string, len(args))
	for i, arg := range args {
		names[i] = arg.Name()
	}

	switch root.Op {
	case loki.OpReg:
		return fmt.Sprintf("REG %d %s", root.Width, root.Name)
	case loki.OpConst:
		return fmt.Sprintf("INT %d %#x", root.Width, root.Value)
	case loki.OpNop:
		return "NOP"
	}

	mnemonic, ok := asmMnemonics[root.Op]
	if !ok {
		panic("assert: operator not supported by assembler: " + root.Op.String())
	}
	return fmt.Sprintf("%s %d %s", mnemonic, root.Width, strings.Join(names, " "))
}

var asmMnemonics = map[loki.Op]string{
	loki.OpNot:        "NOT",
	loki.OpNeg:        "NEG",
	loki.OpZeroExtend: "ZEXT",
	loki.OpSignExtend: "SEXT",
	loki.OpLoad:       "LOAD",
	loki.OpAdd:        "ADD",
	loki.OpSub:        "SUB",
	loki.OpAnd:        "AND",
	loki.OpOr:         "OR",
	loki.OpXor:        "XOR",
	loki.OpShl:        "SHL",
	loki.OpLshr:       "LSHR",
	loki.OpAshr:       "ASHR",
	loki.OpEqual:      "ICMPEQ",
	loki.OpMul:        "MUL",
	loki.OpUdiv:       "UDIV",
	loki.OpSdiv:       "SDIV",
	loki.OpUrem:       "UREM",
	loki.OpSrem:       "SREM",
	loki.OpUlt:        "ULT",
	loki.OpSlt:        "SLT",
	loki.OpUle:        "ULE",
	loki.OpSle:        "SLE",
	loki.OpIte:        "ITE",
}
