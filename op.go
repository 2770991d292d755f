package loki

import (
	"encoding/json"
	"fmt"
)

// Op represents a bit-vector operator tag.
type Op uint8

// Operator tags. The declaration order defines the canonical operand order
// used by Compare, so new tags must be appended.
const (
	OpAssign Op = iota
	OpAdd
	OpSub
	OpOr
	OpAnd
	OpXor
	OpNand
	OpNor
	OpNot
	OpNeg
	OpAshr
	OpLshr
	OpShl
	OpMul
	OpUdiv
	OpSdiv
	OpUrem
	OpSrem
	OpUlt
	OpSlt
	OpUle
	OpSle
	OpEqual
	OpConst
	OpReg
	OpIte
	OpSlice
	OpMem
	OpConcat
	OpZeroExtend
	OpSignExtend
	OpTrunc
	OpBitCast
	OpE
	OpNop
	OpGEP
	OpLoad
	OpStore
	OpAlloc
	OpAlloca

	numOps
)

var opNames = [numOps]string{
	OpAssign:     "Assign",
	OpAdd:        "Add",
	OpSub:        "Sub",
	OpOr:         "Or",
	OpAnd:        "And",
	OpXor:        "Xor",
	OpNand:       "Nand",
	OpNor:        "Nor",
	OpNot:        "Not",
	OpNeg:        "Neg",
	OpAshr:       "Ashr",
	OpLshr:       "Lshr",
	OpShl:        "Shl",
	OpMul:        "Mul",
	OpUdiv:       "Udiv",
	OpSdiv:       "Sdiv",
	OpUrem:       "Urem",
	OpSrem:       "Srem",
	OpUlt:        "Ult",
	OpSlt:        "Slt",
	OpUle:        "Ule",
	OpSle:        "Sle",
	OpEqual:      "Equal",
	OpConst:      "Const",
	OpReg:        "Reg",
	OpIte:        "Ite",
	OpSlice:      "Slice",
	OpMem:        "Mem",
	OpConcat:     "Concat",
	OpZeroExtend: "ZeroExtend",
	OpSignExtend: "SignExtend",
	OpTrunc:      "Trunc",
	OpBitCast:    "BitCast",
	OpE:          "E",
	OpNop:        "Nop",
	OpGEP:        "GEP",
	OpLoad:       "Load",
	OpStore:      "Store",
	OpAlloc:      "Alloc",
	OpAlloca:     "Alloca",
}

var opArity = [numOps]int{
	OpAssign:     2,
	OpAdd:        2,
	OpSub:        2,
	OpOr:         2,
	OpAnd:        2,
	OpXor:        2,
	OpNand:       2,
	OpNor:        2,
	OpNot:        1,
	OpNeg:        1,
	OpAshr:       2,
	OpLshr:       2,
	OpShl:        2,
	OpMul:        2,
	OpUdiv:       2,
	OpSdiv:       2,
	OpUrem:       2,
	OpSrem:       2,
	OpUlt:        2,
	OpSlt:        2,
	OpUle:        2,
	OpSle:        2,
	OpEqual:      2,
	OpConst:      0,
	OpReg:        0,
	OpIte:        3,
	OpSlice:      1,
	OpMem:        1,
	OpConcat:     2,
	OpZeroExtend: 1,
	OpSignExtend: 1,
	OpTrunc:      1,
	OpBitCast:    1,
	OpE:          0,
	OpNop:        0,
	OpGEP:        2,
	OpLoad:       1,
	OpStore:      2,
	OpAlloc:      0,
	OpAlloca:     1,
}

// Arity returns the number of operands consumed by the operator.
func (op Op) Arity() int {
	assert(op < numOps, "invalid op: %d", op)
	return opArity[op]
}

// IsCommutative returns true if operands may be swapped.
func (op Op) IsCommutative() bool {
	switch op {
	case OpAdd, OpOr, OpAnd, OpXor, OpNand, OpNor, OpMul:
		return true
	default:
		return false
	}
}

// IsAssociative returns true if the operator may be re-associated.
func (op Op) IsAssociative() bool {
	switch op {
	case OpAdd, OpOr, OpAnd, OpXor, OpMul:
		return true
	default:
		return false
	}
}

// IsComparison returns true for operators producing a 0/1 result.
func (op Op) IsComparison() bool {
	switch op {
	case OpUlt, OpSlt, OpUle, OpSle, OpEqual:
		return true
	default:
		return false
	}
}

// String returns the name of the operator.
func (op Op) String() string {
	if op >= numOps {
		return fmt.Sprintf("Op(%d)", op)
	}
	return opNames[op]
}

// ParseOp returns the operator with the given name.
func ParseOp(s string) (Op, error) {
	for i, name := range opNames {
		if name == s {
			return Op(i), nil
		}
	}
	return 0, fmt.Errorf("unknown op: %q", s)
}

// MarshalJSON encodes the operator by name.
func (op Op) MarshalJSON() ([]byte, error) {
	return json.Marshal(op.String())
}

// UnmarshalJSON decodes an operator name.
func (op *Op) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseOp(s)
	if err != nil {
		return err
	}
	*op = v
	return nil
}
