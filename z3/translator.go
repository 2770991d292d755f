package z3

import (
	"fmt"
	"unsafe"

	"github.com/benbjohnson/loki"
)

/*
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure translator implements interface.
var _ loki.Evaluator[C.Z3_ast] = (*Translator)(nil)

// Translator converts loki expressions to Z3 bit-vector terms. Comparisons
// produce a bit-vector of the operator width holding 1 or 0 so every term
// stays in the bit-vector sort.
//
// The first API failure is recorded and returned by Err. Later calls become
// no-ops returning nil terms.
type Translator struct {
	ctx *Context
	err error
}

// NewTranslator returns a translator that builds terms in ctx.
func NewTranslator(ctx *Context) *Translator {
	return &Translator{ctx: ctx}
}

// Err returns the first error encountered during translation.
func (t *Translator) Err() error { return t.err }

// Translate returns the Z3 term for e.
func (t *Translator) Translate(e loki.Expr) C.Z3_ast {
	if t.err != nil {
		return nil
	}
	return loki.Evaluate[C.Z3_ast](t, e)
}

// String returns the SMT-LIB rendering of e.
func (t *Translator) String(e loki.Expr) string {
	ast := t.Translate(e)
	if t.err != nil {
		return ""
	}
	return t.ctx.astToString(ast)
}

func (t *Translator) EvalOp0(e loki.LinearExpr) C.Z3_ast {
	if t.err != nil {
		return nil
	}

	switch e.Op {
	case loki.OpConst:
		return t.makeUint64(e.Width, e.Value)
	case loki.OpReg:
		return t.makeNamedConst(e.Name, e.Width)
	default:
		t.fail(e.Op)
		return nil
	}
}

func (t *Translator) EvalOp1(x C.Z3_ast, e loki.LinearExpr) C.Z3_ast {
	if t.err != nil {
		return nil
	}

	switch e.Op {
	case loki.OpNot:
		return t.check(C.Z3_mk_bvnot(t.ctx.raw, x), "Z3_mk_bvnot")
	case loki.OpNeg:
		return t.check(C.Z3_mk_bvneg(t.ctx.raw, x), "Z3_mk_bvneg")
	case loki.OpSlice:
		return t.check(C.Z3_mk_extract(t.ctx.raw, C.uint(e.End), C.uint(e.Start), x), "Z3_mk_extract")
	case loki.OpZeroExtend:
		return t.check(C.Z3_mk_zero_ext(t.ctx.raw, C.uint(e.Width-t.bvSize(x)), x), "Z3_mk_zero_ext")
	case loki.OpSignExtend:
		return t.check(C.Z3_mk_sign_ext(t.ctx.raw, C.uint(e.Width-t.bvSize(x)), x), "Z3_mk_sign_ext")
	default:
		t.fail(e.Op)
		return nil
	}
}

func (t *Translator) EvalOp2(y, x C.Z3_ast, e loki.LinearExpr) C.Z3_ast {
	if t.err != nil {
		return nil
	}

	switch e.Op {
	case loki.OpAdd:
		return t.check(C.Z3_mk_bvadd(t.ctx.raw, x, y), "Z3_mk_bvadd")
	case loki.OpSub:
		return t.check(C.Z3_mk_bvsub(t.ctx.raw, x, y), "Z3_mk_bvsub")
	case loki.OpMul:
		return t.check(C.Z3_mk_bvmul(t.ctx.raw, x, y), "Z3_mk_bvmul")
	case loki.OpUdiv:
		return t.check(C.Z3_mk_bvudiv(t.ctx.raw, x, y), "Z3_mk_bvudiv")
	case loki.OpSdiv:
		return t.check(C.Z3_mk_bvsdiv(t.ctx.raw, x, y), "Z3_mk_bvsdiv")
	case loki.OpUrem:
		return t.check(C.Z3_mk_bvurem(t.ctx.raw, x, y), "Z3_mk_bvurem")
	case loki.OpSrem:
		return t.check(C.Z3_mk_bvsrem(t.ctx.raw, x, y), "Z3_mk_bvsrem")
	case loki.OpAnd:
		return t.check(C.Z3_mk_bvand(t.ctx.raw, x, y), "Z3_mk_bvand")
	case loki.OpOr:
		return t.check(C.Z3_mk_bvor(t.ctx.raw, x, y), "Z3_mk_bvor")
	case loki.OpXor:
		return t.check(C.Z3_mk_bvxor(t.ctx.raw, x, y), "Z3_mk_bvxor")
	case loki.OpNand:
		return t.check(C.Z3_mk_bvnand(t.ctx.raw, x, y), "Z3_mk_bvnand")
	case loki.OpNor:
		return t.check(C.Z3_mk_bvnor(t.ctx.raw, x, y), "Z3_mk_bvnor")
	case loki.OpShl:
		return t.check(C.Z3_mk_bvshl(t.ctx.raw, x, y), "Z3_mk_bvshl")
	case loki.OpLshr:
		return t.check(C.Z3_mk_bvlshr(t.ctx.raw, x, y), "Z3_mk_bvlshr")
	case loki.OpAshr:
		return t.check(C.Z3_mk_bvashr(t.ctx.raw, x, y), "Z3_mk_bvashr")
	case loki.OpConcat:
		return t.check(C.Z3_mk_concat(t.ctx.raw, x, y), "Z3_mk_concat")
	case loki.OpUlt:
		return t.bool(C.Z3_mk_bvult(t.ctx.raw, x, y), e.Width, "Z3_mk_bvult")
	case loki.OpSlt:
		return t.bool(C.Z3_mk_bvslt(t.ctx.raw, x, y), e.Width, "Z3_mk_bvslt")
	case loki.OpUle:
		return t.bool(C.Z3_mk_bvule(t.ctx.raw, x, y), e.Width, "Z3_mk_bvule")
	case loki.OpSle:
		return t.bool(C.Z3_mk_bvsle(t.ctx.raw, x, y), e.Width, "Z3_mk_bvsle")
	case loki.OpEqual:
		return t.bool(C.Z3_mk_eq(t.ctx.raw, x, y), e.Width, "Z3_mk_eq")
	default:
		t.fail(e.Op)
		return nil
	}
}

func (t *Translator) EvalOp3(z, y, x C.Z3_ast, e loki.LinearExpr) C.Z3_ast {
	if t.err != nil {
		return nil
	}

	switch e.Op {
	case loki.OpIte:
		zero := t.makeUint64(t.bvSize(x), 0)
		if t.err != nil {
			return nil
		}
		isZero := t.check(C.Z3_mk_eq(t.ctx.raw, x, zero), "Z3_mk_eq")
		if t.err != nil {
			return nil
		}
		return t.check(C.Z3_mk_ite(t.ctx.raw, isZero, z, y), "Z3_mk_ite")
	default:
		t.fail(e.Op)
		return nil
	}
}

// bool converts a boolean term into a bit-vector of width w holding 1 or 0.
func (t *Translator) bool(cond C.Z3_ast, w uint, op string) C.Z3_ast {
	if t.check(cond, op); t.err != nil {
		return nil
	}
	one, zero := t.makeUint64(w, 1), t.makeUint64(w, 0)
	if t.err != nil {
		return nil
	}
	return t.check(C.Z3_mk_ite(t.ctx.raw, cond, one, zero), "Z3_mk_ite")
}

// check records the error for the last API call, if any, and returns ast.
func (t *Translator) check(ast C.Z3_ast, op string) C.Z3_ast {
	if t.err != nil {
		return nil
	} else if err := t.ctx.err(op); err != nil {
		t.err = err
		return nil
	}
	return ast
}

func (t *Translator) fail(op loki.Op) {
	if t.err == nil {
		t.err = fmt.Errorf("z3.Translator: unsupported operation: %s", op)
	}
}

func (t *Translator) makeBVSort(w uint) C.Z3_sort {
	sort := C.Z3_mk_bv_sort(t.ctx.raw, C.uint(w))
	if err := t.ctx.err("Z3_mk_bv_sort"); err != nil && t.err == nil {
		t.err = err
	}
	return sort
}

func (t *Translator) makeUint64(w uint, v uint64) C.Z3_ast {
	sort := t.makeBVSort(w)
	if t.err != nil {
		return nil
	}
	return t.check(C.Z3_mk_unsigned_int64(t.ctx.raw, C.uint64_t(loki.MaskToSize(v, w)), sort), "Z3_mk_unsigned_int64")
}

func (t *Translator) makeNamedConst(name string, w uint) C.Z3_ast {
	sort := t.makeBVSort(w)
	if t.err != nil {
		return nil
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	symbol := C.Z3_mk_string_symbol(t.ctx.raw, cname)
	return t.check(C.Z3_mk_const(t.ctx.raw, symbol, sort), "Z3_mk_const")
}

// bvSize returns the size of a bit-vector term in bits.
func (t *Translator) bvSize(ast C.Z3_ast) uint {
	sort := C.Z3_get_sort(t.ctx.raw, ast)
	if err := t.ctx.err("Z3_get_sort"); err != nil {
		panic(err)
	}
	sz := uint(C.Z3_get_bv_sort_size(t.ctx.raw, sort))
	if err := t.ctx.err("Z3_get_bv_sort_size"); err != nil {
		panic(err)
	}
	return sz
}
