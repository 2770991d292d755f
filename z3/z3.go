package z3

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/benbjohnson/loki"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
#include <stdint.h>
*/
import "C"

// Prover answers equivalence and satisfiability queries over loki expressions
// using an embedded Z3 solver. Z3 contexts are not shared between goroutines
// so all queries are serialized and each query runs in a fresh context.
type Prover struct {
	mu      sync.Mutex
	timeout time.Duration
	stats   Stats
}

// NewProver returns a new instance of Prover. A zero timeout disables the
// per-query time limit.
func NewProver(timeout time.Duration) *Prover {
	return &Prover{timeout: timeout}
}

// Stats returns statistics for the prover.
func (p *Prover) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Equivalent reports whether a and b are equal for every assignment of their
// free registers. It returns false with a solver error when the query could
// not be decided, e.g. loki.ErrSolverTimeout.
func (p *Prover) Equivalent(a, b loki.Expr) (bool, error) {
	if a.Width() != b.Width() {
		return false, fmt.Errorf("z3.Prover.Equivalent: width mismatch: %d != %d", a.Width(), b.Width())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t := time.Now()
	defer func() {
		p.stats.SolveN++
		p.stats.SolveTime += time.Since(t)
	}()

	ctx := NewContext()
	defer ctx.Close()

	tr := NewTranslator(ctx)
	x, y := tr.Translate(a), tr.Translate(b)
	if err := tr.Err(); err != nil {
		return false, err
	}

	eq := C.Z3_mk_eq(ctx.raw, x, y)
	if err := ctx.err("Z3_mk_eq"); err != nil {
		return false, err
	}
	neq := C.Z3_mk_not(ctx.raw, eq)
	if err := ctx.err("Z3_mk_not"); err != nil {
		return false, err
	}

	// The expressions are equivalent when no input can tell them apart.
	satisfiable, _, err := ctx.check(p.timeout, []C.Z3_ast{neq}, nil)
	if err != nil {
		return false, err
	}
	p.stats.ProvenN += boolInt(!satisfiable)
	return !satisfiable, nil
}

// Model searches for an assignment of registers under which every constraint
// evaluates to a non-zero value. On success, it returns the concrete value of
// each expression in vars under that assignment.
func (p *Prover) Model(constraints []loki.Expr, vars []loki.Expr) (satisfiable bool, values []uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := time.Now()
	defer func() {
		p.stats.SolveN++
		p.stats.SolveTime += time.Since(t)
	}()

	ctx := NewContext()
	defer ctx.Close()

	tr := NewTranslator(ctx)
	asts := make([]C.Z3_ast, 0, len(constraints))
	for _, constraint := range constraints {
		x := tr.Translate(constraint)
		zero := tr.makeUint64(constraint.Width(), 0)
		if err := tr.Err(); err != nil {
			return false, nil, err
		}
		eq := C.Z3_mk_eq(ctx.raw, x, zero)
		if err := ctx.err("Z3_mk_eq"); err != nil {
			return false, nil, err
		}
		asts = append(asts, C.Z3_mk_not(ctx.raw, eq))
		if err := ctx.err("Z3_mk_not"); err != nil {
			return false, nil, err
		}
	}

	targets := make([]C.Z3_ast, 0, len(vars))
	for _, v := range vars {
		targets = append(targets, tr.Translate(v))
	}
	if err := tr.Err(); err != nil {
		return false, nil, err
	}

	return ctx.check(p.timeout, asts, targets)
}

// Context represents a Z3 context object that is used for constructing expressions.
type Context struct {
	raw C.Z3_context
}

// NewContext returns a new instance of Context.
func NewContext() *Context {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &Context{raw: raw}
}

// Close deletes the underlying Z3 context.
func (ctx *Context) Close() error {
	C.Z3_del_context(ctx.raw)
	return nil
}

// err returns the error for the last API call. Returns nil if last call was successful.
func (ctx *Context) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// check asserts constraints on a new solver and runs it. If the constraints
// are satisfiable then targets are evaluated against the model.
func (ctx *Context) check(timeout time.Duration, constraints []C.Z3_ast, targets []C.Z3_ast) (satisfiable bool, values []uint64, err error) {
	solver := C.Z3_mk_solver(ctx.raw)
	if err := ctx.err("Z3_mk_solver"); err != nil {
		return false, nil, err
	}
	C.Z3_solver_inc_ref(ctx.raw, solver)
	defer C.Z3_solver_dec_ref(ctx.raw, solver)

	if timeout > 0 {
		if err := ctx.setTimeout(solver, timeout); err != nil {
			return false, nil, err
		}
	}

	for _, constraint := range constraints {
		C.Z3_solver_assert(ctx.raw, solver, constraint)
		if err := ctx.err("Z3_solver_assert"); err != nil {
			return false, nil, err
		}
	}

	// Exit immediately if unsatisfiable or the solver encountered an error.
	ret := C.Z3_solver_check(ctx.raw, solver)
	if err := ctx.err("Z3_solver_check"); err != nil {
		return false, nil, err
	} else if ret == C.Z3_L_FALSE {
		return false, nil, nil
	} else if ret == C.Z3_L_UNDEF {
		return false, nil, reasonError(C.GoString(C.Z3_solver_get_reason_unknown(ctx.raw, solver)))
	} else if len(targets) == 0 {
		return true, nil, nil // nothing to evaluate, ignore model
	}

	model := C.Z3_solver_get_model(ctx.raw, solver)
	if err := ctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}
	C.Z3_model_inc_ref(ctx.raw, model)
	defer C.Z3_model_dec_ref(ctx.raw, model)

	values = make([]uint64, 0, len(targets))
	for _, target := range targets {
		v, err := ctx.eval(model, target)
		if err != nil {
			return true, nil, err
		}
		values = append(values, v)
	}
	return true, values, nil
}

// setTimeout limits the wall-clock time of a single check on solver.
func (ctx *Context) setTimeout(solver C.Z3_solver, timeout time.Duration) error {
	params := C.Z3_mk_params(ctx.raw)
	if err := ctx.err("Z3_mk_params"); err != nil {
		return err
	}
	C.Z3_params_inc_ref(ctx.raw, params)
	defer C.Z3_params_dec_ref(ctx.raw, params)

	cname := C.CString("timeout")
	defer C.free(unsafe.Pointer(cname))

	C.Z3_params_set_uint(ctx.raw, params, C.Z3_mk_string_symbol(ctx.raw, cname), C.uint(timeout.Milliseconds()))
	if err := ctx.err("Z3_params_set_uint"); err != nil {
		return err
	}
	C.Z3_solver_set_params(ctx.raw, solver, params)
	return ctx.err("Z3_solver_set_params")
}

// eval evaluates a bit-vector term against model with model completion enabled.
func (ctx *Context) eval(model C.Z3_model, ast C.Z3_ast) (uint64, error) {
	var out C.Z3_ast
	C.Z3_model_eval(ctx.raw, model, ast, C.bool(true), &out)
	if err := ctx.err("Z3_model_eval"); err != nil {
		return 0, err
	}

	var v C.uint64_t
	C.Z3_get_numeral_uint64(ctx.raw, out, &v)
	if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
		return 0, err
	}
	return uint64(v), nil
}

func (ctx *Context) astToString(ast C.Z3_ast) string {
	return C.GoString(C.Z3_ast_to_string(ctx.raw, ast))
}

// reasonError maps an "unknown" solver result to a sentinel error.
func reasonError(reason string) error {
	switch {
	case strings.Contains(reason, "timeout"):
		return loki.ErrSolverTimeout
	case strings.Contains(reason, "canceled"):
		return loki.ErrSolverCanceled
	case strings.Contains(reason, "(resource limits reached)"):
		return loki.ErrSolverResourceLimit
	case strings.Contains(reason, "unknown"):
		return loki.ErrSolverUnknown
	default:
		return fmt.Errorf("z3: %s", reason)
	}
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Possible error codes.
const (
	ErrorCodeOK = iota
	ErrorCodeSortError
	ErrorCodeIOB
	ErrorCodeInvalidArg
	ErrorCodeParserError
	ErrorCodeNoParser
	ErrorCodeInvalidPattern
	ErrorCodeMemoutFail
	ErrorCodeFileAccessError
	ErrorCodeInternalFatal
	ErrorCodeInvalidUsage
	ErrorCodeDecRefError
	ErrorCodeException
)

type Stats struct {
	SolveN    int
	ProvenN   int
	SolveTime time.Duration
}
