package alu

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/benbjohnson/loki"
	"github.com/benbjohnson/loki/config"
	"github.com/benbjohnson/loki/rewrite"
)

// ErrHandlerMismatch is returned when a handler does not compute the
// semantics of a slot under its key.
var ErrHandlerMismatch = errors.New("handler mismatch")

// minHandlerSSALen is the SSA length a handler expression must exceed.
const minHandlerSSALen = 10

// verifySampleN is the number of random inputs checked per key, in addition
// to all-zero and all-one inputs.
const verifySampleN = 4

// Handler is a single ALU of the virtual machine. Its semantics evaluate to
// the expression of slot i when the key register holds Keys.Get(i).
type Handler struct {
	ID        int       `json:"id"`
	Keys      *Keys     `json:"keys"`
	Semantics loki.Expr `json:"semantics"`

	// Post-processed slot expressions before rewriting and key gating.
	Slots []loki.Expr `json:"slots"`
}

// IsMemoryHandler returns true for the handler executing memory operations.
func (h *Handler) IsMemoryHandler() bool { return h.ID == MemoryHandler }

// Verify checks the handler on all-zero, all-one and random inputs under
// every key. Each slot must
// evaluate to the same value as its own expression and the handler must be
// large enough to hide its slots.
func (h *Handler) Verify(rng *rand.Rand) error {
	if h.IsMemoryHandler() {
		return nil
	}

	if n := len(loki.FromAssignments([]loki.Assignment{loki.NewAssignment(loki.Reg64("r"), h.Semantics)})); n <= minHandlerSSALen {
		return fmt.Errorf("%w: handler %d too short: %d", ErrHandlerMismatch, h.ID, n)
	}

	for i := 0; i < h.Keys.Len(); i++ {
		inputs := [][3]uint64{{0, 0, 0}, {^uint64(0), ^uint64(0), ^uint64(0)}}
		for j := 0; j < verifySampleN; j++ {
			inputs = append(inputs, [3]uint64{rng.Uint64(), rng.Uint64(), rng.Uint64()})
		}

		for _, in := range inputs {
			got := bindInputs(h.Semantics, in[0], in[1], in[2]).BindVar(RegKey, h.Keys.Get(i)).Simplify()
			want := bindInputs(h.Slots[i], in[0], in[1], in[2]).BindVar(RegKey, h.Keys.Get(i)).Simplify()
			if !got.IsConst() || !want.IsConst() || got.ConstValue() != want.ConstValue() {
				return fmt.Errorf("%w: handler %d slot %d: x=%#x y=%#x c=%#x: got %s, want %s", ErrHandlerMismatch, h.ID, i, in[0], in[1], in[2], got, want)
			}
		}
	}
	return nil
}

func bindInputs(e loki.Expr, x, y, c uint64) loki.Expr {
	return e.BindVar(RegX, x).BindVar(RegY, y).BindVar(RegC, c)
}

// NewMemoryHandler returns the handler executing loads, stores and
// allocations. Its semantics are interpreted by the virtual machine.
func NewMemoryHandler() *Handler {
	keys := NewKeys()
	for _, v := range []uint64{SlotLoad, SlotStore, SlotAlloc} {
		keys.Push(v)
	}
	return &Handler{
		ID:        MemoryHandler,
		Keys:      keys,
		Semantics: loki.Nop(loki.Width64),
	}
}

// Builder generates handlers from scheduled semantics.
type Builder struct {
	cfg      config.Config
	rewriter *rewrite.Rewriter

	// Optional prover checking every rewrite. A rewrite that is not proven
	// equivalent is discarded.
	Prover rewrite.Prover
}

// NewBuilder returns a new instance of Builder. The rewriter may be nil to
// disable MBA rewriting.
func NewBuilder(cfg config.Config, rewriter *rewrite.Rewriter) *Builder {
	if rewriter == nil {
		rewriter = rewrite.NewRewriter(nil)
	}
	return &Builder{cfg: cfg, rewriter: rewriter}
}

// Build returns handler id implementing entries. Remaining slots are filled
// with decoys and every slot is guarded by a check of its key.
func (b *Builder) Build(ctx context.Context, rng *rand.Rand, id int, entries []SemanticsEntry) (*Handler, error) {
	if id == MemoryHandler {
		return NewMemoryHandler(), nil
	}

	maxSlot := -1
	for _, entry := range entries {
		maxSlot = max(maxSlot, entry.Slot)
	}
	lo := min(max(maxSlot, b.cfg.MinSemanticsPerALU)+1, b.cfg.MaxSemanticsPerALU)
	assert(maxSlot < b.cfg.MaxSemanticsPerALU, "handler %d slot out of range: %d", id, maxSlot)
	n := lo + rng.Intn(b.cfg.MaxSemanticsPerALU-lo+1)

	slots := NewDecoyBuilder(rng).Generate(n)
	for _, entry := range entries {
		slots[entry.Slot] = entry.Expr
	}

	h := &Handler{ID: id, Keys: NewKeys(), Slots: make([]loki.Expr, n)}
	rewritten := make([]loki.Expr, n)
	for i, e := range slots {
		h.Slots[i] = PostProcess(e)
		rewritten[i] = b.mba(rng, h.Slots[i])
		pushRandKey(rng, h.Keys)
	}

	guards := make([]loki.Expr, n)
	for i := range rewritten {
		check, err := b.keyCheck(ctx, rng, h.Keys, i)
		if err != nil {
			return nil, err
		}
		guards[i] = b.mbaTop(rng, loki.Mul(check, rewritten[i], loki.Width64))
	}

	h.Semantics = PostProcess(b.mba(rng, b.thwart(rng, guards)))
	return h, nil
}

// keyCheck returns an expression of k that is 1 under the key of slot and 0
// under every other key of the handler.
func (b *Builder) keyCheck(ctx context.Context, rng *rand.Rand, keys *Keys, slot int) (loki.Expr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if aux, ok := keys.Auxiliary(slot); ok {
		return b.mba(rng, FactorizationCheck(keys.Get(slot)*aux)), nil
	}

	e, ok := PointFunction(ctx, rng, keys, slot, b.cfg.PointFunctionBudget)
	if !ok {
		e = MultiRootCheck(rng, keys.Get(slot))
	}
	return b.mba(rng, e), nil
}

// thwart sums the guarded slots.
func (b *Builder) thwart(rng *rand.Rand, guards []loki.Expr) loki.Expr {
	switch len(guards) {
	case 1:
		return guards[0]
	case 2:
		return b.mbaTop(rng, loki.Add(guards[0], guards[1], loki.Width64))
	default:
		return loki.Add(guards[0], b.thwart(rng, guards[1:]), loki.Width64)
	}
}

// mba rewrites e with the rule table. The original is kept if the prover
// cannot show both are equivalent.
func (b *Builder) mba(rng *rand.Rand, e loki.Expr) loki.Expr {
	return b.prove(e, b.rewriter.Rewrite(rng, e))
}

// mbaTop rewrites only the root operator of e.
func (b *Builder) mbaTop(rng *rand.Rand, e loki.Expr) loki.Expr {
	return b.prove(e, b.rewriter.RewriteTop(rng, e))
}

func (b *Builder) prove(orig, rewritten loki.Expr) loki.Expr {
	if b.Prover == nil || orig.Equal(rewritten) {
		return rewritten
	}
	if ok, err := b.Prover.Equivalent(orig, rewritten); err != nil || !ok {
		return orig
	}
	return rewritten
}

// PostProcess rewrites e into the operator set executed by handlers: shift
// amounts of left shifts are masked, right shifts are unmasked and NAND and
// NOR are expanded.
func PostProcess(e loki.Expr) loki.Expr {
	return loki.Evaluate[loki.Expr](postProcessor{}, e)
}

// postProcessor implements loki.Evaluator[loki.Expr].
type postProcessor struct{}

func (postProcessor) EvalOp0(e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpReg, loki.OpConst, loki.OpNop:
		return loki.Op0(e)
	default:
		panic("assert: operator not supported by handler: " + e.Op.String())
	}
}

func (postProcessor) EvalOp1(x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpNot, loki.OpNeg, loki.OpZeroExtend, loki.OpLoad:
		return loki.Op1(x, e)
	default:
		panic("assert: operator not supported by handler: " + e.Op.String())
	}
}

func (postProcessor) EvalOp2(y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	switch e.Op {
	case loki.OpShl:
		return loki.Shl(x, y, e.Width)
	case loki.OpLshr:
		return loki.LshrPlain(x, y, e.Width)
	case loki.OpAshr:
		return loki.AshrPlain(x, y, e.Width)
	case loki.OpNand:
		return loki.Not(loki.And(x, y, e.Width), e.Width)
	case loki.OpNor:
		return loki.Not(loki.Or(x, y, e.Width), e.Width)
	case loki.OpAdd, loki.OpSub, loki.OpMul, loki.OpUdiv, loki.OpSdiv, loki.OpUrem, loki.OpSrem,
		loki.OpAnd, loki.OpOr, loki.OpXor, loki.OpUlt, loki.OpSlt, loki.OpUle, loki.OpSle, loki.OpEqual,
		loki.OpStore:
		return loki.Op2(x, y, e)
	default:
		panic("assert: operator not supported by handler: " + e.Op.String())
	}
}

func (postProcessor) EvalOp3(z, y, x loki.Expr, e loki.LinearExpr) loki.Expr {
	if e.Op != loki.OpIte {
		panic("assert: operator not supported by handler: " + e.Op.String())
	}
	return loki.Op3(x, y, z, e)
}
