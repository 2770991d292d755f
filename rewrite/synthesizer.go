package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"strings"
	"sync"

	"github.com/benbjohnson/loki"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// specialValues are appended to every sample set as boundary inputs.
var specialValues = []uint64{
	0x0,
	0x1,
	0x2,
	0x80,
	0xff,
	0x8000,
	0xffff,
	0x80000000,
	0xffffffff,
	0x8000000000000000,
	0xffffffffffffffff,
}

// productionN is the number of grammar productions available when expanding
// a non-terminal.
const productionN = 16

// production returns the i-th grammar production at width w.
func production(i int, w uint) loki.Expr {
	x, y := loki.NT(w), loki.NT(w)
	switch i {
	case 0:
		return loki.Add(x, y, w)
	case 1:
		return loki.Sub(x, y, w)
	case 2:
		return loki.Or(x, y, w)
	case 3:
		return loki.And(x, y, w)
	case 4:
		return loki.Xor(x, y, w)
	case 5:
		return loki.Nand(x, y, w)
	case 6:
		return loki.Nor(x, y, w)
	case 7:
		return loki.Not(x, w)
	case 8:
		return loki.Neg(x, w)
	case 9:
		return loki.Shl(x, y, w)
	case 10:
		return loki.Mul(x, y, w)
	case 11:
		return loki.Reg("p0", w)
	case 12:
		return loki.Reg("p1", w)
	case 13:
		return loki.Const(0, w)
	case 14:
		return loki.Const(1, w)
	case 15:
		return loki.Const(2, w)
	default:
		panic("unreachable")
	}
}

// BasicSemantics returns the representatives of the rule table at width w.
func BasicSemantics(w uint) []loki.Expr {
	p0, p1 := loki.Reg("p0", w), loki.Reg("p1", w)
	return []loki.Expr{
		p0,
		loki.Add(p0, p1, w),
		loki.Sub(p0, p1, w),
		loki.Or(p0, p1, w),
		loki.Xor(p0, p1, w),
		loki.And(p0, p1, w),
		loki.Nand(p0, p1, w),
		loki.Nor(p0, p1, w),
		loki.Not(p0, w),
		loki.Neg(p0, w),
		loki.Shl(p0, p1, w),
		loki.Mul(p0, p1, w),
	}
}

// state is a partially expanded expression in the grammar enumeration.
type state struct {
	expr    loki.Expr
	next    int // next production to try
	replace int // position of the first non-terminal, or -1
}

func newState(expr loki.Expr) *state {
	return &state{expr: expr, replace: firstNonTerminal(expr)}
}

func (s *state) remaining() bool {
	return s.replace >= 0 && s.next < productionN
}

// step expands the first non-terminal with the next production.
func (s *state) step() *state {
	p := production(s.next, s.expr.Width())
	s.next++
	return newState(s.expr.ReplaceAt(s.replace, p))
}

func (s *state) isTerminal() bool { return s.replace < 0 }

func (s *state) isNormalized() bool { return s.expr.Equal(s.expr.Simplify()) }

func firstNonTerminal(e loki.Expr) int {
	for i, x := range e {
		if x.IsNonTerminal() {
			return i
		}
	}
	return -1
}

func countNonTerminals(e loki.Expr) int {
	var n int
	for _, x := range e {
		if x.IsNonTerminal() {
			n++
		}
	}
	return n
}

// Synthesizer enumerates expressions over p0 & p1 up to a maximum depth and
// partitions them into equivalence classes by their outputs on a fixed set
// of sample inputs.
type Synthesizer struct {
	width   uint
	samples [][3]uint64

	mu      sync.Mutex
	classes map[string]map[string]loki.Expr

	// If true, only expressions matching an existing class are kept.
	selectionOnly bool
}

// NewSynthesizer returns a synthesizer at width w using n random samples
// plus the special boundary values.
func NewSynthesizer(rng *rand.Rand, n int, w uint) *Synthesizer {
	s := &Synthesizer{
		width:   w,
		classes: make(map[string]map[string]loki.Expr),
	}
	for i := 0; i < n; i++ {
		s.samples = append(s.samples, [3]uint64{randSample(rng), randSample(rng), randSample(rng)})
	}
	for _, v := range specialValues {
		s.samples = append(s.samples, [3]uint64{v, v, v})
	}
	return s
}

// randSample returns a random value of random magnitude.
func randSample(rng *rand.Rand) uint64 {
	switch rng.Intn(5) {
	case 0:
		return uint64(uint8(rng.Uint64()))
	case 1:
		return uint64(uint16(rng.Uint64()))
	case 2:
		return uint64(uint32(rng.Uint64()))
	case 3:
		return rng.Uint64()
	default:
		return specialValues[rng.Intn(len(specialValues))]
	}
}

// InitWithSelection seeds the classes with exprs and restricts all further
// synthesis to those classes.
func (s *Synthesizer) InitWithSelection(ctx context.Context, exprs []loki.Expr) error {
	if err := s.handleTerminals(ctx, exprs); err != nil {
		return err
	}
	s.selectionOnly = true
	return nil
}

// Fingerprint returns a hash of the outputs of e on every sample.
func (s *Synthesizer) Fingerprint(e loki.Expr) string {
	var buf strings.Builder
	for _, sample := range s.samples {
		out := e.BindVar("p0", sample[0]).BindVar("p1", sample[1]).BindVar("p2", sample[2]).Simplify()
		fmt.Fprintf(&buf, "%d;", out.ConstValue())
	}
	return fmt.Sprintf("%x", blake2b.Sum256([]byte(buf.String())))
}

// Synthesize enumerates expressions layer by layer up to maxDepth
// expansions and adds every terminal expression to its class.
func (s *Synthesizer) Synthesize(ctx context.Context, maxDepth int) error {
	states := []*state{newState(loki.NT(s.width))}

	for layer := 0; layer < maxDepth; layer++ {
		terminals, next, err := s.partitionLayer(ctx, states, layer, maxDepth)
		if err != nil {
			return err
		}
		log.Printf("[rules] layer %d: %d terminals and %d non-terminals", layer, len(terminals), len(next))

		if err := s.handleTerminals(ctx, terminals); err != nil {
			return err
		}
		states = next
	}

	if len(states) != 0 {
		return fmt.Errorf("synthesize: %d states remain after %d layers", len(states), maxDepth)
	}
	return nil
}

// partitionLayer expands every state of a layer in parallel and splits the
// results into terminal expressions and states for the next layer.
func (s *Synthesizer) partitionLayer(ctx context.Context, states []*state, layer, maxDepth int) ([]loki.Expr, []*state, error) {
	type result struct {
		terminals []loki.Expr
		next      []*state
	}
	results := make([]result, len(states))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range states {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			st := states[i]
			for st.remaining() {
				next := st.step()
				if next.isTerminal() {
					results[i].terminals = append(results[i].terminals, next.expr.Simplify())
				} else if keepNonTerminal(next, layer, maxDepth) {
					results[i].next = append(results[i].next, next)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]struct{})
	var terminals []loki.Expr
	var next []*state
	for _, r := range results {
		for _, t := range r.terminals {
			if _, ok := seen[t.Key()]; !ok {
				seen[t.Key()] = struct{}{}
				terminals = append(terminals, t)
			}
		}
		next = append(next, r.next...)
	}
	return terminals, next, nil
}

// keepNonTerminal returns true if st is normalized, can still complete
// within maxDepth layers, and introduces parameters in order.
func keepNonTerminal(st *state, layer, maxDepth int) bool {
	if !st.isNormalized() {
		return false
	} else if countNonTerminals(st.expr)+layer >= maxDepth {
		return false
	}

	p0, p1, p2 := st.expr.ContainsVar("p0"), st.expr.ContainsVar("p1"), st.expr.ContainsVar("p2")
	switch {
	case !p0 && p1, !p0 && p2, p0 && !p1 && p2:
		return false
	default:
		return true
	}
}

// handleTerminals fingerprints exprs in parallel and adds them to classes.
func (s *Synthesizer) handleTerminals(ctx context.Context, exprs []loki.Expr) error {
	fingerprints := make([]string, len(exprs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range exprs {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			fingerprints[i] = s.Fingerprint(exprs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range exprs {
		class, ok := s.classes[fingerprints[i]]
		if !ok {
			if s.selectionOnly {
				continue
			}
			class = make(map[string]loki.Expr)
			s.classes[fingerprints[i]] = class
		}
		class[e.Key()] = e
	}
	return nil
}

// ClassN returns the number of equivalence classes found.
func (s *Synthesizer) ClassN() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.classes)
}

// Table returns a rule table with one class per representative, holding
// every synthesized expression with the same fingerprint.
func (s *Synthesizer) Table(reps []loki.Expr) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := NewTable()
	for _, rep := range reps {
		class := s.classes[s.Fingerprint(rep)]

		members := make([]loki.Expr, 0, len(class))
		for _, e := range class {
			members = append(members, e)
		}
		slices.SortFunc(members, loki.Compare)
		t.Insert(rep, members...)
	}
	return t
}

// Prover decides whether two expressions are equivalent.
type Prover interface {
	Equivalent(a, b loki.Expr) (bool, error)
}

// Prune returns a copy of t keeping only the members that p proves
// equivalent to their representative. Queries the solver cannot decide are
// treated as not proven.
func Prune(t *Table, p Prover) (*Table, error) {
	other := NewTable()
	for _, c := range t.Classes() {
		var members []loki.Expr
		for _, m := range c.Members {
			ok, err := p.Equivalent(c.Representative, m)
			if isSolverError(err) {
				continue
			} else if err != nil {
				return nil, fmt.Errorf("prune %s: %w", c.Representative, err)
			} else if ok {
				members = append(members, m)
			}
		}
		log.Printf("[rules] before: %d -- after: %d (%s)", len(c.Members), len(members), c.Representative)
		other.Insert(c.Representative, members...)
	}
	return other, nil
}

func isSolverError(err error) bool {
	return errors.Is(err, loki.ErrSolverTimeout) ||
		errors.Is(err, loki.ErrSolverCanceled) ||
		errors.Is(err, loki.ErrSolverResourceLimit) ||
		errors.Is(err, loki.ErrSolverUnknown)
}
