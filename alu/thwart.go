package alu

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"

	"github.com/benbjohnson/loki"
	"golang.org/x/sync/errgroup"
)

// FactorizationCheck returns an expression of k that is 1 if the low 32 bits
// of k divide n and 0 otherwise.
func FactorizationCheck(n uint64) loki.Expr {
	return loki.CheckIfZero(
		loki.Urem(
			loki.Const64(n),
			loki.And(loki.Reg64(RegKey), loki.Const64(1<<32-1), loki.Width64),
			loki.Width64,
		),
		loki.Width64,
	)
}

// MultiRootCheck returns an expression of k that is 1 if k equals key and 0
// otherwise. The key is compared in 2, 4 or 8 slices whose checks are
// multiplied together.
func MultiRootCheck(rng *rand.Rand, key uint64) loki.Expr {
	n := []uint64{2, 4, 8}[rng.Intn(3)]
	size := 64 / n

	ret := keySliceCheck(key, 0, size-1)
	for i := uint64(1); i < n; i++ {
		ret = loki.Mul(ret, keySliceCheck(key, size*i, size*(i+1)-1), loki.Width64)
	}
	return ret
}

// keySliceCheck returns 1 if bits [start, end] of k match those of key.
func keySliceCheck(key, start, end uint64) loki.Expr {
	return loki.CheckIfZero(
		loki.Sub(
			loki.SemanticsSlice(loki.Reg64(RegKey), loki.Const64(start), loki.Const64(end), loki.Width64),
			loki.Const64(loki.SliceVal(key, uint8(start), uint8(end))),
			loki.Width64,
		),
		loki.Width64,
	).Simplify()
}

// errPointFunctionFound stops the remaining candidates once one verifies.
var errPointFunctionFound = errors.New("point function found")

// PointFunction searches up to budget random expressions of k for one that
// evaluates to 1 for the key of slot and to 0 for every other key and
// auxiliary prime. Candidates are checked in parallel and the search stops
// at the first hit. Returns false if no candidate verifies.
func PointFunction(ctx context.Context, rng *rand.Rand, keys *Keys, slot, budget int) (loki.Expr, bool) {
	seeds := make([]int64, budget)
	for i := range seeds {
		seeds[i] = rng.Int63()
	}

	var mu sync.Mutex
	var found loki.Expr

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, seed := range seeds {
		if ctx.Err() != nil {
			break
		}

		seed := seed
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			e := pointFunctionCandidate(rand.New(rand.NewSource(seed)))
			if !verifyPointFunction(e, keys, slot) {
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if found == nil {
				found = e
			}
			return errPointFunctionFound
		})
	}
	g.Wait()

	return found, found != nil
}

// pointFunctionCandidate returns a random expression of five to fourteen
// layers over key bytes and constants.
func pointFunctionCandidate(rng *rand.Rand) loki.Expr {
	const w = loki.Width64

	expr := keyByteOrConst(rng)
	for n := rng.Intn(10) + 5; n > 0; n-- {
		switch rng.Intn(11) {
		case 0:
			expr = loki.Add(expr, keyByteOrConst(rng), w)
		case 1:
			expr = loki.Sub(expr, keyByteOrConst(rng), w)
		case 2:
			expr = loki.Mul(expr, keyByteOrConst(rng), w)
		case 3:
			expr = loki.And(expr, keyByteOrConst(rng), w)
		case 4:
			expr = loki.Or(expr, keyByteOrConst(rng), w)
		case 5:
			expr = loki.Xor(expr, keyByteOrConst(rng), w)
		case 6:
			expr = loki.Nand(expr, keyByteOrConst(rng), w)
		case 7:
			expr = loki.Nor(expr, keyByteOrConst(rng), w)
		case 8:
			expr = loki.Not(expr, w)
		case 9:
			expr = loki.Neg(expr, w)
		default:
			expr = loki.Mul(expr, expr, w)
		}
	}
	return expr.Simplify()
}

func keyByteOrConst(rng *rand.Rand) loki.Expr {
	i := rng.Intn(9)
	if i == 8 {
		return loki.Const64(rng.Uint64())
	}
	start := uint64(i * 8)
	return loki.SemanticsSlice(loki.Reg64(RegKey), loki.Const64(start), loki.Const64(start+7), loki.Width64)
}

// verifyPointFunction returns true if e selects exactly the key of slot
// among all keys and auxiliary primes.
func verifyPointFunction(e loki.Expr, keys *Keys, slot int) bool {
	for i := 0; i < keys.Len(); i++ {
		want := uint64(0)
		if i == slot {
			want = 1
		}
		if v := e.BindVar(RegKey, keys.Get(i)).Simplify(); !v.HasConst(want) {
			return false
		}
	}
	for _, aux := range keys.AuxiliaryValues() {
		if v := e.BindVar(RegKey, aux).Simplify(); !v.HasConst(0) {
			return false
		}
	}
	return true
}
