package alu

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

// Keys holds the slot keys of a single handler. Slot i is selected by
// Get(i). A slot guarded by a factorization check also has an auxiliary
// prime that is never handed out as a key.
type Keys struct {
	keys      []uint64
	auxiliary map[int]uint64
	used      map[uint64]struct{}
}

// NewKeys returns an empty key set.
func NewKeys() *Keys {
	return &Keys{
		auxiliary: make(map[int]uint64),
		used:      make(map[uint64]struct{}),
	}
}

// Len returns the number of slot keys.
func (k *Keys) Len() int { return len(k.keys) }

// Get returns the key of slot i.
func (k *Keys) Get(i int) uint64 {
	assert(i >= 0 && i < len(k.keys), "key index out of range: %d", i)
	return k.keys[i]
}

// Slice returns a copy of the slot keys in slot order.
func (k *Keys) Slice() []uint64 {
	return slices.Clone(k.keys)
}

// Push appends a key for the next slot.
func (k *Keys) Push(v uint64) {
	k.keys = append(k.keys, v)
	k.used[v] = struct{}{}
}

// Auxiliary returns the auxiliary prime of slot i, if any.
func (k *Keys) Auxiliary(i int) (uint64, bool) {
	v, ok := k.auxiliary[i]
	return v, ok
}

// SetAuxiliary sets the auxiliary prime of slot i.
func (k *Keys) SetAuxiliary(i int, v uint64) {
	k.auxiliary[i] = v
	k.used[v] = struct{}{}
}

// AuxiliaryValues returns every auxiliary prime ordered by slot.
func (k *Keys) AuxiliaryValues() []uint64 {
	slots := make([]int, 0, len(k.auxiliary))
	for i := range k.auxiliary {
		slots = append(slots, i)
	}
	slices.Sort(slots)

	a := make([]uint64, len(slots))
	for i, slot := range slots {
		a[i] = k.auxiliary[slot]
	}
	return a
}

// Contains returns true if v is already used as a key or auxiliary prime.
func (k *Keys) Contains(v uint64) bool {
	_, ok := k.used[v]
	return ok
}

// String returns one "slot: key" line per slot.
func (k *Keys) String() string {
	var s string
	for i, v := range k.keys {
		s += fmt.Sprintf("%d: %#018x\n", i, v)
	}
	return s
}

type keysJSON struct {
	Keys      []uint64       `json:"keys"`
	Auxiliary map[int]uint64 `json:"auxiliary,omitempty"`
}

// MarshalJSON encodes the keys and auxiliary primes.
func (k *Keys) MarshalJSON() ([]byte, error) {
	return json.Marshal(keysJSON{Keys: k.keys, Auxiliary: k.auxiliary})
}

// UnmarshalJSON decodes keys and rebuilds the set of used values.
func (k *Keys) UnmarshalJSON(data []byte) error {
	var v keysJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	*k = *NewKeys()
	for _, key := range v.Keys {
		k.Push(key)
	}
	for i, aux := range v.Auxiliary {
		k.SetAuxiliary(i, aux)
	}
	return nil
}

// MetaKeys maps a handler id to its slot keys.
type MetaKeys map[int]*Keys

// Key returns the key selecting idx.
func (m MetaKeys) Key(idx SchedulerIndex) (uint64, error) {
	keys, ok := m[idx.Handler]
	if !ok {
		return 0, fmt.Errorf("no keys for handler %d", idx.Handler)
	} else if idx.Slot >= keys.Len() {
		return 0, fmt.Errorf("no key for slot %s", idx)
	}
	return keys.Get(idx.Slot), nil
}

// Prime bounds of generated keys.
const (
	primeBits = 32
	minPrime  = 1 << 29
)

// millerRabinBases is a witness set that is deterministic for all 64-bit n.
var millerRabinBases = []uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

// IsPrime reports whether n is prime.
func IsPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	for _, p := range millerRabinBases {
		if n%p == 0 {
			return n == p
		}
	}

	// n-1 = d * 2^s with d odd.
	d, s := n-1, 0
	for d%2 == 0 {
		d, s = d/2, s+1
	}

	m := uint256.NewInt(n)
	one, minusOne := uint256.NewInt(1), uint256.NewInt(n-1)
	for _, a := range millerRabinBases {
		x := powMod(uint256.NewInt(a), d, m)
		if x.Eq(one) || x.Eq(minusOne) {
			continue
		}

		composite := true
		for i := 1; i < s; i++ {
			x.MulMod(x, x, m)
			if x.Eq(minusOne) {
				composite = false
				break
			}
		}
		if composite {
			return false
		}
	}
	return true
}

// powMod returns base^exp mod m.
func powMod(base *uint256.Int, exp uint64, m *uint256.Int) *uint256.Int {
	result := uint256.NewInt(1)
	b := new(uint256.Int).Mod(base, m)
	for ; exp > 0; exp >>= 1 {
		if exp&1 == 1 {
			result.MulMod(result, b, m)
		}
		b.MulMod(b, b, m)
	}
	return result
}

// RandPrime returns a random 32-bit prime of at least 2^29.
func RandPrime(rng *rand.Rand) uint64 {
	for {
		v := rng.Uint64()&(1<<primeBits-1) | 1
		if v >= minPrime && IsPrime(v) {
			return v
		}
	}
}

// pushRandKey appends a fresh key to keys. Half of the keys are primes that
// get an auxiliary prime for a factorization check.
func pushRandKey(rng *rand.Rand, keys *Keys) {
	prime := rng.Intn(2) == 0

	next := func() uint64 {
		if prime {
			return RandPrime(rng)
		}
		return rng.Uint64()
	}

	v := next()
	for keys.Contains(v) {
		v = next()
	}
	keys.Push(v)

	if prime {
		aux := RandPrime(rng)
		for keys.Contains(aux) {
			aux = RandPrime(rng)
		}
		keys.SetAuxiliary(keys.Len()-1, aux)
	}
}
