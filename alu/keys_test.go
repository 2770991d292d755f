package alu_test

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/benbjohnson/loki/alu"
	"github.com/google/go-cmp/cmp"
)

func TestIsPrime(t *testing.T) {
	for _, tt := range []struct {
		n    uint64
		want bool
	}{
		{0, false},
		{1, false},
		{2, true},
		{3, true},
		{4, false},
		{97, true},
		{561, false},        // carmichael
		{3215031751, false}, // strong pseudoprime to bases 2, 3, 5 & 7
		{4294967291, true},
		{4294967295, false},
		{1<<61 - 1, true},
		{18446744073709551557, true},
	} {
		if got := alu.IsPrime(tt.n); got != tt.want {
			t.Errorf("IsPrime(%d)=%v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestRandPrime(t *testing.T) {
	rng := rand.New(rand.NewSource(0))
	for i := 0; i < 20; i++ {
		p := alu.RandPrime(rng)
		if p < 1<<29 || p >= 1<<32 {
			t.Fatalf("prime out of range: %d", p)
		} else if !alu.IsPrime(p) {
			t.Fatalf("not prime: %d", p)
		}
	}
}

func TestKeys(t *testing.T) {
	keys := alu.NewKeys()
	keys.Push(100)
	keys.Push(200)
	keys.SetAuxiliary(1, 13)

	if keys.Len() != 2 || keys.Get(1) != 200 {
		t.Fatalf("unexpected keys: %v", keys.Slice())
	} else if !keys.Contains(13) || keys.Contains(14) {
		t.Fatal("unexpected used set")
	} else if v, ok := keys.Auxiliary(1); !ok || v != 13 {
		t.Fatalf("unexpected auxiliary: %d, %v", v, ok)
	} else if _, ok := keys.Auxiliary(0); ok {
		t.Fatal("unexpected auxiliary for slot 0")
	}

	t.Run("JSON", func(t *testing.T) {
		buf, err := json.Marshal(keys)
		if err != nil {
			t.Fatal(err)
		}

		other := alu.NewKeys()
		if err := json.Unmarshal(buf, other); err != nil {
			t.Fatal(err)
		} else if diff := cmp.Diff(keys.Slice(), other.Slice()); diff != "" {
			t.Fatal(diff)
		} else if !other.Contains(13) {
			t.Fatal("expected auxiliary to be restored")
		}
	})

	t.Run("ErrOutOfRange", func(t *testing.T) {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic")
			}
		}()
		keys.Get(2)
	})
}

func TestMetaKeys_Key(t *testing.T) {
	keys := alu.NewKeys()
	keys.Push(0xabc)
	m := alu.MetaKeys{2: keys}

	if v, err := m.Key(alu.SchedulerIndex{Handler: 2, Slot: 0}); err != nil {
		t.Fatal(err)
	} else if v != 0xabc {
		t.Fatalf("unexpected key: %#x", v)
	}

	if _, err := m.Key(alu.SchedulerIndex{Handler: 3, Slot: 0}); err == nil {
		t.Fatal("expected error")
	} else if _, err := m.Key(alu.SchedulerIndex{Handler: 2, Slot: 1}); err == nil {
		t.Fatal("expected error")
	}
}
